package voicemap

// enginePair keys the static cross-engine mapping tables.
type enginePair struct {
	source string
	target string
}

// crossEngineTable holds hand-curated voice equivalences between engine
// pairs. Entries are consulted before any heuristic matching.
var crossEngineTable = map[enginePair]map[string]string{
	{"online_voice", "emotion_api"}: {
		"zh-CN-XiaoxiaoNeural": "8051",
		"zh-CN-YunxiNeural":    "8052",
		"zh-CN-YunyangNeural":  "8053",
		"zh-CN-XiaoyiNeural":   "8054",
	},
	{"emotion_api", "online_voice"}: {
		"8051": "zh-CN-XiaoxiaoNeural",
		"8052": "zh-CN-YunxiNeural",
		"8053": "zh-CN-YunyangNeural",
		"8054": "zh-CN-XiaoyiNeural",
	},
	{"online_voice", "piper"}: {
		"en-US-AriaNeural":     "en_US-amy-medium",
		"en-US-GuyNeural":      "en_US-ryan-medium",
		"en-GB-SoniaNeural":    "en_GB-alba-medium",
		"zh-CN-XiaoxiaoNeural": "zh_CN-huayan-medium",
	},
	{"piper", "online_voice"}: {
		"en_US-amy-medium":    "en-US-AriaNeural",
		"en_US-ryan-medium":   "en-US-GuyNeural",
		"en_GB-alba-medium":   "en-GB-SoniaNeural",
		"zh_CN-huayan-medium": "zh-CN-XiaoxiaoNeural",
	},
	{"sapi", "online_voice"}: {
		"Microsoft David":  "en-US-GuyNeural",
		"Microsoft Zira":   "en-US-AriaNeural",
		"Microsoft Huihui": "zh-CN-XiaoxiaoNeural",
	},
}

// defaultVoices are the per-engine fallback voices used when no exact or
// fuzzy mapping can be found.
var defaultVoices = map[string]string{
	"online_voice": "en-US-AriaNeural",
	"emotion_api":  "8051",
	"piper":        "en_US-amy-medium",
	"sapi":         "Microsoft Zira",
	"mock":         "mock-voice",
}
