package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/engines"
)

// emotionOptions are the emotion names the service accepts.
var emotionOptions = []string{"neutral", "happy", "sad", "angry", "fearful", "surprised", "calm"}

// EmotionEngine adapts the emotion-capable HTTP synthesis service. Voices
// are numeric speaker ids; the emotion from the voice config is passed
// through as a request parameter.
type EmotionEngine struct {
	status engines.StatusTracker

	client  *Client
	baseURL string
	apiKey  string

	mu          sync.Mutex
	voices      []tts.VoiceInfo
	catalogPath string
	closed      bool
}

// NewEmotion creates the emotion engine.
func NewEmotion(client *Client, baseURL, apiKey string) *EmotionEngine {
	return &EmotionEngine{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// SetCatalogFile points the engine at a curated voice catalog file. When the
// file exists its entries take precedence over the remote speaker list.
func (e *EmotionEngine) SetCatalogFile(path string) {
	e.mu.Lock()
	e.catalogPath = path
	e.mu.Unlock()
}

// Init fetches the speaker catalog.
func (e *EmotionEngine) Init(ctx context.Context) error {
	e.status.SetState(tts.EngineLoading, "")
	voices, err := e.fetchVoices(ctx)
	if err != nil {
		e.status.SetState(tts.EngineUnavailable, err.Error())
		return fmt.Errorf("%w: %v", tts.ErrEngineUnavailable, err)
	}
	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	e.status.SetVoiceCount(len(voices))
	e.status.SetState(tts.EngineAvailable, "")
	return nil
}

func (e *EmotionEngine) fetchVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	resp, err := e.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/speakers", nil)
		if err != nil {
			return nil, err
		}
		e.authorize(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding speaker catalog: %w", err)
	}
	voices := make([]tts.VoiceInfo, 0, len(payload))
	for _, v := range payload {
		voices = append(voices, tts.VoiceInfo{ID: v.ID, Name: v.Name, Language: v.Language})
	}
	return voices, nil
}

func (e *EmotionEngine) authorize(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("X-Api-Key", e.apiKey)
	}
}

// ListVoices prefers the per-engine catalog file when one is present, then
// the cached speaker list, then a fetch.
func (e *EmotionEngine) ListVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	e.mu.Lock()
	cached, catalogPath := e.voices, e.catalogPath
	e.mu.Unlock()
	if voices, ok := engines.CatalogVoices(catalogPath); ok {
		return voices, nil
	}
	if len(cached) > 0 {
		return cached, nil
	}
	voices, err := e.fetchVoices(ctx)
	if err != nil {
		log.Warn("speaker fetch failed, using builtin list", "engine", "emotion_api", "err", err)
		return engines.BuiltinVoices(), nil
	}
	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	return voices, nil
}

// Validate checks ranges, the emotion option and remaps the voice.
func (e *EmotionEngine) Validate(cfg tts.VoiceConfig) (tts.VoiceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Emotion != "" {
		ok := false
		for _, opt := range emotionOptions {
			if cfg.Emotion == opt {
				ok = true
				break
			}
		}
		if !ok {
			return cfg, fmt.Errorf("%w: emotion %q not in %v", tts.ErrInvalidConfig, cfg.Emotion, emotionOptions)
		}
	}
	return engines.ResolveVoice(context.Background(), e, cfg)
}

// Synthesize requests a full clip from the emotion service. The service is
// not streaming; the response carries the whole clip base64-encoded.
func (e *EmotionEngine) Synthesize(ctx context.Context, text string, cfg tts.VoiceConfig) (*tts.SynthesisResult, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, tts.ErrEngineClosed
	}
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	emotion := cfg.Emotion
	if emotion == "" {
		emotion = "neutral"
	}
	body, err := json.Marshal(map[string]any{
		"text":    text,
		"speaker": cfg.VoiceName,
		"emotion": emotion,
		"speed":   cfg.Rate,
		"pitch":   cfg.Pitch,
		"volume":  cfg.Volume,
	})
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/synthesize", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		e.authorize(req)
		return req, nil
	})
	if err != nil {
		e.status.SetState(tts.EngineError, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Audio      string  `json:"audio"`
		Format     string  `json:"format"`
		Duration   float64 `json:"duration_s"`
		SampleRate int     `json:"sample_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, tts.NewConvertError(tts.KindNetwork, "decode response", err)
	}
	clip, err := base64.StdEncoding.DecodeString(payload.Audio)
	if err != nil {
		return nil, tts.NewConvertError(tts.KindNetwork, "decode audio", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("%w: response carried no audio", tts.ErrSynthesisFailed)
	}
	e.status.SetState(tts.EngineAvailable, "")

	return &tts.SynthesisResult{
		Success:        true,
		Audio:          clip,
		DetectedFormat: engines.SniffFormat(clip, tts.Format(payload.Format)),
		Duration:       payload.Duration,
		SampleRate:     payload.SampleRate,
	}, nil
}

// Describe returns the engine's static descriptor.
func (e *EmotionEngine) Describe() tts.EngineDescriptor {
	return tts.EngineDescriptor{
		ID:               "emotion_api",
		DisplayName:      "Emotion Synthesis",
		IsOnline:         true,
		RequiresAuth:     true,
		SupportedFormats: []tts.Format{tts.FormatWAV, tts.FormatMP3},
		DefaultVoiceID:   "8051",
		Parameters: tts.ParameterSchema{
			"emotion": {Type: "string", Default: "neutral", Options: emotionOptions},
		},
	}
}

// Status returns the engine's live status.
func (e *EmotionEngine) Status() tts.EngineStatus {
	return e.status.Snapshot()
}

// Close marks the engine unusable.
func (e *EmotionEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.status.SetState(tts.EngineUnavailable, "closed")
	return nil
}
