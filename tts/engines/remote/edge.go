package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/engines"
	"github.com/yhl9/chaptervox/tts/subtitle"
)

// OnlineEngine adapts the streaming neural voice service. The service
// responds with newline-delimited JSON frames carrying base64 audio chunks
// and word-boundary timings; the boundaries become SRT content on the
// result.
type OnlineEngine struct {
	status engines.StatusTracker

	client  *Client
	baseURL string
	apiKey  string

	mu          sync.Mutex
	voices      []tts.VoiceInfo
	catalogPath string
	closed      bool
}

// NewOnline creates the streaming online engine.
func NewOnline(client *Client, baseURL, apiKey string) *OnlineEngine {
	return &OnlineEngine{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// SetCatalogFile points the engine at a curated voice catalog file. When the
// file exists its entries take precedence over the remote voice list.
func (e *OnlineEngine) SetCatalogFile(path string) {
	e.mu.Lock()
	e.catalogPath = path
	e.mu.Unlock()
}

// Init fetches the remote voice catalog.
func (e *OnlineEngine) Init(ctx context.Context) error {
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
	log.Debug("online engine ready", "voices", len(voices))
	return nil
}

func (e *OnlineEngine) fetchVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	resp, err := e.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/voices", nil)
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
		ShortName string `json:"ShortName"`
		Locale    string `json:"Locale"`
		Gender    string `json:"Gender"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding voice catalog: %w", err)
	}
	voices := make([]tts.VoiceInfo, 0, len(payload))
	for _, v := range payload {
		voices = append(voices, tts.VoiceInfo{
			ID:       v.ShortName,
			Name:     v.ShortName,
			Language: v.Locale,
			Gender:   strings.ToLower(v.Gender),
		})
	}
	return voices, nil
}

func (e *OnlineEngine) authorize(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

// ListVoices prefers the per-engine catalog file when one is present, then
// the cached remote list, then a fetch.
func (e *OnlineEngine) ListVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
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
		log.Warn("voice fetch failed, using builtin list", "engine", "online_voice", "err", err)
		return engines.BuiltinVoices(), nil
	}
	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	return voices, nil
}

// Validate checks ranges and remaps the voice onto the catalog.
func (e *OnlineEngine) Validate(cfg tts.VoiceConfig) (tts.VoiceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return engines.ResolveVoice(context.Background(), e, cfg)
}

// streamFrame is one newline-delimited JSON frame of the synthesis stream.
type streamFrame struct {
	Type     string  `json:"type"` // audio, word_boundary, end, error
	Data     string  `json:"data,omitempty"`
	Text     string  `json:"text,omitempty"`
	OffsetMS float64 `json:"offset_ms,omitempty"`
	Duration float64 `json:"duration_ms,omitempty"`
	Message  string  `json:"message,omitempty"`
}

type synthesisRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice"`
	Rate   string  `json:"rate"`
	Pitch  string  `json:"pitch"`
	Volume string  `json:"volume"`
	Format string  `json:"output_format"`
	Bound  bool    `json:"word_boundaries"`
	Speed  float64 `json:"-"`
}

// Synthesize streams audio and word boundaries for text.
func (e *OnlineEngine) Synthesize(ctx context.Context, text string, cfg tts.VoiceConfig) (*tts.SynthesisResult, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, tts.ErrEngineClosed
	}
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	body, err := json.Marshal(synthesisRequest{
		Text:   text,
		Voice:  cfg.VoiceName,
		Rate:   formatSignedPercent((cfg.Rate - 1.0) * 100),
		Pitch:  fmt.Sprintf("%+.0fHz", cfg.Pitch),
		Volume: formatSignedPercent((cfg.Volume - 1.0) * 100),
		Format: "audio-24khz-48kbitrate-mono-mp3",
		Bound:  true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			e.baseURL+"/synthesize/stream", bytes.NewReader(body))
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

	var clip bytes.Buffer
	var cues []subtitle.Cue
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame streamFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			log.Warn("skipping malformed stream frame", "err", err)
			continue
		}
		switch frame.Type {
		case "audio":
			chunk, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				return nil, tts.NewConvertError(tts.KindNetwork, "decode audio chunk", err)
			}
			clip.Write(chunk)
		case "word_boundary":
			start := time.Duration(frame.OffsetMS * float64(time.Millisecond))
			end := start + time.Duration(frame.Duration*float64(time.Millisecond))
			cues = append(cues, subtitle.Cue{Start: start, End: end, Text: frame.Text})
		case "error":
			return nil, tts.NewConvertError(tts.KindSynthesis, "stream",
				fmt.Errorf("%s", frame.Message)).WithEngine("online_voice")
		case "end":
		}
	}
	if err := sc.Err(); err != nil {
		return nil, tts.NewConvertError(tts.KindNetwork, "read stream", err)
	}
	if clip.Len() == 0 {
		return nil, fmt.Errorf("%w: stream carried no audio", tts.ErrSynthesisFailed)
	}
	e.status.SetState(tts.EngineAvailable, "")

	res := &tts.SynthesisResult{
		Success:        true,
		Audio:          clip.Bytes(),
		DetectedFormat: engines.SniffFormat(clip.Bytes(), tts.FormatMP3),
		SampleRate:     24000,
		Channels:       1,
	}
	if len(cues) > 0 {
		subtitle.Renumber(cues)
		res.Metadata = tts.ResultMetadata{SRTContent: subtitle.RenderSRT(cues), HasSRT: true}
	}
	return res, nil
}

func formatSignedPercent(v float64) string {
	return fmt.Sprintf("%+.0f%%", v)
}

// Describe returns the engine's static descriptor.
func (e *OnlineEngine) Describe() tts.EngineDescriptor {
	return tts.EngineDescriptor{
		ID:                 "online_voice",
		DisplayName:        "Online Neural Voices",
		IsOnline:           true,
		SupportedFormats:   []tts.Format{tts.FormatMP3},
		EmitsFormat:        tts.FormatMP3,
		DefaultVoiceID:     "en-US-AriaNeural",
		ProvidesTimingData: true,
		Parameters: tts.ParameterSchema{
			"style": {Type: "string"},
		},
	}
}

// Status returns the engine's live status.
func (e *OnlineEngine) Status() tts.EngineStatus {
	return e.status.Snapshot()
}

// Close marks the engine unusable.
func (e *OnlineEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.status.SetState(tts.EngineUnavailable, "closed")
	return nil
}
