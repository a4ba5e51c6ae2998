// Package mock provides a deterministic in-process engine used by tests and
// the dry-run mode. It emits real RIFF/WAV payloads so format detection and
// transcoding behave exactly as they do with a live backend.
package mock

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/engines"
)

// Engine is a fake synthesis backend with configurable latency and failure
// behavior.
type Engine struct {
	status engines.StatusTracker

	mu          sync.Mutex
	delay       time.Duration
	failureRate float64
	withSRT     bool
	closed      bool
	calls       int

	rng *rand.Rand
}

// Option configures the mock engine.
type Option func(*Engine)

// WithDelay makes every synthesis call sleep for d.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithFailureRate makes synthesis fail with probability p (0..1).
func WithFailureRate(p float64) Option {
	return func(e *Engine) { e.failureRate = p }
}

// WithSRT makes the engine attach word-timing SRT content to results.
func WithSRT() Option {
	return func(e *Engine) { e.withSRT = true }
}

// New creates a mock engine.
func New(opts ...Option) *Engine {
	e := &Engine{rng: rand.New(rand.NewSource(1))}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Init marks the engine available.
func (e *Engine) Init(ctx context.Context) error {
	e.status.SetState(tts.EngineAvailable, "")
	e.status.SetVoiceCount(2)
	return nil
}

// ListVoices returns the fixed mock catalog.
func (e *Engine) ListVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	return []tts.VoiceInfo{
		{ID: "mock-voice", Name: "Mock Voice", Language: "en-US", Gender: "neutral"},
		{ID: "mock-voice-zh", Name: "Mock Voice ZH", Language: "zh-CN", Gender: "neutral"},
	}, nil
}

// Validate checks ranges and remaps unknown voices to the catalog.
func (e *Engine) Validate(cfg tts.VoiceConfig) (tts.VoiceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return engines.ResolveVoice(context.Background(), e, cfg)
}

// Calls reports how many synthesis calls were made.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Synthesize produces a silent WAV sized proportionally to the text length.
func (e *Engine) Synthesize(ctx context.Context, text string, cfg tts.VoiceConfig) (*tts.SynthesisResult, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, tts.ErrEngineClosed
	}
	e.calls++
	delay := e.delay
	fail := e.failureRate > 0 && e.rng.Float64() < e.failureRate
	withSRT := e.withSRT
	e.mu.Unlock()

	if text == "" {
		return nil, tts.ErrEmptyText
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("%w: injected mock failure", tts.ErrSynthesisFailed)
	}

	// 50ms of audio per character at the configured rate.
	const sampleRate = 22050
	seconds := float64(len([]rune(text))) * 0.05 / cfg.Rate
	if seconds < 0.1 {
		seconds = 0.1
	}
	audio := buildWAV(sampleRate, seconds)

	res := &tts.SynthesisResult{
		Success:        true,
		Audio:          audio,
		DetectedFormat: tts.FormatWAV,
		Duration:       seconds,
		SampleRate:     sampleRate,
		BitDepth:       16,
		Channels:       1,
	}
	if withSRT {
		res.Metadata = tts.ResultMetadata{SRTContent: buildSRT(text, seconds), HasSRT: true}
	}
	return res, nil
}

// Describe returns the mock descriptor.
func (e *Engine) Describe() tts.EngineDescriptor {
	return tts.EngineDescriptor{
		ID:                 "mock",
		DisplayName:        "Mock Engine",
		Version:            "1.0",
		SupportedLanguages: []string{"en-US", "zh-CN"},
		SupportedFormats:   []tts.Format{tts.FormatWAV},
		EmitsFormat:        tts.FormatWAV,
		DefaultVoiceID:     "mock-voice",
		ProvidesTimingData: true,
	}
}

// Status returns the engine's live status.
func (e *Engine) Status() tts.EngineStatus {
	return e.status.Snapshot()
}

// Close marks the engine unusable.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.status.SetState(tts.EngineUnavailable, "closed")
	return nil
}

// buildWAV produces a 16-bit mono PCM WAV containing a quiet tone, long
// enough to probe as the requested duration.
func buildWAV(sampleRate int, seconds float64) []byte {
	samples := int(float64(sampleRate) * seconds)
	dataSize := samples * 2
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < samples; i++ {
		v := int16(1000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(v))
	}
	return buf
}

// buildSRT distributes the text's words evenly across the audio duration.
func buildSRT(text string, seconds float64) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	per := seconds / float64(len(words))
	var b strings.Builder
	for i, w := range words {
		start := time.Duration(float64(i) * per * float64(time.Second))
		end := time.Duration(float64(i+1) * per * float64(time.Second))
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTime(start), srtTime(end), w)
	}
	return b.String()
}

func srtTime(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
