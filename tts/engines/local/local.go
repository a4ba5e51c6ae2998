// Package local adapts a piper-style local inference binary. Voices are
// onnx model files discovered under the configured model directory; each
// synthesis call runs the binary as a subprocess feeding text on stdin.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/engines"
)

// Engine runs a local inference binary.
type Engine struct {
	status engines.StatusTracker

	binaryPath string
	modelDir   string

	mu     sync.Mutex
	models map[string]string // voice id -> verified model path
	closed bool
}

// New creates a local engine for the given binary and model directory.
func New(binaryPath, modelDir string) *Engine {
	return &Engine{
		binaryPath: binaryPath,
		modelDir:   modelDir,
		models:     make(map[string]string),
	}
}

// Init verifies the binary exists and scans the model directory.
func (e *Engine) Init(ctx context.Context) error {
	e.status.SetState(tts.EngineLoading, "")
	if _, err := exec.LookPath(e.binaryPath); err != nil {
		e.status.SetState(tts.EngineUnavailable, err.Error())
		return fmt.Errorf("%w: %s: %v", tts.ErrEngineUnavailable, e.binaryPath, err)
	}
	voices, err := e.scanModels()
	if err != nil {
		e.status.SetState(tts.EngineError, err.Error())
		return err
	}
	if len(voices) == 0 {
		msg := fmt.Sprintf("no voice models under %s", e.modelDir)
		e.status.SetState(tts.EngineUnavailable, msg)
		return fmt.Errorf("%w: %s", tts.ErrEngineUnavailable, msg)
	}
	e.status.SetVoiceCount(len(voices))
	e.status.SetState(tts.EngineAvailable, "")
	log.Debug("local engine ready", "binary", e.binaryPath, "voices", len(voices))
	return nil
}

// scanModels refreshes the voice-to-model map from the model directory.
func (e *Engine) scanModels() ([]tts.VoiceInfo, error) {
	entries, err := os.ReadDir(e.modelDir)
	if err != nil {
		return nil, fmt.Errorf("reading model dir: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var voices []tts.VoiceInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".onnx") {
			continue
		}
		id := strings.TrimSuffix(name, ".onnx")
		e.models[id] = filepath.Join(e.modelDir, name)
		voices = append(voices, tts.VoiceInfo{
			ID:       id,
			Name:     id,
			Language: languageFromModel(id),
		})
	}
	return voices, nil
}

// languageFromModel extracts the language from a model id such as
// "en_US-amy-medium".
func languageFromModel(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return strings.ReplaceAll(id[:i], "_", "-")
	}
	return ""
}

// ListVoices returns the discovered voice models.
func (e *Engine) ListVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	return e.scanModels()
}

// Validate checks ranges and remaps the voice onto an available model.
func (e *Engine) Validate(cfg tts.VoiceConfig) (tts.VoiceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return engines.ResolveVoice(context.Background(), e, cfg)
}

// Synthesize runs the binary with the voice's model, feeding text on stdin
// and collecting the WAV output from a temp file.
func (e *Engine) Synthesize(ctx context.Context, text string, cfg tts.VoiceConfig) (*tts.SynthesisResult, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, tts.ErrEngineClosed
	}
	model, ok := e.models[cfg.VoiceName]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", tts.ErrVoiceUnknown, cfg.VoiceName)
	}
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	tmp, err := os.CreateTemp("", "chaptervox-local-*.wav")
	if err != nil {
		return nil, fmt.Errorf("creating temp output: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	// piper expresses rate as length_scale, the inverse of speed.
	args := []string{
		"--model", model,
		"--output_file", tmpPath,
		"--length_scale", strconv.FormatFloat(1.0/cfg.Rate, 'f', 3, 64),
	}
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.status.SetState(tts.EngineError, err.Error())
		return nil, fmt.Errorf("%w: %s: %v (%s)",
			tts.ErrSynthesisFailed, filepath.Base(e.binaryPath), err,
			strings.TrimSpace(stderr.String()))
	}
	clip, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("%w: binary produced no audio", tts.ErrSynthesisFailed)
	}
	e.status.SetState(tts.EngineAvailable, "")

	return &tts.SynthesisResult{
		Success:        true,
		Audio:          clip,
		DetectedFormat: engines.SniffFormat(clip, tts.FormatWAV),
		SampleRate:     22050,
		BitDepth:       16,
		Channels:       1,
	}, nil
}

// Describe returns the engine's static descriptor.
func (e *Engine) Describe() tts.EngineDescriptor {
	return tts.EngineDescriptor{
		ID:               "piper",
		DisplayName:      "Local Inference",
		SupportedFormats: []tts.Format{tts.FormatWAV},
		EmitsFormat:      tts.FormatWAV,
		DefaultVoiceID:   "en_US-amy-medium",
		Parameters: tts.ParameterSchema{
			"noise_scale": {Type: "number", Default: "0.667"},
		},
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
