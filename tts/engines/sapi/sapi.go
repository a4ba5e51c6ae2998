// Package sapi adapts the operating system's speech stack (SAPI on
// Windows, say on macOS, espeak-ng elsewhere). The OS speech runtime is not
// reentrant, so every call in the process serializes on a package mutex and
// runs under a watchdog timeout.
package sapi

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/engines"
)

// speechMu serializes all OS speech calls in the process, across engine
// instances.
var speechMu sync.Mutex

// watchdogTimeout bounds a single OS speech call. The OS stack occasionally
// hangs on malformed input instead of erroring.
const watchdogTimeout = 10 * time.Second

// Engine drives the OS speech synthesizer through its command-line surface.
type Engine struct {
	status engines.StatusTracker

	mu     sync.Mutex
	closed bool
}

// New creates an OS speech engine.
func New() *Engine {
	return &Engine{}
}

// Init probes the platform speech command.
func (e *Engine) Init(ctx context.Context) error {
	cmd, _ := platformCommand()
	if cmd == "" {
		e.status.SetState(tts.EngineUnavailable, "no speech command for "+runtime.GOOS)
		return fmt.Errorf("%w: no speech command for %s", tts.ErrEngineUnavailable, runtime.GOOS)
	}
	if _, err := exec.LookPath(cmd); err != nil {
		e.status.SetState(tts.EngineUnavailable, err.Error())
		return fmt.Errorf("%w: %v", tts.ErrEngineUnavailable, err)
	}
	voices, err := e.ListVoices(ctx)
	if err != nil {
		e.status.SetState(tts.EngineError, err.Error())
		return err
	}
	e.status.SetVoiceCount(len(voices))
	e.status.SetState(tts.EngineAvailable, "")
	return nil
}

// platformCommand returns the speech binary and its voice-listing args.
func platformCommand() (string, []string) {
	switch runtime.GOOS {
	case "windows":
		return "powershell", nil
	case "darwin":
		return "say", []string{"-v", "?"}
	default:
		return "espeak-ng", []string{"--voices"}
	}
}

// ListVoices queries the OS for installed voices.
func (e *Engine) ListVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	switch runtime.GOOS {
	case "windows":
		return e.listWindowsVoices(ctx)
	case "darwin":
		return e.listSayVoices(ctx)
	default:
		return e.listEspeakVoices(ctx)
	}
}

func (e *Engine) listWindowsVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	script := `Add-Type -AssemblyName System.Speech; ` +
		`(New-Object System.Speech.Synthesis.SpeechSynthesizer).GetInstalledVoices() | ` +
		`ForEach-Object { $_.VoiceInfo.Name + "|" + $_.VoiceInfo.Culture }`
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return nil, fmt.Errorf("querying SAPI voices: %w", err)
	}
	var voices []tts.VoiceInfo
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		voices = append(voices, tts.VoiceInfo{ID: parts[0], Name: parts[0], Language: parts[1]})
	}
	return voices, nil
}

func (e *Engine) listSayVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	out, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("querying say voices: %w", err)
	}
	var voices []tts.VoiceInfo
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		voices = append(voices, tts.VoiceInfo{
			ID:       fields[0],
			Name:     fields[0],
			Language: strings.ReplaceAll(fields[1], "_", "-"),
		})
	}
	return voices, nil
}

func (e *Engine) listEspeakVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	out, err := exec.CommandContext(ctx, "espeak-ng", "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("querying espeak voices: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	var voices []tts.VoiceInfo
	for i, line := range lines {
		if i == 0 { // header
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, tts.VoiceInfo{ID: fields[3], Name: fields[3], Language: fields[1]})
	}
	return voices, nil
}

// Validate checks ranges and remaps the voice onto an installed one.
func (e *Engine) Validate(cfg tts.VoiceConfig) (tts.VoiceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return engines.ResolveVoice(context.Background(), e, cfg)
}

// Synthesize speaks text to a temp WAV file under the process-wide lock.
func (e *Engine) Synthesize(ctx context.Context, text string, cfg tts.VoiceConfig) (*tts.SynthesisResult, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, tts.ErrEngineClosed
	}
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	speechMu.Lock()
	defer speechMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, watchdogTimeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "chaptervox-sapi-*.wav")
	if err != nil {
		return nil, fmt.Errorf("creating temp output: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := buildSpeakCommand(ctx, text, cfg, tmpPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Warn("speech call hit watchdog timeout", "voice", cfg.VoiceName)
			return nil, fmt.Errorf("%w: watchdog timeout after %s", tts.ErrSynthesisFailed, watchdogTimeout)
		}
		return nil, fmt.Errorf("%w: %v (%s)", tts.ErrSynthesisFailed, err, strings.TrimSpace(stderr.String()))
	}

	audio, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: speech command produced no audio", tts.ErrSynthesisFailed)
	}
	e.status.SetState(tts.EngineAvailable, "")
	return &tts.SynthesisResult{
		Success:        true,
		Audio:          audio,
		DetectedFormat: tts.FormatWAV,
		SampleRate:     22050,
		BitDepth:       16,
		Channels:       1,
	}, nil
}

// buildSpeakCommand assembles the platform synthesis invocation.
func buildSpeakCommand(ctx context.Context, text string, cfg tts.VoiceConfig, outPath string) *exec.Cmd {
	switch runtime.GOOS {
	case "windows":
		// SAPI rate is -10..10; map the 0.1..3.0 multiplier onto it.
		rate := int((cfg.Rate - 1.0) * 10)
		if rate < -10 {
			rate = -10
		} else if rate > 10 {
			rate = 10
		}
		script := fmt.Sprintf(
			`Add-Type -AssemblyName System.Speech; `+
				`$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; `+
				`$s.SelectVoice(%q); $s.Rate = %d; $s.Volume = %d; `+
				`$s.SetOutputToWaveFile(%q); $s.Speak([Console]::In.ReadToEnd()); $s.Dispose()`,
			cfg.VoiceName, rate, int(cfg.Volume*50), outPath)
		cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script)
		cmd.Stdin = strings.NewReader(text)
		return cmd
	case "darwin":
		// say rate is words per minute around a 175 baseline.
		wpm := strconv.Itoa(int(175 * cfg.Rate))
		cmd := exec.CommandContext(ctx, "say",
			"-v", cfg.VoiceName,
			"-r", wpm,
			"-o", outPath,
			"--data-format=LEI16@22050",
			"-f", "-")
		cmd.Stdin = strings.NewReader(text)
		return cmd
	default:
		// espeak speed is words per minute, pitch 0..99 around 50.
		cmd := exec.CommandContext(ctx, "espeak-ng",
			"-v", cfg.VoiceName,
			"-s", strconv.Itoa(int(175*cfg.Rate)),
			"-p", strconv.Itoa(int(50+cfg.Pitch/2)),
			"-a", strconv.Itoa(int(100*cfg.Volume)),
			"-w", outPath,
			"--stdin")
		cmd.Stdin = strings.NewReader(text)
		return cmd
	}
}

// Describe returns the engine's static descriptor.
func (e *Engine) Describe() tts.EngineDescriptor {
	return tts.EngineDescriptor{
		ID:               "sapi",
		DisplayName:      "System Speech",
		SupportedFormats: []tts.Format{tts.FormatWAV},
		EmitsFormat:      tts.FormatWAV,
		DefaultVoiceID:   "Microsoft Zira",
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
