package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/internal/cache"
	"github.com/yhl9/chaptervox/internal/text"
	"github.com/yhl9/chaptervox/tts/audio"
	"github.com/yhl9/chaptervox/tts/subtitle"
)

// Pipeline progress milestones. Between synthesisStart and synthesisCeil the
// progress is time-based, driven by the duration estimate.
const (
	progressLoaded     = 5
	progressProcessed  = 10
	progressPreview    = 15
	synthesisStart     = 20
	synthesisCeil      = 90
	progressPersisted  = 90
	progressCleanedUp  = 95
	progressDone       = 100
	previewChars       = 20
	progressTickPeriod = 2 * time.Second
)

// Pipeline executes one task end to end: load, text processing, preview
// calibration, synthesis, format adaptation and subtitle emission.
type Pipeline struct {
	registry   *Registry
	estimator  *Estimator
	transcoder *audio.Transcoder
	cache      *cache.Manager // optional
}

// NewPipeline assembles a pipeline. cacheMgr may be nil to disable caching.
func NewPipeline(registry *Registry, transcoder *audio.Transcoder, cacheMgr *cache.Manager) *Pipeline {
	return &Pipeline{
		registry:   registry,
		estimator:  NewEstimator(),
		transcoder: transcoder,
		cache:      cacheMgr,
	}
}

// progressFn receives progress percentage and estimated remaining seconds.
type progressFn func(progress int, remaining float64)

// checkpoint returns the error that should abort the pipeline at a stage
// boundary, observing cooperative cancellation and pause state.
func (p *Pipeline) checkpoint(ctx context.Context, t *Task) error {
	for {
		if t.Cancelled() {
			return NewConvertError(KindInvalidState, "checkpoint", context.Canceled)
		}
		if err := ctx.Err(); err != nil {
			return NewConvertError(KindInvalidState, "checkpoint", err)
		}
		if t.CurrentStatus() != StatusPaused {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Run executes the task and returns metadata about the produced audio.
// Progress callbacks fire at stage boundaries and on the timed loop during
// synthesis.
func (p *Pipeline) Run(ctx context.Context, t *Task, report progressFn) (*AudioMeta, error) {
	output := t.Output
	if output == nil {
		output = DefaultOutputConfig(filepath.Dir(t.OutputPath))
	}

	// Stage 1: load the input file.
	if err := p.checkpoint(ctx, t); err != nil {
		return nil, err
	}
	fullText, err := text.Extract(t.FilePath)
	if err != nil {
		return nil, NewConvertError(KindImport, "load input", err)
	}
	report(progressLoaded, 0)

	// Stage 2: text processing.
	if err := p.checkpoint(ctx, t); err != nil {
		return nil, err
	}
	if strings.TrimSpace(fullText) == "" {
		return nil, NewConvertError(KindText, "process text", ErrEmptyText)
	}
	chapter := p.chapterInfo(t, fullText)
	report(progressProcessed, 0)

	// Resolve and validate the engine configuration.
	engine, err := p.registry.Resolve(t.Voice.EngineID)
	if err != nil {
		return nil, NewConvertError(KindEngineUnavailable, "resolve engine", err).WithEngine(t.Voice.EngineID)
	}
	engineID := engine.Describe().ID
	cfg, err := engine.Validate(t.Voice)
	if err != nil {
		return nil, NewConvertError(KindConfig, "validate config", err).WithEngine(engineID)
	}

	base := BaseName(*output, chapter)
	targetPath := UniquePath(output.OutputDir, base, string(output.Format))

	// Cached audio skips preview and synthesis entirely.
	var result *SynthesisResult
	cacheKey := cache.Key{
		Text: fullText, Engine: engineID, Voice: cfg.VoiceName,
		Rate: cfg.Rate, Pitch: cfg.Pitch, Volume: cfg.Volume, Emotion: cfg.Emotion,
		Format: string(output.Format),
	}
	if p.cache != nil {
		if entry, ok := p.cache.Get(cacheKey); ok {
			log.Debug("cache hit", "task", t.ID, "engine", engineID)
			result = &SynthesisResult{
				Success: true,
				Audio:   entry.Audio,
				Metadata: ResultMetadata{
					SRTContent: entry.SRTContent,
					HasSRT:     entry.SRTContent != "",
				},
			}
			report(synthesisCeil, 0)
		}
	}

	if result == nil {
		// Stage 3: preview synthesis calibrates the duration estimate. The
		// preview is always WAV regardless of the task's target format.
		if err := p.checkpoint(ctx, t); err != nil {
			return nil, err
		}
		previewText := text.Preview(fullText, previewChars)
		previewCfg := cfg.Clone()
		previewCfg.OutputFormat = FormatWAV
		previewPath := filepath.Join(output.OutputDir, base+".tmp.wav")

		previewStart := time.Now()
		previewRes, err := engine.Synthesize(ctx, previewText, previewCfg)
		tPreview := time.Since(previewStart)
		if err != nil {
			return nil, p.classify(err, "preview synthesis", engineID)
		}
		if err := os.MkdirAll(output.OutputDir, 0o755); err != nil {
			return nil, NewConvertError(KindFilesystem, "create output dir", err)
		}
		if err := os.WriteFile(previewPath, previewRes.Audio, 0o644); err != nil {
			return nil, NewConvertError(KindFilesystem, "write preview", err)
		}
		report(progressPreview, 0)

		estimate := p.estimator.EstimateDuration(engineID, previewText, tPreview, fullText)
		t.setEstimate(estimate, estimate)
		log.Debug("synthesis estimated", "task", t.ID, "engine", engineID,
			"estimate_s", estimate, "preview_ms", tPreview.Milliseconds())

		// Stage 4: full synthesis with the timed progress loop.
		result, err = p.synthesize(ctx, t, engine, fullText, cfg, estimate, report)
		if err != nil {
			os.Remove(previewPath)
			return nil, err
		}
		if p.cache != nil {
			p.cache.Put(cacheKey, cache.Entry{
				Audio:      result.Audio,
				SRTContent: result.Metadata.SRTContent,
			})
		}

		// Stage 6: the preview file is removed once the real output exists.
		defer func() {
			if err := os.Remove(previewPath); err != nil && !os.IsNotExist(err) {
				log.Warn("removing preview file", "path", previewPath, "err", err)
			}
			report(progressCleanedUp, 0)
		}()
	}

	// Stage 5: format adaptation and persistence.
	if err := p.checkpoint(ctx, t); err != nil {
		return nil, err
	}
	persisted, err := audio.Persist(ctx, p.transcoder, result.Audio, targetPath,
		audio.TranscodeParams{
			Format:     audio.Format(output.Format),
			Bitrate:    output.Bitrate,
			SampleRate: output.SampleRate,
			Channels:   output.Channels,
		}, output.Normalize)
	if err != nil {
		return nil, NewConvertError(KindTranscode, "persist audio", errors.Join(ErrTranscodeFailed, err))
	}
	report(progressPersisted, 0)

	if output.GenerateSubtitle {
		if err := p.writeSubtitle(result, persisted.Path, output); err != nil {
			// Subtitles are a sidecar; their failure does not fail the task.
			log.Warn("subtitle generation failed", "task", t.ID, "err", err)
		}
	}

	meta := &AudioMeta{
		Path:       persisted.Path,
		Format:     Format(persisted.Detected),
		Duration:   result.Duration,
		SizeBytes:  persisted.SizeBytes,
		Transcoded: persisted.Transcoded,
	}
	if meta.Transcoded {
		meta.Format = output.Format
	}
	return meta, nil
}

// synthesize runs the engine call concurrently with the timed progress
// loop. Progress during synthesis is purely time-based against the
// estimate, capped at the synthesis ceiling.
func (p *Pipeline) synthesize(ctx context.Context, t *Task, engine Engine, fullText string, cfg VoiceConfig, estimate float64, report progressFn) (*SynthesisResult, error) {
	engineID := engine.Describe().ID

	type outcome struct {
		res *SynthesisResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := engine.Synthesize(ctx, fullText, cfg)
		done <- outcome{res, err}
	}()

	start := time.Now()
	report(synthesisStart, estimate)
	ticker := time.NewTicker(progressTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case out := <-done:
			if out.err != nil {
				return nil, p.classify(out.err, "synthesize", engineID)
			}
			// A cancellation raised during the call discards the output.
			if t.Cancelled() {
				return nil, NewConvertError(KindInvalidState, "synthesize", context.Canceled)
			}
			return out.res, nil
		case <-ticker.C:
			if t.Cancelled() {
				// Let the engine call finish; its result is discarded above.
				continue
			}
			elapsed := time.Since(start)
			prog := p.estimator.ProgressAt(elapsed, estimate)
			if prog > synthesisCeil {
				prog = synthesisCeil
			}
			remaining := p.estimator.RemainingAt(elapsed, estimate)
			t.setEstimate(estimate, remaining)
			report(prog, remaining)
		}
	}
}

// classify wraps an engine error with its taxonomy kind.
func (p *Pipeline) classify(err error, op, engineID string) error {
	var ce *ConvertError
	if errors.As(err, &ce) {
		return err
	}
	kind := KindSynthesis
	switch {
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrEngineClosed):
		kind = KindEngineUnavailable
	case errors.Is(err, ErrVoiceUnknown):
		kind = KindVoiceUnknown
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindNetwork
	}
	return NewConvertError(kind, op, err).WithEngine(engineID)
}

// chapterInfo derives naming metadata from the filename, falling back to
// the first line of the body.
func (p *Pipeline) chapterInfo(t *Task, body string) ChapterInfo {
	stem := strings.TrimSuffix(filepath.Base(t.FilePath), filepath.Ext(t.FilePath))
	num, title := text.ParseChapterHeading(stem)
	if num == 0 {
		line, _, _ := strings.Cut(body, "\n")
		if n, heading := text.ParseChapterHeading(strings.TrimSpace(line)); n > 0 {
			num, title = n, heading
		}
	}
	return ChapterInfo{
		Number:           num,
		Index:            t.index,
		Title:            title,
		OriginalFilename: filepath.Base(t.FilePath),
	}
}

// writeSubtitle converts engine timing data into the configured sidecar.
func (p *Pipeline) writeSubtitle(res *SynthesisResult, audioPath string, output *OutputConfig) error {
	if !res.Metadata.HasSRT || res.Metadata.SRTContent == "" {
		return fmt.Errorf("engine provided no timing data")
	}
	cues, err := subtitle.ParseSRT(res.Metadata.SRTContent)
	if err != nil {
		return err
	}
	if len(cues) == 0 {
		return fmt.Errorf("timing data carried no cues")
	}
	var style subtitle.Style
	if len(output.SubtitleStyle) > 0 {
		// A malformed style block falls back to the defaults.
		_ = json.Unmarshal(output.SubtitleStyle, &style)
	}
	_, err = subtitle.WriteSidecar(audioPath, cues, subtitle.SidecarOptions{
		Format:   subtitle.Format(output.SubtitleFormat),
		Encoding: output.SubtitleEncoding,
		Offset:   time.Duration(output.SubtitleOffset * float64(time.Second)),
		Style:    style,
	})
	return err
}
