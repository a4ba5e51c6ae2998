package tts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yhl9/chaptervox/internal/cache"
	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/audio"
	"github.com/yhl9/chaptervox/tts/engines/mock"
)

func newTestPipeline(t *testing.T, opts ...mock.Option) (*tts.Pipeline, *mock.Engine) {
	t.Helper()
	reg := tts.NewRegistry()
	e := mock.New(opts...)
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	reg.Register(e, true, 50)
	return tts.NewPipeline(reg, audio.NewTranscoder(), nil), e
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testTask(input, outDir string) (*tts.Task, *tts.OutputConfig) {
	output := tts.DefaultOutputConfig(outDir)
	voice := tts.DefaultVoiceConfig("mock", "mock-voice")
	return tts.NewTask("task_1_1700000000", input, outDir, voice, output), output
}

func TestPipelineHappyPath(t *testing.T) {
	p, _ := newTestPipeline(t, mock.WithSRT())
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	input := writeInput(t, dir, "01_intro.txt", "Hello world, this is the opening chapter of the book.")

	task, output := testTask(input, outDir)
	output.GenerateSubtitle = true

	var milestones []int
	meta, err := p.Run(context.Background(), task, func(progress int, remaining float64) {
		milestones = append(milestones, progress)
	})
	if err != nil {
		t.Fatal(err)
	}
	if meta.Format != tts.FormatWAV {
		t.Errorf("format = %q, want wav", meta.Format)
	}
	if meta.Transcoded {
		t.Error("wav output should not need transcoding")
	}
	if meta.SizeBytes == 0 {
		t.Error("size not recorded")
	}
	if _, err := os.Stat(meta.Path); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if !strings.Contains(filepath.Base(meta.Path), "intro") {
		t.Errorf("output name %q does not carry the chapter title", meta.Path)
	}

	// The preview artifact must be cleaned up after a successful run.
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp.wav") {
			t.Errorf("preview file %s left behind", e.Name())
		}
	}

	srtPath := strings.TrimSuffix(meta.Path, filepath.Ext(meta.Path)) + ".srt"
	if _, err := os.Stat(srtPath); err != nil {
		t.Errorf("subtitle sidecar missing: %v", err)
	}

	for _, want := range []int{5, 10, 15, 20, 90} {
		found := false
		for _, got := range milestones {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("milestone %d never reported (got %v)", want, milestones)
		}
	}
	if snap := task.Snapshot(); snap.EstimatedDuration <= 0 {
		t.Error("estimate not recorded on the task")
	}
}

func TestPipelineCacheHitKeepsSubtitle(t *testing.T) {
	reg := tts.NewRegistry()
	e := mock.New(mock.WithSRT())
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	reg.Register(e, true, 50)
	cacheMgr, err := cache.NewManager(cache.Config{MemoryCapacity: 1024 * 1024})
	if err != nil {
		t.Fatal(err)
	}
	p := tts.NewPipeline(reg, audio.NewTranscoder(), cacheMgr)

	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	input := writeInput(t, dir, "02_cached.txt", "The same chapter converted twice in a row.")

	task, output := testTask(input, outDir)
	output.GenerateSubtitle = true
	if _, err := p.Run(context.Background(), task, func(int, float64) {}); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := e.Calls()

	// The second run must be served from the cache and still emit the
	// timing sidecar next to its own output file.
	again, output2 := testTask(input, outDir)
	output2.GenerateSubtitle = true
	meta, err := p.Run(context.Background(), again, func(int, float64) {})
	if err != nil {
		t.Fatal(err)
	}
	if e.Calls() != callsAfterFirst {
		t.Errorf("cached run called the engine: %d -> %d", callsAfterFirst, e.Calls())
	}
	srtPath := strings.TrimSuffix(meta.Path, filepath.Ext(meta.Path)) + ".srt"
	if _, err := os.Stat(srtPath); err != nil {
		t.Errorf("subtitle sidecar missing on cache hit: %v", err)
	}
}

func TestPipelineEmptyInput(t *testing.T) {
	p, _ := newTestPipeline(t)
	dir := t.TempDir()
	input := writeInput(t, dir, "blank.txt", "   \n\n  \t ")

	task, _ := testTask(input, dir)
	_, err := p.Run(context.Background(), task, func(int, float64) {})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if tts.KindOf(err) != tts.KindText {
		t.Errorf("kind = %q, want %q", tts.KindOf(err), tts.KindText)
	}
}

func TestPipelineMissingInput(t *testing.T) {
	p, _ := newTestPipeline(t)
	dir := t.TempDir()
	task, _ := testTask(filepath.Join(dir, "nope.txt"), dir)
	_, err := p.Run(context.Background(), task, func(int, float64) {})
	if err == nil {
		t.Fatal("expected error for missing input")
	}
	if tts.KindOf(err) != tts.KindImport {
		t.Errorf("kind = %q, want %q", tts.KindOf(err), tts.KindImport)
	}
}

func TestPipelineCancelledBeforeStart(t *testing.T) {
	p, _ := newTestPipeline(t)
	dir := t.TempDir()
	input := writeInput(t, dir, "a.txt", "some body text")
	task, _ := testTask(input, dir)
	task.Cancel()
	_, err := p.Run(context.Background(), task, func(int, float64) {})
	if tts.KindOf(err) != tts.KindInvalidState {
		t.Fatalf("kind = %q, want %q", tts.KindOf(err), tts.KindInvalidState)
	}
}

func TestPipelineSynthesisFailure(t *testing.T) {
	p, _ := newTestPipeline(t, mock.WithFailureRate(1.0))
	dir := t.TempDir()
	input := writeInput(t, dir, "a.txt", "some body text")
	task, _ := testTask(input, dir)
	_, err := p.Run(context.Background(), task, func(int, float64) {})
	if !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Fatalf("err = %v, want ErrSynthesisFailed", err)
	}
	if tts.KindOf(err) != tts.KindSynthesis {
		t.Errorf("kind = %q, want %q", tts.KindOf(err), tts.KindSynthesis)
	}
}
