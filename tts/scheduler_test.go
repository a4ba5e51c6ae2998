package tts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/audio"
	"github.com/yhl9/chaptervox/tts/engines/mock"
)

// eventLog collects published events so tests can assert on them after the
// scheduler drains.
type eventLog struct {
	mu     sync.Mutex
	events []tts.Event
}

func (l *eventLog) record(ev tts.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) ofType(t tts.EventType) []tts.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []tts.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestScheduler(t *testing.T, opts ...mock.Option) (*tts.Scheduler, *mock.Engine, *eventLog) {
	t.Helper()
	reg := tts.NewRegistry()
	e := mock.New(opts...)
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	reg.Register(e, true, 50)
	s := tts.NewScheduler(tts.NewPipeline(reg, audio.NewTranscoder(), nil), 1)
	log := &eventLog{}
	s.OnEvent(log.record)
	t.Cleanup(func() { s.Close() })
	return s, e, log
}

func addTask(t *testing.T, s *tts.Scheduler, dir, name, content string) *tts.Task {
	t.Helper()
	input := writeInput(t, dir, name, content)
	outDir := filepath.Join(dir, "out")
	task, err := s.AddTask(input, outDir, tts.DefaultVoiceConfig("mock", "mock-voice"), tts.DefaultOutputConfig(outDir))
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestAddTaskAssignsSequencedIDs(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	dir := t.TempDir()
	t1 := addTask(t, s, dir, "a.txt", "first body")
	t2 := addTask(t, s, dir, "b.txt", "second body")
	if !strings.HasPrefix(t1.ID, "task_1_") {
		t.Errorf("first id = %q", t1.ID)
	}
	if !strings.HasPrefix(t2.ID, "task_2_") {
		t.Errorf("second id = %q", t2.ID)
	}
	if got := len(s.Tasks()); got != 2 {
		t.Errorf("task count = %d, want 2", got)
	}
}

func TestAddTaskRejectsBadVoice(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	voice := tts.DefaultVoiceConfig("mock", "mock-voice")
	voice.Rate = 5.0
	_, err := s.AddTask("in.txt", "out", voice, nil)
	if !errors.Is(err, tts.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestSchedulerProcessesFIFO(t *testing.T) {
	s, _, log := newTestScheduler(t)
	dir := t.TempDir()
	t1 := addTask(t, s, dir, "01_alpha.txt", "alpha chapter body text")
	t2 := addTask(t, s, dir, "02_beta.txt", "beta chapter body text")
	t3 := addTask(t, s, dir, "03_gamma.txt", "gamma chapter body text")

	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	s.Close() // drains the event queue

	for _, task := range []*tts.Task{t1, t2, t3} {
		snap := task.Snapshot()
		if snap.Status != tts.StatusCompleted {
			t.Errorf("%s status = %s, want completed (%s)", snap.ID, snap.Status, snap.ErrorMessage)
		}
		if snap.Progress != 100 {
			t.Errorf("%s progress = %d, want 100", snap.ID, snap.Progress)
		}
		if snap.Result == nil {
			t.Errorf("%s has no result", snap.ID)
		} else if _, err := os.Stat(snap.Result.Path); err != nil {
			t.Errorf("%s output missing: %v", snap.ID, err)
		}
	}

	completed := log.ofType(tts.EventTaskCompleted)
	if len(completed) != 3 {
		t.Fatalf("completed events = %d, want 3", len(completed))
	}
	want := []string{t1.ID, t2.ID, t3.ID}
	for i, ev := range completed {
		if ev.Task.ID != want[i] {
			t.Errorf("completion %d = %s, want %s", i, ev.Task.ID, want[i])
		}
	}
	if len(log.ofType(tts.EventOverallProgress)) == 0 {
		t.Error("no overall progress events published")
	}
}

func TestStartRejectedWhileProcessing(t *testing.T) {
	s, _, _ := newTestScheduler(t, mock.WithDelay(300*time.Millisecond))
	dir := t.TempDir()
	addTask(t, s, dir, "a.txt", "slow chapter body")

	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.StartProcessing(); !errors.Is(err, tts.ErrInvalidState) {
		t.Errorf("second start err = %v, want ErrInvalidState", err)
	}
	s.Wait()
}

func TestStartWithNothingRunnable(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if err := s.StartProcessing(); !errors.Is(err, tts.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestStopCancelsQueueAndInFlight(t *testing.T) {
	s, _, log := newTestScheduler(t, mock.WithDelay(250*time.Millisecond))
	dir := t.TempDir()
	t1 := addTask(t, s, dir, "a.txt", "first body")
	t2 := addTask(t, s, dir, "b.txt", "second body")

	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.StopProcessing(); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	s.Close()

	if got := t1.CurrentStatus(); got != tts.StatusCancelled {
		t.Errorf("in-flight task status = %s, want cancelled", got)
	}
	if got := t2.CurrentStatus(); got != tts.StatusCancelled {
		t.Errorf("queued task status = %s, want cancelled", got)
	}
	if len(log.ofType(tts.EventTaskCancelled)) == 0 {
		t.Error("no cancellation events published")
	}
}

func TestRequeueFailedTasks(t *testing.T) {
	s, e, _ := newTestScheduler(t, mock.WithFailureRate(1.0))
	dir := t.TempDir()
	task := addTask(t, s, dir, "a.txt", "doomed chapter body")

	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	if got := task.CurrentStatus(); got != tts.StatusFailed {
		t.Fatalf("status = %s, want failed", got)
	}
	if task.Snapshot().ErrorMessage == "" {
		t.Error("failure left no error message")
	}
	firstCalls := e.Calls()

	// A second start re-enqueues the failed task through pending.
	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	if got := task.CurrentStatus(); got != tts.StatusFailed {
		t.Errorf("status after requeue = %s, want failed", got)
	}
	if e.Calls() <= firstCalls {
		t.Error("requeued task never reached the engine")
	}
}

func TestRemoveTaskWhileProcessing(t *testing.T) {
	s, _, _ := newTestScheduler(t, mock.WithDelay(300*time.Millisecond))
	dir := t.TempDir()
	task := addTask(t, s, dir, "a.txt", "slow chapter body")

	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	// Removing an in-flight task cancels it but keeps it in the list.
	if err := s.RemoveTask(task.ID); err != nil {
		t.Fatalf("removing in-flight task: %v", err)
	}
	if _, err := s.Task(task.ID); err != nil {
		t.Fatalf("in-flight task left the list: %v", err)
	}
	s.Wait()
	if got := task.CurrentStatus(); got != tts.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got)
	}
	if err := s.RemoveTask(task.ID); err != nil {
		t.Errorf("removing a finished task: %v", err)
	}
	if _, err := s.Task(task.ID); !errors.Is(err, tts.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestCancelPendingTask(t *testing.T) {
	s, _, log := newTestScheduler(t)
	dir := t.TempDir()
	task := addTask(t, s, dir, "a.txt", "body")

	if err := s.CancelTask(task.ID); err != nil {
		t.Fatal(err)
	}
	if got := task.CurrentStatus(); got != tts.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	// Terminal tasks cannot be cancelled again.
	if err := s.CancelTask(task.ID); !errors.Is(err, tts.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
	s.Close()
	if len(log.ofType(tts.EventTaskCancelled)) != 1 {
		t.Error("cancellation event not published exactly once")
	}
}

func TestPauseAndResume(t *testing.T) {
	s, _, log := newTestScheduler(t, mock.WithDelay(200*time.Millisecond))
	dir := t.TempDir()
	task := addTask(t, s, dir, "a.txt", "pausable chapter body")

	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := s.PauseProcessing(); err != nil {
		t.Fatal(err)
	}
	if got := task.CurrentStatus(); got != tts.StatusPaused {
		t.Fatalf("status = %s, want paused", got)
	}
	if !s.IsPaused() {
		t.Error("scheduler does not report paused")
	}

	if err := s.ResumeProcessing(); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	s.Close()

	if got := task.CurrentStatus(); got != tts.StatusCompleted {
		t.Errorf("status = %s, want completed (%s)", got, task.Snapshot().ErrorMessage)
	}
	if len(log.ofType(tts.EventTaskPaused)) != 1 || len(log.ofType(tts.EventTaskResumed)) != 1 {
		t.Error("pause/resume events not published")
	}
}

func TestUpdateTaskConfig(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	dir := t.TempDir()
	task := addTask(t, s, dir, "a.txt", "body")

	voice := tts.DefaultVoiceConfig("mock", "mock-voice-zh")
	voice.Rate = 1.5
	if err := s.UpdateTask(task.ID, voice, tts.DefaultOutputConfig(dir)); err != nil {
		t.Fatal(err)
	}
	if got := task.Snapshot().Voice; got.VoiceName != "mock-voice-zh" || got.Rate != 1.5 {
		t.Errorf("voice not updated: %+v", got)
	}
}

func TestCloseRejectsNewWork(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.Close()
	_, err := s.AddTask("in.txt", "out", tts.DefaultVoiceConfig("mock", "mock-voice"), nil)
	if !errors.Is(err, tts.ErrSchedulerClosed) {
		t.Fatalf("err = %v, want ErrSchedulerClosed", err)
	}
}
