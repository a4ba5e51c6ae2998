package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/audio"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	s := tts.NewScheduler(tts.NewPipeline(tts.NewRegistry(), audio.NewTranscoder(), nil), 1)
	t.Cleanup(func() { s.Close() })
	return &Model{
		cfg:       Config{ShowCompleted: true},
		scheduler: s,
		index:     make(map[string]int),
		bar:       progress.New(progress.WithDefaultGradient()),
		width:     80,
	}
}

func taskSnapshot(id, path string, status tts.TaskStatus, progress int) tts.Task {
	task := tts.NewTask(id, path, "out", tts.DefaultVoiceConfig("mock", "v"), nil)
	snap := task.Snapshot()
	snap.Status = status
	snap.Progress = progress
	return snap
}

func TestApplyUpsertsRows(t *testing.T) {
	m := newTestModel(t)
	m.apply(tts.Event{Type: tts.EventTaskAdded, Task: taskSnapshot("task_1_1", "a.txt", tts.StatusPending, 0)})
	m.apply(tts.Event{Type: tts.EventTaskAdded, Task: taskSnapshot("task_2_1", "b.txt", tts.StatusPending, 0)})
	if len(m.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.rows))
	}

	m.apply(tts.Event{Type: tts.EventTaskProgress, Task: taskSnapshot("task_1_1", "a.txt", tts.StatusProcessing, 42)})
	if len(m.rows) != 2 {
		t.Fatalf("progress event duplicated the row: %d", len(m.rows))
	}
	if m.rows[0].progress != 42 || m.rows[0].status != tts.StatusProcessing {
		t.Errorf("row not updated: %+v", m.rows[0])
	}
}

func TestApplyOverallProgress(t *testing.T) {
	m := newTestModel(t)
	m.apply(tts.Event{Type: tts.EventOverallProgress, Overall: 62.5})
	if m.overall != 62.5 {
		t.Errorf("overall = %v, want 62.5", m.overall)
	}
}

func TestApplyRemoveReindexes(t *testing.T) {
	m := newTestModel(t)
	for _, id := range []string{"task_1_1", "task_2_1", "task_3_1"} {
		m.apply(tts.Event{Type: tts.EventTaskAdded, Task: taskSnapshot(id, id+".txt", tts.StatusPending, 0)})
	}
	m.apply(tts.Event{Type: tts.EventTaskRemoved, Task: taskSnapshot("task_2_1", "task_2_1.txt", tts.StatusPending, 0)})
	if len(m.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.rows))
	}
	if i := m.index["task_3_1"]; i != 1 {
		t.Errorf("index not rebuilt: task_3_1 at %d", i)
	}
}

func TestViewShowsTasks(t *testing.T) {
	m := newTestModel(t)
	m.bar.Width = 40
	m.apply(tts.Event{Type: tts.EventTaskAdded, Task: taskSnapshot("task_1_1", "book/chapter_one.txt", tts.StatusPending, 0)})
	failed := taskSnapshot("task_2_1", "book/chapter_two.txt", tts.StatusFailed, 0)
	failed.ErrorMessage = "engine exploded"
	m.apply(tts.Event{Type: tts.EventTaskFailed, Task: failed})

	view := m.View()
	for _, want := range []string{"chapter_one.txt", "chapter_two.txt", "engine exploded", "1 failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewHidesCompletedWhenConfigured(t *testing.T) {
	m := newTestModel(t)
	m.cfg.ShowCompleted = false
	m.bar.Width = 40
	m.apply(tts.Event{Type: tts.EventTaskCompleted, Task: taskSnapshot("task_1_1", "done.txt", tts.StatusCompleted, 100)})
	if strings.Contains(m.View(), "done.txt") {
		t.Error("completed row rendered despite ShowCompleted=false")
	}
}
