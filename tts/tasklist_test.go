package tts_test

import (
	"path/filepath"
	"testing"

	"github.com/yhl9/chaptervox/tts"
)

func TestTaskListRoundTrip(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	dir := t.TempDir()
	t1 := addTask(t, s, dir, "a.txt", "first body")
	t2 := addTask(t, s, dir, "b.txt", "second body")
	if err := s.CancelTask(t2.ID); err != nil {
		t.Fatal(err)
	}

	listPath := filepath.Join(dir, "tasks.json")
	if err := s.SaveTaskList(listPath); err != nil {
		t.Fatal(err)
	}

	// A fresh scheduler resumes the batch; both tasks import because
	// pending and cancelled entries are resumable.
	s2, _, _ := newTestScheduler(t)
	n, err := s2.LoadTaskList(listPath)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}
	tasks := s2.Tasks()
	if tasks[0].FilePath != t1.FilePath || tasks[1].FilePath != t2.FilePath {
		t.Error("imported tasks out of order")
	}
	for _, task := range tasks {
		if task.Status != tts.StatusPending {
			t.Errorf("imported task status = %s, want pending", task.Status)
		}
	}
}

func TestImportSkipsCompleted(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	dir := t.TempDir()
	addTask(t, s, dir, "a.txt", "chapter body text")
	if err := s.StartProcessing(); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	list := s.ExportTasks()
	if list.Tasks[0].Status != tts.StatusCompleted {
		t.Fatalf("exported status = %s, want completed", list.Tasks[0].Status)
	}

	s2, _, _ := newTestScheduler(t)
	n, err := s2.ImportTasks(list)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("imported = %d, want 0", n)
	}
}

func TestLoadTaskListMalformed(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	dir := t.TempDir()
	path := writeInput(t, dir, "tasks.json", "{not json")
	if _, err := s.LoadTaskList(path); err == nil {
		t.Fatal("expected error for malformed list")
	}
	if _, err := s.LoadTaskList(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
