package tts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// taskListVersion stamps exported task lists so future format changes can
// be detected on import.
const taskListVersion = "1.0"

// TaskListEntry is the serialized form of one task in an exported list.
type TaskListEntry struct {
	ID           string        `json:"id"`
	FilePath     string        `json:"file_path"`
	OutputPath   string        `json:"output_path"`
	Voice        VoiceConfig   `json:"voice_config"`
	Output       *OutputConfig `json:"output_config,omitempty"`
	Status       TaskStatus    `json:"status"`
	Progress     int           `json:"progress"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Result       *AudioMeta    `json:"result,omitempty"`
}

// TaskList is the on-disk task list document.
type TaskList struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Tasks      []TaskListEntry `json:"tasks"`
}

// ExportTasks serializes every task, terminal ones included, so a batch can
// be inspected or resumed later.
func (s *Scheduler) ExportTasks() TaskList {
	snapshots := s.Tasks()
	list := TaskList{
		Version:    taskListVersion,
		ExportedAt: time.Now(),
		Tasks:      make([]TaskListEntry, 0, len(snapshots)),
	}
	for _, t := range snapshots {
		list.Tasks = append(list.Tasks, TaskListEntry{
			ID:           t.ID,
			FilePath:     t.FilePath,
			OutputPath:   t.OutputPath,
			Voice:        t.Voice,
			Output:       t.Output,
			Status:       t.Status,
			Progress:     t.Progress,
			ErrorMessage: t.ErrorMessage,
			Result:       t.Result,
		})
	}
	return list
}

// SaveTaskList writes the current task list to path as JSON.
func (s *Scheduler) SaveTaskList(path string) error {
	list := s.ExportTasks()
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Debug("task list saved", "path", path, "tasks", len(list.Tasks))
	return nil
}

// ImportTasks enqueues the resumable entries of a task list: pending, failed
// and cancelled tasks come back as fresh pending tasks with new ids.
// Completed and in-flight entries are skipped. Returns the number imported.
func (s *Scheduler) ImportTasks(list TaskList) (int, error) {
	if s.closed.Load() {
		return 0, ErrSchedulerClosed
	}
	imported := 0
	for _, entry := range list.Tasks {
		switch entry.Status {
		case StatusPending, StatusFailed, StatusCancelled:
		default:
			log.Debug("skipping task on import", "task", entry.ID, "status", entry.Status)
			continue
		}
		if _, err := s.AddTask(entry.FilePath, entry.OutputPath, entry.Voice, entry.Output); err != nil {
			return imported, fmt.Errorf("importing %s: %w", entry.ID, err)
		}
		imported++
	}
	log.Info("task list imported", "imported", imported, "skipped", len(list.Tasks)-imported)
	return imported, nil
}

// LoadTaskList reads a task list from path and enqueues its resumable
// entries.
func (s *Scheduler) LoadTaskList(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	var list TaskList
	if err := json.Unmarshal(data, &list); err != nil {
		return 0, fmt.Errorf("%w: malformed task list: %v", ErrImportFailed, err)
	}
	return s.ImportTasks(list)
}
