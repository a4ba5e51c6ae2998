package tts

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// StatusPending indicates the task is waiting in the queue.
	StatusPending TaskStatus = "pending"
	// StatusProcessing indicates a worker is running the task's pipeline.
	StatusProcessing TaskStatus = "processing"
	// StatusPaused indicates the task was paused by an external request.
	StatusPaused TaskStatus = "paused"
	// StatusCompleted indicates the task finished and its output exists.
	StatusCompleted TaskStatus = "completed"
	// StatusFailed indicates the pipeline failed; the error is recorded.
	StatusFailed TaskStatus = "failed"
	// StatusCancelled indicates the task was cancelled before completion.
	StatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is final. Terminal tasks are never
// re-dispatched; they may only re-enter the queue via an explicit requeue,
// which resets them to pending.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// taskTransitions is the set of legal lifecycle transitions. Requeueing a
// failed or cancelled task is modelled as the transition back to pending.
var taskTransitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:     {StatusProcessing, StatusCancelled},
	StatusFailed:     {StatusPending},
	StatusCancelled:  {StatusPending},
	StatusCompleted:  {},
}

// CanTransition reports whether from → to is a legal lifecycle transition.
func CanTransition(from, to TaskStatus) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AudioMeta describes the audio a completed task produced.
type AudioMeta struct {
	Path       string  `json:"path"`
	Format     Format  `json:"format"`
	Duration   float64 `json:"duration_s"`
	SizeBytes  int64   `json:"size_bytes"`
	Transcoded bool    `json:"transcoded"`
}

// Task is one scheduled conversion job. Identity and request fields are set
// at creation and never change; status, progress and timing fields are
// guarded by the task's mutex and mutated by the scheduler and the pipeline.
type Task struct {
	mu sync.Mutex

	// Identity (immutable after creation)
	ID         string `json:"id"`
	FilePath   string `json:"file_path"`
	OutputPath string `json:"output_path"`

	// Request (deep-copied on enqueue)
	Voice  VoiceConfig   `json:"voice_config"`
	Output *OutputConfig `json:"-"`

	// State
	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`

	EstimatedDuration  float64 `json:"estimated_duration_s"`
	EstimatedRemaining float64 `json:"estimated_remaining_s"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	Result       *AudioMeta `json:"result,omitempty"`

	// index is the task's 1-based position in the batch, used for output
	// naming. Set by the scheduler on enqueue.
	index int

	// cancelFlag is the cooperative cancellation signal the pipeline
	// observes at checkpoints.
	cancelFlag atomic.Bool
}

// NewTask creates a pending task with a deep copy of the voice config.
func NewTask(id, filePath, outputPath string, voice VoiceConfig, output *OutputConfig) *Task {
	return &Task{
		ID:         id,
		FilePath:   filePath,
		OutputPath: outputPath,
		Voice:      voice.Clone(),
		Output:     output,
		Status:     StatusPending,
	}
}

// Snapshot returns a consistent copy of the task's mutable state for
// external readers. The embedded mutex and cancel flag are not copied.
func (t *Task) Snapshot() Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := Task{
		index:              t.index,
		ID:                 t.ID,
		FilePath:           t.FilePath,
		OutputPath:         t.OutputPath,
		Voice:              t.Voice.Clone(),
		Output:             t.Output,
		Status:             t.Status,
		Progress:           t.Progress,
		EstimatedDuration:  t.EstimatedDuration,
		EstimatedRemaining: t.EstimatedRemaining,
		ErrorMessage:       t.ErrorMessage,
	}
	if t.StartTime != nil {
		st := *t.StartTime
		out.StartTime = &st
	}
	if t.EndTime != nil {
		et := *t.EndTime
		out.EndTime = &et
	}
	if t.Result != nil {
		r := *t.Result
		out.Result = &r
	}
	return out
}

// CurrentStatus returns the task's status.
func (t *Task) CurrentStatus() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Status
}

// CurrentProgress returns the task's progress percentage.
func (t *Task) CurrentProgress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Progress
}

// Cancel raises the cooperative cancellation flag. The pipeline observes it
// before the next stage and between progress-loop iterations; an in-flight
// engine call is allowed to finish and its output is discarded.
func (t *Task) Cancel() {
	t.cancelFlag.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (t *Task) Cancelled() bool {
	return t.cancelFlag.Load()
}

// transition moves the task to the given status, enforcing the lifecycle
// table. Transitions to processing set the start time; transitions to a
// terminal state set the end time and clamp the remaining estimate to zero.
func (t *Task) transition(to TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, t.Status, to)
	}
	t.Status = to
	now := time.Now()
	switch to {
	case StatusProcessing:
		if t.StartTime == nil {
			t.StartTime = &now
		}
	case StatusCompleted, StatusFailed, StatusCancelled:
		t.EndTime = &now
		t.EstimatedRemaining = 0
	case StatusPending:
		// Requeue: reset the per-run fields.
		t.Progress = 0
		t.StartTime = nil
		t.EndTime = nil
		t.ErrorMessage = ""
		t.Result = nil
		t.EstimatedDuration = 0
		t.EstimatedRemaining = 0
		t.cancelFlag.Store(false)
	}
	return nil
}

// setProgress updates the progress percentage, clamped to 0..100.
func (t *Task) setProgress(p int) {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	t.mu.Lock()
	t.Progress = p
	t.mu.Unlock()
}

// setEstimate records the estimated total and remaining seconds.
func (t *Task) setEstimate(total, remaining float64) {
	if remaining < 0 {
		remaining = 0
	}
	t.mu.Lock()
	t.EstimatedDuration = total
	t.EstimatedRemaining = remaining
	t.mu.Unlock()
}

// fail records the error message. The status transition is done separately
// so the scheduler can publish the event with the message attached.
func (t *Task) fail(msg string) {
	t.mu.Lock()
	t.ErrorMessage = msg
	t.mu.Unlock()
}

// setResult records metadata about the produced audio.
func (t *Task) setResult(meta *AudioMeta) {
	t.mu.Lock()
	t.Result = meta
	t.mu.Unlock()
}
