package tts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Scheduler owns the task queue and the worker that drains it. Tasks are
// dispatched strictly in insertion order; by default a single worker runs
// so chapters convert sequentially.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	order   []string // insertion order of all tasks
	queue   []string // FIFO of task ids awaiting a worker
	seq     int
	nextIdx int

	pipeline *Pipeline
	pub      *publisher
	workers  int

	running atomic.Bool
	paused  atomic.Bool
	closed  atomic.Bool

	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// NewScheduler creates a scheduler draining the queue with the given number
// of workers. Workers below one are clamped to one.
func NewScheduler(pipeline *Pipeline, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		tasks:    make(map[string]*Task),
		pipeline: pipeline,
		pub:      newPublisher(),
		workers:  workers,
	}
}

// OnEvent registers a handler for scheduler events. Handlers run outside
// scheduler locks.
func (s *Scheduler) OnEvent(h EventHandler) {
	s.pub.addHandler(h)
}

// Subscribe returns a channel of scheduler events for UI consumption.
func (s *Scheduler) Subscribe() <-chan Event {
	return s.pub.subscribe()
}

// AddTask enqueues a conversion job and returns its id. Task ids embed the
// sequence number and the creation time.
func (s *Scheduler) AddTask(filePath, outputPath string, voice VoiceConfig, output *OutputConfig) (*Task, error) {
	if s.closed.Load() {
		return nil, ErrSchedulerClosed
	}
	if err := voice.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.seq++
	s.nextIdx++
	id := fmt.Sprintf("task_%d_%d", s.seq, time.Now().Unix())
	t := NewTask(id, filePath, outputPath, voice, output)
	t.index = s.nextIdx
	s.tasks[id] = t
	s.order = append(s.order, id)
	s.queue = append(s.queue, id)
	s.mu.Unlock()

	log.Debug("task added", "task", id, "file", filePath)
	s.pub.emit(Event{Type: EventTaskAdded, Task: t.Snapshot()})
	return t, nil
}

// Task returns the task with the given id.
func (s *Scheduler) Task(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	return t, nil
}

// Tasks returns snapshots of every task in insertion order.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Snapshot())
	}
	return out
}

// RemoveTask deletes a task from the list. A processing task is not
// deleted; it is cancelled in place and stays in the list, transitioning
// once the pipeline observes the flag.
func (s *Scheduler) RemoveTask(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	if t.CurrentStatus() == StatusProcessing {
		t.Cancel()
		s.mu.Unlock()
		log.Debug("removal of in-flight task downgraded to cancel", "task", id)
		return nil
	}
	if t.CurrentStatus() == StatusPaused {
		// Wake the worker blocked at the pause checkpoint.
		t.Cancel()
	}
	delete(s.tasks, id)
	s.order = removeID(s.order, id)
	s.queue = removeID(s.queue, id)
	s.mu.Unlock()

	s.pub.emit(Event{Type: EventTaskRemoved, Task: t.Snapshot()})
	return nil
}

// UpdateTask replaces the voice and output configuration of a task that is
// not currently processing.
func (s *Scheduler) UpdateTask(id string, voice VoiceConfig, output *OutputConfig) error {
	if err := voice.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	if t.CurrentStatus() == StatusProcessing {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTaskProcessing, id)
	}
	t.mu.Lock()
	t.Voice = voice.Clone()
	t.Output = output
	t.mu.Unlock()
	s.mu.Unlock()

	s.pub.emit(Event{Type: EventTaskUpdated, Task: t.Snapshot()})
	return nil
}

// StartProcessing begins draining the queue. It is rejected while any task
// is processing or paused. Failed and cancelled tasks are re-enqueued in
// their original order alongside pending ones.
func (s *Scheduler) StartProcessing() error {
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	s.mu.Lock()
	for _, id := range s.order {
		switch s.tasks[id].CurrentStatus() {
		case StatusProcessing, StatusPaused:
			s.mu.Unlock()
			return fmt.Errorf("%w: task %s is %s", ErrInvalidState, id, s.tasks[id].CurrentStatus())
		}
	}

	s.queue = s.queue[:0]
	for _, id := range s.order {
		t := s.tasks[id]
		switch t.CurrentStatus() {
		case StatusPending:
			s.queue = append(s.queue, id)
		case StatusFailed, StatusCancelled:
			if err := t.transition(StatusPending); err == nil {
				s.queue = append(s.queue, id)
			}
		}
	}
	pending := len(s.queue)
	s.mu.Unlock()

	if pending == 0 {
		return fmt.Errorf("%w: no runnable tasks", ErrInvalidState)
	}
	if s.running.CompareAndSwap(false, true) {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelRun = cancel
		s.paused.Store(false)
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker(ctx)
		}
	}
	log.Info("processing started", "queued", pending, "workers", s.workers)
	return nil
}

// worker drains the queue, polling with a short sleep when it is empty or
// the scheduler is paused.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if s.paused.Load() {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		t := s.dequeue()
		if t == nil {
			if s.drained() {
				s.running.Store(false)
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		s.runTask(ctx, t)
	}
}

// dequeue pops the next pending task, skipping ids whose task has moved out
// of pending since it was queued.
func (s *Scheduler) dequeue() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		t, ok := s.tasks[id]
		if !ok || t.CurrentStatus() != StatusPending {
			continue
		}
		return t
	}
	return nil
}

// drained reports whether no queued or in-flight work remains.
func (s *Scheduler) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		return false
	}
	for _, t := range s.tasks {
		switch t.CurrentStatus() {
		case StatusProcessing, StatusPaused:
			return false
		}
	}
	return true
}

// runTask executes one task's pipeline, translating the outcome into
// lifecycle transitions and events.
func (s *Scheduler) runTask(ctx context.Context, t *Task) {
	if err := t.transition(StatusProcessing); err != nil {
		return
	}
	s.pub.emit(Event{Type: EventTaskStarted, Task: t.Snapshot()})

	report := func(progress int, remaining float64) {
		t.setProgress(progress)
		s.pub.emit(Event{
			Type: EventTaskProgress, Task: t.Snapshot(),
			Progress: progress, Remaining: remaining,
		})
		s.emitOverall()
	}

	meta, err := s.pipeline.Run(ctx, t, report)

	// A pause raised after the pipeline's last checkpoint leaves the task
	// paused even though the work is done; unpause before finalizing.
	if t.CurrentStatus() == StatusPaused {
		if terr := t.transition(StatusProcessing); terr != nil {
			log.Error("unpausing finished task", "task", t.ID, "err", terr)
		}
	}

	switch {
	case err == nil:
		t.setResult(meta)
		t.setProgress(progressDone)
		if terr := t.transition(StatusCompleted); terr != nil {
			log.Error("completing task", "task", t.ID, "err", terr)
		}
		log.Info("task completed", "task", t.ID, "output", meta.Path)
		s.pub.emit(Event{Type: EventTaskCompleted, Task: t.Snapshot(), Progress: progressDone})
	case t.Cancelled():
		// StopProcessing may already have transitioned a paused task.
		if t.CurrentStatus() != StatusCancelled {
			if terr := t.transition(StatusCancelled); terr != nil {
				log.Error("cancelling task", "task", t.ID, "err", terr)
			}
			s.pub.emit(Event{Type: EventTaskCancelled, Task: t.Snapshot()})
		}
		log.Info("task cancelled", "task", t.ID)
	default:
		t.fail(err.Error())
		if terr := t.transition(StatusFailed); terr != nil {
			log.Error("failing task", "task", t.ID, "err", terr)
		}
		log.Error("task failed", "task", t.ID, "err", err)
		s.pub.emit(Event{Type: EventTaskFailed, Task: t.Snapshot(), Error: err.Error()})
	}
	s.emitOverall()
}

// emitOverall publishes the batch-level progress average.
func (s *Scheduler) emitOverall() {
	s.mu.Lock()
	total := 0
	for _, t := range s.tasks {
		total += t.CurrentProgress()
	}
	count := len(s.tasks)
	s.mu.Unlock()
	if count == 0 {
		return
	}
	s.pub.emit(Event{Type: EventOverallProgress, Overall: float64(total) / float64(count)})
}

// PauseProcessing pauses the in-flight task at its next checkpoint and
// stops dispatching new ones.
func (s *Scheduler) PauseProcessing() error {
	if !s.running.Load() {
		return fmt.Errorf("%w: not processing", ErrInvalidState)
	}
	s.paused.Store(true)
	s.mu.Lock()
	var current *Task
	for _, t := range s.tasks {
		if t.CurrentStatus() == StatusProcessing {
			current = t
			break
		}
	}
	s.mu.Unlock()
	if current != nil {
		if err := current.transition(StatusPaused); err != nil {
			return err
		}
		s.pub.emit(Event{Type: EventTaskPaused, Task: current.Snapshot()})
	}
	log.Info("processing paused")
	return nil
}

// ResumeProcessing resumes a paused run.
func (s *Scheduler) ResumeProcessing() error {
	if !s.paused.Load() {
		return fmt.Errorf("%w: not paused", ErrInvalidState)
	}
	s.mu.Lock()
	var current *Task
	for _, t := range s.tasks {
		if t.CurrentStatus() == StatusPaused {
			current = t
			break
		}
	}
	s.mu.Unlock()
	if current != nil {
		if err := current.transition(StatusProcessing); err != nil {
			return err
		}
		s.pub.emit(Event{Type: EventTaskResumed, Task: current.Snapshot()})
	}
	s.paused.Store(false)
	log.Info("processing resumed")
	return nil
}

// StopProcessing cancels the in-flight task and marks every queued pending
// task cancelled.
func (s *Scheduler) StopProcessing() error {
	if !s.running.Load() {
		return fmt.Errorf("%w: not processing", ErrInvalidState)
	}
	s.paused.Store(false)

	s.mu.Lock()
	var cancelled []*Task
	for _, id := range s.order {
		t := s.tasks[id]
		switch t.CurrentStatus() {
		case StatusProcessing, StatusPaused:
			t.Cancel()
			if t.CurrentStatus() == StatusPaused {
				// A paused task has no worker to observe the flag.
				if err := t.transition(StatusCancelled); err == nil {
					cancelled = append(cancelled, t)
				}
			}
		case StatusPending:
			if err := t.transition(StatusCancelled); err == nil {
				cancelled = append(cancelled, t)
			}
		}
	}
	s.queue = s.queue[:0]
	s.mu.Unlock()

	for _, t := range cancelled {
		s.pub.emit(Event{Type: EventTaskCancelled, Task: t.Snapshot()})
	}
	log.Info("processing stopped", "cancelled", len(cancelled))
	return nil
}

// StartTask requeues a single pending, failed or cancelled task and starts
// a run containing only it plus whatever is already queued.
func (s *Scheduler) StartTask(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	switch t.CurrentStatus() {
	case StatusFailed, StatusCancelled:
		if err := t.transition(StatusPending); err != nil {
			s.mu.Unlock()
			return err
		}
	case StatusPending:
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: task %s is %s", ErrInvalidState, id, t.CurrentStatus())
	}
	s.queue = append(s.queue, id)
	s.mu.Unlock()

	if s.running.CompareAndSwap(false, true) {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelRun = cancel
		s.paused.Store(false)
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker(ctx)
		}
	}
	return nil
}

// PauseTask pauses one processing task.
func (s *Scheduler) PauseTask(id string) error {
	t, err := s.Task(id)
	if err != nil {
		return err
	}
	if err := t.transition(StatusPaused); err != nil {
		return err
	}
	s.pub.emit(Event{Type: EventTaskPaused, Task: t.Snapshot()})
	return nil
}

// ResumeTask resumes one paused task.
func (s *Scheduler) ResumeTask(id string) error {
	t, err := s.Task(id)
	if err != nil {
		return err
	}
	if err := t.transition(StatusProcessing); err != nil {
		return err
	}
	s.pub.emit(Event{Type: EventTaskResumed, Task: t.Snapshot()})
	return nil
}

// CancelTask cancels one task. Pending and paused tasks transition
// immediately; a processing task transitions when its pipeline observes the
// flag.
func (s *Scheduler) CancelTask(id string) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	status := t.CurrentStatus()
	if status.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: task %s is %s", ErrInvalidState, id, status)
	}
	t.Cancel()
	immediate := false
	if status == StatusPending || status == StatusPaused {
		if err := t.transition(StatusCancelled); err == nil {
			immediate = true
		}
		s.queue = removeID(s.queue, id)
	}
	s.mu.Unlock()

	if immediate {
		s.pub.emit(Event{Type: EventTaskCancelled, Task: t.Snapshot()})
	}
	return nil
}

// IsProcessing reports whether a run is active.
func (s *Scheduler) IsProcessing() bool { return s.running.Load() }

// IsPaused reports whether the run is paused.
func (s *Scheduler) IsPaused() bool { return s.paused.Load() }

// Wait blocks until the current run drains.
func (s *Scheduler) Wait() { s.wg.Wait() }

// Close stops workers and the event publisher. Queued pending tasks are
// cancelled.
func (s *Scheduler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.running.Load() {
		s.StopProcessing()
	}
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.wg.Wait()
	s.running.Store(false)
	s.pub.close()
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
