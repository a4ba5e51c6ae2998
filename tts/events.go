package tts

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EventType identifies a scheduler lifecycle event.
type EventType string

const (
	EventTaskAdded       EventType = "task_added"
	EventTaskRemoved     EventType = "task_removed"
	EventTaskUpdated     EventType = "task_updated"
	EventTaskStarted     EventType = "task_started"
	EventTaskProgress    EventType = "task_progress"
	EventTaskCompleted   EventType = "task_completed"
	EventTaskFailed      EventType = "task_failed"
	EventTaskPaused      EventType = "task_paused"
	EventTaskResumed     EventType = "task_resumed"
	EventTaskCancelled   EventType = "task_cancelled"
	EventOverallProgress EventType = "overall_progress"
)

// Event is one scheduler notification. Task is a snapshot taken at emit
// time, so observers never share mutable state with the scheduler.
type Event struct {
	Type      EventType
	Task      Task
	Progress  int
	Remaining float64
	Overall   float64
	Error     string
	Time      time.Time
}

// EventHandler consumes scheduler events. Handlers run on the publisher's
// dispatch goroutine, outside any scheduler lock; a slow handler delays
// later events but never blocks workers.
type EventHandler func(Event)

// publisher fans scheduler events out to registered handlers and channel
// subscribers. A single dispatch goroutine preserves per-task causal order.
type publisher struct {
	mu       sync.Mutex
	handlers []EventHandler
	subs     []chan Event
	ch       chan Event
	done     chan struct{}
	closed   bool
}

func newPublisher() *publisher {
	p := &publisher{
		ch:   make(chan Event, 256),
		done: make(chan struct{}),
	}
	go p.dispatch()
	return p
}

func (p *publisher) dispatch() {
	defer close(p.done)
	for ev := range p.ch {
		p.mu.Lock()
		handlers := make([]EventHandler, len(p.handlers))
		copy(handlers, p.handlers)
		subs := make([]chan Event, len(p.subs))
		copy(subs, p.subs)
		p.mu.Unlock()

		for _, h := range handlers {
			h(ev)
		}
		for _, s := range subs {
			select {
			case s <- ev:
			default:
				log.Warn("event subscriber is not keeping up, dropping event",
					"type", ev.Type, "task", ev.Task.ID)
			}
		}
	}
}

func (p *publisher) addHandler(h EventHandler) {
	p.mu.Lock()
	p.handlers = append(p.handlers, h)
	p.mu.Unlock()
}

func (p *publisher) subscribe() <-chan Event {
	ch := make(chan Event, 64)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// emit queues an event for dispatch. Dropping is preferable to blocking a
// worker when the buffer is saturated.
func (p *publisher) emit(ev Event) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	ev.Time = time.Now()
	select {
	case p.ch <- ev:
	default:
		log.Warn("event buffer full, dropping event", "type", ev.Type)
	}
}

// close stops dispatch after draining queued events and closes all
// subscriber channels.
func (p *publisher) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.ch)
	<-p.done

	p.mu.Lock()
	for _, s := range p.subs {
		close(s)
	}
	p.subs = nil
	p.mu.Unlock()
}
