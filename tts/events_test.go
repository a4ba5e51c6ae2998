package tts

import (
	"sync"
	"testing"
	"time"
)

func TestPublisherDeliversInOrder(t *testing.T) {
	p := newPublisher()
	var mu sync.Mutex
	var got []EventType
	p.addHandler(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})

	want := []EventType{EventTaskAdded, EventTaskStarted, EventTaskProgress, EventTaskCompleted}
	for _, et := range want {
		p.emit(Event{Type: et})
	}
	p.close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("delivered %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublisherSubscribers(t *testing.T) {
	p := newPublisher()
	sub := p.subscribe()
	p.emit(Event{Type: EventTaskAdded})
	p.close()

	select {
	case ev, ok := <-sub:
		if !ok {
			t.Fatal("channel closed before delivering the event")
		}
		if ev.Type != EventTaskAdded {
			t.Errorf("type = %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// After close the channel drains and closes.
	select {
	case _, ok := <-sub:
		if ok {
			t.Error("unexpected extra event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel never closed")
	}
}

func TestPublisherEmitAfterClose(t *testing.T) {
	p := newPublisher()
	p.close()
	// Must not panic or block.
	p.emit(Event{Type: EventTaskAdded})
	p.close()
}

func TestEmitStampsTime(t *testing.T) {
	p := newPublisher()
	done := make(chan Event, 1)
	p.addHandler(func(ev Event) { done <- ev })
	p.emit(Event{Type: EventTaskProgress})
	select {
	case ev := <-done:
		if ev.Time.IsZero() {
			t.Error("event time not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	p.close()
}
