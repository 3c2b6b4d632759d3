package todos

import (
	"sync"
	"time"
)

type EventType string

const (
	EventCreated EventType = "todo_created"
	EventUpdated EventType = "todo_updated"
	EventDeleted EventType = "todo_deleted"
)

type Event struct {
	Type EventType `json:"type"`
	ID   string    `json:"id"`
	Todo *Task     `json:"todo,omitempty"`
	At   time.Time `json:"at"`
}

func ChangedEvent(typ EventType, t Task, at time.Time) Event {
	c := t.Clone()
	return Event{Type: typ, ID: t.ID, Todo: &c, At: at}
}

func DeletedEvent(id string, at time.Time) Event {
	return Event{Type: EventDeleted, ID: id, At: at}
}

// Feed fans change events out to subscribers. Slow subscribers miss events
// rather than stalling the publisher.
type Feed struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
	buffer      int
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	return &Feed{
		subscribers: make(map[int]chan Event),
		buffer:      buffer,
	}
}

func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, f.buffer)
	f.mu.Lock()
	f.nextSubID++
	id := f.nextSubID
	f.subscribers[id] = ch
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subscribers[id]; ok {
			delete(f.subscribers, id)
			close(c)
		}
	}
}

func (f *Feed) Publish(evt Event) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (f *Feed) Subscribers() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
