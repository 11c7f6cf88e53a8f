package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies what changed about a session.
type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventUsername EventKind = "username"
	EventTarget   EventKind = "target"
	EventClosed   EventKind = "closed"
)

// Event is a session state-change notification. It is the sole mechanism
// for live external observers to learn of new sessions, username binding or
// target selection without polling the registry.
type Event struct {
	Kind       EventKind `json:"kind"`
	SessionID  uuid.UUID `json:"session_id"`
	Protocol   string    `json:"protocol"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Username   string    `json:"username,omitempty"`
	Target     string    `json:"target,omitempty"`
	Time       time.Time `json:"time"`
}

// Broadcaster fans session events out to any number of subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the
// event, so observers needing a complete picture combine the stream with a
// registry snapshot.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer with the given channel buffer. The
// returned cancel function must be called to release the subscription; the
// channel is closed afterwards.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has buffer space.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the current number of observers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
