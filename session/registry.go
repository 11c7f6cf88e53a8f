package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxquant/omnitron/storage"
)

// Registry is the process-wide map of live sessions, shared by every
// protocol listener and the administrative API.
//
// Lock discipline: when both the registry lock and a session's lock are
// needed, the registry lock is acquired first.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	repo   storage.Repository
	events *Broadcaster
	log    *slog.Logger
}

// NewRegistry creates an empty registry persisting session records through
// repo and notifying observers through events.
func NewRegistry(repo storage.Repository, events *Broadcaster, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		repo:     repo,
		events:   events,
		log:      logger.With("component", "sessions"),
	}
}

// Events returns the broadcaster live observers subscribe to.
func (r *Registry) Events() *Broadcaster { return r.events }

// Register tracks a freshly accepted connection. It is called after the
// minimal protocol handshake but before authentication completes, so
// unauthenticated and aborted sessions are still observable.
func (r *Registry) Register(ctx context.Context, protocol, remoteAddr string, handle Handle) (*Session, error) {
	s := &Session{
		id:         uuid.New(),
		protocol:   protocol,
		remoteAddr: remoteAddr,
		started:    time.Now(),
		repo:       r.repo,
		events:     r.events,
		log:        r.log,
		handle:     handle,
	}

	record := &storage.SessionRecord{
		ID:            s.id,
		Protocol:      protocol,
		RemoteAddress: remoteAddr,
		Started:       s.started,
	}
	if err := r.repo.PutSession(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting session record: %w", err)
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.log.Info("session opened",
		"session_id", s.id.String(), "protocol", protocol, "remote_addr", remoteAddr)
	r.events.Publish(Event{
		Kind: EventOpened, SessionID: s.id, Protocol: protocol, RemoteAddr: remoteAddr,
	})
	return s, nil
}

// Get returns the live session with the given id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// All returns a snapshot of the live sessions, ordered by start time.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].started.Before(out[j].started) })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Release deregisters a session once its owning protocol task unwinds.
// Deregistration is dispatched asynchronously so the releasing task never
// blocks on the record store.
func (r *Registry) Release(s *Session) {
	go r.remove(s.id)
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	ended := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.repo.UpdateSession(ctx, id, func(rec *storage.SessionRecord) error {
		rec.Ended = &ended
		return nil
	})
	if err != nil {
		r.log.Error("stamping session end time", "session_id", id.String(), "error", err)
	}

	r.log.Info("session closed", "session_id", id.String(), "protocol", s.protocol)
	r.events.Publish(Event{Kind: EventClosed, SessionID: id, Protocol: s.protocol})
}
