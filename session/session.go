// Package session tracks every live connection through the gateway as an
// observable Session with a mutable state, a registry shared across all
// protocol listeners, and per-protocol close handles.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxquant/omnitron/storage"
)

// Session is the live record of one accepted, possibly-authenticated
// connection. Its state moves monotonically: open and unauthenticated, open
// with a bound username, open with a bound target, closed.
type Session struct {
	id         uuid.UUID
	protocol   string
	remoteAddr string
	started    time.Time

	repo   storage.Repository
	events *Broadcaster
	log    *slog.Logger

	mu       sync.Mutex
	username string
	target   *storage.TargetRecord
	ticketID *uuid.UUID
	handle   Handle
}

// ID returns the session's registry-unique identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Protocol returns the protocol name of the owning listener.
func (s *Session) Protocol() string { return s.protocol }

// RemoteAddr returns the peer address of the accepted connection.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// Started returns when the connection was accepted.
func (s *Session) Started() time.Time { return s.started }

// Username returns the bound username, empty until authentication binds one.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Target returns the bound target snapshot, nil until one is selected.
func (s *Session) Target() *storage.TargetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// SetUsername binds the authenticated identity to the session, persists it
// on the session record and notifies observers. The lock is not held across
// the store write.
func (s *Session) SetUsername(ctx context.Context, username string) error {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()

	err := s.repo.UpdateSession(ctx, s.id, func(rec *storage.SessionRecord) error {
		rec.Username = &username
		return nil
	})
	if err != nil {
		return fmt.Errorf("persisting session username: %w", err)
	}

	s.events.Publish(Event{
		Kind: EventUsername, SessionID: s.id, Protocol: s.protocol, Username: username,
	})
	return nil
}

// SetTarget binds the selected target to the session, persists a JSON
// snapshot of it and notifies observers.
func (s *Session) SetTarget(ctx context.Context, target *storage.TargetRecord) error {
	s.mu.Lock()
	s.target = target
	s.mu.Unlock()

	snapshot, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("encoding target snapshot: %w", err)
	}
	snap := string(snapshot)
	err = s.repo.UpdateSession(ctx, s.id, func(rec *storage.SessionRecord) error {
		rec.TargetSnapshot = &snap
		return nil
	})
	if err != nil {
		return fmt.Errorf("persisting session target: %w", err)
	}

	s.events.Publish(Event{
		Kind: EventTarget, SessionID: s.id, Protocol: s.protocol, Target: target.Name,
	})
	return nil
}

// SetTicket associates the consumed ticket with the session record for the
// audit trail.
func (s *Session) SetTicket(ctx context.Context, ticketID uuid.UUID) error {
	s.mu.Lock()
	s.ticketID = &ticketID
	s.mu.Unlock()

	return s.repo.UpdateSession(ctx, s.id, func(rec *storage.SessionRecord) error {
		rec.TicketID = &ticketID
		return nil
	})
}

// Close asks the owning protocol task to terminate the connection. It is a
// best-effort asynchronous signal and a no-op when repeated.
func (s *Session) Close() {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		h.Close()
	}
}
