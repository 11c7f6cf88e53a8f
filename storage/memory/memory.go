// Package memory provides a thread-safe in-memory implementation of
// storage.Repository. Suitable for testing, demos, and single-process use.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxquant/omnitron/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
type Repository struct {
	mu       sync.RWMutex
	users    map[string]*storage.UserRecord
	targets  map[string]*storage.TargetRecord
	roles    map[string]*storage.RoleRecord
	tickets  map[uuid.UUID]*storage.TicketRecord
	sessions map[uuid.UUID]*storage.SessionRecord
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		users:    make(map[string]*storage.UserRecord),
		targets:  make(map[string]*storage.TargetRecord),
		roles:    make(map[string]*storage.RoleRecord),
		tickets:  make(map[uuid.UUID]*storage.TicketRecord),
		sessions: make(map[uuid.UUID]*storage.SessionRecord),
	}
}

// clone deep-copies a record through JSON so callers never share memory with
// the store.
func clone[T any](in *T) *T {
	data, err := json.Marshal(in)
	if err != nil {
		panic(fmt.Sprintf("cloning record: %v", err))
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("cloning record: %v", err))
	}
	return out
}

func (r *Repository) GetUser(_ context.Context, username string) (*storage.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, storage.ErrNotFound)
	}
	return clone(u), nil
}

func (r *Repository) PutUser(_ context.Context, user *storage.UserRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return fmt.Errorf("user %s: %w", user.Username, storage.ErrConflict)
	}
	r.users[user.Username] = clone(user)
	return nil
}

func (r *Repository) UpdateUser(_ context.Context, username string, fn func(*storage.UserRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return fmt.Errorf("user %s: %w", username, storage.ErrNotFound)
	}
	updated := clone(u)
	if err := fn(updated); err != nil {
		return err
	}
	r.users[username] = updated
	return nil
}

func (r *Repository) ListUsers(_ context.Context) ([]storage.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.UserRecord, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *Repository) GetTarget(_ context.Context, name string) (*storage.TargetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[name]
	if !ok {
		return nil, fmt.Errorf("target %s: %w", name, storage.ErrNotFound)
	}
	return clone(t), nil
}

func (r *Repository) PutTarget(_ context.Context, target *storage.TargetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[target.Name] = clone(target)
	return nil
}

func (r *Repository) ListTargets(_ context.Context) ([]storage.TargetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.TargetRecord, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, *clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) PutRole(_ context.Context, role *storage.RoleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role.Name] = clone(role)
	return nil
}

func (r *Repository) ListRoles(_ context.Context) ([]storage.RoleRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.RoleRecord, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, *clone(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) GetTicket(_ context.Context, id uuid.UUID) (*storage.TicketRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, storage.ErrNotFound)
	}
	return clone(t), nil
}

func (r *Repository) FindTicketBySecret(_ context.Context, secret string) (*storage.TicketRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tickets {
		if t.Secret == secret {
			return clone(t), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *Repository) PutTicket(_ context.Context, ticket *storage.TicketRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = clone(ticket)
	return nil
}

func (r *Repository) UpdateTicket(_ context.Context, id uuid.UUID, fn func(*storage.TicketRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return fmt.Errorf("ticket %s: %w", id, storage.ErrNotFound)
	}
	updated := clone(t)
	if err := fn(updated); err != nil {
		return err
	}
	r.tickets[id] = updated
	return nil
}

func (r *Repository) DeleteTicket(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return fmt.Errorf("ticket %s: %w", id, storage.ErrNotFound)
	}
	delete(r.tickets, id)
	return nil
}

func (r *Repository) ListTickets(_ context.Context) ([]storage.TicketRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.TicketRecord, 0, len(r.tickets))
	for _, t := range r.tickets {
		out = append(out, *clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (r *Repository) PutSession(_ context.Context, session *storage.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = clone(session)
	return nil
}

func (r *Repository) UpdateSession(_ context.Context, id uuid.UUID, fn func(*storage.SessionRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	updated := clone(s)
	if err := fn(updated); err != nil {
		return err
	}
	r.sessions[id] = updated
	return nil
}

func (r *Repository) ListSessions(_ context.Context) ([]storage.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.SessionRecord, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out, nil
}

func (r *Repository) PruneSessions(_ context.Context, endedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for id, s := range r.sessions {
		if s.Ended != nil && s.Ended.Before(endedBefore) {
			delete(r.sessions, id)
			pruned++
		}
	}
	return pruned, nil
}

// Close is a no-op for the in-memory repository.
func (r *Repository) Close() error { return nil }
