package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStateTTL is how long an unfinished login attempt is kept before the
// vacuum sweep reclaims it.
const DefaultStateTTL = 10 * time.Minute

// PolicySource resolves the effective credential policy for a user. A nil
// policy with a nil error means the user exists but has no usable
// credentials for the requested kinds.
type PolicySource interface {
	GetCredentialPolicy(ctx context.Context, username string, supported []CredentialKind) (Policy, error)
}

// StateStore is the process-wide registry of in-flight authentication
// states, shared by all protocol listeners. All methods are safe for
// concurrent use.
type StateStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*State

	source PolicySource
	ttl    time.Duration
	log    *slog.Logger
}

// NewStateStore creates a store resolving policies through source. A zero
// ttl selects DefaultStateTTL.
func NewStateStore(source PolicySource, ttl time.Duration, logger *slog.Logger) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		states: make(map[uuid.UUID]*State),
		source: source,
		ttl:    ttl,
		log:    logger.With("component", "authstate"),
	}
}

// Get returns the state for id, if present.
func (ss *StateStore) Get(id uuid.UUID) (*State, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	st, ok := ss.states[id]
	return st, ok
}

// Contains reports whether a state exists for id.
func (ss *StateStore) Contains(id uuid.UUID) bool {
	_, ok := ss.Get(id)
	return ok
}

// Create returns the auth state to drive a login attempt for
// username/protocol. When existing refers to a live state for the same
// username it is returned as-is, so a multi-round handshake keeps its
// progress. A state stored under existing for a different username is
// discarded and replaced; accumulated kinds never carry across identities.
func (ss *StateStore) Create(ctx context.Context, existing *uuid.UUID, username, protocol string, supported []CredentialKind) (*State, error) {
	ss.mu.Lock()
	if existing != nil {
		if st, ok := ss.states[*existing]; ok {
			if st.Username() == username {
				ss.mu.Unlock()
				return st, nil
			}
			delete(ss.states, *existing)
			ss.log.Warn("discarding auth state for mismatched username",
				"state_id", existing.String(), "protocol", protocol)
		}
	}
	ss.mu.Unlock()

	// Policy resolution hits the backing store; do it outside the lock.
	policy, err := ss.source.GetCredentialPolicy(ctx, username, supported)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		policy = AnySinglePolicy{Supported: supported}
	}

	id := uuid.New()
	if existing != nil {
		id = *existing
	}
	st := NewState(id, username, protocol, policy)

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if prior, ok := ss.states[id]; ok && prior.Username() == username {
		// Lost a race against a concurrent Create for the same identifier;
		// keep the first state so both requests observe one attempt.
		return prior, nil
	}
	ss.states[id] = st
	return st, nil
}

// Remove discards a state once it is consumed by a successful login or
// abandoned by the protocol layer.
func (ss *StateStore) Remove(id uuid.UUID) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.states, id)
}

// Vacuum drops states older than the TTL. It bounds growth under clients
// that abandon authentication mid-handshake.
func (ss *StateStore) Vacuum() {
	cutoff := time.Now().Add(-ss.ttl)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for id, st := range ss.states {
		if st.Started().Before(cutoff) {
			delete(ss.states, id)
			ss.log.Debug("vacuumed stale auth state", "state_id", id.String())
		}
	}
}

// Len returns the number of in-flight states.
func (ss *StateStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.states)
}
