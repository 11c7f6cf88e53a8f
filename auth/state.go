package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State tracks one login attempt's progress across one or more
// request/response rounds. The set of satisfied kinds only grows; the policy
// is fixed at creation. A State is discarded, never reused, once the login
// succeeds or fails terminally.
type State struct {
	mu sync.Mutex

	id        uuid.UUID
	username  string
	protocol  string
	policy    Policy
	satisfied KindSet
	started   time.Time
}

// NewState builds a fresh State for a username/protocol pair with the policy
// already resolved by the caller.
func NewState(id uuid.UUID, username, protocol string, policy Policy) *State {
	return &State{
		id:        id,
		username:  username,
		protocol:  protocol,
		policy:    policy,
		satisfied: NewKindSet(),
		started:   time.Now(),
	}
}

// ID returns the opaque identifier of this state.
func (s *State) ID() uuid.UUID { return s.id }

// Username returns the identity this state was created for. Callers reusing
// a stored state across requests must compare this against the username in
// the new request and discard the state on mismatch.
func (s *State) Username() string { return s.username }

// Protocol returns the protocol name this state authenticates for.
func (s *State) Protocol() string { return s.protocol }

// Started returns the creation time, used by the store's vacuum sweep.
func (s *State) Started() time.Time { return s.started }

// RecordSuccess marks a credential kind as verified. Idempotent.
func (s *State) RecordSuccess(kind CredentialKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.satisfied.Add(kind)
}

// Satisfied reports whether the policy now holds.
func (s *State) Satisfied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.IsSatisfied(s.protocol, s.satisfied)
}

// SatisfiedKinds returns a snapshot of the verified kinds.
func (s *State) SatisfiedKinds() []CredentialKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]CredentialKind, 0, len(s.satisfied))
	for k := range s.satisfied {
		kinds = append(kinds, k)
	}
	return kinds
}
