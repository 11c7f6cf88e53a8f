package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPolicySource struct {
	mu       sync.Mutex
	policies map[string]Policy
	calls    int
}

func (s *stubPolicySource) GetCredentialPolicy(_ context.Context, username string, supported []CredentialKind) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	p, ok := s.policies[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	if p == nil {
		return AnySinglePolicy{Supported: supported}, nil
	}
	return p, nil
}

func newTestStateStore(t *testing.T, ttl time.Duration) (*StateStore, *stubPolicySource) {
	t.Helper()
	source := &stubPolicySource{policies: map[string]Policy{
		"alice": nil,
		"bob":   nil,
	}}
	return NewStateStore(source, ttl, slog.New(slog.NewTextHandler(io.Discard, nil))), source
}

func TestStateStore_Create(t *testing.T) {
	ss, _ := newTestStateStore(t, 0)
	ctx := context.Background()

	st, err := ss.Create(ctx, nil, "alice", "SSH", []CredentialKind{KindPassword})
	require.NoError(t, err)
	require.NotNil(t, st)

	got, ok := ss.Get(st.ID())
	require.True(t, ok)
	assert.Same(t, st, got)
	assert.True(t, ss.Contains(st.ID()))
}

func TestStateStore_CreateUnknownUser(t *testing.T) {
	ss, _ := newTestStateStore(t, 0)

	_, err := ss.Create(context.Background(), nil, "mallory", "SSH", []CredentialKind{KindPassword})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 0, ss.Len())
}

func TestStateStore_ReuseSameUsername(t *testing.T) {
	ss, _ := newTestStateStore(t, 0)
	ctx := context.Background()

	st, err := ss.Create(ctx, nil, "alice", "HTTP", []CredentialKind{KindPassword})
	require.NoError(t, err)
	st.RecordSuccess(KindPassword)

	id := st.ID()
	again, err := ss.Create(ctx, &id, "alice", "HTTP", []CredentialKind{KindPassword})
	require.NoError(t, err)
	assert.Same(t, st, again)
	assert.True(t, again.Satisfied())
}

// A second request presenting the same state identifier with a different
// username must not inherit the first user's progress.
func TestStateStore_UsernameMismatchDiscardsState(t *testing.T) {
	ss, _ := newTestStateStore(t, 0)
	ctx := context.Background()

	st, err := ss.Create(ctx, nil, "alice", "HTTP", []CredentialKind{KindPassword})
	require.NoError(t, err)
	st.RecordSuccess(KindPassword)

	id := st.ID()
	fresh, err := ss.Create(ctx, &id, "bob", "HTTP", []CredentialKind{KindPassword})
	require.NoError(t, err)

	assert.NotSame(t, st, fresh)
	assert.Equal(t, "bob", fresh.Username())
	assert.Empty(t, fresh.SatisfiedKinds())
	assert.False(t, fresh.Satisfied())
}

func TestStateStore_ConcurrentCreateSameID(t *testing.T) {
	ss, _ := newTestStateStore(t, 0)
	ctx := context.Background()
	id := uuid.New()

	const n = 16
	results := make([]*State, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := ss.Create(ctx, &id, "alice", "SSH", []CredentialKind{KindPassword})
			assert.NoError(t, err)
			results[i] = st
		}(i)
	}
	wg.Wait()

	// All callers must converge on one shared state.
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, ss.Len())
}

func TestStateStore_Vacuum(t *testing.T) {
	ss, _ := newTestStateStore(t, 50*time.Millisecond)
	ctx := context.Background()

	stale, err := ss.Create(ctx, nil, "alice", "SSH", []CredentialKind{KindPassword})
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	live, err := ss.Create(ctx, nil, "bob", "SSH", []CredentialKind{KindPassword})
	require.NoError(t, err)

	ss.Vacuum()

	assert.False(t, ss.Contains(stale.ID()))
	assert.True(t, ss.Contains(live.ID()))
}

func TestStateStore_Remove(t *testing.T) {
	ss, _ := newTestStateStore(t, 0)

	st, err := ss.Create(context.Background(), nil, "alice", "SSH", []CredentialKind{KindPassword})
	require.NoError(t, err)

	ss.Remove(st.ID())
	assert.False(t, ss.Contains(st.ID()))
}
