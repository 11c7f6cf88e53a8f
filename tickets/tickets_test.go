package tickets

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

	"github.com/luxquant/omnitron/storage"
	"github.com/luxquant/omnitron/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func TestAuthorize_UnknownSecret(t *testing.T) {
	s, _ := newTestService(t)

	ticket, err := s.Authorize(context.Background(), "no-such-secret")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestAuthorize_Exhausted(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	zero := uint32(0)
	require.NoError(t, repo.PutTicket(ctx, &storage.TicketRecord{
		ID: uuid.New(), Secret: "tok", Username: "bob", TargetName: "db1",
		UsesLeft: &zero, Created: time.Now(),
	}))

	ticket, err := s.Authorize(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

// An expired ticket is never authorized, regardless of remaining uses.
func TestAuthorize_Expired(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	uses := uint32(5)
	expiry := time.Now().Add(-time.Minute)
	require.NoError(t, repo.PutTicket(ctx, &storage.TicketRecord{
		ID: uuid.New(), Secret: "tok", Username: "bob", TargetName: "db1",
		UsesLeft: &uses, Expiry: &expiry, Created: time.Now().Add(-time.Hour),
	}))

	ticket, err := s.Authorize(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestAuthorize_UnlimitedUses(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, repo.PutTicket(ctx, &storage.TicketRecord{
		ID: id, Secret: "tok", Username: "bob", TargetName: "db1", Created: time.Now(),
	}))

	ticket, err := s.Authorize(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, id, ticket.ID)
	assert.Nil(t, ticket.UsesLeft)

	// Unlimited tickets are not decremented by consumption.
	require.NoError(t, s.Consume(ctx, id))
	got, err := repo.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.UsesLeft)
}

// A two-use ticket authorizes two independent sessions; the third attempt
// is rejected.
func TestTwoUseTicketLifecycle(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	uses := uint32(2)
	id := uuid.New()
	require.NoError(t, repo.PutTicket(ctx, &storage.TicketRecord{
		ID: id, Secret: "tok", Username: "bob", TargetName: "db1",
		UsesLeft: &uses, Created: time.Now(),
	}))

	for i := 0; i < 2; i++ {
		ticket, err := s.Authorize(ctx, "tok")
		require.NoError(t, err)
		require.NotNil(t, ticket, "use %d should authorize", i+1)
		require.NoError(t, s.Consume(ctx, ticket.ID))
	}

	ticket, err := s.Authorize(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, ticket, "third use must be rejected")
}

func TestConsume_VanishedTicket(t *testing.T) {
	s, _ := newTestService(t)

	err := s.Consume(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrInconsistentState)
}

// Exactly one of many concurrent consumers of a one-use ticket succeeds.
func TestConsume_ConcurrentSingleUse(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	uses := uint32(1)
	id := uuid.New()
	require.NoError(t, repo.PutTicket(ctx, &storage.TicketRecord{
		ID: id, Secret: "tok", Username: "bob", TargetName: "db1",
		UsesLeft: &uses, Created: time.Now(),
	}))

	const attempts = 16
	var wg sync.WaitGroup
	outcomes := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- s.Consume(ctx, id)
		}()
	}
	wg.Wait()
	close(outcomes)

	successes, failures := 0, 0
	for err := range outcomes {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrInconsistentState)
			failures++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, failures)

	got, err := repo.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), *got.UsesLeft)
}

func TestCreateListDelete(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	uses := uint32(3)
	ticket, err := s.Create(ctx, "bob", "db1", &uses, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.Secret)

	// The freshly issued secret authorizes.
	got, err := s.Authorize(ctx, ticket.Secret)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.Username)
	assert.Equal(t, "db1", got.TargetName)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(ctx, ticket.ID))
	assert.ErrorIs(t, s.Delete(ctx, ticket.ID), storage.ErrNotFound)
}
