package authz

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxquant/omnitron/storage"
	"github.com/luxquant/omnitron/storage/memory"
)

func newTestAuthorizer(t *testing.T) (*Authorizer, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func TestAuthorizeTarget_RoleIntersection(t *testing.T) {
	a, repo := newTestAuthorizer(t)
	ctx := context.Background()

	require.NoError(t, repo.PutUser(ctx, &storage.UserRecord{
		ID: uuid.New(), Username: "alice", Roles: []string{"A"},
	}))
	require.NoError(t, repo.PutTarget(ctx, &storage.TargetRecord{
		ID: uuid.New(), Name: "db1", Kind: storage.TargetPostgres, Roles: []string{"B"},
	}))

	ok, err := a.AuthorizeTarget(ctx, "alice", "db1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Adding the user's role to the target flips the outcome.
	require.NoError(t, repo.PutTarget(ctx, &storage.TargetRecord{
		ID: uuid.New(), Name: "db1", Kind: storage.TargetPostgres, Roles: []string{"B", "A"},
	}))

	ok, err = a.AuthorizeTarget(ctx, "alice", "db1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorizeTarget_MissingEntitiesAreFalseNotError(t *testing.T) {
	a, repo := newTestAuthorizer(t)
	ctx := context.Background()

	ok, err := a.AuthorizeTarget(ctx, "ghost", "db1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.PutUser(ctx, &storage.UserRecord{
		ID: uuid.New(), Username: "alice", Roles: []string{"ops"},
	}))

	ok, err = a.AuthorizeTarget(ctx, "alice", "no-such-target")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeTarget_NoRoles(t *testing.T) {
	a, repo := newTestAuthorizer(t)
	ctx := context.Background()

	require.NoError(t, repo.PutUser(ctx, &storage.UserRecord{ID: uuid.New(), Username: "alice"}))
	require.NoError(t, repo.PutTarget(ctx, &storage.TargetRecord{
		ID: uuid.New(), Name: "db1", Kind: storage.TargetMySQL,
	}))

	ok, err := a.AuthorizeTarget(ctx, "alice", "db1")
	require.NoError(t, err)
	assert.False(t, ok)
}
