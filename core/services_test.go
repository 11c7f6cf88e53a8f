package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxquant/omnitron/auth"
	"github.com/luxquant/omnitron/config"
	"github.com/luxquant/omnitron/internal/secrets"
	"github.com/luxquant/omnitron/session"
	"github.com/luxquant/omnitron/storage"
	"github.com/luxquant/omnitron/storage/memory"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Backend = "memory"

	repo := memory.NewRepository()
	svc := New(cfg, repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	hash, err := secrets.HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, repo.PutUser(ctx, &storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindPassword, PasswordHash: hash},
		},
		Roles: []string{"ops"},
	}))
	require.NoError(t, repo.PutTarget(ctx, &storage.TargetRecord{
		Name:  "prod-db",
		Kind:  storage.TargetPostgres,
		Roles: []string{"ops"},
	}))
	return svc
}

func TestOpenRepository(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	repo, err := OpenRepository(cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	cfg.Storage.Backend = "carrier-pigeon"
	_, err = OpenRepository(cfg)
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestBindSessionTarget(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	sess, err := svc.Sessions.Register(ctx, auth.ProtocolSSH, "10.0.0.1:2222", session.NewChannelHandle())
	require.NoError(t, err)

	// No username bound yet: nothing to authorize.
	ok, err := svc.BindSessionTarget(ctx, sess, "prod-db")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sess.SetUsername(ctx, "alice"))

	ok, err = svc.BindSessionTarget(ctx, sess, "no-such-target")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.BindSessionTarget(ctx, sess, "prod-db")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, sess.Target())
	assert.Equal(t, "prod-db", sess.Target().Name)
}

func TestAuthorizeSessionWithTicket(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	uses := uint32(1)
	ticket, err := svc.Tickets.Create(ctx, "alice", "prod-db", &uses, nil)
	require.NoError(t, err)

	sess, err := svc.Sessions.Register(ctx, auth.ProtocolHTTP, "10.0.0.2:443", session.NewChannelHandle())
	require.NoError(t, err)

	ok, err := svc.AuthorizeSessionWithTicket(ctx, sess, "wrong-secret")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.AuthorizeSessionWithTicket(ctx, sess, ticket.Secret)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", sess.Username())
	require.NotNil(t, sess.Target())
	assert.Equal(t, "prod-db", sess.Target().Name)

	// The single use is spent; a second redemption is refused.
	stored, err := svc.Repo.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), *stored.UsesLeft)

	other, err := svc.Sessions.Register(ctx, auth.ProtocolHTTP, "10.0.0.3:443", session.NewChannelHandle())
	require.NoError(t, err)
	ok, err = svc.AuthorizeSessionWithTicket(ctx, other, ticket.Secret)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfigReloadClosesLapsedSessions(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	handle := session.NewChannelHandle()
	sess, err := svc.Sessions.Register(ctx, auth.ProtocolPostgres, "10.0.0.4:5432", handle)
	require.NoError(t, err)
	require.NoError(t, sess.SetUsername(ctx, "alice"))

	ok, err := svc.BindSessionTarget(ctx, sess, "prod-db")
	require.NoError(t, err)
	require.True(t, ok)

	// Still authorized: the sweep leaves the session alone.
	svc.HandleConfigReload(ctx)
	select {
	case <-handle.Done():
		t.Fatal("session closed while still authorized")
	default:
	}

	// The target loses the shared role; the sweep must close the session.
	require.NoError(t, svc.Repo.PutTarget(ctx, &storage.TargetRecord{
		Name:  "prod-db",
		Kind:  storage.TargetPostgres,
		Roles: []string{"dba"},
	}))
	svc.HandleConfigReload(ctx)

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed after authorization lapse")
	}
}

func TestConfigReloadSkipsUnboundSessions(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	handle := session.NewChannelHandle()
	_, err := svc.Sessions.Register(ctx, auth.ProtocolSSH, "10.0.0.5:2222", handle)
	require.NoError(t, err)

	svc.HandleConfigReload(ctx)
	select {
	case <-handle.Done():
		t.Fatal("unbound session closed by reload sweep")
	default:
	}
}
