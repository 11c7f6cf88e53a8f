package config

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxquant/omnitron/auth"
	"github.com/luxquant/omnitron/internal/secrets"
	"github.com/luxquant/omnitron/storage"
	"github.com/luxquant/omnitron/storage/memory"
)

func newTestProvider(t *testing.T) (*StoreProvider, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	return NewStoreProvider(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func seedUser(t *testing.T, repo *memory.Repository, user storage.UserRecord) {
	t.Helper()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	require.NoError(t, repo.PutUser(context.Background(), &user))
}

func TestValidateCredential_Password(t *testing.T) {
	p, repo := newTestProvider(t)
	ctx := context.Background()

	hash, err := secrets.HashPassword("hunter2")
	require.NoError(t, err)
	seedUser(t, repo, storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindPassword, PasswordHash: hash},
		},
	})

	ok, err := p.ValidateCredential(ctx, "alice", auth.PasswordCredential{Password: "hunter2"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ValidateCredential(ctx, "alice", auth.PasswordCredential{Password: "wrong"})
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown users fail closed without an error.
	ok, err = p.ValidateCredential(ctx, "nobody", auth.PasswordCredential{Password: "hunter2"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateCredential_Totp(t *testing.T) {
	p, repo := newTestProvider(t)
	ctx := context.Background()

	secret, _, err := secrets.GenerateTotpSecret("alice")
	require.NoError(t, err)
	seedUser(t, repo, storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindTotp, TotpSecret: secret},
		},
	})

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	ok, err := p.ValidateCredential(ctx, "alice", auth.OtpCredential{Code: code})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ValidateCredential(ctx, "alice", auth.OtpCredential{Code: "000000"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateCredential_PublicKey(t *testing.T) {
	p, repo := newTestProvider(t)
	ctx := context.Background()

	keyBytes := []byte("fake-ed25519-key-material")
	stored := "ssh-ed25519 " + base64.StdEncoding.EncodeToString(keyBytes)
	seedUser(t, repo, storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindPublicKey, Key: stored},
		},
	})

	ok, err := p.ValidateCredential(ctx, "alice", auth.PublicKeyCredential{
		Algorithm: "ssh-ed25519", KeyBytes: keyBytes,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ValidateCredential(ctx, "alice", auth.PublicKeyCredential{
		Algorithm: "ssh-ed25519", KeyBytes: []byte("different"),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateCredential_UnsupportedKind(t *testing.T) {
	p, repo := newTestProvider(t)

	seedUser(t, repo, storage.UserRecord{Username: "alice"})

	_, err := p.ValidateCredential(context.Background(), "alice", auth.APITokenCredential{Token: "x"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentialType)
}

func TestGetCredentialPolicy_DefaultAnySingle(t *testing.T) {
	p, repo := newTestProvider(t)

	seedUser(t, repo, storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindPassword, PasswordHash: "x"},
			{Kind: auth.KindTotp, TotpSecret: "y"},
		},
	})

	policy, err := p.GetCredentialPolicy(context.Background(), "alice",
		[]auth.CredentialKind{auth.KindPassword, auth.KindPublicKey})
	require.NoError(t, err)

	// Only possessed-and-supported kinds count: password qualifies, totp is
	// not supported by this protocol, public key is not possessed.
	assert.True(t, policy.IsSatisfied(auth.ProtocolSSH, auth.NewKindSet(auth.KindPassword)))
	assert.False(t, policy.IsSatisfied(auth.ProtocolSSH, auth.NewKindSet(auth.KindPublicKey)))
}

func TestGetCredentialPolicy_PerProtocolRequirement(t *testing.T) {
	p, repo := newTestProvider(t)

	seedUser(t, repo, storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindPassword, PasswordHash: "x"},
			{Kind: auth.KindTotp, TotpSecret: "y"},
		},
		CredentialPolicy: &storage.PerProtocolRequirement{
			SSH: []auth.CredentialKind{auth.KindPassword, auth.KindTotp},
		},
	})

	policy, err := p.GetCredentialPolicy(context.Background(), "alice",
		[]auth.CredentialKind{auth.KindPassword, auth.KindTotp})
	require.NoError(t, err)

	// SSH requires both factors; HTTP falls back to any-single.
	assert.False(t, policy.IsSatisfied(auth.ProtocolSSH, auth.NewKindSet(auth.KindPassword)))
	assert.True(t, policy.IsSatisfied(auth.ProtocolSSH, auth.NewKindSet(auth.KindPassword, auth.KindTotp)))
	assert.True(t, policy.IsSatisfied(auth.ProtocolHTTP, auth.NewKindSet(auth.KindPassword)))
}

func TestGetCredentialPolicy_UnknownUser(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.GetCredentialPolicy(context.Background(), "nobody", []auth.CredentialKind{auth.KindPassword})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUpdatePublicKeyLastUsed(t *testing.T) {
	p, repo := newTestProvider(t)
	ctx := context.Background()

	keyBytes := []byte("key-material")
	stored := "ssh-ed25519 " + base64.StdEncoding.EncodeToString(keyBytes)
	seedUser(t, repo, storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindPublicKey, Key: stored},
		},
	})

	require.NoError(t, p.UpdatePublicKeyLastUsed(ctx, "alice", auth.PublicKeyCredential{
		Algorithm: "ssh-ed25519", KeyBytes: keyBytes,
	}))

	user, err := repo.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user.Credentials[0].LastUsed)
	assert.WithinDuration(t, time.Now(), *user.Credentials[0].LastUsed, time.Minute)

	// Wrong credential kind is rejected outright.
	err = p.UpdatePublicKeyLastUsed(ctx, "alice", auth.PasswordCredential{Password: "x"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentialType)
}

func TestValidateAPIToken(t *testing.T) {
	p, repo := newTestProvider(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	seedUser(t, repo, storage.UserRecord{
		Username: "alice",
		Credentials: []storage.CredentialRecord{
			{Kind: auth.KindAPIToken, TokenSecret: "live-token", TokenExpiry: &future},
			{Kind: auth.KindAPIToken, TokenSecret: "dead-token", TokenExpiry: &past},
		},
	})

	user, err := p.ValidateAPIToken(ctx, "live-token")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)

	user, err = p.ValidateAPIToken(ctx, "dead-token")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = p.ValidateAPIToken(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, user)
}
