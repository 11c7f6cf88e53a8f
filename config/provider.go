package config

import (
	"context"

	"github.com/luxquant/omnitron/auth"
	"github.com/luxquant/omnitron/storage"
)

// Provider is the interface the core components use to fetch users, targets
// and credentials from whatever backs the configuration. Implementations
// must be safe for concurrent use.
type Provider interface {
	ListUsers(ctx context.Context) ([]storage.UserRecord, error)
	ListTargets(ctx context.Context) ([]storage.TargetRecord, error)

	// ValidateCredential checks one client-presented credential against the
	// user's stored credentials. A missing user yields false, not an error.
	ValidateCredential(ctx context.Context, username string, credential auth.Credential) (bool, error)

	// GetCredentialPolicy resolves the effective policy for a user given the
	// credential kinds the current protocol can collect. An unknown user
	// yields auth.ErrUserNotFound.
	GetCredentialPolicy(ctx context.Context, username string, supported []auth.CredentialKind) (auth.Policy, error)

	// AuthorizeTarget reports whether the user's and target's role sets
	// intersect. Missing user or target is false, never an error.
	AuthorizeTarget(ctx context.Context, username, targetName string) (bool, error)

	// UpdatePublicKeyLastUsed stamps the matching stored public key after a
	// successful key authentication.
	UpdatePublicKeyLastUsed(ctx context.Context, username string, credential auth.Credential) error

	// ValidateAPIToken resolves a bearer API token to its owning user, nil
	// when the token is unknown or expired.
	ValidateAPIToken(ctx context.Context, token string) (*storage.UserRecord, error)
}

// A Provider doubles as the policy source for the auth state store.
var _ auth.PolicySource = (Provider)(nil)
