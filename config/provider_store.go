package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luxquant/omnitron/auth"
	"github.com/luxquant/omnitron/authz"
	"github.com/luxquant/omnitron/internal/secrets"
	"github.com/luxquant/omnitron/storage"
)

// StoreProvider implements Provider over the record store.
type StoreProvider struct {
	repo  storage.Repository
	authz *authz.Authorizer
	log   *slog.Logger
	now   func() time.Time
}

var _ Provider = (*StoreProvider)(nil)

// NewStoreProvider creates a Provider backed by repo.
func NewStoreProvider(repo storage.Repository, logger *slog.Logger) *StoreProvider {
	return &StoreProvider{
		repo:  repo,
		authz: authz.New(repo, logger),
		log:   logger.With("component", "configprovider"),
		now:   time.Now,
	}
}

func (p *StoreProvider) ListUsers(ctx context.Context) ([]storage.UserRecord, error) {
	return p.repo.ListUsers(ctx)
}

func (p *StoreProvider) ListTargets(ctx context.Context) ([]storage.TargetRecord, error) {
	return p.repo.ListTargets(ctx)
}

// openSSHKey renders a presented public key in the stored "<algo> <base64>"
// form.
func openSSHKey(cred auth.PublicKeyCredential) string {
	return cred.Algorithm + " " + base64.StdEncoding.EncodeToString(cred.KeyBytes)
}

func (p *StoreProvider) ValidateCredential(ctx context.Context, username string, credential auth.Credential) (bool, error) {
	user, err := p.repo.GetUser(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		p.log.Warn("credential check for unknown user", "username", username)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading user %s: %w", username, err)
	}

	switch cred := credential.(type) {
	case auth.PasswordCredential:
		for _, stored := range user.Credentials {
			if stored.Kind != auth.KindPassword {
				continue
			}
			ok, err := secrets.VerifyPassword(cred.Password, stored.PasswordHash)
			if err != nil {
				p.log.Error("verifying password hash", "username", username, "error", err)
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case auth.OtpCredential:
		for _, stored := range user.Credentials {
			if stored.Kind == auth.KindTotp && secrets.VerifyTotp(cred.Code, stored.TotpSecret) {
				return true, nil
			}
		}
		return false, nil

	case auth.PublicKeyCredential:
		presented := openSSHKey(cred)
		p.log.Debug("checking client public key", "username", username, "key", presented)
		for _, stored := range user.Credentials {
			if stored.Kind == auth.KindPublicKey && stored.Key == presented {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, auth.ErrInvalidCredentialType
	}
}

func (p *StoreProvider) GetCredentialPolicy(ctx context.Context, username string, supported []auth.CredentialKind) (auth.Policy, error) {
	user, err := p.repo.GetUser(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		p.log.Warn("policy lookup for unknown user", "username", username)
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", username, err)
	}

	// The usable kinds are those the user actually possesses, restricted to
	// what the current protocol can collect.
	supportedSet := auth.NewKindSet(supported...)
	var usable []auth.CredentialKind
	seen := auth.NewKindSet()
	for _, stored := range user.Credentials {
		if supportedSet.Contains(stored.Kind) && !seen.Contains(stored.Kind) {
			seen.Add(stored.Kind)
			usable = append(usable, stored.Kind)
		}
	}

	defaultPolicy := auth.AnySinglePolicy{Supported: usable}
	if user.CredentialPolicy == nil {
		return defaultPolicy, nil
	}

	policy := auth.PerProtocolPolicy{
		Default:   defaultPolicy,
		Protocols: make(map[string]auth.Policy),
	}
	declared := map[string][]auth.CredentialKind{
		auth.ProtocolSSH:      user.CredentialPolicy.SSH,
		auth.ProtocolHTTP:     user.CredentialPolicy.HTTP,
		auth.ProtocolMySQL:    user.CredentialPolicy.MySQL,
		auth.ProtocolPostgres: user.CredentialPolicy.Postgres,
	}
	for protocol, required := range declared {
		if required == nil {
			continue
		}
		policy.Protocols[protocol] = auth.AllPolicy{
			Supported: usable,
			Required:  required,
		}
	}
	return policy, nil
}

func (p *StoreProvider) AuthorizeTarget(ctx context.Context, username, targetName string) (bool, error) {
	return p.authz.AuthorizeTarget(ctx, username, targetName)
}

func (p *StoreProvider) UpdatePublicKeyLastUsed(ctx context.Context, username string, credential auth.Credential) error {
	cred, ok := credential.(auth.PublicKeyCredential)
	if !ok {
		return auth.ErrInvalidCredentialType
	}
	presented := openSSHKey(cred)

	err := p.repo.UpdateUser(ctx, username, func(user *storage.UserRecord) error {
		for i := range user.Credentials {
			stored := &user.Credentials[i]
			if stored.Kind == auth.KindPublicKey && stored.Key == presented {
				now := p.now()
				stored.LastUsed = &now
				return nil
			}
		}
		// Key was removed since validation; nothing to stamp.
		p.log.Warn("public key no longer present", "username", username)
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (p *StoreProvider) ValidateAPIToken(ctx context.Context, token string) (*storage.UserRecord, error) {
	users, err := p.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	now := p.now()
	for i := range users {
		for _, stored := range users[i].Credentials {
			if stored.Kind != auth.KindAPIToken || stored.TokenSecret != token {
				continue
			}
			if stored.TokenExpiry != nil && stored.TokenExpiry.Before(now) {
				p.log.Warn("expired api token presented", "username", users[i].Username)
				continue
			}
			return &users[i], nil
		}
	}
	return nil, nil
}
