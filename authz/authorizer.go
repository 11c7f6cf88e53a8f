// Package authz implements target authorization: a user may reach a target
// iff their role sets intersect. The role lists on user and target records
// are the sole authorization substrate; there is no separate ACL entity.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/luxquant/omnitron/storage"
)

// Authorizer answers role-intersection checks against the record store.
type Authorizer struct {
	repo storage.Repository
	log  *slog.Logger
}

// New creates an Authorizer backed by repo.
func New(repo storage.Repository, logger *slog.Logger) *Authorizer {
	return &Authorizer{repo: repo, log: logger.With("component", "authz")}
}

// AuthorizeTarget reports whether username may reach targetName. A missing
// user or target is a hard false, not an error, so the protocol boundary
// cannot distinguish "no such target" from "not authorized".
func (a *Authorizer) AuthorizeTarget(ctx context.Context, username, targetName string) (bool, error) {
	user, err := a.repo.GetUser(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		a.log.Warn("authorization check for unknown user", "username", username)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading user %s: %w", username, err)
	}

	target, err := a.repo.GetTarget(ctx, targetName)
	if errors.Is(err, storage.ErrNotFound) {
		a.log.Warn("authorization check for unknown target", "target", targetName)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading target %s: %w", targetName, err)
	}

	return intersects(user.Roles, target.Roles), nil
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, r := range a {
		set[r] = struct{}{}
	}
	for _, r := range b {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
