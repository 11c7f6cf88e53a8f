// Package core wires the gateway's shared services together and owns the
// long-lived background tasks: auth-state vacuuming, session-record
// retention and the configuration reload sweep.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luxquant/omnitron/auth"
	"github.com/luxquant/omnitron/config"
	"github.com/luxquant/omnitron/session"
	"github.com/luxquant/omnitron/storage"
	bboltstorage "github.com/luxquant/omnitron/storage/bbolt"
	"github.com/luxquant/omnitron/storage/memory"
	"github.com/luxquant/omnitron/storage/postgres"
	"github.com/luxquant/omnitron/tickets"
)

const (
	vacuumInterval    = 60 * time.Second
	retentionInterval = time.Hour
)

// Services is the dependency bundle shared by every protocol listener and
// the administrative API.
type Services struct {
	Config   *config.Config
	Repo     storage.Repository
	Provider config.Provider
	Auth     *auth.StateStore
	Events   *session.Broadcaster
	Sessions *session.Registry
	Tickets  *tickets.Service

	log *slog.Logger
}

// OpenRepository opens the record store selected by the configuration.
func OpenRepository(cfg *config.Config) (storage.Repository, error) {
	switch cfg.Storage.Backend {
	case "bbolt":
		return bboltstorage.NewRepositoryFromFile(cfg.Storage.Path, nil)
	case "memory":
		return memory.NewRepository(), nil
	case "postgres":
		return postgres.Open(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// New assembles the service bundle on top of an opened repository.
func New(cfg *config.Config, repo storage.Repository, logger *slog.Logger) *Services {
	provider := config.NewStoreProvider(repo, logger)
	events := session.NewBroadcaster()
	return &Services{
		Config:   cfg,
		Repo:     repo,
		Provider: provider,
		Auth:     auth.NewStateStore(provider, time.Duration(cfg.AuthStateTTL), logger),
		Events:   events,
		Sessions: session.NewRegistry(repo, events, logger),
		Tickets:  tickets.NewService(repo, logger),
		log:      logger.With("component", "services"),
	}
}

// Run starts the background loops and blocks until ctx is cancelled. Every
// loop observes the shutdown signal; none relies on process exit.
func (s *Services) Run(ctx context.Context) error {
	go s.loop(ctx, "auth state vacuum", vacuumInterval, func(context.Context) {
		s.Auth.Vacuum()
	})
	go s.loop(ctx, "session retention", retentionInterval, s.pruneSessions)

	if path := s.Config.Path(); path != "" {
		watcher, err := config.NewWatcher(path, 0, func() { s.HandleConfigReload(ctx) }, s.log)
		if err != nil {
			return fmt.Errorf("starting config watcher: %w", err)
		}
		go watcher.Run(ctx)
	}

	<-ctx.Done()
	return nil
}

func (s *Services) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("background loop stopped", "loop", name)
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Services) pruneSessions(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.Config.SessionRetention))
	pruned, err := s.Repo.PruneSessions(ctx, cutoff)
	if err != nil {
		s.log.Error("pruning session records", "error", err)
		return
	}
	if pruned > 0 {
		s.log.Info("pruned ended session records", "count", pruned)
	}
}

// HandleConfigReload re-validates every live bound session against the
// changed configuration and force-closes the ones whose authorization has
// lapsed. Per-session failures are logged, never propagated: a reload must
// not be failed by one stubborn session.
func (s *Services) HandleConfigReload(ctx context.Context) {
	s.log.Info("re-authorizing live sessions after configuration change")
	for _, sess := range s.Sessions.All() {
		username := sess.Username()
		target := sess.Target()
		if username == "" || target == nil {
			continue
		}
		ok, err := s.Provider.AuthorizeTarget(ctx, username, target.Name)
		if err != nil {
			s.log.Error("re-authorization check failed",
				"session_id", sess.ID().String(), "username", username, "target", target.Name, "error", err)
			continue
		}
		if !ok {
			s.log.Warn("closing session after authorization lapse",
				"session_id", sess.ID().String(), "username", username, "target", target.Name)
			sess.Close()
		}
	}
}

// AuthorizeSessionWithTicket redeems a ticket secret as the authorization
// shortcut for sess: the ticket is consumed and the session bound to the
// ticket's user and target. It returns false on any rejection; callers
// surface a generic "not authorized" outcome.
func (s *Services) AuthorizeSessionWithTicket(ctx context.Context, sess *session.Session, secret string) (bool, error) {
	ticket, err := s.Tickets.Authorize(ctx, secret)
	if err != nil {
		return false, err
	}
	if ticket == nil {
		return false, nil
	}
	if err := s.Tickets.Consume(ctx, ticket.ID); err != nil {
		if errors.Is(err, tickets.ErrInconsistentState) {
			return false, nil
		}
		return false, err
	}

	target, err := s.Repo.GetTarget(ctx, ticket.TargetName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("ticket references missing target",
				"ticket_id", ticket.ID.String(), "target", ticket.TargetName)
			return false, nil
		}
		return false, err
	}

	if err := sess.SetUsername(ctx, ticket.Username); err != nil {
		return false, err
	}
	if err := sess.SetTicket(ctx, ticket.ID); err != nil {
		return false, err
	}
	if err := sess.SetTarget(ctx, target); err != nil {
		return false, err
	}
	return true, nil
}

// BindSessionTarget runs the target-authorization check for the session's
// bound username and, when it passes, binds the target to the session. A
// false return covers both "no such target" and "not authorized".
func (s *Services) BindSessionTarget(ctx context.Context, sess *session.Session, targetName string) (bool, error) {
	username := sess.Username()
	if username == "" {
		return false, nil
	}
	ok, err := s.Provider.AuthorizeTarget(ctx, username, targetName)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	target, err := s.Repo.GetTarget(ctx, targetName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := sess.SetTarget(ctx, target); err != nil {
		return false, err
	}
	return true, nil
}
