// Package tickets implements temporary-access tokens: lookup by opaque
// secret, validity checking, and at-most-once consumption of limited-use
// tickets.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/luxquant/omnitron/internal/secrets"
	"github.com/luxquant/omnitron/storage"
)

var (
	// ErrInconsistentState indicates a ticket vanished or was exhausted
	// between authorization and consumption. Callers must treat this as an
	// auth failure, not a crash.
	ErrInconsistentState = errors.New("ticket state inconsistent")
)

// Service authorizes and consumes tickets against the record store.
type Service struct {
	repo storage.Repository
	log  *slog.Logger
	now  func() time.Time
}

// NewService creates a ticket service backed by repo.
func NewService(repo storage.Repository, logger *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  logger.With("component", "tickets"),
		now:  time.Now,
	}
}

// Authorize looks a ticket up by its opaque secret. It returns (nil, nil)
// when the ticket is unknown, exhausted or expired; the three rejection
// paths are logged with differentiated reasons while the caller sees one
// uniform "not authorized" outcome.
func (s *Service) Authorize(ctx context.Context, secret string) (*storage.TicketRecord, error) {
	ticket, err := s.repo.FindTicketBySecret(ctx, secret)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("ticket not found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up ticket: %w", err)
	}

	if ticket.UsesLeft != nil && *ticket.UsesLeft == 0 {
		s.log.Warn("ticket is used up", "ticket_id", ticket.ID.String())
		return nil, nil
	}
	if ticket.Expiry != nil && ticket.Expiry.Before(s.now()) {
		s.log.Warn("ticket has expired", "ticket_id", ticket.ID.String())
		return nil, nil
	}

	return ticket, nil
}

// Consume decrements a limited ticket's remaining uses by one; unlimited
// tickets pass through untouched. The decrement is conditional and runs
// inside the store's atomic update, so two concurrent consumers of a
// one-use ticket cannot both succeed: the loser gets ErrInconsistentState.
func (s *Service) Consume(ctx context.Context, id uuid.UUID) error {
	err := s.repo.UpdateTicket(ctx, id, func(rec *storage.TicketRecord) error {
		if rec.UsesLeft == nil {
			return nil
		}
		if *rec.UsesLeft == 0 {
			return ErrInconsistentState
		}
		n := *rec.UsesLeft - 1
		rec.UsesLeft = &n
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between authorization and consumption.
		err = ErrInconsistentState
	}
	if errors.Is(err, ErrInconsistentState) {
		s.log.Warn("ticket consumption raced or ticket vanished", "ticket_id", id.String())
		return err
	}
	if err != nil {
		return fmt.Errorf("consuming ticket %s: %w", id, err)
	}
	return nil
}

// Create issues a new ticket for a user/target pair and returns it with its
// freshly generated secret. usesLeft == nil means unlimited; expiry == nil
// means no time bound.
func (s *Service) Create(ctx context.Context, username, targetName string, usesLeft *uint32, expiry *time.Time) (*storage.TicketRecord, error) {
	secret, err := secrets.NewToken()
	if err != nil {
		return nil, err
	}
	ticket := &storage.TicketRecord{
		ID:         uuid.New(),
		Secret:     secret,
		Username:   username,
		TargetName: targetName,
		UsesLeft:   usesLeft,
		Expiry:     expiry,
		Created:    s.now(),
	}
	if err := s.repo.PutTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("storing ticket: %w", err)
	}
	s.log.Info("ticket created",
		"ticket_id", ticket.ID.String(), "username", username, "target", targetName)
	return ticket, nil
}

// Delete removes a ticket outright, regardless of remaining uses.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteTicket(ctx, id); err != nil {
		return err
	}
	s.log.Info("ticket deleted", "ticket_id", id.String())
	return nil
}

// List returns all tickets.
func (s *Service) List(ctx context.Context) ([]storage.TicketRecord, error) {
	return s.repo.ListTickets(ctx)
}
