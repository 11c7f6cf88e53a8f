// Package storage defines the record store abstraction the gateway core
// persists its configuration and session records through. The core is
// agnostic to the backend; implementations live in the bbolt, memory and
// postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write collides with an existing record.
	ErrConflict = errors.New("record already exists")
)

// Repository is the persistence contract for gateway records.
//
// UpdateTicket is the one operation with a stronger guarantee: the read,
// the mutation callback and the write-back execute atomically with respect
// to other UpdateTicket calls for the same ticket, so limited-use tickets
// cannot be over-consumed by concurrent sessions.
type Repository interface {
	GetUser(ctx context.Context, username string) (*UserRecord, error)
	// PutUser is create-only: a taken username yields ErrConflict, so two
	// racing account creations cannot silently merge.
	PutUser(ctx context.Context, user *UserRecord) error
	UpdateUser(ctx context.Context, username string, fn func(*UserRecord) error) error
	ListUsers(ctx context.Context) ([]UserRecord, error)

	GetTarget(ctx context.Context, name string) (*TargetRecord, error)
	PutTarget(ctx context.Context, target *TargetRecord) error
	ListTargets(ctx context.Context) ([]TargetRecord, error)

	PutRole(ctx context.Context, role *RoleRecord) error
	ListRoles(ctx context.Context) ([]RoleRecord, error)

	GetTicket(ctx context.Context, id uuid.UUID) (*TicketRecord, error)
	FindTicketBySecret(ctx context.Context, secret string) (*TicketRecord, error)
	PutTicket(ctx context.Context, ticket *TicketRecord) error
	UpdateTicket(ctx context.Context, id uuid.UUID, fn func(*TicketRecord) error) error
	DeleteTicket(ctx context.Context, id uuid.UUID) error
	ListTickets(ctx context.Context) ([]TicketRecord, error)

	PutSession(ctx context.Context, session *SessionRecord) error
	UpdateSession(ctx context.Context, id uuid.UUID, fn func(*SessionRecord) error) error
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	// PruneSessions deletes session records that ended before the cutoff and
	// returns how many were removed. Live sessions are never pruned.
	PruneSessions(ctx context.Context, endedBefore time.Time) (int, error)

	Close() error
}
