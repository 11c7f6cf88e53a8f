// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Records are stored as JSONB documents keyed by their natural identifier,
// mirroring the key space used by the BBolt and in-memory backends.
// UpdateTicket takes a row lock (SELECT ... FOR UPDATE) so that ticket
// consumption stays at-most-once even when several gateway processes share
// the same database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/luxquant/omnitron/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given database handle and
// ensures the required tables exist.
func NewRepository(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects using a lib/pq connection string and returns a Repository.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	return NewRepository(db)
}

func (s *Store) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS gateway_records (
	record_type TEXT NOT NULL,
	record_id TEXT NOT NULL,
	body JSONB NOT NULL,
	PRIMARY KEY (record_type, record_id)
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure gateway_records schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const (
	typeUser    = "user"
	typeTarget  = "target"
	typeRole    = "role"
	typeTicket  = "ticket"
	typeSession = "session"
)

func getRecord[T any](ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, recordType, recordID string) (*T, error) {
	var body []byte
	err := q.QueryRowContext(ctx,
		`SELECT body FROM gateway_records WHERE record_type = $1 AND record_id = $2`,
		recordType, recordID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s: %w", recordType, recordID, err)
	}
	out := new(T)
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", recordType, recordID, err)
	}
	return out, nil
}

// createRecord inserts without ON CONFLICT; a duplicate key surfaces as
// storage.ErrConflict.
func (s *Store) createRecord(ctx context.Context, recordType, recordID string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO gateway_records (record_type, record_id, body) VALUES ($1, $2, $3)`,
		recordType, recordID, body)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("storing %s/%s: %w", recordType, recordID, err)
	}
	return nil
}

func (s *Store) putRecord(ctx context.Context, recordType, recordID string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO gateway_records (record_type, record_id, body) VALUES ($1, $2, $3)
ON CONFLICT (record_type, record_id) DO UPDATE SET body = EXCLUDED.body`,
		recordType, recordID, body)
	if err != nil {
		return fmt.Errorf("storing %s/%s: %w", recordType, recordID, err)
	}
	return nil
}

func listRecords[T any](ctx context.Context, db *sql.DB, recordType string) ([]T, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT body FROM gateway_records WHERE record_type = $1 ORDER BY record_id`,
		recordType)
	if err != nil {
		return nil, fmt.Errorf("listing %s records: %w", recordType, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var record T
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// updateRecord runs fn over the current record inside a transaction holding
// a row lock, then writes the result back.
func updateRecord[T any](ctx context.Context, s *Store, recordType, recordID string, fn func(*T) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update of %s/%s: %w", recordType, recordID, err)
	}
	defer tx.Rollback()

	var body []byte
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM gateway_records WHERE record_type = $1 AND record_id = $2 FOR UPDATE`,
		recordType, recordID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking %s/%s: %w", recordType, recordID, err)
	}

	record := new(T)
	if err := json.Unmarshal(body, record); err != nil {
		return err
	}
	if err := fn(record); err != nil {
		return err
	}
	updated, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE gateway_records SET body = $3 WHERE record_type = $1 AND record_id = $2`,
		recordType, recordID, updated); err != nil {
		return fmt.Errorf("updating %s/%s: %w", recordType, recordID, err)
	}
	return tx.Commit()
}

func (s *Store) deleteRecord(ctx context.Context, recordType, recordID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM gateway_records WHERE record_type = $1 AND record_id = $2`,
		recordType, recordID)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", recordType, recordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*storage.UserRecord, error) {
	return getRecord[storage.UserRecord](ctx, s.db, typeUser, username)
}

func (s *Store) PutUser(ctx context.Context, user *storage.UserRecord) error {
	return s.createRecord(ctx, typeUser, user.Username, user)
}

func (s *Store) UpdateUser(ctx context.Context, username string, fn func(*storage.UserRecord) error) error {
	return updateRecord(ctx, s, typeUser, username, fn)
}

func (s *Store) ListUsers(ctx context.Context) ([]storage.UserRecord, error) {
	return listRecords[storage.UserRecord](ctx, s.db, typeUser)
}

func (s *Store) GetTarget(ctx context.Context, name string) (*storage.TargetRecord, error) {
	return getRecord[storage.TargetRecord](ctx, s.db, typeTarget, name)
}

func (s *Store) PutTarget(ctx context.Context, target *storage.TargetRecord) error {
	return s.putRecord(ctx, typeTarget, target.Name, target)
}

func (s *Store) ListTargets(ctx context.Context) ([]storage.TargetRecord, error) {
	return listRecords[storage.TargetRecord](ctx, s.db, typeTarget)
}

func (s *Store) PutRole(ctx context.Context, role *storage.RoleRecord) error {
	return s.putRecord(ctx, typeRole, role.Name, role)
}

func (s *Store) ListRoles(ctx context.Context) ([]storage.RoleRecord, error) {
	return listRecords[storage.RoleRecord](ctx, s.db, typeRole)
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (*storage.TicketRecord, error) {
	return getRecord[storage.TicketRecord](ctx, s.db, typeTicket, id.String())
}

func (s *Store) FindTicketBySecret(ctx context.Context, secret string) (*storage.TicketRecord, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM gateway_records WHERE record_type = $1 AND body->>'secret' = $2`,
		typeTicket, secret).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up ticket by secret: %w", err)
	}
	out := new(storage.TicketRecord)
	if err := json.Unmarshal(body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) PutTicket(ctx context.Context, ticket *storage.TicketRecord) error {
	return s.putRecord(ctx, typeTicket, ticket.ID.String(), ticket)
}

func (s *Store) UpdateTicket(ctx context.Context, id uuid.UUID, fn func(*storage.TicketRecord) error) error {
	return updateRecord(ctx, s, typeTicket, id.String(), fn)
}

func (s *Store) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	return s.deleteRecord(ctx, typeTicket, id.String())
}

func (s *Store) ListTickets(ctx context.Context) ([]storage.TicketRecord, error) {
	return listRecords[storage.TicketRecord](ctx, s.db, typeTicket)
}

func (s *Store) PutSession(ctx context.Context, session *storage.SessionRecord) error {
	return s.putRecord(ctx, typeSession, session.ID.String(), session)
}

func (s *Store) UpdateSession(ctx context.Context, id uuid.UUID, fn func(*storage.SessionRecord) error) error {
	return updateRecord(ctx, s, typeSession, id.String(), fn)
}

func (s *Store) ListSessions(ctx context.Context) ([]storage.SessionRecord, error) {
	return listRecords[storage.SessionRecord](ctx, s.db, typeSession)
}

func (s *Store) PruneSessions(ctx context.Context, endedBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM gateway_records
WHERE record_type = $1
  AND body->>'ended' IS NOT NULL
  AND (body->>'ended')::timestamptz < $2`,
		typeSession, endedBefore)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
