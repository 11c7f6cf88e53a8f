// Package bbolt provides a BBolt-backed storage repository. It is the
// default backend for single-node deployments.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/luxquant/omnitron/storage"
)

var (
	bucketUsers    = []byte("users")
	bucketTargets  = []byte("targets")
	bucketRoles    = []byte("roles")
	bucketTickets  = []byte("tickets")
	bucketSessions = []byte("sessions")
)

// Store implements storage.Repository backed by a BBolt database.
//
// BBolt serializes all Update transactions, which is what gives UpdateTicket
// its at-most-once consumption guarantee within one process file.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketTargets, bucketRoles, bucketTickets, bucketSessions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns
// a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func get[T any](s *Store, bucket []byte, key string) (*T, error) {
	var out *T
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
		}
		out = new(T)
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func put[T any](s *Store, bucket []byte, key string, record *T) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func create[T any](s *Store, bucket []byte, key string, record *T) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) != nil {
			return fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrConflict)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func update[T any](s *Store, bucket []byte, key string, fn func(*T) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
		}
		record := new(T)
		if err := json.Unmarshal(data, record); err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
		updated, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), updated)
	})
}

func list[T any](s *Store, bucket []byte) ([]T, error) {
	var out []T
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, data []byte) error {
			var record T
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			out = append(out, record)
			return nil
		})
	})
	return out, err
}

func (s *Store) GetUser(_ context.Context, username string) (*storage.UserRecord, error) {
	return get[storage.UserRecord](s, bucketUsers, username)
}

func (s *Store) PutUser(_ context.Context, user *storage.UserRecord) error {
	return create(s, bucketUsers, user.Username, user)
}

func (s *Store) UpdateUser(_ context.Context, username string, fn func(*storage.UserRecord) error) error {
	return update(s, bucketUsers, username, fn)
}

func (s *Store) ListUsers(_ context.Context) ([]storage.UserRecord, error) {
	return list[storage.UserRecord](s, bucketUsers)
}

func (s *Store) GetTarget(_ context.Context, name string) (*storage.TargetRecord, error) {
	return get[storage.TargetRecord](s, bucketTargets, name)
}

func (s *Store) PutTarget(_ context.Context, target *storage.TargetRecord) error {
	return put(s, bucketTargets, target.Name, target)
}

func (s *Store) ListTargets(_ context.Context) ([]storage.TargetRecord, error) {
	return list[storage.TargetRecord](s, bucketTargets)
}

func (s *Store) PutRole(_ context.Context, role *storage.RoleRecord) error {
	return put(s, bucketRoles, role.Name, role)
}

func (s *Store) ListRoles(_ context.Context) ([]storage.RoleRecord, error) {
	return list[storage.RoleRecord](s, bucketRoles)
}

func (s *Store) GetTicket(_ context.Context, id uuid.UUID) (*storage.TicketRecord, error) {
	return get[storage.TicketRecord](s, bucketTickets, id.String())
}

func (s *Store) FindTicketBySecret(_ context.Context, secret string) (*storage.TicketRecord, error) {
	var found *storage.TicketRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTickets).ForEach(func(_, data []byte) error {
			var t storage.TicketRecord
			if err := json.Unmarshal(data, &t); err != nil {
				return err
			}
			if t.Secret == secret {
				found = &t
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (s *Store) PutTicket(_ context.Context, ticket *storage.TicketRecord) error {
	return put(s, bucketTickets, ticket.ID.String(), ticket)
}

func (s *Store) UpdateTicket(_ context.Context, id uuid.UUID, fn func(*storage.TicketRecord) error) error {
	return update(s, bucketTickets, id.String(), fn)
}

func (s *Store) DeleteTicket(_ context.Context, id uuid.UUID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		key := []byte(id.String())
		if b.Get(key) == nil {
			return fmt.Errorf("ticket %s: %w", id, storage.ErrNotFound)
		}
		return b.Delete(key)
	})
}

func (s *Store) ListTickets(_ context.Context) ([]storage.TicketRecord, error) {
	return list[storage.TicketRecord](s, bucketTickets)
}

func (s *Store) PutSession(_ context.Context, session *storage.SessionRecord) error {
	return put(s, bucketSessions, session.ID.String(), session)
}

func (s *Store) UpdateSession(_ context.Context, id uuid.UUID, fn func(*storage.SessionRecord) error) error {
	return update(s, bucketSessions, id.String(), fn)
}

func (s *Store) ListSessions(_ context.Context) ([]storage.SessionRecord, error) {
	return list[storage.SessionRecord](s, bucketSessions)
}

func (s *Store) PruneSessions(_ context.Context, endedBefore time.Time) (int, error) {
	pruned := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var stale [][]byte
		err := b.ForEach(func(k, data []byte) error {
			var rec storage.SessionRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			if rec.Ended != nil && rec.Ended.Before(endedBefore) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}
