// Package store provides the persistence layer for manuscript entities,
// stamping ids and timestamps on local edits and reading and writing whole
// sync bundles.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lherron/folio/internal/db"
	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/events"
)

// ErrNotFound is returned when an entity id does not exist.
var ErrNotFound = errors.New("entity not found")

// Store is the root store over one local database.
type Store struct {
	db     *db.DB
	events *events.Writer
	now    func() time.Time
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	return &Store{
		db:     database,
		events: events.NewWriter(database.DB),
		now:    time.Now,
	}
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Events returns the sync log writer.
func (s *Store) Events() *events.Writer {
	return s.events
}

// SetClock replaces the clock used to stamp createdAt/updatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) timestamp() string {
	return domain.FormatTimestamp(s.now())
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
