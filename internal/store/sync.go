package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lherron/folio/internal/bundle"
)

// LocalBundle builds the user's local SyncBundle. Soft-deleted rows and
// tombstones are included so that deletions propagate.
func (s *Store) LocalBundle(ctx context.Context, userID string) (*bundle.SyncBundle, error) {
	b := bundle.Empty()
	var err error
	if b.Projects, err = projectsTable.query(ctx, s.db, "user_id = ?", userID); err != nil {
		return nil, err
	}
	if b.Chapters, err = chaptersTable.query(ctx, s.db, "user_id = ?", userID); err != nil {
		return nil, err
	}
	if b.Characters, err = charactersTable.query(ctx, s.db, "user_id = ?", userID); err != nil {
		return nil, err
	}
	if b.Terms, err = termsTable.query(ctx, s.db, "user_id = ?", userID); err != nil {
		return nil, err
	}
	if b.WorldDocuments, err = worldDocumentsTable.query(ctx, s.db, "user_id = ?", userID); err != nil {
		return nil, err
	}
	if b.Memos, err = memosTable.query(ctx, s.db, "user_id = ?", userID); err != nil {
		return nil, err
	}
	if b.Tombstones, err = tombstonesTable.query(ctx, s.db, "user_id = ?", userID); err != nil {
		return nil, err
	}
	return b, nil
}

// ApplyStats reports what ApplyBundle changed.
type ApplyStats struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
}

// ApplyBundle replaces the user's local state with a merged bundle in one
// transaction: every merged entity is upserted, the user's rows whose ids
// are absent from the bundle are hard-deleted, and tombstones are upserted.
func (s *Store) ApplyBundle(ctx context.Context, userID string, b *bundle.SyncBundle) (ApplyStats, error) {
	var stats ApplyStats
	if b == nil {
		b = bundle.Empty()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		steps := []func() error{
			func() error { return applyTable(ctx, tx, projectsTable, userID, b.Projects, true, &stats) },
			func() error { return applyTable(ctx, tx, chaptersTable, userID, b.Chapters, true, &stats) },
			func() error { return applyTable(ctx, tx, charactersTable, userID, b.Characters, true, &stats) },
			func() error { return applyTable(ctx, tx, termsTable, userID, b.Terms, true, &stats) },
			func() error { return applyTable(ctx, tx, worldDocumentsTable, userID, b.WorldDocuments, true, &stats) },
			func() error { return applyTable(ctx, tx, memosTable, userID, b.Memos, true, &stats) },
			// A merged bundle carries the union of tombstones; nothing to prune.
			func() error { return applyTable(ctx, tx, tombstonesTable, userID, b.Tombstones, false, &stats) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ApplyStats{}, err
	}
	return stats, nil
}

func applyTable[T any](ctx context.Context, tx *sql.Tx, t table[T], userID string, items []T, prune bool, stats *ApplyStats) error {
	keep := make(map[string]struct{}, len(items))
	for _, item := range items {
		keep[t.id(item)] = struct{}{}
	}

	if prune {
		existing, err := t.userIDs(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, rowID := range existing {
			if _, ok := keep[rowID]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.name+" WHERE id = ?", rowID); err != nil {
				return fmt.Errorf("failed to delete %s %s: %w", t.kind, rowID, err)
			}
			stats.Deleted++
		}
	}

	for _, item := range items {
		if err := t.upsert(ctx, tx, item, userID); err != nil {
			return err
		}
		stats.Upserted++
	}
	return nil
}

// SyncState is the outcome of the user's last successful sync cycle.
type SyncState struct {
	UserID       string `json:"userId"`
	MergedRev    string `json:"mergedRev"`
	LastSyncedAt string `json:"lastSyncedAt"`
}

// GetSyncState returns the user's last sync state or ErrNotFound.
func (s *Store) GetSyncState(ctx context.Context, userID string) (*SyncState, error) {
	st := SyncState{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		"SELECT merged_rev, last_synced_at FROM sync_state WHERE user_id = ?", userID).
		Scan(&st.MergedRev, &st.LastSyncedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync state for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	return &st, nil
}

// SetSyncState records a successful sync cycle.
func (s *Store) SetSyncState(ctx context.Context, userID, mergedRev string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, merged_rev, last_synced_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET merged_rev = excluded.merged_rev, last_synced_at = excluded.last_synced_at
	`, userID, mergedRev, s.timestamp())
	if err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}
