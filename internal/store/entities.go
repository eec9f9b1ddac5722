package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lherron/folio/internal/domain"
	"github.com/lherron/folio/internal/id"
)

const liveRows = "user_id = ? AND deleted_at IS NULL"

// stamp assigns an id and createdAt when missing and bumps updatedAt.
func (s *Store) stamp(userID string, entityID, createdAt, updatedAt *string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	now := s.timestamp()
	if *entityID == "" {
		*entityID = id.New()
	}
	if *createdAt == "" {
		*createdAt = now
	}
	*updatedAt = now
	return nil
}

// SaveProject inserts or updates a project as a local edit.
func (s *Store) SaveProject(ctx context.Context, p *domain.Project) error {
	if err := s.stamp(p.UserID, &p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	if err := domain.ValidateProject(p); err != nil {
		return err
	}
	return projectsTable.upsert(ctx, s.db, *p, p.UserID)
}

// SaveChapter inserts or updates a chapter as a local edit. WordCount is
// recomputed from Content.
func (s *Store) SaveChapter(ctx context.Context, c *domain.Chapter) error {
	if err := s.stamp(c.UserID, &c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	c.WordCount = CountWords(c.Content)
	if err := domain.ValidateChapter(c); err != nil {
		return err
	}
	return chaptersTable.upsert(ctx, s.db, *c, c.UserID)
}

// SaveCharacter inserts or updates a character as a local edit.
func (s *Store) SaveCharacter(ctx context.Context, c *domain.Character) error {
	if err := s.stamp(c.UserID, &c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	if err := domain.ValidateCharacter(c); err != nil {
		return err
	}
	return charactersTable.upsert(ctx, s.db, *c, c.UserID)
}

// SaveTerm inserts or updates a glossary term as a local edit.
func (s *Store) SaveTerm(ctx context.Context, t *domain.Term) error {
	if err := s.stamp(t.UserID, &t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return err
	}
	if err := domain.ValidateTerm(t); err != nil {
		return err
	}
	return termsTable.upsert(ctx, s.db, *t, t.UserID)
}

// SaveWorldDocument inserts or updates a world document as a local edit.
func (s *Store) SaveWorldDocument(ctx context.Context, w *domain.WorldDocument) error {
	if err := s.stamp(w.UserID, &w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return err
	}
	if err := domain.ValidateWorldDocument(w); err != nil {
		return err
	}
	return worldDocumentsTable.upsert(ctx, s.db, *w, w.UserID)
}

// SaveMemo inserts or updates a memo as a local edit.
func (s *Store) SaveMemo(ctx context.Context, m *domain.Memo) error {
	if err := s.stamp(m.UserID, &m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return err
	}
	if err := domain.ValidateMemo(m); err != nil {
		return err
	}
	return memosTable.upsert(ctx, s.db, *m, m.UserID)
}

// ListProjects returns the user's projects that are not deleted.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	return projectsTable.query(ctx, s.db, liveRows, userID)
}

// ListChapters returns a project's chapters in reading order.
func (s *Store) ListChapters(ctx context.Context, userID, projectID string) ([]domain.Chapter, error) {
	return chaptersTable.query(ctx, s.db, liveRows+" AND project_id = ?", userID, projectID)
}

// ListCharacters returns a project's characters.
func (s *Store) ListCharacters(ctx context.Context, userID, projectID string) ([]domain.Character, error) {
	return charactersTable.query(ctx, s.db, liveRows+" AND project_id = ?", userID, projectID)
}

// ListTerms returns a project's glossary.
func (s *Store) ListTerms(ctx context.Context, userID, projectID string) ([]domain.Term, error) {
	return termsTable.query(ctx, s.db, liveRows+" AND project_id = ?", userID, projectID)
}

// ListWorldDocuments returns a project's world documents.
func (s *Store) ListWorldDocuments(ctx context.Context, userID, projectID string) ([]domain.WorldDocument, error) {
	return worldDocumentsTable.query(ctx, s.db, liveRows+" AND project_id = ?", userID, projectID)
}

// ListMemos returns a project's memos.
func (s *Store) ListMemos(ctx context.Context, userID, projectID string) ([]domain.Memo, error) {
	return memosTable.query(ctx, s.db, liveRows+" AND project_id = ?", userID, projectID)
}

// ListTombstones returns every tombstone of the user.
func (s *Store) ListTombstones(ctx context.Context, userID string) ([]domain.Tombstone, error) {
	return tombstonesTable.query(ctx, s.db, "user_id = ?", userID)
}

// Get returns the entity of kind with the given id, deleted or not.
func (s *Store) Get(ctx context.Context, kind domain.EntityType, entityID string) (domain.Record, error) {
	return getRecord(ctx, s.db, kind, entityID)
}

// LiveIDs returns the ids of the user's non-deleted entities of kind, for
// prefix resolution.
func (s *Store) LiveIDs(ctx context.Context, userID string, kind domain.EntityType) ([]string, error) {
	name, err := tableName(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM "+name+" WHERE "+liveRows, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

func tableName(kind domain.EntityType) (string, error) {
	switch kind {
	case domain.EntityProject:
		return projectsTable.name, nil
	case domain.EntityChapter:
		return chaptersTable.name, nil
	case domain.EntityCharacter:
		return charactersTable.name, nil
	case domain.EntityTerm:
		return termsTable.name, nil
	case domain.EntityWorldDocument:
		return worldDocumentsTable.name, nil
	case domain.EntityMemo:
		return memosTable.name, nil
	}
	return "", domain.ValidateEntityType(string(kind))
}

// SoftDelete marks an entity deleted and records a tombstone for it in one
// transaction. Deleting a project writes a project tombstone, which removes
// the project's children from every merge it takes part in.
func (s *Store) SoftDelete(ctx context.Context, userID string, kind domain.EntityType, entityID string) (*domain.Tombstone, error) {
	name, err := tableName(kind)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	var tomb *domain.Tombstone
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		record, err := getRecord(ctx, tx, kind, entityID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE "+name+" SET deleted_at = ?, updated_at = ? WHERE id = ? AND user_id = ?",
			now, now, entityID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", kind, entityID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", kind, entityID, err)
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", kind, entityID, ErrNotFound)
		}

		tomb = &domain.Tombstone{
			ID:         id.New(),
			UserID:     userID,
			ProjectID:  record.RecordProjectID(),
			EntityType: kind,
			EntityID:   entityID,
			DeletedAt:  now,
			UpdatedAt:  now,
		}
		return tombstonesTable.upsert(ctx, tx, *tomb, userID)
	})
	if err != nil {
		return nil, err
	}
	return tomb, nil
}

func getRecord(ctx context.Context, q queryer, kind domain.EntityType, entityID string) (domain.Record, error) {
	switch kind {
	case domain.EntityProject:
		return projectsTable.get(ctx, q, entityID)
	case domain.EntityChapter:
		return chaptersTable.get(ctx, q, entityID)
	case domain.EntityCharacter:
		return charactersTable.get(ctx, q, entityID)
	case domain.EntityTerm:
		return termsTable.get(ctx, q, entityID)
	case domain.EntityWorldDocument:
		return worldDocumentsTable.get(ctx, q, entityID)
	case domain.EntityMemo:
		return memosTable.get(ctx, q, entityID)
	}
	return nil, domain.ValidateEntityType(string(kind))
}

// CountWords counts whitespace-separated words.
func CountWords(content string) int {
	return len(strings.Fields(content))
}
