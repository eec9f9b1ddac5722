package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lherron/folio/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// table maps one entity type onto its SQLite table. columns[0] is id and
// columns[1] is user_id.
type table[T any] struct {
	name    string
	kind    domain.EntityType
	columns []string
	values  func(T) ([]any, error)
	scan    func(scanner) (T, error)
	id      func(T) string
	// order overrides the default "created_at, id" listing order.
	order string
}

func (t table[T]) selectSQL() string {
	return "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.name
}

func (t table[T]) upsertSQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	sets := make([]string, 0, len(t.columns)-1)
	for _, c := range t.columns[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		t.name, strings.Join(t.columns, ", "), placeholders, strings.Join(sets, ", "))
}

// upsert inserts or replaces item. An empty user_id is filled with owner.
func (t table[T]) upsert(ctx context.Context, ex execer, item T, owner string) error {
	args, err := t.values(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", t.kind, t.id(item), err)
	}
	if args[1] == "" {
		args[1] = owner
	}
	if _, err := ex.ExecContext(ctx, t.upsertSQL(), args...); err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", t.kind, t.id(item), err)
	}
	return nil
}

func (t table[T]) query(ctx context.Context, q queryer, where string, args ...any) ([]T, error) {
	query := t.selectSQL()
	if where != "" {
		query += " WHERE " + where
	}
	order := t.order
	if order == "" {
		order = "created_at, id"
	}
	query += " ORDER BY " + order

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", t.name, err)
	}
	return out, nil
}

func (t table[T]) get(ctx context.Context, q queryer, id string) (T, error) {
	item, err := t.scan(q.QueryRowContext(ctx, t.selectSQL()+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return item, fmt.Errorf("%s %s: %w", t.kind, id, ErrNotFound)
	}
	if err != nil {
		return item, fmt.Errorf("failed to get %s %s: %w", t.kind, id, err)
	}
	return item, nil
}

// userIDs returns every id the user owns in the table.
func (t table[T]) userIDs(ctx context.Context, q queryer, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM "+t.name+" WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", t.name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", t.name, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

var projectsTable = table[domain.Project]{
	name:    "projects",
	kind:    domain.EntityProject,
	columns: []string{"id", "user_id", "title", "description", "created_at", "updated_at", "deleted_at"},
	values: func(p domain.Project) ([]any, error) {
		return []any{p.ID, p.UserID, p.Title, p.Description, p.CreatedAt, p.UpdatedAt, nullable(p.DeletedAt)}, nil
	},
	scan: func(sc scanner) (domain.Project, error) {
		var p domain.Project
		var deleted sql.NullString
		err := sc.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.CreatedAt, &p.UpdatedAt, &deleted)
		p.DeletedAt = fromNull(deleted)
		return p, err
	},
	id: func(p domain.Project) string { return p.ID },
}

var chaptersTable = table[domain.Chapter]{
	name:    "chapters",
	kind:    domain.EntityChapter,
	columns: []string{"id", "user_id", "project_id", "title", "content", "sort_order", "word_count", "created_at", "updated_at", "deleted_at"},
	values: func(c domain.Chapter) ([]any, error) {
		return []any{c.ID, c.UserID, c.ProjectID, c.Title, c.Content, c.Order, c.WordCount, c.CreatedAt, c.UpdatedAt, nullable(c.DeletedAt)}, nil
	},
	scan: func(sc scanner) (domain.Chapter, error) {
		var c domain.Chapter
		var deleted sql.NullString
		err := sc.Scan(&c.ID, &c.UserID, &c.ProjectID, &c.Title, &c.Content, &c.Order, &c.WordCount, &c.CreatedAt, &c.UpdatedAt, &deleted)
		c.DeletedAt = fromNull(deleted)
		return c, err
	},
	id:    func(c domain.Chapter) string { return c.ID },
	order: "project_id, sort_order, created_at, id",
}

var charactersTable = table[domain.Character]{
	name:    "characters",
	kind:    domain.EntityCharacter,
	columns: []string{"id", "user_id", "project_id", "name", "description", "role", "sort_order", "created_at", "updated_at", "deleted_at"},
	values: func(c domain.Character) ([]any, error) {
		return []any{c.ID, c.UserID, c.ProjectID, c.Name, c.Description, c.Role, c.Order, c.CreatedAt, c.UpdatedAt, nullable(c.DeletedAt)}, nil
	},
	scan: func(sc scanner) (domain.Character, error) {
		var c domain.Character
		var deleted sql.NullString
		err := sc.Scan(&c.ID, &c.UserID, &c.ProjectID, &c.Name, &c.Description, &c.Role, &c.Order, &c.CreatedAt, &c.UpdatedAt, &deleted)
		c.DeletedAt = fromNull(deleted)
		return c, err
	},
	id:    func(c domain.Character) string { return c.ID },
	order: "project_id, sort_order, created_at, id",
}

var termsTable = table[domain.Term]{
	name:    "terms",
	kind:    domain.EntityTerm,
	columns: []string{"id", "user_id", "project_id", "term", "definition", "category", "sort_order", "created_at", "updated_at", "deleted_at"},
	values: func(t domain.Term) ([]any, error) {
		return []any{t.ID, t.UserID, t.ProjectID, t.Term, t.Definition, t.Category, t.Order, t.CreatedAt, t.UpdatedAt, nullable(t.DeletedAt)}, nil
	},
	scan: func(sc scanner) (domain.Term, error) {
		var t domain.Term
		var deleted sql.NullString
		err := sc.Scan(&t.ID, &t.UserID, &t.ProjectID, &t.Term, &t.Definition, &t.Category, &t.Order, &t.CreatedAt, &t.UpdatedAt, &deleted)
		t.DeletedAt = fromNull(deleted)
		return t, err
	},
	id:    func(t domain.Term) string { return t.ID },
	order: "project_id, sort_order, created_at, id",
}

var worldDocumentsTable = table[domain.WorldDocument]{
	name:    "world_documents",
	kind:    domain.EntityWorldDocument,
	columns: []string{"id", "user_id", "project_id", "doc_type", "title", "content", "created_at", "updated_at", "deleted_at"},
	values: func(w domain.WorldDocument) ([]any, error) {
		return []any{w.ID, w.UserID, w.ProjectID, string(w.DocType), w.Title, w.Content, w.CreatedAt, w.UpdatedAt, nullable(w.DeletedAt)}, nil
	},
	scan: func(sc scanner) (domain.WorldDocument, error) {
		var w domain.WorldDocument
		var deleted sql.NullString
		err := sc.Scan(&w.ID, &w.UserID, &w.ProjectID, &w.DocType, &w.Title, &w.Content, &w.CreatedAt, &w.UpdatedAt, &deleted)
		w.DeletedAt = fromNull(deleted)
		return w, err
	},
	id: func(w domain.WorldDocument) string { return w.ID },
}

var memosTable = table[domain.Memo]{
	name:    "memos",
	kind:    domain.EntityMemo,
	columns: []string{"id", "user_id", "project_id", "title", "content", "tags", "created_at", "updated_at", "deleted_at"},
	values: func(m domain.Memo) ([]any, error) {
		tags, err := m.TagsJSON()
		if err != nil {
			return nil, err
		}
		return []any{m.ID, m.UserID, m.ProjectID, m.Title, m.Content, tags, m.CreatedAt, m.UpdatedAt, nullable(m.DeletedAt)}, nil
	},
	scan: func(sc scanner) (domain.Memo, error) {
		var m domain.Memo
		var tags string
		var deleted sql.NullString
		if err := sc.Scan(&m.ID, &m.UserID, &m.ProjectID, &m.Title, &m.Content, &tags, &m.CreatedAt, &m.UpdatedAt, &deleted); err != nil {
			return m, err
		}
		m.DeletedAt = fromNull(deleted)
		return m, m.SetTagsJSON(tags)
	},
	id: func(m domain.Memo) string { return m.ID },
}

var tombstonesTable = table[domain.Tombstone]{
	name:    "tombstones",
	kind:    domain.EntityType("tombstone"),
	columns: []string{"id", "user_id", "project_id", "entity_type", "entity_id", "deleted_at", "updated_at"},
	values: func(t domain.Tombstone) ([]any, error) {
		return []any{t.ID, t.UserID, t.ProjectID, string(t.EntityType), t.EntityID, t.DeletedAt, t.UpdatedAt}, nil
	},
	scan: func(sc scanner) (domain.Tombstone, error) {
		var t domain.Tombstone
		err := sc.Scan(&t.ID, &t.UserID, &t.ProjectID, &t.EntityType, &t.EntityID, &t.DeletedAt, &t.UpdatedAt)
		return t, err
	},
	id:    func(t domain.Tombstone) string { return t.ID },
	order: "deleted_at, id",
}
