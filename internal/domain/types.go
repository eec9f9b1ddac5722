// Package domain defines the syncable manuscript entities shared by the
// store, the merge engine and the sync backend wire format.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType names a syncable collection. Tombstones carry it to say what
// kind of entity they delete.
type EntityType string

const (
	EntityProject       EntityType = "project"
	EntityChapter       EntityType = "chapter"
	EntityCharacter     EntityType = "character"
	EntityTerm          EntityType = "term"
	EntityWorldDocument EntityType = "worldDocument"
	EntityMemo          EntityType = "memo"
)

// EntityTypes lists every syncable entity type in bundle order.
var EntityTypes = []EntityType{
	EntityProject,
	EntityChapter,
	EntityCharacter,
	EntityTerm,
	EntityWorldDocument,
	EntityMemo,
}

// WorldDocType represents the kind of a world-building document
type WorldDocType string

const (
	WorldDocSynopsis WorldDocType = "synopsis"
	WorldDocPlot     WorldDocType = "plot"
	WorldDocDrawing  WorldDocType = "drawing"
	WorldDocMindmap  WorldDocType = "mindmap"
	WorldDocGraph    WorldDocType = "graph"
	WorldDocSetting  WorldDocType = "setting"
)

// Record is the view of an entity the merge engine needs.
type Record interface {
	RecordID() string
	// RecordProjectID is the owning project; a project returns its own id.
	RecordProjectID() string
	RecordUpdatedAt() string
	SoftDeleted() bool
}

// Project is a manuscript.
type Project struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	DeletedAt   *string `json:"deletedAt,omitempty"`
}

// Chapter is one ordered unit of manuscript text.
type Chapter struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	ProjectID string  `json:"projectId"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Order     int     `json:"order"`
	WordCount int     `json:"wordCount"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
	DeletedAt *string `json:"deletedAt,omitempty"`
}

// Character is a cast entry of a project.
type Character struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	ProjectID   string  `json:"projectId"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Role        string  `json:"role,omitempty"`
	Order       int     `json:"order"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	DeletedAt   *string `json:"deletedAt,omitempty"`
}

// Term is a glossary entry of a project.
type Term struct {
	ID         string  `json:"id"`
	UserID     string  `json:"userId"`
	ProjectID  string  `json:"projectId"`
	Term       string  `json:"term"`
	Definition string  `json:"definition,omitempty"`
	Category   string  `json:"category,omitempty"`
	Order      int     `json:"order"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
	DeletedAt  *string `json:"deletedAt,omitempty"`
}

// WorldDocument is a free-form world-building document (synopsis, plot, ...).
// Content is opaque to the sync layer.
type WorldDocument struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	ProjectID string       `json:"projectId"`
	DocType   WorldDocType `json:"docType"`
	Title     string       `json:"title,omitempty"`
	Content   string       `json:"content"`
	CreatedAt string       `json:"createdAt"`
	UpdatedAt string       `json:"updatedAt"`
	DeletedAt *string      `json:"deletedAt,omitempty"`
}

// Memo is a short note attached to a project.
type Memo struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	ProjectID string   `json:"projectId"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
	DeletedAt *string  `json:"deletedAt,omitempty"`
}

// Tombstone marks that an entity, or a whole project when EntityType is
// EntityProject, was deleted.
type Tombstone struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	ProjectID  string     `json:"projectId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	DeletedAt  string     `json:"deletedAt"`
	UpdatedAt  string     `json:"updatedAt"`
}

func (p Project) RecordID() string        { return p.ID }
func (p Project) RecordProjectID() string { return p.ID }
func (p Project) RecordUpdatedAt() string { return p.UpdatedAt }
func (p Project) SoftDeleted() bool       { return isSet(p.DeletedAt) }

func (c Chapter) RecordID() string        { return c.ID }
func (c Chapter) RecordProjectID() string { return c.ProjectID }
func (c Chapter) RecordUpdatedAt() string { return c.UpdatedAt }
func (c Chapter) SoftDeleted() bool       { return isSet(c.DeletedAt) }

func (c Character) RecordID() string        { return c.ID }
func (c Character) RecordProjectID() string { return c.ProjectID }
func (c Character) RecordUpdatedAt() string { return c.UpdatedAt }
func (c Character) SoftDeleted() bool       { return isSet(c.DeletedAt) }

func (t Term) RecordID() string        { return t.ID }
func (t Term) RecordProjectID() string { return t.ProjectID }
func (t Term) RecordUpdatedAt() string { return t.UpdatedAt }
func (t Term) SoftDeleted() bool       { return isSet(t.DeletedAt) }

func (w WorldDocument) RecordID() string        { return w.ID }
func (w WorldDocument) RecordProjectID() string { return w.ProjectID }
func (w WorldDocument) RecordUpdatedAt() string { return w.UpdatedAt }
func (w WorldDocument) SoftDeleted() bool       { return isSet(w.DeletedAt) }

func (m Memo) RecordID() string        { return m.ID }
func (m Memo) RecordProjectID() string { return m.ProjectID }
func (m Memo) RecordUpdatedAt() string { return m.UpdatedAt }
func (m Memo) SoftDeleted() bool       { return isSet(m.DeletedAt) }

func isSet(s *string) bool {
	return s != nil && *s != ""
}

// TagsJSON encodes memo tags for the tags column.
func (m *Memo) TagsJSON() (string, error) {
	if len(m.Tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(m.Tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetTagsJSON decodes the tags column. Empty input yields no tags.
func (m *Memo) SetTagsJSON(raw string) error {
	if raw == "" {
		m.Tags = nil
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return err
	}
	if len(tags) == 0 {
		tags = nil
	}
	m.Tags = tags
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp in any of the layouts the
// backend or SQLite produce.
func ParseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// FormatTimestamp formats t as UTC ISO-8601 with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
