package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// UUIDv4Regex validates lowercase UUIDv4 format
var UUIDv4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// ValidationError reports an invalid field on an entity.
type ValidationError struct {
	Entity EntityType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

// ValidateUUID validates a UUID v4 format (lowercase with hyphens)
func ValidateUUID(uuid string) error {
	if !UUIDv4Regex.MatchString(uuid) {
		return fmt.Errorf("invalid UUID: must be lowercase UUIDv4 format (e.g., 550e8400-e29b-41d4-a716-446655440000)")
	}
	return nil
}

// ValidateEntityType validates a tombstone or CLI entity type
func ValidateEntityType(t string) error {
	for _, known := range EntityTypes {
		if string(known) == t {
			return nil
		}
	}
	return fmt.Errorf("invalid entity type: must be one of: project, chapter, character, term, worldDocument, memo")
}

// ValidateWorldDocType validates a world document type
func ValidateWorldDocType(t string) error {
	switch WorldDocType(t) {
	case WorldDocSynopsis, WorldDocPlot, WorldDocDrawing, WorldDocMindmap, WorldDocGraph, WorldDocSetting:
		return nil
	default:
		return fmt.Errorf("invalid world document type: must be one of: synopsis, plot, drawing, mindmap, graph, setting")
	}
}

// ValidateTimestamp validates an ISO8601 timestamp
func ValidateTimestamp(s string) error {
	if _, err := ParseTimestamp(s); err != nil {
		return fmt.Errorf("invalid timestamp format: expected ISO8601/RFC3339")
	}
	return nil
}

func requireField(entity EntityType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Entity: entity, Field: field, Reason: "is required"}
	}
	return nil
}

// ValidateProject checks the fields the store requires.
func ValidateProject(p *Project) error {
	if err := requireField(EntityProject, "id", p.ID); err != nil {
		return err
	}
	return requireField(EntityProject, "title", p.Title)
}

// ValidateChapter checks the fields the store requires.
func ValidateChapter(c *Chapter) error {
	if err := requireField(EntityChapter, "id", c.ID); err != nil {
		return err
	}
	if err := requireField(EntityChapter, "projectId", c.ProjectID); err != nil {
		return err
	}
	if c.Order < 0 {
		return &ValidationError{Entity: EntityChapter, Field: "order", Reason: "must not be negative"}
	}
	return nil
}

// ValidateCharacter checks the fields the store requires.
func ValidateCharacter(c *Character) error {
	if err := requireField(EntityCharacter, "id", c.ID); err != nil {
		return err
	}
	if err := requireField(EntityCharacter, "projectId", c.ProjectID); err != nil {
		return err
	}
	return requireField(EntityCharacter, "name", c.Name)
}

// ValidateTerm checks the fields the store requires.
func ValidateTerm(t *Term) error {
	if err := requireField(EntityTerm, "id", t.ID); err != nil {
		return err
	}
	if err := requireField(EntityTerm, "projectId", t.ProjectID); err != nil {
		return err
	}
	return requireField(EntityTerm, "term", t.Term)
}

// ValidateWorldDocument checks the fields the store requires.
func ValidateWorldDocument(w *WorldDocument) error {
	if err := requireField(EntityWorldDocument, "id", w.ID); err != nil {
		return err
	}
	if err := requireField(EntityWorldDocument, "projectId", w.ProjectID); err != nil {
		return err
	}
	if err := ValidateWorldDocType(string(w.DocType)); err != nil {
		return &ValidationError{Entity: EntityWorldDocument, Field: "docType", Reason: err.Error()}
	}
	return nil
}

// ValidateMemo checks the fields the store requires.
func ValidateMemo(m *Memo) error {
	if err := requireField(EntityMemo, "id", m.ID); err != nil {
		return err
	}
	return requireField(EntityMemo, "projectId", m.ProjectID)
}

// ValidateTombstone checks a tombstone before it is persisted.
func ValidateTombstone(t *Tombstone) error {
	if err := requireField(EntityType("tombstone"), "id", t.ID); err != nil {
		return err
	}
	if err := requireField(EntityType("tombstone"), "entityId", t.EntityID); err != nil {
		return err
	}
	return ValidateEntityType(string(t.EntityType))
}
