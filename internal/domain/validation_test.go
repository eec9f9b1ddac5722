package domain

import (
	"errors"
	"testing"
)

func TestValidateEntityType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"project", "project", false},
		{"chapter", "chapter", false},
		{"world document", "worldDocument", false},
		{"memo", "memo", false},
		{"snake case rejected", "world_document", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntityType(tt.input)
			if tt.wantErr && err == nil {
				t.Error("ValidateEntityType() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateEntityType() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateWorldDocType(t *testing.T) {
	for _, ok := range []string{"synopsis", "plot", "drawing", "mindmap", "graph", "setting"} {
		if err := ValidateWorldDocType(ok); err != nil {
			t.Errorf("ValidateWorldDocType(%q) unexpected error: %v", ok, err)
		}
	}
	if err := ValidateWorldDocType("timeline"); err == nil {
		t.Error("ValidateWorldDocType(timeline) expected error, got nil")
	}
}

func TestValidateChapter(t *testing.T) {
	tests := []struct {
		name      string
		chapter   Chapter
		wantField string
	}{
		{"valid", Chapter{ID: "c1", ProjectID: "p1"}, ""},
		{"missing id", Chapter{ProjectID: "p1"}, "id"},
		{"missing project", Chapter{ID: "c1"}, "projectId"},
		{"negative order", Chapter{ID: "c1", ProjectID: "p1", Order: -1}, "order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChapter(&tt.chapter)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateChapter() unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateChapter() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidateChapter() field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestValidateWorldDocument_BadType(t *testing.T) {
	err := ValidateWorldDocument(&WorldDocument{ID: "w1", ProjectID: "p1", DocType: "timeline"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "docType" {
		t.Fatalf("ValidateWorldDocument() error = %v, want docType validation error", err)
	}
}

func TestValidateTombstone(t *testing.T) {
	valid := &Tombstone{ID: "t1", EntityType: EntityProject, EntityID: "p1"}
	if err := ValidateTombstone(valid); err != nil {
		t.Fatalf("ValidateTombstone() unexpected error: %v", err)
	}
	if err := ValidateTombstone(&Tombstone{ID: "t1", EntityType: "folder", EntityID: "x"}); err == nil {
		t.Error("ValidateTombstone() expected error for unknown entity type")
	}
	if err := ValidateTombstone(&Tombstone{ID: "t1", EntityType: EntityChapter}); err == nil {
		t.Error("ValidateTombstone() expected error for missing entityId")
	}
}
