package bundle

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lherron/folio/internal/domain"
	"github.com/pmezard/go-difflib/difflib"
)

// CollectionDiff lists the ids that differ between two bundles for one
// collection.
type CollectionDiff struct {
	Collection domain.EntityType `json:"collection"`
	Added      []string          `json:"added,omitempty"`
	Removed    []string          `json:"removed,omitempty"`
	Changed    []string          `json:"changed,omitempty"`
}

// Empty reports whether the collection has no differences.
func (d CollectionDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares from against to per collection. Added ids exist only in to,
// removed ids only in from, changed ids in both with different content.
// Collections without differences are omitted.
func Diff(from, to *SyncBundle) []CollectionDiff {
	var diffs []CollectionDiff
	appendDiff := func(d CollectionDiff) {
		if !d.Empty() {
			diffs = append(diffs, d)
		}
	}
	appendDiff(diffCollection(domain.EntityProject, from.Projects, to.Projects))
	appendDiff(diffCollection(domain.EntityChapter, from.Chapters, to.Chapters))
	appendDiff(diffCollection(domain.EntityCharacter, from.Characters, to.Characters))
	appendDiff(diffCollection(domain.EntityTerm, from.Terms, to.Terms))
	appendDiff(diffCollection(domain.EntityWorldDocument, from.WorldDocuments, to.WorldDocuments))
	appendDiff(diffCollection(domain.EntityMemo, from.Memos, to.Memos))
	return diffs
}

func diffCollection[T domain.Record](kind domain.EntityType, from, to []T) CollectionDiff {
	fromByID, _ := indexRecords(from)
	toByID, _ := indexRecords(to)
	d := CollectionDiff{Collection: kind}

	for id, f := range fromByID {
		t, ok := toByID[id]
		if !ok {
			d.Removed = append(d.Removed, id)
			continue
		}
		if !sameEncoding(f, t) {
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range toByID {
		if _, ok := fromByID[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

func sameEncoding(a, b any) bool {
	ca, err := canonicalJSON(a)
	if err != nil {
		return false
	}
	cb, err := canonicalJSON(b)
	if err != nil {
		return false
	}
	return string(ca) == string(cb)
}

// Find returns the entity with the given id in the collection of kind, or
// nil when it is absent.
func Find(b *SyncBundle, kind domain.EntityType, id string) any {
	switch kind {
	case domain.EntityProject:
		return findByID(b.Projects, id)
	case domain.EntityChapter:
		return findByID(b.Chapters, id)
	case domain.EntityCharacter:
		return findByID(b.Characters, id)
	case domain.EntityTerm:
		return findByID(b.Terms, id)
	case domain.EntityWorldDocument:
		return findByID(b.WorldDocuments, id)
	case domain.EntityMemo:
		return findByID(b.Memos, id)
	}
	return nil
}

func findByID[T domain.Record](items []T, id string) any {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].RecordID() == id {
			return items[i]
		}
	}
	return nil
}

// UnifiedDiff renders a unified diff between two versions of an entity,
// each formatted as indented JSON. A nil version renders as empty.
func UnifiedDiff(fromName, toName string, from, to any) (string, error) {
	a, err := indentedLines(from)
	if err != nil {
		return "", err
	}
	b, err := indentedLines(to)
	if err != nil {
		return "", err
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
}

func indentedLines(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}
	return difflib.SplitLines(string(data) + "\n"), nil
}
