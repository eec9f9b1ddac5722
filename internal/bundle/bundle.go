// Package bundle defines the SyncBundle exchanged with the sync backend and
// the last-writer-wins merge that reconciles a local and a remote bundle.
package bundle

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lherron/folio/internal/domain"
)

// SyncBundle is a snapshot of every syncable entity of one side (local or
// remote). Collections carry no inherent order.
type SyncBundle struct {
	Projects       []domain.Project       `json:"projects"`
	Chapters       []domain.Chapter       `json:"chapters"`
	Characters     []domain.Character     `json:"characters"`
	Terms          []domain.Term          `json:"terms"`
	WorldDocuments []domain.WorldDocument `json:"worldDocuments"`
	Memos          []domain.Memo          `json:"memos"`
	Tombstones     []domain.Tombstone     `json:"tombstones"`
}

// Counts reports the size of each collection of a bundle.
type Counts struct {
	Projects       int `json:"projects"`
	Chapters       int `json:"chapters"`
	Characters     int `json:"characters"`
	Terms          int `json:"terms"`
	WorldDocuments int `json:"worldDocuments"`
	Memos          int `json:"memos"`
	Tombstones     int `json:"tombstones"`
}

// Empty returns a bundle with every collection empty. It is the identity
// element of Merge.
func Empty() *SyncBundle {
	return &SyncBundle{
		Projects:       []domain.Project{},
		Chapters:       []domain.Chapter{},
		Characters:     []domain.Character{},
		Terms:          []domain.Term{},
		WorldDocuments: []domain.WorldDocument{},
		Memos:          []domain.Memo{},
		Tombstones:     []domain.Tombstone{},
	}
}

// Counts returns the number of entries in each collection.
func (b *SyncBundle) Counts() Counts {
	return Counts{
		Projects:       len(b.Projects),
		Chapters:       len(b.Chapters),
		Characters:     len(b.Characters),
		Terms:          len(b.Terms),
		WorldDocuments: len(b.WorldDocuments),
		Memos:          len(b.Memos),
		Tombstones:     len(b.Tombstones),
	}
}

// IsEmpty reports whether the bundle carries no entities and no tombstones.
func (b *SyncBundle) IsEmpty() bool {
	return b.Counts() == Counts{}
}

// normalize replaces nil collections with empty ones so encoded bundles
// always carry every key.
func (b *SyncBundle) normalize() {
	if b.Projects == nil {
		b.Projects = []domain.Project{}
	}
	if b.Chapters == nil {
		b.Chapters = []domain.Chapter{}
	}
	if b.Characters == nil {
		b.Characters = []domain.Character{}
	}
	if b.Terms == nil {
		b.Terms = []domain.Term{}
	}
	if b.WorldDocuments == nil {
		b.WorldDocuments = []domain.WorldDocument{}
	}
	if b.Memos == nil {
		b.Memos = []domain.Memo{}
	}
	if b.Tombstones == nil {
		b.Tombstones = []domain.Tombstone{}
	}
}

// Decode reads a bundle from the backend JSON payload. Missing collections
// decode as empty.
func Decode(r io.Reader) (*SyncBundle, error) {
	var b SyncBundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode sync bundle: %w", err)
	}
	b.normalize()
	return &b, nil
}

// Unmarshal is Decode for an in-memory payload.
func Unmarshal(data []byte) (*SyncBundle, error) {
	var b SyncBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode sync bundle: %w", err)
	}
	b.normalize()
	return &b, nil
}

// Encode writes b as JSON.
func Encode(w io.Writer, b *SyncBundle) error {
	out := *b
	out.normalize()
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(&out); err != nil {
		return fmt.Errorf("failed to encode sync bundle: %w", err)
	}
	return nil
}
