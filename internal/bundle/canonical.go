package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lherron/folio/internal/domain"
)

// Canonical produces a deterministic JSON encoding of b:
// - every collection sorted by id
// - object keys sorted lexicographically
// - no insignificant whitespace, no HTML escaping
//
// Two bundles holding the same entities encode identically regardless of
// collection order.
func Canonical(b *SyncBundle) ([]byte, error) {
	sorted := sortedCopy(b)
	return canonicalJSON(sorted)
}

// Rev computes the sha256 revision of the canonical encoding of b.
// Returns "sha256:<hex>" format.
func Rev(b *SyncBundle) (string, error) {
	data, err := Canonical(b)
	if err != nil {
		return "", err
	}
	return ComputeRev(data), nil
}

// ComputeRev computes the sha256 hash of canonical JSON bytes.
func ComputeRev(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// canonicalJSON round-trips v through a generic value so map keys come out
// sorted. Numbers are kept verbatim via UseNumber.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(generic); err != nil {
		return nil, fmt.Errorf("failed to encode canonical value: %w", err)
	}

	// Remove trailing newline added by Encode
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}

// payloadKey is the canonical encoding of an entity without its updatedAt,
// used to tell a real content divergence from a timestamp-only difference.
func payloadKey(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", err
	}
	delete(fields, "updatedAt")
	out, err := canonicalJSON(fields)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func sortedCopy(b *SyncBundle) *SyncBundle {
	out := &SyncBundle{
		Projects:       sortByID(b.Projects),
		Chapters:       sortByID(b.Chapters),
		Characters:     sortByID(b.Characters),
		Terms:          sortByID(b.Terms),
		WorldDocuments: sortByID(b.WorldDocuments),
		Memos:          sortByID(b.Memos),
		Tombstones:     append([]domain.Tombstone{}, b.Tombstones...),
	}
	sort.SliceStable(out.Tombstones, func(i, j int) bool {
		return out.Tombstones[i].ID < out.Tombstones[j].ID
	})
	return out
}

func sortByID[T domain.Record](items []T) []T {
	out := append([]T{}, items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordID() < out[j].RecordID()
	})
	return out
}
