// Package snapshot exports the local state as canonical, gzip-compressed
// bundle files and reads them back for restore, verification and diff.
//
// A snapshot is the canonical JSON of a SyncBundle; its revision is the
// sha256 of those bytes, so two snapshots of the same state share a rev.
package snapshot

import (
	"time"

	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/store"
)

// FilePrefix and FileSuffix frame every snapshot file name.
const (
	FilePrefix = "snapshot-"
	FileSuffix = ".json.gz"
)

const stampLayout = "20060102-150405.000"

// ExportResult contains the result of an export operation.
type ExportResult struct {
	Path    string        `json:"path,omitempty"`
	Rev     string        `json:"rev"`
	Counts  bundle.Counts `json:"counts"`
	Skipped bool          `json:"skipped,omitempty"`
	Pruned  []string      `json:"pruned,omitempty"`
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Path    string           `json:"path"`
	Rev     string           `json:"rev"`
	Counts  bundle.Counts    `json:"counts"`
	Replace bool             `json:"replace,omitempty"`
	DryRun  bool             `json:"dryRun,omitempty"`
	Applied store.ApplyStats `json:"applied"`
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	Path    string `json:"path"`
	Valid   bool   `json:"valid"`
	Rev     string `json:"rev"`
	Message string `json:"message,omitempty"`
}

// Info describes a snapshot file on disk.
type Info struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}
