package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/store"
)

// Target receives an imported snapshot.
type Target interface {
	Source
	ApplyBundle(ctx context.Context, userID string, b *bundle.SyncBundle) (store.ApplyStats, error)
}

// ImportOptions configures snapshot import behavior.
type ImportOptions struct {
	Path string
	// Replace applies the snapshot verbatim. Otherwise the snapshot is
	// merged into the local state as if it were a remote bundle, so local
	// deletions and newer edits survive.
	Replace bool
	// DryRun validates without writing
	DryRun bool
}

// Load reads a snapshot (plain or gzip) and returns its bundle and the
// revision of its canonical form.
func Load(path string) (*bundle.SyncBundle, string, error) {
	data, err := atomicfile.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read snapshot: %w", err)
	}
	b, err := bundle.Unmarshal(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse snapshot: %w", err)
	}
	rev, err := bundle.Rev(b)
	if err != nil {
		return nil, "", err
	}
	return b, rev, nil
}

// Import loads a snapshot file into the user's local state.
func Import(ctx context.Context, target Target, userID string, opts ImportOptions) (*ImportResult, error) {
	snap, rev, err := Load(opts.Path)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Path:    opts.Path,
		Rev:     rev,
		Counts:  snap.Counts(),
		Replace: opts.Replace,
		DryRun:  opts.DryRun,
	}
	if opts.DryRun {
		return result, nil
	}

	next := snap
	if !opts.Replace {
		local, err := target.LocalBundle(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read local state: %w", err)
		}
		next = bundle.Merge(local, snap).Merged
	}

	stats, err := target.ApplyBundle(ctx, userID, next)
	if err != nil {
		return nil, fmt.Errorf("failed to import snapshot: %w", err)
	}
	result.Applied = stats
	return result, nil
}

// Verify checks that a snapshot file is canonical: re-encoding its content
// yields the same bytes.
func Verify(path string) (*VerifyResult, error) {
	data, err := atomicfile.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	b, err := bundle.Unmarshal(data)
	if err != nil {
		return &VerifyResult{Path: path, Valid: false, Message: fmt.Sprintf("parse failed: %v", err)}, nil
	}
	canonical, err := bundle.Canonical(b)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize snapshot: %w", err)
	}

	res := &VerifyResult{Path: path, Rev: bundle.ComputeRev(canonical)}
	if !bytes.Equal(data, canonical) {
		res.Message = "round-trip failed: " + firstDiff(string(data), string(canonical))
		return res, nil
	}
	res.Valid = true
	res.Message = "snapshot is canonical"
	return res, nil
}

func firstDiff(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			start := max(i-20, 0)
			end := min(i+20, n)
			return fmt.Sprintf("difference at byte %d: ...%s... vs ...%s...",
				i, strings.ReplaceAll(a[start:end], "\n", "\\n"),
				strings.ReplaceAll(b[start:end], "\n", "\\n"))
		}
	}
	if len(a) != len(b) {
		return fmt.Sprintf("length mismatch: %d vs %d", len(a), len(b))
	}
	return "unknown difference"
}
