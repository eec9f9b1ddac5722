package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/events"
	"go.uber.org/zap"
)

// Source provides the local bundle to export.
type Source interface {
	LocalBundle(ctx context.Context, userID string) (*bundle.SyncBundle, error)
}

// Exporter writes snapshots of one user's state into Dir.
type Exporter struct {
	Source Source
	Dir    string
	// Keep is the number of snapshots retained after each export; 0 keeps all.
	Keep   int
	Events events.Sink
	Logger *zap.Logger
	Now    func() time.Time

	writer *atomicfile.Writer
}

func (e *Exporter) init() {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.writer == nil {
		e.writer = atomicfile.New(e.Logger)
	}
}

// Export writes a snapshot unless the newest existing snapshot already has
// the same revision.
func (e *Exporter) Export(ctx context.Context, userID string) (*ExportResult, error) {
	e.init()

	b, err := e.Source.LocalBundle(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot: %w", err)
	}
	data, err := bundle.Canonical(b)
	if err != nil {
		return nil, fmt.Errorf("failed to generate canonical JSON: %w", err)
	}
	rev := bundle.ComputeRev(data)
	result := &ExportResult{Rev: rev, Counts: b.Counts()}

	if latest, err := Latest(e.Dir); err == nil && latest != nil {
		if _, latestRev, err := Load(latest.Path); err == nil && latestRev == rev {
			result.Path = latest.Path
			result.Skipped = true
			e.Logger.Debug("snapshot unchanged", zap.String("rev", rev))
			return result, nil
		}
	}

	path := filepath.Join(e.Dir, FilePrefix+e.Now().UTC().Format(stampLayout)+FileSuffix)
	if err := e.writer.WriteFile(path, data, atomicfile.Options{Gzip: true}); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	result.Path = path

	if e.Keep > 0 {
		pruned, err := Prune(e.Dir, e.Keep)
		if err != nil {
			e.Logger.Warn("snapshot prune failed", zap.Error(err))
		}
		result.Pruned = pruned
	}

	if e.Events != nil {
		if err := e.Events.Log(ctx, userID, events.SnapshotExported, result); err != nil {
			e.Logger.Warn("failed to log snapshot event", zap.Error(err))
		}
	}
	e.Logger.Info("snapshot exported", zap.String("path", path), zap.String("rev", rev))
	return result, nil
}

// List returns the snapshots in dir, newest first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileSuffix)
		created, err := time.Parse(stampLayout, stamp)
		if err != nil {
			continue
		}
		info := Info{Name: name, Path: filepath.Join(dir, name), CreatedAt: created}
		if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Latest returns the newest snapshot in dir, or nil when there is none.
func Latest(dir string) (*Info, error) {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[0], nil
}

// Prune keeps the newest keep snapshots in dir and removes the rest.
func Prune(dir string, keep int) ([]string, error) {
	all, err := List(dir)
	if err != nil {
		return nil, err
	}
	if keep < 0 || len(all) <= keep {
		return nil, nil
	}
	var removed []string
	for _, info := range all[keep:] {
		if err := os.Remove(info.Path); err != nil {
			return removed, fmt.Errorf("failed to remove snapshot %s: %w", info.Name, err)
		}
		removed = append(removed, info.Path)
	}
	return removed, nil
}
