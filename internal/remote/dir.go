package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/bundle"
	"go.uber.org/zap"
)

// Dir is a Remote over a shared folder holding one <userID>.json.gz per
// user. Writes go through the atomic writer, so a reader on another device
// never sees a partial bundle.
type Dir struct {
	Path string

	mu     sync.Mutex
	writer *atomicfile.Writer
}

// NewDir returns a Dir remote rooted at path.
func NewDir(path string, logger *zap.Logger) *Dir {
	return &Dir{Path: path, writer: atomicfile.New(logger)}
}

func (d *Dir) file(userID string) string {
	return filepath.Join(d.Path, userID+".json.gz")
}

// Pull reads the user's bundle; a missing file yields an empty bundle.
func (d *Dir) Pull(ctx context.Context, userID string) (*bundle.SyncBundle, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := atomicfile.ReadFile(d.file(userID))
	if os.IsNotExist(err) {
		return bundle.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote pull failed: %w", err)
	}
	b, err := bundle.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("remote pull returned invalid bundle: %w", err)
	}
	return b, nil
}

// Push writes the user's bundle in canonical form.
func (d *Dir) Push(ctx context.Context, userID string, b *bundle.SyncBundle) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	data, err := bundle.Canonical(b)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer == nil {
		d.writer = atomicfile.New(nil)
	}
	if err := d.writer.WriteFile(d.file(userID), data, atomicfile.Options{Gzip: true}); err != nil {
		return fmt.Errorf("remote push failed: %w", err)
	}
	return nil
}
