// Package atomicfile writes files so that readers observe either the old or
// the new content, never a partial write, even across a crash.
//
// The sequence is: write a sibling temp file, fsync it, rename it onto the
// target, fsync the containing directory.
package atomicfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// tempMarker separates the target name from the random suffix of a temp
// sibling: "<base>.tmp-<random>".
const tempMarker = ".tmp-"

var gzipMagic = []byte{0x1f, 0x8b}

// Options configures a write.
type Options struct {
	// Gzip compresses the payload before writing.
	Gzip bool
	// Perm is the mode of the final file (default 0644).
	Perm os.FileMode
}

// Writer performs atomic writes. The zero value is not usable; use New.
type Writer struct {
	logger  *zap.Logger
	rename  func(oldpath, newpath string) error
	syncDir func(dir string) error
}

// New returns a Writer. A nil logger discards directory-sync warnings.
func New(logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		logger:  logger,
		rename:  os.Rename,
		syncDir: SyncDir,
	}
}

var defaultWriter = New(nil)

// WriteFile atomically replaces path with data using a Writer without logger.
func WriteFile(path string, data []byte, opts Options) error {
	return defaultWriter.WriteFile(path, data, opts)
}

// WriteFile atomically replaces path with data.
//
// Write and rename failures are returned and leave the temp file in place.
// A failed directory fsync is logged only: the rename already happened.
func (w *Writer) WriteFile(path string, data []byte, opts Options) error {
	if opts.Perm == 0 {
		opts.Perm = 0644
	}
	if opts.Gzip {
		compressed, err := compress(data)
		if err != nil {
			return fmt.Errorf("failed to compress %s: %w", path, err)
		}
		data = compressed
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(opts.Perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file %s: %w", tmpPath, err)
	}

	if err := w.rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename %s onto %s: %w", tmpPath, path, err)
	}

	if err := w.syncDir(dir); err != nil {
		w.logger.Warn("directory sync failed after rename",
			zap.String("dir", dir),
			zap.String("path", path),
			zap.Error(err))
	}
	return nil
}

// SyncDir fsyncs a directory so a rename inside it survives a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// ReadFile reads path, transparently decompressing gzip content.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return out, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CopyFile copies src to dst and fsyncs dst.
func CopyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	if err := dstFile.Sync(); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// IsTemp reports whether name looks like a temp sibling left by WriteFile.
func IsTemp(name string) bool {
	i := strings.LastIndex(name, tempMarker)
	return i > 0 && i+len(tempMarker) < len(name)
}

// SweepStale removes temp siblings in dir older than olderThan, left behind
// by interrupted writes. It returns the removed paths.
func SweepStale(dir string, olderThan time.Duration, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-olderThan)
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !IsTemp(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove stale temp file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed = append(removed, path)
	}
	if len(removed) > 0 {
		logger.Info("swept stale temp files", zap.String("dir", dir), zap.Int("count", len(removed)))
	}
	return removed, nil
}
