package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Backup describes one backup directory.
type Backup struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Files     []string  `json:"files"`
	Size      int64     `json:"size"`
}

// ListBackups returns the backups under root, newest first. Directories
// whose name does not parse are skipped.
func ListBackups(root string) ([]Backup, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}
		stamp := strings.TrimPrefix(entry.Name(), DirPrefix)
		if len(stamp) > len(stampLayout) {
			stamp = stamp[:len(stampLayout)]
		}
		created, err := time.Parse(stampLayout, stamp)
		if err != nil {
			continue
		}

		b := Backup{
			Name:      entry.Name(),
			Path:      filepath.Join(root, entry.Name()),
			CreatedAt: created,
		}
		files, err := os.ReadDir(b.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read backup %s: %w", b.Name, err)
		}
		for _, f := range files {
			b.Files = append(b.Files, f.Name())
			if info, err := f.Info(); err == nil {
				b.Size += info.Size()
			}
		}
		backups = append(backups, b)
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// PruneBackups keeps the newest keep backups under root and removes the
// rest, returning the removed paths.
func PruneBackups(root string, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative")
	}
	backups, err := ListBackups(root)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var removed []string
	for _, b := range backups[keep:] {
		if err := os.RemoveAll(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove backup %s: %w", b.Name, err)
		}
		removed = append(removed, b.Path)
	}
	return removed, nil
}
