package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/config"
	"github.com/lherron/folio/internal/testutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const testUser = "writer-1"

// setupTestApp returns an App over a fresh migrated database, configured the
// way Bootstrap would configure it for a user command.
func setupTestApp(t *testing.T) *appctx.App {
	t.Helper()
	s := testutil.TempStore(t)
	dbPath := s.DB().Path()
	dir := filepath.Dir(dbPath)
	cfg := &config.Config{
		DBPath:       dbPath,
		UserID:       testUser,
		BackupDir:    filepath.Join(dir, "backups"),
		SnapshotDir:  filepath.Join(dir, "snapshots"),
		SnapshotKeep: 10,
		BundleDir:    filepath.Join(dir, "bundles"),
		Output:       "table",
	}
	return &appctx.App{
		Config: cfg,
		Logger: zap.NewNop(),
		DB:     s.DB(),
		Store:  s,
		UserID: testUser,
	}
}

// newTestCmd builds a bare command carrying the persistent output flags.
func newTestCmd(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", false, "")
	cmd.Flags().StringP("output", "o", "", "")
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd
}

func newJSONCmd(t *testing.T, out *bytes.Buffer) *cobra.Command {
	t.Helper()
	cmd := newTestCmd(out)
	if err := cmd.Flags().Set("json", "true"); err != nil {
		t.Fatalf("set --json: %v", err)
	}
	return cmd
}

func decodeJSON(t *testing.T, out *bytes.Buffer, v any) {
	t.Helper()
	if err := json.Unmarshal(out.Bytes(), v); err != nil {
		t.Fatalf("failed to decode output %q: %v", out.String(), err)
	}
}

// setFlag assigns a package-level flag variable for the duration of a test.
func setFlag[T any](t *testing.T, target *T, value T) {
	t.Helper()
	old := *target
	*target = value
	t.Cleanup(func() { *target = old })
}
