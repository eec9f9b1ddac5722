package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepAdmCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove temp files left by interrupted atomic writes",
	Long: `Sweep deletes "<name>.tmp-*" siblings older than --older-than from the data,
snapshot and shared remote directories. A crash between writing a temp file
and renaming it leaves the target untouched and the temp file behind.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{}, runSweepAdm),
}

var sweepOlderThan time.Duration

func init() {
	rootAdmCmd.AddCommand(sweepAdmCmd)
	sweepAdmCmd.Flags().DurationVar(&sweepOlderThan, "older-than", time.Hour, "Only remove temp files older than this")
}

func sweepDirs(cfg *config.Config) []string {
	dirs := []string{filepath.Dir(cfg.DBPath), cfg.SnapshotDir}
	if cfg.RemoteDir != "" {
		dirs = append(dirs, cfg.RemoteDir)
	}
	if cfg.BundleDir != "" {
		dirs = append(dirs, cfg.BundleDir)
	}
	seen := make(map[string]bool, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func runSweepAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	var removed []string
	for _, dir := range sweepDirs(app.Config) {
		paths, err := atomicfile.SweepStale(dir, sweepOlderThan, app.Logger)
		if err != nil {
			return err
		}
		removed = append(removed, paths...)
	}

	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(map[string]any{"removed": removed}, func(w io.Writer) error {
		if len(removed) == 0 {
			fmt.Fprintln(w, "No stale temp files.")
		}
		for _, p := range removed {
			fmt.Fprintf(w, "✓ Removed %s\n", p)
		}
		return nil
	})
}

// sweepAtStartup clears temp files older than a day. Errors are logged.
func sweepAtStartup(cfg *config.Config, logger *zap.Logger) {
	for _, dir := range sweepDirs(cfg) {
		if _, err := atomicfile.SweepStale(dir, 24*time.Hour, logger); err != nil {
			logger.Warn("startup sweep failed", zap.String("dir", dir), zap.Error(err))
		}
	}
}
