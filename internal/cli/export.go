package cli

import (
	"fmt"
	"io"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/snapshot"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of local data",
	Long: `Export writes the user's canonical bundle as a gzipped snapshot into the
snapshot directory, skipping the write when the newest snapshot already has
the same revision, and prunes old snapshots beyond --keep.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.WithUser(), runExport),
}

var importCmd = &cobra.Command{
	Use:   "import <snapshot>",
	Short: "Restore a snapshot into the local database",
	Long: `Import merges a snapshot into local data as if it were the remote side of a
sync, so nothing deleted locally comes back. With --replace the snapshot
replaces local data verbatim.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.WithUser(), runImport),
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Aliases: []string{"snapshots"},
	Short:   "Inspect snapshots",
}

var snapshotLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{}, runSnapshotLs),
}

var snapshotVerifyCmd = &cobra.Command{
	Use:   "verify <snapshot>",
	Short: "Check that a snapshot is readable and canonical",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.Options{}, runSnapshotVerify),
}

var (
	exportDir     string
	exportKeep    int
	importReplace bool
	importDryRun  bool
)

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, snapshotCmd)
	snapshotCmd.AddCommand(snapshotLsCmd, snapshotVerifyCmd)

	exportCmd.Flags().StringVar(&exportDir, "dir", "", "Snapshot directory (overrides FOLIO_SNAPSHOT_DIR)")
	exportCmd.Flags().IntVar(&exportKeep, "keep", -1, "Snapshots to keep, 0 keeps all (overrides FOLIO_SNAPSHOT_KEEP)")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Replace local data instead of merging")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate and report without writing")
	snapshotLsCmd.Flags().StringVar(&exportDir, "dir", "", "Snapshot directory (overrides FOLIO_SNAPSHOT_DIR)")
}

func snapshotDir(app *appctx.App) string {
	if exportDir != "" {
		return exportDir
	}
	return app.Config.SnapshotDir
}

func runExport(app *appctx.App, cmd *cobra.Command, args []string) error {
	keep := app.Config.SnapshotKeep
	if exportKeep >= 0 {
		keep = exportKeep
	}
	exp := &snapshot.Exporter{
		Source: app.Store,
		Dir:    snapshotDir(app),
		Keep:   keep,
		Events: app.Store.Events(),
		Logger: app.Logger,
	}
	res, err := exp.Export(cmd.Context(), app.UserID)
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(res, func(w io.Writer) error {
		if res.Skipped {
			fmt.Fprintf(w, "✓ Unchanged since %s\n", res.Path)
		} else {
			fmt.Fprintf(w, "✓ Wrote %s\n", res.Path)
		}
		fmt.Fprintf(w, "  rev: %s\n", shortRev(res.Rev))
		for _, p := range res.Pruned {
			fmt.Fprintf(w, "  pruned %s\n", p)
		}
		return nil
	})
}

func runImport(app *appctx.App, cmd *cobra.Command, args []string) error {
	res, err := snapshot.Import(cmd.Context(), app.Store, app.UserID, snapshot.ImportOptions{
		Path:    args[0],
		Replace: importReplace,
		DryRun:  importDryRun,
	})
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(res, func(w io.Writer) error {
		verb := "Imported"
		if res.DryRun {
			verb = "Would import"
		}
		mode := "merge"
		if res.Replace {
			mode = "replace"
		}
		fmt.Fprintf(w, "✓ %s %s (%s)\n", verb, res.Path, mode)
		fmt.Fprintf(w, "  %d upserted, %d deleted\n", res.Applied.Upserted, res.Applied.Deleted)
		return nil
	})
}

func runSnapshotLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	infos, err := snapshot.List(snapshotDir(app))
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(infos, func(w io.Writer) error {
		rows := make([][]string, 0, len(infos))
		for _, info := range infos {
			rows = append(rows, []string{info.Name, info.CreatedAt.Format("2006-01-02 15:04:05"), fmt.Sprintf("%d", info.Size)})
		}
		return tableOrEmpty(w, []string{"NAME", "CREATED", "BYTES"}, rows, "No snapshots.")
	})
}

func runSnapshotVerify(app *appctx.App, cmd *cobra.Command, args []string) error {
	res, err := snapshot.Verify(args[0])
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	if err := r.Render(res, func(w io.Writer) error {
		if res.Valid {
			fmt.Fprintf(w, "✓ %s is valid (rev %s)\n", res.Path, shortRev(res.Rev))
		} else {
			fmt.Fprintf(w, "✗ %s: %s\n", res.Path, res.Message)
		}
		return nil
	}); err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("snapshot verification failed")
	}
	return nil
}
