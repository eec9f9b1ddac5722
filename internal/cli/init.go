package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the folio database and data directories",
	Long: `Init creates the SQLite database in WAL mode, applies migrations, and
creates the backup and snapshot directories. Running it again is safe and only
applies pending migrations.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true, SkipMigrationCheck: true}, runInit),
}

func init() {
	rootCmd.AddCommand(initCmd)
}

type initResult struct {
	DBPath      string   `json:"dbPath"`
	Created     bool     `json:"created"`
	Applied     []string `json:"applied"`
	BackupDir   string   `json:"backupDir"`
	SnapshotDir string   `json:"snapshotDir"`
}

func runInit(app *appctx.App, cmd *cobra.Command, args []string) error {
	applied, _, err := app.DB.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	res := initResult{
		DBPath:      app.Config.DBPath,
		Created:     len(applied) == 0,
		BackupDir:   app.Config.BackupDir,
		SnapshotDir: app.Config.SnapshotDir,
	}

	res.Applied, err = app.DB.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, dir := range []string{res.BackupDir, res.SnapshotDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(res, func(w io.Writer) error {
		if res.Created {
			fmt.Fprintf(w, "✓ Initialized new database at %s\n", res.DBPath)
		} else {
			fmt.Fprintf(w, "✓ Database already initialized at %s\n", res.DBPath)
		}
		for _, m := range res.Applied {
			fmt.Fprintf(w, "✓ Applied migration: %s\n", m)
		}
		fmt.Fprintf(w, "✓ Backups:   %s\n", res.BackupDir)
		fmt.Fprintf(w, "✓ Snapshots: %s\n", res.SnapshotDir)
		return nil
	})
}
