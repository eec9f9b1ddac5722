package cli

import (
	"fmt"
	"io"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/spf13/cobra"
)

var migrateAdmCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending database migrations",
	Long: `Migrate applies any pending SQL migrations to the database.

Migrations are embedded in the folio binaries and tracked via the
schema_migrations table. Each migration file (e.g., 000001_baseline.sql) is
applied exactly once.

This command is safe to run multiple times - it only applies migrations that
haven't been applied yet.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true, SkipMigrationCheck: true}, runMigrateAdm),
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootAdmCmd.AddCommand(migrateAdmCmd)

	migrateAdmCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateAdmCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

type migrationView struct {
	Applied []string `json:"applied"`
	Pending []string `json:"pending"`
}

func runMigrateAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}

	if migrateStatus || migrateDryRun {
		applied, pending, err := app.DB.MigrationStatus()
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		view := migrationView{Applied: applied, Pending: pending}
		return r.Render(view, func(w io.Writer) error {
			if migrateDryRun {
				printPendingMigrations(w, pending)
			} else {
				printMigrationStatus(w, applied, pending)
			}
			return nil
		})
	}

	applied, err := app.DB.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return r.Render(migrationView{Applied: applied}, func(w io.Writer) error {
		if len(applied) == 0 {
			fmt.Fprintln(w, "Database is up to date. No migrations to apply.")
			return nil
		}
		for _, m := range applied {
			fmt.Fprintf(w, "✓ Applied migration: %s\n", m)
		}
		fmt.Fprintf(w, "\nApplied %d migration(s).\n", len(applied))
		return nil
	})
}

func printMigrationStatus(w io.Writer, applied, pending []string) {
	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(w, "No migrations found.")
		return
	}

	if len(applied) > 0 {
		fmt.Fprintln(w, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(w, "  ✓ %s\n", m)
		}
	}

	if len(pending) > 0 {
		if len(applied) > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "Pending migrations:")
		for _, m := range pending {
			fmt.Fprintf(w, "  ○ %s\n", m)
		}
	}
}

func printPendingMigrations(w io.Writer, pending []string) {
	if len(pending) == 0 {
		fmt.Fprintln(w, "No pending migrations. Database is up to date.")
		return
	}

	fmt.Fprintln(w, "Pending migrations (would be applied):")
	for _, m := range pending {
		fmt.Fprintf(w, "  ○ %s\n", m)
	}
	fmt.Fprintf(w, "\nTotal: %d migration(s) would be applied.\n", len(pending))
}
