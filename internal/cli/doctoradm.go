package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/db"
	"github.com/spf13/cobra"
)

var doctorAdmCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database health and configuration",
	Long: `Performs health checks on the database file, pragmas, integrity, schema,
WAL size and leftover temporary files. Exits non-zero when any check errors.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{}, runDoctorAdm),
}

// walWarnBytes is the WAL size above which doctor suggests a checkpoint.
const walWarnBytes = 64 << 20

const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

type checkResult struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "ok", "warning", "error"
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type doctorReport struct {
	Version       string        `json:"version"`
	DBPath        string        `json:"db_path"`
	Checks        []checkResult `json:"checks"`
	Warnings      int           `json:"warnings"`
	Errors        int           `json:"errors"`
	OverallStatus string        `json:"overall_status"`
}

var doctorTables = []string{
	"projects", "chapters", "characters", "terms", "world_documents", "memos",
	"tombstones", "sync_log", "sync_state",
}

func init() {
	rootAdmCmd.AddCommand(doctorAdmCmd)
}

func runDoctorAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	report := buildDoctorReport(cmd.Context(), app.Config.DBPath)

	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	if err := r.Render(report, func(w io.Writer) error {
		printDoctorReport(w, report)
		return nil
	}); err != nil {
		return err
	}
	if report.Errors > 0 {
		return fmt.Errorf("doctor found %d error(s)", report.Errors)
	}
	return nil
}

func buildDoctorReport(ctx context.Context, dbPath string) *doctorReport {
	report := &doctorReport{
		Version:       Version,
		DBPath:        dbPath,
		Checks:        []checkResult{},
		OverallStatus: statusOK,
	}

	fileChecks := checkDatabaseFile(dbPath)
	report.Checks = append(report.Checks, fileChecks...)
	if fileChecks[0].Status == statusOK {
		database, err := db.Open(dbPath)
		if err == nil {
			report.Checks = append(report.Checks, checkDatabasePragmas(ctx, database)...)
			report.Checks = append(report.Checks, checkSchema(database)...)
			report.Checks = append(report.Checks, checkOrphans(database)...)
			database.Close()
		} else {
			report.Checks = append(report.Checks, checkResult{
				Name:    "database_open",
				Status:  statusError,
				Message: fmt.Sprintf("Failed to open database: %v", err),
			})
		}
		report.Checks = append(report.Checks, checkWAL(dbPath))
	}
	report.Checks = append(report.Checks, checkTempFiles(filepath.Dir(dbPath)))

	for _, check := range report.Checks {
		switch check.Status {
		case statusWarning:
			report.Warnings++
		case statusError:
			report.Errors++
			report.OverallStatus = statusError
		}
	}
	if report.Warnings > 0 && report.OverallStatus == statusOK {
		report.OverallStatus = statusWarning
	}
	return report
}

func checkDatabaseFile(dbPath string) []checkResult {
	info, err := os.Stat(dbPath)
	if err != nil {
		return []checkResult{{
			Name:    "db_file_exists",
			Status:  statusError,
			Message: fmt.Sprintf("Database file not found: %s", dbPath),
			Details: []string{"Run 'folio init' to create it"},
		}}
	}

	results := []checkResult{{
		Name:    "db_file_exists",
		Status:  statusOK,
		Message: fmt.Sprintf("Database file: %s (%.1f MB)", dbPath, float64(info.Size())/(1024*1024)),
	}}

	f, err := os.OpenFile(dbPath, os.O_RDWR, 0)
	if err != nil {
		results = append(results, checkResult{
			Name:    "db_file_permissions",
			Status:  statusError,
			Message: fmt.Sprintf("Database file not writable: %v", err),
		})
	} else {
		f.Close()
		results = append(results, checkResult{
			Name:    "db_file_permissions",
			Status:  statusOK,
			Message: "Database file is readable and writable",
		})
	}
	return results
}

func checkDatabasePragmas(ctx context.Context, database *db.DB) []checkResult {
	var results []checkResult

	mode, err := database.JournalMode(ctx)
	if err == nil && mode == "wal" {
		results = append(results, checkResult{Name: "wal_mode", Status: statusOK, Message: "WAL mode enabled"})
	} else {
		results = append(results, checkResult{
			Name:    "wal_mode",
			Status:  statusWarning,
			Message: fmt.Sprintf("WAL mode not enabled (current: %s)", mode),
		})
	}

	var foreignKeys int
	_ = database.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys)
	if foreignKeys == 1 {
		results = append(results, checkResult{Name: "foreign_keys", Status: statusOK, Message: "Foreign keys enabled"})
	} else {
		results = append(results, checkResult{Name: "foreign_keys", Status: statusWarning, Message: "Foreign keys not enabled"})
	}

	messages, err := db.IntegrityCheck(ctx, database)
	switch {
	case err != nil:
		results = append(results, checkResult{
			Name:    "integrity_check",
			Status:  statusError,
			Message: fmt.Sprintf("Integrity check could not run: %v", err),
		})
	case db.Healthy(messages):
		results = append(results, checkResult{Name: "integrity_check", Status: statusOK, Message: "Database integrity check passed"})
	default:
		results = append(results, checkResult{
			Name:    "integrity_check",
			Status:  statusError,
			Message: "Database integrity check failed",
			Details: append(messages, "Run 'folioadm recover' or restore a snapshot with 'folio import'"),
		})
	}
	return results
}

func checkSchema(database *db.DB) []checkResult {
	var results []checkResult

	_, pending, err := database.MigrationStatus()
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "migrations", Status: statusError, Message: err.Error()})
	case len(pending) > 0:
		results = append(results, checkResult{
			Name:    "migrations",
			Status:  statusError,
			Message: fmt.Sprintf("%d pending migration(s)", len(pending)),
			Details: []string{"Run 'folioadm migrate' to update"},
		})
	default:
		results = append(results, checkResult{Name: "migrations", Status: statusOK, Message: "Schema is up to date"})
	}

	var missing []string
	for _, table := range doctorTables {
		var count int
		err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil || count == 0 {
			missing = append(missing, table)
		}
	}
	if len(missing) == 0 {
		results = append(results, checkResult{
			Name:    "schema_tables",
			Status:  statusOK,
			Message: fmt.Sprintf("All required tables present (%d/%d)", len(doctorTables), len(doctorTables)),
		})
	} else {
		results = append(results, checkResult{
			Name:    "schema_tables",
			Status:  statusError,
			Message: fmt.Sprintf("Missing tables: %v", missing),
		})
	}
	return results
}

// checkOrphans counts live entities whose project row is missing. Sync
// tolerates them, but they never show up under any project.
func checkOrphans(database *db.DB) []checkResult {
	var orphans int
	for _, table := range doctorTables[1:6] {
		var n int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
			WHERE deleted_at IS NULL AND project_id NOT IN (SELECT id FROM projects)`, table)
		if err := database.QueryRow(query).Scan(&n); err == nil {
			orphans += n
		}
	}
	if orphans == 0 {
		return []checkResult{{Name: "orphaned_entities", Status: statusOK, Message: "No orphaned entities"}}
	}
	return []checkResult{{
		Name:    "orphaned_entities",
		Status:  statusWarning,
		Message: fmt.Sprintf("%d entities reference missing projects", orphans),
	}}
}

func checkWAL(dbPath string) checkResult {
	info, err := os.Stat(db.WALPath(dbPath))
	if err != nil {
		return checkResult{Name: "wal_size", Status: statusOK, Message: "No WAL file"}
	}
	if info.Size() > walWarnBytes {
		return checkResult{
			Name:    "wal_size",
			Status:  statusWarning,
			Message: fmt.Sprintf("WAL is %.1f MB", float64(info.Size())/(1024*1024)),
			Details: []string{"Run 'folioadm recover' to checkpoint it"},
		}
	}
	return checkResult{Name: "wal_size", Status: statusOK, Message: fmt.Sprintf("WAL is %d bytes", info.Size())}
}

func checkTempFiles(dir string) checkResult {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return checkResult{Name: "temp_files", Status: statusOK, Message: "Data directory not readable"}
	}
	var temps []string
	for _, entry := range entries {
		if !entry.IsDir() && atomicfile.IsTemp(entry.Name()) {
			temps = append(temps, entry.Name())
		}
	}
	if len(temps) == 0 {
		return checkResult{Name: "temp_files", Status: statusOK, Message: "No leftover temp files"}
	}
	return checkResult{
		Name:    "temp_files",
		Status:  statusWarning,
		Message: fmt.Sprintf("%d leftover temp file(s) from interrupted writes", len(temps)),
		Details: append(temps, "Run 'folioadm sweep' to remove them"),
	}
}

func printDoctorReport(w io.Writer, report *doctorReport) {
	fmt.Fprintf(w, "folio doctor (%s)\n", report.DBPath)
	for _, check := range report.Checks {
		mark := "✓"
		switch check.Status {
		case statusWarning:
			mark = "!"
		case statusError:
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %-20s %s\n", mark, check.Name, check.Message)
		for _, d := range check.Details {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}
	fmt.Fprintf(w, "\n%d warning(s), %d error(s): %s\n", report.Warnings, report.Errors, report.OverallStatus)
}
