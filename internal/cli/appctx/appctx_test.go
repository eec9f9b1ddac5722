package appctx

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/folio/internal/db"
	"github.com/spf13/cobra"
)

func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("db", "", "Database path")
	cmd.Flags().String("user", "", "User")
	return cmd
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FOLIO_USER_ID", "")
	t.Setenv("FOLIO_LOG_FILE", "")
	t.Setenv("FOLIO_LOG_LEVEL", "")
}

func migratedDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	database.Close()
	return dbPath
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	isolate(t)
	t.Setenv("FOLIO_DB_PATH", filepath.Join(t.TempDir(), "test.db"))

	app, err := Bootstrap(testCmd(), Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil || app.Logger == nil {
		t.Error("Config and Logger should be set")
	}
	if app.DB != nil || app.Store != nil {
		t.Error("DB should be nil when NeedsDB is false")
	}
}

func TestBootstrap_WithDBAndUserFlag(t *testing.T) {
	isolate(t)
	dbPath := migratedDB(t)

	cmd := testCmd()
	cmd.Flags().Set("db", dbPath)
	cmd.Flags().Set("user", "writer")

	app, err := Bootstrap(cmd, WithUser())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Store == nil {
		t.Fatal("Store should be opened")
	}
	if app.UserID != "writer" {
		t.Errorf("UserID = %q, want writer", app.UserID)
	}
	if app.DB.Path() != dbPath {
		t.Errorf("DB path = %s, want %s", app.DB.Path(), dbPath)
	}
}

func TestBootstrap_RequiresUser(t *testing.T) {
	isolate(t)
	cmd := testCmd()
	cmd.Flags().Set("db", migratedDB(t))

	if _, err := Bootstrap(cmd, WithUser()); err == nil {
		t.Fatal("expected error without a user")
	}
}

func TestBootstrap_PendingMigrations(t *testing.T) {
	isolate(t)
	cmd := testCmd()
	cmd.Flags().Set("db", filepath.Join(t.TempDir(), "fresh.db"))

	_, err := Bootstrap(cmd, DefaultOptions())
	if err == nil || !strings.Contains(err.Error(), "folioadm migrate") {
		t.Fatalf("expected migration error, got %v", err)
	}

	app, err := Bootstrap(cmd, Options{NeedsDB: true, SkipMigrationCheck: true})
	if err != nil {
		t.Fatalf("Bootstrap with SkipMigrationCheck failed: %v", err)
	}
	app.Close()
	app.Close()
}
