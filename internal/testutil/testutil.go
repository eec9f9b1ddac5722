package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/folio/internal/db"
	"github.com/lherron/folio/internal/store"
)

// TempDB creates a temporary migrated SQLite database for testing
func TempDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	database := TempFolioDB(t)
	return database.DB, database.Path()
}

// TempFolioDB creates a temporary migrated database and returns the wrapper.
func TempFolioDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "folio.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// TempStore returns a Store over a fresh migrated database.
func TempStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(TempFolioDB(t))
}

// WriteFile writes content to a file in dir
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}
