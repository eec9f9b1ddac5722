// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup, database opening, and user
// resolution to reduce boilerplate across commands.
package appctx

import (
	"fmt"

	"github.com/lherron/folio/internal/config"
	"github.com/lherron/folio/internal/db"
	"github.com/lherron/folio/internal/logging"
	"github.com/lherron/folio/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Logger is never nil after Bootstrap
	Logger *zap.Logger

	// DB is the opened database connection (nil if NeedsDB is false)
	DB *db.DB

	// Store wraps DB (nil if NeedsDB is false)
	Store *store.Store

	// UserID is the resolved user (empty if NeedsUser is false and none is
	// configured)
	UserID string
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
		a.Store = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the database.
	NeedsDB bool

	// NeedsUser requires a user id from --user or FOLIO_USER_ID.
	NeedsUser bool

	// SkipMigrationCheck opens the database even with pending migrations.
	SkipMigrationCheck bool
}

// DefaultOptions returns default options (DB required, no user).
func DefaultOptions() Options {
	return Options{NeedsDB: true}
}

// WithUser returns options that require both DB and user.
func WithUser() Options {
	return Options{NeedsDB: true, NeedsUser: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	if dbPath := flagValue(cmd, "db"); dbPath != "" {
		app.Config.DBPath = dbPath
	}
	app.UserID = cfg.UserID
	if userID := flagValue(cmd, "user"); userID != "" {
		app.UserID = userID
	}
	if opts.NeedsUser && app.UserID == "" {
		return nil, fmt.Errorf("no user configured (set FOLIO_USER_ID or use --user)")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	app.Logger = logger

	if opts.NeedsDB {
		database, err := db.Open(app.Config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		if !opts.SkipMigrationCheck {
			if err := database.RequiresMigrationError(); err != nil {
				database.Close()
				return nil, err
			}
		}

		app.DB = database
		app.Store = store.New(database)
	}

	return app, nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
