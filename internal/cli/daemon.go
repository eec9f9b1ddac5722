package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/config"
	"github.com/lherron/folio/internal/db"
	"github.com/lherron/folio/internal/events"
	"github.com/lherron/folio/internal/logging"
	"github.com/lherron/folio/internal/notify"
	"github.com/lherron/folio/internal/recovery"
	"github.com/lherron/folio/internal/remote"
	"github.com/lherron/folio/internal/server"
	"github.com/lherron/folio/internal/snapshot"
	"github.com/lherron/folio/internal/store"
	"github.com/lherron/folio/internal/syncer"
	"github.com/lherron/folio/internal/watch"
	"go.uber.org/zap"
)

// DaemonOptions configures the foliod daemon. Empty fields fall back to
// config.
type DaemonOptions struct {
	Addr   string
	Unix   string
	Token  string
	DBPath string
	UserID string
	// AutoSync runs a sync cycle after local writes settle.
	AutoSync bool
	Debounce time.Duration
}

// ServeDaemon starts foliod and blocks until SIGINT or SIGTERM.
func ServeDaemon(opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.UserID != "" {
		cfg.UserID = opts.UserID
	}
	if opts.Addr == "" {
		opts.Addr = cfg.ListenAddr
	}
	if opts.Unix == "" {
		opts.Unix = cfg.Socket
	}
	if opts.Token == "" {
		opts.Token = cfg.ServerToken
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sweepAtStartup(cfg, logger)

	live, err := openLiveStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer live.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := newDaemon(cfg, opts, live, logger)

	if d.exporter != nil && cfg.SnapshotInterval > 0 {
		sched := &snapshot.Scheduler{
			Exporter: d.exporter,
			UserID:   cfg.UserID,
			Interval: cfg.SnapshotInterval,
		}
		go sched.Run(ctx)
	}

	if opts.AutoSync {
		if d.sync == nil {
			return errors.New("--auto-sync requires a configured remote and user")
		}
		w, err := startAutoSync(cfg.DBPath, opts.Debounce, d.sync, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	return d.server.Serve(ctx, server.Options{Addr: opts.Addr, Unix: opts.Unix})
}

type daemon struct {
	server   *server.Server
	exporter *snapshot.Exporter
	sync     *syncer.Service
}

// newDaemon wires the server routes. Routes whose collaborators are not
// configured stay nil and answer 503.
func newDaemon(cfg *config.Config, opts DaemonOptions, live *liveStore, logger *zap.Logger) *daemon {
	d := &daemon{server: &server.Server{
		UserID:  cfg.UserID,
		Token:   opts.Token,
		Recover: live.recoverFunc(cfg.BackupDir, logger),
		Bundles: remote.NewDir(cfg.BundleDir, logger),
		Logger:  logger,
	}}
	if cfg.UserID == "" {
		logger.Info("no user configured; sync and snapshot routes disabled")
		return d
	}

	d.exporter = &snapshot.Exporter{
		Source: live,
		Dir:    cfg.SnapshotDir,
		Keep:   cfg.SnapshotKeep,
		Events: live,
		Logger: logger,
	}
	d.server.Snapshots = d.exporter

	r, err := newRemote(cfg, logger)
	if err != nil {
		logger.Info("sync disabled", zap.Error(err))
		return d
	}
	d.sync = &syncer.Service{
		Local:    live,
		Remote:   r,
		UserID:   cfg.UserID,
		Events:   live,
		Notifier: notify.New(cfg.NotifyURLs, logger),
		Logger:   logger,
	}
	d.server.Sync = d.sync
	return d
}

func startAutoSync(dbPath string, debounce time.Duration, svc *syncer.Service, logger *zap.Logger) (*watch.Watcher, error) {
	var w *watch.Watcher
	fn := func(ctx context.Context) {
		w.Pause()
		defer w.Resume()
		if _, err := svc.RunOnce(ctx); err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
			logger.Warn("auto-sync failed", zap.Error(err))
		}
	}
	w, err := watch.New(dbPath, debounce, fn, logger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// liveStore holds the daemon's open database. Recovery closes and reopens
// it, so collaborators reach the store only through liveStore.
type liveStore struct {
	mu    sync.RWMutex
	path  string
	db    *db.DB
	store *store.Store
}

func openLiveStore(path string) (*liveStore, error) {
	database, err := openMigrated(path)
	if err != nil {
		return nil, err
	}
	return &liveStore{path: path, db: database, store: store.New(database)}, nil
}

func openMigrated(path string) (*db.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.RequiresMigrationError(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func (l *liveStore) current() (*store.Store, error) {
	if l.store == nil {
		return nil, errors.New("database is closed")
	}
	return l.store, nil
}

func (l *liveStore) LocalBundle(ctx context.Context, userID string) (*bundle.SyncBundle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.current()
	if err != nil {
		return nil, err
	}
	return s.LocalBundle(ctx, userID)
}

func (l *liveStore) ApplyBundle(ctx context.Context, userID string, b *bundle.SyncBundle) (store.ApplyStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.current()
	if err != nil {
		return store.ApplyStats{}, err
	}
	return s.ApplyBundle(ctx, userID, b)
}

func (l *liveStore) SetSyncState(ctx context.Context, userID, mergedRev string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.current()
	if err != nil {
		return err
	}
	return s.SetSyncState(ctx, userID, mergedRev)
}

func (l *liveStore) Log(ctx context.Context, userID, eventType string, payload any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.current()
	if err != nil {
		return err
	}
	return s.Events().Log(ctx, userID, eventType, payload)
}

func (l *liveStore) LogFailure(ctx context.Context, userID, eventType string, cause error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.current()
	if err != nil {
		return err
	}
	return s.Events().LogFailure(ctx, userID, eventType, cause)
}

func (l *liveStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *liveStore) closeLocked() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	l.store = nil
	return err
}

// recoverFunc runs recovery with the live connection closed for the
// checkpoint, then reopens the database whatever the outcome.
func (l *liveStore) recoverFunc(backupRoot string, logger *zap.Logger) server.RecoverFunc {
	return func(ctx context.Context, dryRun bool) recovery.Result {
		l.mu.Lock()
		res := recovery.Run(ctx, recovery.Options{
			DBPath:     l.path,
			BackupRoot: backupRoot,
			DryRun:     dryRun,
			CloseLive:  l.closeLocked,
			Logger:     logger,
		})
		if l.db == nil {
			database, err := openMigrated(l.path)
			if err != nil {
				logger.Error("failed to reopen database after recovery", zap.Error(err))
			} else {
				l.db = database
				l.store = store.New(database)
			}
		}
		l.mu.Unlock()

		if dryRun || res.Message == recovery.MessageNoWAL {
			return res
		}
		var err error
		if res.Success {
			err = l.Log(ctx, "", events.RecoveryCompleted, res)
		} else {
			err = l.LogFailure(ctx, "", events.RecoveryFailed, errors.New(res.Message))
		}
		if err != nil {
			logger.Warn("failed to record recovery event", zap.Error(err))
		}
		return res
	}
}
