// Package watch triggers a callback when the local database changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last write before fn runs.
const DefaultDebounce = 2 * time.Second

// Watcher watches the directory of a SQLite database and calls fn once per
// burst of writes to the database file or its WAL.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dbPath   string
	debounce time.Duration
	fn       func(context.Context)
	log      *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	paused  bool
	quiet   time.Time
	running bool
	wg      sync.WaitGroup
}

// New creates a Watcher for dbPath. A debounce of zero uses DefaultDebounce.
func New(dbPath string, debounce time.Duration, fn func(context.Context), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher:  w,
		dbPath:   abs,
		debounce: debounce,
		fn:       fn,
		log:      logger,
	}, nil
}

// Run watches until ctx is cancelled. It closes the underlying watcher and
// waits for an in-flight callback before returning.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.dbPath)
	if err := w.watcher.Add(dir); err != nil {
		w.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Info("watching database", zap.String("path", w.dbPath), zap.Duration("debounce", w.debounce))

	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.running = false
		w.mu.Unlock()
		w.watcher.Close()
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				w.schedule(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// Pause suppresses triggers, e.g. while the callback's own sync writes the
// database. Resume re-enables them.
func (w *Watcher) Pause() {
	w.mu.Lock()
	w.paused = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

// Resume re-enables triggers after Pause. Events arriving within one
// debounce window of Resume are dropped: they are the late notifications for
// writes made while paused.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.paused = false
	w.quiet = time.Now().Add(w.debounce)
	w.mu.Unlock()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == w.dbPath || name == w.dbPath+"-wal"
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused || time.Now().Before(w.quiet) {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.fire(ctx) })
}

func (w *Watcher) fire(ctx context.Context) {
	w.mu.Lock()
	if w.paused || !w.running || ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.log.Debug("database changed, triggering")
	w.fn(ctx)
}
