package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "folio.db")
	w, err := New(dbPath, time.Millisecond, func(context.Context) {}, nil)
	require.NoError(t, err)
	defer w.watcher.Close()

	assert.True(t, w.relevant(fsnotify.Event{Name: dbPath, Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: dbPath + "-wal", Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: dbPath + "-shm", Op: fsnotify.Write}))
	assert.False(t, w.relevant(fsnotify.Event{Name: dbPath, Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, "other.db"), Op: fsnotify.Write}))
}

func TestRun_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "folio.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o644))

	var calls atomic.Int32
	w, err := New(dbPath, 100*time.Millisecond, func(context.Context) { calls.Add(1) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the watch get registered before writing.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(dbPath, []byte{byte(i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestPause_SuppressesTrigger(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "folio.db")
	var calls atomic.Int32
	w, err := New(dbPath, 10*time.Millisecond, func(context.Context) { calls.Add(1) }, nil)
	require.NoError(t, err)
	defer w.watcher.Close()

	w.running = true
	w.Pause()
	w.schedule(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())

	w.Resume()
	w.schedule(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load(), "events right after Resume belong to the paused writes")

	w.schedule(context.Background())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRun_CallbackWritesDoNotRetrigger(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "folio.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o644))

	var calls atomic.Int32
	var w *Watcher
	w, err := New(dbPath, 100*time.Millisecond, func(context.Context) {
		w.Pause()
		defer w.Resume()
		calls.Add(1)
		f, err := os.OpenFile(dbPath+"-wal", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		_, _ = f.Write([]byte{1})
		_ = f.Close()
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(dbPath, []byte("external"), 0o644))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(time.Second)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	require.NoError(t, <-done)
}
