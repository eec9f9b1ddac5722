// Package recovery implements WAL backup-and-recover for the local database:
// back up the database and its sidecars, checkpoint the WAL into the main
// file, verify integrity, and restore the backup if any step fails.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/db"
	"go.uber.org/zap"
)

// DirPrefix starts the name of every backup directory.
const DirPrefix = "wal-recovery-"

const stampLayout = "20060102-150405"

// MessageNoWAL is reported when there is no WAL file to recover from.
const MessageNoWAL = "WAL file not found; recovery not available"

// Options configures a recovery run.
type Options struct {
	// DBPath is the main database file.
	DBPath string
	// BackupRoot holds the timestamped backup directories. Defaults to a
	// "backups" directory next to the database.
	BackupRoot string
	// DryRun stops after the backup is written.
	DryRun bool
	// CloseLive closes any connection the caller holds on DBPath. It runs
	// after the backup and before the raw checkpoint connection opens.
	CloseLive func() error
	Now       func() time.Time
	Logger    *zap.Logger
}

// Result is the outcome of Run. Failures are reported here, never as a Go
// error or panic.
type Result struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	BackupDir  string               `json:"backupDir,omitempty"`
	Checkpoint *db.CheckpointResult `json:"checkpoint,omitempty"`
	Integrity  []string             `json:"integrity,omitempty"`
	Restored   bool                 `json:"restored,omitempty"`
}

type runner struct {
	opts   Options
	log    *zap.Logger
	dbPath string
	wal    string
	shm    string
	// backed maps each live file to its copy in the backup directory.
	backed map[string]string
}

// Run performs a recovery attempt.
func Run(ctx context.Context, opts Options) (res Result) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BackupRoot == "" {
		opts.BackupRoot = filepath.Join(filepath.Dir(opts.DBPath), "backups")
	}

	r := &runner{
		opts:   opts,
		log:    opts.Logger.With(zap.String("db", opts.DBPath)),
		dbPath: opts.DBPath,
		wal:    db.WALPath(opts.DBPath),
		shm:    db.SHMPath(opts.DBPath),
		backed: make(map[string]string),
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("recovery panicked", zap.Any("panic", p))
			res = r.fail(res, fmt.Errorf("unexpected failure: %v", p))
		}
	}()

	if _, err := os.Stat(r.wal); err != nil {
		r.log.Info("recovery not available", zap.Error(err))
		return Result{Success: false, Message: MessageNoWAL}
	}

	backupDir, err := r.backup()
	if err != nil {
		r.log.Error("backup failed", zap.Error(err))
		return Result{Success: false, Message: fmt.Sprintf("backup failed: %v", err)}
	}
	res.BackupDir = backupDir
	r.log.Info("backup written", zap.String("backup_dir", backupDir), zap.Int("files", len(r.backed)))

	if opts.DryRun {
		res.Success = true
		res.Message = "dry run: backup created at " + backupDir
		return res
	}

	if opts.CloseLive != nil {
		if err := opts.CloseLive(); err != nil {
			return r.fail(res, fmt.Errorf("failed to close live connection: %w", err))
		}
	}

	cp, integrity, err := r.checkpoint(ctx)
	res.Checkpoint = cp
	res.Integrity = integrity
	if err != nil {
		return r.fail(res, err)
	}

	res.Success = true
	res.Message = fmt.Sprintf("recovered: checkpointed %d of %d WAL frames, integrity ok", cp.CheckpointedFrames, cp.LogFrames)
	r.log.Info("recovery completed",
		zap.Int("log_frames", cp.LogFrames),
		zap.Int("checkpointed_frames", cp.CheckpointedFrames))
	return res
}

// backup copies the database, the WAL and the shm (if present) into a fresh
// timestamped directory. Any failure removes the partial directory.
func (r *runner) backup() (string, error) {
	if err := os.MkdirAll(r.opts.BackupRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup root: %w", err)
	}
	dir, err := r.makeBackupDir()
	if err != nil {
		return "", err
	}

	sources := []string{r.dbPath, r.wal}
	if _, err := os.Stat(r.shm); err == nil {
		sources = append(sources, r.shm)
	}

	for _, src := range sources {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := atomicfile.CopyFile(src, dst); err != nil {
			os.RemoveAll(dir)
			r.backed = make(map[string]string)
			return "", fmt.Errorf("failed to back up %s: %w", src, err)
		}
		r.backed[src] = dst
	}
	if err := atomicfile.SyncDir(dir); err != nil {
		r.log.Warn("backup directory sync failed", zap.String("dir", dir), zap.Error(err))
	}
	return dir, nil
}

func (r *runner) makeBackupDir() (string, error) {
	base := filepath.Join(r.opts.BackupRoot, DirPrefix+r.opts.Now().UTC().Format(stampLayout))
	dir := base
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) || i > 100 {
			return "", fmt.Errorf("failed to create backup directory: %w", err)
		}
		dir = fmt.Sprintf("%s-%d", base, i)
	}
}

func (r *runner) checkpoint(ctx context.Context) (*db.CheckpointResult, []string, error) {
	raw, err := db.OpenRaw(r.dbPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := raw.Close(); err != nil {
			r.log.Warn("failed to close raw connection", zap.Error(err))
		}
	}()

	conn, err := raw.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open raw connection: %w", err)
	}
	defer conn.Close()

	cp, err := db.Checkpoint(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	if cp.Busy != 0 {
		return &cp, nil, fmt.Errorf("wal checkpoint incomplete: database busy (%d of %d frames checkpointed)", cp.CheckpointedFrames, cp.LogFrames)
	}

	messages, err := db.IntegrityCheck(ctx, conn)
	if err != nil {
		return &cp, nil, err
	}
	if !db.Healthy(messages) {
		return &cp, messages, fmt.Errorf("integrity check failed: %s", strings.Join(messages, "; "))
	}
	return &cp, messages, nil
}

// fail restores the backup over the live files and reports cause. Restore
// problems are logged and appended to the message.
func (r *runner) fail(res Result, cause error) Result {
	res.Success = false
	res.Message = cause.Error()
	r.log.Error("recovery failed", zap.Error(cause))

	if len(r.backed) == 0 {
		return res
	}

	var problems []string
	for live, copyPath := range r.backed {
		if err := atomicfile.CopyFile(copyPath, live); err != nil {
			problems = append(problems, fmt.Sprintf("restore %s: %v", filepath.Base(live), err))
		}
	}
	if _, backedUp := r.backed[r.shm]; !backedUp {
		if err := os.Remove(r.shm); err != nil && !os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("remove %s: %v", filepath.Base(r.shm), err))
		}
	}

	if len(problems) > 0 {
		r.log.Error("restore incomplete", zap.Strings("problems", problems))
		res.Message += "; restore incomplete: " + strings.Join(problems, "; ")
		return res
	}
	res.Restored = true
	res.Message += "; backup restored"
	return res
}
