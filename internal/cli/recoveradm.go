package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/db"
	"github.com/lherron/folio/internal/events"
	"github.com/lherron/folio/internal/recovery"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recoverAdmCmd = &cobra.Command{
	Use:   "recover",
	Short: "Back up the database and fold the WAL into it",
	Long: `Recover copies the database, its -wal and -shm files into a timestamped
backup directory, then checkpoints the WAL with TRUNCATE and runs an integrity
check. Any failure after the backup restores the original files.

Stop foliod first, or use POST /v1/recovery/run on the daemon, which closes
its own connection before checkpointing.

Use --dry-run to only create the backup.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{}, runRecoverAdm),
}

var backupsAdmCmd = &cobra.Command{
	Use:   "backups",
	Short: "Manage WAL recovery backups",
}

var backupsLsAdmCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recovery backups, newest first",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{}, runBackupsLsAdm),
}

var backupsPruneAdmCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest --keep recovery backups",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{}, runBackupsPruneAdm),
}

var (
	recoverDryRun bool
	backupsKeep   int
)

func init() {
	rootAdmCmd.AddCommand(recoverAdmCmd, backupsAdmCmd)
	backupsAdmCmd.AddCommand(backupsLsAdmCmd, backupsPruneAdmCmd)

	recoverAdmCmd.Flags().BoolVar(&recoverDryRun, "dry-run", false, "Only create the backup")
	backupsPruneAdmCmd.Flags().IntVar(&backupsKeep, "keep", 5, "Number of backups to keep")
}

func runRecoverAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	res := recovery.Run(cmd.Context(), recovery.Options{
		DBPath:     app.Config.DBPath,
		BackupRoot: app.Config.BackupDir,
		DryRun:     recoverDryRun,
		Logger:     app.Logger,
	})
	if !recoverDryRun && res.Message != recovery.MessageNoWAL {
		recordRecovery(cmd.Context(), app.Config.DBPath, res, app.Logger)
	}

	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	if err := r.Render(res, func(w io.Writer) error {
		printRecovery(w, res)
		return nil
	}); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("recovery failed: %s", res.Message)
	}
	return nil
}

func printRecovery(w io.Writer, res recovery.Result) {
	mark := "✓"
	if !res.Success {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, res.Message)
	if res.BackupDir != "" {
		fmt.Fprintf(w, "  backup: %s\n", res.BackupDir)
	}
	if res.Checkpoint != nil {
		fmt.Fprintf(w, "  checkpoint: busy=%d log=%d checkpointed=%d\n",
			res.Checkpoint.Busy, res.Checkpoint.LogFrames, res.Checkpoint.CheckpointedFrames)
	}
	if res.Restored {
		fmt.Fprintln(w, "  original files restored from backup")
	}
}

// recordRecovery writes a recovery event into the database's sync_log.
// Failure to record is logged and ignored.
func recordRecovery(ctx context.Context, dbPath string, res recovery.Result, logger *zap.Logger) {
	if _, err := os.Stat(dbPath); err != nil {
		return
	}
	database, err := db.Open(dbPath)
	if err != nil {
		logger.Warn("failed to open database to record recovery", zap.Error(err))
		return
	}
	defer database.Close()

	w := events.NewWriter(database.DB)
	if res.Success {
		err = w.Log(ctx, "", events.RecoveryCompleted, res)
	} else {
		err = w.LogFailure(ctx, "", events.RecoveryFailed, errors.New(res.Message))
	}
	if err != nil {
		logger.Warn("failed to record recovery event", zap.Error(err))
	}
}

func runBackupsLsAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	backups, err := recovery.ListBackups(app.Config.BackupDir)
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(backups, func(w io.Writer) error {
		rows := make([][]string, 0, len(backups))
		for _, b := range backups {
			rows = append(rows, []string{b.Name, b.CreatedAt.Format("2006-01-02 15:04:05"), fmt.Sprintf("%d", len(b.Files)), fmt.Sprintf("%d", b.Size)})
		}
		return tableOrEmpty(w, []string{"NAME", "CREATED", "FILES", "BYTES"}, rows, "No backups.")
	})
}

func runBackupsPruneAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	removed, err := recovery.PruneBackups(app.Config.BackupDir, backupsKeep)
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(map[string]any{"removed": removed}, func(w io.Writer) error {
		if len(removed) == 0 {
			fmt.Fprintln(w, "Nothing to prune.")
		}
		for _, p := range removed {
			fmt.Fprintf(w, "✓ Removed %s\n", p)
		}
		return nil
	})
}
