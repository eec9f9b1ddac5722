package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/syncer"
	"github.com/lherron/folio/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync whenever the local database changes",
	Long: `Watch runs a sync cycle after each burst of local writes (debounced) and
every --interval, until interrupted.

Examples:
  folio sync watch
  folio sync watch --debounce 5s --interval 10m
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.WithUser(), runSyncWatch),
}

var (
	watchDebounce time.Duration
	watchInterval time.Duration
)

func init() {
	syncCmd.AddCommand(syncWatchCmd)

	syncWatchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period after a write before syncing")
	syncWatchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Minute, "Also sync on this interval (0 disables)")
}

func runSyncWatch(app *appctx.App, cmd *cobra.Command, args []string) error {
	svc, err := newSyncService(app)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var w *watch.Watcher
	runSync := func(ctx context.Context) {
		// The cycle's own writes would otherwise retrigger the watcher.
		if w != nil {
			w.Pause()
			defer w.Resume()
		}
		report, err := svc.RunOnce(ctx)
		switch {
		case errors.Is(err, syncer.ErrSyncInProgress):
			return
		case err != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ sync failed: %v\n", err)
			return
		}
		fmt.Fprintf(out, "%s  rev %s  applied=%t pushed=%t conflicts=%d\n",
			report.FinishedAt, shortRev(report.MergedRev), report.AppliedLocal, report.PushedRemote, report.Conflicts.Total())
	}

	w, err = watch.New(app.Config.DBPath, watchDebounce, runSync, app.Logger)
	if err != nil {
		return err
	}

	if watchInterval > 0 {
		go func() {
			ticker := time.NewTicker(watchInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					runSync(ctx)
				}
			}
		}()
	}

	app.Logger.Info("auto-sync started", zap.String("user_id", app.UserID))
	runSync(ctx)
	return w.Run(ctx)
}
