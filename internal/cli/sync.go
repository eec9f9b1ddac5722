package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lherron/folio/internal/atomicfile"
	"github.com/lherron/folio/internal/bundle"
	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/lherron/folio/internal/events"
	"github.com/lherron/folio/internal/notify"
	"github.com/lherron/folio/internal/store"
	"github.com/lherron/folio/internal/syncer"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote backend",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync cycle now",
	Long: `Run builds the local bundle, pulls the remote bundle, merges them, writes the
merged result back to the database when it differs, and pushes it when the
remote is behind.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.WithUser(), runSyncRun),
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last merged revision and recent sync events",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.WithUser(), runSyncStatus),
}

var syncDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the local bundle with the remote one",
	Long: `Diff lists, per collection, the ids added, removed or changed on the remote
relative to local. With --entity <kind>:<id> it prints a unified diff of that
entity instead.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.WithUser(), runSyncDiff),
}

var syncMergeCmd = &cobra.Command{
	Use:   "merge <local.json> <remote.json>",
	Short: "Merge two bundle files offline",
	Long: `Merge reads two bundle files (plain or gzipped JSON), merges them exactly
as a sync cycle would, and writes the canonical merged bundle to --out or
stdout. The conflict summary is printed to stderr.`,
	Args: cobra.ExactArgs(2),
	RunE: runSyncMerge,
}

var (
	syncDiffEntity string
	syncMergeOut   string
	syncEventLimit int
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncRunCmd, syncStatusCmd, syncDiffCmd, syncMergeCmd)

	syncDiffCmd.Flags().StringVar(&syncDiffEntity, "entity", "", "Show a unified diff for <kind>:<id>")
	syncMergeCmd.Flags().StringVar(&syncMergeOut, "out", "", "Write the merged bundle to this file (.gz compresses)")
	syncStatusCmd.Flags().IntVar(&syncEventLimit, "limit", 5, "Number of recent events to show")
}

func newSyncService(app *appctx.App) (*syncer.Service, error) {
	r, err := newRemote(app.Config, app.Logger)
	if err != nil {
		return nil, err
	}
	return &syncer.Service{
		Local:    app.Store,
		Remote:   r,
		UserID:   app.UserID,
		Events:   app.Store.Events(),
		Notifier: notify.New(app.Config.NotifyURLs, app.Logger),
		Logger:   app.Logger,
	}, nil
}

func runSyncRun(app *appctx.App, cmd *cobra.Command, args []string) error {
	svc, err := newSyncService(app)
	if err != nil {
		return err
	}
	report, err := svc.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(report, func(w io.Writer) error {
		printReport(w, report)
		return nil
	})
}

func printReport(w io.Writer, report *syncer.Report) {
	fmt.Fprintf(w, "✓ Synced %s\n", report.UserID)
	fmt.Fprintf(w, "  merged rev:  %s\n", shortRev(report.MergedRev))
	fmt.Fprintf(w, "  applied:     %t (%d upserted, %d deleted)\n", report.AppliedLocal, report.Applied.Upserted, report.Applied.Deleted)
	fmt.Fprintf(w, "  pushed:      %t\n", report.PushedRemote)
	fmt.Fprintf(w, "  conflicts:   %d\n", report.Conflicts.Total())
	if len(report.InvalidTimestamps) > 0 {
		fmt.Fprintf(w, "  invalid timestamps: %s\n", strings.Join(report.InvalidTimestamps, ", "))
	}
}

type syncStatusView struct {
	UserID       string         `json:"userId"`
	MergedRev    string         `json:"mergedRev,omitempty"`
	LastSyncedAt string         `json:"lastSyncedAt,omitempty"`
	LocalRev     string         `json:"localRev"`
	Pending      bool           `json:"pending"`
	Recent       []events.Event `json:"recent"`
}

func runSyncStatus(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	view := syncStatusView{UserID: app.UserID}

	state, err := app.Store.GetSyncState(ctx, app.UserID)
	switch {
	case err == nil:
		view.MergedRev = state.MergedRev
		view.LastSyncedAt = state.LastSyncedAt
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	local, err := app.Store.LocalBundle(ctx, app.UserID)
	if err != nil {
		return err
	}
	if view.LocalRev, err = bundle.Rev(local); err != nil {
		return err
	}
	view.Pending = view.LocalRev != view.MergedRev

	for _, eventType := range []string{events.SyncCompleted, events.SyncFailed} {
		recent, err := app.Store.Events().Recent(ctx, eventType, syncEventLimit)
		if err != nil {
			return err
		}
		for _, e := range recent {
			if e.UserID == app.UserID {
				view.Recent = append(view.Recent, e)
			}
		}
	}

	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(view, func(w io.Writer) error {
		if view.MergedRev == "" {
			fmt.Fprintf(w, "%s has never synced\n", view.UserID)
		} else {
			fmt.Fprintf(w, "Last sync: %s (rev %s)\n", view.LastSyncedAt, shortRev(view.MergedRev))
		}
		if view.Pending {
			fmt.Fprintln(w, "Local changes pending")
		} else {
			fmt.Fprintln(w, "Up to date with last sync")
		}
		for _, e := range view.Recent {
			fmt.Fprintf(w, "  %s  %s\n", e.Timestamp, e.EventType)
		}
		return nil
	})
}

func runSyncDiff(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rem, err := newRemote(app.Config, app.Logger)
	if err != nil {
		return err
	}
	local, err := app.Store.LocalBundle(ctx, app.UserID)
	if err != nil {
		return err
	}
	remoteBundle, err := rem.Pull(ctx, app.UserID)
	if err != nil {
		return err
	}

	if syncDiffEntity != "" {
		kindName, entityID, ok := strings.Cut(syncDiffEntity, ":")
		if !ok || entityID == "" {
			return fmt.Errorf("--entity must be <kind>:<id>")
		}
		kind, err := parseKind(kindName)
		if err != nil {
			return err
		}
		out, err := bundle.UnifiedDiff("local", "remote", bundle.Find(local, kind, entityID), bundle.Find(remoteBundle, kind, entityID))
		if err != nil {
			return err
		}
		if out == "" {
			out = "No differences.\n"
		}
		_, err = io.WriteString(cmd.OutOrStdout(), out)
		return err
	}

	diffs := bundle.Diff(local, remoteBundle)
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(diffs, func(w io.Writer) error {
		if len(diffs) == 0 {
			fmt.Fprintln(w, "Local and remote bundles are identical.")
			return nil
		}
		for _, d := range diffs {
			fmt.Fprintf(w, "%s:\n", d.Collection)
			for _, id := range d.Added {
				fmt.Fprintf(w, "  + %s (remote only)\n", id)
			}
			for _, id := range d.Removed {
				fmt.Fprintf(w, "  - %s (local only)\n", id)
			}
			for _, id := range d.Changed {
				fmt.Fprintf(w, "  ~ %s\n", id)
			}
		}
		return nil
	})
}

func readBundleFile(path string) (*bundle.SyncBundle, error) {
	data, err := atomicfile.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	b, err := bundle.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func runSyncMerge(cmd *cobra.Command, args []string) error {
	local, err := readBundleFile(args[0])
	if err != nil {
		return err
	}
	remoteBundle, err := readBundleFile(args[1])
	if err != nil {
		return err
	}

	result := bundle.Merge(local, remoteBundle)
	data, err := bundle.Canonical(result.Merged)
	if err != nil {
		return err
	}

	if syncMergeOut == "" {
		if _, err := cmd.OutOrStdout().Write(append(data, '\n')); err != nil {
			return err
		}
	} else {
		opts := atomicfile.Options{Gzip: strings.HasSuffix(syncMergeOut, ".gz")}
		if err := atomicfile.WriteFile(syncMergeOut, data, opts); err != nil {
			return err
		}
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "merged rev %s, %d conflict(s)\n", bundle.ComputeRev(data), result.Conflicts.Total())
	if len(result.InvalidTimestamps) > 0 {
		fmt.Fprintf(errOut, "invalid timestamps: %s\n", strings.Join(result.InvalidTimestamps, ", "))
	}
	return nil
}
