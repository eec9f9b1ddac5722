package cli

import (
	"fmt"
	"io"

	"github.com/lherron/folio/internal/cli/appctx"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync, recovery and snapshot events",
	Long: `Log prints entries from the sync_log table, newest first.

Examples:
  folio log
  folio log --type sync.failed --limit 5
`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLog),
}

var (
	logType  string
	logLimit int
)

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().StringVar(&logType, "type", "", "Only show events of this type")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Maximum number of events")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	recent, err := app.Store.Events().Recent(cmd.Context(), logType, logLimit)
	if err != nil {
		return err
	}
	r, err := appRenderer(app, cmd)
	if err != nil {
		return err
	}
	return r.Render(recent, func(w io.Writer) error {
		rows := make([][]string, 0, len(recent))
		for _, e := range recent {
			payload := ""
			if e.Payload != nil {
				payload = *e.Payload
				if len(payload) > 60 {
					payload = payload[:57] + "..."
				}
			}
			rows = append(rows, []string{fmt.Sprintf("%d", e.ID), e.Timestamp, e.UserID, e.EventType, payload})
		}
		return tableOrEmpty(w, []string{"ID", "TIME", "USER", "EVENT", "PAYLOAD"}, rows, "No events.")
	})
}
