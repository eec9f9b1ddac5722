package cli

import (
	"github.com/spf13/cobra"
)

var rootAdmCmd = &cobra.Command{
	Use:   "folioadm",
	Short: "Administrative CLI for folio database lifecycle and recovery",
	Long: `folioadm is the administrative companion to folio. It handles schema
migrations, WAL recovery and its backups, health checks, and cleanup of
temporary files left by interrupted writes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin() error {
	return rootAdmCmd.Execute()
}

func init() {
	rootAdmCmd.PersistentFlags().String("db", "", "Path to database file (overrides FOLIO_DB_PATH)")
	rootAdmCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json or yaml (overrides FOLIO_OUTPUT)")
	rootAdmCmd.PersistentFlags().Bool("json", false, "Shorthand for --output json")
}
