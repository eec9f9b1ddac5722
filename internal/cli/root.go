package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Local-first manuscript store with crash-safe sync",
	Long: `folio manages manuscripts (projects, chapters, characters, terms, world
documents and memos) in a local SQLite database and keeps them in sync with a
remote backend by merging bundles with last-writer-wins and tombstones.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides FOLIO_DB_PATH)")
	rootCmd.PersistentFlags().String("user", "", "User id owning the data (overrides FOLIO_USER_ID)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json or yaml (overrides FOLIO_OUTPUT)")
	rootCmd.PersistentFlags().Bool("json", false, "Shorthand for --output json")
}
