package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Program   string `json:"program"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func newVersionCmd(program string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Displays version, commit, and build date information.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, program)
		},
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd("folio"))
	rootAdmCmd.AddCommand(newVersionCmd("folioadm"))
}

func runVersion(cmd *cobra.Command, program string) error {
	info := versionInfo{
		Program:   program,
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	r, err := rendererFor(cmd, "")
	if err != nil {
		return err
	}
	return r.Render(info, func(w io.Writer) error {
		fmt.Fprintf(w, "%s version %s\n", program, Version)
		fmt.Fprintf(w, "  commit: %s\n", GitCommit)
		fmt.Fprintf(w, "  built:  %s\n", BuildDate)
		fmt.Fprintf(w, "  go:     %s\n", info.GoVersion)
		return nil
	})
}
