package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd builds the version subcommand: it prints only the CLI's
// own build-time version, since this server has no peer process to
// round-trip a handshake with before serving.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mcprefd",
		Long:  "All software has versions. This is mcprefd's.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcprefd version %s\n", rootCmd.Version)
		},
	}
}
