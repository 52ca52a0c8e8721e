package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

var flagVersionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the auto-codex version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
		if flagVersionCheck {
			logger.Info("update checking is not implemented; run `auto-codex update --check` for the same stub")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&flagVersionCheck, "check", false, "check for a newer release (stub, see DESIGN.md)")
	Root.AddCommand(versionCmd)
}
