package cmd

import (
	"github.com/spf13/cobra"
)

var flagUpdateCheck bool

// updateCmd is an explicit stub: self-update network logic is out of core
// scope (spec.md §1 Non-goals), but the subcommand stays wired so the
// binary's surface matches spec.md §6 end to end.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for or apply an auto-codex update (stub)",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("self-update is not implemented by this build; current version is %s", Version)
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&flagUpdateCheck, "check", false, "check only, do not apply (stub)")
	Root.AddCommand(updateCmd)
}
