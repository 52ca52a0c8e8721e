// Package cmd wires auto-codex's command-line surface with spf13/cobra,
// grounded on the teacher's internal/cmd/root.go: a single root command
// with global flags, subcommands registered in init(), and output routed
// through the run-lifecycle logger rather than fmt.Println scattered
// through handlers.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/auto-codex/internal/rlog"
)

var (
	flagRepoRoot string
	logger       *rlog.Logger
)

// Root is the top-level auto-codex command.
var Root = &cobra.Command{
	Use:   "auto-codex",
	Short: "Drive an external executor through a dependency-ordered task plan",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = rlog.New(os.Stdout)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	Root.PersistentFlags().StringVar(&flagRepoRoot, "repo", ".", "path to the target git repository")
}

// Execute runs the root command and returns the process exit code per
// spec.md §6: 0 on success, 1 on a run/plan failure, 2 on a usage error.
func Execute() int {
	Root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newUsageError("%v", err)
	})
	for _, c := range Root.Commands() {
		if validate := c.Args; validate != nil {
			c.Args = func(cmd *cobra.Command, args []string) error {
				if err := validate(cmd, args); err != nil {
					return newUsageError("%v", err)
				}
				return nil
			}
		}
	}
	if err := Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "auto-codex:", err)
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	if ue, ok := err.(usageError); ok && ue.isUsage {
		return 2
	}
	return 1
}

// usageError marks an error as a flag/argument misuse rather than a run
// failure, so Execute reports exit code 2 instead of 1.
type usageError struct {
	err     error
	isUsage bool
}

func (u usageError) Error() string { return u.err.Error() }

func newUsageError(format string, args ...interface{}) error {
	return usageError{err: fmt.Errorf(format, args...), isUsage: true}
}
