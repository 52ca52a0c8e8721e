package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/auto-codex/internal/artifact"
	"github.com/harrison/auto-codex/internal/models"
	"github.com/harrison/auto-codex/internal/planfile"
	"github.com/harrison/auto-codex/internal/vcsgit"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <run-id>",
	Short: "Remove a run's worktrees, branches, and artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runClean,
}

func init() {
	Root.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	runID := models.RunID(args[0])

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	git := vcsgit.New(flagRepoRoot)
	root, err := git.Root(ctx)
	if err != nil {
		return err
	}

	paths := models.NewRunPaths(root, runID)

	if data, err := os.ReadFile(paths.PlanJSON()); err == nil {
		if plan, err := planfile.Parse(data); err == nil {
			for _, t := range plan.Tasks {
				_ = git.WorktreeRemove(ctx, paths.Worktree(t.ID))
				_ = git.BranchDelete(ctx, models.TaskBranchName(runID, t.ID))
			}
		}
	}
	if err := os.RemoveAll(paths.WorktreesRunDir()); err != nil {
		logger.Warn("remove worktrees: %v", err)
	}
	runsDir := filepath.Join(root, ".auto-codex", "runs", string(runID))
	if err := os.RemoveAll(runsDir); err != nil {
		logger.Warn("remove run artifacts: %v", err)
	}

	ledger, err := artifact.OpenLedger(filepath.Join(root, ".auto-codex", "runs.db"))
	if err == nil {
		defer ledger.Close()
		if err := ledger.Delete(ctx, runID); err != nil {
			logger.Warn("remove run from ledger: %v", err)
		}
	}

	logger.Success("cleaned run %s", runID)
	return nil
}
