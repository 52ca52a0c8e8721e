package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/auto-codex/internal/codexcli"
	"github.com/harrison/auto-codex/internal/config"
	"github.com/harrison/auto-codex/internal/coreerr"
	"github.com/harrison/auto-codex/internal/models"
	"github.com/harrison/auto-codex/internal/planfile"
	"github.com/harrison/auto-codex/internal/vcsgit"
)

// flagPlanAgents is accepted on `plan` only for CLI-surface parity with
// `run`'s worker override; planning is a single synchronous executor call
// and schedules no concurrent work, so the value is unused.
var flagPlanAgents int

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Ask the executor to decompose a goal into a dependency-ordered task plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().IntVarP(&flagPlanAgents, "agents", "j", 0, "accepted for parity with `run`; planning does not schedule concurrent work")
	Root.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	goal := args[0]

	git := vcsgit.New(flagRepoRoot)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	root, err := git.Root(ctx)
	if err != nil {
		return &coreerr.PreconditionError{Reason: err.Error()}
	}
	clean, err := git.IsClean(ctx)
	if err != nil {
		return &coreerr.PreconditionError{Reason: err.Error()}
	}
	if !clean {
		return &coreerr.PreconditionError{Reason: "working copy has uncommitted changes"}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	runID, plan, paths, err := generatePlan(ctx, root, cfg, goal)
	if err != nil {
		return err
	}

	logger.Success("plan %s: %d task(s), run id %s", paths.PlanJSON(), len(plan.Tasks), runID)
	fmt.Fprintln(cmd.OutOrStdout(), string(runID))
	return nil
}

// generatePlan asks the executor (read-only mode) to decompose goal into a
// task plan, validates it, computes its topological order, and returns the
// run id and paths both `plan` and `run` act on. Shared so `run <goal>`
// performs the exact planning step `plan <goal>` would.
func generatePlan(ctx context.Context, root string, cfg *config.Config, goal string) (models.RunID, *models.Plan, models.RunPaths, error) {
	runID := models.NewRunID()
	paths := models.NewRunPaths(root, runID)
	if err := os.MkdirAll(paths.TasksDir(), 0o755); err != nil {
		return "", nil, paths, err
	}

	planLog, err := os.Create(paths.PlanLog())
	if err != nil {
		return "", nil, paths, err
	}
	defer planLog.Close()

	inv := codexcli.New(&cfg.Codex)
	exitCode, err := inv.Invoke(ctx, codexcli.Request{
		Mode:       codexcli.ModeReadOnly,
		Prompt:     planningPrompt(goal),
		OutputPath: paths.PlanJSON(),
		WorkDir:    root,
	}, planLog)
	if err != nil {
		return "", nil, paths, fmt.Errorf("planning invocation: %w", err)
	}
	if exitCode != 0 {
		return "", nil, paths, &coreerr.PlanInvalidError{Reason: fmt.Sprintf("planning executor exited %d", exitCode)}
	}

	data, err := os.ReadFile(paths.PlanJSON())
	if err != nil {
		return "", nil, paths, fmt.Errorf("read plan document: %w", err)
	}
	plan, err := planfile.Parse(data)
	if err != nil {
		return "", nil, paths, err
	}
	order, err := planfile.TopologicalOrder(plan.Tasks)
	if err != nil {
		return "", nil, paths, err
	}
	plan.Order = order

	return runID, plan, paths, nil
}

func planningPrompt(goal string) string {
	return fmt.Sprintf(
		"Decompose the following goal into an ordered set of independent or "+
			"dependency-linked tasks, each with a two-digit T-prefixed id, a "+
			"title, a self-contained prompt, and an explicit depends_on list. "+
			"Goal: %s\n\nGenerated at %s.",
		goal, time.Now().UTC().Format(time.RFC3339),
	)
}
