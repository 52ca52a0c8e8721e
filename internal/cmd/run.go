package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/auto-codex/internal/artifact"
	"github.com/harrison/auto-codex/internal/codexcli"
	"github.com/harrison/auto-codex/internal/config"
	"github.com/harrison/auto-codex/internal/coreerr"
	"github.com/harrison/auto-codex/internal/filelock"
	"github.com/harrison/auto-codex/internal/integrate"
	"github.com/harrison/auto-codex/internal/models"
	"github.com/harrison/auto-codex/internal/rlog"
	"github.com/harrison/auto-codex/internal/scheduler"
	"github.com/harrison/auto-codex/internal/taskrun"
	"github.com/harrison/auto-codex/internal/vcsgit"
	"github.com/harrison/auto-codex/internal/watch"
)

var (
	flagAgents  int
	flagBase    string
	flagNoMerge bool
	flagNoClean bool
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan a goal and execute it end to end against isolated worktrees",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().IntVarP(&flagAgents, "agents", "j", 0, "override the configured worker count (0 = use config)")
	runCmd.Flags().StringVar(&flagBase, "base", "", "base branch to plan and integrate against (default: current branch)")
	runCmd.Flags().BoolVar(&flagNoMerge, "no-merge", false, "run every task but skip final integration onto the base branch")
	runCmd.Flags().BoolVar(&flagNoClean, "no-clean", false, "keep worktrees after a successful run")
	Root.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := args[0]

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	git := vcsgit.New(flagRepoRoot)
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
	if err := vcsgit.EnsureIgnoreExcludes(root); err != nil {
		return &coreerr.PreconditionError{Reason: err.Error()}
	}

	lockPath := filepath.Join(root, ".auto-codex", "run.lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	lock := filelock.NewFileLock(lockPath)
	if err := lock.LockWithTimeout(5 * time.Second); err != nil {
		if errors.Is(err, filelock.ErrLockTimeout) {
			return &coreerr.PreconditionError{Reason: "another run is already in progress against this repository"}
		}
		return err
	}
	defer lock.Unlock()

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	workers := cfg.Agents
	if flagAgents != 0 {
		workers = config.ClampWorkers(flagAgents)
	}

	baseRef := flagBase
	if baseRef == "" {
		baseRef, err = git.CurrentBranch(ctx)
		if err != nil {
			return &coreerr.PreconditionError{Reason: err.Error()}
		}
	}

	runID, plan, paths, err := generatePlan(ctx, root, cfg, goal)
	if err != nil {
		return err
	}

	writer := artifact.NewWriter(paths)
	if err := writer.WriteGoalDoc(plan); err != nil {
		return err
	}
	for _, t := range plan.Tasks {
		if err := writer.WriteTaskDoc(t); err != nil {
			return err
		}
	}

	ledger, err := artifact.OpenLedger(filepath.Join(root, ".auto-codex", "runs.db"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	startedAt := time.Now()
	if err := ledger.RecordStart(ctx, runID, goal, startedAt); err != nil {
		logger.Warn("record run start in ledger: %v", err)
	}

	taskSchemaPath := filepath.Join(root, ".auto-codex", "schemas", "task.schema.json")
	mergeSchemaPath := filepath.Join(root, ".auto-codex", "schemas", "merge.schema.json")

	// Every Invoker gets the shared worktree activity watcher and the next
	// API key in round-robin order.
	activity := watch.NewActivityWatcher()
	var invokerCount uint64
	newInvoker := func() *codexcli.Invoker {
		inv := codexcli.New(&cfg.Codex)
		inv.Watcher = activity
		if keys := uint64(len(cfg.Codex.APIKeysEnv)); keys > 0 {
			for n := (atomic.AddUint64(&invokerCount, 1) - 1) % keys; n > 0; n-- {
				inv.RotateKey()
			}
		}
		return inv
	}

	tr := &taskrun.Runner{
		RepoRoot:        root,
		BaseRef:         baseRef,
		RunID:           runID,
		Paths:           paths,
		NewInvoker:      newInvoker,
		TaskSchemaPath:  taskSchemaPath,
		MergeSchemaPath: mergeSchemaPath,
	}

	results, runErr := scheduler.Run(ctx, plan, workers, func(ctx context.Context, task models.Task, deps map[string]models.TaskResult) (models.TaskResult, error) {
		// The executor already wrote its schema-validated output to
		// result.ResultPath (results/<taskId>.json); the orchestrator's own
		// per-task bookkeeping lives in SUMMARY.md, not a second write to
		// that same path.
		return tr.Run(ctx, task, deps)
	}, rlog.SchedulerLogger{Logger: logger})

	summary := &models.RunSummary{
		RunID:      runID,
		Goal:       goal,
		StartedAt:  startedAt,
		BaseBranch: baseRef,
		MergeNotes: plan.MergeNotes,
	}
	for _, id := range plan.Order {
		r, ok := results[id]
		if !ok {
			continue
		}
		summary.Tasks = append(summary.Tasks, models.TaskSummaryLine{
			TaskID: r.TaskID, OK: r.Succeeded(), ExitCode: r.ExitCode,
			Branch: r.Branch, CommitSHA: r.CommitSHA, LogPath: r.LogPath, ResultPath: r.ResultPath,
		})
	}

	if runErr != nil {
		summary.EndedAt = time.Now()
		summary.Outcome = outcomeFor(runErr)
		summary.FatalCause = runErr.Error()
		_ = writer.WriteSummary(summary)
		_ = ledger.RecordFinish(ctx, runID, summary.EndedAt, summary.Outcome)
		return runErr
	}

	var integrateErr error
	if flagNoMerge {
		summary.EndedAt = time.Now()
		summary.Outcome = models.OutcomeSuccess
		summary.Integrated = false
	} else {
		var gates []integrate.QualityGate
		if cfg.Quality.PlaceholderCheck != config.PlaceholderOff {
			gates = append(gates, &integrate.PlaceholderGate{Mode: cfg.Quality.PlaceholderCheck, Tokens: cfg.Quality.PlaceholderTokens})
		}

		integrator := &integrate.Integrator{
			RepoRoot:        root,
			BaseRef:         baseRef,
			RunID:           runID,
			Paths:           paths,
			NewInvoker:      newInvoker,
			MergeSchemaPath: mergeSchemaPath,
			Gates:           gates,
			TestCommand:     cfg.Commands.Test,
			TestShell:       cfg.Commands.TestShell,
		}
		integrateErr = integrator.Run(ctx, plan.Order, results)

		summary.EndedAt = time.Now()
		if integrateErr != nil {
			summary.Outcome = outcomeFor(integrateErr)
			summary.FatalCause = integrateErr.Error()
		} else {
			summary.Outcome = models.OutcomeSuccess
			summary.Integrated = true
		}
	}

	if err := writer.WriteSummary(summary); err != nil {
		logger.Warn("write run summary: %v", err)
	}
	if err := ledger.RecordFinish(ctx, runID, summary.EndedAt, summary.Outcome); err != nil {
		logger.Warn("record run finish in ledger: %v", err)
	}

	if integrateErr != nil {
		return integrateErr
	}

	if !flagNoMerge && !flagNoClean {
		_ = os.RemoveAll(paths.WorktreesRunDir())
	}

	if flagNoMerge {
		logger.Success("run %s complete: %d task(s) ran, integration skipped (--no-merge)", runID, len(plan.Tasks))
	} else {
		logger.Success("run %s complete: %d task(s) integrated onto %s", runID, len(plan.Tasks), baseRef)
	}
	return nil
}

func outcomeFor(err error) models.RunOutcome {
	switch err.(type) {
	case *coreerr.DeadlockError:
		return models.OutcomeDeadlock
	case *coreerr.IntegrationError:
		return models.OutcomeIntegration
	case *coreerr.QualityGateError:
		return models.OutcomeQualityGate
	case *coreerr.PreconditionError:
		return models.OutcomePrecondition
	case *coreerr.PlanInvalidError:
		return models.OutcomePlanInvalid
	default:
		return models.OutcomeTaskFailure
	}
}
