// Package taskrun implements the per-task lifecycle: materialize an
// isolated worktree, pre-merge the task's dependency branches into it
// (with executor assistance on conflict), invoke the executor to carry out
// the task's prompt, and commit the result if the working copy is dirty.
//
// Grounded on internal/executor/task.go's per-task lifecycle shape and
// internal/executor/git_checkpointer.go / branch_guard.go for the
// worktree and merge mechanics; dependency pre-merge reuses
// internal/mergeassist, the same routine internal/integrate uses for
// final integration (design note §9).
package taskrun

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/auto-codex/internal/codexcli"
	"github.com/harrison/auto-codex/internal/coreerr"
	"github.com/harrison/auto-codex/internal/mergeassist"
	"github.com/harrison/auto-codex/internal/models"
	"github.com/harrison/auto-codex/internal/vcsgit"
)

// Runner executes one task at a time; callers construct one Runner and
// call Run concurrently from multiple goroutines (the scheduler's worker
// pool) — Run's only shared state is the filesystem, and each call
// operates on its own worktree directory.
type Runner struct {
	RepoRoot string
	BaseRef  string
	RunID    models.RunID
	Paths    models.RunPaths

	// NewInvoker constructs a fresh *codexcli.Invoker for a single task's
	// lifetime, so the round-robin API key it picks up stays pinned for
	// every call that Invoker makes (dependency merges and the primary
	// invocation alike).
	NewInvoker func() *codexcli.Invoker

	TaskSchemaPath  string
	MergeSchemaPath string
}

// Run materializes the task's worktree, pre-merges its dependencies,
// invokes the executor, commits if dirty, and returns the TaskResult. A
// non-nil error is always a *coreerr.TaskFailureError or
// *coreerr.DependencyMergeError; the scheduler treats either the same way.
func (r *Runner) Run(ctx context.Context, task models.Task, depResults map[string]models.TaskResult) (models.TaskResult, error) {
	branch := models.TaskBranchName(r.RunID, task.ID)
	worktreePath := r.Paths.Worktree(task.ID)
	logPath := r.Paths.TaskLog(task.ID)
	resultPath := r.Paths.TaskResultJSON(task.ID)

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return models.TaskResult{}, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "create log directory", Err: err}
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return models.TaskResult{}, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "create task log", Err: err}
	}
	defer logFile.Close()

	baseGit := vcsgit.New(r.RepoRoot)
	if err := baseGit.WorktreeAdd(ctx, r.BaseRef, branch, worktreePath); err != nil {
		return models.TaskResult{}, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "create worktree", Err: err}
	}

	result := models.TaskResult{
		TaskID:       task.ID,
		Branch:       branch,
		WorktreePath: worktreePath,
		ResultPath:   resultPath,
		LogPath:      logPath,
	}

	wtGit := vcsgit.New(worktreePath)
	inv := r.NewInvoker()

	for _, depID := range dedupInOrder(task.DependsOn) {
		dep, ok := depResults[depID]
		if !ok || dep.Branch == "" {
			continue // dependency has no branch: nothing to merge
		}
		if err := r.preMergeDependency(ctx, inv, wtGit, task.ID, dep, logFile); err != nil {
			return result, err
		}
	}

	exitCode, err := r.invokeTask(ctx, inv, task, worktreePath, resultPath, logFile)
	result.ExitCode = exitCode
	if err != nil {
		return result, err
	}

	output, err := readTaskOutput(resultPath)
	if err != nil {
		return result, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "read task output", Err: err}
	}
	result.Output = output
	if err := output.Validate(); err != nil {
		return result, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "invalid task output", Err: err}
	}

	clean, err := wtGit.IsClean(ctx)
	if err != nil {
		return result, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "check worktree status", Err: err}
	}
	if !clean {
		if err := wtGit.AddAll(ctx); err != nil {
			return result, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "stage task changes", Err: err}
		}
		message := fmt.Sprintf("%s: %s", task.ID, task.Title)
		if err := wtGit.CommitNoVerify(ctx, message); err != nil {
			return result, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "commit task changes", Err: err}
		}
		sha, err := wtGit.HeadSha(ctx)
		if err != nil {
			return result, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "read commit sha", Err: err}
		}
		result.CommitSHA = sha
	}

	result.ExitCode = 0
	return result, nil
}

func (r *Runner) preMergeDependency(ctx context.Context, inv *codexcli.Invoker, wtGit *vcsgit.Git, taskID string, dep models.TaskResult, log *os.File) error {
	mergeDir := r.Paths.DepMergesDir(taskID)
	if err := os.MkdirAll(mergeDir, 0o755); err != nil {
		return &coreerr.DependencyMergeError{TaskID: taskID, DepID: dep.TaskID, Reason: "create dep-merge directory", Err: err}
	}
	outputPath := filepath.Join(mergeDir, dep.TaskID+".json")

	assist := func(ctx context.Context, conflicted []string) error {
		prompt := dependencyMergePrompt(taskID, dep, conflicted)
		exitCode, err := inv.Invoke(ctx, codexcli.Request{
			Mode:       codexcli.ModeWorkspaceWrite,
			Prompt:     prompt,
			SchemaPath: r.MergeSchemaPath,
			OutputPath: outputPath,
			WorkDir:    wtGit.Dir,
		}, log)
		if err != nil {
			return err
		}
		if exitCode != 0 {
			return fmt.Errorf("executor-assisted dependency merge exited %d", exitCode)
		}
		output, err := readMergeOutput(outputPath)
		if err != nil {
			return fmt.Errorf("read dependency-merge output: %w", err)
		}
		return output.Validate()
	}

	mergeResult, err := mergeassist.Resolve(ctx, wtGit, dep.Branch, vcsgit.MergeNoFFNoEdit, assist)
	if err != nil {
		return &coreerr.DependencyMergeError{TaskID: taskID, DepID: dep.TaskID, Reason: "merge failed", Err: err}
	}
	if mergeResult.Conflicted {
		// MergeNoFFNoEdit auto-commits a clean merge, but a conflicted merge
		// resolved via executor-assist is left staged with MERGE_HEAD set —
		// conclude it with its own commit before the loop's next dependency
		// (or the task's own commit) runs.
		message := fmt.Sprintf("Merge %s (deps for %s)", dep.Branch, taskID)
		if err := wtGit.CommitNoVerify(ctx, message); err != nil {
			return &coreerr.DependencyMergeError{TaskID: taskID, DepID: dep.TaskID, Reason: "commit resolved merge", Err: err}
		}
	}
	return nil
}

func (r *Runner) invokeTask(ctx context.Context, inv *codexcli.Invoker, task models.Task, worktreePath, resultPath string, log *os.File) (int, error) {
	exitCode, err := inv.Invoke(ctx, codexcli.Request{
		Mode:       codexcli.ModeWorkspaceWrite,
		Prompt:     task.Prompt,
		SchemaPath: r.TaskSchemaPath,
		OutputPath: resultPath,
		WorkDir:    worktreePath,
	}, log)
	if err != nil {
		return exitCode, &coreerr.TaskFailureError{TaskID: task.ID, Reason: "executor invocation failed", Err: err}
	}
	if exitCode != 0 {
		return exitCode, &coreerr.TaskFailureError{TaskID: task.ID, Reason: fmt.Sprintf("executor exited %d", exitCode)}
	}
	return exitCode, nil
}

func dependencyMergePrompt(taskID string, dep models.TaskResult, conflicted []string) string {
	return fmt.Sprintf(
		"Merging dependency %s into the working copy for %s produced conflicts in: %v. "+
			"The dependency's own summary of its change was: %q. "+
			"Resolve every conflict marker in these files so the result reflects the intent of both branches, "+
			"then stage your resolution and report the outcome.",
		dep.TaskID, taskID, conflicted, dep.Output.Summary,
	)
}

func readTaskOutput(path string) (models.TaskOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.TaskOutput{}, err
	}
	var out models.TaskOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return models.TaskOutput{}, err
	}
	return out, nil
}

func readMergeOutput(path string) (models.MergeOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.MergeOutput{}, err
	}
	var out models.MergeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return models.MergeOutput{}, err
	}
	return out, nil
}

// dedupInOrder returns ids with duplicates removed, preserving first
// occurrence order — a plan may list the same dependency twice without
// that causing a double merge attempt.
func dedupInOrder(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
