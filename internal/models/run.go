// Package models holds the data types shared across auto-codex's core
// packages: the plan/task graph, per-task results, and the small set of
// identifiers (run id, branch name) that stitch a run together.
package models

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// RunID uniquely identifies one invocation of `run` or `plan`.
// It is derived from wall-clock time plus a random suffix, so it sorts
// lexicographically by creation time while remaining collision-free.
type RunID string

// NewRunID generates a fresh RunID from the current time.
func NewRunID() RunID {
	return RunID(fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8]))
}

var branchSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Sanitize returns the RunID with every character outside
// [A-Za-z0-9._-] replaced by '-', suitable for embedding in a branch name.
func (id RunID) Sanitize() string {
	return branchSanitizer.ReplaceAllString(string(id), "-")
}

// BranchPrefix is the fixed namespace under which every task branch is created.
const BranchPrefix = "acdx"

// TaskBranchName returns the branch name for a task within a run:
// acdx/<sanitizedRunId>/<taskId>.
func TaskBranchName(runID RunID, taskID string) string {
	return fmt.Sprintf("%s/%s/%s", BranchPrefix, runID.Sanitize(), taskID)
}

var taskBranchPattern = regexp.MustCompile(`^acdx/[A-Za-z0-9._-]+/T\d{2}$`)

// IsWellFormedTaskBranch reports whether name matches ^acdx/[A-Za-z0-9._-]+/T\d{2}$.
func IsWellFormedTaskBranch(name string) bool {
	return taskBranchPattern.MatchString(name)
}

// RunPaths computes the stable artifact and worktree paths for a run,
// relative to a repository root.
type RunPaths struct {
	Root string
	Run  RunID
}

func NewRunPaths(repoRoot string, run RunID) RunPaths {
	return RunPaths{Root: repoRoot, Run: run}
}

func (p RunPaths) runsDir() string       { return join(p.Root, ".auto-codex", "runs", string(p.Run)) }
func (p RunPaths) PlanJSON() string      { return join(p.runsDir(), "plan.json") }
func (p RunPaths) PlanLog() string       { return join(p.runsDir(), "plan.log") }
func (p RunPaths) TasksDir() string      { return join(p.runsDir(), "tasks") }
func (p RunPaths) GoalDoc() string       { return join(p.TasksDir(), "GOAL.md") }
func (p RunPaths) TaskDoc(id string) string {
	return join(p.TasksDir(), id+".md")
}
func (p RunPaths) ResultsDir() string { return join(p.runsDir(), "results") }
func (p RunPaths) TaskResultJSON(id string) string {
	return join(p.ResultsDir(), id+".json")
}
func (p RunPaths) LogsDir() string { return join(p.runsDir(), "logs") }
func (p RunPaths) TaskLog(id string) string {
	return join(p.LogsDir(), id+".log")
}
func (p RunPaths) DepMergesDir(taskID string) string {
	return join(p.runsDir(), "dep-merges", taskID)
}
func (p RunPaths) MergeDir() string       { return join(p.runsDir(), "merge") }
func (p RunPaths) MergeContextDoc() string { return join(p.MergeDir(), "MERGE_CONTEXT.md") }
func (p RunPaths) MergeResultJSON(taskID string) string {
	return join(p.MergeDir(), "merge-"+taskID+".json")
}
func (p RunPaths) MergeLog(taskID string) string {
	return join(p.MergeDir(), "merge-"+taskID+".log")
}
func (p RunPaths) SummaryDoc() string { return join(p.runsDir(), "SUMMARY.md") }
func (p RunPaths) Worktree(taskID string) string {
	return join(p.Root, ".auto-codex", "worktrees", string(p.Run), taskID)
}
func (p RunPaths) WorktreesRunDir() string {
	return join(p.Root, ".auto-codex", "worktrees", string(p.Run))
}

func join(parts ...string) string {
	return filepath.Join(parts...)
}
