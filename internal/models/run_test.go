package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeReplacesDisallowedCharacters(t *testing.T) {
	id := RunID("2026/08/01 run#1")
	assert.Equal(t, "2026-08-01-run-1", id.Sanitize())
}

func TestSanitizeIsIdempotentOnCleanID(t *testing.T) {
	id := RunID("20260801-150405-abcd1234")
	assert.Equal(t, string(id), id.Sanitize())
}

func TestTaskBranchNameFormula(t *testing.T) {
	id := RunID("my run")
	assert.Equal(t, "acdx/my-run/T01", TaskBranchName(id, "T01"))
}

func TestIsWellFormedTaskBranch(t *testing.T) {
	cases := map[string]bool{
		"acdx/20260801-150405-abcd1234/T01": true,
		"acdx/run.with_dots-and-dashes/T99": true,
		"acdx/run/T1":                       false,
		"acdx/run/t01":                      false,
		"other/run/T01":                     false,
		"acdx//T01":                         false,
	}
	for branch, want := range cases {
		assert.Equalf(t, want, IsWellFormedTaskBranch(branch), "branch %q", branch)
	}
}

func TestRunPathsAreStableAndNested(t *testing.T) {
	paths := NewRunPaths("/repo", RunID("run-1"))

	require.Equal(t, "/repo/.auto-codex/runs/run-1/plan.json", paths.PlanJSON())
	assert.Equal(t, "/repo/.auto-codex/runs/run-1/tasks/GOAL.md", paths.GoalDoc())
	assert.Equal(t, "/repo/.auto-codex/runs/run-1/tasks/T01.md", paths.TaskDoc("T01"))
	assert.Equal(t, "/repo/.auto-codex/runs/run-1/results/T01.json", paths.TaskResultJSON("T01"))
	assert.Equal(t, "/repo/.auto-codex/runs/run-1/logs/T01.log", paths.TaskLog("T01"))
	assert.Equal(t, "/repo/.auto-codex/runs/run-1/dep-merges/T02", paths.DepMergesDir("T02"))
	assert.Equal(t, "/repo/.auto-codex/runs/run-1/merge/MERGE_CONTEXT.md", paths.MergeContextDoc())
	assert.Equal(t, "/repo/.auto-codex/worktrees/run-1/T01", paths.Worktree("T01"))
	assert.Equal(t, "/repo/.auto-codex/worktrees/run-1", paths.WorktreesRunDir())
}

func TestNewRunIDsAreUnique(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	assert.NotEqual(t, a, b)
}
