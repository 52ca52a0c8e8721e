package vcsgit

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "-b", "main")
	run(t, dir, "config", "user.email", "test@example.com")
	run(t, dir, "config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run(t, dir, "add", "-A")
	run(t, dir, "commit", "-m", "initial")
	return dir
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func TestRootAndIsClean(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)
	ctx := context.Background()

	root, err := g.Root(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, root)

	clean, err := g.IsClean(ctx)
	require.NoError(t, err)
	require.True(t, clean)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644))
	clean, err = g.IsClean(ctx)
	require.NoError(t, err)
	require.False(t, clean)
}

func TestWorktreeAddAndRemove(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, g.WorktreeAdd(ctx, "main", "acdx/run1/T01", wtPath))
	require.DirExists(t, wtPath)

	wtGit := New(wtPath)
	branch, err := wtGit.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "acdx/run1/T01", branch)

	require.NoError(t, g.WorktreeRemove(ctx, wtPath))
	require.NoError(t, g.BranchDelete(ctx, "acdx/run1/T01"))
}

func TestMergeCleanNoFFNoEdit(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)
	ctx := context.Background()

	run(t, dir, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feature.txt"), []byte("x"), 0o644))
	run(t, dir, "add", "-A")
	run(t, dir, "commit", "-m", "feature work")
	run(t, dir, "checkout", "main")

	result, err := g.Merge(ctx, "feature", MergeNoFFNoEdit)
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.FileExists(t, filepath.Join(dir, "feature.txt"))
}

func TestMergeConflictLeavesUnmergedPaths(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)
	ctx := context.Background()

	run(t, dir, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("feature change\n"), 0o644))
	run(t, dir, "add", "-A")
	run(t, dir, "commit", "-m", "feature edits readme")
	run(t, dir, "checkout", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("main change\n"), 0o644))
	run(t, dir, "add", "-A")
	run(t, dir, "commit", "-m", "main edits readme")

	result, err := g.Merge(ctx, "feature", MergeNoFFNoCommit)
	require.NoError(t, err)
	require.NotEqual(t, 0, result.ExitCode)

	unmerged, err := g.UnmergedPaths(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"README.md"}, unmerged)

	g.MergeAbort(ctx)
	clean, err := g.IsClean(ctx)
	require.NoError(t, err)
	require.True(t, clean)
}

func TestEnsureIgnoreExcludesIsIdempotent(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, EnsureIgnoreExcludes(dir))
	require.NoError(t, EnsureIgnoreExcludes(dir))

	data, err := os.ReadFile(filepath.Join(dir, ".git", "info", "exclude"))
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), ".auto-codex/runs/"))
	require.Equal(t, 1, strings.Count(string(data), ".auto-codex/worktrees/"))
}
