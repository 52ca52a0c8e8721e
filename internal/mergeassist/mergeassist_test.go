package mergeassist

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harrison/auto-codex/internal/vcsgit"
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

func makeConflict(t *testing.T, dir string) {
	t.Helper()
	run(t, dir, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("feature change\n"), 0o644))
	run(t, dir, "add", "-A")
	run(t, dir, "commit", "-m", "feature edits readme")
	run(t, dir, "checkout", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("main change\n"), 0o644))
	run(t, dir, "add", "-A")
	run(t, dir, "commit", "-m", "main edits readme")
}

func TestResolveCleanMergeNeverInvokesAssist(t *testing.T) {
	dir := initRepo(t)
	git := vcsgit.New(dir)
	ctx := context.Background()

	run(t, dir, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feature.txt"), []byte("x"), 0o644))
	run(t, dir, "add", "-A")
	run(t, dir, "commit", "-m", "feature work")
	run(t, dir, "checkout", "main")

	assistCalled := false
	result, err := Resolve(ctx, git, "feature", vcsgit.MergeNoFFNoEdit, func(ctx context.Context, conflicted []string) error {
		assistCalled = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, assistCalled)
	require.False(t, result.Conflicted)
}

func TestResolveConflictInvokesAssistAndSucceedsWhenResolved(t *testing.T) {
	dir := initRepo(t)
	git := vcsgit.New(dir)
	ctx := context.Background()
	makeConflict(t, dir)

	result, err := Resolve(ctx, git, "feature", vcsgit.MergeNoFFNoCommit, func(ctx context.Context, conflicted []string) error {
		require.Equal(t, []string{"README.md"}, conflicted)
		return os.WriteFile(filepath.Join(dir, "README.md"), []byte("resolved\n"), 0o644)
	})
	require.NoError(t, err)
	require.True(t, result.Conflicted)
	require.True(t, result.AssistInvoked)

	unmerged, err := git.UnmergedPaths(ctx)
	require.NoError(t, err)
	require.Empty(t, unmerged)
}

func TestResolveAbortsWhenAssistLeavesMarkers(t *testing.T) {
	dir := initRepo(t)
	git := vcsgit.New(dir)
	ctx := context.Background()
	makeConflict(t, dir)

	_, err := Resolve(ctx, git, "feature", vcsgit.MergeNoFFNoCommit, func(ctx context.Context, conflicted []string) error {
		return nil // leaves conflict markers untouched
	})
	require.Error(t, err)

	clean, err := git.IsClean(ctx)
	require.NoError(t, err)
	require.True(t, clean, "merge should have been aborted")
}

func TestResolveAbortsWhenAssistErrors(t *testing.T) {
	dir := initRepo(t)
	git := vcsgit.New(dir)
	ctx := context.Background()
	makeConflict(t, dir)

	_, err := Resolve(ctx, git, "feature", vcsgit.MergeNoFFNoCommit, func(ctx context.Context, conflicted []string) error {
		return os.ErrInvalid
	})
	require.Error(t, err)

	clean, err := git.IsClean(ctx)
	require.NoError(t, err)
	require.True(t, clean)
}
