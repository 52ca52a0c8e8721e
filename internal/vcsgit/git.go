// Package vcsgit is the version-control adapter: a thin wrapper over git
// operations used by the run lifecycle engine (status, branch, worktree
// add/remove, merge with abort, add/commit, unmerged-path diff, branch
// delete).
//
// Grounded on internal/executor/git_checkpointer.go's GitCheckpointer
// interface and command-running style, generalized from single-checkout
// checkpointing to the multi-worktree management this system needs (pattern
// corroborated against the reference worktree manager in
// other_examples/…git_worktree.go: "worktree add -b" with a prune-and-retry
// fallback for stale registrations).
package vcsgit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/auto-codex/internal/procrun"
)

// MergeMode selects one of the two merge-with-executor-assist variants
// spec.md §4.2 names.
type MergeMode string

const (
	// MergeNoFFNoCommit leaves a successful merge staged but uncommitted,
	// used during final integration so the integrator controls the
	// commit message.
	MergeNoFFNoCommit MergeMode = "no-ff-no-commit"
	// MergeNoFFNoEdit commits a successful merge immediately with the
	// default message, used during dependency pre-merge.
	MergeNoFFNoEdit MergeMode = "no-ff-no-edit"
)

// Git wraps git command invocations rooted at a single working copy. A Git
// value is scoped to one working copy (the repository root, or a task
// worktree); callers construct one per directory they operate in.
type Git struct {
	Dir string
}

// New returns a Git adapter scoped to dir.
func New(dir string) *Git {
	return &Git{Dir: dir}
}

func (g *Git) run(ctx context.Context, args ...string) (string, string, int, error) {
	argv := append([]string{"git"}, args...)
	return procrun.RunCapture(ctx, argv, procrun.Options{Dir: g.Dir, Policy: procrun.ReturnNonZero})
}

func (g *Git) runOrErr(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, code, err := g.run(ctx, args...)
	if err != nil {
		return stdout, err
	}
	if code != 0 {
		return stdout, &procrun.ExecError{Argv: append([]string{"git"}, args...), ExitCode: code, Stdout: stdout, Stderr: stderr}
	}
	return stdout, nil
}

// Root returns the canonical repository root, failing if dir is not inside
// a git repository.
func (g *Git) Root(ctx context.Context) (string, error) {
	out, err := g.runOrErr(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the short branch name of HEAD.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.runOrErr(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsClean reports whether `git status --porcelain` produced no output.
func (g *Git) IsClean(ctx context.Context) (bool, error) {
	out, _, code, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if code != 0 {
		return false, fmt.Errorf("git status exited %d", code)
	}
	return strings.TrimSpace(out) == "", nil
}

// WorktreeAdd creates branch at baseRef and materializes a working copy at
// path. If the branch already exists (a retried task), it attaches a
// worktree to the existing branch instead of failing.
func (g *Git) WorktreeAdd(ctx context.Context, baseRef, branch, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create worktree parent dir: %w", err)
	}

	if _, err := g.runOrErr(ctx, "worktree", "add", "-b", branch, path, baseRef); err == nil {
		return nil
	}

	if _, err := g.runOrErr(ctx, "worktree", "add", path, branch); err == nil {
		return nil
	}

	// Stale worktree registration (directory gone, git still tracks it):
	// prune and retry once.
	_, _ = g.runOrErr(ctx, "worktree", "prune")
	if _, err := g.runOrErr(ctx, "worktree", "add", "-b", branch, path, baseRef); err == nil {
		return nil
	}
	_, err := g.runOrErr(ctx, "worktree", "add", path, branch)
	return err
}

// WorktreeRemove force-removes the working copy at path.
func (g *Git) WorktreeRemove(ctx context.Context, path string) error {
	_, err := g.runOrErr(ctx, "worktree", "remove", "--force", path)
	return err
}

// BranchDelete force-deletes branch name.
func (g *Git) BranchDelete(ctx context.Context, name string) error {
	_, err := g.runOrErr(ctx, "branch", "-D", name)
	return err
}

// MergeResult carries the exit code and captured output of a merge attempt.
type MergeResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Merge merges ref into the current branch of g.Dir using mode.
func (g *Git) Merge(ctx context.Context, ref string, mode MergeMode) (MergeResult, error) {
	args := []string{"merge", "--no-ff"}
	switch mode {
	case MergeNoFFNoCommit:
		args = append(args, "--no-commit")
	case MergeNoFFNoEdit:
		args = append(args, "--no-edit")
	default:
		return MergeResult{}, fmt.Errorf("unknown merge mode %q", mode)
	}
	args = append(args, ref)

	stdout, stderr, code, err := g.run(ctx, args...)
	if err != nil {
		return MergeResult{}, err
	}
	return MergeResult{ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
}

// MergeAbort best-effort aborts an in-progress merge.
func (g *Git) MergeAbort(ctx context.Context) {
	_, _, _, _ = g.run(ctx, "merge", "--abort")
}

// UnmergedPaths returns the files still marked unmerged.
func (g *Git) UnmergedPaths(ctx context.Context) ([]string, error) {
	out, err := g.runOrErr(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// AddAll stages every change in the working copy.
func (g *Git) AddAll(ctx context.Context) error {
	_, err := g.runOrErr(ctx, "add", "-A")
	return err
}

// CommitNoVerify commits staged changes with message, bypassing hooks.
func (g *Git) CommitNoVerify(ctx context.Context, message string) error {
	_, err := g.runOrErr(ctx, "commit", "--no-verify", "-m", message)
	return err
}

// HeadSha returns the current HEAD commit hash.
func (g *Git) HeadSha(ctx context.Context) (string, error) {
	out, err := g.runOrErr(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// EnsureIgnoreExcludes appends the run/worktree artifact directories to the
// repository's local exclude file, idempotently.
func EnsureIgnoreExcludes(repoRoot string) error {
	excludePath := filepath.Join(repoRoot, ".git", "info", "exclude")
	wanted := []string{".auto-codex/runs/", ".auto-codex/worktrees/"}

	existing, _ := os.ReadFile(excludePath)
	content := string(existing)

	var toAdd []string
	for _, line := range wanted {
		if !strings.Contains(content, line) {
			toAdd = append(toAdd, line)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}

	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", excludePath, err)
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	for _, line := range toAdd {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}
