// Package mergeassist implements the single merge-with-executor-assist
// routine shared by dependency pre-merge (internal/taskrun) and final
// integration (internal/integrate), per design note §9: "Dependency
// pre-merge vs final integration share structure; factor a single routine
// parameterized over: merge flags, commit-message template, and a
// context-builder."
package mergeassist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/harrison/auto-codex/internal/vcsgit"
)

// ConflictMarker matches a residual git conflict marker line.
var ConflictMarker = regexp.MustCompile(`^(<<<<<<< |=======$|>>>>>>> )`)

// AssistFunc invokes the executor-assisted merge protocol against the
// conflicted files and returns an error if the executor call itself failed
// (non-zero exit, or an absent or invalid merge output document). It does
// not need to re-scan for markers or re-check unmerged paths — the Resolve
// routine does that afterward.
type AssistFunc func(ctx context.Context, conflictedFiles []string) error

// Result reports what happened for a single merge attempt.
type Result struct {
	// Conflicted is true iff the initial merge attempt produced conflicts
	// (as opposed to some other, non-conflict failure).
	Conflicted bool
	// AssistInvoked is true iff the executor-assisted merge protocol ran.
	AssistInvoked bool
}

// Resolve attempts to merge ref into git's current working copy using mode.
// On a clean merge it returns (Result{}, nil) with the merge left exactly
// as mode leaves it (already committed for MergeNoFFNoEdit, staged for
// MergeNoFFNoCommit — the caller commits that case with its own message).
// On conflicts, it invokes assist, re-scans every originally-conflicted
// file for residual markers, and re-checks for unmerged paths; any failure
// at any step aborts the in-progress merge and returns a descriptive error.
func Resolve(ctx context.Context, git *vcsgit.Git, ref string, mode vcsgit.MergeMode, assist AssistFunc) (Result, error) {
	mergeResult, err := git.Merge(ctx, ref, mode)
	if err != nil {
		return Result{}, fmt.Errorf("merge %s: %w", ref, err)
	}
	if mergeResult.ExitCode == 0 {
		return Result{}, nil
	}

	conflicted, err := git.UnmergedPaths(ctx)
	if err != nil {
		git.MergeAbort(ctx)
		return Result{}, fmt.Errorf("merge %s: list unmerged paths: %w", ref, err)
	}
	if len(conflicted) == 0 {
		git.MergeAbort(ctx)
		return Result{}, fmt.Errorf("merge %s: non-conflict failure (exit %d): %s", ref, mergeResult.ExitCode, mergeResult.Stderr)
	}

	result := Result{Conflicted: true, AssistInvoked: true}

	if err := assist(ctx, conflicted); err != nil {
		git.MergeAbort(ctx)
		return result, fmt.Errorf("merge %s: executor-assisted merge failed: %w", ref, err)
	}

	remaining, err := scanForMarkers(filepath.Join(git.Dir), conflicted)
	if err != nil {
		git.MergeAbort(ctx)
		return result, fmt.Errorf("merge %s: re-scan conflicted files: %w", ref, err)
	}
	if len(remaining) > 0 {
		git.MergeAbort(ctx)
		return result, fmt.Errorf("merge %s: residual conflict markers remain in %v", ref, remaining)
	}

	if err := git.AddAll(ctx); err != nil {
		git.MergeAbort(ctx)
		return result, fmt.Errorf("merge %s: stage resolved files: %w", ref, err)
	}

	stillUnmerged, err := git.UnmergedPaths(ctx)
	if err != nil {
		git.MergeAbort(ctx)
		return result, fmt.Errorf("merge %s: re-check unmerged paths: %w", ref, err)
	}
	if len(stillUnmerged) > 0 {
		git.MergeAbort(ctx)
		return result, fmt.Errorf("merge %s: unmerged paths remain after assist: %v", ref, stillUnmerged)
	}

	return result, nil
}

// scanForMarkers re-reads each of files (relative to dir) line by line and
// returns the subset that still contain a conflict marker line.
func scanForMarkers(dir string, files []string) ([]string, error) {
	var stillConflicted []string
	for _, f := range files {
		path := filepath.Join(dir, f)
		has, err := fileHasMarker(path)
		if err != nil {
			if os.IsNotExist(err) {
				// A conflicted file the assistant deleted outright is resolved.
				continue
			}
			return nil, err
		}
		if has {
			stillConflicted = append(stillConflicted, f)
		}
	}
	return stillConflicted, nil
}

func fileHasMarker(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if ConflictMarker.MatchString(scanner.Text()) {
			return true, nil
		}
	}
	return false, scanner.Err()
}
