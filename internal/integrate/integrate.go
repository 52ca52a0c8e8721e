// Package integrate implements the final ordered merge of every
// successful task branch onto the base branch, executor-assisted conflict
// resolution, and the post-merge quality gates.
//
// Grounded on the same merge-with-executor-assist routine the task runner
// uses for dependency pre-merge (design note §9: factor one routine
// parameterized by merge flags, commit-message template, and a
// context-builder) plus the teacher's quality-control heritage
// (internal/executor/qc.go, doc_enforcer.go) trimmed to the single
// placeholder-token scan spec.md names.
package integrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/auto-codex/internal/codexcli"
	"github.com/harrison/auto-codex/internal/config"
	"github.com/harrison/auto-codex/internal/coreerr"
	"github.com/harrison/auto-codex/internal/mergeassist"
	"github.com/harrison/auto-codex/internal/models"
	"github.com/harrison/auto-codex/internal/procrun"
	"github.com/harrison/auto-codex/internal/vcsgit"
)

// QualityGate is a post-merge static scan the integrator runs against the
// set of files touched by the run before declaring success. Additional
// gates can be registered without the integrator itself changing.
type QualityGate interface {
	Name() string
	Check(ctx context.Context, repoRoot string, changedFiles []string) error
}

// Integrator merges a run's successful task branches onto the base branch
// in the plan's topological order, then runs the configured quality gates.
type Integrator struct {
	RepoRoot string
	BaseRef  string
	RunID    models.RunID
	Paths    models.RunPaths

	NewInvoker      func() *codexcli.Invoker
	MergeSchemaPath string

	Gates       []QualityGate
	TestCommand string
	TestShell   bool
}

// Run merges every task in order whose result produced a commit, aborting
// the whole run on the first merge failure (already-merged commits are
// NOT rolled back, per spec.md §7). On a clean integration it runs the
// configured quality gates and returns their error, if any.
func (in *Integrator) Run(ctx context.Context, order []string, results map[string]models.TaskResult) error {
	git := vcsgit.New(in.RepoRoot)

	if err := os.MkdirAll(in.Paths.MergeDir(), 0o755); err != nil {
		return &coreerr.IntegrationError{Reason: "create merge directory", Err: err}
	}

	if current, err := git.CurrentBranch(ctx); err != nil || current != in.BaseRef {
		_, stderr, code, err := procrun.RunCapture(ctx, []string{"git", "checkout", in.BaseRef}, procrun.Options{Dir: git.Dir, Policy: procrun.ReturnNonZero})
		if err != nil || code != 0 {
			return &coreerr.IntegrationError{Reason: fmt.Sprintf("check out base branch %s: %s", in.BaseRef, strings.TrimSpace(stderr)), Err: err}
		}
	}
	baseSHA, err := git.HeadSha(ctx)
	if err != nil {
		return &coreerr.IntegrationError{Reason: "read base commit", Err: err}
	}

	var integratedBranches []string
	for _, taskID := range order {
		result, ok := results[taskID]
		if !ok || result.CommitSHA == "" {
			continue // task produced no commit: nothing to integrate
		}
		if err := in.mergeTask(ctx, git, result); err != nil {
			return err
		}
		integratedBranches = append(integratedBranches, result.Branch)
	}

	changedFiles, err := changedFilesSince(ctx, git, baseSHA)
	if err != nil {
		return &coreerr.IntegrationError{Reason: "list changed files", Err: err}
	}

	for _, gate := range in.Gates {
		if err := gate.Check(ctx, in.RepoRoot, changedFiles); err != nil {
			return &coreerr.QualityGateError{Gate: gate.Name(), Reason: err.Error()}
		}
	}

	if in.TestCommand != "" {
		if err := in.runTestCommand(ctx); err != nil {
			return &coreerr.QualityGateError{Gate: "test", Reason: err.Error()}
		}
	}

	return nil
}

func (in *Integrator) mergeTask(ctx context.Context, git *vcsgit.Git, result models.TaskResult) error {
	mergeLog, err := os.Create(in.Paths.MergeLog(result.TaskID))
	if err != nil {
		return &coreerr.IntegrationError{Branch: result.Branch, Reason: "create merge log", Err: err}
	}
	defer mergeLog.Close()

	inv := in.NewInvoker()
	outputPath := in.Paths.MergeResultJSON(result.TaskID)

	assist := func(ctx context.Context, conflicted []string) error {
		if err := writeMergeContext(in.Paths.MergeContextDoc(), result, conflicted); err != nil {
			return fmt.Errorf("write merge context: %w", err)
		}
		prompt := integrationMergePrompt(result, conflicted)
		exitCode, err := inv.Invoke(ctx, codexcli.Request{
			Mode:       codexcli.ModeWorkspaceWrite,
			Prompt:     prompt,
			SchemaPath: in.MergeSchemaPath,
			OutputPath: outputPath,
			WorkDir:    in.RepoRoot,
		}, mergeLog)
		if err != nil {
			return err
		}
		if exitCode != 0 {
			return fmt.Errorf("executor-assisted integration merge exited %d", exitCode)
		}
		output, err := readMergeOutput(outputPath)
		if err != nil {
			return fmt.Errorf("read integration merge output: %w", err)
		}
		return output.Validate()
	}

	mergeResult, err := mergeassist.Resolve(ctx, git, result.Branch, vcsgit.MergeNoFFNoCommit, assist)
	if err != nil {
		return &coreerr.IntegrationError{Branch: result.Branch, Reason: "merge failed", Err: err}
	}

	message := fmt.Sprintf("merge %s: %s", result.TaskID, result.Output.Summary)
	if mergeResult.Conflicted {
		message = fmt.Sprintf("merge %s (executor-assisted): %s", result.TaskID, result.Output.Summary)
	}
	if err := git.CommitNoVerify(ctx, message); err != nil {
		return &coreerr.IntegrationError{Branch: result.Branch, Reason: "commit merge", Err: err}
	}
	return nil
}

func (in *Integrator) runTestCommand(ctx context.Context) error {
	argv := []string{"sh", "-c", in.TestCommand}
	if !in.TestShell {
		fields := strings.Fields(in.TestCommand)
		if len(fields) == 0 {
			return nil
		}
		argv = fields
	}
	stdout, stderr, exitCode, err := procrun.RunCapture(ctx, argv, procrun.Options{Dir: in.RepoRoot, Policy: procrun.ReturnNonZero})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("test command exited %d\nstdout:\n%s\nstderr:\n%s", exitCode, stdout, stderr)
	}
	return nil
}

func changedFilesSince(ctx context.Context, git *vcsgit.Git, baseRef string) ([]string, error) {
	stdout, stderr, code, err := procrun.RunCapture(ctx, []string{"git", "diff", "--name-only", baseRef, "HEAD"}, procrun.Options{Dir: git.Dir, Policy: procrun.ReturnNonZero})
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("git diff --name-only exited %d: %s", code, stderr)
	}
	stdout = strings.TrimSpace(stdout)
	if stdout == "" {
		return nil, nil
	}
	return strings.Split(stdout, "\n"), nil
}

func integrationMergePrompt(result models.TaskResult, conflicted []string) string {
	return fmt.Sprintf(
		"Integrating branch %s (%s) into the base branch produced conflicts in: %v. "+
			"The task's own summary of its change was: %q. "+
			"Resolve every conflict marker in these files so the integrated result reflects the task's intent "+
			"without reintroducing work already present on the base branch, then stage your resolution and report the outcome.",
		result.Branch, result.TaskID, conflicted, result.Output.Summary,
	)
}

func writeMergeContext(path string, result models.TaskResult, conflicted []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# Merge context: %s\n\n", result.TaskID)
	fmt.Fprintf(w, "Branch: %s\n\n", result.Branch)
	fmt.Fprintf(w, "Task summary: %s\n\n", result.Output.Summary)
	fmt.Fprintf(w, "Conflicted files:\n")
	for _, c := range conflicted {
		fmt.Fprintf(w, "- %s\n", c)
	}
	return w.Flush()
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

// PlaceholderGate fails (or warns) when a changed file contains one of the
// configured placeholder tokens, per spec.md §4.7's post-merge quality gate.
type PlaceholderGate struct {
	Mode   config.PlaceholderMode
	Tokens []string
}

func (g *PlaceholderGate) Name() string { return "placeholder" }

func (g *PlaceholderGate) Check(ctx context.Context, repoRoot string, changedFiles []string) error {
	if g.Mode == config.PlaceholderOff || len(g.Tokens) == 0 {
		return nil
	}
	var hits []string
	for _, rel := range changedFiles {
		path := filepath.Join(repoRoot, rel)
		found, err := fileContainsAny(path, g.Tokens)
		if err != nil {
			if os.IsNotExist(err) {
				continue // deleted by a later merge
			}
			return err
		}
		if found {
			hits = append(hits, rel)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	if g.Mode == config.PlaceholderWarn {
		fmt.Fprintf(os.Stderr, "warning: placeholder token found in: %v\n", hits)
		return nil
	}
	return fmt.Errorf("placeholder token found in: %v", hits)
}

func fileContainsAny(path string, tokens []string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, tok := range tokens {
			if strings.Contains(line, tok) {
				return true, nil
			}
		}
	}
	return false, scanner.Err()
}
