// Package codexcli is the executor adapter: it invokes the external LLM
// command-line tool ("codex") in either read-only planning mode or
// workspace-write task/merge mode, assembling the flag set from
// configuration, mirroring child output to a log, and returning the exit
// code unchanged.
//
// Grounded directly on internal/claude/invoker.go: the reusable-client
// shape (construct once, invoke many times), the Request/Response split,
// and SetCleanEnv's environment hygiene — generalized to the mode, schema,
// web-search, and network-access flags spec.md §4.3 and §6 require, and to
// round-robin API-key assignment per spec.md §5 ("Shared resources").
package codexcli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/harrison/auto-codex/internal/config"
	"github.com/harrison/auto-codex/internal/procrun"
	"github.com/harrison/auto-codex/internal/watch"
)

// Mode selects the executor's filesystem access.
type Mode string

const (
	ModeReadOnly      Mode = "read-only"
	ModeWorkspaceWrite Mode = "workspace-write"
)

// Invoker is a reusable client for invoking the codex CLI. Create once, use
// many times; safe for concurrent use by multiple task runners.
type Invoker struct {
	// Path is the path to the codex CLI binary. Defaults to "codex".
	Path string

	// Timeout bounds a single invocation; zero means no timeout.
	Timeout time.Duration

	// Watcher, if set, attaches a worktree activity log to every
	// workspace-write invocation's log output.
	Watcher *watch.ActivityWatcher

	cfg *config.CodexConfig

	// keyIndex selects the cfg.APIKeysEnv entry every invocation uses; only
	// RotateKey advances it.
	keyIndex uint64
}

// New constructs an Invoker bound to the given codex configuration.
func New(cfg *config.CodexConfig) *Invoker {
	return &Invoker{Path: "codex", cfg: cfg}
}

// Request holds per-invocation configuration for a codex CLI call.
type Request struct {
	Mode       Mode
	Prompt     string
	SchemaPath string // optional --output-schema path
	OutputPath string // where codex must write its structured result
	WorkDir    string // working directory for the invocation (a task worktree, or the repo root for planning)
}

// Invoke assembles the command line, writes the two-line log header
// (working directory + formatted command), runs codex with stdout/stderr
// mirrored to log, and returns the exit code unchanged.
func (inv *Invoker) Invoke(ctx context.Context, req Request, log io.Writer) (exitCode int, err error) {
	argv, env, err := inv.build(req)
	if err != nil {
		return -1, err
	}

	fmt.Fprintf(log, "workdir: %s\n", req.WorkDir)
	fmt.Fprintf(log, "command: %s\n", formatCommand(argv))

	var watcher *watch.ActivityWatcher
	if req.Mode == ModeWorkspaceWrite {
		watcher = inv.Watcher
	}

	return procrun.RunStreamToLog(ctx, argv, procrun.Options{
		Dir:     req.WorkDir,
		Env:     env,
		Timeout: inv.Timeout,
		Policy:  procrun.ReturnNonZero,
	}, log, watcher)
}

func (inv *Invoker) build(req Request) (argv []string, env []string, err error) {
	if req.Prompt == "" {
		return nil, nil, fmt.Errorf("codexcli: prompt is required")
	}
	path := inv.Path
	if path == "" {
		path = "codex"
	}

	argv = []string{path}

	switch req.Mode {
	case ModeReadOnly:
		argv = append(argv, "--sandbox", "read-only")
	case ModeWorkspaceWrite:
		argv = append(argv, "--sandbox", "workspace-write")
		if inv.cfg.NetworkAccess {
			argv = append(argv, "--network-access")
		}
	default:
		return nil, nil, fmt.Errorf("codexcli: unknown mode %q", req.Mode)
	}

	if inv.cfg.FullAuto {
		argv = append(argv, "--full-auto")
	}
	if inv.cfg.Model != "" {
		argv = append(argv, "--model", inv.cfg.Model)
	}
	if inv.cfg.ReasoningEffort != "" {
		argv = append(argv, "--reasoning-effort", string(inv.cfg.ReasoningEffort))
	}
	if inv.cfg.WebSearch == config.WebSearchLive {
		argv = append(argv, "--web-search", "live", "--enable-search")
	} else {
		argv = append(argv, "--web-search", "cached")
	}
	if req.SchemaPath != "" {
		argv = append(argv, "--output-schema", req.SchemaPath)
	}
	if req.OutputPath != "" {
		argv = append(argv, "--output", req.OutputPath)
	}
	argv = append(argv, "-p", req.Prompt)

	env = inv.envWithRotatedKey()
	return argv, env, nil
}

// envWithRotatedKey builds the full environment for a codex invocation:
// the ambient environment (PATH, HOME, etc.), plus the next configured API
// key (round-robin) re-forwarded under its own name so it is guaranteed
// present regardless of how the ambient environment reached this process.
// Invoke never advances the round-robin counter; only RotateKey does. Each
// task sees a single key for its entire lifetime because the task runner
// constructs one Invoker per task and uses it for the task's
// dependency-merge and primary-execution calls alike.
func (inv *Invoker) envWithRotatedKey() []string {
	env := os.Environ()
	if inv.cfg == nil || len(inv.cfg.APIKeysEnv) == 0 {
		return env
	}
	idx := atomic.LoadUint64(&inv.keyIndex) % uint64(len(inv.cfg.APIKeysEnv))
	name := inv.cfg.APIKeysEnv[idx]
	return append(env, name+"="+os.Getenv(name))
}

// RotateKey advances the round-robin API key index by one. The run command
// calls it while constructing each new Invoker, so successive Invokers (one
// per task launch) start on successive keys.
func (inv *Invoker) RotateKey() {
	atomic.AddUint64(&inv.keyIndex, 1)
}

func formatCommand(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
