// Package config loads and validates auto-codex's JSON configuration
// document, normalizing loosely-typed input into one strongly-typed Config
// value the way the teacher's config package normalizes its YAML tree —
// adapted here from YAML to JSON because every other artifact in this
// system (plan, task result, merge result) is JSON, and a mixed-format
// repository would be a needless surprise for the one human-edited file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReasoningEffort is the closed set of effort values accepted by the
// executor adapter. Comparisons are case-insensitive; unknown values fail
// fast at load time rather than at invocation time.
type ReasoningEffort string

const (
	EffortNone    ReasoningEffort = "none"
	EffortMinimal ReasoningEffort = "minimal"
	EffortLow     ReasoningEffort = "low"
	EffortMedium  ReasoningEffort = "medium"
	EffortHigh    ReasoningEffort = "high"
	EffortXHigh   ReasoningEffort = "xhigh"
)

var validEfforts = map[ReasoningEffort]bool{
	EffortNone: true, EffortMinimal: true, EffortLow: true,
	EffortMedium: true, EffortHigh: true, EffortXHigh: true,
}

// normalizeEffort lower-cases and validates a reasoning-effort string.
func normalizeEffort(raw string) (ReasoningEffort, error) {
	e := ReasoningEffort(strings.ToLower(strings.TrimSpace(raw)))
	if !validEfforts[e] {
		return "", fmt.Errorf("codex.reasoning_effort: unknown value %q (want one of none, minimal, low, medium, high, xhigh)", raw)
	}
	return e, nil
}

// Sandbox is the executor's filesystem access mode.
type Sandbox string

const (
	SandboxReadOnly      Sandbox = "read-only"
	SandboxWorkspaceWrite Sandbox = "workspace-write"
)

// WebSearchPolicy controls whether the executor may issue live web searches.
type WebSearchPolicy string

const (
	WebSearchCached WebSearchPolicy = "cached"
	WebSearchLive   WebSearchPolicy = "live"
)

// PlaceholderMode controls what the post-merge placeholder scan does when
// it finds a configured token in a changed file.
type PlaceholderMode string

const (
	PlaceholderOff  PlaceholderMode = "off"
	PlaceholderWarn PlaceholderMode = "warn"
	PlaceholderFail PlaceholderMode = "fail"
)

// CommandsConfig names the shell commands the repository exposes for setup,
// test, lint, format, and build. Only Test is consumed by the core.
type CommandsConfig struct {
	Setup     string `json:"setup,omitempty"`
	Test      string `json:"test,omitempty"`
	Lint      string `json:"lint,omitempty"`
	Format    string `json:"format,omitempty"`
	Build     string `json:"build,omitempty"`
	TestShell bool   `json:"test_shell,omitempty"`
}

// CodexConfig configures every executor-adapter invocation.
type CodexConfig struct {
	Model           string          `json:"model"`
	Sandbox         Sandbox         `json:"sandbox"`
	WebSearch       WebSearchPolicy `json:"web_search"`
	NetworkAccess   bool            `json:"network_access"`
	ReasoningEffort ReasoningEffort `json:"reasoning_effort"`
	FullAuto        bool            `json:"full_auto"`
	APIKeysEnv      []string        `json:"api_keys_env,omitempty"`
}

// PlanningConfig configures the (out-of-scope) interactive clarification
// stage. The core only passes these values through; it never reads them.
type PlanningConfig struct {
	AskQuestions    bool `json:"ask_questions,omitempty"`
	MaxQuestions    int  `json:"max_questions,omitempty"`
	NonInteractive  bool `json:"non_interactive,omitempty"`
}

// QualityConfig configures the post-merge quality gates the integrator runs.
type QualityConfig struct {
	PlaceholderCheck  PlaceholderMode `json:"placeholder_check"`
	PlaceholderTokens []string        `json:"placeholder_tokens,omitempty"`
}

// Config is the fully validated, typed view of .auto-codex/config.json.
type Config struct {
	Agents   int            `json:"agents"`
	Commands CommandsConfig `json:"commands"`
	Codex    CodexConfig    `json:"codex"`
	Planning PlanningConfig `json:"planning"`
	Quality  QualityConfig  `json:"quality"`
}

// Default returns the configuration used when no config.json is present.
func Default() *Config {
	return &Config{
		Agents: 4,
		Codex: CodexConfig{
			Model:           "gpt-5.2-codex",
			Sandbox:         SandboxWorkspaceWrite,
			WebSearch:       WebSearchCached,
			ReasoningEffort: EffortXHigh,
			FullAuto:        true,
		},
		Quality: QualityConfig{
			PlaceholderCheck: PlaceholderOff,
		},
	}
}

// Path is the stable, repository-relative location of the config document.
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, ".auto-codex", "config.json")
}

// Load reads and validates the config document at repoRoot's
// .auto-codex/config.json. A missing file is not an error: Load returns
// Default(). A malformed or semantically invalid file is.
func Load(repoRoot string) (*Config, error) {
	path := Path(repoRoot)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.normalizeAndValidate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalizeAndValidate() error {
	// Worker count is clamped, never rejected: 0 -> 1, 99 -> 16.
	if c.Agents < 1 {
		c.Agents = 1
	}
	if c.Agents > 16 {
		c.Agents = 16
	}

	if c.Codex.ReasoningEffort == "" {
		c.Codex.ReasoningEffort = EffortXHigh
	}
	effort, err := normalizeEffort(string(c.Codex.ReasoningEffort))
	if err != nil {
		return err
	}
	c.Codex.ReasoningEffort = effort

	if c.Codex.Model == "" {
		c.Codex.Model = "gpt-5.2-codex"
	}

	switch c.Codex.Sandbox {
	case "":
		c.Codex.Sandbox = SandboxWorkspaceWrite
	case SandboxReadOnly, SandboxWorkspaceWrite:
	default:
		return fmt.Errorf("codex.sandbox: unknown value %q (want read-only or workspace-write)", c.Codex.Sandbox)
	}

	switch c.Codex.WebSearch {
	case "":
		c.Codex.WebSearch = WebSearchCached
	case WebSearchCached, WebSearchLive:
	default:
		return fmt.Errorf("codex.web_search: unknown value %q (want cached or live)", c.Codex.WebSearch)
	}

	switch c.Quality.PlaceholderCheck {
	case "":
		c.Quality.PlaceholderCheck = PlaceholderOff
	case PlaceholderOff, PlaceholderWarn, PlaceholderFail:
	default:
		return fmt.Errorf("quality.placeholder_check: unknown value %q (want off, warn, or fail)", c.Quality.PlaceholderCheck)
	}

	return nil
}

// ClampWorkers applies the scheduler's worker-count clamp to an
// independently supplied value (e.g. a CLI --agents flag) the same way
// Config.Agents is clamped at load time.
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 16 {
		return 16
	}
	return n
}
