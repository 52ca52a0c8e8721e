package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadNormalizesEffortCase(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"codex":{"reasoning_effort":"XHIGH"}}`)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, EffortXHigh, cfg.Codex.ReasoningEffort)
}

func TestLoadRejectsUnknownEffort(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"codex":{"reasoning_effort":"extreme"}}`)

	_, err := Load(root)
	require.Error(t, err)
}

func TestLoadRejectsUnknownSandbox(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"codex":{"sandbox":"full-access"}}`)

	_, err := Load(root)
	require.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{not json`)

	_, err := Load(root)
	require.Error(t, err)
}

func TestClampWorkersBoundary(t *testing.T) {
	assert.Equal(t, 1, ClampWorkers(0))
	assert.Equal(t, 1, ClampWorkers(-5))
	assert.Equal(t, 1, ClampWorkers(1))
	assert.Equal(t, 16, ClampWorkers(16))
	assert.Equal(t, 16, ClampWorkers(99))
}

func TestLoadClampsAgentsField(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"agents": 0}`)
	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Agents)

	root2 := t.TempDir()
	writeConfig(t, root2, `{"agents": 99}`)
	cfg2, err := Load(root2)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg2.Agents)
}

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, ".auto-codex")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o644))
}
