package artifact

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/auto-codex/internal/models"
)

func testPaths(t *testing.T) models.RunPaths {
	t.Helper()
	return models.NewRunPaths(t.TempDir(), models.RunID("run-1"))
}

func TestWriteGoalDocRendersTasksAndDependencies(t *testing.T) {
	w := NewWriter(testPaths(t))
	plan := &models.Plan{
		Title:    "demo",
		Overview: "ship the thing",
		Tasks: []models.Task{
			{ID: "T01", Title: "first"},
			{ID: "T02", Title: "second", DependsOn: []string{"T01"}},
		},
	}

	require.NoError(t, w.WriteGoalDoc(plan))

	data, err := os.ReadFile(w.Paths.GoalDoc())
	require.NoError(t, err)
	assert.Contains(t, string(data), "demo")
	assert.Contains(t, string(data), "T02")
	assert.Contains(t, string(data), "depends on T01")
}

func TestWriteTaskDocIncludesPrompt(t *testing.T) {
	w := NewWriter(testPaths(t))
	task := models.Task{ID: "T01", Title: "first", Prompt: "do the first thing"}

	require.NoError(t, w.WriteTaskDoc(task))

	data, err := os.ReadFile(w.Paths.TaskDoc("T01"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "do the first thing")
}

func TestWriteSummaryRendersOutcomeAndTasks(t *testing.T) {
	w := NewWriter(testPaths(t))
	summary := &models.RunSummary{
		RunID:      models.RunID("run-1"),
		Goal:       "ship the thing",
		StartedAt:  time.Now(),
		EndedAt:    time.Now(),
		Outcome:    models.OutcomeSuccess,
		Integrated: true,
		BaseBranch: "main",
		Tasks: []models.TaskSummaryLine{
			{TaskID: "T01", OK: true, Branch: "acdx/run-1/T01"},
		},
	}

	require.NoError(t, w.WriteSummary(summary))

	data, err := os.ReadFile(w.Paths.SummaryDoc())
	require.NoError(t, err)
	assert.Contains(t, string(data), "success")
	assert.Contains(t, string(data), "T01")
	assert.Contains(t, string(data), "main")
}

func TestDefaultSchemaReturnsEmbeddedDocuments(t *testing.T) {
	for _, name := range []string{"plan", "task", "merge"} {
		data, err := DefaultSchema(name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "$schema")
	}
}
