package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/auto-codex/internal/coreerr"
	"github.com/harrison/auto-codex/internal/models"
)

func taskOK(id string, deps ...string) models.Task {
	return models.Task{ID: id, DependsOn: deps}
}

func succeed(id string) models.TaskResult {
	return models.TaskResult{TaskID: id, ExitCode: 0, Output: models.TaskOutput{Status: models.StatusDone, Summary: "ok"}}
}

func TestRunRespectsDependencyOrder(t *testing.T) {
	plan := &models.Plan{Tasks: []models.Task{
		taskOK("T02", "T01"),
		taskOK("T01"),
		taskOK("T03", "T02"),
	}}

	var mu sync.Mutex
	var finishOrder []string

	results, err := Run(context.Background(), plan, 4, func(ctx context.Context, task models.Task, deps map[string]models.TaskResult) (models.TaskResult, error) {
		for _, dep := range task.DependsOn {
			if _, ok := deps[dep]; !ok {
				t.Errorf("task %s launched without completed dependency %s", task.ID, dep)
			}
		}
		mu.Lock()
		finishOrder = append(finishOrder, task.ID)
		mu.Unlock()
		return succeed(task.ID), nil
	}, nil)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"T01", "T02", "T03"}, finishOrder)
}

func TestRunBoundsConcurrency(t *testing.T) {
	plan := &models.Plan{Tasks: []models.Task{
		taskOK("T01"), taskOK("T02"), taskOK("T03"), taskOK("T04"), taskOK("T05"),
	}}

	var current, maxSeen int64
	release := make(chan struct{})

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	_, err := Run(context.Background(), plan, 2, func(ctx context.Context, task models.Task, deps map[string]models.TaskResult) (models.TaskResult, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			old := atomic.LoadInt64(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt64(&maxSeen, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt64(&current, -1)
		return succeed(task.ID), nil
	}, nil)

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(2))
}

func TestRunStopsLaunchingAfterFailureButDrainsInFlight(t *testing.T) {
	plan := &models.Plan{Tasks: []models.Task{
		taskOK("T01"), taskOK("T02"), taskOK("T03", "T01"),
	}}

	var launched sync.Map

	results, err := Run(context.Background(), plan, 2, func(ctx context.Context, task models.Task, deps map[string]models.TaskResult) (models.TaskResult, error) {
		launched.Store(task.ID, true)
		if task.ID == "T02" {
			return models.TaskResult{TaskID: task.ID, ExitCode: 1}, nil
		}
		time.Sleep(20 * time.Millisecond)
		return succeed(task.ID), nil
	}, nil)

	require.Error(t, err)
	var taskErr *coreerr.TaskFailureError
	assert.ErrorAs(t, err, &taskErr)

	_, t03Launched := launched.Load("T03")
	assert.False(t, t03Launched, "T03 depends on T01 which never finished before the failure stopped launches")
	assert.Len(t, results, 2) // T01 and T02 both ran and reported in
}

func TestRunDetectsDeadlock(t *testing.T) {
	// A task whose dependency id isn't in the plan at all can never
	// become ready; planfile validation should make this unreachable in
	// practice, but the scheduler defends against it directly.
	plan := &models.Plan{Tasks: []models.Task{
		taskOK("T01", "T99"),
	}}

	_, err := Run(context.Background(), plan, 1, func(ctx context.Context, task models.Task, deps map[string]models.TaskResult) (models.TaskResult, error) {
		t.Fatal("unreachable task should never launch")
		return models.TaskResult{}, nil
	}, nil)

	require.Error(t, err)
	var deadlockErr *coreerr.DeadlockError
	require.ErrorAs(t, err, &deadlockErr)
	assert.Equal(t, []string{"T01"}, deadlockErr.Pending)
}

func TestRunSingleWorkerIsFullySerial(t *testing.T) {
	plan := &models.Plan{Tasks: []models.Task{taskOK("T01"), taskOK("T02"), taskOK("T03")}}

	var active int64
	_, err := Run(context.Background(), plan, 1, func(ctx context.Context, task models.Task, deps map[string]models.TaskResult) (models.TaskResult, error) {
		n := atomic.AddInt64(&active, 1)
		defer atomic.AddInt64(&active, -1)
		assert.Equal(t, int64(1), n)
		time.Sleep(5 * time.Millisecond)
		return succeed(task.ID), nil
	}, nil)

	require.NoError(t, err)
}
