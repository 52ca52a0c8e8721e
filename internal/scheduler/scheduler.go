// Package scheduler implements the DAG-aware bounded worker pool described
// in spec.md §4.5: a single coordinator owns the pending/running/done sets;
// task runners signal completion back to the coordinator rather than
// mutating shared state themselves (design note §9: "promise/callback-based
// concurrency over child processes" becomes a producer/consumer over a
// bounded worker pool with a completion channel").
//
// Grounded on internal/executor/wave.go's WaveExecutor (bounded worker
// pool, logger hook shape) but restructured from wave-batch barriers into a
// continuous DAG scheduler: a task launches the moment its dependencies are
// in `done`, not when its whole wave's predecessors finish.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/harrison/auto-codex/internal/coreerr"
	"github.com/harrison/auto-codex/internal/models"
)

// TaskFunc executes a single task and returns its result. deps carries the
// already-finished results of task's own DependsOn entries, snapshotted by
// the coordinator before launch so the callback never touches the
// coordinator's shared results map directly. TaskFunc must return a
// non-nil error only for failures the scheduler should treat as task
// failure (which stops further launches); a successfully *recorded*
// failing TaskResult (e.g. ExitCode != 0, Succeeded() == false) should be
// returned with a nil error — the scheduler treats !result.Succeeded() the
// same as a returned error, either way.
type TaskFunc func(ctx context.Context, task models.Task, deps map[string]models.TaskResult) (models.TaskResult, error)

// Logger receives scheduler progress notifications. Run accepts a nil
// Logger to disable notifications altogether.
type Logger interface {
	TaskLaunched(taskID string)
	TaskFinished(result models.TaskResult, err error)
}

type completion struct {
	taskID string
	result models.TaskResult
	err    error
}

// Run drives plan's tasks to completion with the given worker count
// (already clamped by the caller via config.ClampWorkers), launching ready
// tasks in ascending id order, stopping new launches on the first failure
// while letting in-flight tasks drain, and returning a deadlock error if
// the running set ever empties with pending tasks still unsatisfied.
func Run(ctx context.Context, plan *models.Plan, workers int, fn TaskFunc, log Logger) (map[string]models.TaskResult, error) {
	tasksByID := make(map[string]models.Task, len(plan.Tasks))
	for _, t := range plan.Tasks {
		tasksByID[t.ID] = t
	}

	pending := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		pending[t.ID] = true
	}
	running := make(map[string]bool)
	done := make(map[string]bool)
	results := make(map[string]models.TaskResult, len(plan.Tasks))

	completions := make(chan completion)
	var wg sync.WaitGroup
	launchStopped := false
	var firstErr error

	launch := func(id string) {
		running[id] = true
		delete(pending, id)
		if log != nil {
			log.TaskLaunched(id)
		}

		// Snapshot this task's dependency results while still on the
		// coordinator goroutine: results is only ever written here, never
		// from a worker, so this copy is race-free and the worker gets an
		// immutable view.
		deps := make(map[string]models.TaskResult, len(tasksByID[id].DependsOn))
		for _, dep := range tasksByID[id].DependsOn {
			if r, ok := results[dep]; ok {
				deps[dep] = r
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := fn(ctx, tasksByID[id], deps)
			completions <- completion{taskID: id, result: result, err: err}
		}()
	}

	isReady := func(id string) bool {
		for _, dep := range tasksByID[id].DependsOn {
			if !done[dep] {
				return false
			}
		}
		return true
	}

	promoteReady := func() {
		if launchStopped {
			return
		}
		var readyIDs []string
		for id := range pending {
			if isReady(id) {
				readyIDs = append(readyIDs, id)
			}
		}
		sort.Strings(readyIDs)
		for _, id := range readyIDs {
			if len(running) >= workers {
				return
			}
			launch(id)
		}
	}

	promoteReady()

	for len(pending) > 0 || len(running) > 0 {
		if len(running) == 0 && len(pending) > 0 {
			pendingIDs := make([]string, 0, len(pending))
			for id := range pending {
				pendingIDs = append(pendingIDs, id)
			}
			sort.Strings(pendingIDs)
			return results, &coreerr.DeadlockError{Pending: pendingIDs}
		}

		c := <-completions
		delete(running, c.taskID)
		results[c.taskID] = c.result

		if log != nil {
			log.TaskFinished(c.result, c.err)
		}

		succeeded := c.err == nil && c.result.Succeeded()
		if succeeded {
			done[c.taskID] = true
		} else if !launchStopped {
			launchStopped = true
			for id := range pending {
				delete(pending, id)
			}
			if firstErr == nil {
				if c.err != nil {
					firstErr = c.err
				} else {
					firstErr = &coreerr.TaskFailureError{
						TaskID: c.taskID,
						Reason: "executor exit or output validation failed",
					}
				}
			}
		}

		promoteReady()
	}

	wg.Wait()
	close(completions)
	return results, firstErr
}
