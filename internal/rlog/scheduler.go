package rlog

import "github.com/harrison/auto-codex/internal/models"

// SchedulerLogger adapts Logger to internal/scheduler.Logger so the run
// command can pass its console logger straight into scheduler.Run.
type SchedulerLogger struct {
	*Logger
}

func (s SchedulerLogger) TaskLaunched(taskID string) {
	s.Info("%s launched", taskID)
}

func (s SchedulerLogger) TaskFinished(result models.TaskResult, err error) {
	if err != nil {
		s.Error("%s failed: %v", result.TaskID, err)
		return
	}
	if result.Succeeded() {
		s.Success("%s done (%s)", result.TaskID, result.Output.Summary)
		return
	}
	s.Error("%s failed: exit %d", result.TaskID, result.ExitCode)
}
