package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

const defaultNotifyTimeout = 10 * time.Second

// Notifier writes the terminal state of finished tasks into the store. Its
// OnComplete method is a CompleteFunc.
type Notifier struct {
	store    model.Store
	registry *Registry
	timeout  time.Duration
}

func NewNotifier(store model.Store, registry *Registry) *Notifier {
	return &Notifier{
		store:    store,
		registry: registry,
		timeout:  defaultNotifyTimeout,
	}
}

// OnComplete runs on the monitor goroutine, long after the request which
// started the task returned, so it opens its own context. Failures are logged
// and never propagated back to the supervisor.
func (n *Notifier) OnComplete(taskID string, exitCode int) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "notifier panicked", "task_id", taskID, "panic", r)
		}
	}()

	f := model.Finalization{
		ID:       taskID,
		Status:   model.StatusFromExitCode(exitCode),
		EndTime:  time.Now().UTC(),
		ExitCode: &exitCode,
	}
	// a cancelled task is ABORTED whatever its exit code was
	if n.registry != nil {
		if t, ok := n.registry.Get(taskID); ok {
			if stopped, terminal := t.stoppedAt(); terminal {
				f.Status = t.Status()
				f.EndTime = stopped
			}
		}
	}

	if err := n.store.Finalize(ctx, f); err != nil {
		slog.ErrorContext(ctx, "persisting final status failed", "task_id", taskID, "status", f.Status, "error", err)
		return
	}
	slog.DebugContext(ctx, "final status persisted", "task_id", taskID, "status", f.Status, "exit_code", exitCode)
}
