package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

// Canceller stops a running job on user request and records it as ABORTED.
type Canceller struct {
	supervisor *Supervisor
	store      model.Store
}

func NewCanceller(supervisor *Supervisor, store model.Store) *Canceller {
	return &Canceller{
		supervisor: supervisor,
		store:      store,
	}
}

// Stop terminates the process of id and marks the record ABORTED.
//
// Errors:
//   - model.ErrNotFound when neither the store nor the supervisor know id
//   - model.ErrNotRunning when the job is neither IN_PROGRESS nor alive, or
//     when its process already ended on its own
//
// The returned bool reports if a live process was signalled. The monitor later
// persists the exit code through the Notifier; the status stays ABORTED.
func (c *Canceller) Stop(ctx context.Context, id string) (bool, error) {
	rec, err := c.store.Get(ctx, id)
	known := err == nil
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return false, fmt.Errorf("loading %s: %w", id, err)
	}
	task, tracked := c.supervisor.Registry().Get(id)
	if !known && !tracked {
		return false, fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}

	alive := c.supervisor.Alive(id)
	if !alive && (!known || rec.Status != model.StatusInProgress) {
		return false, fmt.Errorf("%s: %w", id, model.ErrNotRunning)
	}

	signalled := alive && c.supervisor.Stop(ctx, id)
	// the process exited by itself, the record may still be IN_PROGRESS until
	// the notifier writes its final state
	if tracked && !signalled && !task.stopRequested() {
		return false, fmt.Errorf("%s: %w", id, model.ErrNotRunning)
	}
	if !known {
		return signalled, nil
	}

	f := model.Finalization{
		ID:      id,
		Status:  model.StatusAborted,
		EndTime: time.Now().UTC(),
	}
	if err := c.store.Finalize(ctx, f); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return signalled, fmt.Errorf("%s: %w", id, model.ErrNotRunning)
		}
		return signalled, fmt.Errorf("marking %s aborted: %w", id, err)
	}
	slog.InfoContext(ctx, "evaluation aborted", "task_id", id, "signalled", signalled)
	return signalled, nil
}
