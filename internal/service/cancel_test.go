package service_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"
	"github.com/CZERTAINLY/Evaluator/internal/service"

	"github.com/stretchr/testify/require"
)

func TestCanceller(t *testing.T) {
	t.Parallel()
	sh := lookSh(t)

	t.Run("running", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(model.Evaluation{UUID: "C", Status: model.StatusInProgress})
		reg := service.NewRegistry()
		sup := service.NewSupervisor(reg, 1)
		t.Cleanup(func() { closeSupervisor(t, sup) })
		notifier := service.NewNotifier(store, reg)
		canceller := service.NewCanceller(sup, store)

		require.True(t, sup.Start(t.Context(), "C", shCommand(sh, "sleep 30"), notifier.OnComplete))
		signalled, err := canceller.Stop(t.Context(), "C")
		require.NoError(t, err)
		require.True(t, signalled)
		require.Equal(t, model.StatusAborted, store.record(t, "C").Status)

		snap := waitTerminal(t, sup, "C")
		require.Equal(t, model.StatusAborted, snap.Status)

		// the notifier adds the exit code, the status stays ABORTED
		require.Eventually(t, func() bool {
			return store.record(t, "C").ExitCode != nil
		}, 10*time.Second, 10*time.Millisecond)
		require.Equal(t, model.StatusAborted, store.record(t, "C").Status)

		_, err = canceller.Stop(t.Context(), "C")
		require.ErrorIs(t, err, model.ErrNotRunning)
	})

	t.Run("finished before its record", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(model.Evaluation{UUID: "F", Status: model.StatusInProgress})
		reg := service.NewRegistry()
		sup := service.NewSupervisor(reg, 1)
		t.Cleanup(func() { closeSupervisor(t, sup) })
		notifier := service.NewNotifier(store, reg)
		canceller := service.NewCanceller(sup, store)

		// hold the notifier back, so the record stays IN_PROGRESS after exit
		release := make(chan struct{})
		var once sync.Once
		unblock := func() { once.Do(func() { close(release) }) }
		t.Cleanup(unblock)
		onComplete := func(id string, code int) {
			<-release
			notifier.OnComplete(id, code)
		}

		require.True(t, sup.Start(t.Context(), "F", shCommand(sh, "exit 0"), onComplete))
		snap := waitTerminal(t, sup, "F")
		require.Equal(t, model.StatusCompleted, snap.Status)
		require.Equal(t, model.StatusInProgress, store.record(t, "F").Status)

		signalled, err := canceller.Stop(t.Context(), "F")
		require.ErrorIs(t, err, model.ErrNotRunning)
		require.False(t, signalled)
		require.Equal(t, model.StatusInProgress, store.record(t, "F").Status)

		unblock()
		require.Eventually(t, func() bool {
			return store.record(t, "F").Status == model.StatusCompleted
		}, 10*time.Second, 10*time.Millisecond)
		require.Equal(t, []model.Status{model.StatusCompleted}, store.finalizations())
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		sup := service.NewSupervisor(service.NewRegistry(), 1)
		t.Cleanup(func() { closeSupervisor(t, sup) })
		canceller := service.NewCanceller(sup, newMemStore())

		_, err := canceller.Stop(t.Context(), "nope")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("not started", func(t *testing.T) {
		t.Parallel()
		store := newMemStore(model.Evaluation{UUID: "N", Status: model.StatusNotStarted})
		sup := service.NewSupervisor(service.NewRegistry(), 1)
		t.Cleanup(func() { closeSupervisor(t, sup) })
		canceller := service.NewCanceller(sup, store)

		_, err := canceller.Stop(t.Context(), "N")
		require.ErrorIs(t, err, model.ErrNotRunning)
		require.Equal(t, model.StatusNotStarted, store.record(t, "N").Status)
	})

	t.Run("stale in progress record", func(t *testing.T) {
		t.Parallel()
		// the process died with a previous instance of the server
		store := newMemStore(model.Evaluation{UUID: "S", Status: model.StatusInProgress})
		sup := service.NewSupervisor(service.NewRegistry(), 1)
		t.Cleanup(func() { closeSupervisor(t, sup) })
		canceller := service.NewCanceller(sup, store)

		signalled, err := canceller.Stop(t.Context(), "S")
		require.NoError(t, err)
		require.False(t, signalled)
		require.Equal(t, model.StatusAborted, store.record(t, "S").Status)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		store.failGet = errors.New("connection refused")
		sup := service.NewSupervisor(service.NewRegistry(), 1)
		t.Cleanup(func() { closeSupervisor(t, sup) })
		canceller := service.NewCanceller(sup, store)

		_, err := canceller.Stop(t.Context(), "X")
		require.Error(t, err)
		require.NotErrorIs(t, err, model.ErrNotFound)
	})
}
