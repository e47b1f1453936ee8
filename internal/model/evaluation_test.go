package model_test

import (
	"testing"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"

	"github.com/stretchr/testify/require"
)

func TestFinalizationApply(t *testing.T) {
	t.Parallel()
	end := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	zero, one := 0, 1

	t.Run("in progress", func(t *testing.T) {
		t.Parallel()
		e := model.Evaluation{UUID: "A", Status: model.StatusInProgress}
		require.NoError(t, model.Finalization{ID: "A", Status: model.StatusCompleted, EndTime: end, ExitCode: &zero}.Apply(&e))
		require.Equal(t, model.StatusCompleted, e.Status)
		require.True(t, end.Equal(*e.EndTime))
		require.Equal(t, 0, *e.ExitCode)
	})

	t.Run("same terminal status adds the exit code", func(t *testing.T) {
		t.Parallel()
		e := model.Evaluation{UUID: "A", Status: model.StatusInProgress}
		require.NoError(t, model.Finalization{ID: "A", Status: model.StatusAborted, EndTime: end}.Apply(&e))
		require.Nil(t, e.ExitCode)

		require.NoError(t, model.Finalization{ID: "A", Status: model.StatusAborted, EndTime: end.Add(time.Minute), ExitCode: &one}.Apply(&e))
		require.Equal(t, model.StatusAborted, e.Status)
		require.Equal(t, 1, *e.ExitCode)
		require.True(t, end.Equal(*e.EndTime))
	})

	t.Run("terminal status is final", func(t *testing.T) {
		t.Parallel()
		e := model.Evaluation{UUID: "A", Status: model.StatusAborted, EndTime: &end}
		err := model.Finalization{ID: "A", Status: model.StatusCompleted, EndTime: end.Add(time.Minute), ExitCode: &zero}.Apply(&e)
		require.ErrorIs(t, err, model.ErrInvalidTransition)
		require.Equal(t, model.StatusAborted, e.Status)
		require.Nil(t, e.ExitCode)
	})

	t.Run("not started", func(t *testing.T) {
		t.Parallel()
		e := model.Evaluation{UUID: "A", Status: model.StatusNotStarted}
		err := model.Finalization{ID: "A", Status: model.StatusAborted, EndTime: end}.Apply(&e)
		require.ErrorIs(t, err, model.ErrInvalidTransition)
		require.Equal(t, model.StatusNotStarted, e.Status)
	})

	t.Run("non terminal status", func(t *testing.T) {
		t.Parallel()
		e := model.Evaluation{UUID: "A", Status: model.StatusInProgress}
		err := model.Finalization{ID: "A", Status: model.StatusNotStarted, EndTime: end}.Apply(&e)
		require.ErrorIs(t, err, model.ErrInvalidTransition)
	})
}

func TestClaimRelease(t *testing.T) {
	t.Parallel()
	end := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	code := 3

	e := model.Evaluation{UUID: "A", Status: model.StatusAborted, EndTime: &end, ExitCode: &code}
	require.NoError(t, e.Claim())
	require.Equal(t, model.StatusInProgress, e.Status)
	require.Nil(t, e.EndTime)
	require.Nil(t, e.ExitCode)

	require.ErrorIs(t, e.Claim(), model.ErrAlreadyRunning)

	require.NoError(t, e.Release())
	require.Equal(t, model.StatusNotStarted, e.Status)
	require.ErrorIs(t, e.Release(), model.ErrInvalidTransition)
}
