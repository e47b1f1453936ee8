package service_test

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/Evaluator/internal/model"
	"github.com/CZERTAINLY/Evaluator/internal/service"

	"github.com/stretchr/testify/require"
)

func lookSh(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	return sh
}

func shCommand(sh, script string) service.Command {
	return service.Command{
		Path: sh,
		Args: []string{"-c", script},
	}
}

// waitStatus polls until the task reaches a terminal state.
func waitTerminal(t *testing.T, sup *service.Supervisor, id string) service.Snapshot {
	t.Helper()
	var snap service.Snapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = sup.Status(id)
		return ok && snap.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return snap
}

func closeSupervisor(t *testing.T, sup *service.Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sup.Close(ctx))
}

// memStore is an in-memory model.Store.
type memStore struct {
	mx        sync.Mutex
	records   map[string]model.Evaluation
	finalized []model.Finalization
	failGet   error
}

func newMemStore(records ...model.Evaluation) *memStore {
	s := &memStore{records: make(map[string]model.Evaluation)}
	for _, r := range records {
		s.records[r.UUID] = r
	}
	return s
}

func (s *memStore) Create(_ context.Context, e model.Evaluation) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.records[e.UUID] = e
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Evaluation, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.failGet != nil {
		return model.Evaluation{}, s.failGet
	}
	e, ok := s.records[id]
	if !ok {
		return model.Evaluation{}, fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}
	return e, nil
}

func (s *memStore) List(_ context.Context) ([]model.Evaluation, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	ret := make([]model.Evaluation, 0, len(s.records))
	for _, e := range s.records {
		ret = append(ret, e)
	}
	slices.SortFunc(ret, func(a, b model.Evaluation) int { return strings.Compare(a.UUID, b.UUID) })
	return ret, nil
}

func (s *memStore) Claim(_ context.Context, id string) (model.Evaluation, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	e, ok := s.records[id]
	if !ok {
		return e, fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}
	if err := e.Claim(); err != nil {
		return e, err
	}
	s.records[id] = e
	return e, nil
}

func (s *memStore) Release(_ context.Context, id string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	e, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}
	if err := e.Release(); err != nil {
		return err
	}
	s.records[id] = e
	return nil
}

func (s *memStore) Finalize(_ context.Context, f model.Finalization) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	e, ok := s.records[f.ID]
	if !ok {
		return fmt.Errorf("%s: %w", f.ID, model.ErrNotFound)
	}
	if err := f.Apply(&e); err != nil {
		return err
	}
	s.records[f.ID] = e
	s.finalized = append(s.finalized, f)
	return nil
}

func (s *memStore) finalizations() []model.Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	ret := make([]model.Status, 0, len(s.finalized))
	for _, f := range s.finalized {
		ret = append(ret, f.Status)
	}
	return ret
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) record(t *testing.T, id string) model.Evaluation {
	t.Helper()
	e, err := s.Get(t.Context(), id)
	require.NoError(t, err)
	return e
}
