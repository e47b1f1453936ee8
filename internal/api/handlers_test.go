package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/CZERTAINLY/Evaluator/internal/api"
	"github.com/CZERTAINLY/Evaluator/internal/evaluate"
	"github.com/CZERTAINLY/Evaluator/internal/model"
	"github.com/CZERTAINLY/Evaluator/internal/result"
	"github.com/CZERTAINLY/Evaluator/internal/service"

	"github.com/stretchr/testify/require"
)

// fakeEvaluations knows a single evaluation "E1".
type fakeEvaluations struct {
	runErr    error
	index     *int
	deleted   []string
	created   []evaluate.NewEvaluation
	stopErr   error
	signalled bool
}

func (f *fakeEvaluations) lookup(id string) (model.Evaluation, error) {
	if id != "E1" {
		return model.Evaluation{}, fmt.Errorf("evaluation %s: %w", id, model.ErrNotFound)
	}
	return model.Evaluation{UUID: "E1", Type: model.TypePathLoss, Status: model.StatusNotStarted}, nil
}

func (f *fakeEvaluations) Create(_ context.Context, n evaluate.NewEvaluation) (model.Evaluation, error) {
	if !model.ValidType(n.Type) {
		return model.Evaluation{}, model.ErrInvalidType
	}
	f.created = append(f.created, n)
	return model.Evaluation{UUID: "E2", Type: n.Type, Status: model.StatusNotStarted}, nil
}

func (f *fakeEvaluations) Get(_ context.Context, id string) (model.Evaluation, error) {
	return f.lookup(id)
}

func (f *fakeEvaluations) List(context.Context) ([]model.Evaluation, error) {
	return nil, nil
}

func (f *fakeEvaluations) Run(_ context.Context, id string) (evaluate.RunInfo, error) {
	if _, err := f.lookup(id); err != nil {
		return evaluate.RunInfo{}, err
	}
	if f.runErr != nil {
		return evaluate.RunInfo{}, f.runErr
	}
	return evaluate.RunInfo{ProcessID: id, RunningCount: 1, MaxConcurrency: 5}, nil
}

func (f *fakeEvaluations) Stop(_ context.Context, id string) (bool, error) {
	if _, err := f.lookup(id); err != nil {
		return false, err
	}
	return f.signalled, f.stopErr
}

func (f *fakeEvaluations) Status(_ context.Context, id string) (evaluate.Status, error) {
	if _, err := f.lookup(id); err != nil {
		return evaluate.Status{}, err
	}
	return evaluate.Status{
		Snapshot: service.Snapshot{TaskID: id, Status: model.StatusInProgress, Stdout: []string{"epoch 1"}},
		Live:     true,
	}, nil
}

func (f *fakeEvaluations) Result(_ context.Context, id string, index *int) (any, error) {
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	f.index = index
	return result.Table{Measure: []float64{1}, Predict: []float64{2}, RMSE: []float64{3}}, nil
}

func (f *fakeEvaluations) Delete(_ context.Context, id string) error {
	if _, err := f.lookup(id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEvaluations) Capacity() (int, int) {
	return 2, 5
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.Equal(t, rec.Code, env.Code)
	return rec.Code, env
}

func TestRoutes(t *testing.T) {
	t.Parallel()
	fake := &fakeEvaluations{signalled: true}
	h := api.NewRouter(fake)

	var tests = []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/api/health", "", http.StatusOK},
		{"create", http.MethodPost, "/api/evaluations", `{"evaluate_type":2,"script":"main.py"}`, http.StatusCreated},
		{"create invalid body", http.MethodPost, "/api/evaluations", `{`, http.StatusBadRequest},
		{"create invalid type", http.MethodPost, "/api/evaluations", `{"evaluate_type":9}`, http.StatusBadRequest},
		{"list", http.MethodGet, "/api/evaluations", "", http.StatusOK},
		{"get", http.MethodGet, "/api/evaluations/E1", "", http.StatusOK},
		{"get unknown", http.MethodGet, "/api/evaluations/nope", "", http.StatusNotFound},
		{"run", http.MethodPost, "/api/evaluations/E1/run", "", http.StatusAccepted},
		{"run unknown", http.MethodPost, "/api/evaluations/nope/run", "", http.StatusNotFound},
		{"stop", http.MethodPost, "/api/evaluations/E1/stop", "", http.StatusOK},
		{"stop unknown", http.MethodPost, "/api/evaluations/nope/stop", "", http.StatusNotFound},
		{"status", http.MethodGet, "/api/evaluations/E1/status", "", http.StatusOK},
		{"status unknown", http.MethodGet, "/api/evaluations/nope/status", "", http.StatusNotFound},
		{"result", http.MethodGet, "/api/evaluations/E1/result", "", http.StatusOK},
		{"result bad index", http.MethodGet, "/api/evaluations/E1/result?index=x", "", http.StatusBadRequest},
		{"delete", http.MethodDelete, "/api/evaluations/E1", "", http.StatusOK},
		{"delete unknown", http.MethodDelete, "/api/evaluations/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, h, tt.method, tt.target, tt.body)
			require.Equal(t, tt.status, code, env.Message)
		})
	}
	require.Len(t, fake.created, 1)
	require.Equal(t, "main.py", fake.created[0].Script)
	require.Equal(t, []string{"E1"}, fake.deleted)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		err    error
		status int
	}{
		{evaluate.ErrBusy, http.StatusTooManyRequests},
		{fmt.Errorf("E1: %w", evaluate.ErrAlreadyRunning), http.StatusConflict},
		{fmt.Errorf("E1: %w", evaluate.ErrSpawn), http.StatusInternalServerError},
		{fmt.Errorf("E1: %w", evaluate.ErrIncomplete), http.StatusBadRequest},
	}
	for _, tt := range tests {
		h := api.NewRouter(&fakeEvaluations{runErr: tt.err})
		code, env := do(t, h, http.MethodPost, "/api/evaluations/E1/run", "")
		require.Equal(t, tt.status, code)
		require.Equal(t, tt.err.Error(), env.Message)
	}

	h := api.NewRouter(&fakeEvaluations{stopErr: fmt.Errorf("E1: %w", model.ErrNotRunning)})
	code, _ := do(t, h, http.MethodPost, "/api/evaluations/E1/stop", "")
	require.Equal(t, http.StatusConflict, code)
}

func TestPayloads(t *testing.T) {
	t.Parallel()
	fake := &fakeEvaluations{}
	h := api.NewRouter(fake)

	_, env := do(t, h, http.MethodGet, "/api/health", "")
	require.JSONEq(t, `{"running_count":2,"max_processes":5}`, string(env.Data))

	_, env = do(t, h, http.MethodGet, "/api/evaluations", "")
	require.JSONEq(t, `[]`, string(env.Data))

	_, env = do(t, h, http.MethodGet, "/api/evaluations/E1/result?index=4", "")
	require.NotNil(t, fake.index)
	require.Equal(t, 4, *fake.index)
	var table result.Table
	require.NoError(t, json.Unmarshal(env.Data, &table))
	require.Equal(t, []float64{1}, table.Measure)

	_, _ = do(t, h, http.MethodGet, "/api/evaluations/E1/result", "")
	require.Nil(t, fake.index)

	_, env = do(t, h, http.MethodGet, "/api/evaluations/E1/status", "")
	var status map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &status))
	require.Equal(t, "E1", status["process_id"])
	require.Equal(t, "IN_PROGRESS", status["status"])
	require.Equal(t, true, status["live"])
}
