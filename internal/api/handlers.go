package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CZERTAINLY/Evaluator/internal/evaluate"
	"github.com/CZERTAINLY/Evaluator/internal/model"
)

// Evaluations is implemented by evaluate.Service.
type Evaluations interface {
	Create(ctx context.Context, n evaluate.NewEvaluation) (model.Evaluation, error)
	Get(ctx context.Context, id string) (model.Evaluation, error)
	List(ctx context.Context) ([]model.Evaluation, error)
	Run(ctx context.Context, id string) (evaluate.RunInfo, error)
	Stop(ctx context.Context, id string) (bool, error)
	Status(ctx context.Context, id string) (evaluate.Status, error)
	Result(ctx context.Context, id string, index *int) (any, error)
	Delete(ctx context.Context, id string) error
	Capacity() (running, maxConcurrency int)
}

type Handlers struct {
	evaluations Evaluations
}

func NewHandlers(evaluations Evaluations) *Handlers {
	return &Handlers{evaluations: evaluations}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	running, maxConcurrency := h.evaluations.Capacity()
	success(w, http.StatusOK, "healthy", map[string]int{
		"running_count": running,
		"max_processes": maxConcurrency,
	})
}

func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req evaluate.NewEvaluation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		failure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := h.evaluations.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	success(w, http.StatusCreated, "evaluation created", e)
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.evaluations.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Evaluation{}
	}
	success(w, http.StatusOK, "ok", list)
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.evaluations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "ok", e)
}

func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.evaluations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "evaluation deleted", nil)
}

func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	info, err := h.evaluations.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	success(w, http.StatusAccepted, "evaluation started", info)
}

func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	signalled, err := h.evaluations.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "evaluation stopped", map[string]bool{"signalled": signalled})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.evaluations.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "ok", status)
}

// Result serves the result at ?index=N, the latest one without it.
func (h *Handlers) Result(w http.ResponseWriter, r *http.Request) {
	var index *int
	if raw := r.URL.Query().Get("index"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil {
			failure(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		index = &i
	}
	res, err := h.evaluations.Result(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	success(w, http.StatusOK, "ok", res)
}
