package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/CZERTAINLY/Evaluator/internal/evaluate"
	"github.com/CZERTAINLY/Evaluator/internal/model"
)

// Response is the envelope of every reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response failed", "error", err)
	}
}

func success(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Code: status, Message: message, Data: data})
}

func failure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Code: status, Message: message})
}

// writeError maps err to a status code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	failure(w, status, err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidType),
		errors.Is(err, evaluate.ErrIncomplete),
		errors.Is(err, evaluate.ErrInputMissing):
		return http.StatusBadRequest
	case errors.Is(err, evaluate.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrExists),
		errors.Is(err, model.ErrNotRunning),
		errors.Is(err, evaluate.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
