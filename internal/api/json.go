package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/bonsai/internal/apperr"
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/semtree"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, semtree.ErrRootNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, graph.ErrDuplicateIdentity),
		errors.Is(err, graph.ErrNotAZombie),
		errors.Is(err, semtree.ErrRebuildInProgress):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, graph.ErrInvalidFilename):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, semtree.ErrCircularInclusion),
		errors.Is(err, semtree.ErrMalformedOutline),
		errors.Is(err, semtree.ErrUnreachableSubroot),
		errors.Is(err, semtree.ErrNotBuilt):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
