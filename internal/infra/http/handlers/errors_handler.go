package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/usecase"
)

type ErrorsHandler struct {
	Errors entity.SystemErrorStore
}

func NewErrorsHandler(store entity.SystemErrorStore) *ErrorsHandler {
	return &ErrorsHandler{Errors: store}
}

func (h *ErrorsHandler) ListUnresolved(w http.ResponseWriter, r *http.Request) {
	list, err := h.Errors.ListUnresolved(r.Context(), queryLimit(r, 50, 500))
	if err != nil {
		writeMessage(w, http.StatusServiceUnavailable, usecase.CodeStoreFailure, "could not read the error log")
		return
	}
	if list == nil {
		list = []*entity.SystemError{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ErrorsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.Errors.Resolve(r.Context(), id)
	switch {
	case errors.Is(err, entity.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "ERROR_NOT_FOUND", "no unresolved error with id "+id)
	case err != nil:
		writeMessage(w, http.StatusServiceUnavailable, usecase.CodeStoreFailure, "could not resolve error")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
