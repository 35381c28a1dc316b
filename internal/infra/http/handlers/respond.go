package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/xavierca1/leadsync/internal/usecase"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Code: code, Message: message})
}

// writeError maps usecase error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := usecase.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case usecase.CodeInvalidInput:
		status = http.StatusBadRequest
	case usecase.CodeLeadNotFound:
		status = http.StatusNotFound
	case usecase.CodeLeadProtected, usecase.CodeManualOverride:
		status = http.StatusConflict
	case usecase.CodeSendFailed:
		status = http.StatusBadGateway
	case usecase.CodeStoreFailure:
		status = http.StatusServiceUnavailable
	}
	writeMessage(w, status, code, err.Error())
}

// queryLimit reads ?limit=, clamped to [1, max].
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
