package ingress

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oklog/ulid/v2"

	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/logger"
)

const traceHeader = "X-Trace-ID"

func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(traceHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set(traceHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Category: copyErrors.Category(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, copyErrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, copyErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, copyErrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, copyErrors.ErrClosed):
		return http.StatusGone
	case errors.Is(err, copyErrors.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, copyErrors.ErrTransient), errors.Is(err, copyErrors.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return copyErrors.InvalidInput("missing request body")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return copyErrors.InvalidInput("invalid request body: " + err.Error())
	}
	return nil
}
