package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// statusFor maps the domain error taxonomy onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, indexing.ErrValidation), errors.Is(err, indexing.ErrAlreadyRunning):
		return http.StatusBadRequest
	case errors.Is(err, indexing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, indexing.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server-side failures are logged and
// answered with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		s.logger.Warn("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Retry-After", "30")
		writeError(w, status, indexing.ErrQueueFull.Error())
		return
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}
