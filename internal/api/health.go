package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz fails while the database is unreachable.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pingDB(r.Context()) == "disconnected" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// health is the dashboard's connectivity check.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	db := s.pingDB(r.Context())
	status := "ok"
	if db == "disconnected" {
		status = "degraded"
	}
	snap := s.indexer.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"database": db,
		"runner": map[string]any{
			"isRunning": snap.IsRunning,
			"jobId":     snap.JobID,
		},
		"timestamp": s.clock.Now().UTC(),
	})
}

func (s *Server) pingDB(ctx context.Context) string {
	if s.db == nil {
		return "memory"
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("database ping failed", zap.Error(err))
		return "disconnected"
	}
	return "connected"
}
