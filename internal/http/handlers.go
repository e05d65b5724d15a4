package http

import (
	"context"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Repo.Ping(ctx); err != nil {
		ErrorResponse(http.StatusServiceUnavailable, "database unavailable").Write(w)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"status":            "ready",
		"advisor_connected": s.deps.Advisor != nil && s.deps.Advisor.Connected(),
	}).Write(w)
}
