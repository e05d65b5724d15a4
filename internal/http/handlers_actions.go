package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bills/internal/amqp"
	"bills/internal/core"
)

// handleAction runs one action envelope through the dispatcher. Rejected
// actions, fresh or replayed, answer 400 with the stored error.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	body, err := ReadBody(w, r, maxBodyBytes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Dispatcher.Execute(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadRequest
	}
	NewJSONResponse().Status(status).Raw(res).Write(w)
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.fail(w, r, core.Invalid("id", "is required"))
		return
	}
	rec, err := s.deps.Dispatcher.Lookup(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Data(rec).Write(w)
}

// handleQueueAction publishes an envelope for the action worker and answers
// 202. The outcome is read later through GET /api/actions/{id}.
func (s *Server) handleQueueAction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		ErrorResponse(http.StatusServiceUnavailable, "action queue not configured").Write(w)
		return
	}
	body, err := ReadBody(w, r, maxBodyBytes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := amqp.ParseActionRequest(body)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.deps.Queue.PublishActionRequest(r.Context(), body); err != nil {
		if errors.Is(err, amqp.ErrMalformed) {
			BadRequestError(err.Error()).Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "Failed to queue action",
			"action_id", req.ActionID,
			"error", err)
		ErrorResponse(http.StatusServiceUnavailable, "action queue unavailable").Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusAccepted).Data(map[string]any{
		"action_id": req.ActionID,
		"type":      req.Type,
		"queued":    true,
	}).Write(w)
}
