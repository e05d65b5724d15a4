package http

import (
	"net/http"

	"bills/internal/advisor"
)

// handleAdvisorQuery answers 200 with the advisor's own {ok} body; only an
// unreadable request is a 400.
func (s *Server) handleAdvisorQuery(w http.ResponseWriter, r *http.Request) {
	var q advisor.Query
	if err := DecodeJSON(w, r, maxBodyBytes, &q); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.Advisor == nil {
		NewJSONResponse().Raw(advisor.Response{Error: advisor.ErrNotConfigured.Error()}).Write(w)
		return
	}
	NewJSONResponse().Raw(s.deps.Advisor.Query(r.Context(), q)).Write(w)
}
