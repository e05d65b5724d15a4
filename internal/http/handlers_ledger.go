package http

import (
	"net/http"

	"bills/internal/core"
	"bills/internal/storage"
)

func (s *Server) monthParams(r *http.Request) (MonthParams, *bool, error) {
	query := r.URL.Query()
	params, err := ParseMonthParams(query, s.deps.Ledger.Today())
	if err != nil {
		return MonthParams{}, nil, err
	}
	essentials, err := ParseOptionalBool(query, "essentials_only")
	if err != nil {
		return MonthParams{}, nil, err
	}
	return params, essentials, nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	params, essentials, err := s.monthParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.deps.Ledger.MonthView(r.Context(), params.Year, params.Month, essentials)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Data(map[string]any{
		"year":    view.Year,
		"month":   view.Month,
		"summary": view.Summary,
	}).Write(w)
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	params, essentials, err := s.monthParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.deps.Ledger.MonthView(r.Context(), params.Year, params.Month, essentials)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Data(view).Write(w)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	archived, err := ParseOptionalBool(r.URL.Query(), "include_archived")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	templates, err := s.deps.Ledger.Templates(r.Context(), archived != nil && *archived)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Data(templates).Write(w)
}

func (s *Server) handleInstanceEvents(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := s.deps.Repo.Queries()
	if _, err := q.GetInstance(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := q.ListInstanceEvents(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []core.InstanceEvent{}
	}
	NewJSONResponse().Data(events).Write(w)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r.URL.Query(), defaultActivity, maxActivityLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.deps.Repo.Queries().ListActivity(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []storage.ActivityEntry{}
	}
	NewJSONResponse().Data(entries).Write(w)
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	archived, err := ParseOptionalBool(r.URL.Query(), "include_archived")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	funds, err := s.deps.Funds.FundViews(r.Context(), archived != nil && *archived, core.Date{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if funds == nil {
		funds = []core.SinkingFundView{}
	}
	NewJSONResponse().Data(funds).Write(w)
}

func (s *Server) handleFundEvents(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.deps.Funds.Events(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Data(events).Write(w)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Repo.Queries().ListSettings(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make(map[string]string, len(settings))
	for _, setting := range settings {
		out[setting.Key] = setting.Value
	}
	NewJSONResponse().Data(out).Write(w)
}

func (s *Server) handleMonthSettings(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.deps.Ledger.Today())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ms, err := s.deps.Repo.Queries().GetMonthSettings(r.Context(), params.Year, params.Month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Data(ms).Write(w)
}
