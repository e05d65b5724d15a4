package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"bills/internal/storage"
)

// handleExport sends the backup document as a download, without the envelope,
// so it can be posted back to the import route unchanged.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	backup, err := s.deps.Repo.Export(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := fmt.Sprintf("bills-backup-%s.json", s.deps.Ledger.Today())
	NewJSONResponse().
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name)).
		Raw(backup).
		Write(w)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var backup storage.Backup
	if err := DecodeJSON(w, r, maxBackupBytes, &backup); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.deps.Repo.Import(r.Context(), backup)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Backup imported",
		"inserted", report.Inserted,
		"updated", report.Updated,
		"skipped", report.Skipped)
	NewJSONResponse().Data(report).Write(w)
}
