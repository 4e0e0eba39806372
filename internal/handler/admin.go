package handler

import (
	"log/slog"
	"net/http"
	"time"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/model"
)

// handleExport returns every saved session with its profile alias, in the
// same shape as the export command.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ExportAllSessions()
	if err != nil {
		slog.Error("failed to export sessions", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}
	slog.Info("exported sessions via admin", "count", len(results))

	w.Header().Set("Content-Disposition", `attachment; filename="sessions.json"`)
	writeJSON(w, http.StatusOK, model.SessionExport{
		ExportedAt:    time.Now().UTC(),
		TotalSessions: len(results),
		Results:       results,
	})
}
