package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const resultDateLayout = "2006-01-02"

func handleListResults(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Results == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "result archive is not enabled", false, nil)
		return
	}

	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse(resultDateLayout, raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATE", "date must use YYYY-MM-DD", false, map[string]any{"date": raw})
			return
		}
		day = parsed
	}

	entries, err := deps.Results.List(r.Context(), day)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "list archived results failed", slog.Any("error", err))
		}
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_UNAVAILABLE", "failed to list archived results", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":    day.Format(resultDateLayout),
		"results": entries,
	})
}
