package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/pipeline"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	pipeline.Response
	DurationMs int64  `json:"duration_ms"`
	TraceID    string `json:"trace_id"`
}

// Answers are always 200: generation and store failures travel inside the
// display as data.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	writeAnswer(w, r, deps.Asker.Ask(r.Context(), request.Question))
}

func handleAskAudio(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes(deps)))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "AUDIO_TOO_LARGE", "audio payload exceeds limit", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_AUDIO", "failed to read audio payload", false, map[string]any{"details": err.Error()})
		return
	}
	if len(audio) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "AUDIO_REQUIRED", "audio payload is required", false, nil)
		return
	}

	writeAnswer(w, r, deps.Asker.AskAudio(r.Context(), audio))
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dialect": deps.Dialect,
		"tables":  deps.Schema.Tables(),
		"ddl":     deps.Schema.Text(),
	})
}

func writeAnswer(w http.ResponseWriter, r *http.Request, response pipeline.Response) {
	writeJSON(w, http.StatusOK, askResponse{
		Response:   response,
		DurationMs: response.Duration.Milliseconds(),
		TraceID:    observability.TraceIDFromContext(r.Context()),
	})
}
