package api

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/askql/askql/internal/api/uistatic"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/present"
)

type PageData struct {
	Question        string
	SQL             string
	GenerationError string
	Display         *present.Display
	Error           string
}

// Page renders the HTML form used by the browser routes.
type Page struct {
	tmpl   *template.Template
	logger *slog.Logger
}

func NewPage(logger *slog.Logger) (*Page, error) {
	tmpl, err := uistatic.Template()
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Page{tmpl: tmpl, logger: logger}, nil
}

func (p *Page) Render(w http.ResponseWriter, r *http.Request, data PageData) {
	p.RenderStatus(w, r, http.StatusOK, data)
}

func (p *Page) RenderStatus(w http.ResponseWriter, r *http.Request, status int, data PageData) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(r.Context(), "render page failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.Any("error", err),
			)
		}
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func pageFromResponse(response pipeline.Response) PageData {
	display := response.Display
	return PageData{
		Question:        response.Question,
		SQL:             response.SQL,
		GenerationError: response.GenerationError,
		Display:         &display,
	}
}

func handleProcessQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		deps.UI.RenderStatus(w, r, http.StatusNotImplemented, PageData{Error: "question pipeline is not configured"})
		return
	}
	if err := r.ParseForm(); err != nil {
		deps.UI.RenderStatus(w, r, http.StatusBadRequest, PageData{Error: "invalid form submission"})
		return
	}
	if _, ok := r.PostForm["query"]; !ok {
		deps.UI.RenderStatus(w, r, http.StatusBadRequest, PageData{Error: "field query is required"})
		return
	}

	response := deps.Asker.Ask(r.Context(), r.PostForm.Get("query"))
	deps.UI.Render(w, r, pageFromResponse(response))
}

func handleProcessAudio(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		deps.UI.RenderStatus(w, r, http.StatusNotImplemented, PageData{Error: "question pipeline is not configured"})
		return
	}

	limit := maxAudioBytes(deps)
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			deps.UI.RenderStatus(w, r, http.StatusRequestEntityTooLarge, PageData{Error: "audio upload is too large"})
			return
		}
		deps.UI.RenderStatus(w, r, http.StatusBadRequest, PageData{Error: "invalid audio upload"})
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		deps.UI.RenderStatus(w, r, http.StatusBadRequest, PageData{Error: "field audio is required"})
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		deps.UI.RenderStatus(w, r, http.StatusBadRequest, PageData{Error: "failed to read audio upload"})
		return
	}

	response := deps.Asker.AskAudio(r.Context(), audio)
	deps.UI.Render(w, r, pageFromResponse(response))
}
