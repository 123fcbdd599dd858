package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/present"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/schema"
)

type fakeAsker struct {
	mu        sync.Mutex
	questions []string
	audio     [][]byte
	response  pipeline.Response
}

func (f *fakeAsker) Ask(_ context.Context, question string) pipeline.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	response := f.response
	response.Question = question
	return response
}

func (f *fakeAsker) AskAudio(_ context.Context, audio []byte) pipeline.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio)
	response := f.response
	response.Question = "transcribed question"
	return response
}

func tableAnswer() pipeline.Response {
	return pipeline.Response{
		SQL: "SELECT first_name FROM customers",
		Display: present.Present(query.Success(query.Result{
			Columns: []string{"first_name"},
			Rows:    [][]any{{"John"}, {"Jane"}},
		})),
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := loadConfig(t, nil)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace id header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg := loadConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestAskReturnsAnswerEnvelope(t *testing.T) {
	asker := &fakeAsker{response: tableAnswer()}
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: asker})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"Show me all customers"}`))
	req.Header.Set("X-Trace-ID", "trace-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Question string          `json:"question"`
		SQL      string          `json:"sql"`
		Display  present.Display `json:"display"`
		TraceID  string          `json:"trace_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.Question != "Show me all customers" || body.SQL != "SELECT first_name FROM customers" {
		t.Fatalf("body = %+v", body)
	}
	if body.Display.State != present.StateTable || len(body.Display.Rows) != 2 {
		t.Fatalf("display = %+v", body.Display)
	}
	if body.TraceID != "trace-123" {
		t.Fatalf("trace_id = %q", body.TraceID)
	}
}

func TestAskErrorDisplayIsStill200(t *testing.T) {
	asker := &fakeAsker{response: pipeline.Response{SQL: "SELECT * FROM nope", Display: present.Error("Error: no such table: nope")}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: asker})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"nope"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	display := decodeBody(t, rr)["display"].(map[string]any)
	if display["state"] != "error" || display["message"] != "Error: no such table: nope" {
		t.Fatalf("display = %v", display)
	}
}

func TestAskAcceptsEmptyQuestion(t *testing.T) {
	asker := &fakeAsker{response: tableAnswer()}
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: asker, UI: newTestPage(t)})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":""}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("/v1/ask status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if _, ok := decodeBody(t, rr)["display"].(map[string]any); !ok {
		t.Fatalf("body = %s", rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/process-query", strings.NewReader("query="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("/process-query status = %d", rr.Code)
	}
	if len(asker.questions) != 2 || asker.questions[0] != "" || asker.questions[1] != "" {
		t.Fatalf("questions = %q", asker.questions)
	}
}

func TestAskRejectsInvalidJSON(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: &fakeAsker{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"prompt":"x"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if decodeBody(t, rr)["error_code"] != "INVALID_JSON" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestAskNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskAudioForwardsBody(t *testing.T) {
	asker := &fakeAsker{response: tableAnswer()}
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: asker})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask/audio", bytes.NewReader([]byte("RIFFdata"))))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(asker.audio) != 1 || string(asker.audio[0]) != "RIFFdata" {
		t.Fatalf("audio = %q", asker.audio)
	}
	if decodeBody(t, rr)["question"] != "transcribed question" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestAskAudioRejectsEmptyAndOversizedBodies(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: &fakeAsker{}, MaxAudioBytes: 4})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask/audio", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask/audio", strings.NewReader("too large")))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized status = %d", rr.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Schema: schema.Default(), Dialect: "sqlite"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	tables := body["tables"].([]any)
	if len(tables) != 3 {
		t.Fatalf("tables = %v", tables)
	}
	if !strings.Contains(body["ddl"].(string), "CREATE TABLE customers") {
		t.Fatalf("ddl = %v", body["ddl"])
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKQL_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:query_reader,k2:bob:viewer")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Asker:          &fakeAsker{response: tableAnswer()},
		Schema:         schema.Default(),
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	forbiddenReq := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`))
	forbiddenReq.Header.Set("X-API-Key", "k2")
	forbiddenResp := httptest.NewRecorder()
	h.ServeHTTP(forbiddenResp, forbiddenReq)
	if forbiddenResp.Code != http.StatusForbidden {
		t.Fatalf("forbidden status = %d", forbiddenResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`))
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}

	health := httptest.NewRecorder()
	h.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("health status = %d", health.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKQL_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Asker: &fakeAsker{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestIndexPageRendersForm(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{UI: newTestPage(t)})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `action="/process-query"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "<h2>Results</h2>") {
		t.Fatal("index page should not render results")
	}
}

func TestProcessQueryRendersResults(t *testing.T) {
	asker := &fakeAsker{response: tableAnswer()}
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: asker, UI: newTestPage(t)})

	form := url.Values{"query": {"<b>all customers</b>"}}
	req := httptest.NewRequest(http.MethodPost, "/process-query", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"SELECT first_name FROM customers", "<td>John</td>", "<th>first_name</th>", "&lt;b&gt;all customers&lt;/b&gt;"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if len(asker.questions) != 1 || asker.questions[0] != "<b>all customers</b>" {
		t.Fatalf("questions = %q", asker.questions)
	}
}

func TestProcessQueryRendersEmptyAndErrorStates(t *testing.T) {
	cases := map[string]pipeline.Response{
		"✅ " + present.NoResultsMessage: {Display: present.Present(query.Success(query.Result{Columns: []string{"id"}}))},
		"❌ Error: boom":                 {Display: present.Error("Error: boom")},
	}
	for want, response := range cases {
		h := NewHandler(loadConfig(t, nil), Dependencies{Asker: &fakeAsker{response: response}, UI: newTestPage(t)})
		req := httptest.NewRequest(http.MethodPost, "/process-query", strings.NewReader("query=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if !strings.Contains(rr.Body.String(), want) {
			t.Fatalf("body missing %q:\n%s", want, rr.Body.String())
		}
	}
}

func TestProcessQueryRequiresField(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: &fakeAsker{}, UI: newTestPage(t)})
	req := httptest.NewRequest(http.MethodPost, "/process-query", strings.NewReader("other=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProcessAudioUsesUploadedFile(t *testing.T) {
	asker := &fakeAsker{response: tableAnswer()}
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: asker, UI: newTestPage(t)})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", "question.wav")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = part.Write([]byte("RIFFwave"))
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/process-audio", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(asker.audio) != 1 || string(asker.audio[0]) != "RIFFwave" {
		t.Fatalf("audio = %q", asker.audio)
	}
	if !strings.Contains(rr.Body.String(), "transcribed question") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestFormRoutesDisabledWithoutUI(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Asker: &fakeAsker{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func newTestPage(t *testing.T) *Page {
	t.Helper()
	page, err := NewPage(nil)
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	return page
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("askql-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
