package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docqa/docqa/pkg/answer"
	"github.com/docqa/docqa/pkg/budget"
	"github.com/docqa/docqa/pkg/cache"
	"github.com/docqa/docqa/pkg/documents"
	"github.com/docqa/docqa/pkg/metrics"
	"github.com/docqa/docqa/pkg/models"
)

type fakeAnswers struct {
	ask      models.AskResult
	summary  models.SummaryResult
	fields   models.FieldsResult
	err      error
	gotRef   string
	gotQuery string
}

func (f *fakeAnswers) Ask(_ context.Context, ref, query string) (models.AskResult, error) {
	f.gotRef, f.gotQuery = ref, query
	return f.ask, f.err
}

func (f *fakeAnswers) Summarize(_ context.Context, filename string) (models.SummaryResult, error) {
	f.gotRef = filename
	return f.summary, f.err
}

func (f *fakeAnswers) ExtractFields(_ context.Context, filename string) (models.FieldsResult, error) {
	f.gotRef = filename
	return f.fields, f.err
}

type fakeDocs struct {
	existing map[string]string
}

func (f *fakeDocs) Ingest(_ context.Context, filename, text string) (models.Document, bool, error) {
	if filename == "" || text == "" {
		return models.Document{}, false, documents.ErrEmptyDocument
	}
	if id, ok := f.existing[filename]; ok {
		return models.Document{ID: id, Filename: filename}, false, nil
	}
	return models.Document{ID: "new-id", Filename: filename}, true, nil
}

type fakeStats struct{}

func (fakeStats) Stats(context.Context) (models.CacheStats, error) {
	return models.CacheStats{Entries: 4, Documents: 2, Summaries: 1}, nil
}

type fixedLookups struct{}

func (fixedLookups) Hits() int64   { return 3 }
func (fixedLookups) Misses() int64 { return 1 }

func setupServer(t *testing.T, a *fakeAnswers) *Server {
	t.Helper()
	return New(":0", Deps{
		Answers:   a,
		Documents: &fakeDocs{existing: map[string]string{"acme.pdf": "acme-id"}},
		Stats:     fakeStats{},
		Lookups:   fixedLookups{},
		Metrics:   metrics.New(),
	})
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestAskHitAndMissHeaders(t *testing.T) {
	a := &fakeAnswers{ask: models.AskResult{DocumentID: "d1", Query: "q", Response: "$500", Outcome: models.OutcomeHit}}
	s := setupServer(t, a)

	w := do(s, http.MethodGet, "/ask?filename=acme.pdf&query=What+is+the+total", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(CacheHeader) != "hit" {
		t.Errorf("expected hit header, got %q", w.Header().Get(CacheHeader))
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["response"] != "$500" {
		t.Errorf("unexpected body %v", body)
	}
	if a.gotRef != "acme.pdf" || a.gotQuery != "What is the total" {
		t.Errorf("unexpected arguments %q %q", a.gotRef, a.gotQuery)
	}

	a.ask.Outcome = models.OutcomeFresh
	w = do(s, http.MethodGet, "/ask?document_id=d1&filename=ignored&query=x", "")
	if w.Header().Get(CacheHeader) != "miss" {
		t.Errorf("expected miss header, got %q", w.Header().Get(CacheHeader))
	}
	if a.gotRef != "d1" {
		t.Errorf("document_id should take precedence, got %q", a.gotRef)
	}
}

func TestAskValidation(t *testing.T) {
	s := setupServer(t, &fakeAnswers{})
	w := do(s, http.MethodGet, "/ask?filename=acme.pdf", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	w = do(s, http.MethodPost, "/ask?filename=a&query=b", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestNoDocumentIs404(t *testing.T) {
	a := &fakeAnswers{
		ask:     models.AskResult{Outcome: models.OutcomeNoDocument, Message: answer.MsgNoDocument},
		summary: models.SummaryResult{Outcome: models.OutcomeNoDocument, Message: answer.MsgNoSummaryDocument},
		fields:  models.FieldsResult{Outcome: models.OutcomeNoDocument, Message: answer.MsgNoExtractDocument},
	}
	s := setupServer(t, a)
	for _, target := range []string{"/ask?filename=x&query=y", "/summarize?filename=x", "/extract-fields?filename=x"} {
		w := do(s, http.MethodGet, target, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["message"] == "" {
			t.Errorf("%s: expected message body, got %s", target, w.Body.String())
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
		typ  string
	}{
		{fmt.Errorf("cache append: %w", cache.ErrStoreBusy), http.StatusServiceUnavailable, "store_busy"},
		{fmt.Errorf("%w: boom", answer.ErrGeneration), http.StatusBadGateway, "generation_error"},
		{fmt.Errorf("%w: bad json", answer.ErrMalformedOutput), http.StatusBadGateway, "malformed_output"},
		{fmt.Errorf("%w: %w", answer.ErrGeneration, budget.ErrBudgetExceeded), http.StatusTooManyRequests, "budget_exceeded"},
		{fmt.Errorf("%w: dial tcp 10.0.0.7:6334: connection refused", answer.ErrRetrieval), http.StatusBadGateway, "retrieval_error"},
		{answer.ErrNotEligible, http.StatusUnprocessableEntity, "not_eligible"},
		{errors.New("open /var/lib/docqa/cache.db: permission denied"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		s := setupServer(t, &fakeAnswers{err: tt.err})
		w := do(s, http.MethodGet, "/extract-fields?filename=acme.pdf", "")
		if w.Code != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, w.Code)
		}
		var body struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error.Type != tt.typ {
			t.Errorf("%v: expected type %s, got %s", tt.err, tt.typ, body.Error.Type)
		}
		if body.Error.Message == "" || body.Error.Message == tt.err.Error() {
			t.Errorf("%v: expected a fixed message, got %q", tt.err, body.Error.Message)
		}
		for _, detail := range []string{"boom", "bad json", "10.0.0.7", "/var/lib"} {
			if strings.Contains(body.Error.Message, detail) {
				t.Errorf("%v: message leaks %q: %q", tt.err, detail, body.Error.Message)
			}
		}
	}
}

func TestSummarizeAndExtract(t *testing.T) {
	a := &fakeAnswers{
		summary: models.SummaryResult{DocumentID: "d1", Summary: "An invoice.", Outcome: models.OutcomeHit},
		fields:  models.FieldsResult{DocumentID: "d1", Fields: map[string]any{"Amount": "$500"}, Outcome: models.OutcomeFresh},
	}
	s := setupServer(t, a)

	w := do(s, http.MethodGet, "/summarize?filename=acme.pdf", "")
	if w.Code != http.StatusOK || w.Header().Get(CacheHeader) != "hit" {
		t.Errorf("unexpected summarize response %d %q", w.Code, w.Header().Get(CacheHeader))
	}
	if !strings.Contains(w.Body.String(), "An invoice.") {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	w = do(s, http.MethodGet, "/extract-fields?filename=acme.pdf", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Fields["Amount"] != "$500" {
		t.Errorf("unexpected fields %v", body.Fields)
	}
}

func TestUpload(t *testing.T) {
	s := setupServer(t, &fakeAnswers{})

	w := do(s, http.MethodPost, "/upload", `{"filename":"new.pdf","text":"Invoice 1"}`)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), "new-id") {
		t.Errorf("unexpected upload response %d %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodPost, "/upload", `{"filename":"acme.pdf","text":"Invoice 2"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "acme-id") {
		t.Errorf("duplicate should return existing id, got %d %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodPost, "/upload", `{"filename":"","text":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty document, got %d", w.Code)
	}

	w = do(s, http.MethodPost, "/upload", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", w.Code)
	}
}

func TestCacheStatsAndMetrics(t *testing.T) {
	a := &fakeAnswers{ask: models.AskResult{Outcome: models.OutcomeFresh}}
	s := setupServer(t, a)
	do(s, http.MethodGet, "/ask?filename=a&query=b", "")

	w := do(s, http.MethodGet, "/cache/stats", "")
	var st models.CacheStats
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Entries != 4 || st.Hits != 3 || st.Misses != 1 {
		t.Errorf("unexpected stats %+v", st)
	}

	w = do(s, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), `docqa_requests_total{operation="ask",outcome="fresh"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", w.Body.String())
	}

	w = do(s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected healthz 200, got %d", w.Code)
	}
}
