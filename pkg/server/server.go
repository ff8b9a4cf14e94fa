// Package server exposes the answer service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/answer"
	"github.com/docqa/docqa/pkg/budget"
	"github.com/docqa/docqa/pkg/cache"
	"github.com/docqa/docqa/pkg/documents"
	"github.com/docqa/docqa/pkg/metrics"
	"github.com/docqa/docqa/pkg/models"
)

// CacheHeader reports whether an answer came from the cache.
const CacheHeader = "X-Docqa-Cache"

const maxUploadBytes = 10 << 20

// Answerer is the question answering surface.
type Answerer interface {
	Ask(ctx context.Context, docRef, query string) (models.AskResult, error)
	Summarize(ctx context.Context, filename string) (models.SummaryResult, error)
	ExtractFields(ctx context.Context, filename string) (models.FieldsResult, error)
}

// Ingester stores uploaded documents.
type Ingester interface {
	Ingest(ctx context.Context, filename, text string) (models.Document, bool, error)
}

// StatsSource reports cache table counts.
type StatsSource interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Deps are the collaborators of a Server. Metrics, Lookups and Logger are optional.
type Deps struct {
	Answers   Answerer
	Documents Ingester
	Stats     StatsSource
	Lookups   metrics.LookupCounter
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Server is the docqa HTTP API.
type Server struct {
	listen  string
	answers Answerer
	docs    Ingester
	stats   StatsSource
	lookups metrics.LookupCounter
	metrics *metrics.Metrics
	log     *zap.Logger
	mux     *http.ServeMux
}

// New creates a Server listening on listen.
func New(listen string, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{
		listen:  listen,
		answers: d.Answers,
		docs:    d.Documents,
		stats:   d.Stats,
		lookups: d.Lookups,
		metrics: d.Metrics,
		log:     d.Logger,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ask", s.handleAsk)
	s.mux.HandleFunc("GET /summarize", s.handleSummarize)
	s.mux.HandleFunc("GET /extract-fields", s.handleExtractFields)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("docqa listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "docqa document question answering"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askResponse struct {
	DocumentID string         `json:"document_id"`
	Query      string         `json:"query"`
	Response   string         `json:"response"`
	Outcome    models.Outcome `json:"outcome"`
	Score      float64        `json:"score,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	ref := strings.TrimSpace(q.Get("document_id"))
	if ref == "" {
		ref = strings.TrimSpace(q.Get("filename"))
	}
	query := strings.TrimSpace(q.Get("query"))
	if ref == "" || query == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "filename (or document_id) and query are required")
		return
	}

	res, err := s.answers.Ask(r.Context(), ref, query)
	if err != nil {
		s.observe("ask", models.OutcomeError, start)
		s.writeError(w, "ask", err)
		return
	}
	s.observe("ask", res.Outcome, start)
	setCacheHeader(w, res.Outcome)

	if res.Outcome == models.OutcomeNoDocument {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": res.Message})
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		DocumentID: res.DocumentID,
		Query:      res.Query,
		Response:   res.Response,
		Outcome:    res.Outcome,
		Score:      res.Score,
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "filename is required")
		return
	}

	res, err := s.answers.Summarize(r.Context(), filename)
	if err != nil {
		s.observe("summarize", models.OutcomeError, start)
		s.writeError(w, "summarize", err)
		return
	}
	s.observe("summarize", res.Outcome, start)
	setCacheHeader(w, res.Outcome)

	if res.Outcome == models.OutcomeNoDocument {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": res.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"document_id": res.DocumentID,
		"summary":     res.Summary,
		"outcome":     string(res.Outcome),
	})
}

func (s *Server) handleExtractFields(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "filename is required")
		return
	}

	res, err := s.answers.ExtractFields(r.Context(), filename)
	if err != nil {
		s.observe("extract", models.OutcomeError, start)
		s.writeError(w, "extract", err)
		return
	}
	s.observe("extract", res.Outcome, start)

	if res.Outcome == models.OutcomeNoDocument {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": res.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Structured fields extracted successfully.",
		"document_id": res.DocumentID,
		"fields":      res.Fields,
	})
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	doc, created, err := s.docs.Ingest(r.Context(), req.Filename, req.Text)
	if err != nil {
		s.writeError(w, "upload", err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]string{
			"message":     "Document '" + doc.Filename + "' already exists.",
			"filename":    doc.Filename,
			"document_id": doc.ID,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":     "Document uploaded successfully.",
		"filename":    doc.Filename,
		"document_id": doc.ID,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Stats(r.Context())
	if err != nil {
		s.writeError(w, "cache_stats", err)
		return
	}
	if s.lookups != nil {
		st.Hits = s.lookups.Hits()
		st.Misses = s.lookups.Misses()
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) observe(op string, outcome models.Outcome, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRequest(op, string(outcome), time.Since(start))
	}
}

// writeError maps service errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	code, typ, msg := classify(err)
	if code >= 500 {
		s.log.Error("request failed", zap.String("operation", op), zap.Error(err))
	} else {
		s.log.Info("request rejected", zap.String("operation", op), zap.Error(err))
	}
	writeJSONError(w, code, typ, msg)
}

// classify maps err to a status, an error type and a client message. The
// message never includes err itself.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, cache.ErrStoreBusy):
		return http.StatusServiceUnavailable, "store_busy", "cache store is busy, try again"
	case errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests, "budget_exceeded", "token budget exceeded"
	case errors.Is(err, answer.ErrMalformedOutput):
		return http.StatusBadGateway, "malformed_output", "model output could not be parsed"
	case errors.Is(err, answer.ErrGeneration):
		return http.StatusBadGateway, "generation_error", "answer generation failed"
	case errors.Is(err, answer.ErrRetrieval):
		return http.StatusBadGateway, "retrieval_error", "document retrieval failed"
	case errors.Is(err, answer.ErrNotEligible):
		return http.StatusUnprocessableEntity, "not_eligible", "document is not an invoice"
	case errors.Is(err, documents.ErrEmptyDocument):
		return http.StatusBadRequest, "invalid_request", "filename and text are required"
	}
	return http.StatusInternalServerError, "internal_error", "internal error"
}

func setCacheHeader(w http.ResponseWriter, outcome models.Outcome) {
	if outcome == models.OutcomeHit {
		w.Header().Set(CacheHeader, "hit")
		return
	}
	w.Header().Set(CacheHeader, "miss")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, typ, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]string{"type": typ, "message": message},
	})
}
