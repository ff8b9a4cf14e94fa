// Package answer coordinates cache lookup, retrieval and generation for
// document questions, summaries and field extraction.
package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/cache"
	"github.com/docqa/docqa/pkg/embedding"
	"github.com/docqa/docqa/pkg/generation"
	"github.com/docqa/docqa/pkg/models"
)

var (
	// ErrGeneration wraps failures of the generation provider.
	ErrGeneration = errors.New("answer generation failed")
	// ErrMalformedOutput means the provider answered but not with a JSON object.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrNotEligible means the document does not look like an invoice.
	ErrNotEligible = errors.New("document does not appear to be an invoice")
	// ErrRetrieval wraps embedding and vector search failures.
	ErrRetrieval = errors.New("document retrieval failed")

	errEmptyCompletion = errors.New("empty completion")
)

// NotInvoiceSummary is returned instead of a summary for non-invoice documents.
const NotInvoiceSummary = "The uploaded document does not appear to be an invoice."

// Messages for the no-document outcome.
const (
	MsgNoDocument        = "No relevant invoices found."
	MsgNoSummaryDocument = "No relevant document found for summarization."
	MsgNoExtractDocument = "No document found with that filename."
)

// DefaultTopK is how many documents are retrieved for a question.
const DefaultTopK = 3

// Resolver finds stored documents.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (models.Point, bool, error)
	FindByFilename(ctx context.Context, filename string) (models.Point, bool, error)
}

// Searcher is the retrieval side of a vector store.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]models.Point, error)
}

// Generators holds one generator per operation. Summarize and Extract fall
// back to Ask when nil.
type Generators struct {
	Ask       generation.Generator
	Summarize generation.Generator
	Extract   generation.Generator
}

// Deps are the collaborators of a Service.
type Deps struct {
	Documents  Resolver
	Cache      cache.Store
	Matcher    cache.Matcher
	Embedder   embedding.Embedder
	Vectors    Searcher
	Generators Generators
	TopK       int
	Logger     *zap.Logger
}

// Service answers questions about documents.
type Service struct {
	docs     Resolver
	store    cache.Store
	matcher  cache.Matcher
	embedder embedding.Embedder
	vectors  Searcher
	gen      Generators
	topK     int
	log      *zap.Logger
}

// New creates a Service.
func New(d Deps) *Service {
	if d.TopK <= 0 {
		d.TopK = DefaultTopK
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Generators.Summarize == nil {
		d.Generators.Summarize = d.Generators.Ask
	}
	if d.Generators.Extract == nil {
		d.Generators.Extract = d.Generators.Ask
	}
	return &Service{
		docs:     d.Documents,
		store:    d.Cache,
		matcher:  d.Matcher,
		embedder: d.Embedder,
		vectors:  d.Vectors,
		gen:      d.Generators,
		topK:     d.TopK,
		log:      d.Logger,
	}
}

// Ask answers query about the document named by docRef, a document id or a
// filename. Cached answers are reused when a similar question was asked
// before; otherwise the answer is generated and cached.
func (s *Service) Ask(ctx context.Context, docRef, query string) (models.AskResult, error) {
	res := models.AskResult{Query: query}

	doc, ok, err := s.docs.Resolve(ctx, docRef)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if !ok {
		res.Outcome = models.OutcomeNoDocument
		res.Message = MsgNoDocument
		return res, nil
	}
	res.DocumentID = doc.ID

	m, hit, err := s.matcher.Lookup(ctx, doc.ID, query)
	if err != nil {
		return res, fmt.Errorf("cache lookup: %w", err)
	}
	res.Query = m.Query
	if hit {
		res.Outcome = models.OutcomeHit
		res.Response = m.Entry.Response
		res.Score = m.Score
		return res, nil
	}

	points, err := s.retrieve(ctx, doc, m.Query)
	if err != nil {
		return res, err
	}
	if len(points) == 0 {
		res.Outcome = models.OutcomeNoDocument
		res.Message = MsgNoDocument
		return res, nil
	}

	answer, err := s.gen.Ask.Complete(ctx, buildAskPrompt(m.Query, points))
	if err != nil {
		s.log.Warn("generation failed", zap.String("document_id", doc.ID), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(answer) == "" {
		s.log.Warn("blank answer from provider", zap.String("document_id", doc.ID))
		return res, fmt.Errorf("%w: %w", ErrGeneration, errEmptyCompletion)
	}

	// The caller may be gone by now; the answer is still worth keeping.
	storeCtx := context.WithoutCancel(ctx)
	if err := s.store.AppendEntry(storeCtx, doc.ID, m.Query, answer); err != nil {
		s.log.Error("cache append failed",
			zap.String("document_id", doc.ID),
			zap.String("query", m.Query),
			zap.Error(err))
	}

	s.log.Info("answer generated",
		zap.String("document_id", doc.ID),
		zap.String("query", m.Query),
		zap.Int("context_docs", len(points)))

	res.Outcome = models.OutcomeFresh
	res.Response = answer
	res.Score = m.Score
	return res, nil
}

// retrieve returns the top-k documents for query with doc guaranteed first.
func (s *Service) retrieve(ctx context.Context, doc models.Point, query string) ([]models.Point, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}
	found, err := s.vectors.Search(ctx, vec, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if len(found) == 0 {
		return nil, nil
	}

	points := make([]models.Point, 0, s.topK)
	points = append(points, doc)
	for _, p := range found {
		if len(points) == s.topK {
			break
		}
		if p.ID != doc.ID {
			points = append(points, p)
		}
	}
	return points, nil
}

// Summarize returns the cached summary of an invoice or generates one.
func (s *Service) Summarize(ctx context.Context, filename string) (models.SummaryResult, error) {
	var res models.SummaryResult

	doc, ok, err := s.docs.FindByFilename(ctx, filename)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if !ok {
		res.Outcome = models.OutcomeNoDocument
		res.Message = MsgNoSummaryDocument
		return res, nil
	}
	res.DocumentID = doc.ID

	if !isInvoice(doc.Payload.Text) {
		res.Outcome = models.OutcomeFresh
		res.Summary = NotInvoiceSummary
		return res, nil
	}

	cached, found, err := s.store.GetSummary(ctx, doc.ID)
	if err != nil {
		return res, fmt.Errorf("summary lookup: %w", err)
	}
	if found {
		res.Outcome = models.OutcomeHit
		res.Summary = cached
		return res, nil
	}

	out, err := s.gen.Summarize.Complete(ctx, buildSummaryPrompt(doc.Payload.Text))
	if err != nil {
		s.log.Warn("summary generation failed", zap.String("document_id", doc.ID), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	summary := strings.TrimSpace(out)
	if summary == "" {
		s.log.Warn("blank summary from provider", zap.String("document_id", doc.ID))
		return res, fmt.Errorf("%w: %w", ErrGeneration, errEmptyCompletion)
	}

	if err := s.store.UpsertSummary(context.WithoutCancel(ctx), doc.ID, summary); err != nil {
		s.log.Error("summary upsert failed", zap.String("document_id", doc.ID), zap.Error(err))
	}

	res.Outcome = models.OutcomeFresh
	res.Summary = summary
	return res, nil
}

// ExtractFields asks the provider for the structured invoice fields of a
// document. Results are not cached.
func (s *Service) ExtractFields(ctx context.Context, filename string) (models.FieldsResult, error) {
	var res models.FieldsResult

	doc, ok, err := s.docs.FindByFilename(ctx, filename)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if !ok {
		res.Outcome = models.OutcomeNoDocument
		res.Message = MsgNoExtractDocument
		return res, nil
	}
	res.DocumentID = doc.ID

	if !isInvoice(doc.Payload.Text) {
		return res, ErrNotEligible
	}

	raw, err := s.gen.Extract.Complete(ctx, buildExtractPrompt(doc.Payload.Text))
	if err != nil {
		s.log.Warn("field extraction failed", zap.String("document_id", doc.ID), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	fields, err := ParseFields(raw)
	if err != nil {
		s.log.Warn("unparseable extraction output",
			zap.String("document_id", doc.ID),
			zap.String("raw", raw),
			zap.Error(err))
		return res, err
	}
	fields["Filename"] = filename

	res.Outcome = models.OutcomeFresh
	res.Fields = fields
	return res, nil
}

// ParseFields decodes a JSON object from model output, tolerating a
// surrounding Markdown code fence with an optional json tag.
func ParseFields(raw string) (map[string]any, error) {
	text := StripCodeFence(raw)
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedOutput)
	}
	return fields, nil
}

// StripCodeFence removes a Markdown code fence and its json language tag.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimSpace(strings.Trim(text, "`"))
	if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
		text = strings.TrimSpace(text[4:])
	}
	return text
}

func isInvoice(text string) bool {
	return strings.Contains(strings.ToLower(text), "invoice")
}
