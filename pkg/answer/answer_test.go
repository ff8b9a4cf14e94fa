package answer

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/docqa/docqa/pkg/cache"
	cachesqlite "github.com/docqa/docqa/pkg/cache/sqlite"
	"github.com/docqa/docqa/pkg/canonical"
	"github.com/docqa/docqa/pkg/config"
	"github.com/docqa/docqa/pkg/documents"
	"github.com/docqa/docqa/pkg/embedding"
	"github.com/docqa/docqa/pkg/models"
	"github.com/docqa/docqa/pkg/similarity"
	"github.com/docqa/docqa/pkg/textnorm"
	"github.com/docqa/docqa/pkg/vectorstore/memory"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 32)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%32]++
	}
	return v, nil
}

func (hashEmbedder) Dimension() int { return 32 }

// synonymEmbedder folds synonyms onto one token before hashing, so
// paraphrases embed to the same vector.
type synonymEmbedder struct {
	synonyms map[string]string
}

func (e synonymEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	fields := strings.Fields(strings.ToLower(text))
	for i, tok := range fields {
		if s, ok := e.synonyms[tok]; ok {
			fields[i] = s
		}
	}
	return hashEmbedder{}.Embed(ctx, strings.Join(fields, " "))
}

func (synonymEmbedder) Dimension() int { return 32 }

type fakeGenerator struct {
	mu      sync.Mutex
	out     string
	err     error
	prompts []string
	hook    func()
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.out, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type failingAppendStore struct {
	cache.Store
}

func (failingAppendStore) AppendEntry(context.Context, string, string, string) error {
	return cache.ErrStoreBusy
}

type fixture struct {
	svc   *Service
	store *cachesqlite.Store
	docs  *documents.Service
	gen   *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, wrap func(cache.Store) cache.Store) *fixture {
	t.Helper()
	return newFixtureWith(t, wrap, hashEmbedder{}, config.DefaultCanonicalQueries)
}

func newFixtureWith(t *testing.T, wrap func(cache.Store) cache.Store, emb embedding.Embedder, canon []string) *fixture {
	t.Helper()
	store, err := cachesqlite.New(filepath.Join(t.TempDir(), "answer_test.db"), cachesqlite.Options{MaxRetries: 3})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var cs cache.Store = store
	if wrap != nil {
		cs = wrap(store)
	}

	vectors := memory.New()
	docs := documents.New(vectors, emb, 0, nil)
	scorer := similarity.New(emb, textnorm.NewWithLemmatizer(nil), similarity.Weights{Lexical: 0.7, Semantic: 0.3})
	matcher := cache.NewLookup(cs, canonical.New(canon), scorer, cache.DefaultThreshold, nil)
	gen := &fakeGenerator{out: "$500"}

	svc := New(Deps{
		Documents:  docs,
		Cache:      cs,
		Matcher:    matcher,
		Embedder:   emb,
		Vectors:    vectors,
		Generators: Generators{Ask: gen},
	})
	return &fixture{svc: svc, store: store, docs: docs, gen: gen}
}

func (f *fixture) ingest(t *testing.T, filename, text string) models.Document {
	t.Helper()
	doc, _, err := f.docs.Ingest(context.Background(), filename, text)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

const invoiceText = "INVOICE #42 from Acme Corp to Globex. Total amount: $500. Due date: March 1."

func TestAskCachesFreshAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "acme.pdf", invoiceText)

	first, err := f.svc.Ask(ctx, "acme.pdf", "What is the total amount?")
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcome != models.OutcomeFresh || first.Response != "$500" {
		t.Errorf("unexpected first result %+v", first)
	}
	if first.DocumentID != doc.ID {
		t.Errorf("expected document %s, got %s", doc.ID, first.DocumentID)
	}
	if !strings.Contains(f.gen.prompts[0], invoiceText) {
		t.Error("prompt should contain the document text")
	}

	second, err := f.svc.Ask(ctx, doc.ID, "What is the total amount?")
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != models.OutcomeHit || second.Response != "$500" {
		t.Errorf("expected cache hit, got %+v", second)
	}
	if f.gen.calls() != 1 {
		t.Errorf("expected a single generation, got %d", f.gen.calls())
	}

	n, _ := f.store.Count(ctx, doc.ID)
	if n != 1 {
		t.Errorf("expected 1 cache entry, got %d", n)
	}
}

func TestAskParaphraseHitsCanonicalEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "acme.pdf", invoiceText)

	if _, err := f.svc.Ask(ctx, "acme", "What is the total amount?"); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.Ask(ctx, "ACME.PDF", "what is the total amount")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeHit {
		t.Errorf("expected paraphrase to hit, got %+v", res)
	}
	if res.Query != "What is the total amount?" {
		t.Errorf("expected canonical query, got %q", res.Query)
	}
}

func TestAskDoesNotShareAcrossDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "acme.pdf", invoiceText)
	f.ingest(t, "globex.pdf", "Invoice #7 from Globex. Total amount: $90.")

	if _, err := f.svc.Ask(ctx, "acme.pdf", "What is the total amount?"); err != nil {
		t.Fatal(err)
	}
	f.gen.out = "$90"
	res, err := f.svc.Ask(ctx, "globex.pdf", "What is the total amount?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeFresh || res.Response != "$90" {
		t.Errorf("expected fresh answer for other document, got %+v", res)
	}
}

func TestAskNoDocument(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Ask(context.Background(), "missing.pdf", "What is the due date?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeNoDocument || res.Message != MsgNoDocument {
		t.Errorf("unexpected result %+v", res)
	}
	if f.gen.calls() != 0 {
		t.Error("generator must not be called without a document")
	}
	st, _ := f.store.Stats(context.Background())
	if st.Entries != 0 {
		t.Errorf("nothing should be cached, got %d entries", st.Entries)
	}
}

func TestAskGenerationFailureNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "acme.pdf", invoiceText)
	f.gen.err = errors.New("upstream down")

	_, err := f.svc.Ask(ctx, "acme.pdf", "What is the due date?")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	n, _ := f.store.Count(ctx, doc.ID)
	if n != 0 {
		t.Errorf("failed generation must not be cached, got %d entries", n)
	}
}

func TestAskStoresAfterCancellation(t *testing.T) {
	f := newFixture(t)
	doc := f.ingest(t, "acme.pdf", invoiceText)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gen.hook = cancel

	res, err := f.svc.Ask(ctx, "acme.pdf", "What is the due date?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeFresh {
		t.Errorf("expected fresh answer, got %+v", res)
	}
	n, _ := f.store.Count(context.Background(), doc.ID)
	if n != 1 {
		t.Errorf("generated answer should be stored despite cancellation, got %d entries", n)
	}
}

func TestAskStoreFailureStillAnswers(t *testing.T) {
	f := newFixtureWithStore(t, func(s cache.Store) cache.Store { return failingAppendStore{s} })
	f.ingest(t, "acme.pdf", invoiceText)

	res, err := f.svc.Ask(context.Background(), "acme.pdf", "What is the due date?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeFresh || res.Response != "$500" {
		t.Errorf("expected fresh answer despite store failure, got %+v", res)
	}
}

func TestAskBlankAnswerNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "acme.pdf", invoiceText)

	for _, out := range []string{"", "   ", "\n\t "} {
		f.gen.out = out
		_, err := f.svc.Ask(ctx, "acme.pdf", "What is the due date?")
		if !errors.Is(err, ErrGeneration) {
			t.Fatalf("blank answer %q: expected ErrGeneration, got %v", out, err)
		}
	}
	if n, _ := f.store.Count(ctx, doc.ID); n != 0 {
		t.Fatalf("blank answers must not be cached, got %d entries", n)
	}

	f.gen.out = "March 1"
	res, err := f.svc.Ask(ctx, "acme.pdf", "What is the due date?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeFresh || res.Response != "March 1" {
		t.Errorf("expected a fresh answer after blank ones, got %+v", res)
	}
}

func TestAskPaymentDueHitsDueDateEntry(t *testing.T) {
	emb := synonymEmbedder{synonyms: map[string]string{"payment": "date"}}
	f := newFixtureWith(t, nil, emb, []string{"What is the due date?"})
	ctx := context.Background()
	doc := f.ingest(t, "acme.pdf", invoiceText)
	f.gen.out = "March 1"

	first, err := f.svc.Ask(ctx, "acme.pdf", "What is the due date?")
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcome != models.OutcomeFresh {
		t.Fatalf("expected fresh answer, got %+v", first)
	}

	f.gen.out = "should not be generated"
	second, err := f.svc.Ask(ctx, "acme.pdf", "when is payment due?")
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != models.OutcomeHit || second.Response != "March 1" {
		t.Errorf("expected hit on the due date entry, got %+v", second)
	}
	if second.Score < cache.DefaultThreshold {
		t.Errorf("hit scored %.3f below threshold", second.Score)
	}
	if f.gen.calls() != 1 {
		t.Errorf("expected one generation, got %d", f.gen.calls())
	}
	if n, _ := f.store.Count(ctx, doc.ID); n != 1 {
		t.Errorf("hit must not add entries, got %d", n)
	}
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "acme.pdf", invoiceText)
	f.gen.out = "  Invoice 42 from Acme to Globex for $500.  "

	first, err := f.svc.Summarize(ctx, "Acme")
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcome != models.OutcomeFresh || first.Summary != "Invoice 42 from Acme to Globex for $500." {
		t.Errorf("unexpected first summary %+v", first)
	}

	second, err := f.svc.Summarize(ctx, "acme.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != models.OutcomeHit || second.Summary != first.Summary {
		t.Errorf("expected cached summary, got %+v", second)
	}
	if f.gen.calls() != 1 {
		t.Errorf("expected one generation, got %d", f.gen.calls())
	}
	if second.DocumentID != doc.ID {
		t.Errorf("unexpected document id %s", second.DocumentID)
	}
}

func TestSummarizeBlankNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "acme.pdf", invoiceText)
	f.gen.out = " \n "

	_, err := f.svc.Summarize(ctx, "acme.pdf")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if _, ok, _ := f.store.GetSummary(ctx, doc.ID); ok {
		t.Fatal("blank summary must not be stored")
	}

	f.gen.out = "Invoice 42 for $500."
	res, err := f.svc.Summarize(ctx, "acme.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeFresh || res.Summary != "Invoice 42 for $500." {
		t.Errorf("expected a fresh summary, got %+v", res)
	}
}

func TestSummarizeNotInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.ingest(t, "notes.pdf", "Meeting notes about the roadmap.")

	res, err := f.svc.Summarize(ctx, "notes.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary != NotInvoiceSummary {
		t.Errorf("unexpected summary %q", res.Summary)
	}
	if f.gen.calls() != 0 {
		t.Error("non-invoices must not reach the generator")
	}
	if _, ok, _ := f.store.GetSummary(ctx, doc.ID); ok {
		t.Error("non-invoice summary must not be cached")
	}
}

func TestSummarizeNoDocument(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Summarize(context.Background(), "missing.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != models.OutcomeNoDocument || res.Message != MsgNoSummaryDocument {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestExtractFields(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "acme.pdf", invoiceText)
	f.gen.out = "```json\n{\"Invoice Number\": \"42\", \"Amount\": \"$500\"}\n```"

	res, err := f.svc.ExtractFields(context.Background(), "acme.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields["Invoice Number"] != "42" || res.Fields["Amount"] != "$500" {
		t.Errorf("unexpected fields %+v", res.Fields)
	}
	if res.Fields["Filename"] != "acme.pdf" {
		t.Errorf("expected Filename field, got %v", res.Fields["Filename"])
	}
}

func TestExtractFieldsErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "acme.pdf", invoiceText)
	f.ingest(t, "notes.pdf", "Meeting notes.")

	f.gen.out = "Sure! The invoice number is 42."
	_, err := f.svc.ExtractFields(ctx, "acme.pdf")
	if !errors.Is(err, ErrMalformedOutput) || errors.Is(err, ErrGeneration) {
		t.Errorf("expected ErrMalformedOutput only, got %v", err)
	}

	f.gen.err = errors.New("timeout")
	_, err = f.svc.ExtractFields(ctx, "acme.pdf")
	if !errors.Is(err, ErrGeneration) || errors.Is(err, ErrMalformedOutput) {
		t.Errorf("expected ErrGeneration only, got %v", err)
	}

	if _, err := f.svc.ExtractFields(ctx, "notes.pdf"); !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible, got %v", err)
	}

	res, err := f.svc.ExtractFields(ctx, "missing.pdf")
	if err != nil || res.Outcome != models.OutcomeNoDocument {
		t.Errorf("expected no document outcome, got %+v err=%v", res, err)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON {\"a\":1}```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFieldsRejectsNonObjects(t *testing.T) {
	for _, in := range []string{"null", "[1,2]", "", "not json"} {
		if _, err := ParseFields(in); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("ParseFields(%q): expected ErrMalformedOutput, got %v", in, err)
		}
	}
}
