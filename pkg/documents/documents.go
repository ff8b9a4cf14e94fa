// Package documents resolves filenames to stored documents and ingests new ones.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/embedding"
	"github.com/docqa/docqa/pkg/models"
	"github.com/docqa/docqa/pkg/vectorstore"
)

// DefaultScrollSize bounds how many points a filename lookup scans.
const DefaultScrollSize = 1000

// ErrEmptyDocument is returned when ingesting a document without a name or text.
var ErrEmptyDocument = errors.New("document filename and text are required")

// Service looks documents up in the vector store and adds new ones.
type Service struct {
	store      vectorstore.Store
	embedder   embedding.Embedder
	scrollSize int
	log        *zap.Logger
}

// New creates a Service. scrollSize <= 0 uses DefaultScrollSize.
func New(store vectorstore.Store, embedder embedding.Embedder, scrollSize int, log *zap.Logger) *Service {
	if scrollSize <= 0 {
		scrollSize = DefaultScrollSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, embedder: embedder, scrollSize: scrollSize, log: log}
}

// NormalizeFilename folds case and surrounding whitespace.
func NormalizeFilename(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameFilename reports whether a and b name the same document. A trailing
// ".pdf" is optional on either side.
func SameFilename(a, b string) bool {
	a, b = NormalizeFilename(a), NormalizeFilename(b)
	if a == "" || b == "" {
		return false
	}
	return strings.TrimSuffix(a, ".pdf") == strings.TrimSuffix(b, ".pdf")
}

// FindByFilename returns the first stored document whose filename matches.
func (s *Service) FindByFilename(ctx context.Context, filename string) (models.Point, bool, error) {
	if NormalizeFilename(filename) == "" {
		return models.Point{}, false, nil
	}
	points, err := s.store.Scroll(ctx, s.scrollSize)
	if err != nil {
		return models.Point{}, false, fmt.Errorf("find document %q: %w", filename, err)
	}
	for _, p := range points {
		if SameFilename(p.Payload.Filename, filename) {
			return p, true, nil
		}
	}
	return models.Point{}, false, nil
}

// Resolve treats ref as a document id when one exists and as a filename otherwise.
func (s *Service) Resolve(ctx context.Context, ref string) (models.Point, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Point{}, false, nil
	}
	p, ok, err := s.store.Get(ctx, ref)
	if err != nil {
		return models.Point{}, false, fmt.Errorf("resolve document %q: %w", ref, err)
	}
	if ok {
		return p, true, nil
	}
	return s.FindByFilename(ctx, ref)
}

// Ingest stores a document. When a document with the same filename already
// exists its id is returned and created is false.
func (s *Service) Ingest(ctx context.Context, filename, text string) (doc models.Document, created bool, err error) {
	if NormalizeFilename(filename) == "" || strings.TrimSpace(text) == "" {
		return models.Document{}, false, ErrEmptyDocument
	}

	existing, ok, err := s.FindByFilename(ctx, filename)
	if err != nil {
		return models.Document{}, false, err
	}
	if ok {
		return models.Document{ID: existing.ID, Filename: existing.Payload.Filename}, false, nil
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return models.Document{}, false, fmt.Errorf("embed document: %w", err)
	}

	p := models.Point{
		ID:     uuid.NewString(),
		Vector: vec,
		Payload: models.Payload{
			Text:     text,
			Filename: NormalizeFilename(filename),
		},
	}
	if err := s.store.Upsert(ctx, p); err != nil {
		return models.Document{}, false, fmt.Errorf("store document: %w", err)
	}

	s.log.Info("document ingested",
		zap.String("document_id", p.ID),
		zap.String("filename", p.Payload.Filename),
		zap.Int("chars", len(text)))
	return models.Document{ID: p.ID, Filename: p.Payload.Filename}, true, nil
}

// List returns the stored documents.
func (s *Service) List(ctx context.Context) ([]models.Document, error) {
	points, err := s.store.Scroll(ctx, s.scrollSize)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]models.Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, models.Document{ID: p.ID, Filename: p.Payload.Filename})
	}
	return docs, nil
}
