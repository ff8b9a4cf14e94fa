// Package similarity scores how alike two questions are by blending
// lexical edit-distance similarity with embedding cosine similarity.
package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/docqa/docqa/pkg/embedding"
	"github.com/docqa/docqa/pkg/fuzzy"
)

// Default blend weights.
const (
	DefaultLexicalWeight  = 0.7
	DefaultSemanticWeight = 0.3
)

// Normalizer canonicalizes text before it is embedded.
type Normalizer interface {
	Normalize(raw string) string
}

// Weights controls the lexical/semantic blend. They are normalized to sum to 1.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// Scorer computes hybrid query similarity in [0, 1].
type Scorer struct {
	embedder   embedding.Embedder
	normalizer Normalizer
	lexical    float64
	semantic   float64
}

// New creates a Scorer. Zero weights fall back to the defaults.
func New(e embedding.Embedder, n Normalizer, w Weights) *Scorer {
	if w.Lexical < 0 || w.Semantic < 0 || w.Lexical+w.Semantic == 0 {
		w = Weights{Lexical: DefaultLexicalWeight, Semantic: DefaultSemanticWeight}
	}
	sum := w.Lexical + w.Semantic
	return &Scorer{
		embedder:   e,
		normalizer: n,
		lexical:    w.Lexical / sum,
		semantic:   w.Semantic / sum,
	}
}

// Query is a question prepared for repeated scoring: its normalized form
// and embedding are computed once.
type Query struct {
	Text       string
	Normalized string
	Vector     []float32
}

// Score returns the similarity of a and b. It only fails when the embedder does.
func (s *Scorer) Score(ctx context.Context, a, b string) (float64, error) {
	q, err := s.Prepare(ctx, a)
	if err != nil {
		return 0, err
	}
	return s.ScoreQuery(ctx, q, b)
}

// Prepare normalizes and embeds text.
func (s *Scorer) Prepare(ctx context.Context, text string) (Query, error) {
	q := Query{Text: text, Normalized: s.normalizer.Normalize(text)}
	if q.Normalized == "" {
		return q, nil
	}
	v, err := s.embedder.Embed(ctx, q.Normalized)
	if err != nil {
		return Query{}, fmt.Errorf("embed query: %w", err)
	}
	q.Vector = v
	return q, nil
}

// ScoreQuery scores a prepared query against b. Texts that normalize to the
// same string are semantically identical and b is not embedded. Text that
// normalizes to nothing has a zero embedding.
func (s *Scorer) ScoreQuery(ctx context.Context, q Query, b string) (float64, error) {
	lexical := Lexical(q.Text, b)
	nb := s.normalizer.Normalize(b)
	switch {
	case nb == q.Normalized:
		return s.Blend(lexical, 1), nil
	case nb == "" || q.Normalized == "":
		return s.Blend(lexical, 0), nil
	}
	vb, err := s.embedder.Embed(ctx, nb)
	if err != nil {
		return 0, fmt.Errorf("embed cached query: %w", err)
	}
	return s.Blend(lexical, Cosine(q.Vector, vb)), nil
}

// Blend combines a lexical and a semantic similarity using the configured weights.
func (s *Scorer) Blend(lexical, semantic float64) float64 {
	return clamp01(s.lexical*clamp01(lexical) + s.semantic*clamp01(semantic))
}

// Lexical is the case-insensitive edit-distance ratio of a and b in [0, 1].
func Lexical(a, b string) float64 {
	return fuzzy.Ratio(strings.ToLower(a), strings.ToLower(b)) / 100
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero norm have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(c) {
		return 0
	}
	return c
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
