// Package memory is an in-process vectorstore.Store with brute-force search.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docqa/docqa/pkg/models"
	"github.com/docqa/docqa/pkg/similarity"
)

// Store keeps points in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	dim    int
	order  []string
	points map[string]models.Point
}

// New creates an empty Store.
func New() *Store {
	return &Store{points: make(map[string]models.Point)}
}

// EnsureCollection implements vectorstore.Store.
func (s *Store) EnsureCollection(_ context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 {
		s.dim = dim
	}
	return nil
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(_ context.Context, p models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim > 0 && len(p.Vector) != s.dim {
		return fmt.Errorf("upsert point %s: vector has %d dimensions, want %d", p.ID, len(p.Vector), s.dim)
	}
	if _, ok := s.points[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	p.Vector = append([]float32(nil), p.Vector...)
	p.Score = 0
	s.points[p.ID] = p
	return nil
}

// Search implements vectorstore.Store.
func (s *Store) Search(_ context.Context, vector []float32, topK int) ([]models.Point, error) {
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Point, 0, len(s.order))
	for _, id := range s.order {
		p := s.points[id]
		p.Score = float32(similarity.Cosine(vector, p.Vector))
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Get implements vectorstore.Store.
func (s *Store) Get(_ context.Context, id string) (models.Point, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	return p, ok, nil
}

// Scroll implements vectorstore.Store.
func (s *Store) Scroll(_ context.Context, limit int) ([]models.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Point, 0, n)
	for _, id := range s.order[:n] {
		out = append(out, s.points[id])
	}
	return out, nil
}

// Len returns the number of stored points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
