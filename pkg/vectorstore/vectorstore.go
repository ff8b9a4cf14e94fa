// Package vectorstore defines the document vector index used for retrieval
// and filename lookup.
package vectorstore

import (
	"context"

	"github.com/docqa/docqa/pkg/models"
)

// Payload keys stored alongside every point.
const (
	PayloadText     = "text"
	PayloadFilename = "filename"
)

// Store holds one point per ingested document.
type Store interface {
	// EnsureCollection creates the backing collection if it does not exist.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert inserts or replaces a point by id.
	Upsert(ctx context.Context, p models.Point) error
	// Search returns up to topK points ordered by descending similarity.
	Search(ctx context.Context, vector []float32, topK int) ([]models.Point, error)
	// Get returns the point with the given id.
	Get(ctx context.Context, id string) (models.Point, bool, error)
	// Scroll returns up to limit points in storage order.
	Scroll(ctx context.Context, limit int) ([]models.Point, error)
}
