// Package embedding defines the text embedding collaborator.
package embedding

import "context"

// Embedder converts text into a fixed-length vector. Identical input must
// produce identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
