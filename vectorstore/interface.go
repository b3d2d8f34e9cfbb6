package vectorstore

import (
	"context"

	"github.com/poiesic/ragpilot/core"
)

// Index is a technology-agnostic interface for a vector document index.
// Implementations delegate embedding computation and similarity search to
// external services; this system only writes chunks and reads ranked results.
type Index interface {
	// Add writes documents (chunk text plus optional source metadata) into
	// the index, computing one embedding per chunk.
	Add(ctx context.Context, docs []core.Document) error

	// Search returns the k documents most similar to the query, ranked by
	// descending similarity score.
	Search(ctx context.Context, query string, k int) ([]core.Document, error)
}
