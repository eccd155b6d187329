package knowledge

import (
	"context"
	"errors"
	"fmt"
)

// Retriever embeds a query and searches an index with it. Query embeddings
// are not cached.
type Retriever struct {
	Embedder Embedder
	Index    Searcher
}

// NewRetriever creates a retriever over index.
func NewRetriever(embedder Embedder, index Searcher) *Retriever {
	return &Retriever{Embedder: embedder, Index: index}
}

// Retrieve returns the top k items for query. Any embedding failure is
// returned wrapping ErrEmbeddingUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter Filter) (Result, error) {
	if k <= 0 || r.Index == nil || r.Index.Len() == 0 {
		return Result{}, nil
	}
	if r.Embedder == nil {
		return Result{}, fmt.Errorf("%w: no embedder configured", ErrEmbeddingUnavailable)
	}

	vector, err := r.Embedder.Embed(ctx, query)
	if err == nil && len(vector) == 0 {
		err = errors.New("empty query vector")
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	return r.Index.Search(vector, k, filter), nil
}
