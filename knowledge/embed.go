package knowledge

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbeddingUnavailable is returned when the embedding collaborator fails.
// Callers degrade to an empty retrieval rather than failing the turn.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Embedder turns text into a vector. Implementations must be deterministic
// for a given Model().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// EmbeddingCache persists item embeddings across runs, keyed by item id and
// model, valid only for the fingerprint they were computed from.
type EmbeddingCache interface {
	// LoadEmbedding reports false when nothing is stored for the item and
	// model, or when the stored fingerprint differs.
	LoadEmbedding(ctx context.Context, itemID, fingerprint, model string) ([]float32, bool, error)

	// StoreEmbedding replaces the stored vector for the item and model.
	StoreEmbedding(ctx context.Context, itemID, fingerprint, model string, vector []float32) error
}

// AttachStats counts where each item's embedding came from.
type AttachStats struct {
	Kept     int // already attached for the current content
	Cached   int // loaded from the EmbeddingCache
	Embedded int // computed by the Embedder
	Failed   int // left without an embedding
}

// Attach fills in Fingerprint and Embedding for every item in place. An item
// is re-embedded only when its content fingerprint changed; cache is optional.
//
// Per-item failures do not stop the run: failed items keep no embedding and
// are therefore excluded from search. The returned error joins every failure
// and wraps ErrEmbeddingUnavailable when the embedder was the cause. A
// cancelled context stops the run immediately.
func Attach(ctx context.Context, items []Item, embedder Embedder, cache EmbeddingCache) (AttachStats, error) {
	var stats AttachStats
	var errs []error
	model := embedder.Model()

	for i := range items {
		item := &items[i]
		fp := Fingerprint(item.Content)
		if len(item.Embedding) > 0 && item.Fingerprint == fp {
			stats.Kept++
			continue
		}
		item.Fingerprint = fp
		item.Embedding = nil

		if cache != nil {
			vector, ok, err := cache.LoadEmbedding(ctx, item.ID, fp, model)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to load cached embedding for %s: %w", item.ID, err))
			} else if ok && len(vector) > 0 {
				item.Embedding = vector
				stats.Cached++
				continue
			}
		}

		if err := ctx.Err(); err != nil {
			return stats, err
		}
		vector, err := embedder.Embed(ctx, item.Content)
		if err == nil && len(vector) == 0 {
			err = errors.New("empty vector")
		}
		if err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("%w: item %s: %w", ErrEmbeddingUnavailable, item.ID, err))
			continue
		}
		item.Embedding = vector
		stats.Embedded++

		if cache != nil {
			if err := cache.StoreEmbedding(ctx, item.ID, fp, model, vector); err != nil {
				errs = append(errs, fmt.Errorf("failed to cache embedding for %s: %w", item.ID, err))
			}
		}
	}
	return stats, errors.Join(errs...)
}
