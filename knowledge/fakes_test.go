package knowledge

import (
	"context"
	"strings"
	"sync"
)

// keywordEmbedder counts vocabulary words, one dimension per word.
type keywordEmbedder struct {
	vocab []string
	fail  error

	mu    sync.Mutex
	calls int
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (e *keywordEmbedder) Model() string { return "keyword-test" }

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	vector := make([]float32, len(e.vocab))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,?!\"'")
		for i, v := range e.vocab {
			if word == v {
				vector[i]++
			}
		}
	}
	return vector, nil
}

func (e *keywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type cacheKey struct{ id, model string }

type cachedVector struct {
	fingerprint string
	vector      []float32
}

type mapCache struct {
	entries map[cacheKey]cachedVector
	stores  int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[cacheKey]cachedVector)}
}

func (c *mapCache) LoadEmbedding(ctx context.Context, itemID, fingerprint, model string) ([]float32, bool, error) {
	v, ok := c.entries[cacheKey{itemID, model}]
	if !ok || v.fingerprint != fingerprint {
		return nil, false, nil
	}
	return v.vector, true, nil
}

func (c *mapCache) StoreEmbedding(ctx context.Context, itemID, fingerprint, model string, vector []float32) error {
	c.stores++
	c.entries[cacheKey{itemID, model}] = cachedVector{fingerprint: fingerprint, vector: vector}
	return nil
}
