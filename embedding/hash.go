package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/richinex/contextloom/knowledge"
)

// HashEmbedder maps text to a fixed-size vector by feature hashing its
// lowercased word unigrams and bigrams. It needs no network and is
// deterministic, so it backs offline use and tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hashing embedder producing vectors of the given
// size.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Model identifies the embedding space; vectors of different sizes are not
// comparable.
func (e *HashEmbedder) Model() string {
	return fmt.Sprintf("xxhash-features-%d", e.dimensions)
}

// Embed returns the L2-normalized feature vector for text. Text without any
// word yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float64, e.dimensions)
	words := tokenize(text)
	for i, w := range words {
		e.add(vector, w, 1)
		if i > 0 {
			e.add(vector, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vector {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// add hashes feature into a bucket, with the sign taken from a high bit so
// collisions tend to cancel.
func (e *HashEmbedder) add(vector []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	bucket := h % uint64(e.dimensions)
	if h>>63 == 1 {
		weight = -weight
	}
	vector[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var _ knowledge.Embedder = (*HashEmbedder)(nil)
