// Package knowledge indexes curated knowledge-base items with embedding
// vectors and retrieves the most relevant ones for a query.
//
// Information Hiding:
// - Similarity math and tie-breaking hidden behind the Searcher interface
// - Embedding reuse decided by content fingerprint, not by caller bookkeeping
// - Query embedding delegated to an Embedder; failures surface as ErrEmbeddingUnavailable
package knowledge

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"
)

// Kind classifies a knowledge item.
type Kind string

const (
	KindNodeType Kind = "nodeType"
	KindPattern  Kind = "pattern"
	KindExample  Kind = "example"
	KindGuide    Kind = "guide"
)

// Kinds lists every valid kind.
var Kinds = []Kind{KindNodeType, KindPattern, KindExample, KindGuide}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown knowledge kind: %q", s)
}

// Item is one curated knowledge-base entry. Embedding is attached by the
// indexing step and reused until Content changes.
type Item struct {
	ID          string    `json:"id" yaml:"id"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	Content     string    `json:"content" yaml:"content"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Embedding   []float32 `json:"-" yaml:"-"`
	Fingerprint string    `json:"-" yaml:"-"`
}

// HasTag reports whether the item carries tag.
func (i Item) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// normalizeTags sorts and de-duplicates tags so they behave as a set.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}

// Fingerprint returns the content fingerprint used to decide whether a stored
// embedding is still valid for an item.
func Fingerprint(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Filter restricts a search. Empty fields match everything; Tags match if the
// item has any of them.
type Filter struct {
	Kinds []Kind
	Tags  []string
}

// Matches reports whether item passes the filter.
func (f Filter) Matches(item Item) bool {
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, item.Kind) {
		return false
	}
	if len(f.Tags) == 0 {
		return true
	}
	for _, tag := range f.Tags {
		if item.HasTag(tag) {
			return true
		}
	}
	return false
}
