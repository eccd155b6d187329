// Package dsa provides data structure implementations for the fragment cache.
package dsa

import (
	"strings"

	"github.com/armon/go-radix"
)

const scopeSep = "/"

// ScopedTrie maps (scope, id) pairs to values in a radix tree keyed by
// "scope/id". Entries of one scope share a subtree, so dropping or counting
// a scope walks only that subtree.
//
// Scopes must not contain the separator "/"; ids may.
//
// ScopedTrie is not safe for concurrent use; callers hold their own lock.
type ScopedTrie[V any] struct {
	tree *radix.Tree
}

// NewScopedTrie creates an empty trie.
func NewScopedTrie[V any]() *ScopedTrie[V] {
	return &ScopedTrie[V]{tree: radix.New()}
}

func scopeKey(scope, id string) string {
	return scope + scopeSep + id
}

// Put stores v under (scope, id), replacing any previous value.
func (t *ScopedTrie[V]) Put(scope, id string, v V) {
	t.tree.Insert(scopeKey(scope, id), v)
}

// Get returns the value stored under (scope, id).
func (t *ScopedTrie[V]) Get(scope, id string) (V, bool) {
	raw, ok := t.tree.Get(scopeKey(scope, id))
	if !ok {
		var zero V
		return zero, false
	}
	v, ok := raw.(V)
	return v, ok
}

// Delete removes (scope, id) and reports whether it was present.
func (t *ScopedTrie[V]) Delete(scope, id string) bool {
	_, ok := t.tree.Delete(scopeKey(scope, id))
	return ok
}

// IDs returns the ids stored in scope, in lexicographic order.
func (t *ScopedTrie[V]) IDs(scope string) []string {
	prefix := scope + scopeSep
	var ids []string
	t.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		ids = append(ids, strings.TrimPrefix(k, prefix))
		return false
	})
	return ids
}

// DropScope removes every entry of scope and returns how many were removed.
func (t *ScopedTrie[V]) DropScope(scope string) int {
	ids := t.IDs(scope)
	for _, id := range ids {
		t.tree.Delete(scopeKey(scope, id))
	}
	return len(ids)
}

// ScopeLen returns the number of entries in scope.
func (t *ScopedTrie[V]) ScopeLen(scope string) int {
	n := 0
	t.tree.WalkPrefix(scope+scopeSep, func(string, interface{}) bool {
		n++
		return false
	})
	return n
}

// Len returns the number of entries across all scopes.
func (t *ScopedTrie[V]) Len() int {
	return t.tree.Len()
}
