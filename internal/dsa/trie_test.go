package dsa

import (
	"slices"
	"testing"
)

func TestScopedTriePutGet(t *testing.T) {
	trie := NewScopedTrie[string]()
	trie.Put("catalog", "aa", "one")
	trie.Put("catalog", "aa", "two")
	trie.Put("workspace", "aa", "three")

	if trie.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", trie.Len())
	}
	if v, ok := trie.Get("catalog", "aa"); !ok || v != "two" {
		t.Errorf("expected replaced value 'two', got %q (found=%v)", v, ok)
	}
	if v, _ := trie.Get("workspace", "aa"); v != "three" {
		t.Errorf("same id in another scope should be independent, got %q", v)
	}
	if _, ok := trie.Get("catalog", "zz"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestScopedTrieDropScope(t *testing.T) {
	trie := NewScopedTrie[int]()
	trie.Put("catalog", "1", 1)
	trie.Put("catalog", "2", 2)
	trie.Put("catalogue", "3", 3)
	trie.Put("workspace", "4", 4)

	if n := trie.DropScope("catalog"); n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if trie.Len() != 2 {
		t.Errorf("expected 2 entries left, got %d", trie.Len())
	}
	if trie.ScopeLen("catalogue") != 1 {
		t.Error("dropping a scope removed entries of a scope sharing its prefix")
	}
	if !trie.Delete("workspace", "4") || trie.Delete("workspace", "4") {
		t.Error("Delete should report presence exactly once")
	}
}

func TestScopedTrieIDsOrdered(t *testing.T) {
	trie := NewScopedTrie[bool]()
	for _, id := range []string{"c", "a", "b/x"} {
		trie.Put("s", id, true)
	}
	trie.Put("t", "a", true)

	if got, want := trie.IDs("s"), []string{"a", "b/x", "c"}; !slices.Equal(got, want) {
		t.Errorf("IDs = %v, want %v", got, want)
	}
	if ids := trie.IDs("none"); len(ids) != 0 {
		t.Errorf("expected no ids for an empty scope, got %v", ids)
	}
}
