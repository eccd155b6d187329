package fragment

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestHashKeysOrderIndependent(t *testing.T) {
	a := HashKeys("catalog", "http@1", "timer@2", "slack@1")
	b := HashKeys("catalog", "slack@1", "http@1", "timer@2", "http@1")
	if a != b {
		t.Errorf("expected equal hashes, got %s and %s", a, b)
	}
	if HashKeys("workspace", "http@1", "timer@2", "slack@1") == a {
		t.Error("different kinds must not share a hash")
	}
	if HashKeys("catalog", "http@1", "timer@3", "slack@1") == a {
		t.Error("a revision change must change the hash")
	}
	// Keys are delimited, not concatenated.
	if HashKeys("k", "ab", "c") == HashKeys("k", "a", "bc") {
		t.Error("key boundaries must affect the hash")
	}
	if len(a.String()) != 16 {
		t.Errorf("expected 16 hex chars, got %q", a.String())
	}
}

func TestGetOrBuildBuildsOnce(t *testing.T) {
	cache := NewCache(Config{})
	h := HashKeys("catalog", "a", "b")
	calls := 0
	build := func() (string, error) {
		calls++
		return "payload", nil
	}

	for i := 0; i < 3; i++ {
		got, _, err := cache.GetOrBuild(ScopeCatalog, h, build)
		if err != nil {
			t.Fatalf("GetOrBuild failed: %v", err)
		}
		if got != "payload" {
			t.Errorf("unexpected payload %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected builder to run once, ran %d times", calls)
	}

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Builds != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	cache := NewCache(Config{})
	h := HashKeys("catalog", "a")
	calls := 0
	build := func() (string, error) {
		calls++
		return fmt.Sprintf("v%d", calls), nil
	}

	if _, hit, _ := cache.GetOrBuild(ScopeCatalog, h, build); hit {
		t.Error("first call must be a miss")
	}
	cache.Invalidate(ScopeCatalog)
	got, hit, err := cache.GetOrBuild(ScopeCatalog, h, build)
	if err != nil {
		t.Fatalf("GetOrBuild failed: %v", err)
	}
	if hit || got != "v2" || calls != 2 {
		t.Errorf("expected rebuild after invalidation, got %q hit=%v calls=%d", got, hit, calls)
	}
}

func TestInvalidateIsScoped(t *testing.T) {
	cache := NewCache(Config{})
	h := HashKeys("x", "a")
	build := func() (string, error) { return "p", nil }

	cache.GetOrBuild(ScopeCatalog, h, build)
	cache.GetOrBuild(ScopeWorkspace, h, build)
	cache.Invalidate(ScopeCatalog)

	if cache.Len(ScopeCatalog) != 0 {
		t.Error("catalog scope should be empty")
	}
	if _, hit, _ := cache.GetOrBuild(ScopeWorkspace, h, build); !hit {
		t.Error("workspace entry should survive catalog invalidation")
	}
}

func TestNewHashReplacesScopeEntry(t *testing.T) {
	cache := NewCache(Config{})
	build := func(v string) Builder {
		return func() (string, error) { return v, nil }
	}
	h1 := HashKeys("catalog", "http@1")
	h2 := HashKeys("catalog", "http@2")

	cache.GetOrBuild(ScopeCatalog, h1, build("v1"))
	cache.GetOrBuild(ScopeCatalog, h2, build("v2"))
	cache.GetOrBuild(ScopeWorkspace, h1, build("w1"))

	if n := cache.Len(ScopeCatalog); n != 1 {
		t.Errorf("expected one catalog entry after a hash change, got %d", n)
	}
	if n := cache.Stats().Entries; n != 2 {
		t.Errorf("expected one entry per scope, got %d", n)
	}
	got, hit, err := cache.GetOrBuild(ScopeCatalog, h1, build("v1-rebuilt"))
	if err != nil {
		t.Fatalf("GetOrBuild failed: %v", err)
	}
	if hit || got != "v1-rebuilt" {
		t.Errorf("replaced hash should rebuild, got %q hit=%v", got, hit)
	}
	if _, hit, _ := cache.GetOrBuild(ScopeWorkspace, h1, build("w2")); !hit {
		t.Error("workspace entry should survive catalog replacement")
	}
}

func TestCatalogChangeScenario(t *testing.T) {
	cache := NewCache(Config{})
	entries := []string{"http@1", "timer@1"}
	render := func() (string, error) {
		return fmt.Sprintf("%d entries: %v", len(entries), entries), nil
	}

	h1 := HashKeys("catalog", entries...)
	first, _, err := cache.GetOrBuild(ScopeCatalog, h1, render)
	if err != nil {
		t.Fatalf("GetOrBuild failed: %v", err)
	}

	// An entry is added and the catalog-changed event fires.
	entries = append(entries, "slack@1")
	cache.Invalidate(ScopeCatalog)

	h2 := HashKeys("catalog", entries...)
	if h1 == h2 {
		t.Fatal("adding an entry must change the hash")
	}
	second, hit, err := cache.GetOrBuild(ScopeCatalog, h2, render)
	if err != nil {
		t.Fatalf("GetOrBuild failed: %v", err)
	}
	if hit {
		t.Error("expected a rebuild")
	}
	if second == first {
		t.Error("rebuilt payload should differ from the prior value")
	}
}

func TestBuildFailureNotCached(t *testing.T) {
	cache := NewCache(Config{})
	h := HashKeys("catalog", "a")
	boom := errors.New("catalog source offline")

	_, _, err := cache.GetOrBuild(ScopeCatalog, h, func() (string, error) { return "partial", boom })
	if !errors.Is(err, ErrBuildFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped build failure, got %v", err)
	}

	calls := 0
	got, hit, err := cache.GetOrBuild(ScopeCatalog, h, func() (string, error) {
		calls++
		return "full", nil
	})
	if err != nil || hit || calls != 1 || got != "full" {
		t.Errorf("expected fresh build after failure, got %q hit=%v calls=%d err=%v", got, hit, calls, err)
	}
}

func TestBuildRacingInvalidationIsNotStored(t *testing.T) {
	cache := NewCache(Config{})
	h := HashKeys("workspace", "a")

	got, _, err := cache.GetOrBuild(ScopeWorkspace, h, func() (string, error) {
		// The workspace changes while the snapshot is being rendered.
		cache.Invalidate(ScopeWorkspace)
		return "stale", nil
	})
	if err != nil {
		t.Fatalf("GetOrBuild failed: %v", err)
	}
	if got != "stale" {
		t.Errorf("in-flight caller should still receive its build, got %q", got)
	}
	if cache.Len(ScopeWorkspace) != 0 {
		t.Error("a build racing an invalidation must not be cached")
	}
	if cache.Stats().Discarded != 1 {
		t.Errorf("expected 1 discarded build, got %+v", cache.Stats())
	}
}

func TestGetOrBuildConcurrent(t *testing.T) {
	cache := NewCache(Config{})
	h := HashKeys("catalog", "a")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				cache.Invalidate(ScopeCatalog)
				return
			}
			got, _, err := cache.GetOrBuild(ScopeCatalog, h, func() (string, error) { return "p", nil })
			if err != nil || got != "p" {
				t.Errorf("unexpected result %q err=%v", got, err)
			}
		}(i)
	}
	wg.Wait()
}
