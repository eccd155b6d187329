// Package fragment memoizes expensive-to-build prompt fragments (catalog
// renderings, workspace snapshots) by a content hash of their inputs.
//
// Information Hiding:
// - Entries live in a radix tree keyed "scope/hash" so a scope drops in one walk
// - Per-scope generation counters keep builds that race an invalidation out of the cache
// - Builders run outside the lock; lookups never block on a build
package fragment

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/richinex/contextloom/internal/dsa"
)

// Well-known scopes. Callers may use any other string without a '/'.
const (
	ScopeCatalog   = "catalog"
	ScopeWorkspace = "workspace"
)

// ErrBuildFailed wraps errors returned by a builder. Failed builds are never
// cached.
var ErrBuildFailed = errors.New("fragment build failed")

// Builder produces a fragment payload.
type Builder func() (string, error)

// Config configures a Cache.
type Config struct {
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits          int64
	Misses        int64
	Builds        int64
	Failures      int64
	Discarded     int64 // builds finished after their scope was invalidated
	Invalidations int64
	Entries       int
}

type entry struct {
	payload      string
	producedFrom Hash
}

// Cache is a content-addressed fragment cache. It is safe for concurrent use.
type Cache struct {
	logger *slog.Logger

	mu          sync.Mutex
	entries     *dsa.ScopedTrie[entry]
	generations map[string]uint64
	stats       Stats
}

// NewCache creates an empty cache.
func NewCache(config Config) *Cache {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger:      logger,
		entries:     dsa.NewScopedTrie[entry](),
		generations: make(map[string]uint64),
	}
}

// GetOrBuild returns the payload cached for inputsHash in scope, or runs build
// and caches its result. The boolean reports a cache hit.
//
// The hit check compares the stored entry's producedFrom hash with inputsHash
// under the lock, so a caller observes either a complete earlier value or
// rebuilds. A build that completes after Invalidate(scope) is returned to its
// caller but not stored.
//
// A scope holds one entry: storing a payload for a new hash replaces the
// scope's previous entry.
func (c *Cache) GetOrBuild(scope string, inputsHash Hash, build Builder) (string, bool, error) {
	id := inputsHash.String()

	c.mu.Lock()
	if e, ok := c.entries.Get(scope, id); ok && e.producedFrom == inputsHash {
		c.stats.Hits++
		c.mu.Unlock()
		return e.payload, true, nil
	}
	c.stats.Misses++
	generation := c.generations[scope]
	c.mu.Unlock()

	payload, err := build()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stats.Failures++
		c.logger.Error("fragment build failed",
			"scope", scope, "hash", inputsHash.String(), "error", err)
		return "", false, fmt.Errorf("%w: %s/%s: %w", ErrBuildFailed, scope, inputsHash, err)
	}
	c.stats.Builds++

	if c.generations[scope] != generation {
		c.stats.Discarded++
		c.logger.Debug("fragment discarded after invalidation",
			"scope", scope, "hash", inputsHash.String())
		return payload, false, nil
	}
	c.entries.DropScope(scope)
	c.entries.Put(scope, id, entry{payload: payload, producedFrom: inputsHash})
	return payload, false, nil
}

// Invalidate drops every entry in scope. The next GetOrBuild for that scope
// is a guaranteed miss.
func (c *Cache) Invalidate(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.entries.DropScope(scope)
	c.generations[scope]++
	c.stats.Invalidations++
	c.logger.Debug("fragment scope invalidated", "scope", scope, "removed", removed)
}

// Len returns the number of cached entries in scope.
func (c *Cache) Len(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.ScopeLen(scope)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.entries.Len()
	return s
}
