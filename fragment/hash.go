package fragment

import (
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Hash content-addresses the exact inputs that determine a fragment.
type Hash uint64

// String returns the fixed-width hex form used in cache keys.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// HashKeys hashes the set of keys for a fragment kind. The result does not
// depend on key order or duplicates, and two kinds never share a hash for the
// same keys.
//
// Keys should carry everything that changes the rendered payload, usually an
// identifier plus a revision ("http-request@3").
func HashKeys(kind string, keys ...string) Hash {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	d := xxhash.New()
	_, _ = d.WriteString(kind)
	_, _ = d.Write([]byte{0})
	for _, k := range sorted {
		_, _ = d.WriteString(k)
		_, _ = d.Write([]byte{0})
	}
	return Hash(d.Sum64())
}
