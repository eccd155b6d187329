// Package history owns per-conversation message sequences.
//
// Information Hiding:
// - Per-key locking and the serialized persistence writer are hidden
// - Summary folding rules are encapsulated in Fold
// - Persistence medium is hidden behind the Storage interface
package history

import (
	"fmt"
	"net/url"
	"strings"
)

// Key partitions all conversation state. Changing any component selects a
// different history.
type Key struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	CredentialID string `json:"credential_id"`
}

// String returns the stable serialized form "provider:model:credential".
// Components are query-escaped so a ':' inside a component cannot collide
// with the separator.
func (k Key) String() string {
	return url.QueryEscape(k.Provider) + ":" + url.QueryEscape(k.Model) + ":" + url.QueryEscape(k.CredentialID)
}

// ParseKey parses the output of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("invalid history key %q: expected 3 components", s)
	}
	var unescaped [3]string
	for i, p := range parts {
		v, err := url.QueryUnescape(p)
		if err != nil {
			return Key{}, fmt.Errorf("invalid history key %q: %w", s, err)
		}
		unescaped[i] = v
	}
	return Key{Provider: unescaped[0], Model: unescaped[1], CredentialID: unescaped[2]}, nil
}
