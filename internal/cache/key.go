package cache

import (
	"maps"
	"slices"
	"strings"
)

// Key identifies a cached query. Keys are hierarchical: a key is a prefix of
// every key that extends it, and invalidation works on prefixes.
type Key []string

const keySep = "\x1f"

// NewKey builds a key from segments.
func NewKey(segments ...string) Key {
	return Key(segments)
}

// With returns a new key extended by segments. The receiver is not modified.
func (k Key) With(segments ...string) Key {
	out := make(Key, 0, len(k)+len(segments))
	out = append(out, k...)
	return append(out, segments...)
}

// HasPrefix reports whether prefix is k or an ancestor of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return slices.Equal(k[:len(prefix)], prefix)
}

// String renders the key for logs.
func (k Key) String() string {
	return "[" + strings.Join(k, " ") + "]"
}

func (k Key) id() string {
	return strings.Join(k, keySep)
}

// Filters renders a filter set as one canonical key segment (sorted k=v
// pairs joined by '&'). Empty values are dropped so that an unset filter and
// a missing filter produce the same key.
func Filters(filters map[string]string) string {
	keys := slices.Sorted(maps.Keys(filters))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := filters[k]; v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "&")
}
