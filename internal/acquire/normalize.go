// Package acquire drives bibliography acquisition for a batch of identifiers:
// fetching metadata and complete reference lists, caching them, and merging
// the lists into one aggregate index, sequentially or with parallel workers.
package acquire

import "strings"

// Normalize trims identifiers, drops blanks and repeats (keeping the first
// occurrence), and builds the ignore set. Identifiers keep their case: the
// provider lookup is case-insensitive but the cache key is not.
func Normalize(ids, ignore []string) ([]string, map[string]bool) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	ignored := make(map[string]bool, len(ignore))
	for _, id := range ignore {
		if id = strings.TrimSpace(id); id != "" {
			ignored[id] = true
		}
	}
	return out, ignored
}
