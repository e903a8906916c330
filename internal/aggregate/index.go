// Package aggregate merges the reference lists of a batch of papers into one
// index keyed by the cited work's provider-native id.
package aggregate

import (
	"maps"
	"slices"
	"sort"

	"github.com/matsen/citegraph/internal/reference"
)

// Occurrence records where a cited work appears: the index of the citing
// input paper and the 1-based position within its bibliography.
type Occurrence struct {
	Paper    int `json:"paper"`
	Position int `json:"position"`
}

// Entry is one distinct cited work.
type Entry struct {
	// Ref is the first Reference seen for this id; later sightings never
	// replace it.
	Ref         reference.Reference
	occurrences map[Occurrence]struct{}
}

// Count returns the number of occurrences.
func (e *Entry) Count() int {
	return len(e.occurrences)
}

// Has reports whether the entry records occ.
func (e *Entry) Has(occ Occurrence) bool {
	_, ok := e.occurrences[occ]
	return ok
}

// Occurrences returns the occurrence set ordered by paper, then position.
func (e *Entry) Occurrences() []Occurrence {
	out := slices.Collect(maps.Keys(e.occurrences))
	sort.Slice(out, func(i, j int) bool {
		if out[i].Paper != out[j].Paper {
			return out[i].Paper < out[j].Paper
		}
		return out[i].Position < out[j].Position
	})
	return out
}

// Papers returns the distinct citing paper indices in ascending order.
func (e *Entry) Papers() []int {
	seen := make(map[int]bool)
	var out []int
	for _, occ := range e.Occurrences() {
		if !seen[occ.Paper] {
			seen[occ.Paper] = true
			out = append(out, occ.Paper)
		}
	}
	return out
}

// Index maps provider-native ids to entries. It is not safe for concurrent
// mutation; build it from a single goroutine.
type Index struct {
	entries    map[string]*Entry
	unresolved int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// Add folds the reference list of input paper into the index.
//
// References without a provider id cannot be matched across papers and are
// only counted, see Unresolved.
func (x *Index) Add(paper int, refs []reference.Reference) {
	for _, ref := range refs {
		if ref.ID == "" {
			x.unresolved++
			continue
		}
		occ := Occurrence{Paper: paper, Position: ref.Position}
		if e, ok := x.entries[ref.ID]; ok {
			e.occurrences[occ] = struct{}{}
			continue
		}
		x.entries[ref.ID] = &Entry{
			Ref:         ref,
			occurrences: map[Occurrence]struct{}{occ: {}},
		}
	}
}

// Len returns the number of distinct cited works.
func (x *Index) Len() int {
	return len(x.entries)
}

// Unresolved returns how many references were skipped for lack of an id.
func (x *Index) Unresolved() int {
	return x.unresolved
}

// Get looks up an entry by provider id.
func (x *Index) Get(id string) (*Entry, bool) {
	e, ok := x.entries[id]
	return e, ok
}

// IDs returns all ids in ascending order.
func (x *Index) IDs() []string {
	return slices.Sorted(maps.Keys(x.entries))
}

// Equal reports whether both indexes hold the same ids with the same
// occurrence sets.
func (x *Index) Equal(o *Index) bool {
	if x.Len() != o.Len() {
		return false
	}
	for id, e := range x.entries {
		oe, ok := o.entries[id]
		if !ok || !maps.Equal(e.occurrences, oe.occurrences) {
			return false
		}
	}
	return true
}
