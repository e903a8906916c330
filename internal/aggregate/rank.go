package aggregate

import (
	"sort"
)

// Ranked is an entry in presentation order.
type Ranked struct {
	*Entry
	Ignored bool
}

// Rank orders entries for display. Non-ignored entries always come first.
// Within each bucket, entries cited by more input papers rank higher, ties go
// to the larger provider citation count, then to the smaller id so the order
// is reproducible.
func (x *Index) Rank(ignored map[string]bool) []Ranked {
	out := make([]Ranked, 0, len(x.entries))
	for _, id := range x.IDs() {
		out = append(out, Ranked{Entry: x.entries[id], Ignored: ignored[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := rankKey(out[i]), rankKey(out[j])
		if ki != kj {
			return ki > kj
		}
		ci, cj := out[i].Ref.CitedByCount, out[j].Ref.CitedByCount
		if ci != cj {
			return ci > cj
		}
		return out[i].Ref.ID < out[j].Ref.ID
	})
	return out
}

// rankKey negates the occurrence count of ignored entries so they sink below
// every non-ignored one.
func rankKey(r Ranked) int {
	if r.Ignored {
		return -r.Count()
	}
	return r.Count()
}

// CountIgnored returns how many ranked entries are in the ignored bucket.
func CountIgnored(ranked []Ranked) int {
	n := 0
	for _, r := range ranked {
		if r.Ignored {
			n++
		}
	}
	return n
}

// FilterMinPapers keeps entries cited by at least n distinct input papers.
// A paper citing the same work at two positions counts once.
func FilterMinPapers(ranked []Ranked, n int) []Ranked {
	if n <= 1 {
		return ranked
	}
	out := make([]Ranked, 0, len(ranked))
	for _, r := range ranked {
		if len(r.Papers()) >= n {
			out = append(out, r)
		}
	}
	return out
}
