package scopus

import (
	"github.com/matsen/citegraph/internal/reference"
)

// mapPaper converts FULL-view data to a Paper.
func mapPaper(ar *abstractResponse) *reference.Paper {
	c := ar.Coredata
	p := &reference.Paper{
		ScopusID:     nativeID(c.Identifier, c.EID),
		EID:          c.EID,
		DOI:          c.DOI,
		Title:        c.Title,
		CitedByCount: int(c.CitedByCount),
		Venue:        c.PublicationName,
		CoverDate:    c.CoverDate,
	}
	if ar.Authors != nil {
		p.Authors = mapAuthors(ar.Authors.Author)
	}
	for _, af := range ar.Affiliation {
		p.Affiliations = append(p.Affiliations, reference.Affiliation{
			ID:      string(af.ID),
			Name:    af.Name,
			City:    af.City,
			Country: af.Country,
		})
	}
	if ar.Item != nil {
		p.VenueAbbrev = ar.Item.Bibrecord.Head.Source.Abbrev
		p.ReferenceCount = declaredRefCount(ar)
	}
	return p
}

// declaredRefCount is the bibliography size announced by the FULL view.
func declaredRefCount(ar *abstractResponse) int {
	if ar.Item == nil || ar.Item.Bibrecord.Tail == nil {
		return 0
	}
	return int(ar.Item.Bibrecord.Tail.Bibliography.RefCount)
}

// mapAuthors converts Scopus authors to reference authors.
func mapAuthors(in []author) []reference.Author {
	out := make([]reference.Author, 0, len(in))
	for _, a := range in {
		out = append(out, reference.Author{
			ID:          string(a.AUID),
			IndexedName: a.IndexedName,
			Surname:     a.Surname,
			GivenName:   a.GivenName,
		})
	}
	return out
}

// mapReferences converts one REF-view page.
func mapReferences(entries []refEntry) []reference.Reference {
	refs := make([]reference.Reference, 0, len(entries))
	for _, e := range entries {
		r := reference.Reference{
			Position:        int(e.Position),
			ID:              string(e.ScopusID),
			DOI:             e.DOI,
			Title:           e.Title,
			SourceTitle:     e.SourceTitle,
			PublicationYear: string(e.PublicationYear),
			CoverDate:       e.CoverDate,
			Volume:          string(e.Volume),
			Issue:           string(e.Issue),
			FirstPage:       string(e.First),
			LastPage:        string(e.Last),
			CitedByCount:    int(e.CitedByCount),
			Type:            e.Type,
		}
		if e.AuthorList != nil {
			r.Authors, r.AuthorIDs = reference.JoinAuthors(mapAuthors(e.AuthorList.Author))
		}
		refs = append(refs, r)
	}
	return refs
}
