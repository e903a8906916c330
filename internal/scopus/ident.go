package scopus

import (
	"fmt"
	"strings"
)

// IDKind is the path segment Scopus uses for an identifier type.
type IDKind string

const (
	KindDOI      IDKind = "doi"
	KindScopusID IDKind = "scopus_id"
	KindEID      IDKind = "eid"
	KindPII      IDKind = "pii"
	KindPubMedID IDKind = "pubmed_id"
)

const (
	scopusIDPrefix = "SCOPUS_ID:"
	eidPrefix      = "2-s2.0-"
)

// DetectIDKind infers the identifier type:
//   - 2-s2.0-85012345678 is an EID
//   - anything with a slash or dot is a DOI
//   - 16 or 17 non-numeric characters are a PII
//   - numbers of 10 digits or more are Scopus ids, shorter ones PubMed ids
func DetectIDKind(id string) (IDKind, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrUnknownIDType)
	}
	if isDigits(id) {
		if len(id) < 10 {
			return KindPubMedID, nil
		}
		return KindScopusID, nil
	}
	switch {
	case strings.HasPrefix(id, eidPrefix):
		return KindEID, nil
	case strings.ContainsAny(id, "/."):
		return KindDOI, nil
	case len(id) == 16 || len(id) == 17:
		return KindPII, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIDType, id)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// nativeID extracts the Scopus id from dc:identifier ("SCOPUS_ID:123"),
// falling back to the EID ("2-s2.0-123").
func nativeID(identifier, eid string) string {
	if strings.HasPrefix(identifier, scopusIDPrefix) {
		return identifier[len(scopusIDPrefix):]
	}
	if strings.HasPrefix(eid, eidPrefix) {
		return eid[len(eidPrefix):]
	}
	return ""
}
