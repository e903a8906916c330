// Package pdf harvests DOIs from local PDF files so a collection of papers
// can seed an acquisition run.
package pdf

import (
	"context"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// DefaultPages is how many leading pages are searched for a DOI.
const DefaultPages = 3

// 10.<registrant>/<suffix>, registrant of 4 to 9 digits.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// ExtractDOI returns the first DOI printed on the leading pages of a PDF, or
// "" when none is found.
func ExtractDOI(filePath string, maxPages int) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if doi := FindDOI(text); doi != "" {
			return doi, nil
		}
	}

	return "", nil
}

// FindDOI returns the first plausible DOI in text.
func FindDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slash := strings.Index(doi, "/")
	return slash != -1 && slash < len(doi)-1
}

// Found pairs a PDF with the DOI extracted from it.
type Found struct {
	Path string `json:"path"`
	DOI  string `json:"doi"`
}

// ScanResult is the outcome of ScanDir.
type ScanResult struct {
	Found      []Found
	NoDOI      []string
	Unreadable []string
}

// DOIs returns the distinct DOIs in discovery order, compared
// case-insensitively.
func (r *ScanResult) DOIs() []string {
	seen := make(map[string]bool, len(r.Found))
	var out []string
	for _, f := range r.Found {
		key := strings.ToLower(f.DOI)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f.DOI)
	}
	return out
}

// ScanDir walks dir for *.pdf files and extracts a DOI from each. Files that
// cannot be parsed are recorded, not fatal.
func ScanDir(ctx context.Context, dir string, maxPages int, logger *zap.Logger) (*ScanResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := &ScanResult{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		doi, err := ExtractDOI(path, maxPages)
		switch {
		case err != nil:
			logger.Warn("unreadable pdf", zap.String("path", path), zap.Error(err))
			res.Unreadable = append(res.Unreadable, path)
		case doi == "":
			logger.Debug("no doi in pdf", zap.String("path", path))
			res.NoDOI = append(res.NoDOI, path)
		default:
			res.Found = append(res.Found, Found{Path: path, DOI: doi})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
