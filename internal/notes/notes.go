// Package notes writes and updates Markdown paper notes with YAML
// frontmatter, the format used by Obsidian vaults.
package notes

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/matsen/citegraph/internal/reference"
	"gopkg.in/yaml.v3"
)

const (
	delim       = "---"
	ext         = ".md"
	maxNameLen  = 120
	citedByKey  = "citedby"
	scopusIDKey = "scopus_id"
)

var (
	// ErrExists is returned by Write when the note file is already present.
	ErrExists = errors.New("note already exists")

	// ErrNoFrontmatter indicates a file without a leading YAML block.
	ErrNoFrontmatter = errors.New("no frontmatter")
)

// Metadata is the frontmatter of a paper note.
type Metadata struct {
	Title    string   `yaml:"title"`
	DOI      string   `yaml:"doi,omitempty"`
	ScopusID string   `yaml:"scopus_id,omitempty"`
	CitedBy  int      `yaml:"citedby"`
	Authors  []string `yaml:"authors,omitempty"`
	Venue    string   `yaml:"venue,omitempty"`
	Year     int      `yaml:"year,omitempty"`
	Topic    string   `yaml:"topic,omitempty"`
	ArXiv    string   `yaml:"arxiv,omitempty"`
}

// FromPaper builds note metadata from a FULL-view record.
func FromPaper(p *reference.Paper, topic string) Metadata {
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		authors = append(authors, a.IndexedName)
	}
	return Metadata{
		Title:    p.Title,
		DOI:      p.DOI,
		ScopusID: p.ScopusID,
		CitedBy:  p.CitedByCount,
		Authors:  authors,
		Venue:    p.Venue,
		Year:     p.Year(),
		Topic:    topic,
	}
}

// FileName turns a title into a note file name: characters that are unsafe
// in paths or Obsidian links are dropped and whitespace is collapsed.
func FileName(title string) string {
	var b strings.Builder
	space := false
	for _, r := range title {
		switch {
		case strings.ContainsRune(`\/:*?"<>|#^[]`, r):
			continue
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case unicode.IsControl(r):
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}

	name := []rune(b.String())
	if len(name) > maxNameLen {
		name = []rune(strings.TrimSpace(string(name[:maxNameLen])))
	}
	if len(name) == 0 {
		return "untitled" + ext
	}
	return string(name) + ext
}

// Render returns the full note text for meta.
func Render(meta Metadata) ([]byte, error) {
	front, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(front)
	buf.WriteString(delim + "\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", meta.Title)
	return buf.Bytes(), nil
}

// Write creates a note for meta in dir and returns its path. An existing note
// is never overwritten; ErrExists is returned instead.
func Write(dir string, meta Metadata) (string, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return "", errors.New("note title is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating notes directory: %w", err)
	}

	content, err := Render(meta)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(meta.Title))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return path, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return "", fmt.Errorf("creating note: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return "", fmt.Errorf("writing note: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing note: %w", err)
	}
	return path, nil
}

// ReadFrontmatter parses the frontmatter of the note at path.
func ReadFrontmatter(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading note: %w", err)
	}
	front, _, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(strings.Join(front, "\n")), &meta); err != nil {
		return nil, fmt.Errorf("parsing frontmatter of %s: %w", path, err)
	}
	return &meta, nil
}

// splitFrontmatter returns the frontmatter lines and the index of the closing
// delimiter within the file's lines.
func splitFrontmatter(data []byte) (front []string, closing int, err error) {
	lines := strings.Split(string(data), "\n")
	if strings.TrimRight(lines[0], "\r") != delim {
		return nil, 0, ErrNoFrontmatter
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == delim {
			return lines[1:i], i, nil
		}
	}
	return nil, 0, ErrNoFrontmatter
}

// SetCitedBy rewrites the citedby value in a note's frontmatter and leaves
// every other line untouched. A missing key is appended to the frontmatter.
// The boolean reports whether the content changed.
func SetCitedBy(data []byte, n int) ([]byte, bool, error) {
	front, closing, err := splitFrontmatter(data)
	if err != nil {
		return nil, false, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(strings.Join(front, "\n")), &doc); err != nil {
		return nil, false, fmt.Errorf("parsing frontmatter: %w", err)
	}
	key, value, err := mappingEntry(&doc, citedByKey)
	if err != nil {
		return nil, false, err
	}

	lines := strings.Split(string(data), "\n")
	if key == nil {
		line := fmt.Sprintf("%s: %d", citedByKey, n)
		if strings.HasSuffix(lines[closing], "\r") {
			line += "\r"
		}
		lines = append(lines[:closing], append([]string{line}, lines[closing:]...)...)
	} else {
		if value.Value == fmt.Sprint(n) {
			return data, false, nil
		}
		// Node lines are 1-based within the frontmatter, which starts on
		// file line 1 (0-based).
		idx := key.Line
		if value.Line != key.Line {
			return nil, false, fmt.Errorf("%s value must be on the key's line", citedByKey)
		}
		lines[idx] = replaceValue(lines[idx], value, n)
	}
	return []byte(strings.Join(lines, "\n")), true, nil
}

// replaceValue swaps the scalar token on a key's line for n. Whatever follows
// the token, an inline comment or a CR line ending, is kept.
func replaceValue(line string, value *yaml.Node, n int) string {
	start := value.Column - 1
	if value.Kind != yaml.ScalarNode || value.Value == "" || start <= 0 || start > len(line) {
		head, _, _ := strings.Cut(line, ":")
		tail := ""
		if strings.HasSuffix(line, "\r") {
			tail = "\r"
		}
		return fmt.Sprintf("%s: %d%s", head, n, tail)
	}
	rest := line[start:]
	end := strings.IndexAny(rest, " \t\r#")
	if end < 0 {
		end = len(rest)
	}
	return line[:start] + fmt.Sprint(n) + rest[end:]
}

// mappingEntry finds a top-level key in a YAML document. A document with no
// content yields no entry.
func mappingEntry(doc *yaml.Node, name string) (key, value *yaml.Node, err error) {
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil, nil
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, nil, errors.New("frontmatter is not a mapping")
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			return m.Content[i], m.Content[i+1], nil
		}
	}
	return nil, nil, nil
}
