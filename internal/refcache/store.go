// Package refcache persists completed reference lists, one semicolon-delimited
// file per queried identifier.
//
// A file is only ever written from a complete list, so a readable file with the
// current header is always a complete list. Files whose header or row width no
// longer matches reference.FieldNames are ignored, never deleted, so they can be
// inspected or regenerated by hand.
package refcache

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/matsen/citegraph/internal/reference"
	"go.uber.org/zap"
)

const (
	// Ext is the cache file extension.
	Ext = ".csv"

	// Delimiter separates fields in a cache row.
	Delimiter = ';'
)

// Store reads and writes cache files under a single directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for rejected or unreadable cache files.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a Store rooted at dir. The directory is created on first Save.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Key maps an identifier to its file name.
func Key(id string) string {
	return strings.ReplaceAll(id, "/", "_") + Ext
}

// Path returns the cache file path for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, Key(id))
}

// Fresh reports whether a cache file for id exists and is younger than
// maxAgeDays, measured from its modification time.
func (s *Store) Fresh(id string, maxAgeDays float64) bool {
	info, err := os.Stat(s.Path(id))
	if err != nil {
		return false
	}
	age := time.Since(info.ModTime()).Seconds() / 86400
	return age < maxAgeDays
}

// Load returns the cached list for id, or nil when there is no usable file.
// Schema drift and malformed files are reported as a miss, not an error.
func (s *Store) Load(id string) []reference.Reference {
	path := s.Path(id)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("opening cache file", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	defer f.Close()

	refs, err := decode(f)
	if err != nil {
		s.logger.Warn("ignoring cache file", zap.String("path", path), zap.Error(err))
		return nil
	}
	return refs
}

// Save writes refs for id. An empty list is never written, so a failed
// acquisition cannot turn into a cache hit.
func (s *Store) Save(id string, refs []reference.Reference) error {
	if len(refs) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	// Write to a sibling temp file and rename, so concurrent readers never see
	// a half-written list.
	tmp, err := os.CreateTemp(s.dir, Key(id)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, refs); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache for %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(id)); err != nil {
		return fmt.Errorf("renaming cache for %s: %w", id, err)
	}
	return nil
}

func encode(w io.Writer, refs []reference.Reference) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	if err := cw.Write(reference.FieldNames); err != nil {
		return err
	}
	for _, ref := range refs {
		if err := cw.Write(ref.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decode(r io.Reader) ([]reference.Reference, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if !slices.Equal(header, reference.FieldNames) {
		return nil, fmt.Errorf("header %v does not match %v", header, reference.FieldNames)
	}

	var refs []reference.Reference
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ref, err := reference.FromRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
