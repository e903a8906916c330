// Package storage keeps raw provider responses in a SQLite database so
// repeated lookups within their freshness window never reach the network.
package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

const responsesTable = "responses"

// DB wraps a SQLite database connection.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Response is one cached provider response body.
type Response struct {
	Key       string
	Provider  string
	View      string
	ID        string
	Body      []byte
	FetchedAt time.Time
}

// Age returns how long ago the response was fetched.
func (r *Response) Age(now time.Time) time.Duration {
	return now.Sub(r.FetchedAt)
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes; parallel workers share this
	// handle and queue on the single connection.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS responses (
			key TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			view TEXT NOT NULL,
			ident TEXT NOT NULL,
			body BLOB NOT NULL,
			fetched_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_responses_fetched ON responses(fetched_at);
	`

	_, err := db.Exec(schema)
	return err
}

// ResponseKey derives a stable cache key from the parts of a request.
// Identifiers are case-folded so lookups match the provider's own behavior.
func ResponseKey(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(strings.ToLower(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetResponse returns the response stored under key if it is younger than
// maxAge. A non-positive maxAge accepts any age. The boolean reports whether a
// usable entry was found.
func (d *DB) GetResponse(key string, maxAge time.Duration) (*Response, bool, error) {
	row := sq.Select("key", "provider", "view", "ident", "body", "fetched_at").
		From(responsesTable).
		Where(sq.Eq{"key": key}).
		RunWith(d.db).
		QueryRow()

	var (
		r       Response
		fetched int64
	)
	err := row.Scan(&r.Key, &r.Provider, &r.View, &r.ID, &r.Body, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached response: %w", err)
	}
	r.FetchedAt = time.Unix(fetched, 0)

	if maxAge > 0 && r.Age(d.now()) > maxAge {
		return &r, false, nil
	}
	return &r, true, nil
}

// PutResponse stores r, replacing any previous entry with the same key. A zero
// FetchedAt is set to the current time.
func (d *DB) PutResponse(r Response) error {
	if r.Key == "" {
		return errors.New("response key is required")
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = d.now()
	}

	_, err := sq.Replace(responsesTable).
		Columns("key", "provider", "view", "ident", "body", "fetched_at").
		Values(r.Key, r.Provider, r.View, r.ID, r.Body, r.FetchedAt.Unix()).
		RunWith(d.db).
		Exec()
	if err != nil {
		return fmt.Errorf("storing response for %s: %w", r.ID, err)
	}
	return nil
}

// PruneResponses deletes entries older than olderThan and returns how many
// were removed.
func (d *DB) PruneResponses(olderThan time.Duration) (int64, error) {
	cutoff := d.now().Add(-olderThan).Unix()
	res, err := sq.Delete(responsesTable).
		Where(sq.Lt{"fetched_at": cutoff}).
		RunWith(d.db).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("pruning responses: %w", err)
	}
	return res.RowsAffected()
}

// CountResponses returns the number of cached responses.
func (d *DB) CountResponses() (int, error) {
	var n int
	err := sq.Select("COUNT(*)").From(responsesTable).RunWith(d.db).QueryRow().Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting responses: %w", err)
	}
	return n, nil
}
