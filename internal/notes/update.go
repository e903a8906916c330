package notes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// CitationLookup returns the current citation count of a Scopus id.
type CitationLookup func(ctx context.Context, scopusID string) (int, error)

// Update is the outcome for one note.
type Update struct {
	Path     string `json:"path"`
	ScopusID string `json:"scopus_id"`
	Old      int    `json:"old"`
	New      int    `json:"new"`
	Changed  bool   `json:"changed"`
	Err      error  `json:"-"`
}

// UpdateCitedBy refreshes the citedby value of every note under dir whose
// frontmatter has a scopus_id. Notes that cannot be read or looked up are
// reported in their Update and do not stop the walk; context cancellation
// does.
func UpdateCitedBy(ctx context.Context, dir string, lookup CitationLookup, logger *zap.Logger) ([]Update, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var updates []Update
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		meta, err := ReadFrontmatter(path)
		if err != nil {
			if !errors.Is(err, ErrNoFrontmatter) {
				logger.Warn("skipping note", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if meta.ScopusID == "" {
			return nil
		}

		u := updateOne(ctx, path, meta, lookup)
		if u.Err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("updating citation count", zap.String("path", path), zap.Error(u.Err))
		} else if u.Changed {
			logger.Info("citation count updated",
				zap.String("path", path), zap.Int("old", u.Old), zap.Int("new", u.New))
		}
		updates = append(updates, u)
		return nil
	})
	if err != nil {
		return updates, fmt.Errorf("walking %s: %w", dir, err)
	}
	return updates, nil
}

func updateOne(ctx context.Context, path string, meta *Metadata, lookup CitationLookup) Update {
	u := Update{Path: path, ScopusID: meta.ScopusID, Old: meta.CitedBy}

	n, err := lookup(ctx, meta.ScopusID)
	if err != nil {
		u.Err = err
		return u
	}
	u.New = n

	data, err := os.ReadFile(path)
	if err != nil {
		u.Err = err
		return u
	}
	out, changed, err := SetCitedBy(data, n)
	if err != nil {
		u.Err = err
		return u
	}
	if !changed {
		return u
	}
	if err := writeFileAtomic(path, out); err != nil {
		u.Err = err
		return u
	}
	u.Changed = true
	return u
}

// writeFileAtomic replaces path via a temporary file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".note-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing note: %w", err)
	}
	return nil
}
