// Package config handles project and global configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is a project file describing one bibliography topic.
type Config struct {
	Topic       string   `yaml:"topic"`
	Identifiers []string `yaml:"identifiers"`
	Ignored     []string `yaml:"ignored,omitempty"`

	NumProc        int           `yaml:"num_proc"`
	MaxAgeDays     float64       `yaml:"max_age_days"`
	MinRefreshDays float64       `yaml:"min_refresh_days"`
	MinGap         time.Duration `yaml:"min_gap"`

	CacheDir string `yaml:"cache_dir,omitempty"`
	NotesDir string `yaml:"notes_dir,omitempty"`

	// Notes-only inputs: notes are created without cross referencing.
	DOIList  []string `yaml:"doi_list,omitempty"`
	ArxivIDs []string `yaml:"arxiv_ids,omitempty"`

	// Presentation
	ShowRefPos bool `yaml:"show_ref_pos,omitempty"`
	MinRefs    int  `yaml:"min_refs,omitempty"`
}

const (
	DefaultConfigFile     = "citegraph.yml"
	DefaultNumProc        = 4
	DefaultMaxAgeDays     = 30
	DefaultMinRefreshDays = 10
	DefaultMinGap         = 100 * time.Millisecond

	// MinMaxAgeDays is the exclusive lower bound for max_age_days. Shorter
	// windows burn through the weekly provider quota.
	MinMaxAgeDays = 7

	RefsDir      = "refs"
	ResponsesDB  = "scopus.db"
	cacheDirName = "citegraph"
)

// ErrInvalidConfig is returned when a config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Default returns a Config with default tuning and no identifiers.
func Default() *Config {
	return &Config{
		NumProc:        DefaultNumProc,
		MaxAgeDays:     DefaultMaxAgeDays,
		MinRefreshDays: DefaultMinRefreshDays,
		MinGap:         DefaultMinGap,
	}
}

// Load reads and validates the project config at path. Fields missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.CacheDir = ExpandPath(cfg.CacheDir)
	cfg.NotesDir = ExpandPath(cfg.NotesDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks the tuning values.
func (c *Config) Validate() error {
	if c.MaxAgeDays <= MinMaxAgeDays {
		return fmt.Errorf("%w: max_age_days must be greater than %d, got %v", ErrInvalidConfig, MinMaxAgeDays, c.MaxAgeDays)
	}
	if c.MinRefreshDays <= 0 || c.MinRefreshDays >= c.MaxAgeDays {
		return fmt.Errorf("%w: min_refresh_days must be in (0, %v), got %v", ErrInvalidConfig, c.MaxAgeDays, c.MinRefreshDays)
	}
	if c.NumProc < 1 {
		return fmt.Errorf("%w: num_proc must be at least 1, got %d", ErrInvalidConfig, c.NumProc)
	}
	if c.MinGap < 0 {
		return fmt.Errorf("%w: min_gap must not be negative, got %s", ErrInvalidConfig, c.MinGap)
	}
	if c.MinRefs < 0 {
		return fmt.Errorf("%w: min_refs must not be negative, got %d", ErrInvalidConfig, c.MinRefs)
	}
	return nil
}

// ResolveCacheDir picks the cache directory: CG_CACHE_DIR, then the project
// file, then the global config, then the user cache directory.
func (c *Config) ResolveCacheDir() string {
	if dir := os.Getenv("CG_CACHE_DIR"); dir != "" {
		return ExpandPath(dir)
	}
	if c != nil && c.CacheDir != "" {
		return c.CacheDir
	}
	if g, err := LoadGlobalConfig(); err == nil && g.CacheDir != "" {
		return g.CacheDir
	}
	return DefaultCacheDir()
}

// DefaultCacheDir returns the per-user cache directory, falling back to a
// relative directory if none is known.
func DefaultCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, cacheDirName)
	}
	return filepath.Join(".cache", cacheDirName)
}

// RefsPath returns the reference cache directory under cacheDir.
func RefsPath(cacheDir string) string {
	return filepath.Join(cacheDir, RefsDir)
}

// ResponsesPath returns the provider response database under cacheDir.
func ResponsesPath(cacheDir string) string {
	return filepath.Join(cacheDir, ResponsesDB)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
