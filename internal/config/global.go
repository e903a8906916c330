package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/cg/config.yml.
type GlobalConfig struct {
	ScopusAPIKey string `yaml:"scopus_api_key,omitempty"`
	CacheDir     string `yaml:"cache_dir,omitempty"`
	NotesDir     string `yaml:"notes_dir,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "cg"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// ErrNoAPIKey is returned when no Scopus API key is configured.
var ErrNoAPIKey = errors.New("scopus_api_key not configured")

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/cg/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	cfg.CacheDir = ExpandPath(cfg.CacheDir)
	cfg.NotesDir = ExpandPath(cfg.NotesDir)

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// ScopusAPIKey returns the API key from SCOPUS_API_KEY or the global config.
func ScopusAPIKey() (string, error) {
	if key := os.Getenv("SCOPUS_API_KEY"); key != "" {
		return key, nil
	}
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return "", err
	}
	if cfg.ScopusAPIKey == "" {
		return "", ErrNoAPIKey
	}
	return cfg.ScopusAPIKey, nil
}

// HelpfulConfigMessage explains how to configure the API key.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No Scopus API key found.

Set SCOPUS_API_KEY (a .env file in the working directory works too), or create %s:
  mkdir -p %s
  echo 'scopus_api_key: <your key>' > %s

Keys are issued at https://dev.elsevier.com/`,
		configPath,
		filepath.Dir(configPath),
		configPath)
}
