// Package config resolves runtime settings from defaults, an optional YAML
// file and SHIYUAN_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/poems"
	"github.com/csheth/shiyuan/internal/theme"
)

const appName = "shiyuan"

// Config is the resolved runtime configuration.
type Config struct {
	Sources        []string      `yaml:"sources"`
	PartialSuccess bool          `yaml:"partial_success"`
	Storage        string        `yaml:"storage"`
	NotesSlot      string        `yaml:"notes_slot"`
	ThemeSlot      string        `yaml:"theme_slot"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	Cache          Cache         `yaml:"cache"`
}

// Cache configures the on-disk catalog response cache.
type Cache struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir,omitempty"`
	TTL     time.Duration `yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sources:     []string{poems.DefaultEndpoint},
		Storage:     defaultStorage(),
		NotesSlot:   notes.DefaultSlot,
		ThemeSlot:   theme.DefaultSlot,
		HTTPTimeout: 30 * time.Second,
		Cache:       Cache{Enabled: true, TTL: 24 * time.Hour},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/shiyuan/config.yaml.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, appName, "config.yaml")
}

func defaultStorage() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// Load reads path over Default and then applies the environment. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from SHIYUAN_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if value := getenv("SHIYUAN_SOURCES"); value != "" {
		c.Sources = splitList(value)
	}
	if value := getenv("SHIYUAN_STORAGE"); value != "" {
		c.Storage = value
	}
	if value := getenv("SHIYUAN_CACHE_DIR"); value != "" {
		c.Cache.Dir = value
	}
	if value := getenv("SHIYUAN_HTTP_TIMEOUT"); value != "" {
		timeout, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("SHIYUAN_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = timeout
	}
	return nil
}

// Validate reports settings that cannot produce a working session.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("config: at least one catalog source is required")
	}
	if strings.TrimSpace(c.Storage) == "" {
		return errors.New("config: storage is required")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("config: negative http_timeout %s", c.HTTPTimeout)
	}
	return nil
}

// SourceOptions maps the HTTP and cache settings onto catalog sources.
func (c Config) SourceOptions() poems.SourceOptions {
	return poems.SourceOptions{
		Timeout:  c.HTTPTimeout,
		Cache:    c.Cache.Enabled,
		CacheDir: c.Cache.Dir,
		CacheTTL: c.Cache.TTL,
	}
}

// CatalogOptions returns the catalog load options.
func (c Config) CatalogOptions() poems.Options {
	return poems.Options{PartialSuccess: c.PartialSuccess}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration accepts Go durations or a bare number of seconds.
func parseDuration(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}
