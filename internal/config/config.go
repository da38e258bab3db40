// Package config loads CLI settings from a YAML file, an optional .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rshade/jsoncache/internal/logging"
	"github.com/rshade/jsoncache/pkg/cache"
)

// Environment variables read on top of the config file. CACHE_DIR and
// CACHE_PREFIX are shared with pkg/cache.
const (
	EnvConfigPath   = "JSONCACHE_CONFIG"
	EnvMaxAge       = "JSONCACHE_MAX_AGE"
	EnvLogLevel     = "JSONCACHE_LOG_LEVEL"
	EnvLogFormat    = "JSONCACHE_LOG_FORMAT"
	EnvLogFile      = "JSONCACHE_LOG_FILE"
	EnvKeyLocking   = "JSONCACHE_KEY_LOCKING"
	EnvAtomicWrites = "JSONCACHE_ATOMIC_WRITES"
)

// Config is the full CLI configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig mirrors cache.Config plus the options the CLI can enable.
type CacheConfig struct {
	Directory    string            `yaml:"directory"`
	Prefix       string            `yaml:"prefix"`
	MaxAge       cache.MaxAgeValue `yaml:"max_age"`
	KeyLocking   bool              `yaml:"key_locking"`
	AtomicWrites bool              `yaml:"atomic_writes"`
}

// LoggingConfig controls CLI logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
	Caller bool   `yaml:"caller"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		Cache: CacheConfig{
			Directory: cache.DefaultDirectory(),
			MaxAge:    cache.MaxAgeValue{Duration: cache.NoMaxAge},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: logging.FormatConsole,
		},
	}
}

// DefaultPath returns JSONCACHE_CONFIG or ~/.jsoncache/config.yaml. It
// returns "" when neither can be resolved.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jsoncache", "config.yaml")
}

// Load returns defaults overlaid with the YAML file at path and then the
// environment. A missing file is only an error when required is true.
func Load(path string, required bool) (*Config, error) {
	cfg := New()
	if path != "" {
		if err := cfg.mergeFile(path, required); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment values found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(cache.EnvCacheDir); ok && v != "" {
		c.Cache.Directory = v
	}
	if v, ok := lookup(cache.EnvCachePrefix); ok {
		c.Cache.Prefix = v
	}
	if v, ok := lookup(EnvMaxAge); ok && v != "" {
		d, err := ParseMaxAge(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxAge, err)
		}
		c.Cache.MaxAge.Duration = d
	}
	if v, ok := lookup(EnvKeyLocking); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.KeyLocking = b
		}
	}
	if v, ok := lookup(EnvAtomicWrites); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.AtomicWrites = b
		}
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.Logging.Format = v
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Logging.File = v
	}
	return nil
}

// ParseMaxAge accepts plain milliseconds or a "<number> <unit>" string.
func ParseMaxAge(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
		return cache.MaxAge(ms)
	}
	return cache.ParseMaxAge(v)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is only
// an error when required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be checked while decoding.
func (c *Config) Validate() error {
	if c.Cache.Directory == "" {
		return errors.New("cache directory cannot be empty")
	}
	if c.Cache.MaxAge.Duration < 0 && c.Cache.MaxAge.Duration != cache.NoMaxAge {
		return fmt.Errorf("max age must be >= 0, got %s", c.Cache.MaxAge.Duration)
	}
	switch c.Logging.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q (valid: console, json)", c.Logging.Format)
	}
	return nil
}

// CacheLocation returns the directory and prefix for pkg/cache.
func (c *Config) CacheLocation() cache.Config {
	return cache.Config{Directory: c.Cache.Directory, Prefix: c.Cache.Prefix}
}

// CacheOptions returns the pkg/cache options enabled by c.
func (c *Config) CacheOptions(logger zerolog.Logger) []cache.Option {
	opts := []cache.Option{cache.WithLogger(logger)}
	if c.Cache.KeyLocking {
		opts = append(opts, cache.WithKeyLocking())
	}
	if c.Cache.AtomicWrites {
		opts = append(opts, cache.WithAtomicWrites())
	}
	return opts
}

// ToLoggingConfig converts the logging section for internal/logging.
// A configured file switches output to that file.
func (lc LoggingConfig) ToLoggingConfig() logging.Config {
	output := logging.OutputStderr
	if lc.File != "" {
		output = logging.OutputFile
	}
	return logging.Config{
		Level:  lc.Level,
		Format: lc.Format,
		Output: output,
		File:   lc.File,
		Caller: lc.Caller,
	}
}
