package cache

import (
	"os"
	"path/filepath"
)

const (
	// FileSuffix is appended to every entry's file name.
	FileSuffix = ".cache.json"

	// EnvCacheDir is the environment variable for the cache directory.
	EnvCacheDir = "CACHE_DIR"

	// EnvCachePrefix is the environment variable for the key prefix.
	EnvCachePrefix = "CACHE_PREFIX"
)

// Config locates entries on disk: {Directory}/{Prefix}{key}.cache.json.
type Config struct {
	Directory string `json:"directory" yaml:"directory"`
	Prefix    string `json:"prefix"    yaml:"prefix"`
}

// DefaultConfig returns the configuration derived from the environment.
// An unset CACHE_DIR falls back to DefaultDirectory; an unset CACHE_PREFIX
// means no prefix.
func DefaultConfig() Config {
	cfg := Config{Directory: DefaultDirectory()}
	if dir, ok := os.LookupEnv(EnvCacheDir); ok {
		cfg.Directory = dir
	}
	if p, ok := os.LookupEnv(EnvCachePrefix); ok {
		cfg.Prefix = p
	}
	return cfg
}

// DefaultDirectory returns the platform temp directory, or the directory of
// the running executable when no temp directory is available.
func DefaultDirectory() string {
	if dir := os.TempDir(); dir != "" {
		return dir
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}
