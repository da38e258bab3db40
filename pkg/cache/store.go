package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// FileCache stores JSON values as one file per key. The directory is never
// created by the cache; a missing directory surfaces as a *StorageError on
// the first write.
type FileCache struct {
	// mu guards cfg.
	mu  sync.RWMutex
	cfg Config

	logger       zerolog.Logger
	now          func() time.Time
	locks        *keyLocks
	atomicWrites bool

	// flights collapses concurrent WithCache misses on the same path.
	flights singleflight.Group
}

// Option configures a FileCache.
type Option func(*FileCache)

// WithLogger sets the logger used for WithCache and maintenance events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *FileCache) { c.logger = l }
}

// WithKeyLocking serializes in-process readers and writers of the same key.
func WithKeyLocking() Option {
	return func(c *FileCache) { c.locks = newKeyLocks() }
}

// WithAtomicWrites makes Put write to a temporary file and rename it into
// place, so readers never observe a partial entry.
func WithAtomicWrites() Option {
	return func(c *FileCache) { c.atomicWrites = true }
}

// WithClock overrides the clock used to compute entry age.
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) { c.now = now }
}

// New creates a FileCache for cfg.
func New(cfg Config, opts ...Option) *FileCache {
	c := &FileCache{
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefault creates a FileCache configured from the environment.
func NewDefault(opts ...Option) *FileCache {
	return New(DefaultConfig(), opts...)
}

// Config returns a snapshot of the current configuration.
func (c *FileCache) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetDirectory changes the directory used by subsequent operations.
func (c *FileCache) SetDirectory(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Directory = dir
}

// SetPrefix changes the key prefix used by subsequent operations.
func (c *FileCache) SetPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Prefix = prefix
}

// Configure sets each non-empty argument and returns the resulting config.
func (c *FileCache) Configure(prefix, dir string) Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prefix != "" {
		c.cfg.Prefix = prefix
	}
	if dir != "" {
		c.cfg.Directory = dir
	}
	return c.cfg
}

// FilePath returns the path of the entry for key. Keys are not escaped.
func (c *FileCache) FilePath(key string) string {
	cfg := c.Config()
	return filepath.Join(cfg.Directory, cfg.Prefix+key+FileSuffix)
}

// Has reports whether a regular file exists for key.
func (c *FileCache) Has(key string) (bool, error) {
	path := c.FilePath(key)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, storageErr("stat", key, path, err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the entry for key. Deleting a missing entry succeeds.
func (c *FileCache) Delete(key string) error {
	if c.locks != nil {
		defer c.locks.Lock(key)()
	}

	path := c.FilePath(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("delete", key, path, err)
	}
	return nil
}

// NoMaxAge disables the age check in Get, GetRaw and WithCache. Any
// negative max age has the same effect.
const NoMaxAge time.Duration = -1

// Get decodes the entry for key into dst. It reports false, with a nil
// error, when the entry is missing, not a regular file, or older than
// maxAge. A maxAge of zero ("0 s") accepts only entries written at the
// current instant; pass NoMaxAge to skip the check. Stale entries are left
// on disk.
func (c *FileCache) Get(key string, maxAge time.Duration, dst any) (bool, error) {
	data, ok, err := c.GetRaw(key, maxAge)
	if err != nil || !ok {
		return false, err
	}
	if err = json.Unmarshal(data, dst); err != nil {
		return false, &DeserializationError{Key: key, Path: c.FilePath(key), Err: err}
	}
	return true, nil
}

// GetRaw returns the stored JSON for key with the same hit rules as Get.
// The bytes are checked to be valid JSON.
func (c *FileCache) GetRaw(key string, maxAge time.Duration) (json.RawMessage, bool, error) {
	if c.locks != nil {
		defer c.locks.RLock(key)()
	}

	path := c.FilePath(key)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, storageErr("stat", key, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	if maxAge >= 0 && c.now().Sub(info.ModTime()) > maxAge {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, storageErr("read", key, path, err)
	}
	if !json.Valid(data) {
		return nil, false, &DeserializationError{Key: key, Path: path, Err: errors.New("invalid JSON")}
	}
	return json.RawMessage(data), true, nil
}

// Put stores value under key, replacing any previous entry.
func (c *FileCache) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &SerializationError{Key: key, Err: err}
	}

	if c.locks != nil {
		defer c.locks.Lock(key)()
	}

	path := c.FilePath(key)
	if !c.atomicWrites {
		if err = os.WriteFile(path, data, 0o600); err != nil {
			return storageErr("write", key, path, err)
		}
		return nil
	}

	tempPath := path + "." + ulid.Make().String() + ".tmp"
	if err = os.WriteFile(tempPath, data, 0o600); err != nil {
		return storageErr("write", key, tempPath, err)
	}
	if err = os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return storageErr("rename", key, path, err)
	}
	return nil
}

// EntryInfo describes an entry on disk.
type EntryInfo struct {
	Key     string
	Path    string
	Size    int64
	ModTime time.Time
	Age     time.Duration
}

// Stat describes the entry for key. It reports false when no regular file
// exists.
func (c *FileCache) Stat(key string) (EntryInfo, bool, error) {
	path := c.FilePath(key)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EntryInfo{}, false, nil
		}
		return EntryInfo{}, false, storageErr("stat", key, path, err)
	}
	if !info.Mode().IsRegular() {
		return EntryInfo{}, false, nil
	}
	return c.entryInfo(key, path, info), true, nil
}

func (c *FileCache) entryInfo(key, path string, info fs.FileInfo) EntryInfo {
	return EntryInfo{
		Key:     key,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Age:     c.now().Sub(info.ModTime()),
	}
}

// Entries lists the entries stored under the current prefix, sorted by key.
//
// Ownership is decided by file name alone, so a prefix also matches the
// entries of every longer prefix that starts with it: prefix "a" lists the
// entries of prefix "ab" (as keys beginning with "b"), and the empty prefix
// lists every entry in the directory. The same holds for Keys, Count, Size,
// Clear and Purge.
func (c *FileCache) Entries() ([]EntryInfo, error) {
	cfg := c.Config()
	dirEntries, err := os.ReadDir(cfg.Directory)
	if err != nil {
		return nil, storageErr("list", "", cfg.Directory, err)
	}

	var entries []EntryInfo
	for _, de := range dirEntries {
		name := de.Name()
		if !de.Type().IsRegular() || !strings.HasPrefix(name, cfg.Prefix) || !strings.HasSuffix(name, FileSuffix) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, cfg.Prefix), FileSuffix)
		if key == "" {
			continue
		}
		info, infoErr := de.Info()
		if infoErr != nil {
			// Removed between ReadDir and Info.
			if errors.Is(infoErr, fs.ErrNotExist) {
				continue
			}
			return nil, storageErr("stat", key, filepath.Join(cfg.Directory, name), infoErr)
		}
		entries = append(entries, c.entryInfo(key, filepath.Join(cfg.Directory, name), info))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Keys returns the keys stored under the current prefix, sorted.
func (c *FileCache) Keys() ([]string, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

// Count returns the number of entries under the current prefix, stale or not.
func (c *FileCache) Count() (int, error) {
	entries, err := c.Entries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Size returns the total size in bytes of the entries under the current prefix.
func (c *FileCache) Size() (int64, error) {
	entries, err := c.Entries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

// Clear removes every entry under the current prefix and returns how many
// were removed. Entries of overlapping prefixes are removed too; see Entries.
func (c *FileCache) Clear() (int, error) {
	return c.removeWhere(func(EntryInfo) bool { return true })
}

// Purge removes entries under the current prefix older than maxAge and
// returns how many were removed. Overlapping prefixes are matched as in
// Entries. A negative maxAge is a no-op.
func (c *FileCache) Purge(maxAge time.Duration) (int, error) {
	if maxAge < 0 {
		c.logger.Debug().Msg("cache purge disabled")
		return 0, nil
	}
	return c.removeWhere(func(e EntryInfo) bool { return e.Age > maxAge })
}

func (c *FileCache) removeWhere(match func(EntryInfo) bool) (int, error) {
	entries, err := c.Entries()
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !match(e) {
			continue
		}
		if rmErr := c.Delete(e.Key); rmErr != nil {
			errs = append(errs, rmErr)
			continue
		}
		removed++
		c.logger.Debug().Str("key", e.Key).Str("path", e.Path).Msg("removed cache file")
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to remove %d cache entries: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}
