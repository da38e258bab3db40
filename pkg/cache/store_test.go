package cache_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/jsoncache/pkg/cache"
)

const testPrefix = "_test."

func newTestCache(t *testing.T, opts ...cache.Option) *cache.FileCache {
	t.Helper()
	return cache.New(cache.Config{Directory: t.TempDir(), Prefix: testPrefix}, opts...)
}

// setModTime backdates the entry for key so age checks are deterministic.
func setModTime(t *testing.T, c *cache.FileCache, key string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(c.FilePath(key), mtime, mtime))
}

func TestFileCache_FilePath(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(cache.Config{Directory: dir, Prefix: "p."})
	assert.Equal(t, filepath.Join(dir, "p.key.cache.json"), c.FilePath("key"))

	c.SetPrefix("")
	assert.Equal(t, filepath.Join(dir, "key.cache.json"), c.FilePath("key"))
}

func TestFileCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)

	tests := []struct {
		name  string
		value any
	}{
		{name: "string", value: "testValue"},
		{name: "number", value: float64(42.5)},
		{name: "bool", value: true},
		{name: "null", value: nil},
		{name: "object", value: map[string]any{"user": "alice", "age": float64(30)}},
		{name: "array", value: []any{"x", float64(2), map[string]any{"nested": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.Put(tt.name, tt.value))

			got, ok, err := cache.Load[any](c, tt.name, cache.NoMaxAge)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestFileCache_TypedRoundTrip(t *testing.T) {
	type quote struct {
		Symbol string   `json:"symbol"`
		Price  float64  `json:"price"`
		Tags   []string `json:"tags"`
	}
	c := newTestCache(t)

	in := quote{Symbol: "ACME", Price: 12.5, Tags: []string{"a", "b"}}
	stored, err := cache.Store(c, "quote", in)
	require.NoError(t, err)
	assert.Equal(t, in, stored)

	out, ok, err := cache.Load[quote](c, "quote", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)

	data, err := os.ReadFile(c.FilePath("quote"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"ACME","price":12.5,"tags":["a","b"]}`, string(data))
}

func TestFileCache_PutOverwrites(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put("k", "first"))
	require.NoError(t, c.Put("k", "second"))

	got, ok, err := cache.Load[string](c, "k", cache.NoMaxAge)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got)

	count, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFileCache_HasReflectsWrites(t *testing.T) {
	c := newTestCache(t)

	has, err := c.Has("testKey")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, c.Put("testKey", "testValue"))
	has, err = c.Has("testKey")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, c.Delete("testKey"))
	has, err = c.Has("testKey")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFileCache_DeleteIdempotent(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Delete("missing"))
	require.NoError(t, c.Delete("missing"))

	require.NoError(t, c.Put("k", 1))
	require.NoError(t, c.Delete("k"))
	require.NoError(t, c.Delete("k"))

	_, ok, err := cache.Load[int](c, "k", cache.NoMaxAge)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCache_GetMissing(t *testing.T) {
	c := newTestCache(t)

	var v string
	ok, err := c.Get("nonexistent-key", time.Hour, &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCache_ExpiryBoundary(t *testing.T) {
	written := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := written
	c := newTestCache(t, cache.WithClock(func() time.Time { return now }))
	maxAge := 10 * time.Second

	require.NoError(t, c.Put("k", "v"))
	setModTime(t, c, "k", written)

	t.Run("younger than max age", func(t *testing.T) {
		now = written.Add(maxAge - time.Millisecond)
		got, ok, err := cache.Load[string](c, "k", maxAge)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", got)
	})

	t.Run("exactly max age", func(t *testing.T) {
		now = written.Add(maxAge)
		_, ok, err := cache.Load[string](c, "k", maxAge)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("older than max age", func(t *testing.T) {
		now = written.Add(maxAge + time.Millisecond)
		_, ok, err := cache.Load[string](c, "k", maxAge)
		require.NoError(t, err)
		assert.False(t, ok)

		has, err := c.Has("k")
		require.NoError(t, err)
		assert.True(t, has, "stale entries must stay on disk")
	})

	t.Run("zero max age only accepts entries written now", func(t *testing.T) {
		zero, err := cache.MaxAge("0 s")
		require.NoError(t, err)

		now = written
		_, ok, err := cache.Load[string](c, "k", zero)
		require.NoError(t, err)
		assert.True(t, ok)

		now = written.Add(time.Hour)
		_, ok, err = cache.Load[string](c, "k", zero)
		require.NoError(t, err)
		assert.False(t, ok)

		empty, err := cache.MaxAge(cache.AgeSpec{})
		require.NoError(t, err)
		_, ok, err = cache.Load[string](c, "k", empty)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no max age ignores staleness", func(t *testing.T) {
		now = written.Add(365 * 24 * time.Hour)
		_, ok, err := cache.Load[string](c, "k", cache.NoMaxAge)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestFileCache_ExpiryWithSleep(t *testing.T) {
	c := newTestCache(t)
	maxAge, err := cache.ParseMaxAge("10 ms")
	require.NoError(t, err)

	require.NoError(t, c.Put("testKey", "testValue"))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := cache.Load[string](c, "testKey", maxAge)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCache_CorruptedEntry(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, os.WriteFile(c.FilePath("bad"), []byte("{not json"), 0o600))

	_, ok, err := cache.Load[any](c, "bad", cache.NoMaxAge)
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, cache.ErrDeserialization)

	var de *cache.DeserializationError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "bad", de.Key)
	assert.Equal(t, c.FilePath("bad"), de.Path)
}

func TestFileCache_TypeMismatch(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("k", "a string"))

	_, _, err := cache.Load[int](c, "k", cache.NoMaxAge)
	assert.ErrorIs(t, err, cache.ErrDeserialization)
}

func TestFileCache_SerializationError(t *testing.T) {
	c := newTestCache(t)

	err := c.Put("chan", make(chan int))
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrSerialization)

	var se *cache.SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "chan", se.Key)

	has, err := c.Has("chan")
	require.NoError(t, err)
	assert.False(t, has, "nothing is written for unserializable values")
}

func TestFileCache_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	c := cache.New(cache.Config{Directory: dir})

	err := c.Put("k", "v")
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrStorage)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "Put must not create the directory")

	// Reads treat the missing directory as a miss.
	has, err := c.Has("k")
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, c.Delete("k"))
}

func TestFileCache_StorageErrors(t *testing.T) {
	// A regular file used as the directory makes every path component
	// lookup fail with ENOTDIR rather than not-found.
	notDir := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o600))
	c := cache.New(cache.Config{Directory: notDir})

	_, err := c.Has("k")
	assert.ErrorIs(t, err, cache.ErrStorage)

	err = c.Delete("k")
	assert.ErrorIs(t, err, cache.ErrStorage)

	var v string
	_, err = c.Get("k", cache.NoMaxAge, &v)
	assert.ErrorIs(t, err, cache.ErrStorage)

	err = c.Put("k", "v")
	require.Error(t, err)
	var se *cache.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "write", se.Op)
	assert.Equal(t, "k", se.Key)
}

func TestFileCache_NonRegularFile(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, os.Mkdir(c.FilePath("dir"), 0o750))

	has, err := c.Has("dir")
	require.NoError(t, err)
	assert.False(t, has)

	_, ok, err := cache.Load[any](c, "dir", cache.NoMaxAge)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCache_PrefixIsolation(t *testing.T) {
	dir := t.TempDir()
	a := cache.New(cache.Config{Directory: dir, Prefix: "a."})
	b := cache.New(cache.Config{Directory: dir, Prefix: "b."})

	require.NoError(t, a.Put("same", "from a"))
	require.NoError(t, b.Put("same", "from b"))
	assert.NotEqual(t, a.FilePath("same"), b.FilePath("same"))

	got, ok, err := cache.Load[string](a, "same", cache.NoMaxAge)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from a", got)

	got, ok, err = cache.Load[string](b, "same", cache.NoMaxAge)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from b", got)

	require.NoError(t, a.Delete("same"))
	has, err := b.Has("same")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFileCache_ListingMatchesOverlappingPrefixes(t *testing.T) {
	dir := t.TempDir()
	short := cache.New(cache.Config{Directory: dir, Prefix: "a"})
	long := cache.New(cache.Config{Directory: dir, Prefix: "ab"})
	other := cache.New(cache.Config{Directory: dir, Prefix: "c."})

	require.NoError(t, short.Put("x", 1))
	require.NoError(t, long.Put("x", 2))
	require.NoError(t, other.Put("x", 3))

	// File names cannot tell the key "bx" of prefix "a" from the key "x" of
	// prefix "ab", so the shorter prefix owns both.
	keys, err := short.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"bx", "x"}, keys)

	keys, err = long.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, keys)

	all, err := cache.New(cache.Config{Directory: dir}).Count()
	require.NoError(t, err)
	assert.Equal(t, 3, all, "the empty prefix matches every entry")

	removed, err := long.Clear()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	has, err := short.Has("x")
	require.NoError(t, err)
	assert.True(t, has, "a longer prefix never reaches a shorter one")

	require.NoError(t, long.Put("x", 2))
	removed, err = short.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	has, err = long.Has("x")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = other.Has("x")
	require.NoError(t, err)
	assert.True(t, has, "non-overlapping prefixes are untouched")
}

func TestFileCache_DirectoryChange(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	c := cache.New(cache.Config{Directory: first, Prefix: testPrefix})

	require.NoError(t, c.Put("k", "v1"))
	oldPath := c.FilePath("k")

	c.SetDirectory(second)
	assert.Equal(t, second, c.Config().Directory)

	has, err := c.Has("k")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, c.Put("k", "v2"))
	require.NoError(t, c.Delete("k"))

	data, err := os.ReadFile(oldPath)
	require.NoError(t, err)
	assert.JSONEq(t, `"v1"`, string(data))
}

func TestFileCache_Configure(t *testing.T) {
	c := cache.New(cache.Config{Directory: "/a", Prefix: "p."})

	cfg := c.Configure("", "")
	assert.Equal(t, cache.Config{Directory: "/a", Prefix: "p."}, cfg)

	cfg = c.Configure("q.", "")
	assert.Equal(t, cache.Config{Directory: "/a", Prefix: "q."}, cfg)

	cfg = c.Configure("", "/b")
	assert.Equal(t, cache.Config{Directory: "/b", Prefix: "q."}, cfg)
	assert.Equal(t, cfg, c.Config())
}

func TestDefaultConfig(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv(cache.EnvCacheDir, "/var/cache/app")
		t.Setenv(cache.EnvCachePrefix, "app.")
		assert.Equal(t, cache.Config{Directory: "/var/cache/app", Prefix: "app."}, cache.DefaultConfig())
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv(cache.EnvCacheDir, "")
		t.Setenv(cache.EnvCachePrefix, "")
		require.NoError(t, os.Unsetenv(cache.EnvCacheDir))
		require.NoError(t, os.Unsetenv(cache.EnvCachePrefix))

		cfg := cache.DefaultConfig()
		assert.Equal(t, os.TempDir(), cfg.Directory)
		assert.Empty(t, cfg.Prefix)
		assert.Equal(t, cfg, cache.NewDefault().Config())
	})
}

func TestFileCache_AtomicWrites(t *testing.T) {
	c := newTestCache(t, cache.WithAtomicWrites())

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Put("k", map[string]int{"n": i}))
	}

	got, ok, err := cache.Load[map[string]int](c, "k", cache.NoMaxAge)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"n": 4}, got)

	files, err := os.ReadDir(c.Config().Directory)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.False(t, strings.HasSuffix(files[0].Name(), ".tmp"))
}

func TestFileCache_KeyLockingConcurrentAccess(t *testing.T) {
	c := newTestCache(t, cache.WithKeyLocking())

	big := strings.Repeat("x", 256*1024)
	require.NoError(t, c.Put("shared", []string{big, "0"}))

	var wg sync.WaitGroup
	errCh := make(chan error, 64)
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := c.Put("shared", []string{big, string(rune('a' + i))}); err != nil {
				errCh <- err
			}
		}()
		go func() {
			defer wg.Done()
			v, ok, err := cache.Load[[]string](c, "shared", cache.NoMaxAge)
			if err != nil {
				errCh <- err
				return
			}
			if ok && len(v) != 2 {
				errCh <- errors.New("partial entry observed")
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		assert.NoError(t, err)
	}
}

func TestFileCache_Stat(t *testing.T) {
	written := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(t, cache.WithClock(func() time.Time { return written.Add(90 * time.Second) }))

	_, ok, err := c.Stat("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put("k", "abc"))
	setModTime(t, c, "k", written)

	info, ok, err := c.Stat("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k", info.Key)
	assert.Equal(t, c.FilePath("k"), info.Path)
	assert.Equal(t, int64(len(`"abc"`)), info.Size)
	assert.Equal(t, 90*time.Second, info.Age)
	assert.True(t, info.ModTime.Equal(written))
}

func TestFileCache_Maintenance(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	c := cache.New(cache.Config{Directory: dir, Prefix: testPrefix}, cache.WithClock(func() time.Time { return now }))
	other := cache.New(cache.Config{Directory: dir, Prefix: "other."})

	require.NoError(t, c.Put("b", "2"))
	require.NoError(t, c.Put("a", "1"))
	require.NoError(t, c.Put("old", "0"))
	require.NoError(t, other.Put("a", "x"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, testPrefix+"notes.txt"), []byte("x"), 0o600))
	setModTime(t, c, "old", now.Add(-2*time.Hour))

	keys, err := c.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "old"}, keys)

	count, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(`"1"`)*3), size)

	t.Run("Purge", func(t *testing.T) {
		removed, purgeErr := c.Purge(cache.NoMaxAge)
		require.NoError(t, purgeErr)
		assert.Zero(t, removed)

		removed, purgeErr = c.Purge(time.Hour)
		require.NoError(t, purgeErr)
		assert.Equal(t, 1, removed)

		keys, err = c.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, keys)
	})

	t.Run("Clear", func(t *testing.T) {
		removed, clearErr := c.Clear()
		require.NoError(t, clearErr)
		assert.Equal(t, 2, removed)

		count, err = c.Count()
		require.NoError(t, err)
		assert.Zero(t, count)

		has, hasErr := other.Has("a")
		require.NoError(t, hasErr)
		assert.True(t, has, "other prefixes are untouched")

		_, statErr := os.Stat(filepath.Join(dir, testPrefix+"notes.txt"))
		assert.NoError(t, statErr)
	})

	t.Run("missing directory", func(t *testing.T) {
		missing := cache.New(cache.Config{Directory: filepath.Join(dir, "nope")})
		_, listErr := missing.Keys()
		assert.ErrorIs(t, listErr, cache.ErrStorage)
	})
}
