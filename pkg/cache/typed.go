package cache

import "time"

// Load returns the value stored under key decoded as T. The boolean is false
// on a miss or a stale entry.
func Load[T any](c *FileCache, key string, maxAge time.Duration) (T, bool, error) {
	var v T
	ok, err := c.Get(key, maxAge, &v)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// Store writes value under key and returns it unchanged, so calls can be
// chained.
func Store[T any](c *FileCache, key string, value T) (T, error) {
	return value, c.Put(key, value)
}
