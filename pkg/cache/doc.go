// Package cache provides a file-backed key-value cache with age-based expiry,
// intended for memoizing expensive fetches to disk.
//
// Each key is stored as one JSON file at {directory}/{prefix}{key}.cache.json.
// Key features:
//   - The file's modification time is the entry's write time; there is no envelope
//   - Expiry is decided per read by a caller-supplied max age; stale files stay on disk
//   - Max ages are given as milliseconds, "<number> <unit>" strings, or an AgeSpec
//   - WithCache wraps a producer with read-through/write-through semantics
//
// Keys are not escaped. Callers must supply keys and prefixes that are safe to
// embed in a file name.
package cache
