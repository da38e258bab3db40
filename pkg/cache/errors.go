package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match the kind sentinels via errors.Is.
var (
	// ErrNotFound signals that no entry exists for a key. It never escapes
	// Get, Has or Delete; it is returned by the CLI layer and Stat callers
	// that need a miss as an error value.
	ErrNotFound = errors.New("cache entry not found")

	// ErrInvalidDuration is returned when a max-age string cannot be parsed.
	ErrInvalidDuration = errors.New("invalid max age")

	// ErrStorage matches any *StorageError.
	ErrStorage = errors.New("cache storage failure")

	// ErrSerialization matches any *SerializationError.
	ErrSerialization = errors.New("cache value not serializable")

	// ErrDeserialization matches any *DeserializationError.
	ErrDeserialization = errors.New("cache entry not deserializable")
)

// StorageError reports a filesystem failure other than not-found.
type StorageError struct {
	Op   string
	Key  string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s %q (%s): %v", e.Op, e.Key, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// SerializationError reports a value that could not be encoded as JSON.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to marshal cache value for %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSerialization.
func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// DeserializationError reports an on-disk entry that is not valid JSON for
// the requested type. Get does not downgrade it to a miss.
type DeserializationError struct {
	Key  string
	Path string
	Err  error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("failed to unmarshal cache entry %q (%s): %v", e.Key, e.Path, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDeserialization.
func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }

func storageErr(op, key, path string, err error) error {
	return &StorageError{Op: op, Key: key, Path: path, Err: err}
}
