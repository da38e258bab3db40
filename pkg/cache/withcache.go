package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Producer computes a fresh value on a cache miss.
type Producer[T any] func(ctx context.Context) (T, error)

// Result is the outcome of WithCache.
type Result[T any] struct {
	// FromCache is true when Value was read from a fresh entry.
	FromCache bool

	// Value is the cached or freshly produced value.
	Value T

	// Elapsed is the wall-clock time spent inside WithCache.
	Elapsed time.Duration
}

type callOptions struct {
	verbose bool
}

// CallOption configures a single WithCache call.
type CallOption func(*callOptions)

// Verbose logs the hit or miss at info level instead of debug.
func Verbose() CallOption {
	return func(o *callOptions) { o.verbose = true }
}

// WithCache returns the entry for key when it is younger than maxAge.
// Otherwise it calls producer, stores the result and returns it. The
// producer is not called on a hit.
//
// Concurrent misses for the same entry on one FileCache share a single
// producer call; later callers receive the first caller's result. If the
// producer fails nothing is written. If storing fails, Value still holds the
// produced value alongside the error.
func WithCache[T any](
	ctx context.Context,
	c *FileCache,
	key string,
	producer Producer[T],
	maxAge time.Duration,
	opts ...CallOption,
) (Result[T], error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()

	cached, ok, err := Load[T](c, key, maxAge)
	if err != nil {
		return Result[T]{}, err
	}
	if ok {
		res := Result[T]{FromCache: true, Value: cached, Elapsed: time.Since(start)}
		c.logEvent(ctx, o.verbose, "cache hit", key, res.Elapsed)
		return res, nil
	}

	if err = ctx.Err(); err != nil {
		return Result[T]{}, err
	}

	v, err, _ := c.flights.Do(c.FilePath(key), func() (any, error) {
		fresh, prodErr := producer(ctx)
		if prodErr != nil {
			return fresh, prodErr
		}
		if putErr := c.Put(key, fresh); putErr != nil {
			return fresh, fmt.Errorf("storing fresh value: %w", putErr)
		}
		return fresh, nil
	})

	res := Result[T]{Elapsed: time.Since(start)}
	if fresh, isT := v.(T); isT {
		res.Value = fresh
	}
	if err != nil {
		return res, err
	}
	c.logEvent(ctx, o.verbose, "cache miss", key, res.Elapsed)
	return res, nil
}

func (c *FileCache) logEvent(ctx context.Context, verbose bool, msg, key string, elapsed time.Duration) {
	level := zerolog.DebugLevel
	if verbose {
		level = zerolog.InfoLevel
	}
	c.logger.WithLevel(level).
		Ctx(ctx).
		Str("key", key).
		Dur("elapsed", elapsed).
		Msg(msg)
}
