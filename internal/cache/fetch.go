package cache

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/raphaelgruber/docchat/internal/client"
)

// FetchFunc loads the value for one query.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// ErrSuperseded is returned by Refetch when the key was invalidated, reset or
// refetched while the fetch was in flight and no newer value has committed.
// The fetched value may predate a mutation and is dropped.
var ErrSuperseded = errors.New("fetch superseded")

// Fetch returns the cached value for key when it is fresh under p and
// otherwise loads it with fn, retrying transient failures.
//
// If a newer fetch for the same key commits first, the newer value is
// returned. A fetch superseded without a newer value is repeated once.
func Fetch[T any](ctx context.Context, c *Cache, key Key, p Policy, fn FetchFunc[T]) (T, error) {
	if e, ok := c.Lookup(key); ok && c.IsFresh(e, p) {
		if v, ok := e.Value.(T); ok {
			return v, nil
		}
	}
	v, err := Refetch(ctx, c, key, p, fn)
	if errors.Is(err, ErrSuperseded) {
		return Refetch(ctx, c, key, p, fn)
	}
	return v, err
}

// Refetch loads key with fn regardless of freshness. It returns ErrSuperseded
// when its result lost to a later Begin, Invalidate, Reset or Clear.
func Refetch[T any](ctx context.Context, c *Cache, key Key, p Policy, fn FetchFunc[T]) (T, error) {
	var zero T

	seq := c.Begin(key)
	v, err := withRetry(ctx, p, fn)
	if err != nil {
		return zero, err
	}

	if c.Commit(key, seq, v) {
		return v, nil
	}
	if e, ok := c.Lookup(key); ok && e.Seq > seq {
		if newer, ok := e.Value.(T); ok {
			return newer, nil
		}
	}
	return zero, ErrSuperseded
}

func withRetry[T any](ctx context.Context, p Policy, fn FetchFunc[T]) (T, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(max(p.Retry, 0))), ctx)
	return backoff.RetryWithData(func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !client.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b)
}
