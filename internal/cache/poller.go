package cache

import (
	"context"
	"errors"
	"time"
)

// Poller refetches one query on start, every RefetchInterval and whenever
// Trigger is called, until its context is cancelled.
type Poller[T any] struct {
	cache    *Cache
	key      Key
	policy   Policy
	fetch    FetchFunc[T]
	onResult func(T, error)
	trigger  chan struct{}
}

// NewPoller creates a poller. onResult is called from the polling goroutine
// after every fetch that was not superseded.
func NewPoller[T any](c *Cache, key Key, p Policy, fetch FetchFunc[T], onResult func(T, error)) *Poller[T] {
	return &Poller[T]{
		cache:    c,
		key:      key,
		policy:   p,
		fetch:    fetch,
		onResult: onResult,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate refetch. Calls made while one is already
// pending are coalesced.
func (p *Poller[T]) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done.
func (p *Poller[T]) Run(ctx context.Context) {
	p.deliver(Fetch(ctx, p.cache, p.key, p.policy, p.fetch))

	var tick <-chan time.Time
	if p.policy.RefetchInterval > 0 {
		ticker := time.NewTicker(p.policy.RefetchInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-p.trigger:
		}
		v, err := Refetch(ctx, p.cache, p.key, p.policy, p.fetch)
		if ctx.Err() != nil {
			return
		}
		p.deliver(v, err)
	}
}

func (p *Poller[T]) deliver(v T, err error) {
	if errors.Is(err, ErrSuperseded) {
		return
	}
	p.onResult(v, err)
}
