package cache

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls staleness, polling and retries for a family of queries.
type Policy struct {
	// StaleTime is how long a committed value is served without refetching.
	// Zero means always refetch.
	StaleTime time.Duration

	// RefetchInterval is the polling period used by a Poller. Zero disables polling.
	RefetchInterval time.Duration

	// Retry is the number of additional attempts after a transient failure.
	Retry int

	// RetryDelay is the base delay between attempts; it doubles per attempt
	// up to maxRetryDelay.
	RetryDelay time.Duration
}

const maxRetryDelay = 30 * time.Second

// Default policies.
var (
	ItemsPolicy = Policy{
		StaleTime:       0,
		RefetchInterval: 5 * time.Second,
		Retry:           3,
		RetryDelay:      time.Second,
	}

	ConversationsPolicy = Policy{
		StaleTime:  60 * time.Second,
		Retry:      1,
		RetryDelay: time.Second,
	}

	ChatPolicy = Policy{
		StaleTime:  60 * time.Second,
		Retry:      1,
		RetryDelay: time.Second,
	}
)

// backOff returns the retry delays for p: RetryDelay doubling per attempt up
// to maxRetryDelay, without jitter.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
