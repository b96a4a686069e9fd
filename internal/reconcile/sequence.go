package reconcile

import (
	"context"
	"sync"
)

// Event reports one finished attempt.
type Event struct {
	Attempt int
	Total   int
	Err     error
}

// Result summarizes a finished sequence.
type Result struct {
	Attempts int
	Failures int

	// Stopped is nil when the schedule ran to the end, otherwise one of
	// ErrSuperseded, ErrCancelled or ErrClosed.
	Stopped error
}

// Sequence is one running forced-refresh schedule.
type Sequence struct {
	scope  string
	gen    uint64
	total  int
	cancel context.CancelCauseFunc
	events chan Event
	done   chan struct{}

	once   sync.Once
	result Result
}

// Scope returns the scope the sequence refreshes.
func (s *Sequence) Scope() string { return s.scope }

// Generation returns the sequence's generation number. Later sequences have
// higher numbers.
func (s *Sequence) Generation() uint64 { return s.gen }

// Total returns the number of scheduled attempts.
func (s *Sequence) Total() int { return s.total }

// Events delivers one event per completed attempt and is closed when the
// sequence stops.
func (s *Sequence) Events() <-chan Event { return s.events }

// Done is closed when the sequence stops.
func (s *Sequence) Done() <-chan struct{} { return s.done }

// Cancel stops the remaining attempts.
func (s *Sequence) Cancel() {
	s.cancel(ErrCancelled)
}

// Wait blocks until the sequence stops or ctx is done, and returns the result.
func (s *Sequence) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Sequence) finish(res Result) {
	s.once.Do(func() {
		s.result = res
		s.cancel(nil)
		close(s.events)
		close(s.done)
	})
}
