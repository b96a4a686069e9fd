// Package reconcile runs staggered forced-refresh sequences after mutations
// whose effects reach the backend's read path with a delay (ingestion,
// deletes). Each sequence runs one attempt per schedule offset. Starting a
// sequence for a scope supersedes the one already running for it.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/docchat/internal/metrics"
)

// Schedule is the list of attempt offsets, measured from the sequence start.
type Schedule []time.Duration

// Default schedules.
var (
	AfterMutation = Schedule{
		100 * time.Millisecond,
		500 * time.Millisecond,
		800 * time.Millisecond,
		1500 * time.Millisecond,
		3 * time.Second,
		5 * time.Second,
	}

	OnDialogClose = Schedule{
		100 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
	}
)

// Errors reported as a sequence's stop cause.
var (
	ErrSuperseded = errors.New("superseded by a newer sequence")
	ErrCancelled  = errors.New("sequence cancelled")
	ErrClosed     = errors.New("reconciler closed")
)

// Attempt performs one refresh. n is the 1-based attempt number.
type Attempt func(ctx context.Context, n int) error

// Notice reports a sequence whose every attempt failed.
type Notice struct {
	Scope    string
	Attempts int
	Err      error
	At       time.Time
}

// Reconciler owns the running sequences.
type Reconciler struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelCauseFunc
	gen     uint64
	running map[string]*Sequence
	notices []Notice
	wg      sync.WaitGroup

	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a reconciler. Both arguments may be nil.
func New(logger *slog.Logger, collector *metrics.Collector) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Reconciler{
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*Sequence),
		metrics: collector,
		logger:  logger,
	}
}

// Start runs attempt at every offset of schedule in a new goroutine. A
// sequence already running for scope is cancelled first.
func (r *Reconciler) Start(scope string, schedule Schedule, attempt Attempt) *Sequence {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	ctx, cancel := context.WithCancelCause(r.ctx)
	seq := &Sequence{
		scope:  scope,
		gen:    r.gen,
		total:  len(schedule),
		cancel: cancel,
		events: make(chan Event, len(schedule)),
		done:   make(chan struct{}),
	}

	if prev, ok := r.running[scope]; ok {
		prev.cancel(ErrSuperseded)
	}
	r.running[scope] = seq

	if r.ctx.Err() != nil {
		seq.finish(Result{Stopped: ErrClosed})
		delete(r.running, scope)
		return seq
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, seq, schedule, attempt)
	}()
	return seq
}

// Running reports whether a sequence is active for scope.
func (r *Reconciler) Running(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[scope]
	return ok
}

// TakeNotice pops the oldest pending failure notice.
func (r *Reconciler) TakeNotice() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.notices) == 0 {
		return Notice{}, false
	}
	n := r.notices[0]
	r.notices = r.notices[1:]
	return n, true
}

// CancelAll cancels every running sequence without closing the reconciler.
func (r *Reconciler) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, seq := range r.running {
		seq.cancel(ErrCancelled)
	}
}

// Close cancels every running sequence and waits for them to stop. Start
// after Close returns an already finished sequence.
func (r *Reconciler) Close() {
	r.cancel(ErrClosed)
	r.wg.Wait()
}

func (r *Reconciler) run(ctx context.Context, seq *Sequence, schedule Schedule, attempt Attempt) {
	logger := r.logger.With("scope", seq.scope, "generation", seq.gen)
	start := time.Now()

	var res Result
	var lastErr error
	for i, offset := range schedule {
		if !sleepUntil(ctx, start.Add(offset)) {
			res.Stopped = context.Cause(ctx)
			break
		}

		n := i + 1
		attemptStart := time.Now()
		err := attempt(ctx, n)
		r.metrics.Record(metrics.OpReconcileAttempt, time.Since(attemptStart), err)
		res.Attempts++

		if ctx.Err() != nil {
			res.Stopped = context.Cause(ctx)
			break
		}
		if err != nil {
			res.Failures++
			lastErr = err
			logger.Warn("refresh attempt failed", "attempt", n, "of", len(schedule), "error", err)
		} else {
			logger.Debug("refresh attempt succeeded", "attempt", n, "of", len(schedule))
		}
		seq.events <- Event{Attempt: n, Total: len(schedule), Err: err}
	}

	r.mu.Lock()
	if r.running[seq.scope] == seq {
		delete(r.running, seq.scope)
	}
	if res.Stopped == nil && res.Attempts > 0 && res.Failures == res.Attempts {
		r.notices = append(r.notices, Notice{Scope: seq.scope, Attempts: res.Attempts, Err: lastErr, At: time.Now()})
		logger.Warn("refresh sequence failed", "attempts", res.Attempts, "error", lastErr)
	}
	r.mu.Unlock()

	seq.finish(res)
}

func sleepUntil(ctx context.Context, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
