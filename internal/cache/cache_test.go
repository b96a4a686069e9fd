package cache

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyHasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		key    Key
		prefix Key
		want   bool
	}{
		{"equal", NewKey("items", "list"), NewKey("items", "list"), true},
		{"ancestor", NewKey("items", "conversation", "c1"), NewKey("items"), true},
		{"empty prefix", NewKey("items"), NewKey(), true},
		{"sibling", NewKey("items", "detail", "i1"), NewKey("items", "list"), false},
		{"longer prefix", NewKey("items"), NewKey("items", "list"), false},
		{"segment is not string prefix", NewKey("itemsx"), NewKey("items"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.HasPrefix(tt.prefix))
		})
	}
}

func TestKeyWithDoesNotAlias(t *testing.T) {
	base := make(Key, 1, 4)
	base[0] = "items"

	a := base.With("a")
	b := base.With("b")
	assert.Equal(t, NewKey("items", "a"), a)
	assert.Equal(t, NewKey("items", "b"), b)
}

func TestFiltersCanonical(t *testing.T) {
	a := Filters(map[string]string{"search": "q", "conversation_id": "c1", "mime_type": ""})
	b := Filters(map[string]string{"conversation_id": "c1", "search": "q"})
	assert.Equal(t, "conversation_id=c1&search=q", a)
	assert.Equal(t, a, b)
}

func TestInvalidateHierarchy(t *testing.T) {
	c := New()
	c.Set(NewKey("items", "list"), 1)
	c.Set(NewKey("items", "conversation", "c1"), 2)
	c.Set(NewKey("items", "conversation", "c2"), 3)
	c.Set(NewKey("conversations", "list"), 4)

	n := c.Invalidate(NewKey("items"))
	assert.Equal(t, 3, n)

	for _, key := range []Key{
		NewKey("items", "list"),
		NewKey("items", "conversation", "c1"),
		NewKey("items", "conversation", "c2"),
	} {
		e, ok := c.Lookup(key)
		require.True(t, ok, key.String())
		assert.True(t, e.Invalidated, key.String())
	}

	e, ok := c.Lookup(NewKey("conversations", "list"))
	require.True(t, ok)
	assert.False(t, e.Invalidated)
}

func TestResetEvicts(t *testing.T) {
	c := New()
	c.Set(NewKey("items", "conversation", "c1"), 1)
	c.Set(NewKey("items", "conversation", "c2"), 2)

	assert.Equal(t, 1, c.Reset(NewKey("items", "conversation", "c1")))

	_, ok := c.Lookup(NewKey("items", "conversation", "c1"))
	assert.False(t, ok)
	_, ok = c.Lookup(NewKey("items", "conversation", "c2"))
	assert.True(t, ok)
	assert.Len(t, c.Keys(), 1)
}

func TestCommitOnlyNewestSequence(t *testing.T) {
	c := New()
	key := NewKey("items", "list")

	older := c.Begin(key)
	newer := c.Begin(key)

	require.True(t, c.Commit(key, newer, "new"))
	assert.False(t, c.Commit(key, older, "old"))

	e, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "new", e.Value)
}

func TestInvalidateSupersedesInFlight(t *testing.T) {
	c := New()
	key := NewKey("items", "list")

	seq := c.Begin(key)
	c.Invalidate(NewKey("items"))
	assert.False(t, c.Commit(key, seq, "pre-mutation"))
}

func TestRefetchOutOfOrderReturnsNewest(t *testing.T) {
	c := New()
	key := NewKey("items", "conversation", "c1")

	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})

	var wg sync.WaitGroup
	var slowResult string
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowResult, _ = Refetch(context.Background(), c, key, Policy{}, func(context.Context) (string, error) {
			close(slowStarted)
			<-releaseSlow
			return "slow", nil
		})
	}()

	<-slowStarted
	fast, err := Refetch(context.Background(), c, key, Policy{}, func(context.Context) (string, error) {
		return "fast", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", fast)

	close(releaseSlow)
	wg.Wait()

	assert.Equal(t, "fast", slowResult)
	e, _ := c.Lookup(key)
	assert.Equal(t, "fast", e.Value)
}

func TestFetchServesFreshValue(t *testing.T) {
	c := New()
	key := NewKey("conversations", "list")
	var calls atomic.Int32
	fn := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
	p := Policy{StaleTime: time.Minute}

	v, err := Fetch(context.Background(), c, key, p, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = Fetch(context.Background(), c, key, p, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "fresh value served from cache")

	c.Invalidate(NewKey("conversations"))
	v, err = Fetch(context.Background(), c, key, p, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "invalidated entry refetched")
}

func TestFetchZeroStaleTimeAlwaysRefetches(t *testing.T) {
	c := New()
	key := NewKey("items", "list")
	var calls atomic.Int32
	fn := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	for range 3 {
		_, err := Fetch(context.Background(), c, key, Policy{}, fn)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchStaleAfterTime(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }
	key := NewKey("chat", "history", "c1", "20")
	p := Policy{StaleTime: time.Minute}

	c.Set(key, "cached")
	e, _ := c.Lookup(key)
	assert.True(t, c.IsFresh(e, p))

	now = now.Add(2 * time.Minute)
	assert.False(t, c.IsFresh(e, p))
}

func TestFetchRetry(t *testing.T) {
	transient := &client.APIError{Status: http.StatusServiceUnavailable, Message: "unavailable"}
	permanent := &client.APIError{Status: http.StatusNotFound, Message: "not found"}

	tests := []struct {
		name      string
		failures  []error
		retry     int
		wantCalls int32
		wantErr   error
	}{
		{name: "recovers after transient", failures: []error{transient, transient}, retry: 3, wantCalls: 3},
		{name: "gives up after retries", failures: []error{transient, transient, transient}, retry: 1, wantCalls: 2, wantErr: transient},
		{name: "no retry on 4xx", failures: []error{permanent}, retry: 3, wantCalls: 1, wantErr: permanent},
		{name: "no retry on expired", failures: []error{client.ErrAuthenticationExpired}, retry: 3, wantCalls: 1, wantErr: client.ErrAuthenticationExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			fn := func(context.Context) (string, error) {
				n := int(calls.Add(1))
				if n <= len(tt.failures) {
					return "", tt.failures[n-1]
				}
				return "ok", nil
			}

			v, err := Fetch(context.Background(), New(), NewKey("k"), Policy{Retry: tt.retry, RetryDelay: time.Millisecond}, fn)
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", v)
		})
	}
}

func TestFetchRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(context.Context) (string, error) {
		cancel()
		return "", &client.NetworkError{Op: "GET /", Err: errors.New("refused")}
	}

	_, err := Fetch(ctx, New(), NewKey("k"), Policy{Retry: 3, RetryDelay: time.Hour}, fn)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyDelayCapped(t *testing.T) {
	b := Policy{RetryDelay: time.Second}.backOff()
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	for range 10 {
		b.NextBackOff()
	}
	assert.Equal(t, maxRetryDelay, b.NextBackOff())
}

func TestClearSupersedesInFlight(t *testing.T) {
	c := New()
	key := NewKey("items", "list")
	c.Set(key, 1)
	seq := c.Begin(key)

	c.Clear()
	assert.Empty(t, c.Keys())
	assert.False(t, c.Commit(key, seq, 2))
}

func TestRefetchSupersededByInvalidate(t *testing.T) {
	c := New()
	key := NewKey("items", "conversation", "c1")

	_, err := Refetch(context.Background(), c, key, Policy{}, func(context.Context) (string, error) {
		c.Invalidate(NewKey("items"))
		return "pre-mutation", nil
	})
	assert.ErrorIs(t, err, ErrSuperseded)

	_, ok := c.Lookup(key)
	assert.False(t, ok)
}

func TestFetchRepeatsSupersededFetch(t *testing.T) {
	c := New()
	key := NewKey("items", "conversation", "c1")
	var calls atomic.Int32

	v, err := Fetch(context.Background(), c, key, Policy{}, func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			c.Invalidate(NewKey("items"))
			return "pre-mutation", nil
		}
		return "post-mutation", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "post-mutation", v)
	assert.Equal(t, int32(2), calls.Load())

	e, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "post-mutation", e.Value)
}

func TestResetAndClearPruneBookkeeping(t *testing.T) {
	c := New()
	for _, id := range []string{"a", "b", "c"} {
		c.Set(NewKey("items", "list", id), id)
	}
	c.Set(NewKey("conversations", "list"), "convs")
	inFlight := c.Begin(NewKey("items", "list", "a"))

	assert.Equal(t, 3, c.Reset(NewKey("items")))
	assert.Len(t, c.keys, 1)
	assert.Len(t, c.issued, 1)
	assert.False(t, c.Commit(NewKey("items", "list", "a"), inFlight, "late"))

	c.Clear()
	assert.Empty(t, c.keys)
	assert.Empty(t, c.issued)
}
