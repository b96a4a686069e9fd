// Package cache is the client-side query cache. Entries are keyed by
// hierarchical Keys, carry the time they were last written and can be marked
// stale by prefix. Every fetch takes a sequence number for its key and only
// the newest issued sequence may commit, so slow responses never overwrite
// newer ones.
package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Entry is a snapshot of one cached query.
type Entry struct {
	Key         Key
	Value       any
	UpdatedAt   time.Time
	Invalidated bool

	// Seq is the sequence number of the fetch that wrote Value, 0 for direct writes.
	Seq uint64
}

// Cache stores query results. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries *gocache.Cache
	issued  map[string]uint64
	keys    map[string]Key
	next    uint64
	now     func() time.Time
}

// New creates an empty cache. Entries never expire on their own; staleness is
// decided by the reader's Policy.
func New() *Cache {
	return &Cache{
		entries: gocache.New(gocache.NoExpiration, 0),
		issued:  make(map[string]uint64),
		keys:    make(map[string]Key),
		now:     time.Now,
	}
}

// Lookup returns the entry stored under key.
func (c *Cache) Lookup(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key.id())
}

func (c *Cache) lookup(id string) (Entry, bool) {
	v, ok := c.entries.Get(id)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Set writes value directly, bypassing the sequence guard. In-flight fetches
// for key are superseded.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.id()
	c.next++
	c.issued[id] = c.next
	c.keys[id] = key
	c.entries.Set(id, Entry{Key: key, Value: value, UpdatedAt: c.now()}, gocache.NoExpiration)
}

// Begin issues the next sequence number for key. Pass it to Commit once the
// fetch completes.
func (c *Cache) Begin(key Key) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.id()
	c.next++
	c.issued[id] = c.next
	c.keys[id] = key
	return c.next
}

// Commit stores value if seq is still the newest sequence issued for key.
// It reports whether the value was stored.
func (c *Cache) Commit(key Key, seq uint64, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.id()
	if c.issued[id] != seq {
		return false
	}
	c.entries.Set(id, Entry{Key: key, Value: value, UpdatedAt: c.now(), Seq: seq}, gocache.NoExpiration)
	return true
}

// Invalidate marks every entry under prefix stale and supersedes fetches that
// are in flight for those keys. It returns the number of entries marked.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, key := range c.keys {
		if !key.HasPrefix(prefix) {
			continue
		}
		c.next++
		c.issued[id] = c.next
		if e, ok := c.lookup(id); ok {
			e.Invalidated = true
			c.entries.Set(id, e, gocache.NoExpiration)
			n++
		}
	}
	return n
}

// Reset evicts every entry under prefix so the next read fetches from
// scratch. Fetches in flight for those keys are superseded. It returns the
// number of entries evicted.
func (c *Cache) Reset(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, key := range c.keys {
		if !key.HasPrefix(prefix) {
			continue
		}
		if _, ok := c.lookup(id); ok {
			c.entries.Delete(id)
			n++
		}
		c.forget(id)
	}
	return n
}

// forget drops the bookkeeping for id. Sequence numbers only grow, so an
// in-flight fetch for id can no longer commit.
func (c *Cache) forget(id string) {
	delete(c.issued, id)
	delete(c.keys, id)
}

// Keys returns the keys of all stored entries.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.entries.Items()
	out := make([]Key, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(Entry).Key)
	}
	return out
}

// Clear drops every entry and in-flight sequence. Used on sign-out.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Flush()
	clear(c.issued)
	clear(c.keys)
}

// IsFresh reports whether the entry may be served without refetching under p.
func (c *Cache) IsFresh(e Entry, p Policy) bool {
	if e.Invalidated || p.StaleTime <= 0 {
		return false
	}
	return c.now().Sub(e.UpdatedAt) < p.StaleTime
}
