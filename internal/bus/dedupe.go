package bus

import (
	"sync"
	"time"
)

const (
	// DedupeTTL is how long a message ID stays blocked after admission.
	// Webhook retries and double-taps arrive well within this window.
	DedupeTTL = 4 * time.Minute

	// DedupeMaxEntries caps the guard's memory under burst load. Oldest
	// entries are evicted first, independent of TTL.
	DedupeMaxEntries = 1000
)

// Admitter is the admission-control gate consulted before a message is
// processed. Implementations must be safe for concurrent use. The shipped
// DedupeCache is process-local: duplicates across a restart boundary are an
// accepted limitation, and a shared-cache backing can be substituted here
// for multi-instance deployments.
type Admitter interface {
	// Admit returns true exactly once per id within the guard's TTL window.
	Admit(id string) bool
}

type dedupeEntry struct {
	id string
	at time.Time
}

// DedupeCache is a TTL + capacity bounded admission guard.
// Safe for concurrent use; the check-and-insert step is atomic.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]time.Time
	order   []dedupeEntry // insertion order for capacity eviction

	now func() time.Time // overridable in tests
}

// NewDedupeCache creates an admission guard with the given TTL and capacity.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	if ttl <= 0 {
		ttl = DedupeTTL
	}
	if max <= 0 {
		max = DedupeMaxEntries
	}
	return &DedupeCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Admit reports whether the id is seen for the first time within the TTL
// window. The first call returns true and records the id; subsequent calls
// return false until the window elapses or the entry is evicted for capacity.
func (c *DedupeCache) Admit(id string) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.prune(now)

	if at, ok := c.entries[id]; ok && now.Sub(at) < c.ttl {
		return false
	}

	c.entries[id] = now
	c.order = append(c.order, dedupeEntry{id: id, at: now})
	c.evict()
	return true
}

// Len returns the number of live entries (for diagnostics).
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune(c.now())
	return len(c.entries)
}

// prune drops expired entries from the head of the insertion order, then
// enforces the capacity cap by evicting the oldest live entries.
// Caller must hold c.mu.
func (c *DedupeCache) prune(now time.Time) {
	i := 0
	for ; i < len(c.order); i++ {
		e := c.order[i]
		at, ok := c.entries[e.id]
		if ok && at.Equal(e.at) && now.Sub(at) < c.ttl {
			break
		}
		// Expired, or superseded by a re-admission with a newer timestamp.
		if ok && at.Equal(e.at) {
			delete(c.entries, e.id)
		}
	}
	c.order = c.order[i:]
	c.evict()
}

// evict enforces the capacity cap, oldest first. Caller must hold c.mu.
func (c *DedupeCache) evict() {
	for len(c.entries) > c.max && len(c.order) > 0 {
		e := c.order[0]
		c.order = c.order[1:]
		if at, ok := c.entries[e.id]; ok && at.Equal(e.at) {
			delete(c.entries, e.id)
		}
	}
}
