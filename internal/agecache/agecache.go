// Package agecache memoizes listing-age computations across scan cycles.
package agecache

import (
	"sync"
	"time"
)

// ParseFunc resolves a raw date string at a given moment into minutes
// elapsed since publication.
type ParseFunc func(raw string, now time.Time) float64

type entry struct {
	minutesAgo float64
	checkedAt  time.Time
}

// Cache keeps one age per listing id, valid for a fixed window after
// computation. Within the window the stored age is projected forward by
// elapsed wall time, so estimates only grow between recomputations.
// Eviction is insertion-ordered: the oldest-inserted id leaves first.
type Cache struct {
	parse      ParseFunc
	maxEntries int
	validity   time.Duration

	mu      sync.Mutex
	entries map[string]entry
	order   []string
}

// New builds a cache over parse, holding at most maxEntries ids whose
// entries stay reusable for validity after computation.
func New(parse ParseFunc, maxEntries int, validity time.Duration) *Cache {
	return &Cache{
		parse:      parse,
		maxEntries: maxEntries,
		validity:   validity,
		entries:    make(map[string]entry),
	}
}

// Age returns minutes since publication for the listing, reusing a valid
// cached value or recomputing from rawDate. Concurrent calls on the same
// id may recompute redundantly; last writer wins.
func (c *Cache) Age(id, rawDate string, now time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		elapsed := now.Sub(e.checkedAt)
		if elapsed < c.validity {
			return e.minutesAgo + elapsed.Minutes()
		}
	}

	minutes := c.parse(rawDate, now)
	if _, ok := c.entries[id]; !ok {
		c.order = append(c.order, id)
	}
	c.entries[id] = entry{minutesAgo: minutes, checkedAt: now}

	if len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	return minutes
}

// Len reports the current number of cached ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
