package protection

import (
	"context"
	"sync"
	"time"

	"github.com/tokenized/logger"
	"github.com/tokenized/threads"
)

const (
	DefaultCacheTTL = 5 * time.Minute
)

// Cache holds the index answers for each address until they expire. Expired entries are treated as
// absent. Each write replaces one address's entry as a whole so readers never see a partial
// snapshot.
type Cache struct {
	ttl   time.Duration
	nowFn func() time.Time

	entries map[string]*cacheEntry

	// Incremented by Clear and Delete. Writes prepared under an older generation are dropped so an
	// invalidation is never undone by a call that was already running.
	generation uint64

	lock sync.RWMutex
}

type cacheEntry struct {
	snapshot *snapshot
	expires  time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Cache{
		ttl:     ttl,
		nowFn:   time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

// SetClock replaces the time source. It is used by tests to expire entries.
func (c *Cache) SetClock(nowFn func() time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.nowFn = nowFn
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// get returns the snapshot for the address and its expiry if it has not expired. The current
// generation is returned either way and must be passed to put or extend.
func (c *Cache) get(address string) (*snapshot, time.Time, uint64, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	entry, exists := c.entries[address]
	if !exists || !c.nowFn().Before(entry.expires) {
		return nil, time.Time{}, c.generation, false
	}

	return entry.snapshot, entry.expires, c.generation, true
}

// put stores a new snapshot that expires one TTL from now. It returns false without storing when
// the cache was invalidated after generation was read.
func (c *Cache) put(address string, snap *snapshot, generation uint64) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if generation != c.generation {
		return false
	}

	c.entries[address] = &cacheEntry{
		snapshot: snap,
		expires:  c.nowFn().Add(c.ttl),
	}
	return true
}

// extend replaces the snapshot with one that adds lookup results, keeping the original expiry so
// lookups never extend the life of the batch answers.
func (c *Cache) extend(address string, snap *snapshot, expires time.Time,
	generation uint64) bool {

	c.lock.Lock()
	defer c.lock.Unlock()

	if generation != c.generation {
		return false
	}

	c.entries[address] = &cacheEntry{
		snapshot: snap,
		expires:  expires,
	}
	return true
}

// Delete removes the entry for one address.
func (c *Cache) Delete(address string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.entries, address)
	c.generation++
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.generation++
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.nowFn()
	count := 0
	for address, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, address)
			count++
		}
	}

	return count
}

// NewSweepThread returns a thread that sweeps the cache at the frequency until it is stopped.
func (c *Cache) NewSweepThread(frequency time.Duration) *threads.PeriodicThread {
	return threads.NewPeriodicThread("Protection Cache Sweep", func(ctx context.Context) error {
		if count := c.Sweep(); count > 0 {
			logger.VerboseWithFields(ctx, []logger.Field{
				logger.Int("removed", count),
			}, "Swept protection cache")
		}
		return nil
	}, frequency)
}
