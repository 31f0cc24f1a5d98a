// Package cache is the append-only, categorized session cache (C4): a
// read-mostly log partitioned by (session_id, scene) and indexed within
// each partition by (category, resource). Reads return the most recent
// payload for a key; writes never overwrite. The key deliberately omits
// flow variant, so a context_analysis written by one analysis flow is
// reused by another.
package cache

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"chatcoach/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// partitionKey identifies one (session_id, scene) bucket.
type partitionKey struct {
	SessionID string
	Scene     int
}

// entryKey identifies one (category, resource) slot within a partition.
type entryKey struct {
	Category string
	Resource string
}

type bucket struct {
	mu      sync.RWMutex
	entries map[entryKey][]domain.CacheEvent
	lastHit time.Time
}

// Cache is the in-process store backing C4, modeled on the teacher's
// SessionManager double-checked-locking pattern applied to cache buckets
// instead of chat histories.
type Cache struct {
	mu      sync.RWMutex
	buckets map[partitionKey]*bucket
	ttl     time.Duration
	now     func() time.Time
}

// New creates a Cache whose entries are eligible for sweeping once idle
// for longer than ttl. A ttl of zero disables sweeping.
func New(ttl time.Duration) *Cache {
	return &Cache{
		buckets: make(map[partitionKey]*bucket),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) getBucket(sessionID string, scene int) *bucket {
	key := partitionKey{SessionID: sessionID, Scene: scene}

	c.mu.RLock()
	b, ok := c.buckets[key]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok = c.buckets[key]; ok {
		return b
	}
	b = &bucket{entries: make(map[entryKey][]domain.CacheEvent), lastHit: c.now()}
	c.buckets[key] = b
	return b
}

// GetLast returns the most recent payload for the key tuple, or nil if
// there is none.
func (c *Cache) GetLast(sessionID string, scene int, category, resource string) (jsoniter.RawMessage, bool) {
	b := c.getBucket(sessionID, scene)

	b.mu.Lock()
	b.lastHit = c.now()
	events := b.entries[entryKey{Category: category, Resource: resource}]
	b.mu.Unlock()

	if len(events) == 0 {
		return nil, false
	}
	return events[len(events)-1].Payload, true
}

// Append adds an event to the log. Writes are never rejected and never
// overwrite a prior entry; they only extend the log for that key.
func (c *Cache) Append(ctx context.Context, ev domain.CacheEvent) {
	b := c.getBucket(ev.SessionID, ev.Scene)
	key := entryKey{Category: ev.Category, Resource: ev.Resource}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastHit = c.now()
	b.entries[key] = append(b.entries[key], ev)
}

// Put builds a CacheEvent from a marshalable payload and appends it under
// the given key.
func (c *Cache) Put(ctx context.Context, sessionID string, scene int, category, resource string, payload any, model, strategy string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.Append(ctx, domain.CacheEvent{
		SessionID: sessionID,
		Scene:     scene,
		Category:  category,
		Resource:  resource,
		Payload:   raw,
		TS:        c.now().UnixMilli(),
		Model:     model,
		Strategy:  strategy,
	})
	return nil
}

// Sweep removes any partition whose bucket has been idle for longer than
// the configured TTL. Intended to run periodically from RunSweeper.
func (c *Cache) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, b := range c.buckets {
		b.mu.RLock()
		idle := b.lastHit.Before(cutoff)
		b.mu.RUnlock()
		if idle {
			delete(c.buckets, key)
			removed++
		}
	}
	return removed
}

// RunSweeper runs Sweep on the given interval until ctx is cancelled.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
