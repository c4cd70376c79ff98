package traffic

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedSource wraps a Source with a short-lived LRU cache so the
// accounting tick does not hit storage once per device.
type CachedSource struct {
	source Source
	cache  *expirable.LRU[string, cachedActivity]
}

type cachedActivity struct {
	ts time.Time
	ok bool
}

func NewCachedSource(source Source, size int, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  expirable.NewLRU[string, cachedActivity](size, nil, ttl),
	}
}

// LastActivity returns the cached last-seen timestamp, consulting the
// underlying source on a miss. Negative answers are cached too.
func (c *CachedSource) LastActivity(deviceID string) (time.Time, bool) {
	if entry, ok := c.cache.Get(deviceID); ok {
		return entry.ts, entry.ok
	}

	ts, ok := c.source.LastActivity(deviceID)
	c.cache.Add(deviceID, cachedActivity{ts: ts, ok: ok})
	return ts, ok
}

// RecordActivity forwards the observation and refreshes the cache so a
// freshly active device is not reported idle from a stale entry.
func (c *CachedSource) RecordActivity(deviceID string, ts time.Time) {
	if rec, ok := c.source.(Recorder); ok {
		rec.RecordActivity(deviceID, ts)
	}
	c.cache.Add(deviceID, cachedActivity{ts: ts, ok: true})
}
