// Package contextcache holds assembled group knowledge context between
// messages so steady-state replies skip rebuilding it.
package contextcache

import (
	"time"

	"github.com/nextlevelbuilder/modbot/internal/cache"
)

const (
	DefaultTTL        = 90 * time.Second
	DefaultMaxEntries = 500
)

type entry struct {
	text    string
	version int64
}

// Stats describes cache occupancy for debug logging.
type Stats struct {
	Size    int  `json:"size"`
	Max     int  `json:"max"`
	Enabled bool `json:"enabled"`
}

// Cache maps a group id to its context text, tagged with the context version
// it was assembled from. A disabled Cache never hits and never stores.
type Cache struct {
	enabled bool
	lru     *cache.LRU[string, entry]
}

// New creates a context cache. ttl and maxEntries fall back to the defaults
// when not positive.
func New(enabled bool, ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{enabled: enabled, lru: cache.New[string, entry](maxEntries, ttl)}
}

// WithClock replaces the time source. Used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.lru.WithClock(now)
	return c
}

// Get returns the cached text for groupID if it is fresh and was stored
// for currentVersion. An entry from another version is dropped.
func (c *Cache) Get(groupID string, currentVersion int64) (string, bool) {
	if !c.enabled {
		return "", false
	}
	e, ok := c.lru.GetValid(groupID, func(e entry) bool { return e.version == currentVersion })
	if !ok {
		return "", false
	}
	return e.text, true
}

// Set stores text for groupID at version.
func (c *Cache) Set(groupID, text string, version int64) {
	if !c.enabled {
		return
	}
	c.lru.Set(groupID, entry{text: text, version: version})
}

// Stats reports current occupancy.
func (c *Cache) Stats() Stats {
	return Stats{Size: c.lru.Len(), Max: c.lru.Cap(), Enabled: c.enabled}
}
