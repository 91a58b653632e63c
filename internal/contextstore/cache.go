package contextstore

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arborlabs/arbor/internal/store"
)

// ttlCache holds recent window reads for a few seconds so a burst of
// handlers hitting the same channel shares one query. Entries are keyed
// by (channel, limit, exclude) and dropped wholesale on any write to the
// channel.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	rows    []store.Message
	expires time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(channelID string, limit int, excludeID string) string {
	return fmt.Sprintf("%s|%d|%s", channelID, limit, excludeID)
}

func (c *ttlCache) get(key string) ([]store.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.rows, true
}

func (c *ttlCache) put(key string, rows []store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{rows: rows, expires: time.Now().Add(c.ttl)}
}

// invalidateChannel removes every cached window for the channel.
func (c *ttlCache) invalidateChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := channelID + "|"
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}
