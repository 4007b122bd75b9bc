package guildsync

import (
	"strings"
	"sync"
)

// signingKeyCache holds derived signing keys. A key only depends on the
// secret, the scope date and the region, so an entry is reused until the
// date rolls over. Safe for concurrent use.
type signingKeyCache struct {
	mu     sync.RWMutex
	values map[string]cachedKey
}

type cachedKey struct {
	date string
	key  []byte
}

func newSigningKeyCache() *signingKeyCache {
	return &signingKeyCache{values: make(map[string]cachedKey)}
}

func cacheKey(accessKey, region string) string {
	var b strings.Builder
	b.Grow(len(accessKey) + len(region) + 1)
	b.WriteString(accessKey)
	b.WriteByte('/')
	b.WriteString(region)
	return b.String()
}

func (c *signingKeyCache) get(accessKey, region, date string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.values[cacheKey(accessKey, region)]
	if !ok || entry.date != date {
		return nil, false
	}
	return entry.key, true
}

func (c *signingKeyCache) set(accessKey, region, date string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[cacheKey(accessKey, region)] = cachedKey{date: date, key: key}
}
