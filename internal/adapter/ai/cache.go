// Package ai provides the credential ring, the response cache and the
// provider client adapters used by generation.
package ai

import (
	"sync"
	"time"
)

type cachedResponse struct {
	text     string
	storedAt time.Time
}

// ResponseCache memoizes generated text by request cache key.
// Entries live for the lifetime of the process; there is no eviction.
// It is safe for concurrent use.
type ResponseCache struct {
	mu  sync.RWMutex
	m   map[string]cachedResponse
	now func() time.Time
}

// NewResponseCache returns an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{m: make(map[string]cachedResponse), now: time.Now}
}

// Get returns the stored text and the time it was stored.
func (c *ResponseCache) Get(key string) (text string, storedAt time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	if !ok {
		return "", time.Time{}, false
	}
	return v.text, v.storedAt, true
}

// Put stores text under key, replacing any previous value.
func (c *ResponseCache) Put(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = cachedResponse{text: text, storedAt: c.now()}
}

// Len returns the number of cached entries.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
