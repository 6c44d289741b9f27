package razy

import (
	"regexp"
	"sync"
)

// RouteCache is a read-mostly, process-wide cache of compiled route
// patterns, shared across the request-scoped distributors of a long-lived
// worker. Entries are keyed by distributor cache key (code + config
// mtime), so a config change naturally rolls to a fresh key; Invalidate
// drops stale generations eagerly when a watcher notices the change.
type RouteCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]*regexp.Regexp
}

// NewRouteCache creates an empty cache.
func NewRouteCache() *RouteCache {
	return &RouteCache{entries: make(map[string]map[string]*regexp.Regexp)}
}

// compile returns the compiled form of pattern under key, compiling and
// storing it on first use.
func (c *RouteCache) compile(key, pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	if generation, ok := c.entries[key]; ok {
		if re, ok := generation[pattern]; ok {
			c.mu.RUnlock()
			return re, nil
		}
	}
	c.mu.RUnlock()

	re, err := CompileRoute(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	generation, ok := c.entries[key]
	if !ok {
		generation = make(map[string]*regexp.Regexp)
		c.entries[key] = generation
	}
	generation[pattern] = re
	return re, nil
}

// Invalidate drops every generation whose key begins with the given
// distributor code.
func (c *RouteCache) Invalidate(distCode string) {
	prefix := distCode + "@"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// Reset clears the whole cache. Intended for request boundaries of
// long-lived workers that want a clean slate.
func (c *RouteCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]map[string]*regexp.Regexp)
}
