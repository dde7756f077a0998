package crmclient

import (
	"net/url"
	"slices"
	"sync"

	"github.com/lalith-99/crmhub/pkg/invalidation"
)

type cached struct {
	group invalidation.Group
	body  []byte
}

// cache holds raw GET bodies keyed by path and query. Entries are
// dropped by group, never by age; a stale read between a mutation and
// the next fetch is accepted.
//
// A read that was in flight while its group was invalidated carries a
// body from before the change. Every invalidation bumps the group's
// generation and every clear bumps the epoch, and put refuses a body
// whose stamp no longer matches, so such a read is returned to its
// caller but never cached.
type cache struct {
	mu      sync.RWMutex
	entries map[string]cached
	gens    map[invalidation.Group]uint64
	epoch   uint64
}

// stamp is the cache state a read started under.
type stamp struct {
	epoch, gen uint64
}

func newCache() *cache {
	return &cache{entries: map[string]cached{}, gens: map[invalidation.Group]uint64{}}
}

func cacheKey(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

func (c *cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.body, ok
}

func (c *cache) stamp(group invalidation.Group) stamp {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return stamp{epoch: c.epoch, gen: c.gens[group]}
}

// put stores body unless group was invalidated or the cache cleared
// since at was taken. It reports whether body was stored.
func (c *cache) put(key string, group invalidation.Group, body []byte, at stamp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if at != (stamp{epoch: c.epoch, gen: c.gens[group]}) {
		return false
	}
	c.entries[key] = cached{group: group, body: body}
	return true
}

// invalidate drops every entry in groups and returns how many it dropped.
func (c *cache) invalidate(groups ...invalidation.Group) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range groups {
		c.gens[g]++
	}
	n := 0
	for k, e := range c.entries {
		if slices.Contains(groups, e.group) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.epoch++
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
