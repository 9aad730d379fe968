package parser

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/Cyxuan0311/Paker-sub001/internal/clock"
)

// cacheEntry is one package's cached parse result.
type cacheEntry struct {
	Hash       string
	Deps       []string
	Inferred   bool
	LastParsed time.Time
	LastUsed   time.Time
	Frequency  float64
}

// ParseCache is an LRU+TTL cache of parse results keyed by package name:
// entries evict by LRU once the cache exceeds its configured capacity, or
// by TTL once an entry's last parse is older than the configured window.
type ParseCache struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	clock clock.Clock

	entries map[string]*cacheEntry
	order   *list.List
	elems   map[string]*list.Element
}

func newParseCache(capacity int, ttl time.Duration, c clock.Clock) *ParseCache {
	return &ParseCache{
		cap:     capacity,
		ttl:     ttl,
		clock:   c,
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		elems:   make(map[string]*list.Element),
	}
}

// get returns name's cache entry, pruning it first if it has aged out of
// the TTL window.
func (c *ParseCache) get(name string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.LastParsed) > c.ttl {
		c.removeLocked(name)
		return nil, false
	}
	cp := *e
	return &cp, true
}

// touch records a cache hit, bumping recency and the frequency score.
func (c *ParseCache) touch(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return
	}
	e.LastUsed = c.clock.Now()
	e.Frequency = e.Frequency*0.7 + 0.3
	if el, ok := c.elems[name]; ok {
		c.order.MoveToFront(el)
	}
}

// put inserts or replaces name's cache entry, evicting the least-recently-
// used entry if this insert pushes the cache over its configured cap.
func (c *ParseCache) put(name, hash string, deps []string, inferred bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if e, ok := c.entries[name]; ok {
		e.Hash = hash
		e.Deps = deps
		e.Inferred = inferred
		e.LastParsed = now
		e.LastUsed = now
		e.Frequency = e.Frequency*0.7 + 0.3
		if el, ok := c.elems[name]; ok {
			c.order.MoveToFront(el)
		}
		return
	}
	c.entries[name] = &cacheEntry{
		Hash: hash, Deps: deps, Inferred: inferred,
		LastParsed: now, LastUsed: now, Frequency: 0.3,
	}
	c.elems[name] = c.order.PushFront(name)
	for c.order.Len() > c.cap {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(string))
	}
}

// removeLocked deletes name's entry. Caller must hold c.mu.
func (c *ParseCache) removeLocked(name string) {
	delete(c.entries, name)
	if el, ok := c.elems[name]; ok {
		c.order.Remove(el)
		delete(c.elems, name)
	}
}

// Size returns the current number of cache entries.
func (c *ParseCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// exportAll returns a snapshot of every entry, keyed by package name, for
// persistence.
func (c *ParseCache) exportAll() map[string]cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]cacheEntry, len(c.entries))
	for k, e := range c.entries {
		out[k] = *e
	}
	return out
}

// importAll replaces the cache's contents with the given entries, ordering
// the LRU list by LastUsed (most recent first).
func (c *ParseCache) importAll(entries map[string]cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry, len(entries))
	c.order = list.New()
	c.elems = make(map[string]*list.Element)
	type named struct {
		name string
		e    cacheEntry
	}
	ordered := make([]named, 0, len(entries))
	for k, e := range entries {
		ordered = append(ordered, named{k, e})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].e.LastUsed.After(ordered[j].e.LastUsed)
	})
	for _, n := range ordered {
		e := n.e
		c.entries[n.name] = &e
		c.elems[n.name] = c.order.PushBack(n.name)
	}
}
