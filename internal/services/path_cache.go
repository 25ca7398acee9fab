package services

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

// PathCache memoizes path queries, bounded by entry count with LRU eviction
// and a TTL. Any graph write touching an entity id invalidates every entry
// whose endpoints or cached paths involve that id. One mutex owns all state.
type PathCache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	order      *list.List
	entries    map[string]*list.Element
	now        func() time.Time
}

type pathCacheEntry struct {
	key       string
	result    domain.PathResult
	entityIDs map[string]bool
	expiresAt time.Time
}

func NewPathCache(maxEntries int, ttl time.Duration) *PathCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PathCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

// PathCacheKey digests a path query. Relation filters are order-insensitive.
func PathCacheKey(startID, endID string, maxHops int, filters []domain.RelationType) string {
	names := make([]string, 0, len(filters))
	for _, f := range filters {
		names = append(names, string(f))
	}
	sort.Strings(names)
	digest := sha256.Sum256([]byte(strings.Join(names, ",")))
	return fmt.Sprintf("%s|%s|%d|%s", startID, endID, maxHops, hex.EncodeToString(digest[:8]))
}

// Get returns a copy-safe cached result. Expired entries are dropped on read.
func (c *PathCache) Get(key string) (*domain.PathResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*pathCacheEntry)
	if c.now().After(entry.expiresAt) {
		c.remove(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	result := entry.result
	return &result, true
}

func (c *PathCache) Put(key string, result domain.PathResult) {
	ids := map[string]bool{result.Start: true, result.End: true}
	for _, p := range result.Paths {
		for _, n := range p.Nodes {
			ids[n.ID] = true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	c.entries[key] = c.order.PushFront(&pathCacheEntry{
		key:       key,
		result:    result,
		entityIDs: ids,
		expiresAt: c.now().Add(c.ttl),
	})
	for c.order.Len() > c.maxEntries {
		c.remove(c.order.Back())
	}
}

// InvalidateEntity drops every entry involving the id.
func (c *PathCache) InvalidateEntity(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		if el.Value.(*pathCacheEntry).entityIDs[id] {
			stale = append(stale, el)
		}
	}
	for _, el := range stale {
		c.remove(el)
	}
}

func (c *PathCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

func (c *PathCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// remove must run under the mutex.
func (c *PathCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*pathCacheEntry).key)
}
