package services

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

// EmbedCache is the content-addressed vector cache behind the embedding
// service. Keys are digests, never raw text.
type EmbedCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key string, vec []float32)
	Clear(ctx context.Context)
}

type lruEmbedCache struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	entries    map[string]*list.Element
}

type lruEmbedEntry struct {
	key string
	vec []float32
}

// NewLRUEmbedCache is the in-process default backend.
func NewLRUEmbedCache(maxEntries int) EmbedCache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &lruEmbedCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruEmbedCache) Get(_ context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEmbedEntry).vec, true
}

func (c *lruEmbedCache) Put(_ context.Context, key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*lruEmbedEntry).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&lruEmbedEntry{key: key, vec: vec})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEmbedEntry).key)
	}
}

func (c *lruEmbedCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

const redisEmbedKeyPrefix = "scigraph:embed:"

type redisEmbedCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

// NewRedisEmbedCache shares one cache across processes. Failures degrade to
// cache misses, never to errors.
func NewRedisEmbedCache(rdb *redis.Client, ttl time.Duration, baseLog *logger.Logger) EmbedCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisEmbedCache{rdb: rdb, ttl: ttl, log: baseLog.With("service", "RedisEmbedCache")}
}

func (c *redisEmbedCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, redisEmbedKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("embed cache read failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *redisEmbedCache) Put(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisEmbedKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.log.Debug("embed cache write failed", "error", err)
	}
}

func (c *redisEmbedCache) Clear(ctx context.Context) {
	iter := c.rdb.Scan(ctx, 0, redisEmbedKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.rdb.Del(ctx, iter.Val()).Err()
	}
}
