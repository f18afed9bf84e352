package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"token-detector/internal/domain"
)

// CachedList is a token list with the time it was fetched.
type CachedList struct {
	FetchedAt time.Time        `json:"fetched_at"`
	Data      domain.TokenList `json:"data"`
}

// Fresh reports whether the list is younger than threshold at now.
func (c CachedList) Fresh(now time.Time, threshold time.Duration) bool {
	return now.Sub(c.FetchedAt) < threshold
}

// Cache stores fetched token lists per chain.
type Cache interface {
	// Get returns the cached list for chainID. ok is false on a miss.
	Get(ctx context.Context, chainID string) (list CachedList, ok bool, err error)
	Put(ctx context.Context, chainID string, list CachedList) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.RWMutex
	lists map[string]CachedList
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{lists: make(map[string]CachedList)}
}

func (c *MemoryCache) Get(_ context.Context, chainID string) (CachedList, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list, ok := c.lists[domain.NormalizeChainID(chainID)]
	return list, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, chainID string, list CachedList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[domain.NormalizeChainID(chainID)] = list
	return nil
}

// RedisCache shares fetched lists between detector instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps client. Entries expire after ttl; zero keeps them forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "token-detector:tokenlist:", ttl: ttl}
}

func (c *RedisCache) key(chainID string) string {
	return c.prefix + domain.NormalizeChainID(chainID)
}

func (c *RedisCache) Get(ctx context.Context, chainID string) (CachedList, bool, error) {
	var list CachedList
	raw, err := c.client.Get(ctx, c.key(chainID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return list, false, nil
	}
	if err != nil {
		return list, false, fmt.Errorf("redis get %s: %w", c.key(chainID), err)
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return list, false, fmt.Errorf("decode cached token list: %w", err)
	}
	return list, true, nil
}

func (c *RedisCache) Put(ctx context.Context, chainID string, list CachedList) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode token list: %w", err)
	}
	if err := c.client.Set(ctx, c.key(chainID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key(chainID), err)
	}
	return nil
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
