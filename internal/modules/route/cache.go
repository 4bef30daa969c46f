package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fleettrack/internal/types"
)

// Cache holds the last computed route per trip.
type Cache interface {
	Get(ctx context.Context, tripID types.ID) (Route, bool, error)
	Put(ctx context.Context, tripID types.ID, r Route) error
	Delete(ctx context.Context, tripID types.ID) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	routes map[types.ID]Route
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{routes: make(map[types.ID]Route)}
}

func (c *MemoryCache) Get(_ context.Context, tripID types.ID) (Route, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[tripID]
	if !ok {
		return Route{}, false, nil
	}
	return r.Clone(), true, nil
}

func (c *MemoryCache) Put(_ context.Context, tripID types.ID, r Route) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[tripID] = r.Clone()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, tripID types.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.routes, tripID)
	return nil
}

// RedisCache stores routes as JSON under route:trip:{id} so a restarted
// process does not refetch every active trip.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func routeKey(tripID types.ID) string {
	return "route:trip:" + string(tripID)
}

func (c *RedisCache) Get(ctx context.Context, tripID types.ID) (Route, bool, error) {
	b, err := c.rdb.Get(ctx, routeKey(tripID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Route{}, false, nil
	}
	if err != nil {
		return Route{}, false, fmt.Errorf("route cache get: %w", err)
	}
	var r Route
	if err := json.Unmarshal(b, &r); err != nil {
		return Route{}, false, fmt.Errorf("route cache decode: %w", err)
	}
	return r, true, nil
}

func (c *RedisCache) Put(ctx context.Context, tripID types.ID, r Route) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("route cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, routeKey(tripID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("route cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, tripID types.ID) error {
	if err := c.rdb.Del(ctx, routeKey(tripID)).Err(); err != nil {
		return fmt.Errorf("route cache del: %w", err)
	}
	return nil
}
