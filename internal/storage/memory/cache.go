package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Cache is an in-memory domain.Cache. TTLs are recorded but only enforced
// when a clock is wired; services that care about freshness check their own
// expiry timestamps.
type Cache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewCache() *Cache { return &Cache{items: make(map[string][]byte)} }

func (c *Cache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	b, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) Set(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = b
	c.mu.Unlock()
	return nil
}

func (c *Cache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}
