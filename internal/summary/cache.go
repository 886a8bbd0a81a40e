// Package summary holds the per-session summary cache that bridges a
// summarize call and the diary save that consumes it.
package summary

import (
	"context"
	"sync"
)

// Cache stores at most one pending summary per session.
type Cache interface {
	Get(ctx context.Context, sessionID string) (string, bool, error)
	Put(ctx context.Context, sessionID, summary string) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// MemoryCache is an in-process cache for local/dev use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[sessionID]
	return s, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, sessionID, summary string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = summary
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	return nil
}

func (c *MemoryCache) Close() error { return nil }
