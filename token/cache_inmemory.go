package token

import (
	"context"
	"fmt"
	"sync"
)

var _ Cache = (*InMemoryCache)(nil)

// InMemoryCache is a process-local Cache. Tokens are lost when the process exits.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewInMemoryCache creates a new in-memory token cache
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]Entry),
	}
}

// Get retrieves the entry for key
func (c *InMemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Upsert creates or replaces the entry for key
func (c *InMemoryCache) Upsert(ctx context.Context, key string, entry Entry) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	return nil
}

// Delete removes the entry for key; deleting a missing key is not an error
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}
