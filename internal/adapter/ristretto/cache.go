// Package ristretto adapts dgraph-io/ristretto as the in-process tier of the
// response cache. Entries are serialized operation results costed by byte
// size, so one oversized payload cannot crowd out many small ones.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is the L1 response cache. Admission is probabilistic: a freshly Set
// response may be dropped under pressure, so callers treat it as a lookup
// accelerator, never as storage.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New sizes the cache by the total bytes of serialized responses it may hold.
func New(maxBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxBytes / 100 * 10, // admission counters for ~10x the expected entry count
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the response stored under key, if still admitted and unexpired.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a serialized response, costed at its byte length.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete drops the response stored under key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close stops the cache's internal goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
