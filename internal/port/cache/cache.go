// Package cache defines the port for the runtime's response cache. Adapters
// supply the tiers (in-process, on-disk); the runtime stores serialized
// operation results under keys that embed the source file's mtime, so entries
// for stale file versions miss naturally instead of needing invalidation.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized responses by key. A miss is (nil, false, nil);
// errors are reserved for adapter failures, never for absent keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
