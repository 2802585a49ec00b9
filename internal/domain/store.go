package domain

import (
	"context"
	"time"
)

// Store defines the key-value operations the caching fetcher relies on
type Store interface {
	// Get returns the value stored under key. found is false when the key
	// is absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// SetWithExpiry stores value under key for ttl
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr atomically increments the integer under key, creating it at 1
	Incr(ctx context.Context, key string) (int64, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	Close() error
}
