// Package cache provides the key/value cache shared by both cache layers of a search:
// index pages and per-record dataset payloads.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss signals that a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a key/value store with per-entry TTL. Implementations must be safe for
// concurrent use and must never return an entry past its expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
