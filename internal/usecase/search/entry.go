package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/cache"
	"github.com/kailas-cloud/martsearch/internal/domain"
	"github.com/kailas-cloud/martsearch/internal/metrics"
)

// IndexKey is the cache key of one index page.
func IndexKey(query string, page int) string {
	return fmt.Sprintf("index:%s-page%d", query, page)
}

// DatasetKey is the cache key of one record's dataset payloads.
func DatasetKey(primaryKey string) string {
	return "dataset:" + primaryKey
}

// indexEntry is the cached form of an index page.
type indexEntry struct {
	Keys         []string                       `json:"keys"`
	Documents    map[string]domain.Document     `json:"documents"`
	Pagination   domain.Pagination              `json:"pagination"`
	Highlighting map[string]map[string][]string `json:"highlighting,omitempty"`
	CachedAt     time.Time                      `json:"cached_at"`
}

// recordEntry is the cached form of one record's dataset payloads.
type recordEntry struct {
	Datasets map[string]domain.Payload `json:"datasets"`
	CachedAt time.Time                 `json:"cached_at"`
}

// load reads and decodes a cache entry. Any failure is logged and reported as a miss.
func (s *Service) load(ctx context.Context, layer, key string, out any) bool {
	data, err := s.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		metrics.ObserveCacheLookup(layer, metrics.ResultMiss)
		return false
	case err != nil:
		metrics.ObserveCacheLookup(layer, metrics.ResultError)
		s.log(ctx).Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		metrics.ObserveCacheLookup(layer, metrics.ResultError)
		s.log(ctx).Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	metrics.ObserveCacheLookup(layer, metrics.ResultHit)
	return true
}

// store encodes and writes a cache entry. Failures are logged, never returned.
func (s *Service) store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log(ctx).Warn("cache entry unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Put(ctx, key, data, ttl); err != nil {
		s.log(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
