package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/kailas-cloud/martsearch/internal/db"
)

var _ Cache = (*Store)(nil)

// Value header bytes.
const (
	formatRaw  byte = 0
	formatZstd byte = 1
)

// kvStore is the consumer interface for the backing store (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Store is a Cache on top of a db key/value store (redis or leveldb). Keys are
// namespaced under a prefix so Clear only touches this cache's entries.
type Store struct {
	store    kvStore
	prefix   string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewStore creates a store-backed cache. When compress is set, values are zstd-compressed;
// reads accept both compressed and raw values.
func NewStore(s kvStore, prefix string, compress bool) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{store: s, prefix: prefix, compress: compress, enc: enc, dec: dec}, nil
}

// Get returns the value for key or ErrMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.store.Get(ctx, s.prefix+key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, ErrMiss
	}

	switch raw[0] {
	case formatRaw:
		return raw[1:], nil
	case formatZstd:
		out, err := s.dec.DecodeAll(raw[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("cache decompress %s: %w", key, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cache get %s: unknown value format %d", key, raw[0])
	}
}

// Put stores value under key with the given ttl.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var buf []byte
	if s.compress {
		buf = s.enc.EncodeAll(value, []byte{formatZstd})
	} else {
		buf = make([]byte, 0, len(value)+1)
		buf = append(buf, formatRaw)
		buf = append(buf, value...)
	}
	if err := s.store.SetWithTTL(ctx, s.prefix+key, buf, ttl); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.store.Del(ctx, s.prefix+key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every key under the prefix. The prefix is matched literally even
// when it contains glob metacharacters.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.store.Scan(ctx, db.EscapeGlob(s.prefix)+"*")
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	for _, k := range keys {
		if err := s.store.Del(ctx, k); err != nil {
			return fmt.Errorf("cache clear: %w", err)
		}
	}
	return nil
}

// Ping checks the backing store when it supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.store.(db.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
