// Package leveldb implements db.Store on a local goleveldb database. Redis-style
// expiry is emulated by prefixing every value with its deadline.
package leveldb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/kailas-cloud/martsearch/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const headerSize = 8

// Store is a file-backed key/value store with per-key expiry.
type Store struct {
	db  *leveldb.DB
	now func() time.Time
}

// Open opens (or creates) a database directory.
func Open(dir string) (*Store, error) {
	const op = "leveldb.Open"

	ldb, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{db: ldb, now: time.Now}, nil
}

// WithClock overrides the time source used for expiry (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if _, err := s.db.GetProperty("leveldb.stats"); err != nil {
		return &db.Error{Op: db.OpPing, Err: mapErr(err)}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady returns immediately: an opened database is ready.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// Get retrieves a value, treating expired entries as missing.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	raw, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: mapErr(err)}
	}

	value, expired, err := s.decode(raw)
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	if expired {
		_ = s.db.Delete([]byte(key), nil)
		return nil, db.ErrKeyNotFound
	}
	return value, nil
}

// SetWithTTL stores a value. A non-positive ttl stores without expiry.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var deadline int64
	if ttl > 0 {
		deadline = s.now().Add(ttl).UnixNano()
	}

	buf := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(deadline))
	copy(buf[headerSize:], value)

	if err := s.db.Put([]byte(key), buf, nil); err != nil {
		return &db.Error{Op: db.OpSet, Err: mapErr(err)}
	}
	return nil
}

// Del deletes a key. Deleting a missing key is not an error.
func (s *Store) Del(_ context.Context, key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return &db.Error{Op: db.OpDel, Err: mapErr(err)}
	}
	return nil
}

// Scan returns live keys matching a Redis-style glob pattern; '*' spans '/'.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := db.LiteralPrefix(pattern)
	prefixOnly := db.EscapeGlob(prefix)+"*" == pattern

	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		key := string(iter.Key())
		if !prefixOnly && !db.MatchGlob(pattern, key) {
			continue
		}
		if _, expired, err := s.decode(iter.Value()); err != nil || expired {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Error(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: mapErr(err)}
	}
	return keys, nil
}

func (s *Store) decode(raw []byte) ([]byte, bool, error) {
	if len(raw) < headerSize {
		return nil, false, fmt.Errorf("corrupt entry: %d bytes", len(raw))
	}
	deadline := int64(binary.BigEndian.Uint64(raw[:headerSize]))
	if deadline != 0 && s.now().UnixNano() >= deadline {
		return nil, true, nil
	}
	return raw[headerSize:], false, nil
}

func mapErr(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return db.ErrClosed
	}
	return err
}
