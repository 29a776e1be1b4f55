// Package store is the durable per-peer key-value layer described in
// SPEC_FULL.md §4.5: an embedded ordered store with string-prefixed
// namespaces, range scans, and a create-once guard for the keys whose
// invariant requires it.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/luxfi/validation/errs"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// ErrAlreadyExists is returned by CreateOnce when the key is already
// present; it is also an errs.ErrConcurrency, since create-once is this
// package's OnceCell-equivalent.
var ErrAlreadyExists = errs.Concurrency("store: key already exists")

// Reader reads from the store.
type Reader interface {
	Has(key string) (bool, error)
	Get(key string) ([]byte, error)
	ScanPrefix(prefix string, fn func(key string, value []byte) (more bool, err error)) error
}

// Writer writes to the store.
type Writer interface {
	Put(key string, value []byte) error
	Delete(key string) error
	// CreateOnce writes value only if key is absent. It reports whether the
	// write happened; ErrAlreadyExists is returned (not just created=false)
	// so callers can distinguish "lost the race" from a plain write error.
	CreateOnce(key string, value []byte) error
}

// Store is the full read/write/close surface each peer keeps open for its
// lifetime.
type Store interface {
	Reader
	Writer
	Close() error
}

// pebbleStore implements Store over a cockroachdb/pebble instance. pebble
// gives us sorted iteration for the namespace range scans in SPEC_FULL.md
// §4.5 without a separate index.
type pebbleStore struct {
	// mu serializes the read-modify-write and create-once sequences the
	// spec requires; Handler invocations are already serialized by the
	// caller (SPEC_FULL.md §5), but the Client's promotion loop and the
	// UI-facing command API run concurrently with it, so the store itself
	// must guard its own invariants too.
	mu sync.Mutex
	db *pebble.DB
}

// Open opens (or creates) the pebble database rooted at dir. dir is used as
// given; Open does not derive it from the peer's identifier.
func Open(dir string) (Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errs.Store(err, fmt.Sprintf("open %s", dir))
	}
	return &pebbleStore{db: db}, nil
}

func (s *pebbleStore) Has(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLocked(key)
}

func (s *pebbleStore) hasLocked(key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Store(err, fmt.Sprintf("has %s", key))
	}
	_ = closer.Close()
	return true, nil
}

func (s *pebbleStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.Store(err, fmt.Sprintf("get %s", key))
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

func (s *pebbleStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return errs.Store(err, fmt.Sprintf("put %s", key))
	}
	return nil
}

func (s *pebbleStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return errs.Store(err, fmt.Sprintf("delete %s", key))
	}
	return nil
}

func (s *pebbleStore) CreateOnce(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.hasLocked(key)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return errs.Store(err, fmt.Sprintf("create-once %s", key))
	}
	return nil
}

func (s *pebbleStore) ScanPrefix(prefix string, fn func(key string, value []byte) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := []byte(prefix)
	upper := prefixUpperBound(lower)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return errs.Store(err, fmt.Sprintf("scan %s", prefix))
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		more, err := fn(string(it.Key()), append([]byte(nil), it.Value()...))
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return it.Error()
}

func (s *pebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key with the given prefix, i.e. the exclusive upper bound for a
// prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	upper := bytes.Clone(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix was all 0xff: no upper bound
}
