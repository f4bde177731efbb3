// Package memory provides an in-process db.Store with optimistic,
// version-checked transactions. Used by the local driver and tests.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/tailorly/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type entry struct {
	data    []byte
	version uint64
}

// Store keeps documents in a map. Transactions read a versioned snapshot,
// run the caller's function outside the lock and write only if the
// version did not move in between.
type Store struct {
	mu          sync.Mutex
	entries     map[string]entry
	maxAttempts int
	beforeWrite func(key string)
}

// Option configures Store.
type Option func(*Store)

// WithMaxAttempts sets the transaction retry budget.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:     make(map[string]entry),
		maxAttempts: db.DefaultMaxTxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(e.data), nil
}

// Set stores a copy of value unconditionally.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]
	s.entries[key] = entry{data: bytes.Clone(value), version: e.version + 1}
	return nil
}

// Transact implements db.DocumentStore.
func (s *Store) Transact(ctx context.Context, key string, fn db.TxFunc) error {
	return db.RetryTx(ctx, s.maxAttempts, func(context.Context) error {
		return s.attempt(key, fn)
	})
}

func (s *Store) attempt(key string, fn db.TxFunc) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()

	var current []byte
	if ok {
		current = bytes.Clone(e.data)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if s.beforeWrite != nil {
		s.beforeWrite(key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, exists := s.entries[key]
	if exists != ok || latest.version != e.version {
		return db.ErrTxConflict
	}
	s.entries[key] = entry{data: bytes.Clone(next), version: e.version + 1}
	return nil
}
