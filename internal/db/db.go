package db

import (
	"context"
	"time"
)

// DefaultMaxTxAttempts is the retry budget of Transact when a backend is
// not configured otherwise.
const DefaultMaxTxAttempts = 5

// Store is the main database facade combining all sub-interfaces.
type Store interface {
	Pinger
	DocumentStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TxFunc computes the next value of a key from its current value.
//
// current is nil when the key does not exist. Returning a nil next skips
// the write. Returning an error aborts the transaction without mutation;
// the error is passed through to the caller unchanged. The function may be
// called more than once when the transaction is retried, so it must not
// leak side effects outside its return values.
type TxFunc func(current []byte) (next []byte, err error)

// DocumentStore provides keyed documents with atomic read-modify-write.
type DocumentStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Transact runs fn against the key atomically with respect to other
	// transactions on the same key, retrying on conflict.
	Transact(ctx context.Context, key string, fn TxFunc) error
}
