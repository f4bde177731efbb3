// Package goredis implements db.Store on go-redis. Transactions use
// client.Watch with a pipelined MULTI/EXEC; redis.TxFailedErr marks a
// conflicting writer and the attempt is retried.
package goredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kailas-cloud/tailorly/internal/db"
)

var _ db.Store = (*Store)(nil)

// Config holds connection parameters.
type Config struct {
	Addrs         []string
	Username      string
	Password      string
	DB            int
	MaxTxAttempts int
}

// Store is a go-redis backed document store.
type Store struct {
	client      goredis.UniversalClient
	maxAttempts int
}

// NewStore dials nothing up front; the first command opens the pool.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return New(client, cfg.MaxTxAttempts), nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = db.DefaultMaxTxAttempts
	}
	return &Store{client: client, maxAttempts: maxAttempts}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	_ = s.client.Close()
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// Set stores a value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// Transact runs fn under WATCH and writes its result atomically.
func (s *Store) Transact(ctx context.Context, key string, fn db.TxFunc) error {
	return db.RetryTx(ctx, s.maxAttempts, func(ctx context.Context) error {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if !errors.Is(err, goredis.Nil) {
					return &db.Error{Op: db.OpGet, Err: err}
				}
				current = nil
			}

			next, err := fn(current)
			if err != nil || next == nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			})
			if err != nil && !errors.Is(err, goredis.TxFailedErr) {
				return &db.Error{Op: db.OpExec, Err: err}
			}
			return err
		}, key)
		if errors.Is(err, goredis.TxFailedErr) {
			return db.ErrTxConflict
		}
		return err
	})
}
