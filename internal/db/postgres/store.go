// Package postgres implements db.Store on a single key/document table.
// Transact locks the row with SELECT ... FOR UPDATE; a first write races
// through INSERT ... ON CONFLICT DO NOTHING and loses as a conflict.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/tailorly/internal/db"
)

var _ db.Store = (*Store)(nil)

// SQLSTATE codes that mean "another transaction won, try again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store is a PostgreSQL-backed document store.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
	maxAttempts int
}

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "tailorly_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// WithMaxAttempts bounds Transact retries.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "tailorly_",
		maxAttempts: db.DefaultMaxTxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = db.DefaultMaxTxAttempts
	}
	return s
}

// Connect opens a pool for dsn.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	return New(pool, opts...), nil
}

func (s *Store) documentsTable() string { return s.tablePrefix + "documents" }

// EnsureSchema creates the documents table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			doc BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.documentsTable())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return &db.Error{Op: db.OpSchema, Err: err}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WaitForReady polls Ping until the database responds or timeout expires.
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

// Get retrieves a document by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE key = $1`, s.documentsTable()),
		key,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return doc, nil
}

// Set upserts a document.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, doc, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, s.documentsTable()),
		key, value,
	)
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// Transact runs fn against the locked row and writes its result.
func (s *Store) Transact(ctx context.Context, key string, fn db.TxFunc) error {
	return db.RetryTx(ctx, s.maxAttempts, func(ctx context.Context) error {
		err := s.attempt(ctx, key, fn)
		if isRetryable(err) {
			return db.ErrTxConflict
		}
		return err
	})
}

func (s *Store) attempt(ctx context.Context, key string, fn db.TxFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &db.Error{Op: db.OpTransact, Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current []byte
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE key = $1 FOR UPDATE`, s.documentsTable()),
		key,
	).Scan(&current)
	exists := true
	if errors.Is(err, pgx.ErrNoRows) {
		exists, current = false, nil
	} else if err != nil {
		return &db.Error{Op: db.OpGet, Err: err}
	}

	next, err := fn(current)
	if err != nil || next == nil {
		return err
	}

	if exists {
		_, err = tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET doc = $1, updated_at = now() WHERE key = $2`, s.documentsTable()),
			next, key,
		)
		if err != nil {
			return &db.Error{Op: db.OpSet, Err: err}
		}
	} else {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (key, doc) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, s.documentsTable()),
			key, next,
		)
		if err != nil {
			return &db.Error{Op: db.OpSet, Err: err}
		}
		if tag.RowsAffected() == 0 {
			return db.ErrTxConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
