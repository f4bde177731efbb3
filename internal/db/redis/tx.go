package redis

import (
	"context"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/tailorly/internal/db"
)

// Transact implements db.DocumentStore with optimistic locking.
func (s *Store) Transact(ctx context.Context, key string, fn db.TxFunc) error {
	return db.RetryTx(ctx, s.maxAttempts, func(ctx context.Context) error {
		return s.client.Dedicated(func(c rueidis.DedicatedClient) error {
			return s.attempt(ctx, c, key, fn)
		})
	})
}

// attempt runs one WATCH / GET / fn / MULTI-SET-EXEC round. A nil EXEC
// reply means the watched key changed and maps to db.ErrTxConflict.
func (s *Store) attempt(ctx context.Context, c rueidis.DedicatedClient, key string, fn db.TxFunc) error {
	if err := c.Do(ctx, s.b().Watch().Key(key).Build()).Error(); err != nil {
		return &db.Error{Op: db.OpWatch, Err: err}
	}

	current, err := c.Do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			s.unwatch(ctx, c)
			return &db.Error{Op: db.OpGet, Err: err}
		}
		current = nil
	}

	next, err := fn(current)
	if err != nil || next == nil {
		s.unwatch(ctx, c)
		return err
	}

	resps := c.DoMulti(ctx,
		s.b().Multi().Build(),
		s.b().Set().Key(key).Value(rueidis.BinaryString(next)).Build(),
		s.b().Exec().Build(),
	)
	for _, r := range resps[:2] {
		if err := r.Error(); err != nil {
			return &db.Error{Op: db.OpExec, Err: err}
		}
	}
	if err := resps[2].Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return db.ErrTxConflict
		}
		return &db.Error{Op: db.OpExec, Err: err}
	}
	return nil
}

func (s *Store) unwatch(ctx context.Context, c rueidis.DedicatedClient) {
	_ = c.Do(ctx, s.b().Unwatch().Build()).Error()
}
