package db

import (
	"context"
	"errors"
	"fmt"
)

// RetryTx runs attempt until it succeeds, fails with anything other than
// ErrTxConflict, or maxAttempts attempts conflicted. Backends share it so
// conflict handling is identical across drivers.
func RetryTx(ctx context.Context, maxAttempts int, attempt func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxTxAttempts
	}
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transaction canceled: %w", err)
		}
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
	}
	return &Error{Op: OpTransact, Err: fmt.Errorf("%d attempts: %w", maxAttempts, ErrTxExhausted)}
}

// IsTxExhausted reports whether err is a retry-budget exhaustion.
func IsTxExhausted(err error) bool {
	return errors.Is(err, ErrTxExhausted)
}
