package generation

import (
	"context"
	"time"

	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	"github.com/kailas-cloud/tailorly/internal/usecase/ledger"
)

// Ledger is the billing side of a generation run.
type Ledger interface {
	PlaceHold(ctx context.Context, uid, sessionID string, amount int64, holdDuration time.Duration) (
		profile.Hold, profile.Quota, error,
	)
	CommitHold(ctx context.Context, uid, sessionID string) (ledger.Settlement, error)
	ReleaseHold(ctx context.Context, uid, sessionID string, refund bool) (ledger.Settlement, error)
}
