package ledger

import (
	"context"

	"github.com/kailas-cloud/tailorly/internal/domain/policy"
	"github.com/kailas-cloud/tailorly/internal/domain/profile"
)

// Repository defines the transactional storage contract for profiles.
type Repository interface {
	Get(ctx context.Context, uid string) (profile.Profile, error)
	Mutate(ctx context.Context, uid string, fn func(p *profile.Profile) (bool, error)) (profile.Profile, error)
	Create(ctx context.Context, uid string, build func() (profile.Profile, error)) (profile.Profile, bool, error)
}

// PolicyReader supplies the current access policy.
type PolicyReader interface {
	Get(ctx context.Context) policy.Access
}
