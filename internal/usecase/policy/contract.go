package policy

import (
	"context"

	"github.com/kailas-cloud/tailorly/internal/domain/policy"
)

// Source persists the access policy document.
type Source interface {
	Load(ctx context.Context) (policy.Access, error)
	Save(ctx context.Context, a policy.Access) error
}
