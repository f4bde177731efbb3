package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/tailorly/internal/domain/policy"
)

// store is the consumer interface for the policy document (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type accessDoc struct {
	DefaultQuota       int64 `json:"default_quota"`
	HoldTimeoutMinutes int   `json:"hold_timeout_minutes"`
}

// Repo implements usecase/policy.Source.
type Repo struct {
	store store
	key   string
}

// New creates a policy repository reading "<prefix>config:access".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, key: keyPrefix + "config:access"}
}

// Load reads the stored policy as-is. A missing document surfaces as
// db.ErrKeyNotFound; fallback handling belongs to the caller.
func (r *Repo) Load(ctx context.Context) (policy.Access, error) {
	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		return policy.Access{}, fmt.Errorf("load access policy: %w", err)
	}
	var doc accessDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return policy.Access{}, fmt.Errorf("decode access policy: %w", err)
	}
	return policy.Access(doc), nil
}

// Save replaces the stored policy.
func (r *Repo) Save(ctx context.Context, a policy.Access) error {
	data, err := json.Marshal(accessDoc(a))
	if err != nil {
		return fmt.Errorf("encode access policy: %w", err)
	}
	if err := r.store.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("save access policy: %w", err)
	}
	return nil
}
