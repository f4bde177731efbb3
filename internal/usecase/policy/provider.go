package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/db"
	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/domain/policy"
	"github.com/kailas-cloud/tailorly/internal/metrics"
)

// DefaultTTL is how long a loaded policy is served from memory.
const DefaultTTL = 60 * time.Second

// DefaultLoadTimeout bounds a single read of the stored policy.
const DefaultLoadTimeout = 2 * time.Second

// Provider serves the access policy from a short-lived cache. It never
// fails: an unreadable source yields the fallback, which is cached for one
// TTL like a real document. Interrupted reads are not cached.
type Provider struct {
	source   Source
	logger   *zap.Logger
	ttl         time.Duration
	loadTimeout time.Duration
	fallback    policy.Access
	now         func() time.Time

	mu       sync.Mutex
	cached   policy.Access
	loadedAt time.Time
	loaded   bool
}

// New creates a Provider with the documented defaults.
func New(source Source, logger *zap.Logger) *Provider {
	return &Provider{
		source:      source,
		logger:      logger,
		ttl:         DefaultTTL,
		loadTimeout: DefaultLoadTimeout,
		fallback:    policy.Default(),
		now:         time.Now,
	}
}

// WithTTL overrides the cache lifetime.
func (p *Provider) WithTTL(ttl time.Duration) *Provider {
	if ttl > 0 {
		p.ttl = ttl
	}
	return p
}

// WithLoadTimeout overrides the per-read deadline.
func (p *Provider) WithLoadTimeout(d time.Duration) *Provider {
	if d > 0 {
		p.loadTimeout = d
	}
	return p
}

// WithFallback overrides the fallback policy. Non-positive fields keep
// the built-in defaults.
func (p *Provider) WithFallback(a policy.Access) *Provider {
	p.fallback = a.WithFallback(policy.Default())
	return p
}

// WithClock injects the time source.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	if now != nil {
		p.now = now
	}
	return p
}

// Get returns the current policy, reloading it when the cache is stale.
// The reload runs outside the lock on a context detached from the caller,
// bounded by loadTimeout. A load that ends on a context error keeps the
// previous value and leaves the cache stale.
func (p *Provider) Get(ctx context.Context) policy.Access {
	p.mu.Lock()
	cached, loaded, loadedAt := p.cached, p.loaded, p.loadedAt
	p.mu.Unlock()

	if loaded && p.now().Sub(loadedAt) < p.ttl {
		return cached
	}

	a, ok := p.load(ctx)
	if !ok {
		if loaded {
			return cached
		}
		return p.fallback
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// A Set or another reload landed while this one was in flight.
	if p.loaded && p.loadedAt.After(loadedAt) {
		return p.cached
	}
	p.cached = a
	p.loadedAt = p.now()
	p.loaded = true
	return a
}

// Set validates and stores a new policy, then primes the cache with it.
func (p *Provider) Set(ctx context.Context, a policy.Access) (policy.Access, error) {
	if a.DefaultQuota <= 0 || a.HoldTimeoutMinutes <= 0 {
		return policy.Access{}, fmt.Errorf(
			"default_quota and hold_timeout_minutes must be positive: %w", domain.ErrInvalidArgument,
		)
	}
	if err := p.source.Save(ctx, a); err != nil {
		return policy.Access{}, fmt.Errorf("save policy: %w", err)
	}

	p.mu.Lock()
	p.cached = a
	p.loadedAt = p.now()
	p.loaded = true
	p.mu.Unlock()

	p.logger.Info("Access policy updated",
		zap.Int64("default_quota", a.DefaultQuota),
		zap.Int("hold_timeout_minutes", a.HoldTimeoutMinutes),
	)
	return a, nil
}

// load reads the stored policy. ok is false when the read was cut short
// by a context error and the result must not be cached.
func (p *Provider) load(ctx context.Context) (policy.Access, bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.loadTimeout)
	defer cancel()

	a, err := p.source.Load(ctx)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrKeyNotFound):
			p.logger.Debug("Access policy not configured, using fallback")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			p.logger.Warn("Access policy load interrupted, keeping previous value", zap.Error(err))
			metrics.PolicyRefreshTotal.WithLabelValues("interrupted").Inc()
			return policy.Access{}, false
		default:
			p.logger.Warn("Access policy unreadable, using fallback", zap.Error(err))
		}
		metrics.PolicyRefreshTotal.WithLabelValues("fallback").Inc()
		return p.fallback, true
	}
	metrics.PolicyRefreshTotal.WithLabelValues("store").Inc()
	return a.WithFallback(p.fallback), true
}
