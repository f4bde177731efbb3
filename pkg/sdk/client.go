package tailorly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/db"
	dbMemory "github.com/kailas-cloud/tailorly/internal/db/memory"
	dbPostgres "github.com/kailas-cloud/tailorly/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/tailorly/internal/db/redis"
	"github.com/kailas-cloud/tailorly/internal/domain/policy"
	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	policyrepo "github.com/kailas-cloud/tailorly/internal/repository/policy"
	profilerepo "github.com/kailas-cloud/tailorly/internal/repository/profile"
	healthuc "github.com/kailas-cloud/tailorly/internal/usecase/health"
	ledgeruc "github.com/kailas-cloud/tailorly/internal/usecase/ledger"
	policyuc "github.com/kailas-cloud/tailorly/internal/usecase/policy"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "tailorly:"
)

const (
	driverMemory   = "memory"
	driverValkey   = "valkey"
	driverRedis    = "redis"
	driverPostgres = "postgres"
)

// ledgerUseCase is the internal ledger surface, swapped out in tests.
type ledgerUseCase interface {
	EnsureProfile(ctx context.Context, id profile.Identity) (profile.Profile, bool, error)
	GetProfile(ctx context.Context, uid string) (profile.Profile, error)
	GetQuota(ctx context.Context, uid string) (profile.Quota, bool, error)
	PlaceHold(ctx context.Context, uid, sessionID string, amount int64, holdDuration time.Duration) (
		profile.Hold, profile.Quota, error,
	)
	CommitHold(ctx context.Context, uid, sessionID string) (ledgeruc.Settlement, error)
	ReleaseHold(ctx context.Context, uid, sessionID string, refund bool) (ledgeruc.Settlement, error)
	Grant(ctx context.Context, uid string, amount int64, reason, actor string) (profile.Profile, error)
}

// Client is the tailorly SDK entry point.
type Client struct {
	store     db.Store
	ledger    ledgerUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a tailorly Client and connects to the database.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{keyPrefix: defaultKeyPrefix}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("tailorly: storage required (use WithMemory, WithValkey, WithRedis or WithPostgres)")
	}
	if cfg.holdTimeout > 0 && cfg.holdTimeout%time.Minute != 0 {
		return nil, fmt.Errorf("tailorly: hold timeout %v is not a whole number of minutes: %w",
			cfg.holdTimeout, ErrInvalidArgument)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := createStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("tailorly: database not ready: %w", err)
	}

	return wireClient(store, cfg, obs), nil
}

func createStore(ctx context.Context, cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case driverMemory:
		return dbMemory.NewStore(dbMemory.WithMaxAttempts(attemptsOrDefault(cfg.maxTxAttempts))), nil
	case driverValkey, driverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:         cfg.addrs,
			Password:      cfg.password,
			MaxTxAttempts: cfg.maxTxAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("tailorly: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case driverPostgres:
		s, err := dbPostgres.Connect(ctx, cfg.dsn, dbPostgres.WithMaxAttempts(cfg.maxTxAttempts))
		if err != nil {
			return nil, fmt.Errorf("tailorly: create postgres store: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("tailorly: create postgres schema: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("tailorly: unknown driver %q", cfg.driver)
	}
}

func attemptsOrDefault(n int) int {
	if n <= 0 {
		return db.DefaultMaxTxAttempts
	}
	return n
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) *Client {
	// Operations are observed through slog and prometheus at the SDK edge.
	internal := zap.NewNop()

	fallback := policy.Default()
	if cfg.defaultQuota > 0 {
		fallback.DefaultQuota = cfg.defaultQuota
	}
	if cfg.holdTimeout > 0 {
		fallback.HoldTimeoutMinutes = int(cfg.holdTimeout / time.Minute)
	}

	policySvc := policyuc.New(policyrepo.New(store, cfg.keyPrefix), internal).WithFallback(fallback)
	ledgerSvc := ledgeruc.New(profilerepo.New(store, cfg.keyPrefix), policySvc, internal).
		WithAdmin(cfg.adminEmail, cfg.adminQuota)

	return &Client{
		store:     store,
		ledger:    ledgerSvc,
		healthSvc: healthuc.New(store, nil),
		obs:       obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// EnsureProfile returns the user's profile, creating it with its initial
// grant on first call. created reports whether this call created it.
func (c *Client) EnsureProfile(ctx context.Context, id Identity) (p Profile, created bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("profile.ensure", start, err) }()

	dp, created, err := c.ledger.EnsureProfile(ctx, profile.Identity(id))
	if err != nil {
		return Profile{}, false, fmt.Errorf("ensure profile %s: %w", id.UID, err)
	}
	return profileFromDomain(dp), created, nil
}

// Profile loads a user's profile. Returns ErrProfileNotFound when absent.
func (c *Client) Profile(ctx context.Context, uid string) (p Profile, err error) {
	start := time.Now()
	defer func() { c.obs.observe("profile.get", start, err) }()

	dp, err := c.ledger.GetProfile(ctx, uid)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return profileFromDomain(dp), nil
}

// Quota returns the user's ledger. found is false when the user has no profile.
func (c *Client) Quota(ctx context.Context, uid string) (q Quota, found bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("quota.get", start, err) }()

	dq, found, err := c.ledger.GetQuota(ctx, uid)
	if err != nil {
		return Quota{}, false, fmt.Errorf("get quota %s: %w", uid, err)
	}
	if !found {
		return Quota{}, false, nil
	}
	return quotaFromDomain(dq), true, nil
}

// PlaceHold reserves amount credits for sessionID. Placing again for a
// session with an active hold only extends its expiry. holdDuration 0
// uses the policy default.
func (c *Client) PlaceHold(
	ctx context.Context, uid, sessionID string, amount int64, holdDuration time.Duration,
) (h Hold, q Quota, err error) {
	start := time.Now()
	defer func() { c.obs.observe("hold.place", start, err) }()

	dh, dq, err := c.ledger.PlaceHold(ctx, uid, sessionID, amount, holdDuration)
	if err != nil {
		return Hold{}, Quota{}, fmt.Errorf("place hold %s/%s: %w", uid, sessionID, err)
	}
	return holdFromDomain(dh), quotaFromDomain(dq), nil
}

// CommitHold consumes the session's hold.
func (c *Client) CommitHold(ctx context.Context, uid, sessionID string) (st Settlement, err error) {
	start := time.Now()
	defer func() { c.obs.observe("hold.commit", start, err) }()

	ds, err := c.ledger.CommitHold(ctx, uid, sessionID)
	if err != nil {
		return Settlement{}, fmt.Errorf("commit hold %s/%s: %w", uid, sessionID, err)
	}
	return settlementFromDomain(ds), nil
}

// ReleaseHold gives up the session's hold, returning its credits when refund is set.
func (c *Client) ReleaseHold(ctx context.Context, uid, sessionID string, refund bool) (st Settlement, err error) {
	start := time.Now()
	defer func() { c.obs.observe("hold.release", start, err) }()

	ds, err := c.ledger.ReleaseHold(ctx, uid, sessionID, refund)
	if err != nil {
		return Settlement{}, fmt.Errorf("release hold %s/%s: %w", uid, sessionID, err)
	}
	return settlementFromDomain(ds), nil
}

// Grant adds credits to an existing profile.
func (c *Client) Grant(ctx context.Context, uid string, amount int64, reason, actor string) (p Profile, err error) {
	start := time.Now()
	defer func() { c.obs.observe("grant", start, err) }()

	dp, err := c.ledger.Grant(ctx, uid, amount, reason, actor)
	if err != nil {
		return Profile{}, fmt.Errorf("grant %s: %w", uid, err)
	}
	return profileFromDomain(dp), nil
}
