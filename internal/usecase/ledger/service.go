package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/db"
	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	"github.com/kailas-cloud/tailorly/internal/metrics"
)

// Operation names used in logs and metrics.
const (
	opEnsure  = "ensure_profile"
	opSync    = "sync_profile"
	opPlace   = "place_hold"
	opCommit  = "commit_hold"
	opRelease = "release_hold"
	opGrant   = "grant"
)

// Settlement is the outcome of a commit or release. Applied is false when
// the session had no active hold and the ledger was left untouched.
type Settlement struct {
	Quota   profile.Quota
	Hold    profile.Hold
	Applied bool
}

// Service is the quota ledger. Every mutation is one store transaction on
// the user's profile document; there is no in-process locking.
type Service struct {
	repo       Repository
	policy     PolicyReader
	logger     *zap.Logger
	now        func() time.Time
	adminEmail string
	adminQuota int64
}

// New creates a ledger service.
func New(repo Repository, policy PolicyReader, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// WithAdmin grants quota instead of the policy default to profiles created
// for email.
func (s *Service) WithAdmin(email string, quota int64) *Service {
	if email != "" && quota > 0 {
		s.adminEmail = strings.TrimSpace(email)
		s.adminQuota = quota
	}
	return s
}

// WithClock injects the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// EnsureProfile returns the profile of id.UID, creating it with its initial
// grant on first call. created reports whether this call created it.
func (s *Service) EnsureProfile(ctx context.Context, id profile.Identity) (profile.Profile, bool, error) {
	if id.UID == "" {
		return profile.Profile{}, false, fmt.Errorf("uid is required: %w", domain.ErrInvalidArgument)
	}

	grant, reason := s.initialGrant(ctx, id.Email)
	now := s.now().UnixMilli()

	start := time.Now()
	p, created, err := s.repo.Create(ctx, id.UID, func() (profile.Profile, error) {
		return profile.New(id, grant, reason, now)
	})
	s.observe(opEnsure, start, err)
	if err != nil {
		return profile.Profile{}, false, fmt.Errorf("ensure profile: %w", err)
	}

	if created {
		metrics.LedgerCreditsTotal.WithLabelValues("granted").Add(float64(grant))
		s.logger.Info("Profile created",
			zap.String("uid", id.UID),
			zap.Int64("grant", grant),
			zap.String("reason", reason),
		)
	}
	return p, created, nil
}

// SyncProfile refreshes the descriptive fields of an existing profile.
func (s *Service) SyncProfile(ctx context.Context, id profile.Identity) (profile.Profile, error) {
	now := s.now().UnixMilli()

	start := time.Now()
	p, err := s.repo.Mutate(ctx, id.UID, func(p *profile.Profile) (bool, error) {
		return p.SyncIdentity(id, now), nil
	})
	s.observe(opSync, start, err)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("sync profile: %w", err)
	}
	return p, nil
}

// GetProfile loads a profile.
func (s *Service) GetProfile(ctx context.Context, uid string) (profile.Profile, error) {
	p, err := s.repo.Get(ctx, uid)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetQuota returns the display projection of a user's ledger. A missing
// profile is reported through found, not as an error.
func (s *Service) GetQuota(ctx context.Context, uid string) (profile.Quota, bool, error) {
	p, err := s.repo.Get(ctx, uid)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return profile.Quota{}, false, nil
	}
	if err != nil {
		return profile.Quota{}, false, fmt.Errorf("get quota: %w", err)
	}
	return p.Quota(), true, nil
}

// PlaceHold reserves amount credits for sessionID. Expired holds are swept
// first, in the same transaction. An active hold for the same session is
// refreshed rather than reserved again. holdDuration == 0 uses the policy
// default.
func (s *Service) PlaceHold(
	ctx context.Context, uid, sessionID string, amount int64, holdDuration time.Duration,
) (profile.Hold, profile.Quota, error) {
	if amount <= 0 {
		return profile.Hold{}, profile.Quota{}, fmt.Errorf(
			"hold amount must be positive, got %d: %w", amount, domain.ErrInvalidArgument,
		)
	}
	if sessionID == "" {
		return profile.Hold{}, profile.Quota{}, fmt.Errorf("session id is required: %w", domain.ErrInvalidArgument)
	}
	if holdDuration < 0 {
		return profile.Hold{}, profile.Quota{}, fmt.Errorf("hold duration must not be negative: %w", domain.ErrInvalidArgument)
	}
	if holdDuration == 0 {
		holdDuration = s.policy.Get(ctx).HoldTimeout()
	}

	var (
		hold      profile.Hold
		refreshed bool
		sweep     profile.SweepResult
	)
	start := time.Now()
	p, err := s.repo.Mutate(ctx, uid, func(p *profile.Profile) (bool, error) {
		now := s.now().UnixMilli()
		sweep = p.SweepExpired(now)
		h, r, err := p.PlaceHold(sessionID, amount, now, now+holdDuration.Milliseconds())
		if err != nil {
			return false, err
		}
		hold, refreshed = h, r
		return true, nil
	})
	s.observeResult(opPlace, start, err, refreshed)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.logger.Info("Hold rejected: quota exceeded",
				zap.String("uid", uid),
				zap.String("session_id", sessionID),
				zap.Int64("amount", amount),
			)
		}
		return profile.Hold{}, profile.Quota{}, fmt.Errorf("place hold: %w", err)
	}

	s.reportSweep(uid, sweep)
	if refreshed {
		s.logger.Debug("Hold refreshed",
			zap.String("uid", uid),
			zap.String("session_id", sessionID),
			zap.Int64("expires_at", hold.ExpiresAt()),
		)
	} else {
		metrics.LedgerCreditsTotal.WithLabelValues("held").Add(float64(hold.Amount()))
		s.logger.Debug("Hold placed",
			zap.String("uid", uid),
			zap.String("session_id", sessionID),
			zap.Int64("amount", hold.Amount()),
			zap.Int64("expires_at", hold.ExpiresAt()),
		)
	}
	return hold, p.Quota(), nil
}

// CommitHold consumes the session's hold. The credits stay spent.
func (s *Service) CommitHold(ctx context.Context, uid, sessionID string) (Settlement, error) {
	return s.settle(ctx, opCommit, uid, sessionID, func(p *profile.Profile, now int64) (profile.Hold, bool) {
		return p.CommitHold(sessionID, now)
	})
}

// ReleaseHold gives up the session's hold, returning its credits to
// remaining when refund is set.
func (s *Service) ReleaseHold(ctx context.Context, uid, sessionID string, refund bool) (Settlement, error) {
	return s.settle(ctx, opRelease, uid, sessionID, func(p *profile.Profile, now int64) (profile.Hold, bool) {
		return p.ReleaseHold(sessionID, refund, now)
	})
}

// Grant adds credits to an existing profile and records the allocation.
func (s *Service) Grant(ctx context.Context, uid string, amount int64, reason, actor string) (profile.Profile, error) {
	if amount <= 0 {
		return profile.Profile{}, fmt.Errorf("grant amount must be positive, got %d: %w", amount, domain.ErrInvalidArgument)
	}
	if reason == "" {
		reason = profile.ReasonManualGrant
	}
	if actor == "" {
		actor = profile.ActorSystem
	}
	now := s.now().UnixMilli()

	start := time.Now()
	p, err := s.repo.Mutate(ctx, uid, func(p *profile.Profile) (bool, error) {
		if err := p.Grant(amount, reason, actor, now); err != nil {
			return false, err
		}
		return true, nil
	})
	s.observe(opGrant, start, err)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("grant: %w", err)
	}

	metrics.LedgerCreditsTotal.WithLabelValues("granted").Add(float64(amount))
	s.logger.Info("Credits granted",
		zap.String("uid", uid),
		zap.Int64("amount", amount),
		zap.String("reason", reason),
		zap.String("actor", actor),
	)
	return p, nil
}

func (s *Service) settle(
	ctx context.Context, op, uid, sessionID string,
	apply func(p *profile.Profile, now int64) (profile.Hold, bool),
) (Settlement, error) {
	var (
		hold    profile.Hold
		applied bool
	)
	start := time.Now()
	p, err := s.repo.Mutate(ctx, uid, func(p *profile.Profile) (bool, error) {
		hold, applied = apply(p, s.now().UnixMilli())
		return applied, nil
	})
	s.observeSettle(op, start, err, applied)
	if err != nil {
		return Settlement{}, fmt.Errorf("%s: %w", strings.ReplaceAll(op, "_", " "), err)
	}

	if !applied {
		s.logger.Warn("No active hold for session",
			zap.String("op", op),
			zap.String("uid", uid),
			zap.String("session_id", sessionID),
		)
		return Settlement{Quota: p.Quota(), Applied: false}, nil
	}

	kind := "committed"
	if hold.Status() == profile.HoldReleased {
		kind = "released"
	}
	metrics.LedgerCreditsTotal.WithLabelValues(kind).Add(float64(hold.Amount()))
	s.logger.Debug("Hold settled",
		zap.String("op", op),
		zap.String("uid", uid),
		zap.String("session_id", sessionID),
		zap.Int64("amount", hold.Amount()),
	)
	return Settlement{Quota: p.Quota(), Hold: hold, Applied: true}, nil
}

func (s *Service) initialGrant(ctx context.Context, email string) (int64, string) {
	if s.adminEmail != "" && strings.EqualFold(strings.TrimSpace(email), s.adminEmail) {
		return s.adminQuota, profile.ReasonAdminQuota
	}
	return s.policy.Get(ctx).DefaultQuota, profile.ReasonDefaultQuota
}

func (s *Service) reportSweep(uid string, res profile.SweepResult) {
	if res.Refunded > 0 {
		metrics.LedgerCreditsTotal.WithLabelValues("expired").Add(float64(res.Refunded))
		s.logger.Info("Expired holds reclaimed",
			zap.String("uid", uid),
			zap.Int64("refunded", res.Refunded),
			zap.Strings("sessions", res.Expired),
		)
	}
	if len(res.Malformed) > 0 {
		metrics.LedgerMalformedHoldsTotal.Add(float64(len(res.Malformed)))
		s.logger.Warn("Malformed holds skipped by sweep",
			zap.String("uid", uid),
			zap.Strings("sessions", res.Malformed),
		)
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.observeResult(op, start, err, false)
}

func (s *Service) observeResult(op string, start time.Time, err error, refreshed bool) {
	metrics.LedgerTransactionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := resultLabel(err)
	if err == nil && refreshed {
		result = "refreshed"
	}
	metrics.LedgerOperationsTotal.WithLabelValues(op, result).Inc()
}

func (s *Service) observeSettle(op string, start time.Time, err error, applied bool) {
	metrics.LedgerTransactionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := resultLabel(err)
	if err == nil && !applied {
		result = "noop"
	}
	metrics.LedgerOperationsTotal.WithLabelValues(op, result).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, domain.ErrProfileNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	case db.IsTxExhausted(err):
		return "conflict_exhausted"
	default:
		return "error"
	}
}
