package profile

import (
	"fmt"

	"github.com/kailas-cloud/tailorly/internal/domain"
)

// Allocation reasons recorded in the audit trail.
const (
	ReasonDefaultQuota = "default_quota"
	ReasonAdminQuota   = "admin_quota"
	ReasonManualGrant  = "manual_grant"
)

// ActorSystem is the actor of grants made by the service itself.
const ActorSystem = "system"

// Identity carries the descriptive fields of an authenticated user.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Allocation is one append-only grant in the audit trail.
type Allocation struct {
	Amount    int64
	Reason    string
	Actor     string
	CreatedAt int64
}

// Profile is the per-user aggregate holding the credit ledger.
type Profile struct {
	uid         string
	email       string
	displayName string
	photoURL    string
	createdAt   int64
	updatedAt   int64
	quota       Quota
	allocations []Allocation
}

// New creates a profile whose ledger starts with a single grant.
func New(id Identity, grant int64, reason string, now int64) (Profile, error) {
	if id.UID == "" {
		return Profile{}, fmt.Errorf("uid is required: %w", domain.ErrInvalidArgument)
	}
	if grant < 0 {
		return Profile{}, fmt.Errorf("initial grant must not be negative: %w", domain.ErrInvalidArgument)
	}
	return Profile{
		uid:         id.UID,
		email:       id.Email,
		displayName: id.DisplayName,
		photoURL:    id.PhotoURL,
		createdAt:   now,
		updatedAt:   now,
		quota:       NewQuota(grant),
		allocations: []Allocation{{
			Amount:    grant,
			Reason:    reason,
			Actor:     ActorSystem,
			CreatedAt: now,
		}},
	}, nil
}

// Reconstruct creates a Profile without validation (storage hydration).
func Reconstruct(
	id Identity, createdAt, updatedAt int64,
	quota Quota, allocations []Allocation,
) Profile {
	return Profile{
		uid:         id.UID,
		email:       id.Email,
		displayName: id.DisplayName,
		photoURL:    id.PhotoURL,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		quota:       quota,
		allocations: allocations,
	}
}

// UID returns the stable identity key.
func (p Profile) UID() string { return p.uid }

// Email returns the user's email.
func (p Profile) Email() string { return p.email }

// DisplayName returns the user's display name.
func (p Profile) DisplayName() string { return p.displayName }

// PhotoURL returns the avatar URL.
func (p Profile) PhotoURL() string { return p.photoURL }

// CreatedAt returns the creation time (unix millis).
func (p Profile) CreatedAt() int64 { return p.createdAt }

// UpdatedAt returns the last mutation time (unix millis).
func (p Profile) UpdatedAt() int64 { return p.updatedAt }

// Quota returns a copy of the ledger state.
func (p Profile) Quota() Quota { return p.quota.Clone() }

// Allocations returns a copy of the audit trail.
func (p Profile) Allocations() []Allocation {
	out := make([]Allocation, len(p.allocations))
	copy(out, p.allocations)
	return out
}

// Identity returns the descriptive fields.
func (p Profile) Identity() Identity {
	return Identity{UID: p.uid, Email: p.email, DisplayName: p.displayName, PhotoURL: p.photoURL}
}

// SweepExpired reclaims expired holds.
func (p *Profile) SweepExpired(now int64) SweepResult {
	res := p.quota.Sweep(now)
	if res.Refunded > 0 {
		p.updatedAt = now
	}
	return res
}

// PlaceHold reserves credits for a session (see Quota.Place).
func (p *Profile) PlaceHold(sessionID string, amount, now, expiresAt int64) (Hold, bool, error) {
	h, refreshed, err := p.quota.Place(sessionID, amount, now, expiresAt)
	if err != nil {
		return Hold{}, false, err
	}
	p.updatedAt = now
	return h, refreshed, nil
}

// CommitHold consumes a session's hold (see Quota.Commit).
func (p *Profile) CommitHold(sessionID string, now int64) (Hold, bool) {
	h, ok := p.quota.Commit(sessionID, now)
	if ok {
		p.updatedAt = now
	}
	return h, ok
}

// ReleaseHold gives up a session's hold (see Quota.Release).
func (p *Profile) ReleaseHold(sessionID string, refund bool, now int64) (Hold, bool) {
	h, ok := p.quota.Release(sessionID, refund, now)
	if ok {
		p.updatedAt = now
	}
	return h, ok
}

// Grant adds credits and appends the grant to the audit trail.
func (p *Profile) Grant(amount int64, reason, actor string, now int64) error {
	if err := p.quota.Grant(amount); err != nil {
		return err
	}
	p.allocations = append(p.allocations, Allocation{
		Amount:    amount,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: now,
	})
	p.updatedAt = now
	return nil
}

// SyncIdentity overwrites the descriptive fields. Empty values keep the
// current ones. Reports whether anything changed.
func (p *Profile) SyncIdentity(id Identity, now int64) bool {
	changed := false
	if id.Email != "" && id.Email != p.email {
		p.email = id.Email
		changed = true
	}
	if id.DisplayName != "" && id.DisplayName != p.displayName {
		p.displayName = id.DisplayName
		changed = true
	}
	if id.PhotoURL != "" && id.PhotoURL != p.photoURL {
		p.photoURL = id.PhotoURL
		changed = true
	}
	if changed {
		p.updatedAt = now
	}
	return changed
}
