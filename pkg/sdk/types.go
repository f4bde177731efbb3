package tailorly

import (
	"time"

	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	ledgeruc "github.com/kailas-cloud/tailorly/internal/usecase/ledger"
)

// Identity carries the descriptive fields of a user.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// HoldStatus is the lifecycle state of a hold.
type HoldStatus string

// HoldStatus constants.
const (
	HoldActive    HoldStatus = "active"
	HoldCommitted HoldStatus = "committed"
	HoldReleased  HoldStatus = "released"
)

// Hold is a reservation of credits for one session.
type Hold struct {
	SessionID string
	Amount    int64
	Status    HoldStatus
	PlacedAt  time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time // zero when the hold never expires
}

// Quota is a user's credit ledger.
type Quota struct {
	TotalAllocated int64
	Remaining      int64
	OnHold         int64
	Holds          []Hold
}

// Allocation is one credit grant in a profile's history.
type Allocation struct {
	Amount    int64
	Reason    string
	Actor     string
	CreatedAt time.Time
}

// Profile is a user and their ledger.
type Profile struct {
	Identity
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Quota       Quota
	Allocations []Allocation
}

// Settlement is the outcome of CommitHold or ReleaseHold. Applied is
// false when the session had no active hold; Hold is then zero.
type Settlement struct {
	Applied bool
	Hold    Hold
	Quota   Quota
}

func millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func holdFromDomain(h profile.Hold) Hold {
	return Hold{
		SessionID: h.SessionID(),
		Amount:    h.Amount(),
		Status:    HoldStatus(h.Status()),
		PlacedAt:  millis(h.PlacedAt()),
		UpdatedAt: millis(h.UpdatedAt()),
		ExpiresAt: millis(h.ExpiresAt()),
	}
}

func quotaFromDomain(q profile.Quota) Quota {
	holds := q.Holds()
	out := Quota{
		TotalAllocated: q.TotalAllocated(),
		Remaining:      q.Remaining(),
		OnHold:         q.OnHold(),
		Holds:          make([]Hold, len(holds)),
	}
	for i, h := range holds {
		out.Holds[i] = holdFromDomain(h)
	}
	return out
}

func profileFromDomain(p profile.Profile) Profile {
	allocs := p.Allocations()
	out := Profile{
		Identity: Identity{
			UID:         p.UID(),
			Email:       p.Email(),
			DisplayName: p.DisplayName(),
			PhotoURL:    p.PhotoURL(),
		},
		CreatedAt:   millis(p.CreatedAt()),
		UpdatedAt:   millis(p.UpdatedAt()),
		Quota:       quotaFromDomain(p.Quota()),
		Allocations: make([]Allocation, len(allocs)),
	}
	for i, a := range allocs {
		out.Allocations[i] = Allocation{
			Amount:    a.Amount,
			Reason:    a.Reason,
			Actor:     a.Actor,
			CreatedAt: millis(a.CreatedAt),
		}
	}
	return out
}

func settlementFromDomain(st ledgeruc.Settlement) Settlement {
	out := Settlement{Applied: st.Applied, Quota: quotaFromDomain(st.Quota)}
	if st.Applied {
		out.Hold = holdFromDomain(st.Hold)
	}
	return out
}
