package profile

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/tailorly/internal/domain"
)

// Quota is the mutable credit ledger embedded in a profile.
//
// Invariants: remaining >= 0 and onHold equals the sum of active hold
// amounts. Committed credits leave onHold without returning to remaining.
type Quota struct {
	totalAllocated int64
	remaining      int64
	onHold         int64
	holds          map[string]Hold
}

// NewQuota creates a quota holding an initial grant.
func NewQuota(initial int64) Quota {
	return Quota{
		totalAllocated: initial,
		remaining:      initial,
		holds:          make(map[string]Hold),
	}
}

// ReconstructQuota creates a Quota without validation (storage hydration).
func ReconstructQuota(totalAllocated, remaining, onHold int64, holds map[string]Hold) Quota {
	if holds == nil {
		holds = make(map[string]Hold)
	}
	return Quota{
		totalAllocated: totalAllocated,
		remaining:      remaining,
		onHold:         onHold,
		holds:          holds,
	}
}

// TotalAllocated returns lifetime granted credits.
func (q Quota) TotalAllocated() int64 { return q.totalAllocated }

// Remaining returns credits available to reserve.
func (q Quota) Remaining() int64 { return q.remaining }

// OnHold returns credits reserved by active holds.
func (q Quota) OnHold() int64 { return q.onHold }

// Hold looks up the hold owned by a session.
func (q Quota) Hold(sessionID string) (Hold, bool) {
	h, ok := q.holds[sessionID]
	return h, ok
}

// Holds returns the holds sorted by session id.
func (q Quota) Holds() []Hold {
	out := make([]Hold, 0, len(q.holds))
	for _, h := range q.holds {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sessionID < out[j].sessionID })
	return out
}

// HoldsByKey returns a copy of the hold map with its storage keys.
func (q Quota) HoldsByKey() map[string]Hold {
	return q.Clone().holds
}

// Clone returns a deep copy that shares no map with q.
func (q Quota) Clone() Quota {
	holds := make(map[string]Hold, len(q.holds))
	for k, v := range q.holds {
		holds[k] = v
	}
	q.holds = holds
	return q
}

// SweepResult reports what an expiry sweep reclaimed.
type SweepResult struct {
	Refunded  int64
	Expired   []string
	Malformed []string
}

// Sweep deletes active holds whose window elapsed at now and returns
// their credits to remaining in one step. Malformed records are skipped
// and reported, never fatal.
func (q *Quota) Sweep(now int64) SweepResult {
	var res SweepResult
	for id, h := range q.holds {
		if !h.wellFormed() || h.sessionID != id {
			res.Malformed = append(res.Malformed, id)
			continue
		}
		if !h.IsActive() || !h.IsExpired(now) {
			continue
		}
		res.Refunded += h.amount
		res.Expired = append(res.Expired, id)
		delete(q.holds, id)
	}
	if res.Refunded > 0 {
		q.onHold = floorZero(q.onHold - res.Refunded)
		q.remaining += res.Refunded
	}
	sort.Strings(res.Expired)
	sort.Strings(res.Malformed)
	return res
}

// Place reserves amount for sessionID. An active hold for the same session
// is refreshed instead: only its expiry moves, nothing is reserved twice.
func (q *Quota) Place(sessionID string, amount, now, expiresAt int64) (Hold, bool, error) {
	if sessionID == "" {
		return Hold{}, false, fmt.Errorf("session id is required: %w", domain.ErrInvalidArgument)
	}
	if amount <= 0 {
		return Hold{}, false, fmt.Errorf("hold amount must be positive, got %d: %w", amount, domain.ErrInvalidArgument)
	}

	if h, ok := q.holds[sessionID]; ok && h.IsActive() {
		h.expiresAt = expiresAt
		h.updatedAt = now
		q.holds[sessionID] = h
		return h, true, nil
	}

	if q.remaining < amount {
		return Hold{}, false, domain.ErrQuotaExceeded
	}

	h := Hold{
		sessionID: sessionID,
		amount:    amount,
		status:    HoldActive,
		placedAt:  now,
		updatedAt: now,
		expiresAt: expiresAt,
	}
	q.remaining -= amount
	q.onHold += amount
	q.holds[sessionID] = h
	return h, false, nil
}

// Commit consumes the active hold of sessionID. Reports false when there
// is no active hold, in which case q is untouched.
func (q *Quota) Commit(sessionID string, now int64) (Hold, bool) {
	h, ok := q.holds[sessionID]
	if !ok || !h.IsActive() {
		return h, false
	}
	q.onHold = floorZero(q.onHold - h.amount)
	delete(q.holds, sessionID)

	h.status = HoldCommitted
	h.updatedAt = now
	return h, true
}

// Release drops the active hold of sessionID, returning its credits to
// remaining when refund is set. Reports false when there is no active hold.
func (q *Quota) Release(sessionID string, refund bool, now int64) (Hold, bool) {
	h, ok := q.holds[sessionID]
	if !ok || !h.IsActive() {
		return h, false
	}
	q.onHold = floorZero(q.onHold - h.amount)
	if refund {
		q.remaining += h.amount
	}
	delete(q.holds, sessionID)

	h.status = HoldReleased
	h.updatedAt = now
	return h, true
}

// Grant adds credits to both the lifetime total and remaining.
func (q *Quota) Grant(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d: %w", amount, domain.ErrInvalidArgument)
	}
	q.totalAllocated += amount
	q.remaining += amount
	return nil
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
