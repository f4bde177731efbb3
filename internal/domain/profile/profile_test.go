package profile

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/tailorly/internal/domain"
)

func newTestProfile(t *testing.T, grant int64) Profile {
	t.Helper()
	p, err := New(Identity{UID: "u1", Email: "u1@example.com"}, grant, ReasonDefaultQuota, 1000)
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	return p
}

func assertLedger(t *testing.T, q Quota, remaining, onHold int64) {
	t.Helper()
	if q.Remaining() != remaining {
		t.Errorf("expected remaining %d, got %d", remaining, q.Remaining())
	}
	if q.OnHold() != onHold {
		t.Errorf("expected onHold %d, got %d", onHold, q.OnHold())
	}
	var sum int64
	for _, h := range q.Holds() {
		if h.IsActive() {
			sum += h.Amount()
		}
	}
	if sum != q.OnHold() {
		t.Errorf("onHold %d does not match active holds %d", q.OnHold(), sum)
	}
}

func TestNew_SeedsAllocation(t *testing.T) {
	p := newTestProfile(t, 10)

	q := p.Quota()
	if q.TotalAllocated() != 10 {
		t.Errorf("expected total 10, got %d", q.TotalAllocated())
	}
	assertLedger(t, q, 10, 0)

	allocs := p.Allocations()
	if len(allocs) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocs))
	}
	if allocs[0].Amount != 10 || allocs[0].Reason != ReasonDefaultQuota || allocs[0].Actor != ActorSystem {
		t.Errorf("unexpected allocation %+v", allocs[0])
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Identity{}, 10, ReasonDefaultQuota, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty uid, got %v", err)
	}
	if _, err := New(Identity{UID: "u"}, -1, ReasonDefaultQuota, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for negative grant, got %v", err)
	}
}

func TestPlaceHold_Reserves(t *testing.T) {
	p := newTestProfile(t, 10)

	h, refreshed, err := p.PlaceHold("s1", 3, 2000, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refreshed {
		t.Error("first placement must not be a refresh")
	}
	if h.Amount() != 3 || h.Status() != HoldActive || h.PlacedAt() != 2000 || h.ExpiresAt() != 5000 {
		t.Errorf("unexpected hold %+v", h)
	}
	assertLedger(t, p.Quota(), 7, 3)
	if p.UpdatedAt() != 2000 {
		t.Errorf("expected updatedAt bump, got %d", p.UpdatedAt())
	}
}

func TestPlaceHold_RefreshDoesNotDoubleReserve(t *testing.T) {
	p := newTestProfile(t, 10)
	if _, _, err := p.PlaceHold("s1", 3, 2000, 5000); err != nil {
		t.Fatal(err)
	}

	h, refreshed, err := p.PlaceHold("s1", 3, 3000, 9000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !refreshed {
		t.Error("expected refresh")
	}
	if h.ExpiresAt() != 9000 || h.PlacedAt() != 2000 || h.Amount() != 3 {
		t.Errorf("unexpected refreshed hold %+v", h)
	}
	assertLedger(t, p.Quota(), 7, 3)
}

func TestPlaceHold_Exceeded(t *testing.T) {
	p := newTestProfile(t, 2)

	_, _, err := p.PlaceHold("s1", 3, 2000, 0)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	assertLedger(t, p.Quota(), 2, 0)
	if p.UpdatedAt() != 1000 {
		t.Error("failed reservation must not touch the profile")
	}
}

func TestPlaceHold_InvalidAmount(t *testing.T) {
	p := newTestProfile(t, 10)
	for _, amount := range []int64{0, -5} {
		if _, _, err := p.PlaceHold("s1", amount, 2000, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("amount %d: expected ErrInvalidArgument, got %v", amount, err)
		}
	}
}

func TestCommitHold_ConsumesCredits(t *testing.T) {
	p := newTestProfile(t, 10)
	_, _, _ = p.PlaceHold("s1", 5, 2000, 0)

	h, ok := p.CommitHold("s1", 3000)
	if !ok {
		t.Fatal("expected commit to apply")
	}
	if h.Status() != HoldCommitted {
		t.Errorf("expected committed status, got %q", h.Status())
	}
	assertLedger(t, p.Quota(), 5, 0)
	if _, exists := p.Quota().Hold("s1"); exists {
		t.Error("committed hold must be removed")
	}

	if _, ok := p.CommitHold("s1", 4000); ok {
		t.Error("second commit must be a no-op")
	}
	assertLedger(t, p.Quota(), 5, 0)
}

func TestReleaseHold_Refund(t *testing.T) {
	p := newTestProfile(t, 10)
	_, _, _ = p.PlaceHold("s1", 5, 2000, 0)

	h, ok := p.ReleaseHold("s1", true, 3000)
	if !ok || h.Status() != HoldReleased {
		t.Fatalf("expected release to apply, got ok=%v status=%q", ok, h.Status())
	}
	assertLedger(t, p.Quota(), 10, 0)

	if _, ok := p.ReleaseHold("s1", true, 4000); ok {
		t.Error("second release must be a no-op")
	}
	assertLedger(t, p.Quota(), 10, 0)
}

func TestReleaseHold_NoRefundDiscards(t *testing.T) {
	p := newTestProfile(t, 10)
	_, _, _ = p.PlaceHold("s1", 5, 2000, 0)

	if _, ok := p.ReleaseHold("s1", false, 3000); !ok {
		t.Fatal("expected release to apply")
	}
	assertLedger(t, p.Quota(), 5, 0)
}

func TestSweepExpired(t *testing.T) {
	p := newTestProfile(t, 10)
	_, _, _ = p.PlaceHold("old", 4, 1000, 1500)
	_, _, _ = p.PlaceHold("fresh", 2, 1000, 9000)
	_, _, _ = p.PlaceHold("forever", 1, 1000, 0)

	res := p.SweepExpired(2000)
	if res.Refunded != 4 {
		t.Errorf("expected 4 refunded, got %d", res.Refunded)
	}
	if len(res.Expired) != 1 || res.Expired[0] != "old" {
		t.Errorf("unexpected expired set %v", res.Expired)
	}
	assertLedger(t, p.Quota(), 7, 3)
}

func TestSweep_SkipsMalformed(t *testing.T) {
	q := ReconstructQuota(10, 5, 5, map[string]Hold{
		"good": ReconstructHold("good", 5, HoldActive, 0, 0, 100),
		"bad":  ReconstructHold("bad", 0, HoldActive, 0, 0, 100),
		"odd":  ReconstructHold("odd", 3, "weird", 0, 0, 100),
	})

	res := q.Sweep(200)
	if res.Refunded != 5 {
		t.Errorf("expected 5 refunded, got %d", res.Refunded)
	}
	if len(res.Malformed) != 2 || res.Malformed[0] != "bad" || res.Malformed[1] != "odd" {
		t.Errorf("unexpected malformed set %v", res.Malformed)
	}
	if q.Remaining() != 10 || q.OnHold() != 0 {
		t.Errorf("unexpected ledger remaining=%d onHold=%d", q.Remaining(), q.OnHold())
	}
}

func TestCommit_FloorsOnHold(t *testing.T) {
	q := ReconstructQuota(10, 0, 2, map[string]Hold{
		"s1": ReconstructHold("s1", 5, HoldActive, 0, 0, 0),
	})
	if _, ok := q.Commit("s1", 1); !ok {
		t.Fatal("expected commit")
	}
	if q.OnHold() != 0 {
		t.Errorf("expected onHold floored at 0, got %d", q.OnHold())
	}
}

func TestGrant_AppendsAllocation(t *testing.T) {
	p := newTestProfile(t, 10)
	if err := p.Grant(25, ReasonManualGrant, "admin@example.com", 5000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := p.Quota()
	if q.TotalAllocated() != 35 || q.Remaining() != 35 {
		t.Errorf("unexpected totals %d/%d", q.TotalAllocated(), q.Remaining())
	}
	if len(p.Allocations()) != 2 {
		t.Errorf("expected 2 allocations, got %d", len(p.Allocations()))
	}
	if err := p.Grant(0, ReasonManualGrant, "x", 6000); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSyncIdentity(t *testing.T) {
	p := newTestProfile(t, 10)
	if p.SyncIdentity(Identity{Email: "u1@example.com"}, 2000) {
		t.Error("same email must not count as a change")
	}
	if !p.SyncIdentity(Identity{DisplayName: "Ada", PhotoURL: "https://img/ada.png"}, 3000) {
		t.Fatal("expected change")
	}
	if p.DisplayName() != "Ada" || p.Email() != "u1@example.com" || p.UpdatedAt() != 3000 {
		t.Errorf("unexpected identity %+v", p.Identity())
	}
}

func TestQuota_CloneIsIndependent(t *testing.T) {
	p := newTestProfile(t, 10)
	_, _, _ = p.PlaceHold("s1", 1, 2000, 0)

	snapshot := p.Quota()
	_, _ = p.CommitHold("s1", 3000)

	if _, ok := snapshot.Hold("s1"); !ok {
		t.Error("snapshot must not observe later mutations")
	}
}
