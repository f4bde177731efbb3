package generation

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/db/memory"
	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/domain/policy"
	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	"github.com/kailas-cloud/tailorly/internal/metrics"
	policyrepo "github.com/kailas-cloud/tailorly/internal/repository/policy"
	profilerepo "github.com/kailas-cloud/tailorly/internal/repository/profile"
	"github.com/kailas-cloud/tailorly/internal/usecase/ledger"
	policyuc "github.com/kailas-cloud/tailorly/internal/usecase/policy"
)

func TestMain(m *testing.M) {
	metrics.RegisterGenerationMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type call struct {
	op        string
	uid       string
	sessionID string
	amount    int64
	refund    bool
	ctxErr    error
}

type mockLedger struct {
	calls     []call
	placeErr  error
	commitErr error
	quota     profile.Quota
}

func (m *mockLedger) PlaceHold(
	ctx context.Context, uid, sessionID string, amount int64, _ time.Duration,
) (profile.Hold, profile.Quota, error) {
	m.calls = append(m.calls, call{op: "place", uid: uid, sessionID: sessionID, amount: amount, ctxErr: ctx.Err()})
	return profile.Hold{}, m.quota, m.placeErr
}

func (m *mockLedger) CommitHold(ctx context.Context, uid, sessionID string) (ledger.Settlement, error) {
	m.calls = append(m.calls, call{op: "commit", uid: uid, sessionID: sessionID, ctxErr: ctx.Err()})
	return ledger.Settlement{Quota: m.quota, Applied: true}, m.commitErr
}

func (m *mockLedger) ReleaseHold(ctx context.Context, uid, sessionID string, refund bool) (ledger.Settlement, error) {
	m.calls = append(m.calls, call{op: "release", uid: uid, sessionID: sessionID, refund: refund, ctxErr: ctx.Err()})
	return ledger.Settlement{Quota: m.quota, Applied: true}, nil
}

type mockGenerator struct {
	result domain.Generation
	err    error
	before func()
	prompt domain.Prompt
}

func (m *mockGenerator) Generate(_ context.Context, p domain.Prompt) (domain.Generation, error) {
	m.prompt = p
	if m.before != nil {
		m.before()
	}
	return m.result, m.err
}

func validRequest() Request {
	return Request{
		UID:            "u1",
		SessionID:      "sess-1",
		Kind:           domain.KindCoverLetter,
		JobDescription: "Backend engineer, Go",
		Background:     "Five years of Go",
	}
}

// --- Tests ---

func TestRun_SuccessCommits(t *testing.T) {
	l := &mockLedger{quota: profile.NewQuota(9)}
	g := &mockGenerator{result: domain.Generation{Content: "Dear team"}}
	o := New(l, g, zap.NewNop())

	res, err := o.Run(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Generation.Content != "Dear team" {
		t.Errorf("expected content, got %q", res.Generation.Content)
	}
	if !res.Committed {
		t.Error("expected committed result")
	}
	if res.SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %q", res.SessionID)
	}
	if len(l.calls) != 2 || l.calls[0].op != "place" || l.calls[1].op != "commit" {
		t.Fatalf("expected place then commit, got %+v", l.calls)
	}
	if l.calls[0].amount != DefaultHoldCost {
		t.Errorf("expected amount %d, got %d", DefaultHoldCost, l.calls[0].amount)
	}
	if g.prompt.System == "" {
		t.Error("expected system instruction in prompt")
	}
}

func TestRun_GeneratesSessionID(t *testing.T) {
	l := &mockLedger{}
	o := New(l, &mockGenerator{}, zap.NewNop())
	req := validRequest()
	req.SessionID = ""

	res, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected generated session id")
	}
	if l.calls[0].sessionID != res.SessionID || l.calls[1].sessionID != res.SessionID {
		t.Errorf("expected hold keyed by %q, got %+v", res.SessionID, l.calls)
	}
}

func TestRun_FailureReleasesWithRefund(t *testing.T) {
	l := &mockLedger{}
	o := New(l, &mockGenerator{err: domain.ErrGenerationFailed}, zap.NewNop()).WithCost(3)

	_, err := o.Run(context.Background(), validRequest())
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if len(l.calls) != 2 || l.calls[1].op != "release" || !l.calls[1].refund {
		t.Fatalf("expected place then refunding release, got %+v", l.calls)
	}
	if l.calls[0].amount != 3 {
		t.Errorf("expected amount 3, got %d", l.calls[0].amount)
	}
}

func TestRun_CancelledRequestStillRefunds(t *testing.T) {
	l := &mockLedger{}
	ctx, cancel := context.WithCancel(context.Background())
	g := &mockGenerator{before: cancel, err: context.Canceled}
	o := New(l, g, zap.NewNop())

	_, err := o.Run(ctx, validRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	release := l.calls[len(l.calls)-1]
	if release.op != "release" {
		t.Fatalf("expected release, got %+v", release)
	}
	if release.ctxErr != nil {
		t.Errorf("expected live context for release, got %v", release.ctxErr)
	}
}

func TestRun_QuotaExceededSkipsGenerator(t *testing.T) {
	l := &mockLedger{placeErr: domain.ErrQuotaExceeded}
	g := &mockGenerator{before: func() { t.Fatal("generator must not run") }}
	o := New(l, g, zap.NewNop())

	_, err := o.Run(context.Background(), validRequest())
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if len(l.calls) != 1 {
		t.Errorf("expected only place, got %+v", l.calls)
	}
}

func TestRun_InvalidRequestPlacesNothing(t *testing.T) {
	l := &mockLedger{}
	o := New(l, &mockGenerator{}, zap.NewNop())
	req := validRequest()
	req.Kind = "poem"

	_, err := o.Run(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if len(l.calls) != 0 {
		t.Errorf("expected no ledger calls, got %+v", l.calls)
	}
}

func TestRun_NotConfigured(t *testing.T) {
	o := New(&mockLedger{}, nil, zap.NewNop())

	_, err := o.Run(context.Background(), validRequest())
	if !errors.Is(err, domain.ErrGenerationNotConfigured) {
		t.Fatalf("expected ErrGenerationNotConfigured, got %v", err)
	}
}

func TestRun_CommitFailureStillReturnsContent(t *testing.T) {
	l := &mockLedger{commitErr: errors.New("store down")}
	o := New(l, &mockGenerator{result: domain.Generation{Content: "ok"}}, zap.NewNop())

	res, err := o.Run(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Committed {
		t.Error("expected uncommitted result")
	}
	if res.Generation.Content != "ok" {
		t.Errorf("expected content, got %q", res.Generation.Content)
	}
}

func TestRun_CancelledAfterDeliveryStillCommits(t *testing.T) {
	l := &mockLedger{quota: profile.NewQuota(4)}
	ctx, cancel := context.WithCancel(context.Background())
	g := &mockGenerator{before: cancel, result: domain.Generation{Content: "letter"}}
	o := New(l, g, zap.NewNop())

	res, err := o.Run(ctx, validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Committed {
		t.Fatal("expected committed result")
	}
	commit := l.calls[len(l.calls)-1]
	if commit.op != "commit" {
		t.Fatalf("expected commit, got %+v", commit)
	}
	if commit.ctxErr != nil {
		t.Errorf("expected live context for commit, got %v", commit.ctxErr)
	}
}

func TestRun_CancelledAfterDeliveryChargesLedger(t *testing.T) {
	log := zap.NewNop()
	store := memory.NewStore()
	provider := policyuc.New(policyrepo.New(store, "test:"), log).
		WithFallback(policy.Access{DefaultQuota: 1, HoldTimeoutMinutes: 1})
	svc := ledger.New(profilerepo.New(store, "test:"), provider, log)
	if _, _, err := svc.EnsureProfile(context.Background(), profile.Identity{UID: "u1"}); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &mockGenerator{before: cancel, result: domain.Generation{Content: "letter"}}
	res, err := New(svc, g, log).Run(ctx, validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Committed {
		t.Fatal("expected committed result")
	}

	q, _, err := svc.GetQuota(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if q.Remaining() != 0 || q.OnHold() != 0 {
		t.Errorf("expected remaining=0 onHold=0, got remaining=%d onHold=%d", q.Remaining(), q.OnHold())
	}
	_, _, err = svc.PlaceHold(context.Background(), "u1", "next", 1, 0)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded for the next run, got %v", err)
	}
}
