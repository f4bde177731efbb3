package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	"github.com/kailas-cloud/tailorly/internal/usecase/ledger"
)

// DefaultHoldCost is the number of credits one run reserves.
const DefaultHoldCost int64 = 1

// settleTimeout bounds the commit or refund issued after the caller's
// context may have ended.
const settleTimeout = 10 * time.Second

// Request is a billable generation run.
type Request struct {
	UID            string
	SessionID      string
	Kind           domain.Kind
	JobDescription string
	Background     string
	DisplayName    string
}

// Result is a completed run and the ledger state after its commit.
// Quota is only set when Committed is true.
type Result struct {
	SessionID  string
	Generation domain.Generation
	Quota      profile.Quota
	Committed  bool
}

// Orchestrator brackets each generator call with a ledger hold: placed
// before, committed on success, released with refund on failure.
type Orchestrator struct {
	ledger    Ledger
	generator domain.Generator
	cost      int64
	logger    *zap.Logger
	newID     func() string
}

// New creates an orchestrator. generator can be nil (runs then fail with
// domain.ErrGenerationNotConfigured before any hold is placed).
func New(l Ledger, generator domain.Generator, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:    l,
		generator: generator,
		cost:      DefaultHoldCost,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
	}
}

// WithCost overrides the credits reserved per run.
func (o *Orchestrator) WithCost(cost int64) *Orchestrator {
	if cost > 0 {
		o.cost = cost
	}
	return o
}

// Run executes one billable generation.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if o.generator == nil {
		return Result{}, domain.ErrGenerationNotConfigured
	}
	prompt, err := domain.NewPrompt(req.Kind, req.JobDescription, req.Background, req.DisplayName)
	if err != nil {
		return Result{}, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = o.newID()
	}
	log := o.logger.With(zap.String("uid", req.UID), zap.String("session_id", sessionID))

	if _, _, err := o.ledger.PlaceHold(ctx, req.UID, sessionID, o.cost, 0); err != nil {
		return Result{}, fmt.Errorf("reserve credits: %w", err)
	}

	gen, genErr := o.generator.Generate(ctx, prompt)
	if genErr != nil {
		o.refund(ctx, log, req.UID, sessionID)
		return Result{}, fmt.Errorf("generate %s: %w", req.Kind, genErr)
	}

	st, err := o.commit(ctx, req.UID, sessionID)
	if err != nil {
		// The hold expires on its own; the user is not charged twice.
		log.Error("Failed to commit hold after successful generation", zap.Error(err))
		return Result{SessionID: sessionID, Generation: gen}, nil
	}
	return Result{SessionID: sessionID, Generation: gen, Quota: st.Quota, Committed: true}, nil
}

// commit charges the hold on a context detached from the caller, so a
// client that disconnects after delivery is still billed.
func (o *Orchestrator) commit(ctx context.Context, uid, sessionID string) (ledger.Settlement, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	return o.ledger.CommitHold(ctx, uid, sessionID)
}

// refund releases the hold on a context detached from the caller, so a
// cancelled request still returns its credits.
func (o *Orchestrator) refund(ctx context.Context, log *zap.Logger, uid, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if _, err := o.ledger.ReleaseHold(ctx, uid, sessionID, true); err != nil {
		log.Error("Failed to release hold after failed generation", zap.Error(err))
		return
	}
	log.Info("Hold released after failed generation")
}
