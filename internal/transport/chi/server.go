package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/db"
	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/domain/policy"
	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	logpkg "github.com/kailas-cloud/tailorly/internal/logger"
	generationuc "github.com/kailas-cloud/tailorly/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/tailorly/internal/usecase/health"
	ledgeruc "github.com/kailas-cloud/tailorly/internal/usecase/ledger"
	policyuc "github.com/kailas-cloud/tailorly/internal/usecase/policy"
)

// maxBodyBytes caps request bodies; job descriptions are the largest payload.
const maxBodyBytes = 1 << 20

// maxHoldDurationMs is the largest hold duration that fits a time.Duration.
const maxHoldDurationMs = int64(math.MaxInt64 / time.Millisecond)

// unavailableMessage is returned when the ledger gave up on a contended transaction.
const unavailableMessage = "unable to process request, please retry"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the ledger, policy and generation use cases over HTTP.
type Server struct {
	ledger        *ledgeruc.Service
	policy        *policyuc.Provider
	generations   *generationuc.Orchestrator
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ledger *ledgeruc.Service,
	policy *policyuc.Provider,
	generations *generationuc.Orchestrator,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ledger:      ledger,
		policy:      policy,
		generations: generations,
		health:      health,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		invalidArgumentHandler,
		sentinelHandler(domain.ErrProfileNotFound, http.StatusNotFound, ErrorResponseCodeProfileNotFound),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusPaymentRequired, ErrorResponseCodeQuotaExceeded),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, ErrorResponseCodeForbidden),
		sentinelHandler(db.ErrTxExhausted, http.StatusServiceUnavailable, ErrorResponseCodeUnavailable),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, ErrorResponseCodeGenerationFailed),
		sentinelHandler(domain.ErrGenerationNotConfigured,
			http.StatusNotImplemented, ErrorResponseCodeNotImplemented),
	}
	return s
}

// Routes registers every endpoint on r. Admin-only routes are wrapped
// with requireAdmin.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/profiles/{uid}", func(r chi.Router) {
		r.Put("/", s.EnsureProfile)
		r.Patch("/", s.SyncProfile)
		r.Get("/", s.GetProfile)
		r.Get("/quota", s.GetQuota)
		r.Post("/holds", s.PlaceHold)
		r.Post("/holds/{session}/commit", s.CommitHold)
		r.Post("/holds/{session}/release", s.ReleaseHold)
		r.Post("/generations", s.RunGeneration)
		r.With(s.requireAdmin).Post("/allocations", s.Grant)
	})

	r.Get("/policy", s.GetPolicy)
	r.With(s.requireAdmin).Put("/policy", s.PutPolicy)
}

// EnsureProfile handles PUT /profiles/{uid}.
func (s *Server) EnsureProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	p, created, err := s.ledger.EnsureProfile(r.Context(), identityFrom(r, req))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, profileToDTO(p))
}

// SyncProfile handles PATCH /profiles/{uid}.
func (s *Server) SyncProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	p, err := s.ledger.SyncProfile(r.Context(), identityFrom(r, req))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileToDTO(p))
}

// GetProfile handles GET /profiles/{uid}.
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.GetProfile(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileToDTO(p))
}

// GetQuota handles GET /profiles/{uid}/quota.
func (s *Server) GetQuota(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	q, ok, err := s.ledger.GetQuota(r.Context(), uid)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := QuotaResponse{UID: uid}
	if ok {
		dto := quotaToDTO(q)
		resp.Quota = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlaceHold handles POST /profiles/{uid}/holds.
func (s *Server) PlaceHold(w http.ResponseWriter, r *http.Request) {
	var req PlaceHoldRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	amount := int64(1)
	if req.Amount != nil {
		amount = *req.Amount
	}
	if req.HoldDurationMs < 0 || req.HoldDurationMs > maxHoldDurationMs {
		s.handleDomainError(w, r, fmt.Errorf(
			"hold_duration_ms must be between 0 and %d: %w", maxHoldDurationMs, domain.ErrInvalidArgument,
		))
		return
	}
	duration := time.Duration(req.HoldDurationMs) * time.Millisecond

	h, q, err := s.ledger.PlaceHold(r.Context(), chi.URLParam(r, "uid"), req.SessionID, amount, duration)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HoldResponse{Hold: holdToDTO(h), Quota: quotaToDTO(q)})
}

// CommitHold handles POST /profiles/{uid}/holds/{session}/commit.
func (s *Server) CommitHold(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.CommitHold(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "session"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementToDTO(st))
}

// ReleaseHold handles POST /profiles/{uid}/holds/{session}/release.
func (s *Server) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	var req ReleaseHoldRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	refund := true
	if req.Refund != nil {
		refund = *req.Refund
	}

	st, err := s.ledger.ReleaseHold(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "session"), refund)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementToDTO(st))
}

// RunGeneration handles POST /profiles/{uid}/generations.
func (s *Server) RunGeneration(w http.ResponseWriter, r *http.Request) {
	var req GenerationRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	res, err := s.generations.Run(r.Context(), generationuc.Request{
		UID:            chi.URLParam(r, "uid"),
		SessionID:      req.SessionID,
		Kind:           domain.Kind(req.Kind),
		JobDescription: req.JobDescription,
		Background:     req.Background,
		DisplayName:    req.DisplayName,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := GenerationResponse{
		SessionID: res.SessionID,
		Content:   res.Generation.Content,
		Model:     res.Generation.Model,
	}
	if res.Committed {
		q := quotaToDTO(res.Quota)
		resp.Quota = &q
	}
	writeJSON(w, http.StatusOK, resp)
}

// Grant handles POST /profiles/{uid}/allocations.
func (s *Server) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = "admin"
	}
	p, err := s.ledger.Grant(r.Context(), chi.URLParam(r, "uid"), req.Amount, req.Reason, actor)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileToDTO(p))
}

// GetPolicy handles GET /policy.
func (s *Server) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, policyToDTO(s.policy.Get(r.Context())))
}

// PutPolicy handles PUT /policy.
func (s *Server) PutPolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyBody
	if !decodeBody(w, r, &req, true) {
		return
	}

	a, err := s.policy.Set(r.Context(), policy.Access{
		DefaultQuota:       req.DefaultQuota,
		HoldTimeoutMinutes: req.HoldTimeoutMinutes,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policyToDTO(a))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: report.Status,
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func identityFrom(r *http.Request, req ProfileRequest) profile.Identity {
	return profile.Identity{
		UID:         chi.URLParam(r, "uid"),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	}
}

func settlementToDTO(st ledgeruc.Settlement) SettlementResponse {
	resp := SettlementResponse{Applied: st.Applied, Quota: quotaToDTO(st.Quota)}
	if st.Applied {
		h := holdToDTO(st.Hold)
		resp.Hold = &h
	}
	return resp
}

// decodeBody reads a JSON body into v. An empty body is accepted unless
// required is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, required bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) && !required {
		return true
	}
	if errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Request body is required")
		return false
	}
	writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	if errors.Is(err, db.ErrTxExhausted) {
		return unavailableMessage
	}
	sentinels := []error{
		domain.ErrProfileNotFound,
		domain.ErrQuotaExceeded,
		domain.ErrInvalidArgument,
		domain.ErrForbidden,
		domain.ErrGenerationFailed,
		domain.ErrGenerationNotConfigured,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// invalidArgumentHandler exposes the full validation message. Every
// ErrInvalidArgument is built from caller input, never from store errors.
func invalidArgumentHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrInvalidArgument) {
		return false
	}
	writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, validationMessage(err))
	return true
}

// validationMessage strips the trailing sentinel text from a wrapped error.
func validationMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+domain.ErrInvalidArgument.Error())
}

// requireAdmin rejects non-admin callers through the error handler chain.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := AuthorizeAdmin(r.Context()); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(),
		s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context()))))
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}
