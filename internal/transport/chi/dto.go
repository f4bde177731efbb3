package chi

import (
	"github.com/kailas-cloud/tailorly/internal/domain/policy"
	"github.com/kailas-cloud/tailorly/internal/domain/profile"
	"github.com/kailas-cloud/tailorly/internal/usecase/health"
)

// ErrorResponseCode is a stable machine-readable error identifier.
type ErrorResponseCode string

// Error codes returned by the API.
const (
	ErrorResponseCodeBadRequest        ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized      ErrorResponseCode = "unauthorized"
	ErrorResponseCodeForbidden         ErrorResponseCode = "forbidden"
	ErrorResponseCodeValidationFailed  ErrorResponseCode = "validation_failed"
	ErrorResponseCodeProfileNotFound   ErrorResponseCode = "profile_not_found"
	ErrorResponseCodeQuotaExceeded     ErrorResponseCode = "quota_exceeded"
	ErrorResponseCodeUnavailable       ErrorResponseCode = "unavailable"
	ErrorResponseCodeGenerationFailed  ErrorResponseCode = "generation_failed"
	ErrorResponseCodeNotImplemented    ErrorResponseCode = "not_implemented"
	ErrorResponseCodeInternalError     ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status health.Status                 `json:"status"`
	Checks map[string]health.CheckResult `json:"checks"`
}

// ProfileRequest is the body of PUT and PATCH /profiles/{uid}.
type ProfileRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

// PlaceHoldRequest is the body of POST /profiles/{uid}/holds.
type PlaceHoldRequest struct {
	SessionID      string `json:"session_id"`
	Amount         *int64 `json:"amount,omitempty"`
	HoldDurationMs int64  `json:"hold_duration_ms,omitempty"`
}

// ReleaseHoldRequest is the optional body of the release endpoint.
type ReleaseHoldRequest struct {
	Refund *bool `json:"refund,omitempty"`
}

// GrantRequest is the body of POST /profiles/{uid}/allocations.
type GrantRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// GenerationRequest is the body of POST /profiles/{uid}/generations.
type GenerationRequest struct {
	SessionID      string `json:"session_id,omitempty"`
	Kind           string `json:"kind"`
	JobDescription string `json:"job_description"`
	Background     string `json:"background,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
}

// PolicyBody is the request and response shape of /policy.
type PolicyBody struct {
	DefaultQuota       int64 `json:"default_quota"`
	HoldTimeoutMinutes int   `json:"hold_timeout_minutes"`
}

// Hold is the wire shape of a hold.
type Hold struct {
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	PlacedAt  int64  `json:"placed_at"`
	UpdatedAt int64  `json:"updated_at"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// Quota is the wire shape of a quota.
type Quota struct {
	TotalAllocated int64  `json:"total_allocated"`
	Remaining      int64  `json:"remaining"`
	OnHold         int64  `json:"on_hold"`
	Holds          []Hold `json:"holds"`
}

// Allocation is the wire shape of an allocation entry.
type Allocation struct {
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor"`
	CreatedAt int64  `json:"created_at"`
}

// Profile is the wire shape of a profile.
type Profile struct {
	UID         string       `json:"uid"`
	Email       string       `json:"email,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
	PhotoURL    string       `json:"photo_url,omitempty"`
	CreatedAt   int64        `json:"created_at"`
	UpdatedAt   int64        `json:"updated_at"`
	Quota       Quota        `json:"quota"`
	Allocations []Allocation `json:"allocations"`
}

// QuotaResponse is the body of GET /profiles/{uid}/quota. Quota is null
// when the user has no profile yet.
type QuotaResponse struct {
	UID   string `json:"uid"`
	Quota *Quota `json:"quota"`
}

// HoldResponse is the body of a successful reservation.
type HoldResponse struct {
	Hold  Hold  `json:"hold"`
	Quota Quota `json:"quota"`
}

// SettlementResponse is the body of commit and release.
type SettlementResponse struct {
	Applied bool  `json:"applied"`
	Hold    *Hold `json:"hold,omitempty"`
	Quota   Quota `json:"quota"`
}

// GenerationResponse is the body of a completed generation.
type GenerationResponse struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	Quota     *Quota `json:"quota,omitempty"`
}

func holdToDTO(h profile.Hold) Hold {
	return Hold{
		SessionID: h.SessionID(),
		Amount:    h.Amount(),
		Status:    string(h.Status()),
		PlacedAt:  h.PlacedAt(),
		UpdatedAt: h.UpdatedAt(),
		ExpiresAt: h.ExpiresAt(),
	}
}

func quotaToDTO(q profile.Quota) Quota {
	holds := q.Holds()
	out := Quota{
		TotalAllocated: q.TotalAllocated(),
		Remaining:      q.Remaining(),
		OnHold:         q.OnHold(),
		Holds:          make([]Hold, len(holds)),
	}
	for i, h := range holds {
		out.Holds[i] = holdToDTO(h)
	}
	return out
}

func profileToDTO(p profile.Profile) Profile {
	allocs := p.Allocations()
	out := Profile{
		UID:         p.UID(),
		Email:       p.Email(),
		DisplayName: p.DisplayName(),
		PhotoURL:    p.PhotoURL(),
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
		Quota:       quotaToDTO(p.Quota()),
		Allocations: make([]Allocation, len(allocs)),
	}
	for i, a := range allocs {
		out.Allocations[i] = Allocation(a)
	}
	return out
}

func policyToDTO(a policy.Access) PolicyBody {
	return PolicyBody{DefaultQuota: a.DefaultQuota, HoldTimeoutMinutes: a.HoldTimeoutMinutes}
}
