package domain

import "errors"

// QuotaExceededMessage is shown verbatim to users whose reservation was rejected.
const QuotaExceededMessage = "You have reached your current allocation."

var (
	// ErrProfileNotFound signals an operation against a uid with no profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrQuotaExceeded signals that remaining credits cannot cover a reservation.
	ErrQuotaExceeded = errors.New(QuotaExceededMessage)
	// ErrInvalidArgument signals a malformed request (e.g. non-positive amount).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden signals a caller without the required privileges.
	ErrForbidden = errors.New("forbidden")

	// ErrGenerationFailed signals an LLM provider failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrGenerationNotConfigured signals that no generator is wired.
	ErrGenerationNotConfigured = errors.New("generation not configured")
)
