package tailorly

import (
	"github.com/kailas-cloud/tailorly/internal/db"
	"github.com/kailas-cloud/tailorly/internal/domain"
)

// QuotaExceededMessage is the text to show a user whose reservation was rejected.
const QuotaExceededMessage = domain.QuotaExceededMessage

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrProfileNotFound = domain.ErrProfileNotFound
	ErrQuotaExceeded   = domain.ErrQuotaExceeded
	ErrInvalidArgument = domain.ErrInvalidArgument
	// ErrBusy is returned when a profile stayed contended for every retry.
	ErrBusy = db.ErrTxExhausted
)
