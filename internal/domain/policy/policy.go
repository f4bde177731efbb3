package policy

import "time"

// Fallback values used when the stored policy is unreadable.
const (
	DefaultQuota              int64 = 150
	DefaultHoldTimeoutMinutes       = 60
)

// Access is the quota policy applied to new profiles and new holds.
type Access struct {
	DefaultQuota       int64
	HoldTimeoutMinutes int
}

// Default returns the documented fallback policy.
func Default() Access {
	return Access{
		DefaultQuota:       DefaultQuota,
		HoldTimeoutMinutes: DefaultHoldTimeoutMinutes,
	}
}

// HoldTimeout returns the default hold window.
func (a Access) HoldTimeout() time.Duration {
	return time.Duration(a.HoldTimeoutMinutes) * time.Minute
}

// WithFallback replaces non-positive fields with the ones from fb.
func (a Access) WithFallback(fb Access) Access {
	if a.DefaultQuota <= 0 {
		a.DefaultQuota = fb.DefaultQuota
	}
	if a.HoldTimeoutMinutes <= 0 {
		a.HoldTimeoutMinutes = fb.HoldTimeoutMinutes
	}
	return a
}
