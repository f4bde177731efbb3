package profile

// HoldStatus is the lifecycle state of a hold.
type HoldStatus string

const (
	// HoldActive is a reservation pending commit or release.
	HoldActive HoldStatus = "active"
	// HoldCommitted marks a hold whose credits were consumed.
	HoldCommitted HoldStatus = "committed"
	// HoldReleased marks a hold whose credits were given up.
	HoldReleased HoldStatus = "released"
)

// IsValid checks if the status is known.
func (s HoldStatus) IsValid() bool {
	return s == HoldActive || s == HoldCommitted || s == HoldReleased
}

// Hold is a temporary reservation of credits owned by one session.
// Committed and released holds leave the quota's map; those statuses only
// appear on the value returned from the transition.
type Hold struct {
	sessionID string
	amount    int64
	status    HoldStatus
	placedAt  int64
	updatedAt int64
	expiresAt int64
}

// ReconstructHold creates a Hold without validation (storage hydration).
func ReconstructHold(
	sessionID string, amount int64, status HoldStatus,
	placedAt, updatedAt, expiresAt int64,
) Hold {
	return Hold{
		sessionID: sessionID,
		amount:    amount,
		status:    status,
		placedAt:  placedAt,
		updatedAt: updatedAt,
		expiresAt: expiresAt,
	}
}

// SessionID returns the owning session.
func (h Hold) SessionID() string { return h.sessionID }

// Amount returns the reserved credits.
func (h Hold) Amount() int64 { return h.amount }

// Status returns the lifecycle state.
func (h Hold) Status() HoldStatus { return h.status }

// PlacedAt returns the placement time (unix millis).
func (h Hold) PlacedAt() int64 { return h.placedAt }

// UpdatedAt returns the last transition or refresh time (unix millis).
func (h Hold) UpdatedAt() int64 { return h.updatedAt }

// ExpiresAt returns the expiry time (unix millis), 0 if the hold never expires.
func (h Hold) ExpiresAt() int64 { return h.expiresAt }

// IsActive reports whether the hold still reserves credits.
func (h Hold) IsActive() bool { return h.status == HoldActive }

// IsExpired reports whether the hold's window has elapsed at now.
func (h Hold) IsExpired(now int64) bool {
	return h.expiresAt > 0 && h.expiresAt <= now
}

// wellFormed rejects records that cannot be reclaimed safely.
func (h Hold) wellFormed() bool {
	return h.sessionID != "" && h.amount > 0 && h.status.IsValid()
}
