package profile

import (
	"encoding/json"
	"fmt"

	domprofile "github.com/kailas-cloud/tailorly/internal/domain/profile"
)

// profileDoc is the stored JSON shape of a profile.
type profileDoc struct {
	UID         string          `json:"uid"`
	Email       string          `json:"email,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	PhotoURL    string          `json:"photo_url,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
	Quota       quotaDoc        `json:"quota"`
	Allocations []allocationDoc `json:"allocations"`
}

type quotaDoc struct {
	TotalAllocated int64              `json:"total_allocated"`
	Remaining      int64              `json:"remaining"`
	OnHold         int64              `json:"on_hold"`
	Holds          map[string]holdDoc `json:"holds"`
}

// holdDoc keeps every field optional so partially written holds still
// decode and reach the sweep, which reports them instead of failing.
type holdDoc struct {
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	PlacedAt  int64  `json:"placed_at"`
	UpdatedAt int64  `json:"updated_at"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type allocationDoc struct {
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Actor     string `json:"actor"`
	CreatedAt int64  `json:"created_at"`
}

func marshalProfile(p domprofile.Profile) ([]byte, error) {
	q := p.Quota()
	holds := q.HoldsByKey()
	doc := profileDoc{
		UID:         p.UID(),
		Email:       p.Email(),
		DisplayName: p.DisplayName(),
		PhotoURL:    p.PhotoURL(),
		CreatedAt:   p.CreatedAt(),
		UpdatedAt:   p.UpdatedAt(),
		Quota: quotaDoc{
			TotalAllocated: q.TotalAllocated(),
			Remaining:      q.Remaining(),
			OnHold:         q.OnHold(),
			Holds:          make(map[string]holdDoc, len(holds)),
		},
	}
	for key, h := range holds {
		doc.Quota.Holds[key] = holdDoc{
			SessionID: h.SessionID(),
			Amount:    h.Amount(),
			Status:    string(h.Status()),
			PlacedAt:  h.PlacedAt(),
			UpdatedAt: h.UpdatedAt(),
			ExpiresAt: h.ExpiresAt(),
		}
	}
	allocs := p.Allocations()
	doc.Allocations = make([]allocationDoc, len(allocs))
	for i, a := range allocs {
		doc.Allocations[i] = allocationDoc(a)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal profile %s: %w", p.UID(), err)
	}
	return data, nil
}

func unmarshalProfile(data []byte) (domprofile.Profile, error) {
	var doc profileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domprofile.Profile{}, fmt.Errorf("unmarshal profile: %w", err)
	}

	holds := make(map[string]domprofile.Hold, len(doc.Quota.Holds))
	for key, h := range doc.Quota.Holds {
		holds[key] = domprofile.ReconstructHold(
			h.SessionID, h.Amount, domprofile.HoldStatus(h.Status),
			h.PlacedAt, h.UpdatedAt, h.ExpiresAt,
		)
	}
	allocs := make([]domprofile.Allocation, len(doc.Allocations))
	for i, a := range doc.Allocations {
		allocs[i] = domprofile.Allocation(a)
	}

	return domprofile.Reconstruct(
		domprofile.Identity{
			UID:         doc.UID,
			Email:       doc.Email,
			DisplayName: doc.DisplayName,
			PhotoURL:    doc.PhotoURL,
		},
		doc.CreatedAt, doc.UpdatedAt,
		domprofile.ReconstructQuota(doc.Quota.TotalAllocated, doc.Quota.Remaining, doc.Quota.OnHold, holds),
		allocs,
	), nil
}
