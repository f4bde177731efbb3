// Package tailorly embeds the tailorly quota ledger in a Go process.
//
// The ledger keeps one profile document per user. Every billable run is
// bracketed by a hold: place it before the work, commit it on success,
// release it (with refund) on failure. Holds that are never settled expire
// and return their credits on the next reservation.
//
//	client, _ := tailorly.New(ctx, tailorly.WithValkey("localhost:6379", ""))
//	defer client.Close()
//
//	_, _, _ = client.EnsureProfile(ctx, tailorly.Identity{UID: "u1", Email: "a@example.com"})
//	if _, _, err := client.PlaceHold(ctx, "u1", "run-42", 1, 0); errors.Is(err, tailorly.ErrQuotaExceeded) {
//	    // show the allocation message
//	}
//	// ... do the work ...
//	_, _ = client.CommitHold(ctx, "u1", "run-42")
package tailorly
