package billing

import (
	"math"
	"time"

	"inkwell/internal/types"
)

// Evaluate computes the derived entitlement view for a ledger entry at a
// point in time. It is a pure, total projection: it never mutates state,
// never fails, and handles every structurally valid entry, including a zero
// token limit. Malformed input (negative counters) is rejected at the ledger
// boundary, not here.
func Evaluate(entry types.UsageLedgerEntry, now time.Time) types.EntitlementSnapshot {
	snap := types.EntitlementSnapshot{
		AccountID:   entry.AccountID,
		Plan:        entry.Plan,
		Interval:    entry.Interval,
		Status:      entry.Status,
		TokensUsed:  entry.TokensUsed,
		TokensLimit: entry.TokensLimit,
		CycleEndsAt: entry.CycleEndsAt,
	}

	if entry.TokensUsed < entry.TokensLimit {
		snap.TokensRemaining = entry.TokensLimit - entry.TokensUsed
	}

	// Guarded so a zero limit yields 0%, never a division error.
	if entry.TokensLimit > 0 {
		snap.UsagePercent = int(math.Round(float64(entry.TokensUsed) * 100 / float64(entry.TokensLimit)))
	}

	snap.IsOverLimit = entry.TokensUsed > entry.TokensLimit

	// A nil cycle end means a non-expiring entitlement (free tier).
	snap.IsActive = entry.Status == types.SubStatusActive &&
		(entry.CycleEndsAt == nil || entry.CycleEndsAt.After(now))

	if entry.CycleEndsAt != nil {
		days := int(math.Ceil(entry.CycleEndsAt.Sub(now).Hours() / 24))
		snap.DaysUntilRenewal = &days
	}

	return snap
}
