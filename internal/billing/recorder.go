package billing

import (
	"context"
	"log/slog"
	"time"

	"inkwell/internal/types"
)

// chargeMaxAttempts bounds the optimistic-retry loop in Charge. Conflicts are
// expected to be rare (two in-flight generations for one account); exhausting
// the budget surfaces a retriable conflict to the caller.
const chargeMaxAttempts = 3

// Recorder applies token charges against ledger entries. Charging happens
// AFTER a generation succeeds: the generation collaborator must not call
// Charge for failed generations, and the core provides no refund path once a
// charge commits.
type Recorder struct {
	repo    LedgerRepository
	catalog PlanCatalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder over the given repository and catalog.
func NewRecorder(repo LedgerRepository, catalog PlanCatalog, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// Charge debits tokenCount tokens from the account's current cycle and
// returns the post-charge entitlement snapshot.
//
// The read-evaluate-write sequence is serialized per account via optimistic
// concurrency: each attempt reads the entry, checks the charging policy
// against the observed tokens_used, and commits with a compare-and-swap on
// that value. A lost race re-reads and re-checks, so a hard cap can never be
// jointly overshot by concurrent near-quota charges. After chargeMaxAttempts
// lost races the charge fails with a retriable conflict error and the entry
// is unchanged.
//
// Business-rule rejections (inactive subscription, hard-cap quota) leave the
// entry unchanged and are expected outcomes, not system errors.
func (rec *Recorder) Charge(ctx context.Context, accountID string, tokenCount int64) (*types.EntitlementSnapshot, error) {
	if tokenCount <= 0 {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationTokenCount,
			"token count must be positive",
			nil,
			map[string]any{"token_count": tokenCount},
		)
	}

	for attempt := 1; attempt <= chargeMaxAttempts; attempt++ {
		entry, err := rec.repo.Get(ctx, accountID)
		if err != nil {
			return nil, err
		}

		now := rec.now().UTC()
		if snap := Evaluate(*entry, now); !snap.IsActive {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeSubscriptionInactive,
				"subscription is not active; renew to continue generating documents",
				nil,
				map[string]any{"status": string(entry.Status)},
			)
		}

		def, err := rec.catalog.Definition(entry.Plan, entry.Interval)
		if err != nil {
			return nil, err
		}

		newUsed := entry.TokensUsed + tokenCount
		if def.CapPolicy == types.CapHard && newUsed > entry.TokensLimit {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeQuotaExceeded,
				"token quota exceeded for current plan",
				nil,
				map[string]any{
					"tokens_used":  entry.TokensUsed,
					"tokens_limit": entry.TokensLimit,
					"requested":    tokenCount,
					"plan":         string(entry.Plan),
				},
			)
		}

		swapped, err := rec.repo.CompareAndSwapUsage(ctx, accountID, entry.TokensUsed, newUsed)
		if err != nil {
			return nil, err
		}
		if swapped {
			entry.TokensUsed = newUsed
			snap := Evaluate(*entry, now)
			return &snap, nil
		}

		rec.logger.DebugContext(ctx, "charge lost optimistic race, retrying",
			slog.String("account_id", accountID),
			slog.Int("attempt", attempt),
		)
	}

	return nil, types.NewAppErrorWithDetails(
		types.ErrCodeConflictConcurrent,
		"concurrent charges exhausted retry budget; try again",
		nil,
		map[string]any{"attempts": chargeMaxAttempts},
	)
}
