package billing

import (
	"context"
	"time"

	"inkwell/internal/types"
)

// LedgerRepository is the storage contract for usage_ledger rows. Implemented
// by db.LedgerRepo; all storage errors arrive already wrapped as AppErrors.
type LedgerRepository interface {
	// Get returns the entry for the account, or a not-found error.
	Get(ctx context.Context, accountID string) (*types.UsageLedgerEntry, error)

	// Insert creates a new entry, failing with a conflict error if one exists.
	Insert(ctx context.Context, entry *types.UsageLedgerEntry) error

	// UpdateForRenewal resets tokens_used to zero and rewrites the plan,
	// interval, limit, and cycle end in a single statement.
	UpdateForRenewal(
		ctx context.Context,
		accountID string,
		plan types.PlanID,
		interval types.BillingInterval,
		tokensLimit int64,
		cycleEndsAt *time.Time,
	) error

	// SetStatus updates the subscription status only.
	SetStatus(ctx context.Context, accountID string, status types.SubscriptionStatus) error

	// CompareAndSwapUsage sets tokens_used to newUsed only if it still equals
	// expectedUsed, reporting whether the swap happened. This is the atomic
	// primitive the recorder's charge loop is built on.
	CompareAndSwapUsage(ctx context.Context, accountID string, expectedUsed, newUsed int64) (bool, error)
}

// Ledger owns the lifecycle of usage ledger entries. It binds the storage
// layer to the plan catalog so token limits are always derived from the
// catalog at initialization or renewal and then frozen for the cycle.
type Ledger struct {
	repo    LedgerRepository
	catalog PlanCatalog
	now     func() time.Time
}

// NewLedger creates a Ledger over the given repository and catalog.
func NewLedger(repo LedgerRepository, catalog PlanCatalog) *Ledger {
	return &Ledger{
		repo:    repo,
		catalog: catalog,
		now:     time.Now,
	}
}

// Get returns the ledger entry for the account.
func (l *Ledger) Get(ctx context.Context, accountID string) (*types.UsageLedgerEntry, error) {
	return l.repo.Get(ctx, accountID)
}

// Snapshot returns the current entitlement view for the account.
func (l *Ledger) Snapshot(ctx context.Context, accountID string) (*types.EntitlementSnapshot, error) {
	entry, err := l.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	snap := Evaluate(*entry, l.now().UTC())
	return &snap, nil
}

// Initialize creates the ledger entry for a new account with zero usage and
// the catalog-derived quota for the chosen plan. A new entry starts with an
// active entitlement: the free tier is a non-expiring grant, so signup must
// not require a payment event before the first generation.
func (l *Ledger) Initialize(
	ctx context.Context,
	accountID string,
	plan types.PlanID,
	interval types.BillingInterval,
	cycleEndsAt *time.Time,
) (*types.UsageLedgerEntry, error) {
	limit, err := l.catalog.EffectiveQuota(plan, interval)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	entry := &types.UsageLedgerEntry{
		AccountID:   accountID,
		Plan:        plan,
		Interval:    interval,
		TokensUsed:  0,
		TokensLimit: limit,
		CycleEndsAt: cycleEndsAt,
		Status:      types.SubStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := l.repo.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Renew applies a billing-cycle renewal: usage resets to zero, the limit is
// recomputed from the catalog for the (possibly new) plan, and the cycle end
// advances. The payment collaborator deduplicates provider events before
// calling this; the ledger applies each call verbatim.
func (l *Ledger) Renew(
	ctx context.Context,
	accountID string,
	plan types.PlanID,
	interval types.BillingInterval,
	cycleEndsAt time.Time,
) error {
	if cycleEndsAt.IsZero() || !cycleEndsAt.After(l.now().UTC()) {
		return types.NewAppError(
			types.ErrCodeValidationCycleEnd,
			"renewal cycle end must be in the future",
			nil,
		)
	}

	limit, err := l.catalog.EffectiveQuota(plan, interval)
	if err != nil {
		return err
	}

	end := cycleEndsAt.UTC()
	return l.repo.UpdateForRenewal(ctx, accountID, plan, interval, limit, &end)
}

// SetStatus applies a subscription status transition. Status is independent
// of quota; no counters change.
func (l *Ledger) SetStatus(ctx context.Context, accountID string, status types.SubscriptionStatus) error {
	switch status {
	case types.SubStatusActive, types.SubStatusPastDue, types.SubStatusCanceled, types.SubStatusNone:
	default:
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"unknown subscription status: "+string(status),
			nil,
		)
	}
	return l.repo.SetStatus(ctx, accountID, status)
}
