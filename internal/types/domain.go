package types

import "time"

// PlanDefinition is an immutable plan catalog row. Exactly one definition
// exists per (Plan, Interval) pair; quotas strictly increase with tier for a
// fixed interval.
type PlanDefinition struct {
	Plan            PlanID          `json:"plan"`
	Interval        BillingInterval `json:"interval"`
	BaseTokenQuota  int64           `json:"base_token_quota"`
	YearlyBonusRate float64         `json:"yearly_bonus_rate"`
	PriceCents      int64           `json:"price_cents"`
	CapPolicy       CapPolicy       `json:"cap_policy"`
}

// UsageLedgerEntry is the per-account token accounting record. One row exists
// per account in the usage_ledger table; it is the only mutable shared state
// in the billing core and every mutation goes through the ledger repository.
//
// TokensLimit is frozen at cycle start so mid-cycle catalog changes never
// retroactively alter an in-progress cycle. TokensUsed may exceed TokensLimit:
// overage is observable, not blocked at the ledger level -- the charging
// policy decides whether a charge is permitted.
type UsageLedgerEntry struct {
	AccountID   string             `json:"account_id" db:"account_id"`
	Plan        PlanID             `json:"plan" db:"plan_id"`
	Interval    BillingInterval    `json:"interval" db:"interval"`
	TokensUsed  int64              `json:"tokens_used" db:"tokens_used"`
	TokensLimit int64              `json:"tokens_limit" db:"tokens_limit"`
	// CycleEndsAt is nil for non-expiring entitlements (free tier).
	CycleEndsAt *time.Time         `json:"cycle_ends_at,omitempty" db:"cycle_ends_at"`
	Status      SubscriptionStatus `json:"status" db:"subscription_status"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// EntitlementSnapshot is the derived, read-only view of what an account may
// currently consume. It is a pure projection of a ledger entry at a point in
// time and is never stored.
type EntitlementSnapshot struct {
	AccountID        string             `json:"account_id"`
	Plan             PlanID             `json:"plan"`
	Interval         BillingInterval    `json:"interval"`
	Status           SubscriptionStatus `json:"status"`
	TokensUsed       int64              `json:"tokens_used"`
	TokensLimit      int64              `json:"tokens_limit"`
	TokensRemaining  int64              `json:"tokens_remaining"`
	UsagePercent     int                `json:"usage_percent"`
	IsOverLimit      bool               `json:"is_over_limit"`
	IsActive         bool               `json:"is_active"`
	DaysUntilRenewal *int               `json:"days_until_renewal,omitempty"`
	CycleEndsAt      *time.Time         `json:"cycle_ends_at,omitempty"`
}

// TierDistribution is one row of the admin distribution rollup.
type TierDistribution struct {
	Plan         PlanID `json:"plan"`
	AccountCount int    `json:"account_count"`
	// EstimatedRevenueCents is the monthly-equivalent revenue of active paid
	// subscriptions on this tier (yearly prices are divided by twelve).
	EstimatedRevenueCents int64 `json:"estimated_revenue_cents"`
}

// GrowthPoint is one month of the admin growth series.
type GrowthPoint struct {
	PeriodStart        time.Time `json:"period_start"`
	NewAccounts        int       `json:"new_accounts"`
	TotalAccounts      int       `json:"total_accounts"`
	VerifiedAccounts   int       `json:"verified_accounts"`
	SubscribedAccounts int       `json:"subscribed_accounts"`
}

// TierStatusCount matches the ledger grouping row used by the distribution
// rollup.
type TierStatusCount struct {
	Plan     PlanID
	Interval BillingInterval
	Status   SubscriptionStatus
	Count    int
}

// MonthlyCohort matches the per-month aggregation row used by the growth
// series. Verified and subscribed counts come from the accounts relation,
// which is owned by the identity collaborator.
type MonthlyCohort struct {
	PeriodStart        time.Time
	NewAccounts        int
	VerifiedAccounts   int
	SubscribedAccounts int
}

// RenewalEvent is the normalized shape of a subscription renewal from the
// payment collaborator. The webhook worker is responsible for deduplicating
// provider events before calling the ledger; the ledger applies renewals
// verbatim.
type RenewalEvent struct {
	AccountID   string             `json:"account_id"`
	Plan        PlanID             `json:"plan"`
	Interval    BillingInterval    `json:"interval"`
	Status      SubscriptionStatus `json:"status"`
	CycleEndsAt time.Time          `json:"cycle_ends_at"`
}

// GenerationResult is what the document-generation collaborator returns on
// success. Token cost accounting is owned by the collaborator; the billing
// core only charges the reported count.
type GenerationResult struct {
	DocumentID     string `json:"document_id"`
	TokensConsumed int64  `json:"tokens_consumed"`
	ContentURL     string `json:"content_url,omitempty"`
}
