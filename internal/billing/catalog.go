// Package billing implements the token entitlement and usage accounting core:
// the plan catalog, the usage ledger, the entitlement evaluator, the usage
// recorder, and the admin aggregation reporter.
package billing

import (
	"math"

	"inkwell/internal/types"
)

// PlanCatalog is the authoritative mapping from (tier, interval) to plan
// terms. Lookups are O(1) and side-effect free.
type PlanCatalog interface {
	// Definition returns the full plan terms for the given pair.
	Definition(plan types.PlanID, interval types.BillingInterval) (types.PlanDefinition, error)

	// QuotaFor returns the base token quota before any interval bonus.
	QuotaFor(plan types.PlanID, interval types.BillingInterval) (int64, error)

	// EffectiveQuota returns the quota actually granted for a cycle: the base
	// quota plus the yearly bonus for yearly intervals, rounded half up to
	// whole tokens. The bonus is computed on the base quota, never compounded.
	EffectiveQuota(plan types.PlanID, interval types.BillingInterval) (int64, error)
}

type planKey struct {
	plan     types.PlanID
	interval types.BillingInterval
}

// staticCatalog is a compile-time plan catalog backed by an in-memory map.
// It is the standard production implementation; no database or external
// service is required.
type staticCatalog struct {
	defs map[planKey]types.PlanDefinition
}

// yearlyBonusRate is the quota bonus granted on yearly billing.
const yearlyBonusRate = 0.10

// catalogDefaults defines the hardcoded plan terms. Base quotas strictly
// increase with tier for a fixed interval. The free tier is the only
// hard-capped tier: paid tiers record overage instead of blocking.
//
//	| Plan         | Tokens/cycle | Monthly price | Cap  |
//	|--------------|--------------|---------------|------|
//	| Free         | 5,000        | $0            | hard |
//	| Hobby        | 25,000       | $12           | soft |
//	| Professional | 100,000      | $29           | soft |
//	| Business     | 500,000      | $99           | soft |
//	| Enterprise   | 2,000,000    | $499          | soft |
//
// Yearly billing grants a 10% token bonus and is priced at ten months.
var catalogDefaults = []types.PlanDefinition{
	{Plan: types.PlanFree, Interval: types.IntervalMonth, BaseTokenQuota: 5_000, PriceCents: 0, CapPolicy: types.CapHard},
	{Plan: types.PlanFree, Interval: types.IntervalYear, BaseTokenQuota: 5_000, YearlyBonusRate: yearlyBonusRate, PriceCents: 0, CapPolicy: types.CapHard},
	{Plan: types.PlanHobby, Interval: types.IntervalMonth, BaseTokenQuota: 25_000, PriceCents: 1_200, CapPolicy: types.CapSoft},
	{Plan: types.PlanHobby, Interval: types.IntervalYear, BaseTokenQuota: 25_000, YearlyBonusRate: yearlyBonusRate, PriceCents: 12_000, CapPolicy: types.CapSoft},
	{Plan: types.PlanProfessional, Interval: types.IntervalMonth, BaseTokenQuota: 100_000, PriceCents: 2_900, CapPolicy: types.CapSoft},
	{Plan: types.PlanProfessional, Interval: types.IntervalYear, BaseTokenQuota: 100_000, YearlyBonusRate: yearlyBonusRate, PriceCents: 29_000, CapPolicy: types.CapSoft},
	{Plan: types.PlanBusiness, Interval: types.IntervalMonth, BaseTokenQuota: 500_000, PriceCents: 9_900, CapPolicy: types.CapSoft},
	{Plan: types.PlanBusiness, Interval: types.IntervalYear, BaseTokenQuota: 500_000, YearlyBonusRate: yearlyBonusRate, PriceCents: 99_000, CapPolicy: types.CapSoft},
	{Plan: types.PlanEnterprise, Interval: types.IntervalMonth, BaseTokenQuota: 2_000_000, PriceCents: 49_900, CapPolicy: types.CapSoft},
	{Plan: types.PlanEnterprise, Interval: types.IntervalYear, BaseTokenQuota: 2_000_000, YearlyBonusRate: yearlyBonusRate, PriceCents: 499_000, CapPolicy: types.CapSoft},
}

// NewStaticCatalog returns a PlanCatalog backed by the hardcoded plan terms.
func NewStaticCatalog() PlanCatalog {
	// Copy into a fresh map so callers cannot mutate the package-level slice.
	m := make(map[planKey]types.PlanDefinition, len(catalogDefaults))
	for _, def := range catalogDefaults {
		m[planKey{plan: def.Plan, interval: def.Interval}] = def
	}
	return &staticCatalog{defs: m}
}

// Definition returns the plan terms for the given pair, or an unknown-plan
// error if the pair is absent. Unknown pairs are fatal to the calling
// operation and are never retried.
func (c *staticCatalog) Definition(plan types.PlanID, interval types.BillingInterval) (types.PlanDefinition, error) {
	def, ok := c.defs[planKey{plan: plan, interval: interval}]
	if !ok {
		return types.PlanDefinition{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationUnknownPlan,
			"unknown plan/interval combination",
			nil,
			map[string]any{"plan": string(plan), "interval": string(interval)},
		)
	}
	return def, nil
}

// QuotaFor returns the base token quota for the given pair.
func (c *staticCatalog) QuotaFor(plan types.PlanID, interval types.BillingInterval) (int64, error) {
	def, err := c.Definition(plan, interval)
	if err != nil {
		return 0, err
	}
	return def.BaseTokenQuota, nil
}

// EffectiveQuota returns the quota granted for one cycle of the given pair.
func (c *staticCatalog) EffectiveQuota(plan types.PlanID, interval types.BillingInterval) (int64, error) {
	def, err := c.Definition(plan, interval)
	if err != nil {
		return 0, err
	}
	if def.Interval != types.IntervalYear || def.YearlyBonusRate == 0 {
		return def.BaseTokenQuota, nil
	}
	// Round half up to whole tokens.
	bonus := float64(def.BaseTokenQuota) * (1 + def.YearlyBonusRate)
	return int64(math.Floor(bonus + 0.5)), nil
}
