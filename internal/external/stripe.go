package external

import (
	"time"

	"inkwell/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// priceToPlan maps Stripe price lookup keys to catalog plan and interval.
// Lookup keys are assigned on the Stripe dashboard and are stable across
// environments, unlike raw price IDs.
var priceToPlan = map[string]struct {
	Plan     types.PlanID
	Interval types.BillingInterval
}{
	"hobby_monthly":        {types.PlanHobby, types.IntervalMonth},
	"hobby_yearly":         {types.PlanHobby, types.IntervalYear},
	"professional_monthly": {types.PlanProfessional, types.IntervalMonth},
	"professional_yearly":  {types.PlanProfessional, types.IntervalYear},
	"business_monthly":     {types.PlanBusiness, types.IntervalMonth},
	"business_yearly":      {types.PlanBusiness, types.IntervalYear},
	"enterprise_monthly":   {types.PlanEnterprise, types.IntervalMonth},
	"enterprise_yearly":    {types.PlanEnterprise, types.IntervalYear},
}

// MapSubscriptionStatus folds Stripe's subscription lifecycle onto the
// ledger's coarser status set. Anything that has not settled into a paying
// state maps to past_due so entitlement checks fail closed rather than
// granting access on an unpaid subscription.
func MapSubscriptionStatus(status stripe.SubscriptionStatus) types.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return types.SubStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncomplete:
		return types.SubStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return types.SubStatusCanceled
	default:
		return types.SubStatusNone
	}
}

// MapRenewalEvent normalizes a Stripe subscription into the renewal shape
// the ledger consumes. The account ID comes from the subscription's
// metadata; callers should have set metadata[account_id] when creating the
// subscription.
func MapRenewalEvent(sub *stripe.Subscription) (*types.RenewalEvent, error) {
	if sub == nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscription payload is empty",
			nil,
		)
	}

	accountID := sub.Metadata["account_id"]
	if accountID == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscription has no account_id metadata",
			nil,
		)
	}

	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationUnknownPlan,
			"subscription has no price item",
			nil,
		)
	}
	price := sub.Items.Data[0].Price

	mapped, ok := priceToPlan[price.LookupKey]
	if !ok {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationUnknownPlan,
			"subscription price does not match any catalog plan",
			nil,
			map[string]any{"lookup_key": price.LookupKey, "price_id": price.ID},
		)
	}

	item := sub.Items.Data[0]
	if item.CurrentPeriodEnd <= 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationCycleEnd,
			"subscription has no current period end",
			nil,
		)
	}

	return &types.RenewalEvent{
		AccountID:   accountID,
		Plan:        mapped.Plan,
		Interval:    mapped.Interval,
		Status:      MapSubscriptionStatus(sub.Status),
		CycleEndsAt: time.Unix(item.CurrentPeriodEnd, 0).UTC(),
	}, nil
}
