package types

// PlanID identifies a subscription tier.
type PlanID string

const (
	PlanFree         PlanID = "free"
	PlanHobby        PlanID = "hobby"
	PlanProfessional PlanID = "professional"
	PlanBusiness     PlanID = "business"
	PlanEnterprise   PlanID = "enterprise"
)

// AllPlans lists every known tier in ascending quota order.
// Used by validators and by catalog completeness tests.
var AllPlans = []PlanID{
	PlanFree,
	PlanHobby,
	PlanProfessional,
	PlanBusiness,
	PlanEnterprise,
}

// BillingInterval identifies the length of a billing cycle.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// SubscriptionStatus represents the state of a billing subscription.
// Transitions are driven by payment-provider events; the ledger stores
// the value verbatim and never infers transitions on its own.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
	SubStatusNone     SubscriptionStatus = "none"
)

// CapPolicy determines what happens when a charge would push usage past the
// cycle quota: hard caps reject the charge, soft caps record the overage and
// make it observable via the entitlement snapshot.
type CapPolicy string

const (
	CapHard CapPolicy = "hard"
	CapSoft CapPolicy = "soft"
)

// BillingEventType identifies an inbound event from the payment collaborator.
type BillingEventType string

const (
	BillingEventRenewal      BillingEventType = "subscription_renewed"
	BillingEventStatusChange BillingEventType = "subscription_status_changed"
)
