package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v82"

	"inkwell/internal/core"
	"inkwell/internal/external"
	"inkwell/internal/types"
)

// LedgerWriter applies subscription lifecycle changes to the usage ledger.
// Implemented by billing.Ledger.
type LedgerWriter interface {
	Renew(
		ctx context.Context,
		accountID string,
		plan types.PlanID,
		interval types.BillingInterval,
		cycleEndsAt time.Time,
	) error
	SetStatus(ctx context.Context, accountID string, status types.SubscriptionStatus) error
}

// BillingEventRequest is the request body for POST /v1/billing/events. The
// subscription field carries the provider's subscription object verbatim;
// the webhook worker forwards it after deduplicating provider deliveries.
type BillingEventRequest struct {
	Type         types.BillingEventType `json:"type" validate:"required,oneof=subscription_renewed subscription_status_changed"`
	Subscription json.RawMessage        `json:"subscription" validate:"required"`
}

// BillingEventsHandler translates payment-provider subscription events into
// ledger renewals and status changes.
type BillingEventsHandler struct {
	ledger    LedgerWriter
	validator *core.Validator
	logger    *slog.Logger
}

func NewBillingEventsHandler(ledger LedgerWriter, v *core.Validator, l *slog.Logger) *BillingEventsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingEventsHandler{ledger: ledger, validator: v, logger: l}
}

// RegisterRoutes mounts the billing events endpoint.
func (h *BillingEventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/events", h.HandleEvent)
}

// HandleEvent handles POST /v1/billing/events.
//
// A renewal event rewrites the ledger entry (plan, interval, fresh quota,
// new cycle end, zeroed usage) and then applies the subscription status. A
// status-change event touches only the status, leaving counters intact so a
// past_due account that recovers keeps its usage for the cycle.
func (h *BillingEventsHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var req BillingEventRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(req.Subscription, &sub); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"subscription payload is not a valid provider subscription object",
			err,
		))
		return
	}

	event, err := external.MapRenewalEvent(&sub)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	switch req.Type {
	case types.BillingEventRenewal:
		if err := h.ledger.Renew(r.Context(), event.AccountID, event.Plan, event.Interval, event.CycleEndsAt); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.ledger.SetStatus(r.Context(), event.AccountID, event.Status); err != nil {
			core.Error(w, r, err)
			return
		}
		h.logger.InfoContext(r.Context(), "subscription renewed",
			"account_id", event.AccountID,
			"plan", event.Plan,
			"interval", event.Interval,
			"cycle_ends_at", event.CycleEndsAt,
		)

	case types.BillingEventStatusChange:
		if err := h.ledger.SetStatus(r.Context(), event.AccountID, event.Status); err != nil {
			core.Error(w, r, err)
			return
		}
		h.logger.InfoContext(r.Context(), "subscription status changed",
			"account_id", event.AccountID,
			"status", event.Status,
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: event})
}
