package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"inkwell/internal/core"
	"inkwell/internal/types"
)

// AccountInitializer creates the usage ledger entry at signup. Implemented
// by billing.Ledger.
type AccountInitializer interface {
	Initialize(
		ctx context.Context,
		accountID string,
		plan types.PlanID,
		interval types.BillingInterval,
		cycleEndsAt *time.Time,
	) (*types.UsageLedgerEntry, error)
}

// InitializeAccountRequest is the request body for POST /v1/accounts.
// Plan and interval default to the free monthly pairing when omitted; the
// free tier has no cycle end, so CycleEndsAt is only meaningful for paid
// signups created directly on a subscription.
type InitializeAccountRequest struct {
	Plan        types.PlanID          `json:"plan" validate:"omitempty,plan_id"`
	Interval    types.BillingInterval `json:"interval" validate:"omitempty,billing_interval"`
	CycleEndsAt *time.Time            `json:"cycle_ends_at,omitempty"`
}

// AccountsHandler provisions usage ledger entries for new accounts.
type AccountsHandler struct {
	initializer AccountInitializer
	validator   *core.Validator
	logger      *slog.Logger
}

func NewAccountsHandler(init AccountInitializer, v *core.Validator, l *slog.Logger) *AccountsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AccountsHandler{initializer: init, validator: v, logger: l}
}

// RegisterRoutes mounts the account provisioning endpoint.
func (h *AccountsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/accounts", h.InitializeAccount)
}

// InitializeAccount handles POST /v1/accounts. A second call for the same
// account returns 409; signup retries should treat that as success.
func (h *AccountsHandler) InitializeAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := types.GetAccountID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthAccountMissing,
			"account identity is required",
			nil,
		))
		return
	}

	var req InitializeAccountRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Plan == "" {
		req.Plan = types.PlanFree
	}
	if req.Interval == "" {
		req.Interval = types.IntervalMonth
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	entry, err := h.initializer.Initialize(r.Context(), accountID, req.Plan, req.Interval, req.CycleEndsAt)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "usage ledger entry initialized",
		"account_id", accountID,
		"plan", entry.Plan,
		"interval", entry.Interval,
		"tokens_limit", entry.TokensLimit,
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: entry})
}
