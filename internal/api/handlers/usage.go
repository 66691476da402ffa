package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inkwell/internal/core"
	"inkwell/internal/types"
)

// UsageCharger records a token charge against an account's ledger entry.
// Implemented by billing.Recorder.
type UsageCharger interface {
	Charge(ctx context.Context, accountID string, tokenCount int64) (*types.EntitlementSnapshot, error)
}

// ChargeRequest is the request body for POST /v1/usage/charge.
type ChargeRequest struct {
	TokenCount int64 `json:"token_count" validate:"required,gt=0"`
}

// UsageHandler exposes the charge operation for in-process collaborators
// that run out of process, such as batch workers reporting token costs.
type UsageHandler struct {
	charger   UsageCharger
	validator *core.Validator
	logger    *slog.Logger
}

func NewUsageHandler(charger UsageCharger, v *core.Validator, l *slog.Logger) *UsageHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UsageHandler{charger: charger, validator: v, logger: l}
}

// RegisterRoutes mounts the usage charge endpoint.
func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/usage/charge", h.Charge)
}

// Charge handles POST /v1/usage/charge. Business-rule rejections (quota
// exhausted, inactive subscription) come back as structured errors; the
// post-charge entitlement snapshot is returned on success so callers can
// update cached quota displays without a second read.
func (h *UsageHandler) Charge(w http.ResponseWriter, r *http.Request) {
	accountID, ok := types.GetAccountID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthAccountMissing,
			"account identity is required",
			nil,
		))
		return
	}

	var req ChargeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	snap, err := h.charger.Charge(r.Context(), accountID, req.TokenCount)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: snap})
}
