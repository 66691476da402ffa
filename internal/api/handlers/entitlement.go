// Package handlers contains the HTTP handler implementations for the Inkwell
// API. Each handler file defines the service contracts it depends on locally
// and receives implementations through its constructor, keeping handlers
// decoupled from concrete service types and easy to mock in tests.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inkwell/internal/core"
	"inkwell/internal/types"
)

// EntitlementReader provides the entitlement view of an account's ledger
// entry. Implemented by billing.Ledger.
type EntitlementReader interface {
	Snapshot(ctx context.Context, accountID string) (*types.EntitlementSnapshot, error)
}

// EntitlementHandler serves the account-status payload consumed by the
// user-facing subscription page: tier, quota, usage percentage, and renewal
// countdown.
type EntitlementHandler struct {
	reader EntitlementReader
	logger *slog.Logger
}

func NewEntitlementHandler(reader EntitlementReader, l *slog.Logger) *EntitlementHandler {
	if l == nil {
		l = slog.Default()
	}
	return &EntitlementHandler{reader: reader, logger: l}
}

// RegisterRoutes mounts the entitlement endpoint.
func (h *EntitlementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/entitlement", h.GetEntitlement)
}

// GetEntitlement handles GET /v1/entitlement. The account comes from the
// authenticated request context; there is no way to read another account's
// entitlement through this endpoint.
func (h *EntitlementHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := types.GetAccountID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthAccountMissing,
			"account identity is required",
			nil,
		))
		return
	}

	snap, err := h.reader.Snapshot(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: snap})
}
