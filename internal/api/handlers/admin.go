package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"inkwell/internal/core"
	"inkwell/internal/types"
)

// AnalyticsService produces the read-only rollups behind the admin
// dashboards. Implemented by billing's aggregation reporter.
type AnalyticsService interface {
	DistributionByTier(ctx context.Context, asOf time.Time) ([]types.TierDistribution, error)
	GrowthSeries(ctx context.Context, monthCount int) ([]types.GrowthPoint, error)
}

// defaultGrowthMonths is the trailing window served when the months query
// parameter is absent.
const defaultGrowthMonths = 12

// AdminHandler serves tier distribution and growth analytics. When the
// aggregation source is unavailable it degrades to a clearly labeled
// placeholder rather than failing the dashboard page.
type AdminHandler struct {
	analytics AnalyticsService
	logger    *slog.Logger
	now       func() time.Time
}

func NewAdminHandler(analytics AnalyticsService, l *slog.Logger) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdminHandler{
		analytics: analytics,
		logger:    l,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the analytics endpoints.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/analytics/distribution", h.GetDistribution)
	r.Get("/analytics/growth", h.GetGrowth)
}

// GetDistribution handles GET /v1/admin/analytics/distribution. The optional
// as_of query parameter (RFC 3339) pins the rollup to a point in time and
// defaults to now.
func (h *AdminHandler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	asOf := h.now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"as_of must be an RFC 3339 timestamp",
				err,
			))
			return
		}
		asOf = parsed.UTC()
	}

	rows, err := h.analytics.DistributionByTier(r.Context(), asOf)
	if err != nil {
		if isAggregationUnavailable(err) {
			h.logger.WarnContext(r.Context(), "serving placeholder tier distribution", "error", err)
			core.JSON(w, r, http.StatusOK, core.APIResponse{
				Data: placeholderDistribution(),
				Meta: map[string]any{"placeholder": true},
			})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: rows})
}

// GetGrowth handles GET /v1/admin/analytics/growth. The optional months
// query parameter sets the trailing window and defaults to twelve.
func (h *AdminHandler) GetGrowth(w http.ResponseWriter, r *http.Request) {
	months := defaultGrowthMonths
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"months must be an integer",
				err,
			))
			return
		}
		months = parsed
	}

	series, err := h.analytics.GrowthSeries(r.Context(), months)
	if err != nil {
		if isAggregationUnavailable(err) {
			h.logger.WarnContext(r.Context(), "serving placeholder growth series", "error", err)
			core.JSON(w, r, http.StatusOK, core.APIResponse{
				Data: []types.GrowthPoint{},
				Meta: map[string]any{"placeholder": true},
			})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: series})
}

// isAggregationUnavailable reports whether the error is the recoverable
// aggregation failure the dashboard is allowed to paper over. Validation
// errors and everything else still fail the request.
func isAggregationUnavailable(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeAggregationUnavailable
}

// placeholderDistribution returns a zeroed row per known tier so the
// dashboard keeps its shape while the aggregation source is down.
func placeholderDistribution() []types.TierDistribution {
	rows := make([]types.TierDistribution, len(types.AllPlans))
	for i, plan := range types.AllPlans {
		rows[i] = types.TierDistribution{Plan: plan}
	}
	return rows
}
