package billing

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"inkwell/internal/types"
)

// AggregationReporter provides read-only rollups over the usage ledger for
// the admin collaborator. Reads require no cross-account ordering and may
// observe a slightly stale snapshot.
type AggregationReporter interface {
	// DistributionByTier returns one row per known tier: how many accounts
	// sit on it and the monthly-equivalent revenue of its active paid
	// subscriptions.
	DistributionByTier(ctx context.Context, asOf time.Time) ([]types.TierDistribution, error)

	// GrowthSeries returns one point per month for the trailing monthCount
	// months, oldest first, with cumulative account totals.
	GrowthSeries(ctx context.Context, monthCount int) ([]types.GrowthPoint, error)
}

// AnalyticsDB is the minimal read interface the reporter needs. Implemented
// by db.AnalyticsRepo.
type AnalyticsDB interface {
	// TierCounts groups ledger rows created at or before asOf by
	// (plan, interval, status).
	TierCounts(ctx context.Context, asOf time.Time) ([]types.TierStatusCount, error)

	// MonthlyCohorts aggregates account signups per calendar month from
	// since onward.
	MonthlyCohorts(ctx context.Context, since time.Time) ([]types.MonthlyCohort, error)

	// AccountCountBefore counts accounts created strictly before t.
	AccountCountBefore(ctx context.Context, t time.Time) (int, error)
}

// maxGrowthMonths bounds the growth window; dashboards never chart more.
const maxGrowthMonths = 36

type reporterImpl struct {
	db      AnalyticsDB
	catalog PlanCatalog
	now     func() time.Time
}

// NewAggregationReporter creates the standard reporter implementation.
func NewAggregationReporter(db AnalyticsDB, catalog PlanCatalog) AggregationReporter {
	return &reporterImpl{
		db:      db,
		catalog: catalog,
		now:     time.Now,
	}
}

var _ AggregationReporter = (*reporterImpl)(nil)

// DistributionByTier rolls tier counts up into one row per known tier,
// including zero-count tiers so dashboard series stay stable. Revenue counts
// only active paid subscriptions, with yearly prices normalized to a monthly
// equivalent.
//
// Any failure in the underlying data source is surfaced as an
// aggregation-unavailable error; the admin collaborator substitutes a
// labeled placeholder rather than failing the page.
func (r *reporterImpl) DistributionByTier(ctx context.Context, asOf time.Time) ([]types.TierDistribution, error) {
	counts, err := r.db.TierCounts(ctx, asOf.UTC())
	if err != nil {
		return nil, aggregationFailed(err)
	}

	byPlan := make(map[types.PlanID]*types.TierDistribution, len(types.AllPlans))
	result := make([]types.TierDistribution, len(types.AllPlans))
	for i, plan := range types.AllPlans {
		result[i] = types.TierDistribution{Plan: plan}
		byPlan[plan] = &result[i]
	}

	for _, row := range counts {
		dist, ok := byPlan[row.Plan]
		if !ok {
			// A ledger row on a retired tier still counts an account, but we
			// cannot price it.
			continue
		}
		dist.AccountCount += row.Count

		if row.Status != types.SubStatusActive {
			continue
		}
		def, err := r.catalog.Definition(row.Plan, row.Interval)
		if err != nil || def.PriceCents == 0 {
			continue
		}
		dist.EstimatedRevenueCents += int64(row.Count) * monthlyEquivalentCents(def)
	}

	return result, nil
}

// GrowthSeries builds the trailing monthCount months of signup and
// subscription growth. The baseline count and the per-month cohorts are
// independent queries and run concurrently.
func (r *reporterImpl) GrowthSeries(ctx context.Context, monthCount int) ([]types.GrowthPoint, error) {
	if monthCount < 1 || monthCount > maxGrowthMonths {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"month count must be between 1 and 36",
			nil,
			map[string]any{"months": monthCount},
		)
	}

	now := r.now().UTC()
	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	since := currentMonth.AddDate(0, -(monthCount - 1), 0)

	var (
		cohorts  []types.MonthlyCohort
		baseline int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cohorts, err = r.db.MonthlyCohorts(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		baseline, err = r.db.AccountCountBefore(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, aggregationFailed(err)
	}

	byMonth := make(map[time.Time]types.MonthlyCohort, len(cohorts))
	for _, c := range cohorts {
		byMonth[c.PeriodStart.UTC()] = c
	}

	points := make([]types.GrowthPoint, 0, monthCount)
	total := baseline
	for month := since; !month.After(currentMonth); month = month.AddDate(0, 1, 0) {
		cohort := byMonth[month]
		total += cohort.NewAccounts
		points = append(points, types.GrowthPoint{
			PeriodStart:        month,
			NewAccounts:        cohort.NewAccounts,
			TotalAccounts:      total,
			VerifiedAccounts:   cohort.VerifiedAccounts,
			SubscribedAccounts: cohort.SubscribedAccounts,
		})
	}

	return points, nil
}

// monthlyEquivalentCents normalizes a plan price to a monthly figure so
// distribution revenue is comparable across intervals.
func monthlyEquivalentCents(def types.PlanDefinition) int64 {
	if def.Interval == types.IntervalYear {
		return int64(math.Round(float64(def.PriceCents) / 12))
	}
	return def.PriceCents
}

func aggregationFailed(err error) *types.AppError {
	return types.NewAppError(
		types.ErrCodeAggregationUnavailable,
		"usage aggregation is temporarily unavailable",
		err,
	)
}
