package db

import (
	"context"
	"time"

	"inkwell/internal/types"
)

// AnalyticsRepo runs the read-only aggregation queries behind the admin
// dashboards. It implements billing.AnalyticsDB.
type AnalyticsRepo struct {
	db DBTX
}

func NewAnalyticsRepo(db DBTX) *AnalyticsRepo {
	return &AnalyticsRepo{db: db}
}

// TierCounts groups ledger rows created at or before asOf by plan, interval,
// and subscription status.
func (r *AnalyticsRepo) TierCounts(ctx context.Context, asOf time.Time) ([]types.TierStatusCount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT plan_id, billing_interval, subscription_status, COUNT(*)
		 FROM usage_ledger
		 WHERE created_at <= $1
		 GROUP BY plan_id, billing_interval, subscription_status`,
		asOf,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query tier counts", err)
	}
	defer rows.Close()

	var counts []types.TierStatusCount
	for rows.Next() {
		var c types.TierStatusCount
		if err := rows.Scan(&c.Plan, &c.Interval, &c.Status, &c.Count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tier count row", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read tier count rows", err)
	}
	return counts, nil
}

// MonthlyCohorts aggregates account signups per calendar month from since
// onward. A month with no signups simply has no row; the reporter fills the
// gaps.
func (r *AnalyticsRepo) MonthlyCohorts(ctx context.Context, since time.Time) ([]types.MonthlyCohort, error) {
	rows, err := r.db.Query(ctx,
		`SELECT date_trunc('month', a.created_at) AS period_start,
		        COUNT(*) AS new_accounts,
		        COUNT(*) FILTER (WHERE a.email_verified) AS verified_accounts,
		        COUNT(*) FILTER (
		            WHERE l.subscription_status = 'active' AND l.plan_id <> 'free'
		        ) AS subscribed_accounts
		 FROM accounts a
		 LEFT JOIN usage_ledger l ON l.account_id = a.id
		 WHERE a.created_at >= $1
		 GROUP BY period_start
		 ORDER BY period_start`,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query monthly cohorts", err)
	}
	defer rows.Close()

	var cohorts []types.MonthlyCohort
	for rows.Next() {
		var c types.MonthlyCohort
		if err := rows.Scan(&c.PeriodStart, &c.NewAccounts, &c.VerifiedAccounts, &c.SubscribedAccounts); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan monthly cohort row", err)
		}
		cohorts = append(cohorts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read monthly cohort rows", err)
	}
	return cohorts, nil
}

// AccountCountBefore counts accounts created strictly before t, used as the
// baseline for cumulative growth series.
func (r *AnalyticsRepo) AccountCountBefore(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE created_at < $1`,
		t,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count accounts", err)
	}
	return count, nil
}
