package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/internal/types"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations, used to translate duplicate inserts into conflict errors.
const pgUniqueViolation = "23505"

// LedgerRepo provides data access for the usage_ledger table: one row per
// account, keyed by account_id. It implements billing.LedgerRepository.
//
// Every storage error is wrapped into a typed AppError here, at the
// boundary; callers never see raw pgx errors.
type LedgerRepo struct {
	db DBTX
}

// NewLedgerRepo creates a LedgerRepo backed by the given database connection
// (pool or transaction).
func NewLedgerRepo(db DBTX) *LedgerRepo {
	return &LedgerRepo{db: db}
}

const ledgerColumns = `account_id, plan_id, billing_interval, tokens_used,
	tokens_limit, cycle_ends_at, subscription_status, created_at, updated_at`

// Get returns the ledger entry for the account.
func (r *LedgerRepo) Get(ctx context.Context, accountID string) (*types.UsageLedgerEntry, error) {
	var entry types.UsageLedgerEntry
	err := r.db.QueryRow(ctx,
		`SELECT `+ledgerColumns+`
		 FROM usage_ledger
		 WHERE account_id = $1`,
		accountID,
	).Scan(
		&entry.AccountID,
		&entry.Plan,
		&entry.Interval,
		&entry.TokensUsed,
		&entry.TokensLimit,
		&entry.CycleEndsAt,
		&entry.Status,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account has no usage ledger entry", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read usage ledger entry", err)
	}
	return &entry, nil
}

// Insert creates the entry, rejecting negative counters before they can
// reach storage and translating duplicate keys into a conflict error.
func (r *LedgerRepo) Insert(ctx context.Context, entry *types.UsageLedgerEntry) error {
	if entry.TokensUsed < 0 || entry.TokensLimit < 0 {
		return types.NewAppError(types.ErrCodeValidationTokenCount, "token counters must be non-negative", nil)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO usage_ledger (`+ledgerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.AccountID,
		entry.Plan,
		entry.Interval,
		entry.TokensUsed,
		entry.TokensLimit,
		entry.CycleEndsAt,
		entry.Status,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.NewAppError(types.ErrCodeConflictAccountExists, "account already has a usage ledger entry", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create usage ledger entry", err)
	}
	return nil
}

// UpdateForRenewal applies a billing-cycle renewal in one statement: usage
// resets to zero and plan, interval, limit, and cycle end are rewritten.
func (r *LedgerRepo) UpdateForRenewal(
	ctx context.Context,
	accountID string,
	plan types.PlanID,
	interval types.BillingInterval,
	tokensLimit int64,
	cycleEndsAt *time.Time,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE usage_ledger
		 SET plan_id = $2,
		     billing_interval = $3,
		     tokens_used = 0,
		     tokens_limit = $4,
		     cycle_ends_at = $5,
		     updated_at = NOW()
		 WHERE account_id = $1`,
		accountID, plan, interval, tokensLimit, cycleEndsAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to renew usage ledger entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account has no usage ledger entry", nil)
	}
	return nil
}

// SetStatus updates the subscription status only; counters are untouched.
func (r *LedgerRepo) SetStatus(ctx context.Context, accountID string, status types.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE usage_ledger
		 SET subscription_status = $2,
		     updated_at = NOW()
		 WHERE account_id = $1`,
		accountID, status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account has no usage ledger entry", nil)
	}
	return nil
}

// CompareAndSwapUsage sets tokens_used to newUsed only if the stored value
// still equals expectedUsed. A zero rows-affected result means the caller
// lost the race (or the row vanished) and should re-read before retrying.
func (r *LedgerRepo) CompareAndSwapUsage(ctx context.Context, accountID string, expectedUsed, newUsed int64) (bool, error) {
	if newUsed < 0 {
		return false, types.NewAppError(types.ErrCodeValidationTokenCount, "token counters must be non-negative", nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE usage_ledger
		 SET tokens_used = $3,
		     updated_at = NOW()
		 WHERE account_id = $1
		   AND tokens_used = $2`,
		accountID, expectedUsed, newUsed,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to apply usage charge", err)
	}
	return tag.RowsAffected() == 1, nil
}
