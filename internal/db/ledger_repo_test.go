package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"inkwell/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func requireAppCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

// --- LedgerRepo Tests ---

func TestLedgerRepo_Get_Success(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewLedgerRepo(dbm)

	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cycleEnd := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"acct_1"}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "acct_1"
			*dest[1].(*types.PlanID) = types.PlanProfessional
			*dest[2].(*types.BillingInterval) = types.IntervalMonth
			*dest[3].(*int64) = 42_000
			*dest[4].(*int64) = 100_000
			*dest[5].(**time.Time) = &cycleEnd
			*dest[6].(*types.SubscriptionStatus) = types.SubStatusActive
			*dest[7].(*time.Time) = created
			*dest[8].(*time.Time) = created
			return nil
		}})

	entry, err := repo.Get(context.Background(), "acct_1")
	require.NoError(t, err)

	assert.Equal(t, "acct_1", entry.AccountID)
	assert.Equal(t, types.PlanProfessional, entry.Plan)
	assert.Equal(t, int64(42_000), entry.TokensUsed)
	assert.Equal(t, int64(100_000), entry.TokensLimit)
	require.NotNil(t, entry.CycleEndsAt)
	assert.True(t, entry.CycleEndsAt.Equal(cycleEnd))
	dbm.AssertExpectations(t)
}

func TestLedgerRepo_Get_NotFound(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewLedgerRepo(dbm)

	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Get(context.Background(), "ghost")
	requireAppCode(t, err, types.ErrCodeNotFoundAccount)
}

func TestLedgerRepo_Insert_Success(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewLedgerRepo(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Insert(context.Background(), &types.UsageLedgerEntry{
		AccountID:   "acct_1",
		Plan:        types.PlanFree,
		Interval:    types.IntervalMonth,
		TokensLimit: 5_000,
		Status:      types.SubStatusActive,
	})
	require.NoError(t, err)
	dbm.AssertExpectations(t)
}

func TestLedgerRepo_Insert_Duplicate(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewLedgerRepo(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: pgUniqueViolation})

	err := repo.Insert(context.Background(), &types.UsageLedgerEntry{AccountID: "acct_1"})
	requireAppCode(t, err, types.ErrCodeConflictAccountExists)
}

func TestLedgerRepo_Insert_NegativeCounters(t *testing.T) {
	repo := NewLedgerRepo(new(mockDBTX))

	err := repo.Insert(context.Background(), &types.UsageLedgerEntry{
		AccountID:  "acct_1",
		TokensUsed: -1,
	})
	requireAppCode(t, err, types.ErrCodeValidationTokenCount)
}

func TestLedgerRepo_UpdateForRenewal_Success(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewLedgerRepo(dbm)

	cycleEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{"acct_1", types.PlanProfessional, types.IntervalMonth, int64(100_000), &cycleEnd}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateForRenewal(context.Background(), "acct_1",
		types.PlanProfessional, types.IntervalMonth, 100_000, &cycleEnd)
	require.NoError(t, err)
	dbm.AssertExpectations(t)
}

func TestLedgerRepo_UpdateForRenewal_NotFound(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewLedgerRepo(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateForRenewal(context.Background(), "ghost",
		types.PlanFree, types.IntervalMonth, 5_000, nil)
	requireAppCode(t, err, types.ErrCodeNotFoundAccount)
}

func TestLedgerRepo_SetStatus(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewLedgerRepo(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{"acct_1", types.SubStatusCanceled}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.SetStatus(context.Background(), "acct_1", types.SubStatusCanceled))
	dbm.AssertExpectations(t)
}

func TestLedgerRepo_CompareAndSwapUsage(t *testing.T) {
	tests := []struct {
		name    string
		tag     pgconn.CommandTag
		swapped bool
	}{
		{name: "swap wins", tag: pgconn.NewCommandTag("UPDATE 1"), swapped: true},
		{name: "swap loses race", tag: pgconn.NewCommandTag("UPDATE 0"), swapped: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbm := new(mockDBTX)
			repo := NewLedgerRepo(dbm)

			dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"),
				[]any{"acct_1", int64(9_999), int64(10_000)}).
				Return(tt.tag, nil)

			swapped, err := repo.CompareAndSwapUsage(context.Background(), "acct_1", 9_999, 10_000)
			require.NoError(t, err)
			assert.Equal(t, tt.swapped, swapped)
			dbm.AssertExpectations(t)
		})
	}
}

func TestLedgerRepo_CompareAndSwapUsage_NegativeTarget(t *testing.T) {
	repo := NewLedgerRepo(new(mockDBTX))

	_, err := repo.CompareAndSwapUsage(context.Background(), "acct_1", 5, -1)
	requireAppCode(t, err, types.ErrCodeValidationTokenCount)
}
