package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/types"
)

// memLedgerRepo is an in-memory LedgerRepository whose CompareAndSwapUsage
// has the same semantics as the conditional UPDATE in the real store: the
// swap commits only if tokens_used is still the expected value. The mutex
// makes each swap atomic so concurrent charge tests exercise the recorder's
// retry loop, not data races in the fake.
type memLedgerRepo struct {
	mu      sync.Mutex
	entries map[string]*types.UsageLedgerEntry

	// failSwaps forces the next N swaps to report a lost race.
	failSwaps int
}

func newMemLedgerRepo(entries ...*types.UsageLedgerEntry) *memLedgerRepo {
	repo := &memLedgerRepo{entries: make(map[string]*types.UsageLedgerEntry)}
	for _, e := range entries {
		repo.entries[e.AccountID] = e
	}
	return repo
}

func (r *memLedgerRepo) Get(_ context.Context, accountID string) (*types.UsageLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[accountID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account has no usage ledger entry", nil)
	}
	copied := *entry
	return &copied, nil
}

func (r *memLedgerRepo) Insert(_ context.Context, entry *types.UsageLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.AccountID]; ok {
		return types.NewAppError(types.ErrCodeConflictAccountExists, "account already has a usage ledger entry", nil)
	}
	copied := *entry
	r.entries[entry.AccountID] = &copied
	return nil
}

func (r *memLedgerRepo) UpdateForRenewal(
	_ context.Context,
	accountID string,
	plan types.PlanID,
	interval types.BillingInterval,
	tokensLimit int64,
	cycleEndsAt *time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[accountID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account has no usage ledger entry", nil)
	}
	entry.Plan = plan
	entry.Interval = interval
	entry.TokensUsed = 0
	entry.TokensLimit = tokensLimit
	entry.CycleEndsAt = cycleEndsAt
	return nil
}

func (r *memLedgerRepo) SetStatus(_ context.Context, accountID string, status types.SubscriptionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[accountID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account has no usage ledger entry", nil)
	}
	entry.Status = status
	return nil
}

func (r *memLedgerRepo) CompareAndSwapUsage(_ context.Context, accountID string, expectedUsed, newUsed int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[accountID]
	if !ok {
		return false, nil
	}
	if r.failSwaps > 0 {
		r.failSwaps--
		return false, nil
	}
	if entry.TokensUsed != expectedUsed {
		return false, nil
	}
	entry.TokensUsed = newUsed
	return true, nil
}

func (r *memLedgerRepo) tokensUsed(accountID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[accountID].TokensUsed
}

var _ LedgerRepository = (*memLedgerRepo)(nil)

func appErrCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

func TestRecorder_Charge_Monotonic(t *testing.T) {
	cycleEnd := time.Now().UTC().Add(20 * 24 * time.Hour)
	repo := newMemLedgerRepo(&types.UsageLedgerEntry{
		AccountID:   "acct_1",
		Plan:        types.PlanProfessional,
		Interval:    types.IntervalMonth,
		TokensUsed:  1_000,
		TokensLimit: 100_000,
		CycleEndsAt: &cycleEnd,
		Status:      types.SubStatusActive,
	})
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	snap, err := rec.Charge(context.Background(), "acct_1", 2_500)
	require.NoError(t, err)

	assert.Equal(t, int64(3_500), snap.TokensUsed)
	assert.Equal(t, int64(96_500), snap.TokensRemaining)
	assert.Equal(t, int64(3_500), repo.tokensUsed("acct_1"))

	// Only tokens_used moved.
	entry, err := repo.Get(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), entry.TokensLimit)
	assert.Equal(t, types.PlanProfessional, entry.Plan)
	assert.Equal(t, types.SubStatusActive, entry.Status)
}

func TestRecorder_Charge_InvalidTokenCount(t *testing.T) {
	repo := newMemLedgerRepo()
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	for _, count := range []int64{0, -5} {
		_, err := rec.Charge(context.Background(), "acct_1", count)
		require.Error(t, err)
		assert.Equal(t, types.ErrCodeValidationTokenCount, appErrCode(t, err))
	}
}

func TestRecorder_Charge_HardCapRejects(t *testing.T) {
	repo := newMemLedgerRepo(&types.UsageLedgerEntry{
		AccountID:   "acct_free",
		Plan:        types.PlanFree,
		Interval:    types.IntervalMonth,
		TokensUsed:  9_999,
		TokensLimit: 10_000,
		Status:      types.SubStatusActive,
	})
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	_, err := rec.Charge(context.Background(), "acct_free", 5)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeQuotaExceeded, appErrCode(t, err))
	assert.Equal(t, int64(9_999), repo.tokensUsed("acct_free"))
}

func TestRecorder_Charge_SoftCapOverage(t *testing.T) {
	cycleEnd := time.Now().UTC().Add(10 * 24 * time.Hour)
	repo := newMemLedgerRepo(&types.UsageLedgerEntry{
		AccountID:   "acct_pro",
		Plan:        types.PlanProfessional,
		Interval:    types.IntervalMonth,
		TokensUsed:  99_000,
		TokensLimit: 100_000,
		CycleEndsAt: &cycleEnd,
		Status:      types.SubStatusActive,
	})
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	snap, err := rec.Charge(context.Background(), "acct_pro", 5_000)
	require.NoError(t, err)

	assert.Equal(t, int64(104_000), snap.TokensUsed)
	assert.True(t, snap.IsOverLimit)
	assert.Equal(t, int64(104_000), repo.tokensUsed("acct_pro"))
}

func TestRecorder_Charge_InactiveSubscription(t *testing.T) {
	repo := newMemLedgerRepo(&types.UsageLedgerEntry{
		AccountID:   "acct_due",
		Plan:        types.PlanHobby,
		Interval:    types.IntervalMonth,
		TokensUsed:  100,
		TokensLimit: 25_000,
		Status:      types.SubStatusPastDue,
	})
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	_, err := rec.Charge(context.Background(), "acct_due", 10)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeSubscriptionInactive, appErrCode(t, err))
	assert.Equal(t, int64(100), repo.tokensUsed("acct_due"))
}

func TestRecorder_Charge_AccountNotFound(t *testing.T) {
	rec := NewRecorder(newMemLedgerRepo(), NewStaticCatalog(), nil)

	_, err := rec.Charge(context.Background(), "ghost", 10)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNotFoundAccount, appErrCode(t, err))
}

func TestRecorder_Charge_RetriesLostRace(t *testing.T) {
	repo := newMemLedgerRepo(&types.UsageLedgerEntry{
		AccountID:   "acct_1",
		Plan:        types.PlanFree,
		Interval:    types.IntervalMonth,
		TokensUsed:  0,
		TokensLimit: 5_000,
		Status:      types.SubStatusActive,
	})
	repo.failSwaps = chargeMaxAttempts - 1
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	snap, err := rec.Charge(context.Background(), "acct_1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.TokensUsed)
}

func TestRecorder_Charge_ConflictAfterExhaustedRetries(t *testing.T) {
	repo := newMemLedgerRepo(&types.UsageLedgerEntry{
		AccountID:   "acct_1",
		Plan:        types.PlanFree,
		Interval:    types.IntervalMonth,
		TokensUsed:  0,
		TokensLimit: 5_000,
		Status:      types.SubStatusActive,
	})
	repo.failSwaps = chargeMaxAttempts
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	_, err := rec.Charge(context.Background(), "acct_1", 5)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConflictConcurrent, appErrCode(t, err))
	assert.Equal(t, int64(0), repo.tokensUsed("acct_1"))
}

// TestRecorder_Charge_ConcurrentHardCap drives 50 concurrent single-token
// charges at an entry with one token left under a hard cap. Exactly one
// charge may win; the other 49 must fail with a quota rejection and the
// final counter must land exactly on the limit.
func TestRecorder_Charge_ConcurrentHardCap(t *testing.T) {
	repo := newMemLedgerRepo(&types.UsageLedgerEntry{
		AccountID:   "acct_race",
		Plan:        types.PlanFree,
		Interval:    types.IntervalMonth,
		TokensUsed:  9_999,
		TokensLimit: 10_000,
		Status:      types.SubStatusActive,
	})
	rec := NewRecorder(repo, NewStaticCatalog(), nil)

	const chargers = 50
	results := make(chan error, chargers)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < chargers; i++ {
		go func() {
			start.Wait()
			_, err := rec.Charge(context.Background(), "acct_race", 1)
			results <- err
		}()
	}
	start.Done()

	var successes, quotaRejections int
	for i := 0; i < chargers; i++ {
		err := <-results
		if err == nil {
			successes++
			continue
		}
		require.Equal(t, types.ErrCodeQuotaExceeded, appErrCode(t, err))
		quotaRejections++
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, chargers-1, quotaRejections)
	assert.Equal(t, int64(10_000), repo.tokensUsed("acct_race"))
}
