package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greenlens/loan-portal/loan-portal-backend/internal/lifecycle"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
)

type stubLoanStore struct {
	loans   []portfolio.Loan
	listErr error
}

func (s *stubLoanStore) GetLoan(ctx context.Context, id uuid.UUID) (*portfolio.Loan, error) {
	for i := range s.loans {
		if s.loans[i].ID == id {
			return &s.loans[i], nil
		}
	}
	return nil, &portfolio.NotFoundError{LoanID: id}
}

func (s *stubLoanStore) ListActiveLoans(ctx context.Context) ([]portfolio.Loan, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.loans, nil
}

func (s *stubLoanStore) SaveLoan(ctx context.Context, loan *portfolio.Loan) error {
	return nil
}

// scriptedRecalculator returns a per-loan outcome: an error, an updated
// result, or a no-drift skip.
type scriptedRecalculator struct {
	mu      sync.Mutex
	errs    map[uuid.UUID]error
	updated map[uuid.UUID]bool
	calls   int
}

func (r *scriptedRecalculator) UpdateBalance(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*lifecycle.RecalcResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if err := r.errs[loanID]; err != nil {
		return nil, err
	}
	return &lifecycle.RecalcResult{LoanID: loanID, Updated: r.updated[loanID]}, nil
}

func activeLoans(n int) []portfolio.Loan {
	loans := make([]portfolio.Loan, n)
	for i := range loans {
		loans[i] = portfolio.Loan{ID: uuid.New(), Status: portfolio.LoanStatusActive}
	}
	return loans
}

func TestRunCountsEveryLoanExactlyOnce(t *testing.T) {
	loans := activeLoans(3)
	store := &stubLoanStore{loans: loans}
	recalc := &scriptedRecalculator{
		errs:    map[uuid.UUID]error{loans[1].ID: errors.New("emissions lookup failed")},
		updated: map[uuid.UUID]bool{loans[0].ID: true},
	}
	batch := NewBatchRecalculator(store, recalc, zap.NewNop(), DefaultConfig())

	report, err := batch.Run(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, report.Processed, report.Updated+report.Failed+report.Skipped)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, loans[1].ID, report.Errors[0].LoanID)
	assert.Contains(t, report.Errors[0].Message, "emissions lookup failed")
}

func TestRunOneFailureDoesNotAbortBatch(t *testing.T) {
	loans := activeLoans(5)
	store := &stubLoanStore{loans: loans}
	recalc := &scriptedRecalculator{
		errs:    map[uuid.UUID]error{loans[0].ID: errors.New("boom")},
		updated: map[uuid.UUID]bool{},
	}
	for _, loan := range loans[1:] {
		recalc.updated[loan.ID] = true
	}
	batch := NewBatchRecalculator(store, recalc, zap.NewNop(), DefaultConfig())

	report, err := batch.Run(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 4, report.Updated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 5, recalc.calls, "every loan is attempted despite the failure")
}

func TestRunEmptyPortfolio(t *testing.T) {
	batch := NewBatchRecalculator(&stubLoanStore{}, &scriptedRecalculator{}, zap.NewNop(), DefaultConfig())

	report, err := batch.Run(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.Updated+report.Failed+report.Skipped)
}

func TestRunListFailureAbortsBeforeDispatch(t *testing.T) {
	store := &stubLoanStore{listErr: errors.New("database unavailable")}
	recalc := &scriptedRecalculator{}
	batch := NewBatchRecalculator(store, recalc, zap.NewNop(), DefaultConfig())

	report, err := batch.Run(context.Background(), time.Now())

	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 0, recalc.calls)
}

// cancellingRecalculator cancels the batch context from inside its first
// call, then lingers so the remaining dispatches observe the cancellation
// while the worker slot is still held.
type cancellingRecalculator struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (r *cancellingRecalculator) UpdateBalance(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*lifecycle.RecalcResult, error) {
	r.once.Do(r.cancel)
	time.Sleep(50 * time.Millisecond)
	return &lifecycle.RecalcResult{LoanID: loanID, Updated: true}, nil
}

func TestRunCancellationSkipsRemainingLoans(t *testing.T) {
	loans := activeLoans(4)
	store := &stubLoanStore{loans: loans}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recalc := &cancellingRecalculator{cancel: cancel}
	batch := NewBatchRecalculator(store, recalc, zap.NewNop(), Config{
		MaxConcurrent: 1,
		LoanTimeout:   time.Second,
	})

	report, err := batch.Run(ctx, time.Now())

	require.NoError(t, err)
	assert.Equal(t, 4, report.Processed)
	// The in-flight loan runs to commit; the rest never dispatch
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, report.Processed, report.Updated+report.Failed+report.Skipped)
}
