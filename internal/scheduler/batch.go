package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenlens/loan-portal/loan-portal-backend/internal/lifecycle"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
)

// Recalculator is the single-loan recalculation the batch fans out over.
// Sharing it with the UI-triggered path keeps the two from diverging.
type Recalculator interface {
	UpdateBalance(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*lifecycle.RecalcResult, error)
}

// Config tunes batch execution
type Config struct {
	MaxConcurrent int           `json:"max_concurrent"`
	LoanTimeout   time.Duration `json:"loan_timeout"`
}

// DefaultConfig returns default batch configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		LoanTimeout:   time.Minute,
	}
}

// BatchRecalculator runs the scheduled amortization pass over the active
// portfolio. Loans are processed in parallel up to MaxConcurrent; a slow or
// failing loan never blocks the others.
type BatchRecalculator struct {
	loans        portfolio.LoanStore
	recalculator Recalculator
	logger       *zap.Logger
	config       Config
}

// NewBatchRecalculator creates a batch recalculator
func NewBatchRecalculator(loans portfolio.LoanStore, recalculator Recalculator, logger *zap.Logger, config Config) *BatchRecalculator {
	return &BatchRecalculator{
		loans:        loans,
		recalculator: recalculator,
		logger:       logger,
		config:       config,
	}
}

// BatchError records one failed loan inside a batch run
type BatchError struct {
	LoanID  uuid.UUID `json:"loan_id"`
	Message string    `json:"message"`
}

// BatchReport summarizes a batch run. Processed always equals
// Updated + Failed + Skipped for auditability.
type BatchReport struct {
	AsOf        time.Time    `json:"as_of"`
	Processed   int          `json:"processed"`
	Updated     int          `json:"updated"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Errors      []BatchError `json:"errors,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	DurationMs  int64        `json:"duration_ms"`
}

// Run recalculates every active loan as of the given date. Per-loan failures
// land in the report's error list and never abort the batch. Cancelling the
// context stops dispatching new loans; loans already in flight run to commit
// or recorded failure, and the remainder are reported as skipped.
func (b *BatchRecalculator) Run(ctx context.Context, asOf time.Time) (*BatchReport, error) {
	startTime := time.Now()

	loans, err := b.loans.ListActiveLoans(ctx)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Starting portfolio recalculation batch",
		zap.Time("as_of", asOf),
		zap.Int("loans", len(loans)),
		zap.Int("max_concurrent", b.config.MaxConcurrent))

	report := &BatchReport{
		AsOf:      asOf,
		Processed: len(loans),
		StartedAt: startTime,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, b.config.MaxConcurrent)

dispatch:
	for _, loan := range loans {
		select {
		case <-ctx.Done():
			// Checkpoint boundary: everything not yet dispatched is skipped
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(loanID uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()

			loanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.LoanTimeout)
			defer cancel()

			result, err := b.recalculator.UpdateBalance(loanCtx, loanID, asOf)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				report.Errors = append(report.Errors, BatchError{LoanID: loanID, Message: err.Error()})
				b.logger.Warn("Loan recalculation failed",
					zap.String("loan_id", loanID.String()),
					zap.Error(err))
			case result.Updated:
				report.Updated++
			default:
				report.Skipped++
			}
		}(loan.ID)
	}

	wg.Wait()

	report.CompletedAt = time.Now()
	report.DurationMs = time.Since(startTime).Milliseconds()

	b.logger.Info("Portfolio recalculation batch completed",
		zap.Int("processed", report.Processed),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int64("duration_ms", report.DurationMs))

	return report, nil
}
