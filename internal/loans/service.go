package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenlens/loan-portal/loan-portal-backend/internal/attribution"
	"greenlens/loan-portal/loan-portal-backend/internal/lifecycle"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
	"greenlens/loan-portal/loan-portal-backend/internal/reporting"
	"greenlens/loan-portal/loan-portal-backend/internal/scheduler"
)

// Service is the engine façade exposed to transports and downstream
// consumers: attribution calculation, lifecycle event processing, single-loan
// and portfolio-wide recalculation, and history queries.
type Service struct {
	store      portfolio.Repository
	processor  *lifecycle.Processor
	batch      *scheduler.BatchRecalculator
	aggregator *reporting.Aggregator
	clock      lifecycle.Clock
	logger     *zap.Logger
}

// NewService creates the loan engine service
func NewService(
	store portfolio.Repository,
	processor *lifecycle.Processor,
	batch *scheduler.BatchRecalculator,
	aggregator *reporting.Aggregator,
	clock lifecycle.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      store,
		processor:  processor,
		batch:      batch,
		aggregator: aggregator,
		clock:      clock,
		logger:     logger,
	}
}

// ComputeAttribution runs the standards calculator on ad-hoc inputs without
// touching any loan state.
func (s *Service) ComputeAttribution(input attribution.Input) (*attribution.Result, error) {
	return attribution.Compute(input)
}

// ProcessLifecycleEvent applies one lifecycle event to a loan
func (s *Service) ProcessLifecycleEvent(ctx context.Context, loanID uuid.UUID, req lifecycle.EventRequest) (*lifecycle.EventResult, error) {
	return s.processor.ProcessEvent(ctx, loanID, req)
}

// UpdateLoanBalance recalculates a single loan as of now. It shares its
// implementation with the batch pass, so a retry of one failed loan from a
// batch report behaves identically to the batch itself.
func (s *Service) UpdateLoanBalance(ctx context.Context, loanID uuid.UUID) (*lifecycle.RecalcResult, error) {
	return s.processor.UpdateBalance(ctx, loanID, s.clock.Now())
}

// BatchUpdatePortfolioBalances recalculates the active portfolio. A nil asOf
// defaults to the current time.
func (s *Service) BatchUpdatePortfolioBalances(ctx context.Context, asOf *time.Time) (*scheduler.BatchReport, error) {
	at := s.clock.Now()
	if asOf != nil {
		at = *asOf
	}
	return s.batch.Run(ctx, at)
}

// GetLoan returns one loan projection
func (s *Service) GetLoan(ctx context.Context, loanID uuid.UUID) (*portfolio.Loan, error) {
	return s.store.GetLoan(ctx, loanID)
}

// GetAttributionHistory returns the full snapshot ledger for a loan,
// ordered by reporting date.
func (s *Service) GetAttributionHistory(ctx context.Context, loanID uuid.UUID) ([]portfolio.AttributionRecord, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.ListRecordsByLoan(ctx, loanID)
}

// GetAttributionTrend returns the snapshots inside a reporting window
func (s *Service) GetAttributionTrend(ctx context.Context, loanID uuid.UUID, from, to time.Time) ([]portfolio.AttributionRecord, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.ListRecordsInRange(ctx, loanID, from, to)
}

// GetLifecycleEvents returns the event ledger for a loan
func (s *Service) GetLifecycleEvents(ctx context.Context, loanID uuid.UUID) ([]portfolio.LifecycleEvent, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.ListEventsByLoan(ctx, loanID)
}

// PortfolioSummary aggregates the active portfolio for dashboards
func (s *Service) PortfolioSummary(ctx context.Context) (*reporting.PortfolioSummary, error) {
	return s.aggregator.Summarize(ctx)
}
