package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"greenlens/loan-portal/loan-portal-backend/internal/amortization"
	"greenlens/loan-portal/loan-portal-backend/internal/attribution"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
)

// Clock supplies the current time, injectable for deterministic tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock { return systemClock{} }

// EmissionsProvider supplies the annual tCO2e of the full financed asset,
// independent of attribution.
type EmissionsProvider interface {
	TotalEmissions(ctx context.Context, loan *portfolio.Loan) (float64, error)
}

// Config tunes the processor
type Config struct {
	// BalanceTolerance is the minimum balance delta treated as material by
	// the scheduled recalculation pass. Below it no snapshot is written.
	BalanceTolerance float64
	// IOTimeout bounds every collaborator call; a timed-out loan operation
	// is recorded as failed, never left half-applied.
	IOTimeout time.Duration
}

// DefaultConfig returns default processor configuration
func DefaultConfig() Config {
	return Config{
		BalanceTolerance: 0.01,
		IOTimeout:        30 * time.Second,
	}
}

// Processor applies lifecycle events and scheduled recalculations to loans.
// Both paths share the same recalculate-and-commit core, so a UI-triggered
// single-loan update and a batch pass can never diverge in rounding or
// ordering.
type Processor struct {
	store     portfolio.Repository
	emissions EmissionsProvider
	clock     Clock
	machine   *stateMachine
	locks     *loanLocks
	logger    *zap.Logger
	config    Config
}

// NewProcessor creates a lifecycle event processor
func NewProcessor(store portfolio.Repository, emissions EmissionsProvider, clock Clock, logger *zap.Logger, config Config) *Processor {
	return &Processor{
		store:     store,
		emissions: emissions,
		clock:     clock,
		machine:   newStateMachine(),
		locks:     newLoanLocks(),
		logger:    logger,
		config:    config,
	}
}

// EventRequest describes a lifecycle event to apply
type EventRequest struct {
	Type   portfolio.EventType `json:"event_type"`
	Date   time.Time           `json:"event_date"`
	Amount *float64            `json:"event_amount,omitempty"`
	Notes  *string             `json:"notes,omitempty"`
}

// EventResult is the outcome of processing one lifecycle event
type EventResult struct {
	Loan      *portfolio.Loan              `json:"loan"`
	Event     *portfolio.LifecycleEvent    `json:"event"`
	Record    *portfolio.AttributionRecord `json:"record"`
	OldFactor float64                      `json:"old_attribution_factor"`
	NewFactor float64                      `json:"new_attribution_factor"`
	Warnings  []ReconciliationWarning      `json:"warnings,omitempty"`
}

// RecalcResult is the outcome of a scheduled or single-loan recalculation
type RecalcResult struct {
	LoanID   uuid.UUID                    `json:"loan_id"`
	Updated  bool                         `json:"updated"`
	Loan     *portfolio.Loan              `json:"loan,omitempty"`
	Record   *portfolio.AttributionRecord `json:"record,omitempty"`
	Warnings []ReconciliationWarning      `json:"warnings,omitempty"`
}

// ProcessEvent validates and applies one lifecycle event. The event, the new
// attribution snapshot and the loan projection commit atomically; any
// failure leaves the loan and its history unchanged.
func (p *Processor) ProcessEvent(ctx context.Context, loanID uuid.UUID, req EventRequest) (*EventResult, error) {
	release := p.locks.Acquire(loanID)
	defer release()

	loan, err := p.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if !p.machine.CanApply(loan.Status, req.Type) {
		return nil, &InvalidEventError{
			Reason: fmt.Sprintf("event %s not allowed while loan is %s", req.Type, loan.Status),
		}
	}
	if req.Type.RequiresAmount() && (req.Amount == nil || *req.Amount <= 0) {
		return nil, &InvalidEventError{
			Reason: fmt.Sprintf("event %s requires a positive amount", req.Type),
		}
	}
	if req.Date.IsZero() {
		return nil, &InvalidEventError{Reason: "event date is required"}
	}

	latest, err := p.store.LatestRecord(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if latest != nil && req.Date.Before(dayStart(latest.ReportingDate)) {
		return nil, &OutOfOrderEventError{
			LoanID:              loanID,
			EventDate:           req.Date,
			LatestReportingDate: latest.ReportingDate,
		}
	}

	oldFactor := loan.AttributionFactor
	newBalance := p.applyEvent(loan, req)

	result, annual, warnings, err := p.recalculate(ctx, loan, newBalance)
	if err != nil {
		return nil, err
	}

	event := &portfolio.LifecycleEvent{
		LoanID:      loanID,
		EventType:   req.Type,
		EventDate:   req.Date,
		EventAmount: req.Amount,
		Notes:       req.Notes,
	}
	record := p.buildRecord(loan, result, annual, newBalance, p.reportingDate(req.Date, latest), string(req.Type))

	loan.OutstandingBalance = newBalance
	loan.AttributionFactor = result.BaseFactor
	loan.AnnualEmissions = annual
	loan.FinancedEmissions = record.FinancedEmissions
	if next := p.machine.NextStatus(req.Type); next == portfolio.LoanStatusClosed {
		loan.Status = portfolio.LoanStatusClosed
		closedAt := req.Date
		reason := req.Type
		loan.ClosedAt = &closedAt
		loan.ClosedReason = &reason
	}

	commitCtx, cancel := context.WithTimeout(ctx, p.config.IOTimeout)
	defer cancel()
	if err := p.store.CommitSnapshot(commitCtx, loan, event, record); err != nil {
		return nil, err
	}

	p.logger.Info("Lifecycle event processed",
		zap.String("loan_id", loanID.String()),
		zap.String("event_type", string(req.Type)),
		zap.Float64("outstanding_balance", newBalance),
		zap.Float64("attribution_factor", result.BaseFactor))

	return &EventResult{
		Loan:      loan,
		Event:     event,
		Record:    record,
		OldFactor: oldFactor,
		NewFactor: result.BaseFactor,
		Warnings:  warnings,
	}, nil
}

// UpdateBalance reprojects a loan's balance from its amortization schedule
// and recorded events, and commits a "scheduled amortization" snapshot when
// the drift from the cached balance is material. Calling it twice with no
// intervening event or clock change appends nothing the second time.
func (p *Processor) UpdateBalance(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*RecalcResult, error) {
	release := p.locks.Acquire(loanID)
	defer release()

	loan, err := p.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	if loan.Status == portfolio.LoanStatusClosed {
		return &RecalcResult{LoanID: loanID, Updated: false, Loan: loan}, nil
	}

	events, err := p.store.ListEventsByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	projected, warnings, err := p.scheduledBalance(loan, events, asOf)
	if err != nil {
		return nil, err
	}

	if math.Abs(projected-loan.OutstandingBalance) <= p.config.BalanceTolerance {
		return &RecalcResult{LoanID: loanID, Updated: false, Loan: loan, Warnings: warnings}, nil
	}

	result, annual, recalcWarnings, err := p.recalculate(ctx, loan, projected)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, recalcWarnings...)

	latest, err := p.store.LatestRecord(ctx, loanID)
	if err != nil {
		return nil, err
	}
	record := p.buildRecord(loan, result, annual, projected, p.reportingDate(asOf, latest), portfolio.ReasonScheduledAmortization)

	loan.OutstandingBalance = projected
	loan.AttributionFactor = result.BaseFactor
	loan.AnnualEmissions = annual
	loan.FinancedEmissions = record.FinancedEmissions

	commitCtx, cancel := context.WithTimeout(ctx, p.config.IOTimeout)
	defer cancel()
	if err := p.store.CommitSnapshot(commitCtx, loan, nil, record); err != nil {
		return nil, err
	}

	p.logger.Debug("Scheduled recalculation committed",
		zap.String("loan_id", loanID.String()),
		zap.Float64("outstanding_balance", projected),
		zap.Float64("attribution_factor", result.BaseFactor))

	return &RecalcResult{
		LoanID:   loanID,
		Updated:  true,
		Loan:     loan,
		Record:   record,
		Warnings: warnings,
	}, nil
}

// applyEvent computes the new balance for an event without touching state
func (p *Processor) applyEvent(loan *portfolio.Loan, req EventRequest) float64 {
	switch req.Type {
	case portfolio.EventEarlyPayoff, portfolio.EventDefault, portfolio.EventRefinance:
		return 0
	case portfolio.EventPartialPayment:
		return math.Max(0, loan.OutstandingBalance-*req.Amount)
	default:
		return loan.OutstandingBalance
	}
}

// recalculate runs the attribution calculator and emissions lookup for a
// loan at the given balance. It has no side effects.
func (p *Processor) recalculate(ctx context.Context, loan *portfolio.Loan, balance float64) (*attribution.Result, float64, []ReconciliationWarning, error) {
	input, err := attributionInput(loan, balance)
	if err != nil {
		return nil, 0, nil, err
	}

	result, err := attribution.Compute(input)
	if err != nil {
		return nil, 0, nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.config.IOTimeout)
	defer cancel()
	annual, err := p.emissions.TotalEmissions(lookupCtx, loan)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("emissions lookup for loan %s: %w", loan.ID, err)
	}

	var warnings []ReconciliationWarning
	for _, w := range result.Warnings {
		warnings = append(warnings, ReconciliationWarning{Code: w.Code, Message: w.Message})
	}
	return result, annual, warnings, nil
}

// scheduledBalance projects the theoretical balance from the amortization
// schedule, then applies recorded events dated on or before asOf. This keeps
// the scheduled pass consistent with event-driven paydowns.
func (p *Processor) scheduledBalance(loan *portfolio.Loan, events []portfolio.LifecycleEvent, asOf time.Time) (float64, []ReconciliationWarning, error) {
	terms := amortization.Terms{
		Principal:       loan.LoanAmount,
		AnnualRate:      loan.InterestRate,
		TermMonths:      loan.TermMonths,
		OriginationDate: loan.OriginationDate,
	}
	proj, err := amortization.ProjectBalance(terms, asOf)
	if err != nil {
		return 0, nil, err
	}

	balance := proj.Balance
	for _, event := range events {
		if event.EventDate.After(asOf) {
			continue
		}
		switch event.EventType {
		case portfolio.EventEarlyPayoff, portfolio.EventDefault, portfolio.EventRefinance:
			balance = 0
		case portfolio.EventPartialPayment:
			if event.EventAmount != nil {
				balance = math.Max(0, balance-*event.EventAmount)
			}
		}
	}

	var warnings []ReconciliationWarning
	if proj.Matured {
		warnings = append(warnings, ReconciliationWarning{
			Code: WarnMaturedWithoutClosure,
			Message: fmt.Sprintf("loan %s reached maturity with no closing event recorded", loan.ID),
		})
	}
	return balance, warnings, nil
}

// buildRecord assembles the attribution snapshot for one recalculation
func (p *Processor) buildRecord(loan *portfolio.Loan, result *attribution.Result, annual, balance float64, reportingDate time.Time, reason string) *portfolio.AttributionRecord {
	checks, _ := json.Marshal(struct {
		Checks   attribution.Checks    `json:"checks"`
		Warnings []attribution.Warning `json:"warnings,omitempty"`
	}{Checks: result.Checks, Warnings: result.Warnings})

	return &portfolio.AttributionRecord{
		LoanID:             loan.ID,
		ReportingDate:      reportingDate,
		OutstandingBalance: balance,
		AttributionFactor:  result.BaseFactor,
		FinancedEmissions:  result.BaseFactor * annual,
		AnnualEmissions:    annual,
		DataQualityScore:   loan.DataQualityScore,
		CalculationReason:  reason,
		CalculationChecks:  datatypes.JSON(checks),
	}
}

// dayStart truncates a reporting timestamp to its calendar date. The
// intra-day nudges that keep history strictly ordered must not reject a
// further event on the same date as out of order.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// reportingDate keeps the history strictly ordered when multiple triggers
// share a calendar date.
func (p *Processor) reportingDate(requested time.Time, latest *portfolio.AttributionRecord) time.Time {
	if latest != nil && !requested.After(latest.ReportingDate) {
		return latest.ReportingDate.Add(time.Second)
	}
	return requested
}

// attributionInput maps a loan's standard and asset class onto the
// calculator's tagged input, with the given balance as outstanding amount.
func attributionInput(loan *portfolio.Loan, balance float64) (attribution.Input, error) {
	switch loan.Standard {
	case portfolio.StandardA:
		return attribution.StandardAInput{
			OutstandingAmount:            balance,
			EnterpriseValueIncludingCash: deref(loan.EnterpriseValueInclCash),
			DataQualityLevel:             loan.DataQualityScore,
		}, nil
	case portfolio.StandardB:
		return attribution.StandardBInput{
			OutstandingAmount:         balance,
			MotorVehicle:              loan.AssetClass == portfolio.AssetClassMotorVehicles,
			VehicleValueAtOrigination: deref(loan.VehicleValue),
			TotalEquityPlusDebt:       deref(loan.TotalEquityPlusDebt),
			DataQualityLevel:          loan.DataQualityScore,
		}, nil
	case portfolio.StandardC:
		return attribution.StandardCInput{
			CommittedAmount:  deref(loan.CommittedAmount),
			DrawdownAmount:   loan.DrawdownAmount,
			TotalProjectCost: deref(loan.TotalProjectCost),
			DataQualityLevel: loan.DataQualityScore,
		}, nil
	default:
		return nil, &attribution.ValidationError{Field: "standard", Message: "unsupported attribution standard"}
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
