package amortization

import (
	"fmt"
	"math"
	"time"
)

// Terms are the origination terms a schedule is derived from
type Terms struct {
	Principal       float64   // original loan amount
	AnnualRate      float64   // annual interest rate, percent
	TermMonths      int
	OriginationDate time.Time
}

// Installment is one row of an amortization schedule
type Installment struct {
	Period           int       `json:"period"`
	PaymentDate      time.Time `json:"payment_date"`
	PaymentAmount    float64   `json:"payment_amount"`
	PrincipalPayment float64   `json:"principal_payment"`
	InterestPayment  float64   `json:"interest_payment"`
	RemainingBalance float64   `json:"remaining_balance"`
}

// InvalidTermsError indicates loan terms a schedule cannot be built from
type InvalidTermsError struct {
	Reason string
}

func (e *InvalidTermsError) Error() string {
	return "invalid loan terms: " + e.Reason
}

func (t Terms) validate() error {
	if t.Principal <= 0 {
		return &InvalidTermsError{Reason: "principal must be greater than 0"}
	}
	if t.AnnualRate < 0 {
		return &InvalidTermsError{Reason: "interest rate must not be negative"}
	}
	if t.TermMonths <= 0 {
		return &InvalidTermsError{Reason: "term must be at least one month"}
	}
	if t.OriginationDate.IsZero() {
		return &InvalidTermsError{Reason: "origination date is required"}
	}
	return nil
}

// MonthlyPayment returns the fixed installment for the terms using the
// standard annuity formula. Zero-rate loans amortize linearly.
func MonthlyPayment(t Terms) (float64, error) {
	if err := t.validate(); err != nil {
		return 0, err
	}
	monthlyRate := t.AnnualRate / 100 / 12
	if monthlyRate == 0 {
		return t.Principal / float64(t.TermMonths), nil
	}
	growth := math.Pow(1+monthlyRate, float64(t.TermMonths))
	return t.Principal * monthlyRate * growth / (growth - 1), nil
}

// Schedule generates the full declining-balance schedule for the terms.
// Installment dates fall on the origination day of each following month.
func Schedule(t Terms) ([]Installment, error) {
	payment, err := MonthlyPayment(t)
	if err != nil {
		return nil, err
	}

	monthlyRate := t.AnnualRate / 100 / 12
	schedule := make([]Installment, 0, t.TermMonths)
	balance := t.Principal

	for period := 1; period <= t.TermMonths; period++ {
		interest := balance * monthlyRate
		principal := math.Min(payment-interest, balance)
		balance = math.Max(0, balance-principal)

		schedule = append(schedule, Installment{
			Period:           period,
			PaymentDate:      t.OriginationDate.AddDate(0, period, 0),
			PaymentAmount:    round2(interest + principal),
			PrincipalPayment: round2(principal),
			InterestPayment:  round2(interest),
			RemainingBalance: round2(balance),
		})

		if balance == 0 {
			break
		}
	}

	return schedule, nil
}

// Projection is the outcome of projecting a balance to a date
type Projection struct {
	Balance        float64
	ElapsedPeriods int
	Matured        bool // at or beyond maturity with the schedule fully run off
}

// ProjectBalance computes the theoretical outstanding balance at asOf,
// assuming the loan follows its schedule with no lifecycle events. Before
// the first installment the balance is the full principal; at or beyond
// maturity it is zero and the projection is marked matured so callers can
// raise a reconciliation warning.
func ProjectBalance(t Terms, asOf time.Time) (*Projection, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if asOf.Before(t.OriginationDate) {
		return &Projection{Balance: t.Principal}, nil
	}

	schedule, err := Schedule(t)
	if err != nil {
		return nil, err
	}

	proj := &Projection{Balance: t.Principal}
	for _, inst := range schedule {
		if inst.PaymentDate.After(asOf) {
			break
		}
		proj.Balance = inst.RemainingBalance
		proj.ElapsedPeriods = inst.Period
	}

	// Cap and floor against the invariant 0 <= balance <= principal
	proj.Balance = math.Max(0, math.Min(proj.Balance, t.Principal))
	proj.Matured = proj.ElapsedPeriods >= len(schedule) && !asOf.Before(t.OriginationDate.AddDate(0, t.TermMonths, 0))
	return proj, nil
}

// TotalInterest sums the interest portion of every installment
func TotalInterest(schedule []Installment) float64 {
	var total float64
	for _, inst := range schedule {
		total += inst.InterestPayment
	}
	return round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// String implements fmt.Stringer for schedule debugging output
func (i Installment) String() string {
	return fmt.Sprintf("period %d: payment %.2f (principal %.2f, interest %.2f), balance %.2f",
		i.Period, i.PaymentAmount, i.PrincipalPayment, i.InterestPayment, i.RemainingBalance)
}
