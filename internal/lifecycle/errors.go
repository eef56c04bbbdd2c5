package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutOfOrderEventError indicates an event dated before the loan's latest
// attribution snapshot. It always requires operator correction; events are
// never silently reordered.
type OutOfOrderEventError struct {
	LoanID              uuid.UUID
	EventDate           time.Time
	LatestReportingDate time.Time
}

func (e *OutOfOrderEventError) Error() string {
	return fmt.Sprintf("event for loan %s dated %s predates latest attribution snapshot of %s",
		e.LoanID, e.EventDate.Format("2006-01-02"), e.LatestReportingDate.Format("2006-01-02"))
}

// InvalidEventError indicates a lifecycle event request that cannot be
// applied: missing required amount, unsupported type, or an event on a
// closed loan.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return "invalid lifecycle event: " + e.Reason
}

// ReconciliationWarning is a non-fatal finding attached to a result rather
// than returned as an error.
type ReconciliationWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	// WarnMaturedWithoutClosure flags a loan at or past maturity with no
	// closing event recorded. The loan is not auto-closed.
	WarnMaturedWithoutClosure = "MATURED_WITHOUT_CLOSING_EVENT"

	// WarnFactorAboveOne mirrors the calculator's above-100% disclosure
	WarnFactorAboveOne = "FACTOR_ABOVE_ONE"
)
