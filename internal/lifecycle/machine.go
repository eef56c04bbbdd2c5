package lifecycle

import (
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
)

// stateMachine enforces loan status transitions per lifecycle event
type stateMachine struct {
	allowedEvents map[portfolio.LoanStatus][]portfolio.EventType
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		allowedEvents: map[portfolio.LoanStatus][]portfolio.EventType{
			portfolio.LoanStatusActive: {
				portfolio.EventEarlyPayoff,
				portfolio.EventRefinance,
				portfolio.EventDefault,
				portfolio.EventPartialPayment,
			},
			// Closed loans retain their final snapshot; no further events
			portfolio.LoanStatusClosed: {},
		},
	}
}

// CanApply checks whether the event type is allowed in the current status
func (sm *stateMachine) CanApply(status portfolio.LoanStatus, event portfolio.EventType) bool {
	for _, allowed := range sm.allowedEvents[status] {
		if allowed == event {
			return true
		}
	}
	return false
}

// NextStatus returns the status a loan moves to after the event. Early
// payoff, default and refinance close the source loan; a partial payment
// leaves it active. The replacement loan after a refinance is created
// downstream, never here.
func (sm *stateMachine) NextStatus(event portfolio.EventType) portfolio.LoanStatus {
	switch event {
	case portfolio.EventEarlyPayoff, portfolio.EventDefault, portfolio.EventRefinance:
		return portfolio.LoanStatusClosed
	default:
		return portfolio.LoanStatusActive
	}
}
