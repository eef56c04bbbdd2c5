package lifecycle

import (
	"sync"

	"github.com/google/uuid"
)

// loanLocks serializes recalculations per loan. A loan must never have two
// recalculations in flight, so two history records cannot race for the
// latest position; distinct loans proceed in parallel.
type loanLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*loanLock
}

type loanLock struct {
	mu   sync.Mutex
	refs int
}

func newLoanLocks() *loanLocks {
	return &loanLocks{locks: make(map[uuid.UUID]*loanLock)}
}

// Acquire blocks until the loan's exclusive section is held and returns the
// release function.
func (l *loanLocks) Acquire(loanID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[loanID]
	if !ok {
		lock = &loanLock{}
		l.locks[loanID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, loanID)
		}
		l.mu.Unlock()
	}
}
