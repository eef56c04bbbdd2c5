package portfolio

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError indicates an unknown loan id
type NotFoundError struct {
	LoanID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("loan %s not found", e.LoanID)
}

// StoreError wraps an I/O failure in a store collaborator. Callers may retry
// with backoff; the engine itself never retries to avoid double-applying
// side effects.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
