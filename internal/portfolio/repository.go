package portfolio

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoanStore provides access to loan records
type LoanStore interface {
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListActiveLoans(ctx context.Context) ([]Loan, error)
	SaveLoan(ctx context.Context, loan *Loan) error
}

// EventStore provides access to the append-only lifecycle event ledger
type EventStore interface {
	AppendEvent(ctx context.Context, event *LifecycleEvent) error
	ListEventsByLoan(ctx context.Context, loanID uuid.UUID) ([]LifecycleEvent, error)
}

// HistoryStore provides access to the append-only attribution snapshot ledger
type HistoryStore interface {
	AppendRecord(ctx context.Context, record *AttributionRecord) error
	LatestRecord(ctx context.Context, loanID uuid.UUID) (*AttributionRecord, error)
	ListRecordsByLoan(ctx context.Context, loanID uuid.UUID) ([]AttributionRecord, error)
	ListRecordsInRange(ctx context.Context, loanID uuid.UUID, from, to time.Time) ([]AttributionRecord, error)
}

// SnapshotWriter commits one recalculation atomically: the optional
// triggering event, exactly one attribution record, and the refreshed loan
// projection. Implementations must persist all three or none.
type SnapshotWriter interface {
	CommitSnapshot(ctx context.Context, loan *Loan, event *LifecycleEvent, record *AttributionRecord) error
}

// Repository is the full persistence surface the engine needs
type Repository interface {
	LoanStore
	EventStore
	HistoryStore
	SnapshotWriter
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed repository
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// AutoMigrate creates or updates the portfolio tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Loan{}, &LifecycleEvent{}, &AttributionRecord{})
}

func (r *gormRepository) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	var loan Loan
	err := r.db.WithContext(ctx).First(&loan, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{LoanID: id}
	}
	if err != nil {
		return nil, &StoreError{Op: "get loan", Err: err}
	}
	return &loan, nil
}

func (r *gormRepository) ListActiveLoans(ctx context.Context) ([]Loan, error) {
	var loans []Loan
	err := r.db.WithContext(ctx).
		Where("status = ?", LoanStatusActive).
		Order("origination_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, &StoreError{Op: "list active loans", Err: err}
	}
	return loans, nil
}

func (r *gormRepository) SaveLoan(ctx context.Context, loan *Loan) error {
	if err := r.db.WithContext(ctx).Save(loan).Error; err != nil {
		return &StoreError{Op: "save loan", Err: err}
	}
	return nil
}

func (r *gormRepository) AppendEvent(ctx context.Context, event *LifecycleEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return &StoreError{Op: "append event", Err: err}
	}
	return nil
}

func (r *gormRepository) ListEventsByLoan(ctx context.Context, loanID uuid.UUID) ([]LifecycleEvent, error) {
	var events []LifecycleEvent
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("event_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, &StoreError{Op: "list events", Err: err}
	}
	return events, nil
}

func (r *gormRepository) AppendRecord(ctx context.Context, record *AttributionRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return &StoreError{Op: "append record", Err: err}
	}
	return nil
}

func (r *gormRepository) LatestRecord(ctx context.Context, loanID uuid.UUID) (*AttributionRecord, error) {
	var record AttributionRecord
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("reporting_date DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "latest record", Err: err}
	}
	return &record, nil
}

func (r *gormRepository) ListRecordsByLoan(ctx context.Context, loanID uuid.UUID) ([]AttributionRecord, error) {
	var records []AttributionRecord
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("reporting_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, &StoreError{Op: "list records", Err: err}
	}
	return records, nil
}

func (r *gormRepository) ListRecordsInRange(ctx context.Context, loanID uuid.UUID, from, to time.Time) ([]AttributionRecord, error) {
	var records []AttributionRecord
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND reporting_date >= ? AND reporting_date <= ?", loanID, from, to).
		Order("reporting_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, &StoreError{Op: "list records in range", Err: err}
	}
	return records, nil
}

func (r *gormRepository) CommitSnapshot(ctx context.Context, loan *Loan, event *LifecycleEvent, record *AttributionRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if event != nil {
			if err := tx.Create(event).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return tx.Save(loan).Error
	})
	if err != nil {
		return &StoreError{Op: "commit snapshot", Err: err}
	}
	return nil
}
