package portfolio

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Loan represents a single asset-backed loan in the financed-emissions portfolio.
// The cached attribution fields are a read projection over the append-only
// attribution history; the history is the source of truth.
type Loan struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	BorrowerName string    `json:"borrower_name" gorm:"not null"`

	// Origination terms
	LoanAmount      float64   `json:"loan_amount" gorm:"type:decimal(14,2);not null"`
	InterestRate    float64   `json:"interest_rate" gorm:"type:decimal(6,3);not null"` // annual, percent
	TermMonths      int       `json:"term_months" gorm:"not null"`
	OriginationDate time.Time `json:"origination_date" gorm:"type:date;not null;index"`

	// Asset details
	AssetClass   AssetClass           `json:"asset_class" gorm:"not null;index"`
	Standard     AttributionStandard  `json:"attribution_standard" gorm:"not null"`
	VehicleType  *string              `json:"vehicle_type,omitempty"`
	FuelType     *string              `json:"fuel_type,omitempty"`
	VehicleValue *float64             `json:"vehicle_value_at_origination,omitempty" gorm:"type:decimal(14,2)"`
	// Denominators for non-vehicle asset classes
	EnterpriseValueInclCash *float64 `json:"enterprise_value_including_cash,omitempty" gorm:"type:decimal(16,2)"`
	TotalEquityPlusDebt     *float64 `json:"total_equity_plus_debt,omitempty" gorm:"type:decimal(16,2)"`
	CommittedAmount         *float64 `json:"committed_amount,omitempty" gorm:"type:decimal(14,2)"`
	DrawdownAmount          *float64 `json:"drawdown_amount,omitempty" gorm:"type:decimal(14,2)"`
	TotalProjectCost        *float64 `json:"total_project_cost,omitempty" gorm:"type:decimal(16,2)"`

	// Cached attribution projection (derived from the latest history record)
	OutstandingBalance float64 `json:"outstanding_balance" gorm:"type:decimal(14,2);not null"`
	AttributionFactor  float64 `json:"attribution_factor" gorm:"type:decimal(10,6);default:0"`
	FinancedEmissions  float64 `json:"financed_emissions_tco2e" gorm:"type:decimal(12,4);default:0"`
	AnnualEmissions    float64 `json:"annual_emissions_tco2e" gorm:"type:decimal(12,4);default:0"`
	DataQualityScore   int     `json:"data_quality_score" gorm:"default:3"` // PCAF 1-5, 5 = worst

	Status       LoanStatus `json:"status" gorm:"default:'active';index"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedReason *EventType `json:"closed_reason,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// LoanStatus represents the lifecycle status of a loan
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "active"
	LoanStatusClosed LoanStatus = "closed"
)

// AttributionStandard identifies the PCAF attribution standard applied to a loan
type AttributionStandard string

const (
	StandardA AttributionStandard = "A" // enterprise-value basis
	StandardB AttributionStandard = "B" // outstanding-amount basis
	StandardC AttributionStandard = "C" // committed-amount basis
)

// AssetClass identifies the PCAF asset class of the financed asset
type AssetClass string

const (
	AssetClassListedEquity         AssetClass = "listed_equity"
	AssetClassCorporateBonds       AssetClass = "corporate_bonds"
	AssetClassSovereignBonds       AssetClass = "sovereign_bonds"
	AssetClassBusinessLoans        AssetClass = "business_loans"
	AssetClassUnlistedEquity       AssetClass = "unlisted_equity"
	AssetClassMotorVehicles        AssetClass = "motor_vehicles"
	AssetClassMortgages            AssetClass = "mortgages"
	AssetClassCommercialRealEstate AssetClass = "commercial_real_estate"
	AssetClassProjectFinance       AssetClass = "project_finance"
)

// LifecycleEvent represents a discrete repayment-status change on a loan.
// Events are append-only and immutable; corrections are new events.
type LifecycleEvent struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	LoanID      uuid.UUID `json:"loan_id" gorm:"type:uuid;not null;index"`
	EventType   EventType `json:"event_type" gorm:"not null"`
	EventDate   time.Time `json:"event_date" gorm:"type:date;not null;index"`
	EventAmount *float64  `json:"event_amount,omitempty" gorm:"type:decimal(14,2)"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// EventType represents the kind of lifecycle event
type EventType string

const (
	EventEarlyPayoff    EventType = "early_payoff"
	EventRefinance      EventType = "refinance"
	EventDefault        EventType = "default"
	EventPartialPayment EventType = "partial_payment"
)

// RequiresAmount reports whether the event type carries a mandatory amount
func (e EventType) RequiresAmount() bool {
	return e == EventPartialPayment || e == EventRefinance
}

// AttributionRecord is one append-only attribution snapshot per
// recalculation trigger. The record with the maximum reporting date is the
// loan's current attribution.
type AttributionRecord struct {
	ID                 uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	LoanID             uuid.UUID      `json:"loan_id" gorm:"type:uuid;not null;index"`
	ReportingDate      time.Time      `json:"reporting_date" gorm:"not null;index"`
	OutstandingBalance float64        `json:"outstanding_balance" gorm:"type:decimal(14,2);not null"`
	AttributionFactor  float64        `json:"attribution_factor" gorm:"type:decimal(10,6);not null"`
	FinancedEmissions  float64        `json:"financed_emissions_tco2e" gorm:"type:decimal(12,4);not null"`
	AnnualEmissions    float64        `json:"annual_emissions_tco2e" gorm:"type:decimal(12,4);not null"`
	DataQualityScore   int            `json:"data_quality_score"`
	CalculationReason  string         `json:"calculation_reason" gorm:"not null"`
	CalculationChecks  datatypes.JSON `json:"calculation_checks" gorm:"default:'{}'"`
	CreatedAt          time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// ReasonScheduledAmortization marks snapshots written by the scheduled
// recalculation pass rather than a lifecycle event.
const ReasonScheduledAmortization = "scheduled amortization"

func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (e *LifecycleEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (r *AttributionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
