package loans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greenlens/loan-portal/loan-portal-backend/internal/emissions"
	"greenlens/loan-portal/loan-portal-backend/internal/lifecycle"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
	"greenlens/loan-portal/loan-portal-backend/internal/reporting"
	"greenlens/loan-portal/loan-portal-backend/internal/scheduler"
)

// memRepository backs the REST tests with an in-memory portfolio
type memRepository struct {
	loans   map[uuid.UUID]portfolio.Loan
	events  []portfolio.LifecycleEvent
	records []portfolio.AttributionRecord
}

func newMemRepository(loans ...portfolio.Loan) *memRepository {
	repo := &memRepository{loans: make(map[uuid.UUID]portfolio.Loan)}
	for _, loan := range loans {
		repo.loans[loan.ID] = loan
	}
	return repo
}

func (r *memRepository) GetLoan(ctx context.Context, id uuid.UUID) (*portfolio.Loan, error) {
	loan, ok := r.loans[id]
	if !ok {
		return nil, &portfolio.NotFoundError{LoanID: id}
	}
	copied := loan
	return &copied, nil
}

func (r *memRepository) ListActiveLoans(ctx context.Context) ([]portfolio.Loan, error) {
	var active []portfolio.Loan
	for _, loan := range r.loans {
		if loan.Status == portfolio.LoanStatusActive {
			active = append(active, loan)
		}
	}
	return active, nil
}

func (r *memRepository) SaveLoan(ctx context.Context, loan *portfolio.Loan) error {
	r.loans[loan.ID] = *loan
	return nil
}

func (r *memRepository) AppendEvent(ctx context.Context, event *portfolio.LifecycleEvent) error {
	r.events = append(r.events, *event)
	return nil
}

func (r *memRepository) ListEventsByLoan(ctx context.Context, loanID uuid.UUID) ([]portfolio.LifecycleEvent, error) {
	var events []portfolio.LifecycleEvent
	for _, event := range r.events {
		if event.LoanID == loanID {
			events = append(events, event)
		}
	}
	return events, nil
}

func (r *memRepository) AppendRecord(ctx context.Context, record *portfolio.AttributionRecord) error {
	r.records = append(r.records, *record)
	return nil
}

func (r *memRepository) LatestRecord(ctx context.Context, loanID uuid.UUID) (*portfolio.AttributionRecord, error) {
	var latest *portfolio.AttributionRecord
	for i := range r.records {
		record := r.records[i]
		if record.LoanID != loanID {
			continue
		}
		if latest == nil || record.ReportingDate.After(latest.ReportingDate) {
			copied := record
			latest = &copied
		}
	}
	return latest, nil
}

func (r *memRepository) ListRecordsByLoan(ctx context.Context, loanID uuid.UUID) ([]portfolio.AttributionRecord, error) {
	var records []portfolio.AttributionRecord
	for _, record := range r.records {
		if record.LoanID == loanID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memRepository) ListRecordsInRange(ctx context.Context, loanID uuid.UUID, from, to time.Time) ([]portfolio.AttributionRecord, error) {
	var records []portfolio.AttributionRecord
	for _, record := range r.records {
		if record.LoanID == loanID && !record.ReportingDate.Before(from) && !record.ReportingDate.After(to) {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memRepository) CommitSnapshot(ctx context.Context, loan *portfolio.Loan, event *portfolio.LifecycleEvent, record *portfolio.AttributionRecord) error {
	if event != nil {
		r.events = append(r.events, *event)
	}
	r.records = append(r.records, *record)
	r.loans[loan.ID] = *loan
	return nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestRouter(repo *memRepository, now time.Time) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	clock := fixedClock{now: now}

	processor := lifecycle.NewProcessor(repo, emissions.NewFactorTableProvider(), clock, logger, lifecycle.DefaultConfig())
	batch := scheduler.NewBatchRecalculator(repo, processor, logger, scheduler.DefaultConfig())
	aggregator := reporting.NewAggregator(repo, logger)
	service := NewService(repo, processor, batch, aggregator, clock, logger)
	handler := NewHandler(service, logger)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func vehicleLoanFixture() portfolio.Loan {
	vehicleValue := 35000.0
	vehicleType := "passenger_car"
	fuelType := "gasoline"
	return portfolio.Loan{
		ID:                 uuid.New(),
		BorrowerName:       "Jordan Baker",
		LoanAmount:         28000,
		InterestRate:       5.0,
		TermMonths:         48,
		OriginationDate:    time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		AssetClass:         portfolio.AssetClassMotorVehicles,
		Standard:           portfolio.StandardB,
		VehicleType:        &vehicleType,
		FuelType:           &fuelType,
		VehicleValue:       &vehicleValue,
		OutstandingBalance: 28000,
		AttributionFactor:  0.8,
		DataQualityScore:   2,
		Status:             portfolio.LoanStatusActive,
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestCalculateAttributionEndpoint(t *testing.T) {
	router := newTestRouter(newMemRepository(), time.Now())

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/attribution/calculate", gin.H{
		"standard":                     "B",
		"asset_class":                  "motor_vehicles",
		"outstanding_amount":           28000,
		"vehicle_value_at_origination": 35000,
		"data_quality_level":           1,
	})

	require.Equal(t, http.StatusOK, recorder.Code)

	var result struct {
		BaseFactor  float64 `json:"base_factor"`
		FinalFactor float64 `json:"final_factor"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.InDelta(t, 0.8, result.BaseFactor, 1e-9)
}

func TestCalculateAttributionRejectsBadDenominator(t *testing.T) {
	router := newTestRouter(newMemRepository(), time.Now())

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/attribution/calculate", gin.H{
		"standard":           "B",
		"asset_class":        "motor_vehicles",
		"outstanding_amount": 28000,
		"data_quality_level": 1,
	})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestProcessEventEndpoint(t *testing.T) {
	loan := vehicleLoanFixture()
	repo := newMemRepository(loan)
	router := newTestRouter(repo, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/events", gin.H{
		"event_type":   "partial_payment",
		"event_date":   "2025-06-01",
		"event_amount": 5000,
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 23000.0, repo.loans[loan.ID].OutstandingBalance)
	assert.Len(t, repo.events, 1)
}

func TestProcessEventMissingAmountIsBadRequest(t *testing.T) {
	loan := vehicleLoanFixture()
	router := newTestRouter(newMemRepository(loan), time.Now())

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/events", gin.H{
		"event_type": "partial_payment",
		"event_date": "2025-06-01",
	})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestProcessEventOutOfOrderIsConflict(t *testing.T) {
	loan := vehicleLoanFixture()
	repo := newMemRepository(loan)
	repo.records = append(repo.records, portfolio.AttributionRecord{
		ID:            uuid.New(),
		LoanID:        loan.ID,
		ReportingDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	router := newTestRouter(repo, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC))

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/events", gin.H{
		"event_type":   "partial_payment",
		"event_date":   "2025-06-01",
		"event_amount": 5000,
	})

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestUnknownLoanIsNotFound(t *testing.T) {
	router := newTestRouter(newMemRepository(), time.Now())

	recorder := doJSON(t, router, http.MethodGet, "/api/v1/loans/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestMalformedLoanIDIsBadRequest(t *testing.T) {
	router := newTestRouter(newMemRepository(), time.Now())

	recorder := doJSON(t, router, http.MethodGet, "/api/v1/loans/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRecalculateLoanEndpoint(t *testing.T) {
	loan := vehicleLoanFixture()
	repo := newMemRepository(loan)
	// Eleven monthly installments have fallen due by late December
	router := newTestRouter(repo, time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC))

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/loans/"+loan.ID.String()+"/recalculate", nil)

	require.Equal(t, http.StatusOK, recorder.Code)

	var result struct {
		Updated bool `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.True(t, result.Updated)
	assert.Less(t, repo.loans[loan.ID].OutstandingBalance, 28000.0)
}

func TestPortfolioRecalculateEndpoint(t *testing.T) {
	loan := vehicleLoanFixture()
	repo := newMemRepository(loan)
	router := newTestRouter(repo, time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC))

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/portfolio/recalculate", nil)

	require.Equal(t, http.StatusOK, recorder.Code)

	var report struct {
		Processed int `json:"processed"`
		Updated   int `json:"updated"`
		Failed    int `json:"failed"`
		Skipped   int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, report.Processed, report.Updated+report.Failed+report.Skipped)
}

func TestAttributionHistoryEndpoint(t *testing.T) {
	loan := vehicleLoanFixture()
	repo := newMemRepository(loan)
	for month := 3; month <= 5; month++ {
		repo.records = append(repo.records, portfolio.AttributionRecord{
			ID:            uuid.New(),
			LoanID:        loan.ID,
			ReportingDate: time.Date(2025, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
		})
	}
	router := newTestRouter(repo, time.Now())

	recorder := doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/v1/loans/%s/history", loan.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &records))
	assert.Len(t, records, 3)

	// Windowed query narrows the ledger
	recorder = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/v1/loans/%s/history?from=2025-04-01&to=2025-05-01", loan.ID), nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestPortfolioSummaryEndpoint(t *testing.T) {
	loan := vehicleLoanFixture()
	loan.FinancedEmissions = 3.878
	router := newTestRouter(newMemRepository(loan), time.Now())

	recorder := doJSON(t, router, http.MethodGet, "/api/v1/portfolio/summary", nil)

	require.Equal(t, http.StatusOK, recorder.Code)

	var summary struct {
		TotalLoans              int     `json:"total_loans"`
		TotalOutstandingBalance float64 `json:"total_outstanding_balance"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalLoans)
	assert.Equal(t, 28000.0, summary.TotalOutstandingBalance)
}
