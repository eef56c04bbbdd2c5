package loans

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenlens/loan-portal/loan-portal-backend/internal/attribution"
	"greenlens/loan-portal/loan-portal-backend/internal/lifecycle"
	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
)

// Handler is the thin REST adapter over the engine service
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a loans handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the loan engine routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/attribution/calculate", h.CalculateAttribution)
	r.POST("/loans/:id/events", h.ProcessLifecycleEvent)
	r.POST("/loans/:id/recalculate", h.UpdateLoanBalance)
	r.GET("/loans/:id", h.GetLoan)
	r.GET("/loans/:id/history", h.GetAttributionHistory)
	r.GET("/loans/:id/events", h.GetLifecycleEvents)
	r.POST("/portfolio/recalculate", h.BatchRecalculate)
	r.GET("/portfolio/summary", h.PortfolioSummary)
}

// attributionRequest is the wire form of an attribution calculation
type attributionRequest struct {
	Standard                     string   `json:"standard" binding:"required"`
	AssetClass                   string   `json:"asset_class"`
	OutstandingAmount            float64  `json:"outstanding_amount"`
	EnterpriseValueIncludingCash float64  `json:"enterprise_value_including_cash"`
	VehicleValueAtOrigination    float64  `json:"vehicle_value_at_origination"`
	TotalEquityPlusDebt          float64  `json:"total_equity_plus_debt"`
	CommittedAmount              float64  `json:"committed_amount"`
	DrawdownAmount               *float64 `json:"drawdown_amount,omitempty"`
	TotalProjectCost             float64  `json:"total_project_cost"`
	DataQualityLevel             int      `json:"data_quality_level" binding:"required"`
}

func (r *attributionRequest) toInput() (attribution.Input, error) {
	switch attribution.Standard(r.Standard) {
	case attribution.StandardA:
		return attribution.StandardAInput{
			OutstandingAmount:            r.OutstandingAmount,
			EnterpriseValueIncludingCash: r.EnterpriseValueIncludingCash,
			DataQualityLevel:             r.DataQualityLevel,
		}, nil
	case attribution.StandardB:
		return attribution.StandardBInput{
			OutstandingAmount:         r.OutstandingAmount,
			MotorVehicle:              r.AssetClass == string(portfolio.AssetClassMotorVehicles),
			VehicleValueAtOrigination: r.VehicleValueAtOrigination,
			TotalEquityPlusDebt:       r.TotalEquityPlusDebt,
			DataQualityLevel:          r.DataQualityLevel,
		}, nil
	case attribution.StandardC:
		return attribution.StandardCInput{
			CommittedAmount:  r.CommittedAmount,
			DrawdownAmount:   r.DrawdownAmount,
			TotalProjectCost: r.TotalProjectCost,
			DataQualityLevel: r.DataQualityLevel,
		}, nil
	default:
		return nil, &attribution.ValidationError{Field: "standard", Message: "must be A, B or C"}
	}
}

// CalculateAttribution computes an attribution factor from ad-hoc inputs
func (h *Handler) CalculateAttribution(c *gin.Context) {
	var req attributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.service.ComputeAttribution(input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// eventRequest is the wire form of a lifecycle event
type eventRequest struct {
	EventType   string   `json:"event_type" binding:"required"`
	EventDate   string   `json:"event_date" binding:"required"` // YYYY-MM-DD
	EventAmount *float64 `json:"event_amount,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

// ProcessLifecycleEvent records and applies one lifecycle event
func (h *Handler) ProcessLifecycleEvent(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventDate, err := time.Parse("2006-01-02", req.EventDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_date must be YYYY-MM-DD"})
		return
	}

	result, err := h.service.ProcessLifecycleEvent(c.Request.Context(), loanID, lifecycle.EventRequest{
		Type:   portfolio.EventType(req.EventType),
		Date:   eventDate,
		Amount: req.EventAmount,
		Notes:  req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateLoanBalance recalculates one loan as of now
func (h *Handler) UpdateLoanBalance(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	result, err := h.service.UpdateLoanBalance(c.Request.Context(), loanID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetLoan returns one loan projection
func (h *Handler) GetLoan(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(c.Request.Context(), loanID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// GetAttributionHistory returns the snapshot ledger for a loan. An optional
// from/to window (YYYY-MM-DD) narrows it to a reporting period.
func (h *Handler) GetAttributionHistory(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr != "" && toStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		records, err := h.service.GetAttributionTrend(c.Request.Context(), loanID, from, to)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
		return
	}

	records, err := h.service.GetAttributionHistory(c.Request.Context(), loanID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetLifecycleEvents returns the event ledger for a loan
func (h *Handler) GetLifecycleEvents(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	events, err := h.service.GetLifecycleEvents(c.Request.Context(), loanID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// BatchRecalculate runs the scheduled amortization pass over the portfolio.
// An optional as_of query parameter (YYYY-MM-DD) backdates the run.
func (h *Handler) BatchRecalculate(c *gin.Context) {
	var asOf *time.Time
	if asOfStr := c.Query("as_of"); asOfStr != "" {
		parsed, err := time.Parse("2006-01-02", asOfStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be YYYY-MM-DD"})
			return
		}
		asOf = &parsed
	}

	report, err := h.service.BatchUpdatePortfolioBalances(c.Request.Context(), asOf)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// PortfolioSummary returns the dashboard aggregate
func (h *Handler) PortfolioSummary(c *gin.Context) {
	summary, err := h.service.PortfolioSummary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) loanID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps engine errors onto HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	var validationErr *attribution.ValidationError
	var eventErr *lifecycle.InvalidEventError
	var orderErr *lifecycle.OutOfOrderEventError
	var notFoundErr *portfolio.NotFoundError
	var storeErr *portfolio.StoreError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &eventErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &orderErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &storeErr):
		h.logger.Error("Store failure", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable, retry later"})
	default:
		h.logger.Error("Unhandled engine error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
