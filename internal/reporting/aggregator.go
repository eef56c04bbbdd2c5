package reporting

import (
	"context"
	"math"

	"go.uber.org/zap"

	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
)

// Aggregator builds portfolio-level summaries from loan projections. It only
// ever reads cached attribution values; recomputation belongs to the
// lifecycle processor and scheduler.
type Aggregator struct {
	loans  portfolio.LoanStore
	logger *zap.Logger
}

// NewAggregator creates a portfolio aggregator
func NewAggregator(loans portfolio.LoanStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{loans: loans, logger: logger}
}

// ClassBreakdown aggregates one asset class
type ClassBreakdown struct {
	Emissions         float64 `json:"emissions_tco2e"`
	AttributionFactor float64 `json:"average_attribution_factor"`
	Count             int     `json:"count"`
}

// StandardBreakdown aggregates one attribution standard
type StandardBreakdown struct {
	Emissions float64 `json:"emissions_tco2e"`
	Count     int     `json:"count"`
}

// PortfolioSummary is the dashboard-facing aggregate over active loans
type PortfolioSummary struct {
	TotalLoans               int                                                  `json:"total_loans"`
	TotalOutstandingBalance  float64                                              `json:"total_outstanding_balance"`
	TotalFinancedEmissions   float64                                              `json:"total_financed_emissions_tco2e"`
	WeightedDataQualityScore float64                                              `json:"weighted_data_quality_score"`
	ByAssetClass             map[portfolio.AssetClass]*ClassBreakdown             `json:"asset_class_breakdown"`
	ByFuelType               map[string]float64                                   `json:"emissions_by_fuel_type"`
	ByStandard               map[portfolio.AttributionStandard]*StandardBreakdown `json:"standards_breakdown"`
	QualityDistribution      map[int]int                                          `json:"quality_distribution"`
}

// Summarize aggregates the active portfolio. The weighted data quality score
// is balance-weighted per PCAF reporting convention.
func (a *Aggregator) Summarize(ctx context.Context) (*PortfolioSummary, error) {
	loans, err := a.loans.ListActiveLoans(ctx)
	if err != nil {
		return nil, err
	}

	summary := &PortfolioSummary{
		TotalLoans:          len(loans),
		ByAssetClass:        make(map[portfolio.AssetClass]*ClassBreakdown),
		ByFuelType:          make(map[string]float64),
		ByStandard:          make(map[portfolio.AttributionStandard]*StandardBreakdown),
		QualityDistribution: make(map[int]int),
	}

	var weightedQuality float64
	for i := range loans {
		loan := &loans[i]

		summary.TotalOutstandingBalance += loan.OutstandingBalance
		summary.TotalFinancedEmissions += loan.FinancedEmissions
		weightedQuality += float64(loan.DataQualityScore) * loan.OutstandingBalance
		summary.QualityDistribution[loan.DataQualityScore]++

		class, ok := summary.ByAssetClass[loan.AssetClass]
		if !ok {
			class = &ClassBreakdown{}
			summary.ByAssetClass[loan.AssetClass] = class
		}
		class.Emissions += loan.FinancedEmissions
		class.AttributionFactor += loan.AttributionFactor
		class.Count++

		std, ok := summary.ByStandard[loan.Standard]
		if !ok {
			std = &StandardBreakdown{}
			summary.ByStandard[loan.Standard] = std
		}
		std.Emissions += loan.FinancedEmissions
		std.Count++

		if loan.FuelType != nil && *loan.FuelType != "" {
			summary.ByFuelType[*loan.FuelType] += loan.FinancedEmissions
		}
	}

	if summary.TotalOutstandingBalance > 0 {
		summary.WeightedDataQualityScore = round2(weightedQuality / summary.TotalOutstandingBalance)
	}
	for _, class := range summary.ByAssetClass {
		class.AttributionFactor = round2(class.AttributionFactor / float64(class.Count))
	}

	a.logger.Debug("Portfolio summary computed",
		zap.Int("loans", summary.TotalLoans),
		zap.Float64("total_financed_emissions", summary.TotalFinancedEmissions))

	return summary, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
