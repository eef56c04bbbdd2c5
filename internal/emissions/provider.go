package emissions

import (
	"context"
	"fmt"

	"greenlens/loan-portal/loan-portal-backend/internal/portfolio"
)

// Factor is one emission factor row for a vehicle type / fuel type pairing
type Factor struct {
	VehicleType        string  `json:"vehicle_type"`
	FuelType           string  `json:"fuel_type"`
	KgCO2ePerMile      float64 `json:"emission_factor_kg_co2e_per_mile"`
	BaseEfficiencyMPG  float64 `json:"efficiency_mpg"`
	EstimatedMileage   float64 `json:"estimated_annual_mileage"`
}

// FactorTableProvider estimates total annual asset emissions from vehicle
// type and fuel type averages (PCAF option 2b inputs). Loans outside the
// motor-vehicle asset class fall back to the annual emissions recorded at
// onboarding.
type FactorTableProvider struct {
	factors map[string]map[string]float64 // vehicle type -> fuel type -> kgCO2e/mile
}

// estimatedAnnualMileage by vehicle type, statistical averages
var estimatedAnnualMileage = map[string]float64{
	"passenger_car":      12000,
	"light_truck":        14000,
	"suv":                13000,
	"motorcycle":         4000,
	"commercial_vehicle": 25000,
}

// baseEfficiencyMPG by vehicle type and fuel type
var baseEfficiencyMPG = map[string]map[string]float64{
	"passenger_car":      {"gasoline": 25, "diesel": 30, "electric": 120, "hybrid": 45, "plug_in_hybrid": 55, "natural_gas": 22},
	"light_truck":        {"gasoline": 20, "diesel": 24, "electric": 90, "hybrid": 35, "plug_in_hybrid": 45, "natural_gas": 18},
	"suv":                {"gasoline": 18, "diesel": 22, "electric": 85, "hybrid": 32, "plug_in_hybrid": 42, "natural_gas": 16},
	"motorcycle":         {"gasoline": 45, "diesel": 50, "electric": 150, "hybrid": 50, "plug_in_hybrid": 55, "natural_gas": 40},
	"commercial_vehicle": {"gasoline": 12, "diesel": 15, "electric": 60, "hybrid": 18, "plug_in_hybrid": 25, "natural_gas": 10},
}

// kgCO2ePerMile by fuel type, tailpipe plus upstream electricity for EVs
var kgCO2ePerMile = map[string]float64{
	"gasoline":       0.404,
	"diesel":         0.445,
	"electric":       0.100,
	"hybrid":         0.230,
	"plug_in_hybrid": 0.175,
	"natural_gas":    0.350,
}

const (
	defaultVehicleType = "passenger_car"
	defaultFuelType    = "gasoline"
)

// NewFactorTableProvider creates a provider backed by the built-in tables
func NewFactorTableProvider() *FactorTableProvider {
	return &FactorTableProvider{}
}

// TotalEmissions returns the annual tCO2e of the full asset, independent of
// attribution.
func (p *FactorTableProvider) TotalEmissions(ctx context.Context, loan *portfolio.Loan) (float64, error) {
	if loan.AssetClass != portfolio.AssetClassMotorVehicles {
		return loan.AnnualEmissions, nil
	}

	vehicleType := defaultVehicleType
	if loan.VehicleType != nil && *loan.VehicleType != "" {
		vehicleType = *loan.VehicleType
	}
	fuelType := defaultFuelType
	if loan.FuelType != nil && *loan.FuelType != "" {
		fuelType = *loan.FuelType
	}

	factor, ok := kgCO2ePerMile[fuelType]
	if !ok {
		return 0, fmt.Errorf("no emission factor for fuel type %q", fuelType)
	}
	mileage, ok := estimatedAnnualMileage[vehicleType]
	if !ok {
		return 0, fmt.Errorf("no mileage estimate for vehicle type %q", vehicleType)
	}

	// kg to tonnes
	return mileage * factor / 1000, nil
}

// LookupFactor returns the full factor row used for a vehicle type / fuel
// type pairing, for disclosure in reports.
func (p *FactorTableProvider) LookupFactor(vehicleType, fuelType string) (*Factor, error) {
	perMile, ok := kgCO2ePerMile[fuelType]
	if !ok {
		return nil, fmt.Errorf("no emission factor for fuel type %q", fuelType)
	}
	efficiencies, ok := baseEfficiencyMPG[vehicleType]
	if !ok {
		return nil, fmt.Errorf("no efficiency data for vehicle type %q", vehicleType)
	}
	return &Factor{
		VehicleType:       vehicleType,
		FuelType:          fuelType,
		KgCO2ePerMile:     perMile,
		BaseEfficiencyMPG: efficiencies[fuelType],
		EstimatedMileage:  estimatedAnnualMileage[vehicleType],
	}, nil
}

// AssessDataQuality maps the available vehicle data onto the PCAF 1-5 data
// quality scale (1 = best). Vehicle type averages alone score 4; knowing the
// specific vehicle improves the score.
func AssessDataQuality(loan *portfolio.Loan) int {
	if loan.AssetClass != portfolio.AssetClassMotorVehicles {
		return loan.DataQualityScore
	}
	score := 5
	if loan.FuelType != nil && *loan.FuelType != "" {
		score--
	}
	if loan.VehicleType != nil && *loan.VehicleType != "" {
		score--
	}
	if score < 1 {
		score = 1
	}
	return score
}
