package attribution

import (
	"math"
)

// Standard identifies a PCAF attribution standard
type Standard string

const (
	StandardA Standard = "A" // enterprise-value basis
	StandardB Standard = "B" // outstanding-amount basis
	StandardC Standard = "C" // committed-amount basis
)

// Input is the tagged union of standard-specific calculation inputs.
// Exactly one of StandardAInput, StandardBInput or StandardCInput
// implements it per calculation.
type Input interface {
	Standard() Standard
	DataQuality() int
}

// StandardAInput carries the enterprise-value basis inputs
// (listed equity, corporate bonds, sovereign bonds)
type StandardAInput struct {
	OutstandingAmount            float64
	EnterpriseValueIncludingCash float64
	DataQualityLevel             int
}

func (StandardAInput) Standard() Standard { return StandardA }
func (in StandardAInput) DataQuality() int { return in.DataQualityLevel }

// StandardBInput carries the outstanding-amount basis inputs. For motor
// vehicles the denominator is the vehicle value at origination; for other
// asset classes it is total equity plus debt.
type StandardBInput struct {
	OutstandingAmount         float64
	MotorVehicle              bool
	VehicleValueAtOrigination float64
	TotalEquityPlusDebt       float64
	DataQualityLevel          int
}

func (StandardBInput) Standard() Standard { return StandardB }
func (in StandardBInput) DataQuality() int { return in.DataQualityLevel }

// StandardCInput carries the committed-amount basis inputs (project
// finance). Drawdown amount takes precedence over committed amount when set.
type StandardCInput struct {
	CommittedAmount  float64
	DrawdownAmount   *float64
	TotalProjectCost float64
	DataQualityLevel int
}

func (StandardCInput) Standard() Standard { return StandardC }
func (in StandardCInput) DataQuality() int { return in.DataQualityLevel }

// Result is the outcome of one attribution calculation. BaseFactor is the
// reproducible PCAF attribution factor used for financed emissions;
// FinalFactor carries the disclosed data-quality loading and is for
// display only.
type Result struct {
	Standard              Standard `json:"standard"`
	BaseFactor            float64  `json:"base_factor"`
	DataQualityAdjustment float64  `json:"data_quality_adjustment"`
	FinalFactor           float64  `json:"final_factor"`
	Checks                Checks   `json:"checks"`
	Warnings              []Warning `json:"warnings,omitempty"`
	Recommendations       []string `json:"recommendations,omitempty"`
}

// Checks summarizes the validation outcomes reported with every result
type Checks struct {
	InputValidation  bool `json:"input_validation"`
	RangeValidation  bool `json:"range_validation"`
	ConsistencyCheck bool `json:"consistency_check"`
}

// Warning is a non-fatal finding attached to a result
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	// WarnFactorAboveOne flags attribution above 100% of asset value. The
	// factor is disclosed as-is, never clamped: a loan can exceed the
	// remaining asset value after paydown without revaluation.
	WarnFactorAboveOne = "FACTOR_ABOVE_ONE"
)

// dataQualityAdjustments is the disclosed uncertainty loading per PCAF data
// quality level (1 = best, 5 = worst). The loading never alters BaseFactor.
var dataQualityAdjustments = map[int]float64{
	1: 0.00,
	2: 0.02,
	3: 0.05,
	4: 0.10,
	5: 0.15,
}

// DataQualityAdjustment returns the uncertainty loading for a quality level
func DataQualityAdjustment(level int) float64 {
	if adj, ok := dataQualityAdjustments[level]; ok {
		return adj
	}
	return dataQualityAdjustments[3]
}

// Compute calculates the attribution factor for the given standard-specific
// input. It is a pure function; callers persist the result. A
// *ValidationError is returned when required fields are missing, negative,
// or the denominator is non-positive.
func Compute(input Input) (*Result, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	var baseFactor float64
	var recommendations []string

	switch in := input.(type) {
	case StandardAInput:
		baseFactor = in.OutstandingAmount / in.EnterpriseValueIncludingCash
	case StandardBInput:
		if in.MotorVehicle {
			baseFactor = in.OutstandingAmount / in.VehicleValueAtOrigination
		} else {
			baseFactor = in.OutstandingAmount / in.TotalEquityPlusDebt
		}
	case StandardCInput:
		numerator := in.CommittedAmount
		if in.DrawdownAmount != nil {
			numerator = *in.DrawdownAmount
		}
		baseFactor = numerator / in.TotalProjectCost
	default:
		return nil, &ValidationError{Field: "standard", Message: "unsupported attribution standard"}
	}

	result := &Result{
		Standard:              input.Standard(),
		BaseFactor:            baseFactor,
		DataQualityAdjustment: DataQualityAdjustment(input.DataQuality()),
		Checks: Checks{
			InputValidation:  true,
			RangeValidation:  baseFactor >= 0 && baseFactor <= 1,
			ConsistencyCheck: consistent(input),
		},
	}
	result.FinalFactor = roundFactor(baseFactor * (1 + result.DataQualityAdjustment))

	if !result.Checks.ConsistencyCheck {
		result.Recommendations = append(result.Recommendations,
			"Committed amount exceeds total project cost; confirm the project financing inputs")
	}

	if baseFactor > 1 {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarnFactorAboveOne,
			Message: "attribution factor exceeds 100% of asset value",
		})
		result.Recommendations = append(result.Recommendations,
			"Review asset valuation: outstanding amount exceeds the recorded asset value")
	}
	if input.DataQuality() >= 4 {
		result.Recommendations = append(result.Recommendations,
			"Collect asset-specific data to improve the PCAF data quality score")
	}
	result.Recommendations = append(result.Recommendations, recommendations...)

	return result, nil
}

// consistent reports cross-field coherence that is suspect but not fatal. A
// Standard C commitment above the total project cost is disclosed through
// the check rather than rejected; the drawdown may still be in range.
func consistent(input Input) bool {
	if in, ok := input.(StandardCInput); ok {
		return in.CommittedAmount <= in.TotalProjectCost
	}
	return true
}

// roundFactor rounds display factors to 6 decimal places. BaseFactor is
// deliberately left unrounded so financed emissions stay reproducible from
// raw inputs.
func roundFactor(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
