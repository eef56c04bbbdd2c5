package attribution

import "fmt"

// ValidationError indicates bad or missing calculator inputs. It is never
// retried; the caller surfaces it immediately.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid attribution input: %s: %s", e.Field, e.Message)
}

func validate(input Input) error {
	if level := input.DataQuality(); level < 1 || level > 5 {
		return &ValidationError{Field: "data_quality_level", Message: "must be between 1 and 5"}
	}

	switch in := input.(type) {
	case StandardAInput:
		return validateStandardA(in)
	case StandardBInput:
		return validateStandardB(in)
	case StandardCInput:
		return validateStandardC(in)
	default:
		return &ValidationError{Field: "standard", Message: "unsupported attribution standard"}
	}
}

func validateStandardA(in StandardAInput) error {
	if in.OutstandingAmount < 0 {
		return &ValidationError{Field: "outstanding_amount", Message: "must not be negative"}
	}
	if in.EnterpriseValueIncludingCash <= 0 {
		return &ValidationError{Field: "enterprise_value_including_cash", Message: "must be greater than 0"}
	}
	return nil
}

func validateStandardB(in StandardBInput) error {
	if in.OutstandingAmount < 0 {
		return &ValidationError{Field: "outstanding_amount", Message: "must not be negative"}
	}
	if in.MotorVehicle {
		if in.VehicleValueAtOrigination <= 0 {
			return &ValidationError{Field: "vehicle_value_at_origination", Message: "must be greater than 0"}
		}
		return nil
	}
	if in.TotalEquityPlusDebt <= 0 {
		return &ValidationError{Field: "total_equity_plus_debt", Message: "must be greater than 0"}
	}
	return nil
}

func validateStandardC(in StandardCInput) error {
	if in.CommittedAmount <= 0 {
		return &ValidationError{Field: "committed_amount", Message: "must be greater than 0"}
	}
	if in.TotalProjectCost <= 0 {
		return &ValidationError{Field: "total_project_cost", Message: "must be greater than 0"}
	}
	if in.DrawdownAmount != nil {
		if *in.DrawdownAmount < 0 {
			return &ValidationError{Field: "drawdown_amount", Message: "must not be negative"}
		}
		if *in.DrawdownAmount > in.CommittedAmount {
			return &ValidationError{Field: "drawdown_amount", Message: "must not exceed committed amount"}
		}
	}
	return nil
}
