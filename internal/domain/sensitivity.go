package domain

import "fmt"

// Sensitivity selects a detector threshold preset.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// ParseSensitivity accepts low, medium or high; empty means medium.
func ParseSensitivity(raw string) (Sensitivity, error) {
	switch Sensitivity(raw) {
	case "":
		return SensitivityMedium, nil
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return Sensitivity(raw), nil
	default:
		return "", &ValidationError{Field: "sensitivity", Message: fmt.Sprintf("unsupported value %q", raw)}
	}
}
