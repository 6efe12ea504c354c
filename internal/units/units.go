// Package units provides shared constants and validation for display units.
package units

import "fmt"

// Length unit constants. Pose positions are stored in metres; jitter sigmas
// are small enough that millimetres are the usual display unit.
const (
	Metres      = "m"
	Centimetres = "cm"
	Millimetres = "mm"
)

// Angle unit constants. Rotations are stored in degrees.
const (
	Degrees = "deg"
	Radians = "rad"
)

// ValidLengthUnits contains all valid length unit values
var ValidLengthUnits = []string{Metres, Centimetres, Millimetres}

// ValidAngleUnits contains all valid angle unit values
var ValidAngleUnits = []string{Degrees, Radians}

// IsValidLength checks if the given unit is in the list of valid length units
func IsValidLength(unit string) bool {
	for _, validUnit := range ValidLengthUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// IsValidAngle checks if the given unit is in the list of valid angle units
func IsValidAngle(unit string) bool {
	for _, validUnit := range ValidAngleUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidLengthUnitsString returns a comma-separated string of valid length
// units for error messages
func GetValidLengthUnitsString() string {
	return "m, cm, mm"
}

// ConvertLength converts a length from metres to the target units.
// The database and the stats tracker store positions in metres.
func ConvertLength(metres float64, targetUnits string) float64 {
	switch targetUnits {
	case Metres:
		return metres
	case Centimetres:
		return metres * 100
	case Millimetres:
		return metres * 1000
	default:
		return metres
	}
}

// ConvertAngle converts an angle from degrees to the target units.
func ConvertAngle(degrees float64, targetUnits string) float64 {
	switch targetUnits {
	case Degrees:
		return degrees
	case Radians:
		return degrees * 0.017453292519943295
	default:
		return degrees
	}
}

// FormatLength renders a metre value in the target units with a unit suffix,
// e.g. FormatLength(0.0012, Millimetres) == "1.200mm".
func FormatLength(metres float64, targetUnits string) string {
	if !IsValidLength(targetUnits) {
		targetUnits = Metres
	}
	return fmt.Sprintf("%.3f%s", ConvertLength(metres, targetUnits), targetUnits)
}
