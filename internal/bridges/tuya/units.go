package tuya

import (
	"fmt"
	"math"
	"strings"
)

// TemperatureUnit is a temperature scale. The empty unit marks a datapoint
// that is not a temperature.
type TemperatureUnit string

// Supported temperature units.
const (
	Fahrenheit TemperatureUnit = "F"
	Celsius    TemperatureUnit = "C"
)

// ParseTemperatureUnit accepts "F", "C" and their long names in any case.
func ParseTemperatureUnit(s string) (TemperatureUnit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "F", "FAHRENHEIT":
		return Fahrenheit, nil
	case "C", "CELSIUS":
		return Celsius, nil
	default:
		return "", fmt.Errorf("%w: unknown temperature unit %q", ErrInvalidTable, s)
	}
}

// Convert returns v, expressed in from, in the unit to.
// Converting to or from the empty unit is the identity.
func Convert(v float64, from, to TemperatureUnit) float64 {
	if from == to || from == "" || to == "" {
		return v
	}
	if from == Celsius {
		return v*9/5 + 32
	}
	return (v - 32) * 5 / 9
}

// round1 rounds to one decimal place, halves away from zero.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
