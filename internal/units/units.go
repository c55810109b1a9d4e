// Package units provides shared constants and validation for event time units
package units

// Unit constants
const (
	Hours  = "hours"
	Days   = "days"
	Weeks  = "weeks"
	Months = "months"
	Years  = "years"
)

// Unit factors relative to the canonical day. Months and years use the
// Gregorian mean lengths so conversions stay calendar-independent.
const (
	daysPerHour  = 1.0 / 24.0
	daysPerWeek  = 7.0
	daysPerMonth = 30.4375
	daysPerYear  = 365.25
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Hours, Days, Weeks, Months, Years}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "hours, days, weeks, months, years"
}

// ToDays converts an event time in the given unit to days.
// Stores and metrics keep event times in days. Infinite bounds pass
// through unchanged, so open-ended censoring intervals survive conversion.
func ToDays(t float64, unit string) float64 {
	switch unit {
	case Hours:
		return t * daysPerHour
	case Days:
		return t
	case Weeks:
		return t * daysPerWeek
	case Months:
		return t * daysPerMonth
	case Years:
		return t * daysPerYear
	default:
		return t
	}
}

// FromDays converts an event time in days to the target unit
func FromDays(days float64, targetUnits string) float64 {
	switch targetUnits {
	case Hours:
		return days / daysPerHour
	case Days:
		return days
	case Weeks:
		return days / daysPerWeek
	case Months:
		return days / daysPerMonth
	case Years:
		return days / daysPerYear
	default:
		return days
	}
}
