package units

import (
	"math"
	"testing"
)

func TestToDays(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		units    string
		expected float64
	}{
		{"48 hours to days", 48.0, Hours, 2.0},
		{"10 days to days", 10.0, Days, 10.0},
		{"2 weeks to days", 2.0, Weeks, 14.0},
		{"12 months to days", 12.0, Months, 365.25},
		{"1 year to days", 1.0, Years, 365.25},
		{"unknown units pass through", 10.0, "unknown", 10.0},
		{"zero survives conversion", 0.0, Years, 0.0},
		{"trial follow-up 36 months", 36.0, Months, 1095.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToDays(tt.value, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ToDays(%f, %s) = %f, want %f", tt.value, tt.units, result, tt.expected)
			}
		})
	}
}

func TestToDaysInfiniteBound(t *testing.T) {
	for _, unit := range ValidUnits {
		t.Run(unit, func(t *testing.T) {
			result := ToDays(math.Inf(1), unit)
			if !math.IsInf(result, 1) {
				t.Errorf("ToDays(+Inf, %s) = %f, want +Inf", unit, result)
			}
		})
	}
}

func TestFromDaysRoundTrip(t *testing.T) {
	for _, unit := range ValidUnits {
		t.Run(unit, func(t *testing.T) {
			const days = 120.5
			back := ToDays(FromDays(days, unit), unit)
			if math.Abs(back-days) > 1e-9 {
				t.Errorf("ToDays(FromDays(%f, %s)) = %f, want %f", days, unit, back, days)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid hours", Hours, true},
		{"valid days", Days, true},
		{"valid weeks", Weeks, true},
		{"valid months", Months, true},
		{"valid years", Years, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "DAYS", false},
		{"case sensitive", "Days", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	expected := "hours, days, weeks, months, years"
	result := GetValidUnitsString()
	if result != expected {
		t.Errorf("GetValidUnitsString() = %s, want %s", result, expected)
	}
}
