package survival

import (
	"fmt"
	"math"
)

// Censoring identifies how much of a sample's event time was observed.
type Censoring int

const (
	// Uncensored means the event time is known exactly: lower == upper.
	Uncensored Censoring = iota
	// RightCensored means the event had not happened by lower; only
	// "time > lower" is known.
	RightCensored
	// LeftCensored means the event happened at some unknown time before
	// upper; only "time <= upper" is known.
	LeftCensored
	// IntervalCensored means the event happened inside (lower, upper).
	IntervalCensored
)

func (c Censoring) String() string {
	switch c {
	case Uncensored:
		return "uncensored"
	case RightCensored:
		return "right"
	case LeftCensored:
		return "left"
	case IntervalCensored:
		return "interval"
	default:
		return fmt.Sprintf("censoring(%d)", int(c))
	}
}

// ClassifyCensoring determines the censoring regime of one label from its
// bound pair. Classification depends only on the bounds; predictions and the
// configured distribution never change a sample's regime.
//
// The rules, applied in order:
//
//	lower == upper (finite)       -> Uncensored
//	upper == +Inf and lower > 0   -> RightCensored
//	lower == 0 and upper finite   -> LeftCensored
//	anything else                 -> IntervalCensored
//
// An unbounded pair (0, +Inf) lands in IntervalCensored: the label carries
// no information and contributes a loss of zero rather than an error. A pair
// with both bounds infinite describes no observation at all and is rejected.
func ClassifyCensoring(lower, upper float64) (Censoring, error) {
	if math.IsInf(lower, 1) {
		return 0, fmt.Errorf("%w: label bounds (%v, %v) have an infinite lower bound", ErrInput, lower, upper)
	}
	switch {
	case lower == upper:
		return Uncensored, nil
	case math.IsInf(upper, 1) && lower > 0:
		return RightCensored, nil
	case lower == 0 && !math.IsInf(upper, 1):
		return LeftCensored, nil
	default:
		return IntervalCensored, nil
	}
}
