package survival

import "errors"

// Error classes for the two failure surfaces of a metric. Configuration
// errors are raised when options are applied; input errors are raised on
// each Evaluate call that sees invalid labels, weights, or predictions.
// Callers branch with errors.Is.
var (
	ErrConfiguration = errors.New("survival: invalid configuration")
	ErrInput         = errors.New("survival: invalid input")
)
