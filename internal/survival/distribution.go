// Package survival evaluates predictions for censored time-to-event data.
//
// The package implements accelerated failure time (AFT) likelihood scoring
// and interval regression accuracy over datasets whose labels are bound
// pairs (lower, upper) rather than point values. All probability work is
// done in log space so that heavily censored samples far from a prediction
// still produce finite, meaningful scores.
package survival

import (
	"fmt"
	"math"
)

// Distribution selects the parametric family used to model the standardized
// residual z = (log t - prediction) / scale.
type Distribution int

const (
	// Normal models symmetric residuals around the predicted log time.
	Normal Distribution = iota
	// Logistic matches Normal's symmetry but with heavier tails, tolerating
	// outlier event times.
	Logistic
	// Extreme is the minimum extreme value (Gumbel) family. Its residual
	// model corresponds to a Weibull distribution of the raw event time.
	Extreme
)

// distributionNames maps wire names to families. These names appear in
// configuration options and saved model files, so they never change.
var distributionNames = map[string]Distribution{
	"normal":   Normal,
	"logistic": Logistic,
	"extreme":  Extreme,
}

// ParseDistribution resolves a configuration name to a family.
func ParseDistribution(name string) (Distribution, error) {
	d, ok := distributionNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown aft_loss_distribution %q (valid: normal, logistic, extreme)", ErrConfiguration, name)
	}
	return d, nil
}

func (d Distribution) String() string {
	switch d {
	case Normal:
		return "normal"
	case Logistic:
		return "logistic"
	case Extreme:
		return "extreme"
	default:
		return fmt.Sprintf("distribution(%d)", int(d))
	}
}

const (
	logSqrt2Pi = 0.9189385332046727 // log(sqrt(2*pi))
	invSqrt2   = 1 / math.Sqrt2
)

// LogPDF returns the log density of the standardized residual z.
func (d Distribution) LogPDF(z float64) float64 {
	switch d {
	case Normal:
		return -0.5*z*z - logSqrt2Pi
	case Logistic:
		// log[e^z / (1+e^z)^2], evaluated on whichever side keeps the
		// exponent non-positive so neither tail overflows.
		if z > 0 {
			return -z - 2*math.Log1p(math.Exp(-z))
		}
		return z - 2*math.Log1p(math.Exp(z))
	case Extreme:
		if math.IsInf(z, 1) {
			return math.Inf(-1)
		}
		return z - math.Exp(z)
	default:
		return math.NaN()
	}
}

// LogCDF returns log P(Z <= z) for the standardized residual. The value is
// finite and accurate deep into the lower tail, where the probability itself
// would underflow to zero.
func (d Distribution) LogCDF(z float64) float64 {
	switch d {
	case Normal:
		return normalLogCDF(z)
	case Logistic:
		// log[1 / (1+e^-z)]
		return -softplus(-z)
	case Extreme:
		// F(z) = 1 - exp(-e^z). Once e^z underflows, F(z) ~ e^z and the
		// log CDF is z itself to double precision.
		ez := math.Exp(z)
		if ez == 0 {
			return z
		}
		return log1mexp(ez)
	default:
		return math.NaN()
	}
}

// LogSurvival returns log P(Z > z), accurate deep into the upper tail.
func (d Distribution) LogSurvival(z float64) float64 {
	switch d {
	case Normal:
		return normalLogCDF(-z)
	case Logistic:
		return -softplus(z)
	case Extreme:
		return -math.Exp(z)
	default:
		return math.NaN()
	}
}

// normalLogCDF computes log Phi(z) for the standard normal without
// underflow in either tail.
//
// Three regimes:
//   - z >= 0: Phi(z) = 1 - Phi(-z) where Phi(-z) = erfc(z/sqrt2)/2 is
//     well scaled, so log1p keeps full precision as Phi(z) -> 1.
//   - moderate negative z: erfc stays a normal float down to about
//     z = -37.5, so log(erfc(-z/sqrt2)/2) is exact.
//   - deep lower tail: erfc underflows, switch to the asymptotic series
//     log Phi(z) ~ -z^2/2 - log(-z) - log sqrt(2 pi) + log1p(sum).
func normalLogCDF(z float64) float64 {
	switch {
	case z >= 0:
		tail := 0.5 * math.Erfc(z*invSqrt2)
		return math.Log1p(-tail)
	case z >= -37:
		return math.Log(0.5 * math.Erfc(-z*invSqrt2))
	default:
		zz := z * z
		series := -1/zz + 3/(zz*zz) - 15/(zz*zz*zz)
		return -0.5*zz - math.Log(-z) - logSqrt2Pi + math.Log1p(series)
	}
}

// softplus computes log(1 + e^x) without overflow for large positive x.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// log1mexp computes log(1 - e^-a) for a >= 0. Following Maechler, the
// expm1 form is accurate for small a and the log1p form for large a, with
// the crossover at ln 2.
func log1mexp(a float64) float64 {
	if a < math.Ln2 {
		return math.Log(-math.Expm1(-a))
	}
	return math.Log1p(-math.Exp(-a))
}
