package survival

import "math"

// probEps floors the probability mass credited to a censoring interval, and
// maxLoss is that floor expressed as a negative log likelihood. Contributions
// that overflow, vanish, or cancel numerically are clamped to these rails so
// one degenerate sample cannot poison an aggregate. The magnitudes are an
// engineering choice, not part of the metric definition; see DESIGN.md.
const probEps = 1e-12

var maxLoss = -math.Log(probEps)

// AFTLoss returns the negative log likelihood of one sample under p, given
// the label bounds (raw event times) and a predicted log time.
//
// The censoring regime selects the likelihood term:
//
//	uncensored  -log f(z) + log(scale * t)   exact density, with the
//	                                         Jacobian of the log transform
//	right       -log S(z_lower)              P(T > lower)
//	left        -log F(z_upper)              P(T <= upper)
//	interval    -log(F(z_upper) - F(z_lower))
//
// where z = (log t - prediction) / scale. Everything is computed in log
// space, so censored samples far from the prediction yield large finite
// losses instead of -log(0).
func AFTLoss(p AFTParams, lower, upper, pred float64) (float64, error) {
	regime, err := ClassifyCensoring(lower, upper)
	if err != nil {
		return 0, err
	}
	d := p.Distribution
	var raw float64
	switch regime {
	case Uncensored:
		z := (math.Log(lower) - pred) / p.Scale
		raw = -d.LogPDF(z) + math.Log(p.Scale*lower)
	case RightCensored:
		z := (math.Log(lower) - pred) / p.Scale
		raw = -d.LogSurvival(z)
	case LeftCensored:
		z := (math.Log(upper) - pred) / p.Scale
		raw = -d.LogCDF(z)
	case IntervalCensored:
		zlo := (math.Log(lower) - pred) / p.Scale
		zhi := (math.Log(upper) - pred) / p.Scale
		raw = -logCDFDiff(d, zlo, zhi)
	}
	return clampLoss(regime, raw), nil
}

// logCDFDiff computes log(F(zhi) - F(zlo)) from the two log CDFs. The
// subtraction happens in log space: with a = log F(zhi) >= b = log F(zlo),
//
//	log(e^a - e^b) = a + log(1 - e^-(a-b))
//
// which keeps precision when both probabilities are tiny, and degrades to
// -Inf only when the interval holds no representable mass.
func logCDFDiff(d Distribution, zlo, zhi float64) float64 {
	a := d.LogCDF(zhi)
	b := d.LogCDF(zlo)
	if math.IsInf(b, -1) {
		// F(zlo) == 0: the interval mass is all of F(zhi).
		return a
	}
	diff := a - b
	if diff <= 0 {
		return math.Inf(-1)
	}
	return a + log1mexp(diff)
}

// clampLoss keeps a single contribution finite. Censored losses cap at
// maxLoss, the -log of the probability floor. Uncensored losses are density
// based and may legitimately exceed it, or go negative when the density tops
// one, so only non-finite values are replaced there.
func clampLoss(regime Censoring, raw float64) float64 {
	if math.IsNaN(raw) {
		return maxLoss
	}
	if regime != Uncensored && raw > maxLoss {
		return maxLoss
	}
	if math.IsInf(raw, 1) {
		return maxLoss
	}
	if math.IsInf(raw, -1) {
		return 0
	}
	return raw
}
