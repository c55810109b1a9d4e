package survival

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/survival.report/internal/comm"
)

// Dataset is the label surface a metric evaluates against. The concrete
// dataset type lives elsewhere; metrics only need the bounds, the optional
// weights, and whether this worker's view is a column partition.
type Dataset interface {
	// NumRows reports how many rows this worker sees locally.
	NumRows() int
	// LabelLower and LabelUpper return the bound slices, one entry per
	// local row. Raw event times, not logs.
	LabelLower() []float64
	LabelUpper() []float64
	// Weights returns per-row weights, or nil for uniform weighting.
	Weights() []float64
	// ColumnSplit reports whether the worker holds every row with only
	// feature columns partitioned. Column-split workers already own the
	// full label set, so cross-worker reduction of label sums is skipped.
	ColumnSplit() bool
}

// ValidateLabels checks the label invariants shared by every survival
// metric: bounds are pairwise ordered, non-negative, never NaN, and never
// both infinite; weights are non-negative and never NaN. The slices must be
// equal length (weights may be nil).
func ValidateLabels(lower, upper, weights []float64) error {
	n := len(lower)
	if len(upper) != n {
		return fmt.Errorf("%w: %d lower bounds but %d upper bounds", ErrInput, n, len(upper))
	}
	if weights != nil && len(weights) != n {
		return fmt.Errorf("%w: %d labels but %d weights", ErrInput, n, len(weights))
	}
	for i := 0; i < n; i++ {
		lo, hi := lower[i], upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) {
			return fmt.Errorf("%w: label %d has NaN bound (%v, %v)", ErrInput, i, lo, hi)
		}
		if lo < 0 {
			return fmt.Errorf("%w: label %d has negative lower bound %v", ErrInput, i, lo)
		}
		if hi < lo {
			return fmt.Errorf("%w: label %d bounds are inverted (%v, %v)", ErrInput, i, lo, hi)
		}
		if math.IsInf(lo, 1) {
			return fmt.Errorf("%w: label %d has infinite lower bound", ErrInput, i)
		}
	}
	for i, w := range weights {
		if math.IsNaN(w) || w < 0 {
			return fmt.Errorf("%w: weight %d is %v, want >= 0", ErrInput, i, w)
		}
	}
	return nil
}

// evaluateWeighted is the shared two-phase reduction behind every metric in
// this package.
//
// Phase one walks the local rows once, in row order, accumulating the
// weighted contribution sum and the weight sum sequentially. No
// parallel-friendly reordering: bitwise reproducibility across runs matters
// more here than single-pass speed, and the accumulation order is part of
// that contract.
//
// Phase two folds the pair across workers with a single collective sum,
// then divides. Column-split workers skip the collective: each already
// holds every row, and reducing would multiply the sums by the worker
// count. Workers with zero local rows (a short shard) still join the
// collective with zero sums, keeping the call count matched on every rank.
func evaluateWeighted(ctx context.Context, preds []float64, ds Dataset, rc comm.AllReducer, contrib func(lower, upper, pred float64) (float64, error)) (float64, error) {
	if ds == nil {
		return 0, fmt.Errorf("%w: nil dataset", ErrInput)
	}
	if rc == nil {
		rc = comm.Single{}
	}
	lower, upper := ds.LabelLower(), ds.LabelUpper()
	weights := ds.Weights()
	n := len(lower)
	if n == 0 && rc.Size() <= 1 {
		return 0, fmt.Errorf("%w: dataset has no labels", ErrInput)
	}
	if len(preds) != n {
		return 0, fmt.Errorf("%w: %d predictions for %d rows", ErrInput, len(preds), n)
	}
	if err := ValidateLabels(lower, upper, weights); err != nil {
		return 0, err
	}

	var weightedSum, weightSum float64
	for i := 0; i < n; i++ {
		c, err := contrib(lower[i], upper[i], preds[i])
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		weightedSum += w * c
		weightSum += w
	}

	if !ds.ColumnSplit() {
		sums, err := rc.AllReduceSum(ctx, []float64{weightedSum, weightSum})
		if err != nil {
			return 0, fmt.Errorf("reduce metric sums: %w", err)
		}
		weightedSum, weightSum = sums[0], sums[1]
	}
	if weightSum == 0 {
		return 0, fmt.Errorf("%w: total weight is zero", ErrInput)
	}
	return weightedSum / weightSum, nil
}
