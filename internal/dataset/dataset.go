// Package dataset loads, validates, shards, and summarizes censored
// time-to-event datasets.
//
// A dataset row is a pair of event time bounds (lower, upper) in days plus
// an optional weight and optional feature covariates. The bound encoding
// follows the AFT labelling convention: equal bounds mean an exact
// observation, an infinite upper bound means right censoring, a zero lower
// bound means left censoring, and anything else is interval censoring.
package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/survival.report/internal/survival"
)

// SplitMode records how a dataset view is partitioned across workers.
type SplitMode int

const (
	// SplitNone is an unpartitioned dataset: one worker holds everything.
	SplitNone SplitMode = iota
	// SplitRow gives each worker a contiguous range of rows.
	SplitRow
	// SplitCol gives each worker every row but only a slice of feature
	// columns. Labels are replicated, so label reductions must not sum
	// across column-split workers.
	SplitCol
)

func (m SplitMode) String() string {
	switch m {
	case SplitNone:
		return "none"
	case SplitRow:
		return "row"
	case SplitCol:
		return "col"
	default:
		return fmt.Sprintf("split(%d)", int(m))
	}
}

// ParseSplitMode resolves the CLI spelling of a split mode.
func ParseSplitMode(s string) (SplitMode, error) {
	switch s {
	case "", "none":
		return SplitNone, nil
	case "row":
		return SplitRow, nil
	case "col", "column":
		return SplitCol, nil
	default:
		return 0, fmt.Errorf("unknown split mode %q (valid: none, row, col)", s)
	}
}

// Dataset is an in-memory censored dataset. Bounds are raw event times in
// days, not logs. A nil Weight slice means uniform weighting.
type Dataset struct {
	Name string

	Lower  []float64
	Upper  []float64
	Weight []float64

	// Features holds optional covariates, one row per label. The metrics
	// never read them; they exist so a column partition has something to
	// partition and a report has something to plot against.
	Features *mat.Dense

	Split SplitMode
}

var _ survival.Dataset = (*Dataset)(nil)

// NumRows implements survival.Dataset.
func (d *Dataset) NumRows() int { return len(d.Lower) }

// LabelLower implements survival.Dataset.
func (d *Dataset) LabelLower() []float64 { return d.Lower }

// LabelUpper implements survival.Dataset.
func (d *Dataset) LabelUpper() []float64 { return d.Upper }

// Weights implements survival.Dataset.
func (d *Dataset) Weights() []float64 { return d.Weight }

// ColumnSplit implements survival.Dataset.
func (d *Dataset) ColumnSplit() bool { return d.Split == SplitCol }

// Validate checks the label invariants plus feature shape. Loaders call
// this before handing a dataset out, so most callers see errors here rather
// than at evaluation time.
func (d *Dataset) Validate() error {
	if len(d.Lower) == 0 {
		return fmt.Errorf("dataset %q has no labels", d.Name)
	}
	if err := survival.ValidateLabels(d.Lower, d.Upper, d.Weight); err != nil {
		return fmt.Errorf("dataset %q: %w", d.Name, err)
	}
	if d.Features != nil {
		r, _ := d.Features.Dims()
		if r != len(d.Lower) {
			return fmt.Errorf("dataset %q: %d feature rows for %d labels", d.Name, r, len(d.Lower))
		}
	}
	return nil
}

// RowShard returns the contiguous row range owned by one rank of a
// row-partitioned deployment: rows [rank*n/size, (rank+1)*n/size). The
// shards of all ranks are disjoint, ordered, and cover the dataset, which
// is what keeps distributed sums equal to the sequential ones up to
// floating point reassociation. Slices are shared with the parent, not
// copied.
func (d *Dataset) RowShard(rank, size int) (*Dataset, error) {
	if size <= 0 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("row shard rank %d of %d out of range", rank, size)
	}
	n := len(d.Lower)
	start, end := rank*n/size, (rank+1)*n/size
	shard := &Dataset{
		Name:  fmt.Sprintf("%s[rows %d:%d]", d.Name, start, end),
		Lower: d.Lower[start:end],
		Upper: d.Upper[start:end],
		Split: SplitRow,
	}
	if d.Weight != nil {
		shard.Weight = d.Weight[start:end]
	}
	if d.Features != nil && end > start {
		_, c := d.Features.Dims()
		shard.Features = d.Features.Slice(start, end, 0, c).(*mat.Dense)
	}
	return shard, nil
}

// ColShard returns a column partition: every row, features restricted to
// columns [rank*c/size, (rank+1)*c/size). Labels and weights are shared
// with the parent, which is exactly why evaluation over a column shard
// skips the cross-worker reduction.
func (d *Dataset) ColShard(rank, size int) (*Dataset, error) {
	if size <= 0 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("column shard rank %d of %d out of range", rank, size)
	}
	shard := &Dataset{
		Name:   fmt.Sprintf("%s[cols %d/%d]", d.Name, rank, size),
		Lower:  d.Lower,
		Upper:  d.Upper,
		Weight: d.Weight,
		Split:  SplitCol,
	}
	if d.Features != nil {
		r, c := d.Features.Dims()
		start, end := rank*c/size, (rank+1)*c/size
		if end > start {
			shard.Features = d.Features.Slice(0, r, start, end).(*mat.Dense)
		}
	}
	return shard, nil
}
