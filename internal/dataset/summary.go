package dataset

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/survival.report/internal/survival"
)

// Summary describes the shape of a dataset: how the rows censor and where
// the observed times sit. Used for log lines, run records, and reports.
type Summary struct {
	Rows        int     `json:"rows"`
	Uncensored  int     `json:"uncensored"`
	Right       int     `json:"right_censored"`
	Left        int     `json:"left_censored"`
	Interval    int     `json:"interval_censored"`
	TotalWeight float64 `json:"total_weight"`

	// Time statistics over each row's representative time: the exact time
	// for uncensored rows, the last known bound for censored ones, and the
	// interval midpoint. Rows with no finite representative are skipped.
	MinTime    float64 `json:"min_time_days"`
	MedianTime float64 `json:"median_time_days"`
	MaxTime    float64 `json:"max_time_days"`
}

// Summarize validates the dataset and computes its summary.
func Summarize(d *Dataset) (Summary, error) {
	if err := d.Validate(); err != nil {
		return Summary{}, err
	}
	s := Summary{Rows: len(d.Lower)}

	reps := make([]float64, 0, len(d.Lower))
	for i := range d.Lower {
		lo, hi := d.Lower[i], d.Upper[i]
		regime, err := survival.ClassifyCensoring(lo, hi)
		if err != nil {
			return Summary{}, fmt.Errorf("dataset %q row %d: %w", d.Name, i, err)
		}
		var rep float64
		switch regime {
		case survival.Uncensored:
			s.Uncensored++
			rep = lo
		case survival.RightCensored:
			s.Right++
			rep = lo
		case survival.LeftCensored:
			s.Left++
			rep = hi
		case survival.IntervalCensored:
			s.Interval++
			rep = (lo + hi) / 2
		}
		if !math.IsInf(rep, 0) && !math.IsNaN(rep) {
			reps = append(reps, rep)
		}
		if d.Weight != nil {
			s.TotalWeight += d.Weight[i]
		} else {
			s.TotalWeight++
		}
	}

	if len(reps) > 0 {
		sort.Float64s(reps)
		s.MinTime = reps[0]
		s.MedianTime = stat.Quantile(0.5, stat.Empirical, reps, nil)
		s.MaxTime = reps[len(reps)-1]
	}
	return s, nil
}

// String renders the one-line form used in logs.
func (s Summary) String() string {
	return fmt.Sprintf("%d rows (%d exact, %d right, %d left, %d interval), weight %.4g, times %.4g/%.4g/%.4g days",
		s.Rows, s.Uncensored, s.Right, s.Left, s.Interval,
		s.TotalWeight, s.MinTime, s.MedianTime, s.MaxTime)
}
