// Package report renders evaluation results for humans: an HTML scale
// sweep comparing the error families over a dataset, and a PNG card
// showing the shape of a configured error distribution.
package report

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/survival.report/internal/dataset"
	"github.com/banshee-data/survival.report/internal/survival"
)

// sweepFamilies is the fixed family order of every sweep.
var sweepFamilies = []survival.Distribution{
	survival.Normal,
	survival.Logistic,
	survival.Extreme,
}

// DefaultSweepScales returns the scale grid used when the caller does
// not supply one. Roughly geometric between 0.25 and 4.
func DefaultSweepScales() []float64 {
	return []float64{0.25, 0.35, 0.5, 0.7, 1, 1.4, 2, 2.8, 4}
}

// SweepResult holds the loss surface of one scale sweep.
type SweepResult struct {
	Dataset  string
	Rows     int
	Summary  dataset.Summary
	Scales   []float64
	Families []survival.Distribution

	// Loss[i][j] is the mean negative log-likelihood of Families[i]
	// at Scales[j].
	Loss [][]float64

	// Accuracy is scale-independent, so it is evaluated once.
	Accuracy float64

	Best     survival.AFTParams
	BestLoss float64
}

// RunScaleSweep evaluates the AFT negative log-likelihood for every
// family at every scale, plus the interval accuracy once, and reports
// the best-scoring configuration.
func RunScaleSweep(ctx context.Context, ds *dataset.Dataset, preds []float64, scales []float64) (*SweepResult, error) {
	if len(scales) == 0 {
		scales = DefaultSweepScales()
	}

	summary, err := dataset.Summarize(ds)
	if err != nil {
		return nil, err
	}

	sweep := &SweepResult{
		Dataset:  ds.Name,
		Rows:     ds.NumRows(),
		Summary:  summary,
		Scales:   scales,
		Families: sweepFamilies,
		Loss:     make([][]float64, len(sweepFamilies)),
	}

	nll := survival.NewAFTNegLogLik()
	best := false
	for i, family := range sweepFamilies {
		sweep.Loss[i] = make([]float64, len(scales))
		for j, scale := range scales {
			err := nll.Configure(map[string]string{
				survival.OptDistribution: family.String(),
				survival.OptScale:        strconv.FormatFloat(scale, 'g', -1, 64),
			})
			if err != nil {
				return nil, fmt.Errorf("configure %s scale %g: %w", family, scale, err)
			}
			value, err := nll.Evaluate(ctx, preds, ds, nil)
			if err != nil {
				return nil, fmt.Errorf("evaluate %s scale %g: %w", family, scale, err)
			}
			sweep.Loss[i][j] = value
			if !best || value < sweep.BestLoss {
				best = true
				sweep.BestLoss = value
				sweep.Best = survival.AFTParams{Distribution: family, Scale: scale}
			}
		}
	}

	accuracy, err := survival.NewIntervalRegressionAccuracy().Evaluate(ctx, preds, ds, nil)
	if err != nil {
		return nil, fmt.Errorf("evaluate accuracy: %w", err)
	}
	sweep.Accuracy = accuracy

	return sweep, nil
}

// RenderSweepHTML writes the sweep as a self-contained HTML page: the loss
// line chart, one series per family over the scale grid, plus a pie of the
// dataset's censoring mix.
func RenderSweepHTML(w io.Writer, sweep *SweepResult) error {
	xs := make([]string, len(sweep.Scales))
	for j, scale := range sweep.Scales {
		xs[j] = strconv.FormatFloat(scale, 'g', -1, 64)
	}

	subtitle := fmt.Sprintf(
		"dataset=%s rows=%d accuracy=%.4f best=%s@%g (%.4f)",
		sweep.Dataset, sweep.Rows, sweep.Accuracy,
		sweep.Best.Distribution, sweep.Best.Scale, sweep.BestLoss,
	)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "AFT scale sweep",
			Width:     "900px",
			Height:    "520px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "AFT negative log-likelihood by scale",
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "scale"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean NLL"}),
	)

	line.SetXAxis(xs)
	for i, family := range sweep.Families {
		ys := make([]opts.LineData, len(sweep.Scales))
		for j, value := range sweep.Loss[i] {
			ys[j] = opts.LineData{Value: value}
		}
		line.AddSeries(family.String(), ys)
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "900px",
			Height: "420px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Censoring mix"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("regimes", []opts.PieData{
		{Name: "exact", Value: sweep.Summary.Uncensored},
		{Name: "right-censored", Value: sweep.Summary.Right},
		{Name: "left-censored", Value: sweep.Summary.Left},
		{Name: "interval-censored", Value: sweep.Summary.Interval},
	}).SetSeriesOptions(
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}),
	)

	page := components.NewPage()
	page.PageTitle = "AFT scale sweep"
	page.AddCharts(line, pie)
	return page.Render(w)
}
