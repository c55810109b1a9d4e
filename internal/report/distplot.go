package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/survival.report/internal/survival"
)

const cardSamples = 400

// SaveDistributionCard writes a PNG showing the density and CDF of the
// given error family at the given scale, over log-time residuals. The
// grid reaches further left than right because the extreme family is
// left-skewed.
func SaveDistributionCard(d survival.Distribution, scale float64, path string) error {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: scale must be positive and finite", survival.ErrConfiguration)
	}

	lo, hi := -6*scale, 4*scale
	step := (hi - lo) / float64(cardSamples-1)

	pdfPts := make(plotter.XYs, cardSamples)
	cdfPts := make(plotter.XYs, cardSamples)
	for i := 0; i < cardSamples; i++ {
		r := lo + float64(i)*step
		z := r / scale
		pdfPts[i] = plotter.XY{X: r, Y: math.Exp(d.LogPDF(z)) / scale}
		cdfPts[i] = plotter.XY{X: r, Y: math.Exp(d.LogCDF(z))}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s error distribution (scale=%g)", d, scale)
	p.X.Label.Text = "log-time residual"
	p.Y.Label.Text = "density / probability"

	pdfLine, err := plotter.NewLine(pdfPts)
	if err != nil {
		return fmt.Errorf("density line: %w", err)
	}
	pdfLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	pdfLine.Width = vg.Points(1.5)
	p.Add(pdfLine)
	p.Legend.Add("density", pdfLine)

	cdfLine, err := plotter.NewLine(cdfPts)
	if err != nil {
		return fmt.Errorf("cdf line: %w", err)
	}
	cdfLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	cdfLine.Width = vg.Points(1.5)
	p.Add(cdfLine)
	p.Legend.Add("CDF", cdfLine)

	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save distribution card: %w", err)
	}
	return nil
}
