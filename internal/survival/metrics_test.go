package survival

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/survival.report/internal/comm"
)

// stubDataset is the minimal Dataset used throughout these tests.
type stubDataset struct {
	lower, upper []float64
	weights      []float64
	colSplit     bool
}

func (d *stubDataset) NumRows() int          { return len(d.lower) }
func (d *stubDataset) LabelLower() []float64 { return d.lower }
func (d *stubDataset) LabelUpper() []float64 { return d.upper }
func (d *stubDataset) Weights() []float64    { return d.weights }
func (d *stubDataset) ColumnSplit() bool     { return d.colSplit }

// mixedRegimeDataset covers all four censoring regimes in four rows.
func mixedRegimeDataset() *stubDataset {
	return &stubDataset{
		lower: []float64{100, 0, 60, 16},
		upper: []float64{100, 20, math.Inf(1), 200},
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAFTNegLogLikKnownValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		family string
		want   float64
	}{
		{"normal", 2.1508},
		{"logistic", 2.1804},
		{"extreme", 2.0706},
	}
	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			m := NewAFTNegLogLik()
			require.NoError(t, m.Configure(map[string]string{
				OptDistribution: tt.family,
				OptScale:        "1.0",
			}))
			ds := mixedRegimeDataset()
			got, err := m.Evaluate(context.Background(), repeat(math.Log(64), 4), ds, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

// Running the same evaluation repeatedly must reproduce the first result
// bit for bit, not merely within tolerance.
func TestEvaluateIsDeterministic(t *testing.T) {
	t.Parallel()

	m := NewAFTNegLogLik()
	require.NoError(t, m.Configure(map[string]string{OptDistribution: "extreme", OptScale: "1.5"}))
	ds := &stubDataset{
		lower:   []float64{100, 0, 60, 16, 3.7, 0, 88, 12},
		upper:   []float64{100, 20, math.Inf(1), 200, 9.1, 4, math.Inf(1), 12},
		weights: []float64{1, 0.25, 3, 1, 2, 0.5, 1, 1.75},
	}
	preds := []float64{4.1, 2.9, 4.4, 3.6, 1.2, 0.8, 4.9, 2.5}

	first, err := m.Evaluate(context.Background(), preds, ds, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := m.Evaluate(context.Background(), preds, ds, nil)
		require.NoError(t, err)
		require.Equal(t, first, again, "call %d", i+2)
	}
}

func TestIntervalRegressionAccuracySequence(t *testing.T) {
	t.Parallel()

	m := NewIntervalRegressionAccuracy()
	preds := repeat(math.Log(60), 4)
	eval := func(ds *stubDataset) float64 {
		got, err := m.Evaluate(context.Background(), preds, ds, nil)
		require.NoError(t, err)
		return got
	}

	ds := &stubDataset{
		lower: []float64{20, 0, 60, 16},
		upper: []float64{80, 20, 80, 200},
	}
	assert.Equal(t, 0.75, eval(ds), "baseline")

	ds.lower[2] = 70
	assert.Equal(t, 0.50, eval(ds), "raised lower bound evicts the exact hit")

	ds.upper[2] = math.Inf(1)
	assert.Equal(t, 0.50, eval(ds), "open upper bound cannot rescue a low prediction")

	ds.upper[3] = math.Inf(1)
	assert.Equal(t, 0.50, eval(ds), "opening a hit's upper bound keeps the hit")

	ds.lower[0] = 70
	assert.Equal(t, 0.25, eval(ds), "raised lower bound evicts another hit")
}

func TestIntervalRegressionAccuracyPointLabels(t *testing.T) {
	t.Parallel()

	m := NewIntervalRegressionAccuracy()
	ds := &stubDataset{
		lower: []float64{60, 60},
		upper: []float64{60, 60},
	}
	preds := []float64{math.Log(60), math.Nextafter(math.Log(60), 100)}
	got, err := m.Evaluate(context.Background(), preds, ds, nil)
	require.NoError(t, err)
	// Only exact equality scores on a point label.
	assert.Equal(t, 0.5, got)
}

func TestIntervalRegressionAccuracyWeighted(t *testing.T) {
	t.Parallel()

	m := NewIntervalRegressionAccuracy()
	ds := &stubDataset{
		lower:   []float64{20, 0, 60, 16},
		upper:   []float64{80, 20, 80, 200},
		weights: []float64{1, 2, 3, 4},
	}
	got, err := m.Evaluate(context.Background(), repeat(math.Log(60), 4), ds, nil)
	require.NoError(t, err)
	// Hits carry weights 1, 3 and 4 of a total 10.
	assert.Equal(t, 0.8, got)
}

func TestZeroWeightRowsDropOut(t *testing.T) {
	t.Parallel()

	m := NewAFTNegLogLik()
	full := &stubDataset{
		lower:   []float64{100, 0, 60},
		upper:   []float64{100, 20, math.Inf(1)},
		weights: []float64{1, 0, 1},
	}
	trimmed := &stubDataset{
		lower: []float64{100, 60},
		upper: []float64{100, math.Inf(1)},
	}
	preds3 := repeat(math.Log(64), 3)
	preds2 := repeat(math.Log(64), 2)

	a, err := m.Evaluate(context.Background(), preds3, full, nil)
	require.NoError(t, err)
	b, err := m.Evaluate(context.Background(), preds2, trimmed, nil)
	require.NoError(t, err)
	assert.InDelta(t, b, a, 1e-12)
}

func TestEvaluateInputErrors(t *testing.T) {
	t.Parallel()

	inf := math.Inf(1)
	preds := repeat(4.0, 2)
	tests := []struct {
		name  string
		ds    *stubDataset
		preds []float64
	}{
		{"empty dataset", &stubDataset{}, nil},
		{"prediction count mismatch", &stubDataset{lower: []float64{1, 2}, upper: []float64{1, 2}}, repeat(4.0, 3)},
		{"bound count mismatch", &stubDataset{lower: []float64{1, 2}, upper: []float64{1}}, preds},
		{"weight count mismatch", &stubDataset{lower: []float64{1, 2}, upper: []float64{1, 2}, weights: []float64{1}}, preds},
		{"negative lower bound", &stubDataset{lower: []float64{-1, 2}, upper: []float64{1, 2}}, preds},
		{"NaN bound", &stubDataset{lower: []float64{math.NaN(), 2}, upper: []float64{1, 2}}, preds},
		{"inverted bounds", &stubDataset{lower: []float64{5, 2}, upper: []float64{4, 2}}, preds},
		{"both bounds infinite", &stubDataset{lower: []float64{inf, 2}, upper: []float64{inf, 2}}, preds},
		{"negative weight", &stubDataset{lower: []float64{1, 2}, upper: []float64{1, 2}, weights: []float64{1, -1}}, preds},
		{"zero total weight", &stubDataset{lower: []float64{1, 2}, upper: []float64{1, 2}, weights: []float64{0, 0}}, preds},
	}

	for _, metric := range []Metric{NewAFTNegLogLik(), NewIntervalRegressionAccuracy()} {
		for _, tt := range tests {
			t.Run(metric.Name()+"/"+tt.name, func(t *testing.T) {
				_, err := metric.Evaluate(context.Background(), tt.preds, tt.ds, nil)
				assert.ErrorIs(t, err, ErrInput)
			})
		}
	}

	_, err := NewAFTNegLogLik().Evaluate(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrInput)
}

// largeMixedDataset builds a deterministic spread of all four regimes,
// bulky enough that sharding it is interesting.
func largeMixedDataset(n int) (*stubDataset, []float64) {
	ds := &stubDataset{
		lower:   make([]float64, n),
		upper:   make([]float64, n),
		weights: make([]float64, n),
	}
	preds := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 1.0 + 0.37*float64(i)
		switch i % 4 {
		case 0:
			ds.lower[i], ds.upper[i] = base, base
		case 1:
			ds.lower[i], ds.upper[i] = base, math.Inf(1)
		case 2:
			ds.lower[i], ds.upper[i] = 0, base
		case 3:
			ds.lower[i], ds.upper[i] = base, base*2.5
		}
		ds.weights[i] = 0.5 + float64(i%7)*0.25
		preds[i] = math.Log(base) + 0.3*math.Sin(float64(i))
	}
	return ds, preds
}

// shardRows cuts [0, n) into the same contiguous ranges a row-partitioned
// deployment would use: rank r owns rows [r*n/k, (r+1)*n/k).
func shardRows(ds *stubDataset, preds []float64, rank, size int) (*stubDataset, []float64) {
	n := len(ds.lower)
	start, end := rank*n/size, (rank+1)*n/size
	return &stubDataset{
		lower:   ds.lower[start:end],
		upper:   ds.upper[start:end],
		weights: ds.weights[start:end],
	}, preds[start:end]
}

func TestRowSplitMatchesSingleWorker(t *testing.T) {
	t.Parallel()

	ds, preds := largeMixedDataset(41)
	m := NewAFTNegLogLik()
	require.NoError(t, m.Configure(map[string]string{OptDistribution: "logistic", OptScale: "0.8"}))

	single, err := m.Evaluate(context.Background(), preds, ds, nil)
	require.NoError(t, err)

	for _, workers := range []int{2, 4, 8} {
		peers, err := comm.NewLocalGroup(workers)
		require.NoError(t, err)

		results := make([]float64, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for rank := 0; rank < workers; rank++ {
			wg.Add(1)
			go func(rank int) {
				defer wg.Done()
				shard, shardPreds := shardRows(ds, preds, rank, workers)
				results[rank], errs[rank] = m.Evaluate(context.Background(), shardPreds, shard, peers[rank])
			}(rank)
		}
		wg.Wait()

		for rank := 0; rank < workers; rank++ {
			require.NoError(t, errs[rank], "workers=%d rank=%d", workers, rank)
			assert.Equal(t, results[0], results[rank], "workers=%d rank=%d sees a different value", workers, rank)
			assert.InDelta(t, single, results[rank], 1e-12, "workers=%d rank=%d", workers, rank)
		}
	}
}

// Column-split workers hold every row, so their local sums already are the
// global sums and no collective runs. The value must match the single-worker
// result exactly, and must not double count.
func TestColumnSplitMatchesSingleWorkerExactly(t *testing.T) {
	t.Parallel()

	ds, preds := largeMixedDataset(24)
	m := NewIntervalRegressionAccuracy()

	single, err := m.Evaluate(context.Background(), preds, ds, nil)
	require.NoError(t, err)

	colDS := &stubDataset{lower: ds.lower, upper: ds.upper, weights: ds.weights, colSplit: true}
	peers, err := comm.NewLocalGroup(2)
	require.NoError(t, err)

	// No goroutine pairing: if the evaluation wrongly entered the
	// collective, this call would hang on the absent second rank and the
	// test would time out.
	got, err := m.Evaluate(context.Background(), preds, colDS, peers[0])
	require.NoError(t, err)
	assert.Equal(t, single, got)
}

func TestEmptyShardContributesZero(t *testing.T) {
	t.Parallel()

	ds, preds := largeMixedDataset(3)
	m := NewAFTNegLogLik()

	single, err := m.Evaluate(context.Background(), preds, ds, nil)
	require.NoError(t, err)

	// Four workers over three rows: one shard is empty.
	const workers = 4
	peers, err := comm.NewLocalGroup(workers)
	require.NoError(t, err)

	results := make([]float64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for rank := 0; rank < workers; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			shard, shardPreds := shardRows(ds, preds, rank, workers)
			results[rank], errs[rank] = m.Evaluate(context.Background(), shardPreds, shard, peers[rank])
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < workers; rank++ {
		require.NoError(t, errs[rank], "rank %d", rank)
		assert.InDelta(t, single, results[rank], 1e-12, "rank %d", rank)
	}
}

func TestNewMetricByName(t *testing.T) {
	t.Parallel()

	m, err := NewMetric(AFTNegLogLikName)
	require.NoError(t, err)
	assert.Equal(t, AFTNegLogLikName, m.Name())

	m, err = NewMetric(IntervalRegressionAccuracyName)
	require.NoError(t, err)
	assert.Equal(t, IntervalRegressionAccuracyName, m.Name())

	_, err = NewMetric("concordance")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAFTSaveConfig(t *testing.T) {
	t.Parallel()

	m := NewAFTNegLogLik()
	require.NoError(t, m.Configure(map[string]string{
		OptDistribution: "normal",
		OptScale:        "10.0",
	}))
	data, err := m.SaveConfig()
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"aft-nloglik","aft_loss_param":{"aft_loss_distribution":"normal","aft_loss_distribution_scale":"10"}}`,
		string(data))

	loaded := NewAFTNegLogLik()
	require.NoError(t, loaded.LoadConfig(data))
	assert.Equal(t, m.Params(), loaded.Params())

	again, err := loaded.SaveConfig()
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestAccuracySaveConfig(t *testing.T) {
	t.Parallel()

	m := NewIntervalRegressionAccuracy()
	require.NoError(t, m.Configure(map[string]string{"anything": "ignored"}))
	data, err := m.SaveConfig()
	require.NoError(t, err)
	assert.Equal(t, `{"name":"interval-regression-accuracy"}`, string(data))
}

func TestConfigureErrorPreservesParams(t *testing.T) {
	t.Parallel()

	m := NewAFTNegLogLik()
	require.NoError(t, m.Configure(map[string]string{OptDistribution: "extreme", OptScale: "2"}))
	err := m.Configure(map[string]string{OptScale: "-1"})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, AFTParams{Extreme, 2}, m.Params())
}

func TestEvaluateBeforeConfigureUsesDefaults(t *testing.T) {
	t.Parallel()

	ds := mixedRegimeDataset()
	preds := repeat(math.Log(64), 4)

	fresh, err := NewAFTNegLogLik().Evaluate(context.Background(), preds, ds, nil)
	require.NoError(t, err)

	configured := NewAFTNegLogLik()
	require.NoError(t, configured.Configure(map[string]string{
		OptDistribution: "normal",
		OptScale:        "1",
	}))
	explicit, err := configured.Evaluate(context.Background(), preds, ds, nil)
	require.NoError(t, err)
	assert.Equal(t, explicit, fresh)
}
