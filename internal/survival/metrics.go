package survival

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/banshee-data/survival.report/internal/comm"
)

// Metric scores a prediction vector against censored labels. The lifecycle
// is configure once, evaluate many times: Configure must complete before the
// first Evaluate, after which the metric is read-only and safe to share
// across goroutines. Evaluating an unconfigured metric uses its documented
// defaults.
type Metric interface {
	// Name returns the stable identifier used in reports and saved configs.
	Name() string
	// Configure applies string-keyed options. Unrecognized keys are
	// ignored; recognized keys with bad values fail with ErrConfiguration,
	// leaving the previous configuration in place.
	Configure(opts map[string]string) error
	// Evaluate computes the weighted mean contribution over the dataset,
	// reducing across workers through rc. A nil rc evaluates single-worker.
	Evaluate(ctx context.Context, preds []float64, ds Dataset, rc comm.AllReducer) (float64, error)
	// SaveConfig serializes the metric's identity and parameters as JSON.
	SaveConfig() ([]byte, error)
}

// Metric names.
const (
	AFTNegLogLikName               = "aft-nloglik"
	IntervalRegressionAccuracyName = "interval-regression-accuracy"
)

// NewMetric constructs a metric by name.
func NewMetric(name string) (Metric, error) {
	switch name {
	case AFTNegLogLikName:
		return NewAFTNegLogLik(), nil
	case IntervalRegressionAccuracyName:
		return NewIntervalRegressionAccuracy(), nil
	default:
		return nil, fmt.Errorf("%w: unknown metric %q (valid: %s, %s)", ErrConfiguration, name, AFTNegLogLikName, IntervalRegressionAccuracyName)
	}
}

// AFTNegLogLik is the accelerated failure time negative log likelihood,
// averaged over samples with optional per-sample weights. Lower is better.
type AFTNegLogLik struct {
	params AFTParams
}

// NewAFTNegLogLik returns the metric with default parameters applied.
func NewAFTNegLogLik() *AFTNegLogLik {
	return &AFTNegLogLik{params: DefaultAFTParams()}
}

// Name implements Metric.
func (m *AFTNegLogLik) Name() string { return AFTNegLogLikName }

// Params returns the frozen likelihood parameters.
func (m *AFTNegLogLik) Params() AFTParams { return m.params }

// Configure implements Metric. On error the previous parameters survive.
func (m *AFTNegLogLik) Configure(opts map[string]string) error {
	p, err := AFTParamsFromOptions(opts)
	if err != nil {
		return err
	}
	m.params = p
	return nil
}

// Evaluate implements Metric.
func (m *AFTNegLogLik) Evaluate(ctx context.Context, preds []float64, ds Dataset, rc comm.AllReducer) (float64, error) {
	p := m.params
	return evaluateWeighted(ctx, preds, ds, rc, func(lower, upper, pred float64) (float64, error) {
		return AFTLoss(p, lower, upper, pred)
	})
}

// SaveConfig implements Metric. The document shape matches the training
// system's saved model format:
//
//	{"name":"aft-nloglik","aft_loss_param":{"aft_loss_distribution":...}}
func (m *AFTNegLogLik) SaveConfig() ([]byte, error) {
	return json.Marshal(struct {
		Name  string    `json:"name"`
		Param AFTParams `json:"aft_loss_param"`
	}{Name: m.Name(), Param: m.params})
}

// LoadConfig restores parameters saved by SaveConfig.
func (m *AFTNegLogLik) LoadConfig(data []byte) error {
	var doc struct {
		Name  string    `json:"name"`
		Param AFTParams `json:"aft_loss_param"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if doc.Name != "" && doc.Name != m.Name() {
		return fmt.Errorf("%w: config is for metric %q, not %q", ErrConfiguration, doc.Name, m.Name())
	}
	m.params = doc.Param
	return nil
}

// IntervalRegressionAccuracy is the fraction of samples whose predicted log
// time lands inside the label interval. Higher is better. The comparison
// happens in log space: a prediction is a hit when
//
//	log lower <= pred < log upper
//
// with the point interval lower == upper counting a hit only on exact
// equality, and an infinite upper bound never failing the right side.
type IntervalRegressionAccuracy struct{}

// NewIntervalRegressionAccuracy returns the metric. It has no parameters.
func NewIntervalRegressionAccuracy() *IntervalRegressionAccuracy {
	return &IntervalRegressionAccuracy{}
}

// Name implements Metric.
func (m *IntervalRegressionAccuracy) Name() string { return IntervalRegressionAccuracyName }

// Configure implements Metric. All options are accepted and ignored.
func (m *IntervalRegressionAccuracy) Configure(opts map[string]string) error { return nil }

// Evaluate implements Metric.
func (m *IntervalRegressionAccuracy) Evaluate(ctx context.Context, preds []float64, ds Dataset, rc comm.AllReducer) (float64, error) {
	return evaluateWeighted(ctx, preds, ds, rc, func(lower, upper, pred float64) (float64, error) {
		if intervalHit(lower, upper, pred) {
			return 1, nil
		}
		return 0, nil
	})
}

// intervalHit reports whether a predicted log time falls inside the label
// bounds. math.Log maps lower == 0 to -Inf and upper == +Inf stays +Inf, so
// the two comparisons below handle every censoring regime without branching
// on it.
func intervalHit(lower, upper, pred float64) bool {
	logLower := math.Log(lower)
	logUpper := math.Log(upper)
	if pred < logLower {
		return false
	}
	if lower == upper {
		return pred == logLower
	}
	return pred < logUpper || math.IsInf(logUpper, 1)
}

// SaveConfig implements Metric.
func (m *IntervalRegressionAccuracy) SaveConfig() ([]byte, error) {
	return json.Marshal(struct {
		Name string `json:"name"`
	}{Name: m.Name()})
}
