package survival

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Option keys recognized by the AFT metric. They match the training
// parameter names of the model that produces the predictions, so a saved
// training configuration can be fed back verbatim.
const (
	OptDistribution = "aft_loss_distribution"
	OptScale        = "aft_loss_distribution_scale"
)

// AFTParams fixes the likelihood model for an evaluation: the residual
// family and its scale sigma. A params value is immutable once built, so it
// can be shared across goroutines without locking.
type AFTParams struct {
	Distribution Distribution
	Scale        float64
}

// DefaultAFTParams returns the documented defaults: normal residuals with
// unit scale. Evaluating before any explicit configuration uses these.
func DefaultAFTParams() AFTParams {
	return AFTParams{Distribution: Normal, Scale: 1.0}
}

// AFTParamsFromOptions builds params from string-keyed options, starting
// from the defaults for any absent key. Keys other than the two recognized
// ones are ignored, so a caller may pass a full training parameter map.
func AFTParamsFromOptions(opts map[string]string) (AFTParams, error) {
	p := DefaultAFTParams()
	if name, ok := opts[OptDistribution]; ok {
		d, err := ParseDistribution(name)
		if err != nil {
			return AFTParams{}, err
		}
		p.Distribution = d
	}
	if s, ok := opts[OptScale]; ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return AFTParams{}, fmt.Errorf("%w: %s %q is not a number", ErrConfiguration, OptScale, s)
		}
		p.Scale = v
	}
	if err := p.Validate(); err != nil {
		return AFTParams{}, err
	}
	return p, nil
}

// Validate reports whether the params describe a usable likelihood model.
func (p AFTParams) Validate() error {
	if p.Distribution < Normal || p.Distribution > Extreme {
		return fmt.Errorf("%w: unknown distribution %d", ErrConfiguration, int(p.Distribution))
	}
	if !(p.Scale > 0) || math.IsInf(p.Scale, 1) {
		return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrConfiguration, OptScale, p.Scale)
	}
	return nil
}

// aftParamsJSON is the wire form of AFTParams. Both fields serialize as
// strings, mirroring the training system's model files.
type aftParamsJSON struct {
	Distribution string `json:"aft_loss_distribution"`
	Scale        string `json:"aft_loss_distribution_scale"`
}

// MarshalJSON renders the scale as a minimal decimal string ("10", never
// "10.0"), so a configuration survives a save/load cycle byte for byte.
func (p AFTParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(aftParamsJSON{
		Distribution: p.Distribution.String(),
		Scale:        strconv.FormatFloat(p.Scale, 'g', -1, 64),
	})
}

// UnmarshalJSON applies defaults for absent fields, so a partial document
// such as {"aft_loss_distribution_scale":"2"} is still a valid configuration.
func (p *AFTParams) UnmarshalJSON(data []byte) error {
	var wire aftParamsJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	opts := make(map[string]string, 2)
	if wire.Distribution != "" {
		opts[OptDistribution] = wire.Distribution
	}
	if wire.Scale != "" {
		opts[OptScale] = wire.Scale
	}
	parsed, err := AFTParamsFromOptions(opts)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
