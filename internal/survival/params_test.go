package survival

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAFTParams(t *testing.T) {
	t.Parallel()

	p := DefaultAFTParams()
	assert.Equal(t, Normal, p.Distribution)
	assert.Equal(t, 1.0, p.Scale)
	assert.NoError(t, p.Validate())
}

func TestAFTParamsFromOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    map[string]string
		want    AFTParams
		wantErr bool
	}{
		{
			name: "empty options keep defaults",
			opts: map[string]string{},
			want: AFTParams{Normal, 1.0},
		},
		{
			name: "nil options keep defaults",
			opts: nil,
			want: AFTParams{Normal, 1.0},
		},
		{
			name: "full configuration",
			opts: map[string]string{OptDistribution: "logistic", OptScale: "2.5"},
			want: AFTParams{Logistic, 2.5},
		},
		{
			name: "distribution only",
			opts: map[string]string{OptDistribution: "extreme"},
			want: AFTParams{Extreme, 1.0},
		},
		{
			name: "scale only",
			opts: map[string]string{OptScale: "0.25"},
			want: AFTParams{Normal, 0.25},
		},
		{
			name: "unrelated keys ignored",
			opts: map[string]string{"objective": "survival:aft", OptScale: "3"},
			want: AFTParams{Normal, 3},
		},
		{
			name:    "unknown family",
			opts:    map[string]string{OptDistribution: "cauchy"},
			wantErr: true,
		},
		{
			name:    "zero scale",
			opts:    map[string]string{OptScale: "0"},
			wantErr: true,
		},
		{
			name:    "negative scale",
			opts:    map[string]string{OptScale: "-1.5"},
			wantErr: true,
		},
		{
			name:    "NaN scale",
			opts:    map[string]string{OptScale: "NaN"},
			wantErr: true,
		},
		{
			name:    "infinite scale",
			opts:    map[string]string{OptScale: "+Inf"},
			wantErr: true,
		},
		{
			name:    "malformed scale",
			opts:    map[string]string{OptScale: "ten"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AFTParamsFromOptions(tt.opts)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAFTParamsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, AFTParams{Extreme, 0.5}.Validate())
	assert.ErrorIs(t, AFTParams{Distribution(7), 1}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, AFTParams{Normal, 0}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, AFTParams{Normal, -2}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, AFTParams{Normal, math.NaN()}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, AFTParams{Normal, math.Inf(1)}.Validate(), ErrConfiguration)
}

// Saved parameters must survive a save/load cycle byte for byte, with the
// scale rendered as a minimal decimal string.
func TestAFTParamsJSONRoundTrip(t *testing.T) {
	t.Parallel()

	p := AFTParams{Distribution: Normal, Scale: 10}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t,
		`{"aft_loss_distribution":"normal","aft_loss_distribution_scale":"10"}`,
		string(data))

	var back AFTParams
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)

	again, err := json.Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestAFTParamsJSONScaleRendering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scale float64
		want  string
	}{
		{10, "10"},
		{1, "1"},
		{0.5, "0.5"},
		{2.5e-3, "0.0025"},
		{1e21, "1e+21"},
	}
	for _, tt := range tests {
		data, err := json.Marshal(AFTParams{Normal, tt.scale})
		require.NoError(t, err)
		var wire map[string]string
		require.NoError(t, json.Unmarshal(data, &wire))
		assert.Equal(t, tt.want, wire[OptScale], "scale %v", tt.scale)
	}
}

func TestAFTParamsJSONPartialAndInvalid(t *testing.T) {
	t.Parallel()

	var p AFTParams
	require.NoError(t, json.Unmarshal([]byte(`{"aft_loss_distribution_scale":"2"}`), &p))
	assert.Equal(t, AFTParams{Normal, 2}, p)

	require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
	assert.Equal(t, DefaultAFTParams(), p)

	err := json.Unmarshal([]byte(`{"aft_loss_distribution":"weibull"}`), &p)
	assert.ErrorIs(t, err, ErrConfiguration)

	err = json.Unmarshal([]byte(`{"aft_loss_distribution_scale":"-4"}`), &p)
	assert.ErrorIs(t, err, ErrConfiguration)
}
