package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/survival.report/internal/dataset"
	"github.com/banshee-data/survival.report/internal/db"
	"github.com/banshee-data/survival.report/internal/httputil"
	"github.com/banshee-data/survival.report/internal/survival"
	"github.com/banshee-data/survival.report/internal/units"
)

// EvaluateRequest carries an inline dataset plus predictions. Bounds use
// null as the open sentinel, since JSON has no infinity: a null lower reads
// as 0 and a null upper as +inf, matching the CSV empty-field convention.
type EvaluateRequest struct {
	Dataset     string            `json:"dataset,omitempty"`
	Units       string            `json:"units,omitempty"`
	Lower       []*float64        `json:"lower"`
	Upper       []*float64        `json:"upper"`
	Weights     []float64         `json:"weights,omitempty"`
	Predictions []float64         `json:"predictions"`
	Metric      string            `json:"metric,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	Save        bool              `json:"save,omitempty"`
}

// EvaluateResponse reports one metric evaluation. RunID is set only when
// the run was persisted.
type EvaluateResponse struct {
	Metric      string           `json:"metric"`
	Value       float64          `json:"value"`
	Rows        int              `json:"rows"`
	TotalWeight float64          `json:"total_weight"`
	Summary     *dataset.Summary `json:"summary,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

// toDataset materializes the request labels as a validated dataset with
// bounds in days.
func (req *EvaluateRequest) toDataset() (*dataset.Dataset, error) {
	if len(req.Lower) == 0 {
		return nil, fmt.Errorf("no label bounds")
	}
	if len(req.Lower) != len(req.Upper) {
		return nil, fmt.Errorf("%d lower bounds but %d upper bounds", len(req.Lower), len(req.Upper))
	}
	if req.Weights != nil && len(req.Weights) != len(req.Lower) {
		return nil, fmt.Errorf("%d weights for %d rows", len(req.Weights), len(req.Lower))
	}
	if req.Units != "" && !units.IsValid(req.Units) {
		return nil, fmt.Errorf("unknown units %q (valid: %s)", req.Units, units.GetValidUnitsString())
	}

	name := req.Dataset
	if name == "" {
		name = "inline"
	}
	d := &dataset.Dataset{
		Name:   name,
		Lower:  make([]float64, len(req.Lower)),
		Upper:  make([]float64, len(req.Upper)),
		Weight: req.Weights,
	}
	for i := range req.Lower {
		lo, hi := 0.0, math.Inf(1)
		if req.Lower[i] != nil {
			lo = *req.Lower[i]
		}
		if req.Upper[i] != nil {
			hi = *req.Upper[i]
		}
		if req.Units != "" {
			lo = units.ToDays(lo, req.Units)
			hi = units.ToDays(hi, req.Units)
		}
		d.Lower[i] = lo
		d.Upper[i] = hi
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// metricOptions merges the server defaults with the request options, the
// request winning on conflicts.
func (s *Server) metricOptions(reqOpts map[string]string) map[string]string {
	opts := map[string]string{
		survival.OptDistribution: s.defaults.Distribution.String(),
		survival.OptScale:        strconv.FormatFloat(s.defaults.Scale, 'g', -1, 64),
	}
	for k, v := range reqOpts {
		opts[k] = v
	}
	return opts
}

func (s *Server) evaluateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Save && s.db == nil {
		httputil.ServiceUnavailable(w, "run store not configured")
		return
	}

	ds, err := req.toDataset()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	name := req.Metric
	if name == "" {
		name = survival.AFTNegLogLikName
	}
	metric, err := survival.NewMetric(name)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := metric.Configure(s.metricOptions(req.Options)); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	start := time.Now()
	value, err := metric.Evaluate(r.Context(), req.Predictions, ds, nil)
	if err != nil {
		if errors.Is(err, survival.ErrInput) || errors.Is(err, survival.ErrConfiguration) {
			httputil.BadRequest(w, err.Error())
		} else {
			httputil.InternalServerError(w, err.Error())
		}
		return
	}
	durationMs := time.Since(start).Milliseconds()

	summary, err := dataset.Summarize(ds)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	resp := &EvaluateResponse{
		Metric:      metric.Name(),
		Value:       value,
		Rows:        summary.Rows,
		TotalWeight: summary.TotalWeight,
		Summary:     &summary,
		DurationMs:  durationMs,
	}

	if req.Save {
		run := &db.EvalRun{
			Dataset:     ds.Name,
			Metric:      metric.Name(),
			Split:       dataset.SplitNone.String(),
			Workers:     1,
			RowCount:    summary.Rows,
			TotalWeight: summary.TotalWeight,
			Value:       value,
			DurationMs:  durationMs,
		}
		if aft, ok := metric.(*survival.AFTNegLogLik); ok {
			p := aft.Params()
			run.Distribution = p.Distribution.String()
			run.Scale = p.Scale
		}
		if err := s.db.InsertRun(run); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to save run: %v", err))
			return
		}
		resp.RunID = run.RunID
	}

	httputil.WriteJSONOK(w, resp)
}
