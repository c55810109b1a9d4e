package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/survival.report/internal/dataset"
	"github.com/banshee-data/survival.report/internal/httputil"
	"github.com/banshee-data/survival.report/internal/report"
	"github.com/banshee-data/survival.report/internal/security"
	"github.com/banshee-data/survival.report/internal/survival"
)

// reportHandler renders the scale sweep chart for a dataset and prediction
// file on disk. Both paths must resolve inside one of the configured data
// directories.
func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if len(s.dataDirs) == 0 {
		httputil.ServiceUnavailable(w, "no data directories configured")
		return
	}

	q := r.URL.Query()
	dataPath := q.Get("data")
	predsPath := q.Get("preds")
	if dataPath == "" || predsPath == "" {
		httputil.BadRequest(w, "'data' and 'preds' file parameters are required")
		return
	}
	for _, p := range []string{dataPath, predsPath} {
		if err := security.ValidatePathWithinAllowedDirs(p, s.dataDirs); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}

	var scales []float64
	if raw := q.Get("scales"); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				httputil.BadRequest(w, fmt.Sprintf("invalid scale %q", field))
				return
			}
			scales = append(scales, v)
		}
	}

	ds, err := dataset.ReadFile(dataPath, dataset.Options{Units: q.Get("units")})
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("load dataset: %v", err))
		return
	}
	preds, err := dataset.ReadPredictionsFile(predsPath)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("load predictions: %v", err))
		return
	}

	sweep, err := report.RunScaleSweep(r.Context(), ds, preds, scales)
	if err != nil {
		if errors.Is(err, survival.ErrInput) || errors.Is(err, survival.ErrConfiguration) {
			httputil.BadRequest(w, err.Error())
		} else {
			httputil.InternalServerError(w, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if q.Get("download") != "" {
		name := security.SanitizeFilename(ds.Name)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s-scale-sweep.html", name))
	}
	if err := report.RenderSweepHTML(w, sweep); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render report: %v", err))
	}
}
