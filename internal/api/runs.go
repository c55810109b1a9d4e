package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/survival.report/internal/db"
	"github.com/banshee-data/survival.report/internal/httputil"
)

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "run store not configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	var runs []*db.EvalRun
	var err error
	if ds := r.URL.Query().Get("dataset"); ds != "" {
		runs, err = s.db.ListRunsByDataset(ds, limit)
	} else {
		runs, err = s.db.ListRuns(limit)
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*db.EvalRun{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) runByIDHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "run store not configured")
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		httputil.NotFound(w, "no such run")
		return
	}

	switch r.Method {
	case http.MethodGet:
		run, err := s.db.GetRun(runID)
		if err != nil {
			if errors.Is(err, db.ErrRunNotFound) {
				httputil.NotFound(w, err.Error())
			} else {
				httputil.InternalServerError(w, err.Error())
			}
			return
		}
		httputil.WriteJSONOK(w, run)

	case http.MethodDelete:
		if err := s.db.DeleteRun(runID); err != nil {
			if errors.Is(err, db.ErrRunNotFound) {
				httputil.NotFound(w, err.Error())
			} else {
				httputil.InternalServerError(w, err.Error())
			}
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"deleted": runID})

	default:
		httputil.MethodNotAllowed(w)
	}
}
