package api

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/survival.report/internal/survival"
	"github.com/banshee-data/survival.report/internal/testutil"
)

// writeReportFixture drops a dataset and matching predictions CSV into a
// temp data directory and returns the three paths.
func writeReportFixture(t *testing.T) (dir, dataPath, predsPath string) {
	t.Helper()
	dir = t.TempDir()

	var data strings.Builder
	var preds strings.Builder
	data.WriteString("label_lower_bound,label_upper_bound\n")
	for i := 1; i <= 16; i++ {
		life := float64(10 * i)
		if i%4 == 0 {
			fmt.Fprintf(&data, "%g,inf\n", life)
		} else {
			fmt.Fprintf(&data, "%g,%g\n", life, life)
		}
		fmt.Fprintf(&preds, "%v\n", math.Log(life))
	}

	dataPath = filepath.Join(dir, "fixture.csv")
	predsPath = filepath.Join(dir, "preds.csv")
	testutil.AssertNoError(t, os.WriteFile(dataPath, []byte(data.String()), 0o644))
	testutil.AssertNoError(t, os.WriteFile(predsPath, []byte(preds.String()), 0o644))
	return dir, dataPath, predsPath
}

func setupReportServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	dir, dataPath, predsPath := writeReportFixture(t)
	s := NewServer(nil, survival.DefaultAFTParams(), "days", []string{dir})
	return s, dataPath, predsPath
}

func TestReportRendersSweep(t *testing.T) {
	s, dataPath, predsPath := setupReportServer(t)

	url := fmt.Sprintf("/api/report?data=%s&preds=%s", dataPath, predsPath)
	rec := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"echarts", "normal", "logistic", "extreme"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestReportCustomScales(t *testing.T) {
	s, dataPath, predsPath := setupReportServer(t)

	url := fmt.Sprintf("/api/report?data=%s&preds=%s&scales=0.5,1,2", dataPath, predsPath)
	rec := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	url = fmt.Sprintf("/api/report?data=%s&preds=%s&scales=0.5,huge", dataPath, predsPath)
	rec = serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	// Negative scales reach the sweep and fail configuration.
	url = fmt.Sprintf("/api/report?data=%s&preds=%s&scales=-1", dataPath, predsPath)
	rec = serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestReportDownloadHeader(t *testing.T) {
	s, dataPath, predsPath := setupReportServer(t)

	url := fmt.Sprintf("/api/report?data=%s&preds=%s&download=1", dataPath, predsPath)
	rec := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "fixture.csv-scale-sweep.html") {
		t.Errorf("content disposition = %q", cd)
	}
}

func TestReportRejectsPathOutsideDataDirs(t *testing.T) {
	s, _, predsPath := setupReportServer(t)

	outside := filepath.Join(t.TempDir(), "other.csv")
	testutil.AssertNoError(t, os.WriteFile(outside, []byte("10,10\n"), 0o644))

	url := fmt.Sprintf("/api/report?data=%s&preds=%s", outside, predsPath)
	rec := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestReportRequiresParams(t *testing.T) {
	s, dataPath, _ := setupReportServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/report", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	url := fmt.Sprintf("/api/report?data=%s", dataPath)
	rec = serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestReportWithoutDataDirs(t *testing.T) {
	s := NewServer(nil, survival.DefaultAFTParams(), "days", nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/report?data=x&preds=y", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
}

func TestReportMissingFile(t *testing.T) {
	s, _, predsPath := setupReportServer(t)
	missing := filepath.Join(filepath.Dir(predsPath), "absent.csv")

	url := fmt.Sprintf("/api/report?data=%s&preds=%s", missing, predsPath)
	rec := serve(s, httptest.NewRequest(http.MethodGet, url, nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}
