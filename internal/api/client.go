package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/survival.report/internal/db"
	"github.com/banshee-data/survival.report/internal/httputil"
)

// Client talks to a running evaluation server. The zero HTTPClient means
// the standard library default.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient builds a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// decode reads a response body into v, translating error bodies into
// errors. The server writes failures as {"error": msg}.
func decode(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("server: status %d", resp.StatusCode)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Evaluate posts an evaluation request and returns the scored response.
func (c *Client) Evaluate(req *EvaluateRequest) (*EvaluateResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+"/api/evaluate", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	var out EvaluateResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRuns fetches run history, optionally filtered by dataset name.
func (c *Client) ListRuns(dataset string, limit int) ([]*db.EvalRun, error) {
	q := url.Values{}
	if dataset != "" {
		q.Set("dataset", dataset)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := c.baseURL + "/api/runs"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	resp, err := c.http.Get(u)
	if err != nil {
		return nil, err
	}
	var runs []*db.EvalRun
	if err := decode(resp, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun fetches one run by ID.
func (c *Client) GetRun(runID string) (*db.EvalRun, error) {
	resp, err := c.http.Get(c.baseURL + "/api/runs/" + url.PathEscape(runID))
	if err != nil {
		return nil, err
	}
	var run db.EvalRun
	if err := decode(resp, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteRun removes one run by ID.
func (c *Client) DeleteRun(runID string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/runs/"+url.PathEscape(runID), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

// Version fetches the server build identity.
func (c *Client) Version() (map[string]string, error) {
	resp, err := c.http.Get(c.baseURL + "/api/version")
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}
