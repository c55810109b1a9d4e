// Package config loads evaluation defaults from JSON files. All fields are
// optional pointers so a partial file only overrides what it names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/survival.report/internal/dataset"
	"github.com/banshee-data/survival.report/internal/survival"
	"github.com/banshee-data/survival.report/internal/units"
)

// DefaultConfigPath is the conventional location of the defaults file,
// relative to the working directory the server starts in.
const DefaultConfigPath = "config/eval.defaults.json"

// EvalConfig is the root configuration. The metric keys match the training
// parameter names, so a saved training configuration drops in unchanged.
type EvalConfig struct {
	// Metric params
	Metric       *string `json:"metric,omitempty"`
	Distribution *string `json:"aft_loss_distribution,omitempty"`
	Scale        *string `json:"aft_loss_distribution_scale,omitempty"`

	// Dataset params
	Units    *string  `json:"units,omitempty"`
	DataDirs []string `json:"data_dirs,omitempty"`

	// Server params
	ListenAddr *string `json:"listen_addr,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`

	// Distributed evaluation params
	Workers     *int    `json:"workers,omitempty"`
	Split       *string `json:"split,omitempty"`
	DialTimeout *string `json:"dial_timeout,omitempty"` // duration string like "10s"
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyEvalConfig returns a config with every field unset, so all Get
// methods answer their defaults.
func EmptyEvalConfig() *EvalConfig {
	return &EvalConfig{}
}

// LoadEvalConfig reads and validates a JSON config file. Fields absent
// from the file stay nil, so partial configs are safe.
func LoadEvalConfig(path string) (*EvalConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEvalConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every set field. Unset fields are always valid.
func (c *EvalConfig) Validate() error {
	if c.Metric != nil {
		if _, err := survival.NewMetric(*c.Metric); err != nil {
			return err
		}
	}
	if c.Distribution != nil {
		if _, err := survival.ParseDistribution(*c.Distribution); err != nil {
			return err
		}
	}
	if c.Scale != nil {
		v, err := strconv.ParseFloat(*c.Scale, 64)
		if err != nil || !(v > 0) {
			return fmt.Errorf("aft_loss_distribution_scale must be a positive number, got %q", *c.Scale)
		}
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("unknown units %q (valid: %s)", *c.Units, units.GetValidUnitsString())
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.Split != nil {
		if _, err := dataset.ParseSplitMode(*c.Split); err != nil {
			return err
		}
	}
	if c.DialTimeout != nil && *c.DialTimeout != "" {
		if _, err := time.ParseDuration(*c.DialTimeout); err != nil {
			return fmt.Errorf("invalid dial_timeout '%s': %w", *c.DialTimeout, err)
		}
	}
	return nil
}

// GetMetric returns the metric name or the default.
func (c *EvalConfig) GetMetric() string {
	if c.Metric == nil {
		return survival.AFTNegLogLikName
	}
	return *c.Metric
}

// GetUnits returns the time unit or the default.
func (c *EvalConfig) GetUnits() string {
	if c.Units == nil {
		return units.Days
	}
	return *c.Units
}

// GetListenAddr returns the server listen address or the default.
func (c *EvalConfig) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetDBPath returns the run store path or the default.
func (c *EvalConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "survival.db"
	}
	return *c.DBPath
}

// GetWorkers returns the worker count or the default.
func (c *EvalConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetSplit returns the partition mode or the default.
func (c *EvalConfig) GetSplit() dataset.SplitMode {
	if c.Split == nil {
		return dataset.SplitNone
	}
	mode, err := dataset.ParseSplitMode(*c.Split)
	if err != nil {
		return dataset.SplitNone
	}
	return mode
}

// GetDialTimeout parses and returns the DialTimeout as a time.Duration.
func (c *EvalConfig) GetDialTimeout() time.Duration {
	if c.DialTimeout == nil || *c.DialTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.DialTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// MetricOptions renders the metric fields as the option map Configure
// accepts. Unset fields are omitted so metric defaults apply.
func (c *EvalConfig) MetricOptions() map[string]string {
	opts := make(map[string]string, 2)
	if c.Distribution != nil {
		opts[survival.OptDistribution] = *c.Distribution
	}
	if c.Scale != nil {
		opts[survival.OptScale] = *c.Scale
	}
	return opts
}

// AFTParams resolves the configured likelihood parameters, falling back to
// the metric defaults for unset fields.
func (c *EvalConfig) AFTParams() (survival.AFTParams, error) {
	return survival.AFTParamsFromOptions(c.MetricOptions())
}
