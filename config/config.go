// Package config loads and validates the forecast configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"covidforecast/datasource"
	"covidforecast/logger"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "config.json"

// Config is the whole configuration file.
type Config struct {
	Models      []ModelConfig           `json:"models" yaml:"models"`
	DatasetsDir string                  `json:"datasets_dir" yaml:"datasets_dir"`
	PlotsDir    string                  `json:"plots_dir" yaml:"plots_dir"`
	ShowPlot    *bool                   `json:"show_plot" yaml:"show_plot"`
	Sources     map[string]SourceConfig `json:"sources" yaml:"sources"`
	Log         LogConfig               `json:"log" yaml:"log"`
	Database    DatabaseConfig          `json:"database" yaml:"database"`
}

// SourceConfig overrides where a data source is fetched from.
type SourceConfig struct {
	URL      string `json:"url" yaml:"url"`
	Location string `json:"location" yaml:"location"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// Options converts the log section for logger.Init.
func (l LogConfig) Options() logger.Options {
	return logger.Options{
		Level:      l.Level,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// DatabaseConfig enables the sqlite run history when Path is set.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// ModelConfig is one entry of the models list.
type ModelConfig struct {
	ModelName          string    `json:"model_name" yaml:"model_name"`
	Model              ModelSpec `json:"model" yaml:"model"`
	DaysToPredict      int       `json:"days_to_predict" yaml:"days_to_predict"`
	DataGrabberClass   string    `json:"datagrabber_class" yaml:"datagrabber_class"`
	GrabDataFromServer bool      `json:"grab_data_from_server" yaml:"grab_data_from_server"`
	OfflineDatasetDate string    `json:"offline_dataset_date" yaml:"offline_dataset_date"`
	Enabled            *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the entry runs. Only an explicit false disables it.
func (m ModelConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Source resolves the configured data grabber.
func (m ModelConfig) Source() (datasource.Source, error) {
	return datasource.ParseSource(m.DataGrabberClass)
}

// Validate checks a single model entry.
func (m ModelConfig) Validate() error {
	if strings.TrimSpace(m.ModelName) == "" {
		return fmt.Errorf("model_name is required")
	}
	if m.DaysToPredict < 0 {
		return fmt.Errorf("days_to_predict must be non-negative, got %d", m.DaysToPredict)
	}
	if _, err := m.Source(); err != nil {
		return fmt.Errorf("datagrabber_class: %w", err)
	}
	if err := m.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	return nil
}

// PlotWindow reports whether rendered plots are opened in a viewer.
func (c *Config) PlotWindow() bool {
	return c.ShowPlot == nil || *c.ShowPlot
}

// GrabberOptions converts the sources section into per-source options.
func (c *Config) GrabberOptions() (map[datasource.Source]datasource.Options, error) {
	overrides := make(map[datasource.Source]datasource.Options, len(c.Sources))
	for name, sc := range c.Sources {
		source, err := datasource.ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("sources: %w", err)
		}
		overrides[source] = datasource.Options{URL: sc.URL, Location: sc.Location}
	}
	return overrides, nil
}

func (c *Config) applyDefaults() {
	if c.DatasetsDir == "" {
		c.DatasetsDir = datasource.DefaultDir
	}
	if c.PlotsDir == "" {
		c.PlotsDir = "plots"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
}

// Validate checks the file as a whole. Model entries are checked one at a
// time when they run, so a broken entry does not hold back the ones before
// it.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("no models configured")
	}
	if _, err := c.GrabberOptions(); err != nil {
		return err
	}
	return nil
}

// ValidateModel checks the entry at index i.
func (c *Config) ValidateModel(i int) error {
	m := c.Models[i]
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid model config at index %d (%s): %w", i, m.ModelName, err)
	}
	return nil
}

// Load reads path as YAML when it has a .yaml or .yml extension and as JSON
// otherwise, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format implied by ext.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
