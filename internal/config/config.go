// Package config loads the formsummary YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"formsummary/internal/metrics/datadog"
)

// DefaultPath is used when --config is not given.
const DefaultPath = "formsummary.yaml"

// Config is the root configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Fields      FieldsConfig      `yaml:"fields"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Export      ExportConfig      `yaml:"export"`
	Display     DisplayConfig     `yaml:"display"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Preferences PreferencesConfig `yaml:"preferences"`
}

// StoreConfig selects the instance store backend.
type StoreConfig struct {
	// Kind is one of the registered store kinds: sqlite, postgres, mssql, dir.
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn,omitempty"`
	// Dir is the instances directory for kind "dir".
	Dir string `yaml:"dir,omitempty"`
	// DisplayNames maps form id to display name for stores without one.
	DisplayNames map[string]string `yaml:"display_names,omitempty"`
}

// FieldsConfig names the instance fields the pipeline reads.
type FieldsConfig struct {
	Date     string `yaml:"date"`
	Sum      string `yaml:"sum"`
	Distinct string `yaml:"distinct"`
	ListID   string `yaml:"list_id"`
	// Categorical are the fields offered as match filters, in display order.
	Categorical []string `yaml:"categorical"`
}

// CalendarConfig fixes the zone used for same-day comparison. Empty means
// the host's local zone.
type CalendarConfig struct {
	Timezone string `yaml:"timezone,omitempty"`
}

// ExportConfig controls where CSV files go.
type ExportConfig struct {
	Dir      string `yaml:"dir"`
	ShareDir string `yaml:"share_dir"`
	// Naming is the file name suffix policy; only "timestamp" is supported.
	Naming string `yaml:"naming"`
}

// DisplayConfig controls human-facing rendering.
type DisplayConfig struct {
	Language string `yaml:"language"`
}

// MetricsConfig selects a metrics backend.
type MetricsConfig struct {
	Backend    string   `yaml:"backend"`
	Tags       []string `yaml:"tags,omitempty"`
	FlushEvery string   `yaml:"flush_every,omitempty"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PreferencesConfig locates the persisted selection.
type PreferencesConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the configuration for a Collect payment form.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Kind: "sqlite",
			DSN:  "instances.db",
		},
		Fields: FieldsConfig{
			Date:        "end",
			Sum:         "montant",
			Distinct:    "hope_id_menage",
			ListID:      "hope_household_id",
			Categorical: []string{"fokontany", "commune"},
		},
		Export: ExportConfig{
			Dir:      "exports",
			ShareDir: filepath.Join(os.TempDir(), "formsummary", "share"),
			Naming:   "timestamp",
		},
		Display: DisplayConfig{Language: "fr"},
		Metrics: MetricsConfig{Backend: "none", FlushEvery: "60s"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Preferences: PreferencesConfig{
			Path: ".formsummary-prefs.yaml",
		},
	}
}

// Load reads path over DefaultConfig. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes c as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("FORMSUMMARY_STORE_KIND")); v != "" {
		c.Store.Kind = v
	}
	if v := os.Getenv("FORMSUMMARY_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("FORMSUMMARY_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("FORMSUMMARY_EXPORT_DIR"); v != "" {
		c.Export.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("METRICS_BACKEND")); v != "" {
		c.Metrics.Backend = v
	}
	if v := os.Getenv("METRICS_TAGS"); v != "" {
		c.Metrics.Tags = append(c.Metrics.Tags, datadog.ParseTagsCSV(v)...)
	}
}

// FlushInterval parses Metrics.FlushEvery; invalid or empty values give 0
// (the backend default).
func (c *Config) FlushInterval() time.Duration {
	d, err := time.ParseDuration(c.Metrics.FlushEvery)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
