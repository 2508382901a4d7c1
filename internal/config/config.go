package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models crm.yml.
type Config struct {
	API struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"api"`
	Workflow struct {
		// StatsTimeoutSeconds bounds a single campaign stats fetch.
		StatsTimeoutSeconds int `yaml:"stats_timeout_seconds"`
		// HistoryDelayMillis is the wait before re-listing campaigns after a
		// submit, tolerating backend eventual consistency.
		HistoryDelayMillis int `yaml:"history_delay_ms"`
	} `yaml:"workflow"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crm.yml")
}

// Load reads and validates config from the workspace; the default config is
// returned when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	if c.Workflow.StatsTimeoutSeconds <= 0 {
		return fmt.Errorf("config.workflow.stats_timeout_seconds must be positive")
	}
	if c.Workflow.HistoryDelayMillis < 0 {
		return fmt.Errorf("config.workflow.history_delay_ms must not be negative")
	}
	return nil
}

// Default returns the default configuration.
func Default() *Config {
	var cfg Config
	cfg.API.BaseURL = "http://127.0.0.1:8976"
	cfg.Workflow.StatsTimeoutSeconds = 10
	cfg.Workflow.HistoryDelayMillis = 1000
	return &cfg
}

// StatsTimeout returns the stats fetch bound as a duration.
func (c *Config) StatsTimeout() time.Duration {
	return time.Duration(c.Workflow.StatsTimeoutSeconds) * time.Second
}

// HistoryDelay returns the post-submit refresh delay as a duration.
func (c *Config) HistoryDelay() time.Duration {
	return time.Duration(c.Workflow.HistoryDelayMillis) * time.Millisecond
}

// GenerateDefault returns default config YAML for `crm init`-style setup.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

const defaultTemplate = `api:
  base_url: %s

workflow:
  stats_timeout_seconds: 10
  history_delay_ms: 1000
`
