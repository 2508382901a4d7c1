package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crmline/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL == "" {
		t.Fatalf("default base url missing")
	}
	if cfg.StatsTimeout() != 10*time.Second {
		t.Fatalf("unexpected stats timeout: %v", cfg.StatsTimeout())
	}
	if cfg.HistoryDelay() != time.Second {
		t.Fatalf("unexpected history delay: %v", cfg.HistoryDelay())
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	yml := "api:\n  base_url: http://crm.internal:9000\nworkflow:\n  stats_timeout_seconds: 3\n  history_delay_ms: 250\n"
	if err := os.WriteFile(filepath.Join(dir, "crm.yml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "http://crm.internal:9000" {
		t.Fatalf("unexpected base url: %q", cfg.API.BaseURL)
	}
	if cfg.StatsTimeout() != 3*time.Second || cfg.HistoryDelay() != 250*time.Millisecond {
		t.Fatalf("unexpected timings: %v %v", cfg.StatsTimeout(), cfg.HistoryDelay())
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("api:\n  base_url: http://crm.internal:9000\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Workflow.StatsTimeoutSeconds != 10 {
		t.Fatalf("partial file should keep default timeout, got %d", cfg.Workflow.StatsTimeoutSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []string{
		"api:\n  base_url: \"\"\n",
		"workflow:\n  stats_timeout_seconds: 0\n",
		"workflow:\n  history_delay_ms: -1\n",
		"api: [not a mapping\n",
	}
	for _, yml := range cases {
		if _, err := config.FromYAML([]byte(yml)); err == nil {
			t.Fatalf("expected error for %q", yml)
		}
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	out := config.GenerateDefault("http://127.0.0.1:8976")
	cfg, err := config.FromYAML([]byte(out))
	if err != nil {
		t.Fatalf("generated config should parse: %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:8976" {
		t.Fatalf("unexpected base url: %q", cfg.API.BaseURL)
	}
}
