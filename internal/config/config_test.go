package config

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Tests: DefaultConfig
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BasePort != 7777 {
		t.Errorf("BasePort = %d, want 7777", cfg.BasePort)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.ReadyTimeout != 60*time.Second {
		t.Errorf("ReadyTimeout = %v, want 60s", cfg.ReadyTimeout)
	}
	if len(cfg.ReadyMarkers) == 0 {
		t.Error("ReadyMarkers is empty")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

// =============================================================================
// Table-Driven Tests: Validate
// =============================================================================

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Target = "/usr/bin/true"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // empty = valid
	}{
		{
			name:   "valid default",
			mutate: func(*Config) {},
		},
		{
			name:    "missing target",
			mutate:  func(c *Config) { c.Target = "" },
			wantErr: "target",
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.BasePort = 0 },
			wantErr: "base_port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.BasePort = 70000 },
			wantErr: "base_port",
		},
		{
			name: "pool enabled with zero size",
			mutate: func(c *Config) {
				c.UsePool = true
				c.PoolSize = 0
			},
			wantErr: "pool_size",
		},
		{
			name:    "zero ready timeout",
			mutate:  func(c *Config) { c.ReadyTimeout = 0 },
			wantErr: "ready_timeout",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: "max_retries",
		},
		{
			name:    "no ready markers",
			mutate:  func(c *Config) { c.ReadyMarkers = nil },
			wantErr: "ready_markers",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "log_format",
		},
		{
			name: "host metrics without interval",
			mutate: func(c *Config) {
				c.HostMetricsURL = "http://localhost:9100/metrics"
				c.HostScrapeInterval = 0
			},
			wantErr: "host_scrape_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = ""
	cfg.BasePort = 0
	cfg.LogFormat = "yaml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, field := range []string{"target", "base_port", "log_format"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("combined error missing %q: %v", field, err)
		}
	}
}
