package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPathDefaults(t *testing.T) {
	cfg, err := LoadFromPath(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider.name = %q, want anthropic", cfg.Provider.Name)
	}
	if cfg.Provider.MaxTokens != 8192 {
		t.Errorf("provider.max_tokens = %d, want 8192", cfg.Provider.MaxTokens)
	}
	if cfg.Defaults.Agents != 4 {
		t.Errorf("defaults.agents = %d, want 4", cfg.Defaults.Agents)
	}
	if cfg.Defaults.Mode != "parallel" {
		t.Errorf("defaults.mode = %q, want parallel", cfg.Defaults.Mode)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry.max_attempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != time.Second {
		t.Errorf("retry.initial_delay = %s, want 1s", cfg.Retry.InitialDelay)
	}
	if cfg.Limits.PoolSize != 16 {
		t.Errorf("limits.pool_size = %d, want 16", cfg.Limits.PoolSize)
	}
	if cfg.Limits.TierTimeout != 10*time.Minute {
		t.Errorf("limits.tier_timeout = %s, want 10m", cfg.Limits.TierTimeout)
	}
}

func TestLoadFromPathOverrides(t *testing.T) {
	cfg, err := LoadFromPath(writeConfig(t, `
provider:
  name: bedrock
  model: claude-sonnet-4
  aws_region: us-west-2
defaults:
  agents: 8
  mode: hybrid
  batch_size: 3
retry:
  max_attempts: 5
  initial_delay: 2s
  call_timeout: 90s
limits:
  pool_size: 12
  tier_timeout: 5m
  carry_budget: 16384
`))
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Provider.Name != "bedrock" || cfg.Provider.AWSRegion != "us-west-2" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Defaults.Agents != 8 || cfg.Defaults.Mode != "hybrid" || cfg.Defaults.BatchSize != 3 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.InitialDelay != 2*time.Second || cfg.Retry.CallTimeout != 90*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Limits.PoolSize != 12 || cfg.Limits.TierTimeout != 5*time.Minute || cfg.Limits.CarryBudget != 16384 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	// Unset keys keep their defaults.
	if cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("retry.max_delay = %s, want default 30s", cfg.Retry.MaxDelay)
	}
}

func TestLoadFromPathExpandsEnvRefs(t *testing.T) {
	t.Setenv("CASCADE_TEST_KEY", "sk-from-env")

	cfg, err := LoadFromPath(writeConfig(t, "provider:\n  api_key: ${CASCADE_TEST_KEY}\n"))
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Provider.APIKey)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CASCADE_A", "alpha")
	t.Setenv("CASCADE_B", "beta")

	tests := []struct {
		in   string
		want string
	}{
		{"${CASCADE_A}", "alpha"},
		{"pre-${CASCADE_A}-post", "pre-alpha-post"},
		{"${CASCADE_A}/${CASCADE_B}", "alpha/beta"},
		{"no refs here", "no refs here"},
		{"${CASCADE_UNSET_VAR}", ""},
	}
	for _, tt := range tests {
		if got := expandEnv(tt.in); got != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
