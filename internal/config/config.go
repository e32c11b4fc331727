// Package config handles configuration loading for cascade. It supports
// XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for cascade.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits"`
}

// ProviderConfig selects and configures the backend adapter.
type ProviderConfig struct {
	// Name is the default provider (anthropic or bedrock).
	Name string `mapstructure:"name" yaml:"name"`
	// Model overrides the adapter's default model.
	Model string `mapstructure:"model" yaml:"model"`
	// APIKey is the Anthropic API key; ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// MaxTokens bounds each completion.
	MaxTokens int64 `mapstructure:"max_tokens" yaml:"max_tokens"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region" yaml:"aws_region,omitempty"`
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile,omitempty"`
}

// DefaultsConfig holds default task parameters.
type DefaultsConfig struct {
	// Agents is the default worker count.
	Agents int `mapstructure:"agents" yaml:"agents"`
	// Mode is the default execution mode.
	Mode string `mapstructure:"mode" yaml:"mode"`
	// BatchSize is the default hybrid batch width (0 = ceil(N/2)).
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// RetryConfig holds the per-assignment retry policy.
type RetryConfig struct {
	// MaxAttempts is the attempt ceiling per assignment.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	// MaxDelay caps the backoff.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// LimitsConfig holds resource bounds.
type LimitsConfig struct {
	// PoolSize is the hard concurrency ceiling shared by all sessions.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`
	// TierTimeout bounds a whole tier in parallel and hybrid modes.
	TierTimeout time.Duration `mapstructure:"tier_timeout" yaml:"tier_timeout"`
	// CarryBudget caps carry-forward context bytes.
	CarryBudget int `mapstructure:"carry_budget" yaml:"carry_budget"`
}

// setDefaults registers built-in defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.max_tokens", 8192)
	v.SetDefault("defaults.agents", 4)
	v.SetDefault("defaults.mode", "parallel")
	v.SetDefault("defaults.batch_size", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.call_timeout", 2*time.Minute)
	v.SetDefault("limits.pool_size", 16)
	v.SetDefault("limits.tier_timeout", 10*time.Minute)
	v.SetDefault("limits.carry_budget", 32*1024)
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest first): environment,
// project config (.cascade.yaml up the tree), user config
// (~/.config/cascade/config.yaml), built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CASCADE")
	v.BindEnv("provider.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = expandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = expandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// getUserConfigDir returns the XDG config directory for cascade.
func getUserConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "cascade")
}

// findProjectConfig walks up from the working directory looking for
// .cascade.yaml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".cascade.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

var envRefPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} references with environment values.
func expandEnv(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envRefPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
