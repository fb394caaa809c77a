package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MootConfig represents the top-level moot.yml configuration.
type MootConfig struct {
	Version   string          `yaml:"version"`
	Instance  string          `yaml:"instance"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Limits    *LimitsConfig   `yaml:"limits,omitempty"`
}

// RedisConfig specifies the blackboard's Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// ProviderConfig selects the reasoning backend.
type ProviderConfig struct {
	Kind      string `yaml:"kind"`  // "anthropic" or "openai"
	Model     string `yaml:"model"` // provider-specific model name
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// KnowledgeConfig specifies the retrieval index.
type KnowledgeConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// LimitsConfig bounds turn execution.
type LimitsConfig struct {
	StageTimeoutSeconds *int `yaml:"stage_timeout_seconds,omitempty"` // default 30
	MaxHops             *int `yaml:"max_hops,omitempty"`              // default 12
	AdminReplans        *int `yaml:"admin_replans,omitempty"`         // default 3
}

// Validate performs strict validation on the configuration and applies
// defaults for the optional limits section.
func (c *MootConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	switch c.Provider.Kind {
	case "anthropic", "openai":
	case "":
		return fmt.Errorf("provider.kind is required")
	default:
		return fmt.Errorf("invalid provider.kind: %s (must be 'anthropic' or 'openai')", c.Provider.Kind)
	}

	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}

	if c.Provider.APIKeyEnv == "" {
		switch c.Provider.Kind {
		case "anthropic":
			c.Provider.APIKeyEnv = "ANTHROPIC_API_KEY"
		case "openai":
			c.Provider.APIKeyEnv = "OPENAI_API_KEY"
		}
	}

	if c.Knowledge.Path == "" {
		return fmt.Errorf("knowledge.path is required")
	}

	if c.Limits == nil {
		c.Limits = &LimitsConfig{}
	}
	if c.Limits.StageTimeoutSeconds == nil {
		d := 30
		c.Limits.StageTimeoutSeconds = &d
	}
	if c.Limits.MaxHops == nil {
		d := 12
		c.Limits.MaxHops = &d
	}
	if c.Limits.AdminReplans == nil {
		d := 3
		c.Limits.AdminReplans = &d
	}

	if *c.Limits.StageTimeoutSeconds < 1 {
		return fmt.Errorf("limits.stage_timeout_seconds must be >= 1, got %d", *c.Limits.StageTimeoutSeconds)
	}
	if *c.Limits.MaxHops < 1 {
		return fmt.Errorf("limits.max_hops must be >= 1, got %d", *c.Limits.MaxHops)
	}
	if *c.Limits.AdminReplans < 1 {
		return fmt.Errorf("limits.admin_replans must be >= 1, got %d", *c.Limits.AdminReplans)
	}

	return nil
}

// StageTimeout returns the validated per-stage timeout as a duration.
func (c *MootConfig) StageTimeout() time.Duration {
	return time.Duration(*c.Limits.StageTimeoutSeconds) * time.Second
}

// APIKey resolves the provider API key from the configured environment
// variable.
func (c *MootConfig) APIKey() (string, error) {
	key := os.Getenv(c.Provider.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Provider.APIKeyEnv)
	}
	return key, nil
}

// Load reads and validates moot.yml from the specified path.
func Load(path string) (*MootConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config MootConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
