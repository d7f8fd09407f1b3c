package textclass

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ModelLimits holds the per-minute and per-day caps for one model.
// A zero value means that limit is unbounded.
type ModelLimits struct {
	TokensPerMinute   int64 `yaml:"tokens_per_minute"`
	RequestsPerMinute int64 `yaml:"requests_per_minute"`
	TokensPerDay      int64 `yaml:"tokens_per_day"`
	RequestsPerDay    int64 `yaml:"requests_per_day"`
}

// ModelPricing holds the dollar cost per 1000 tokens for one model.
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// ModelConfig bundles the limits and pricing for one model.
type ModelConfig struct {
	Limits  ModelLimits  `yaml:"limits"`
	Pricing ModelPricing `yaml:"pricing"`
}

// Config is the top-level engine configuration.
type Config struct {
	DefaultModel string `yaml:"default_model"`
	Concurrency  int    `yaml:"concurrency"`

	// DailySpendCap is the per-caller daily spending cap in dollars.
	// Nil falls back to the default; an explicit zero disables the cap.
	DailySpendCap *float64 `yaml:"daily_spend_cap"`

	Models map[string]ModelConfig `yaml:"models"`
}

// DefaultConfig returns the built-in model limit and pricing tables.
func DefaultConfig() Config {
	return Config{
		DefaultModel:  "gpt-4o-mini",
		Concurrency:   5,
		DailySpendCap: Float64Ptr(0.5),
		Models: map[string]ModelConfig{
			"gpt-4o": {
				Limits:  ModelLimits{TokensPerMinute: 30000, RequestsPerMinute: 500, TokensPerDay: 90000},
				Pricing: ModelPricing{InputPer1K: 0.00250, OutputPer1K: 0.01000},
			},
			"gpt-4o-mini": {
				Limits:  ModelLimits{TokensPerMinute: 200000, RequestsPerMinute: 500, TokensPerDay: 2000000, RequestsPerDay: 10000},
				Pricing: ModelPricing{InputPer1K: 0.000150, OutputPer1K: 0.000600},
			},
			"gpt-3.5-turbo": {
				Limits: ModelLimits{TokensPerMinute: 200000, RequestsPerMinute: 500, TokensPerDay: 2000000, RequestsPerDay: 10000},
			},
			"gpt-4": {
				Limits:  ModelLimits{TokensPerMinute: 10000, RequestsPerMinute: 500, TokensPerDay: 100000, RequestsPerDay: 10000},
				Pricing: ModelPricing{InputPer1K: 0.0300, OutputPer1K: 0.0600},
			},
			"gpt-4-turbo": {
				Limits:  ModelLimits{TokensPerMinute: 30000, RequestsPerMinute: 500, TokensPerDay: 90000},
				Pricing: ModelPricing{InputPer1K: 0.0100, OutputPer1K: 0.0300},
			},
		},
	}
}

// LoadConfig reads and parses a YAML config file. A .env file is loaded
// first when present, and ${VAR} references in the YAML are expanded
// before parsing. Fields left unset fall back to DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("textclass: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("textclass: parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DefaultModel == "" {
		c.DefaultModel = def.DefaultModel
	}
	if c.Concurrency == 0 {
		c.Concurrency = def.Concurrency
	}
	if c.DailySpendCap == nil {
		c.DailySpendCap = def.DailySpendCap
	}
	if len(c.Models) == 0 {
		c.Models = def.Models
	}
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("textclass: config: concurrency must be positive")
	}
	if c.DailySpendCap != nil && *c.DailySpendCap < 0 {
		return fmt.Errorf("textclass: config: daily_spend_cap must not be negative")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("textclass: config: at least one model is required")
	}
	for name, m := range c.Models {
		if name == "" {
			return fmt.Errorf("textclass: config: model name must not be empty")
		}
		if m.Limits.TokensPerMinute < 0 || m.Limits.RequestsPerMinute < 0 ||
			m.Limits.TokensPerDay < 0 || m.Limits.RequestsPerDay < 0 {
			return fmt.Errorf("textclass: config: model %q: limits must not be negative", name)
		}
		if m.Pricing.InputPer1K < 0 || m.Pricing.OutputPer1K < 0 {
			return fmt.Errorf("textclass: config: model %q: pricing must not be negative", name)
		}
	}
	if c.DefaultModel != "" {
		if _, ok := c.Models[c.DefaultModel]; !ok {
			return fmt.Errorf("textclass: config: default_model %q has no model entry", c.DefaultModel)
		}
	}
	return nil
}
