package textclass

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	assert.Equal(t, 5, cfg.Concurrency)
	require.NotNil(t, cfg.DailySpendCap)
	assert.Equal(t, 0.5, *cfg.DailySpendCap)

	mini, ok := cfg.Models["gpt-4o-mini"]
	require.True(t, ok)
	assert.Equal(t, int64(200000), mini.Limits.TokensPerMinute)
	assert.Equal(t, int64(10000), mini.Limits.RequestsPerDay)
	assert.Equal(t, 0.000150, mini.Pricing.InputPer1K)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
default_model: claude-lite
concurrency: 8
daily_spend_cap: 2.5
models:
  claude-lite:
    limits:
      tokens_per_minute: 50000
      requests_per_minute: 100
    pricing:
      input_per_1k: 0.0008
      output_per_1k: 0.0040
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-lite", cfg.DefaultModel)
	assert.Equal(t, 8, cfg.Concurrency)
	require.NotNil(t, cfg.DailySpendCap)
	assert.Equal(t, 2.5, *cfg.DailySpendCap)

	mc, ok := cfg.Models["claude-lite"]
	require.True(t, ok)
	assert.Equal(t, int64(50000), mc.Limits.TokensPerMinute)
	assert.Zero(t, mc.Limits.TokensPerDay, "omitted limits read as unbounded")
	assert.Equal(t, 0.004, mc.Pricing.OutputPer1K)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("concurrency: 3\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel, "unset fields fall back to defaults")
	require.NotNil(t, cfg.DailySpendCap)
	assert.Equal(t, 0.5, *cfg.DailySpendCap)
	assert.NotEmpty(t, cfg.Models)
}

func TestLoadConfigZeroCapIsPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	// An explicit zero disables the cap; defaulting must not rewrite it.
	require.NoError(t, os.WriteFile(path, []byte("daily_spend_cap: 0\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.DailySpendCap)
	assert.Zero(t, *cfg.DailySpendCap)
}

func TestApplyDefaultsKeepsExplicitZeroCap(t *testing.T) {
	cfg := Config{DailySpendCap: Float64Ptr(0)}
	cfg.applyDefaults()
	require.NotNil(t, cfg.DailySpendCap)
	assert.Zero(t, *cfg.DailySpendCap)

	unset := Config{}
	unset.applyDefaults()
	require.NotNil(t, unset.DailySpendCap)
	assert.Equal(t, 0.5, *unset.DailySpendCap)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DEFAULT_MODEL", "gpt-4o")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_model: ${TEST_DEFAULT_MODEL}\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DefaultModel:  "m",
			Concurrency:   2,
			DailySpendCap: Float64Ptr(1),
			Models:        map[string]ModelConfig{"m": {}},
		}
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("non-positive concurrency", func(t *testing.T) {
		cfg := base()
		cfg.Concurrency = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("negative cap", func(t *testing.T) {
		cfg := base()
		cfg.DailySpendCap = Float64Ptr(-1)
		require.Error(t, cfg.Validate())
	})

	t.Run("zero cap is valid", func(t *testing.T) {
		cfg := base()
		cfg.DailySpendCap = Float64Ptr(0)
		require.NoError(t, cfg.Validate())
	})

	t.Run("no models", func(t *testing.T) {
		cfg := base()
		cfg.Models = nil
		require.Error(t, cfg.Validate())
	})

	t.Run("negative limits", func(t *testing.T) {
		cfg := base()
		cfg.Models["m"] = ModelConfig{Limits: ModelLimits{TokensPerMinute: -1}}
		require.Error(t, cfg.Validate())
	})

	t.Run("unknown default model", func(t *testing.T) {
		cfg := base()
		cfg.DefaultModel = "missing"
		require.Error(t, cfg.Validate())
	})
}
