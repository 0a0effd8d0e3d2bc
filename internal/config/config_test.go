package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "pumpwatch-1", cfg.General.InstanceID)
	assert.Equal(t, 2.0, cfg.Filters.MaxSingleBuy)
	assert.Equal(t, 18.0, cfg.Scoring.MinEntryScore)
	assert.Equal(t, 120.0, cfg.Exit.PartialTriggerPct)
	assert.Equal(t, 220.0, cfg.Exit.FullProfitPct)
	assert.Equal(t, 3.0, cfg.Kill.WhaleCeiling)
	assert.Equal(t, 10, cfg.Engine.EvalIntervalS)
	assert.Equal(t, 30, cfg.Engine.SweepIntervalS)
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
general:
  instance_id: pw-test
  log_level: debug
scoring:
  min_entry_score: 25
kill:
  whale_ceiling: 4.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pw-test", cfg.General.InstanceID)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, 25.0, cfg.Scoring.MinEntryScore)
	assert.Equal(t, 4.5, cfg.Kill.WhaleCeiling)

	// Untouched sections keep defaults.
	assert.Equal(t, 2.0, cfg.Filters.MaxSingleBuy)
	assert.Equal(t, 120, cfg.Exit.InactivityTimeoutS)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("PW_TEST_ENDPOINT", "wss://example.test/feed")
	path := writeConfig(t, `
feed:
  endpoint: ${PW_TEST_ENDPOINT}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test/feed", cfg.Feed.Endpoint)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "general: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{"partial at or above full profit", func(c *Config) { c.Exit.PartialTriggerPct = 220 }, "partial_trigger_pct"},
		{"partial fraction out of range", func(c *Config) { c.Exit.PartialFraction = 1.5 }, "partial_fraction"},
		{"spike ratio too low", func(c *Config) { c.Exit.SpikeRatio = 0.9 }, "spike_ratio"},
		{"inverted avg-buy band", func(c *Config) { c.Signals.MinAvgBuy = 0.9 }, "min_avg_buy"},
		{"inverted entry age window", func(c *Config) { c.Entry.MinEntryAgeMin = 15 }, "min_entry_age_min"},
		{"inverted valuation range", func(c *Config) { c.Entry.MinValuation = 60000 }, "min_valuation"},
		{"negative nominal size", func(c *Config) { c.Entry.NominalSize = -1 }, "nominal_size"},
		{"inactivity age past max age", func(c *Config) { c.Tracker.InactivityAgeMin = 25 }, "inactivity_age_min"},
		{"zero eval interval", func(c *Config) { c.Engine.EvalIntervalS = -1 }, "tick intervals"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errStr)
		})
	}
}
