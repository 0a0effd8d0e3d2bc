package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for pumpwatch.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Feed    FeedConfig    `yaml:"feed"`
	Tracker TrackerConfig `yaml:"tracker"`
	Filters FiltersConfig `yaml:"filters"`
	Signals SignalsConfig `yaml:"signals"`
	Scoring ScoringConfig `yaml:"scoring"`
	Entry   EntryConfig   `yaml:"entry"`
	Exit    ExitConfig    `yaml:"exit"`
	Kill    KillConfig    `yaml:"kill"`
	Engine  EngineConfig  `yaml:"engine"`
	Journal JournalConfig `yaml:"journal"`
	Status  StatusConfig  `yaml:"status"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|text
}

type FeedConfig struct {
	Endpoint         string `yaml:"endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	MaxReconnects    int    `yaml:"max_reconnects"`
	UseStub          bool   `yaml:"use_stub"` // synthetic feed for dry runs
	StubSeed         int64  `yaml:"stub_seed"`
}

type TrackerConfig struct {
	MaxAgeMin        int `yaml:"max_age_min"`
	InactivityAgeMin int `yaml:"inactivity_age_min"`
	MinUniqueBuyers  int `yaml:"min_unique_buyers"`
}

type FiltersConfig struct {
	MaxSingleBuy     float64 `yaml:"max_single_buy"`
	MaxAvgBuy        float64 `yaml:"max_avg_buy"`
	MinAvgBuy        float64 `yaml:"min_avg_buy"`
	MaxBuySizeStd    float64 `yaml:"max_buy_size_std"`
	MaxDevBuys       int     `yaml:"max_dev_buys"`
	MaxMetadataEdits int     `yaml:"max_metadata_edits"`
}

type SignalsConfig struct {
	MinUniqueBuyers int     `yaml:"min_unique_buyers"`
	MaxMeanInterval float64 `yaml:"max_mean_interval"`
	MinAvgBuy       float64 `yaml:"min_avg_buy"`
	MaxAvgBuy       float64 `yaml:"max_avg_buy"`
	LowVarianceStd  float64 `yaml:"low_variance_std"`
	MaxLargestBuy   float64 `yaml:"max_largest_buy"`
	MinTx60s        int     `yaml:"min_tx_60s"`
}

type ScoringConfig struct {
	WeightBuyers       float64 `yaml:"weight_buyers"`
	WeightAcceleration float64 `yaml:"weight_acceleration"`
	WeightRepeatBuyers float64 `yaml:"weight_repeat_buyers"`
	LargeBuyCutoff     float64 `yaml:"large_buy_cutoff"`
	PenaltyLargeBuy    float64 `yaml:"penalty_large_buy"`
	PenaltyNoActivity  float64 `yaml:"penalty_no_activity"`
	MinEntryScore      float64 `yaml:"min_entry_score"`
}

type EntryConfig struct {
	NominalSize         float64 `yaml:"nominal_size"`
	MinEntryAgeMin      int     `yaml:"min_entry_age_min"`
	MaxEntryAgeMin      int     `yaml:"max_entry_age_min"`
	MinValuation        float64 `yaml:"min_valuation"`
	MaxValuation        float64 `yaml:"max_valuation"`
	ValuationMultiplier float64 `yaml:"valuation_multiplier"`
}

type ExitConfig struct {
	PartialTriggerPct  float64 `yaml:"partial_trigger_pct"`
	PartialFraction    float64 `yaml:"partial_fraction"`
	FullProfitPct      float64 `yaml:"full_profit_pct"`
	InactivityTimeoutS int     `yaml:"inactivity_timeout_s"`
	DecreaseLimit      int     `yaml:"decrease_limit"`
	SpikeRatio         float64 `yaml:"spike_ratio"`
}

type KillConfig struct {
	InactivityTimeoutS int     `yaml:"inactivity_timeout_s"`
	WhaleCeiling       float64 `yaml:"whale_ceiling"`
}

type EngineConfig struct {
	EvalIntervalS  int `yaml:"eval_interval_s"`
	SweepIntervalS int `yaml:"sweep_interval_s"`
}

type JournalConfig struct {
	Path      string `yaml:"path"`
	MaxBuffer int    `yaml:"max_buffer"`
}

type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration with every default applied, for runs
// without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "pumpwatch-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Feed.Endpoint == "" {
		cfg.Feed.Endpoint = "wss://pumpportal.fun/api/data"
	}
	if cfg.Feed.ReconnectDelayMs == 0 {
		cfg.Feed.ReconnectDelayMs = 1000
	}
	if cfg.Feed.PingIntervalS == 0 {
		cfg.Feed.PingIntervalS = 20
	}
	if cfg.Tracker.MaxAgeMin == 0 {
		cfg.Tracker.MaxAgeMin = 20
	}
	if cfg.Tracker.InactivityAgeMin == 0 {
		cfg.Tracker.InactivityAgeMin = 5
	}
	if cfg.Tracker.MinUniqueBuyers == 0 {
		cfg.Tracker.MinUniqueBuyers = 2
	}
	if cfg.Filters.MaxSingleBuy == 0 {
		cfg.Filters.MaxSingleBuy = 2.0
	}
	if cfg.Filters.MaxAvgBuy == 0 {
		cfg.Filters.MaxAvgBuy = 1.0
	}
	if cfg.Filters.MinAvgBuy == 0 {
		cfg.Filters.MinAvgBuy = 0.01
	}
	if cfg.Filters.MaxBuySizeStd == 0 {
		cfg.Filters.MaxBuySizeStd = 0.5
	}
	if cfg.Filters.MaxDevBuys == 0 {
		cfg.Filters.MaxDevBuys = 1
	}
	if cfg.Filters.MaxMetadataEdits == 0 {
		cfg.Filters.MaxMetadataEdits = 1
	}
	if cfg.Signals.MinUniqueBuyers == 0 {
		cfg.Signals.MinUniqueBuyers = 5
	}
	if cfg.Signals.MaxMeanInterval == 0 {
		cfg.Signals.MaxMeanInterval = 20.0
	}
	if cfg.Signals.MinAvgBuy == 0 {
		cfg.Signals.MinAvgBuy = 0.05
	}
	if cfg.Signals.MaxAvgBuy == 0 {
		cfg.Signals.MaxAvgBuy = 0.8
	}
	if cfg.Signals.LowVarianceStd == 0 {
		cfg.Signals.LowVarianceStd = 0.3
	}
	if cfg.Signals.MaxLargestBuy == 0 {
		cfg.Signals.MaxLargestBuy = 1.5
	}
	if cfg.Signals.MinTx60s == 0 {
		cfg.Signals.MinTx60s = 4
	}
	if cfg.Scoring.WeightBuyers == 0 {
		cfg.Scoring.WeightBuyers = 2.0
	}
	if cfg.Scoring.WeightAcceleration == 0 {
		cfg.Scoring.WeightAcceleration = 3.0
	}
	if cfg.Scoring.WeightRepeatBuyers == 0 {
		cfg.Scoring.WeightRepeatBuyers = 1.5
	}
	if cfg.Scoring.LargeBuyCutoff == 0 {
		cfg.Scoring.LargeBuyCutoff = 1.0
	}
	if cfg.Scoring.PenaltyLargeBuy == 0 {
		cfg.Scoring.PenaltyLargeBuy = 10.0
	}
	if cfg.Scoring.PenaltyNoActivity == 0 {
		cfg.Scoring.PenaltyNoActivity = 5.0
	}
	if cfg.Scoring.MinEntryScore == 0 {
		cfg.Scoring.MinEntryScore = 18.0
	}
	if cfg.Entry.NominalSize == 0 {
		cfg.Entry.NominalSize = 1.0
	}
	if cfg.Entry.MinEntryAgeMin == 0 {
		cfg.Entry.MinEntryAgeMin = 2
	}
	if cfg.Entry.MaxEntryAgeMin == 0 {
		cfg.Entry.MaxEntryAgeMin = 12
	}
	if cfg.Entry.MinValuation == 0 {
		cfg.Entry.MinValuation = 100
	}
	if cfg.Entry.MaxValuation == 0 {
		cfg.Entry.MaxValuation = 50000
	}
	if cfg.Entry.ValuationMultiplier == 0 {
		cfg.Entry.ValuationMultiplier = 1000
	}
	if cfg.Exit.PartialTriggerPct == 0 {
		cfg.Exit.PartialTriggerPct = 120
	}
	if cfg.Exit.PartialFraction == 0 {
		cfg.Exit.PartialFraction = 0.5
	}
	if cfg.Exit.FullProfitPct == 0 {
		cfg.Exit.FullProfitPct = 220
	}
	if cfg.Exit.InactivityTimeoutS == 0 {
		cfg.Exit.InactivityTimeoutS = 120
	}
	if cfg.Exit.DecreaseLimit == 0 {
		cfg.Exit.DecreaseLimit = 2
	}
	if cfg.Exit.SpikeRatio == 0 {
		cfg.Exit.SpikeRatio = 1.5
	}
	if cfg.Kill.InactivityTimeoutS == 0 {
		cfg.Kill.InactivityTimeoutS = 60
	}
	if cfg.Kill.WhaleCeiling == 0 {
		cfg.Kill.WhaleCeiling = 3.0
	}
	if cfg.Engine.EvalIntervalS == 0 {
		cfg.Engine.EvalIntervalS = 10
	}
	if cfg.Engine.SweepIntervalS == 0 {
		cfg.Engine.SweepIntervalS = 30
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "pumpwatch-journal.jsonl"
	}
	if cfg.Journal.MaxBuffer == 0 {
		cfg.Journal.MaxBuffer = 4096
	}
	if cfg.Status.Addr == "" {
		cfg.Status.Addr = ":8090"
	}
}

// Validate rejects configurations that would make the decision rules
// incoherent. Called once at startup; a failure is fatal.
func (c *Config) Validate() error {
	if c.Exit.PartialTriggerPct >= c.Exit.FullProfitPct {
		return fmt.Errorf("exit: partial_trigger_pct %.1f must be below full_profit_pct %.1f",
			c.Exit.PartialTriggerPct, c.Exit.FullProfitPct)
	}
	if c.Exit.PartialFraction <= 0 || c.Exit.PartialFraction >= 1 {
		return fmt.Errorf("exit: partial_fraction %.2f must be in (0, 1)", c.Exit.PartialFraction)
	}
	if c.Exit.SpikeRatio <= 1 {
		return fmt.Errorf("exit: spike_ratio %.2f must exceed 1", c.Exit.SpikeRatio)
	}
	if c.Exit.InactivityTimeoutS <= 0 || c.Kill.InactivityTimeoutS <= 0 {
		return fmt.Errorf("inactivity timeouts must be positive")
	}
	if c.Signals.MinAvgBuy >= c.Signals.MaxAvgBuy {
		return fmt.Errorf("signals: min_avg_buy %.3f must be below max_avg_buy %.3f",
			c.Signals.MinAvgBuy, c.Signals.MaxAvgBuy)
	}
	if c.Entry.MinEntryAgeMin >= c.Entry.MaxEntryAgeMin {
		return fmt.Errorf("entry: min_entry_age_min %d must be below max_entry_age_min %d",
			c.Entry.MinEntryAgeMin, c.Entry.MaxEntryAgeMin)
	}
	if c.Entry.MinValuation >= c.Entry.MaxValuation {
		return fmt.Errorf("entry: min_valuation %.0f must be below max_valuation %.0f",
			c.Entry.MinValuation, c.Entry.MaxValuation)
	}
	if c.Entry.NominalSize <= 0 {
		return fmt.Errorf("entry: nominal_size must be positive")
	}
	if c.Tracker.InactivityAgeMin >= c.Tracker.MaxAgeMin {
		return fmt.Errorf("tracker: inactivity_age_min %d must be below max_age_min %d",
			c.Tracker.InactivityAgeMin, c.Tracker.MaxAgeMin)
	}
	if c.Engine.EvalIntervalS <= 0 || c.Engine.SweepIntervalS <= 0 {
		return fmt.Errorf("engine: tick intervals must be positive")
	}
	return nil
}
