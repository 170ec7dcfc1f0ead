// Package config loads the YAML application configuration and applies
// environment variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for vquant.
type Config struct {
	Storage  Storage      `yaml:"storage"`
	Alpaca   Alpaca       `yaml:"alpaca"`
	Logging  Logging      `yaml:"logging"`
	Backtest Backtest     `yaml:"backtest"`
	Risk     Risk         `yaml:"risk"`
	Gather   GatherConfig `yaml:"gather"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest defines simulation capital and friction parameters.
type Backtest struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionRate float64 `yaml:"commission_rate"`
	MinCommission  float64 `yaml:"min_commission"`
	StampDutyRate  float64 `yaml:"stamp_duty_rate"`
	Slippage       float64 `yaml:"slippage"`
	LotSize        int64   `yaml:"lot_size"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	Benchmark      string  `yaml:"benchmark"`
}

// Risk defines the guardrail thresholds, all fractions.
type Risk struct {
	MaxPositionRatio    float64 `yaml:"max_position_ratio"`
	MaxSingleStockRatio float64 `yaml:"max_single_stock_ratio"`
	MaxDailyLossRatio   float64 `yaml:"max_daily_loss_ratio"`
	MaxDrawdownRatio    float64 `yaml:"max_drawdown_ratio"`
	StopLossRatio       float64 `yaml:"stop_loss_ratio"`
	TakeProfitRatio     float64 `yaml:"take_profit_ratio"`
}

// GatherConfig holds parameters for the daily bar gathering job.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
