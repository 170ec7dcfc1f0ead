package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Create a temporary YAML config file.
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/vquant/data"
  sqlite_path: "/tmp/vquant/vquant.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
logging:
  level: "info"
  format: "json"
backtest:
  initial_capital: 1000000
  commission_rate: 0.0003
  min_commission: 5
  stamp_duty_rate: 0.001
  slippage: 0.001
  lot_size: 100
  risk_free_rate: 0.03
  benchmark: "SPY"
risk:
  max_position_ratio: 0.95
  max_single_stock_ratio: 0.3
  max_daily_loss_ratio: 0.05
  max_drawdown_ratio: 0.2
  stop_loss_ratio: 0.08
  take_profit_ratio: 0.2
gather:
  symbols: ["AAPL", "MSFT"]
  start_date: "2020-01-01"
  batch_size: 200
  rate_limit_per_min: 200
`)

	tmpFile, err := os.CreateTemp("", "vquant-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	// Clear any environment overrides that might interfere.
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("ALPACA_API_SECRET")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	os.Unsetenv("DATA_DIR")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/vquant/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/vquant/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/vquant/vquant.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/vquant/vquant.db")
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.APISecret != "test-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q", cfg.Alpaca.APISecret, "test-secret")
	}

	// -- Logging --
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	// -- Backtest --
	if cfg.Backtest.InitialCapital != 1000000 {
		t.Errorf("Backtest.InitialCapital = %f, want %f", cfg.Backtest.InitialCapital, 1000000.0)
	}
	if cfg.Backtest.CommissionRate != 0.0003 {
		t.Errorf("Backtest.CommissionRate = %f, want %f", cfg.Backtest.CommissionRate, 0.0003)
	}
	if cfg.Backtest.LotSize != 100 {
		t.Errorf("Backtest.LotSize = %d, want %d", cfg.Backtest.LotSize, 100)
	}
	if cfg.Backtest.Benchmark != "SPY" {
		t.Errorf("Backtest.Benchmark = %q, want %q", cfg.Backtest.Benchmark, "SPY")
	}

	// -- Risk --
	if cfg.Risk.MaxPositionRatio != 0.95 {
		t.Errorf("Risk.MaxPositionRatio = %f, want %f", cfg.Risk.MaxPositionRatio, 0.95)
	}
	if cfg.Risk.StopLossRatio != 0.08 {
		t.Errorf("Risk.StopLossRatio = %f, want %f", cfg.Risk.StopLossRatio, 0.08)
	}

	// -- Gather --
	if len(cfg.Gather.Symbols) != 2 || cfg.Gather.Symbols[0] != "AAPL" {
		t.Errorf("Gather.Symbols = %v, want [AAPL MSFT]", cfg.Gather.Symbols)
	}
	if cfg.Gather.BatchSize != 200 {
		t.Errorf("Gather.BatchSize = %d, want %d", cfg.Gather.BatchSize, 200)
	}
	if cfg.Gather.StartDate != "2020-01-01" {
		t.Errorf("Gather.StartDate = %q, want %q", cfg.Gather.StartDate, "2020-01-01")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	tmpFile, err := os.CreateTemp("", "vquant-config-env-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	// Set environment overrides.
	os.Setenv("ALPACA_API_KEY", "env-key")
	os.Setenv("DATA_DIR", "/env/data")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	defer os.Unsetenv("ALPACA_API_KEY")
	defer os.Unsetenv("DATA_DIR")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
}
