package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transactions != "./data/trans.json" {
		t.Fatalf("want=./data/trans.json result=%s", cfg.Transactions)
	}
	if cfg.PoolFee != 3000 {
		t.Fatalf("want=3000 result=%d", cfg.PoolFee)
	}
	if cfg.Amount0 != "1000000" || cfg.Amount1 != "290000000000000" {
		t.Fatalf("want=1000000,290000000000000 result=%s,%s", cfg.Amount0, cfg.Amount1)
	}
	if len(cfg.BaseThresholds) != 1 || cfg.BaseThresholds[0] != 3600 {
		t.Fatalf("want=[3600] result=%v", cfg.BaseThresholds)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("want=info result=%s", cfg.LogLevel)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VAULTSIM_POOL_FEE", "500")
	t.Setenv("VAULTSIM_BASE_THRESHOLDS", "600, 1200")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PoolFee != 500 {
		t.Fatalf("want=500 result=%d", cfg.PoolFee)
	}
	if len(cfg.BaseThresholds) != 2 || cfg.BaseThresholds[0] != 600 || cfg.BaseThresholds[1] != 1200 {
		t.Fatalf("want=[600 1200] result=%v", cfg.BaseThresholds)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"pool-fee": 100, "base-thresholds": [600, 1800], "pg-dsn": "postgres://sim"}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PoolFee != 100 {
		t.Fatalf("want=100 result=%d", cfg.PoolFee)
	}
	if len(cfg.BaseThresholds) != 2 || cfg.BaseThresholds[1] != 1800 {
		t.Fatalf("want=[600 1800] result=%v", cfg.BaseThresholds)
	}
	if cfg.PgDSN != "postgres://sim" {
		t.Fatalf("want=postgres://sim result=%s", cfg.PgDSN)
	}
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	t.Setenv("VAULTSIM_BASE_THRESHOLDS", "600, 12x")

	if _, err := Load("", nil); err == nil {
		t.Fatalf("want=error result=nil")
	}
}
