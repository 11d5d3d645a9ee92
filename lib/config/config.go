package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
// Amounts are decimal strings and parsed by the caller.
type Config struct {
	Transactions     string
	Results          string
	OutDir           string
	PgDSN            string
	RunID            string
	Token0           string
	Token1           string
	PoolFee          int
	SqrtPriceX96     string
	StartTime        int
	SnapshotInterval int
	Amount0          string
	Amount1          string
	ProtocolFee      int
	BaseThresholds   []int
	LimitThreshold   int
	FullRangeWeight  int
	Period           int
	MinTickMove      int
	MaxTwapDeviation int
	TwapDuration     int
	MaxTotalSupply   string
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("transactions", "./data/trans.json")
	v.SetDefault("results", "./data/results.json")
	v.SetDefault("token0", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	v.SetDefault("token1", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	v.SetDefault("pool-fee", 3000)
	v.SetDefault("sqrt-price-x96", "79228162514264337593543950336")
	v.SetDefault("snapshot-interval", 3600)
	v.SetDefault("amount0", "1000000")
	v.SetDefault("amount1", "290000000000000")
	v.SetDefault("protocol-fee", 50000)
	v.SetDefault("base-thresholds", []int{3600})
	v.SetDefault("limit-threshold", 1200)
	v.SetDefault("full-range-weight", 100000)
	v.SetDefault("period", 43200)
	v.SetDefault("min-tick-move", 0)
	v.SetDefault("max-twap-deviation", 100)
	v.SetDefault("twap-duration", 60)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	baseThresholds, err := getIntSlice(v, "base-thresholds")
	if err != nil {
		return Config{}, fmt.Errorf("base-thresholds: %w", err)
	}

	cfg := Config{
		Transactions:     v.GetString("transactions"),
		Results:          v.GetString("results"),
		OutDir:           v.GetString("out-dir"),
		PgDSN:            v.GetString("pg-dsn"),
		RunID:            v.GetString("run-id"),
		Token0:           v.GetString("token0"),
		Token1:           v.GetString("token1"),
		PoolFee:          v.GetInt("pool-fee"),
		SqrtPriceX96:     v.GetString("sqrt-price-x96"),
		StartTime:        v.GetInt("start-time"),
		SnapshotInterval: v.GetInt("snapshot-interval"),
		Amount0:          v.GetString("amount0"),
		Amount1:          v.GetString("amount1"),
		ProtocolFee:      v.GetInt("protocol-fee"),
		BaseThresholds:   baseThresholds,
		LimitThreshold:   v.GetInt("limit-threshold"),
		FullRangeWeight:  v.GetInt("full-range-weight"),
		Period:           v.GetInt("period"),
		MinTickMove:      v.GetInt("min-tick-move"),
		MaxTwapDeviation: v.GetInt("max-twap-deviation"),
		TwapDuration:     v.GetInt("twap-duration"),
		MaxTotalSupply:   v.GetString("max-total-supply"),
		LogLevel:         v.GetString("log-level"),
	}

	if cfg.SnapshotInterval <= 0 {
		return Config{}, fmt.Errorf("snapshot-interval must be positive")
	}
	if len(cfg.BaseThresholds) == 0 {
		return Config{}, fmt.Errorf("base-thresholds must name at least one threshold")
	}

	return cfg, nil
}

func getIntSlice(v *viper.Viper, key string) ([]int, error) {
	if !v.IsSet(key) {
		return v.GetIntSlice(key), nil
	}

	switch typed := v.Get(key).(type) {
	case []int:
		return typed, nil
	case string:
		return parseInts(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return parseInts(items)
	default:
		return v.GetIntSlice(key), nil
	}
}

func parseInts(items []string) ([]int, error) {
	out := make([]int, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", item, err)
		}
		out = append(out, n)
	}
	return out, nil
}
