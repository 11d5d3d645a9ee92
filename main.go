package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ftchann/vault-simulator/lib/bank"
	"github.com/ftchann/vault-simulator/lib/config"
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/executor"
	"github.com/ftchann/vault-simulator/lib/factory"
	"github.com/ftchann/vault-simulator/lib/pool"
	"github.com/ftchann/vault-simulator/lib/result"
	"github.com/ftchann/vault-simulator/lib/storage"
	"github.com/ftchann/vault-simulator/lib/storage/postgres"
	ent "github.com/ftchann/vault-simulator/lib/transaction"
	"github.com/ftchann/vault-simulator/lib/vault"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The simulated actors. The market owner replays the recorded liquidity
// and swap flow, the depositor holds the vault shares.
var (
	governance = common.HexToAddress("0x0000000000000000000000000000000000000006")
	manager    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	market     = common.HexToAddress("0x0000000000000000000000000000000000000007")
	depositor  = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func main() {
	root := &cobra.Command{
		Use:          "vault-simulator",
		Short:        "Backtest a managed liquidity vault against recorded pool transactions",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the backtest",
		RunE:  runBacktest,
	}

	runCmd.Flags().String("transactions", "./data/trans.json", "input transactions JSON")
	runCmd.Flags().String("results", "./data/results.json", "output results JSON")
	runCmd.Flags().String("out-dir", "", "directory for JSONL record output, empty disables it")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN, empty disables the store")
	runCmd.Flags().String("run-id", "", "run id, defaults to run-<unix time>")
	runCmd.Flags().String("token0", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "token0 address")
	runCmd.Flags().String("token1", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "token1 address")
	runCmd.Flags().Int("pool-fee", 3000, "pool fee in hundredths of a bip")
	runCmd.Flags().String("sqrt-price-x96", "79228162514264337593543950336", "starting sqrt price, Q64.96")
	runCmd.Flags().Int("start-time", 0, "vault start time, 0 means one hour after the first record")
	runCmd.Flags().Int("snapshot-interval", 3600, "seconds between snapshots")
	runCmd.Flags().String("amount0", "1000000", "opening deposit of token0")
	runCmd.Flags().String("amount1", "290000000000000", "opening deposit of token1")
	runCmd.Flags().Int("protocol-fee", 50000, "protocol share of collected fees, scaled by 1e6")
	runCmd.Flags().IntSlice("base-thresholds", []int{3600}, "base thresholds to sweep, comma-separated")
	runCmd.Flags().Int("limit-threshold", 1200, "limit threshold in ticks")
	runCmd.Flags().Int("full-range-weight", 100000, "full range weight, scaled by 1e6")
	runCmd.Flags().Int("period", 43200, "seconds between rebalances")
	runCmd.Flags().Int("min-tick-move", 0, "minimum tick move since the last rebalance")
	runCmd.Flags().Int("max-twap-deviation", 100, "maximum deviation from the TWAP in ticks")
	runCmd.Flags().Int("twap-duration", 60, "TWAP window in seconds")
	runCmd.Flags().String("max-total-supply", "", "share supply cap, empty means unlimited")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	rangesCmd := &cobra.Command{
		Use:   "ranges",
		Short: "Print the order placements for a tick",
		RunE:  runRanges,
	}

	rangesCmd.Flags().Int("fee", 3000, "pool fee in hundredths of a bip")
	rangesCmd.Flags().Int("tick", 0, "current pool tick")
	rangesCmd.Flags().Int("base-threshold", 3600, "base threshold in ticks")
	rangesCmd.Flags().Int("limit-threshold", 1200, "limit threshold in ticks")

	root.AddCommand(rangesCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// backtest holds the parsed inputs shared by all sweep entries.
type backtest struct {
	cfg          config.Config
	log          *zap.Logger
	sinks        []storage.Sink
	token0       common.Address
	token1       common.Address
	sqrtPriceX96 *ui.Int
	amount0      *ui.Int
	amount1      *ui.Int
	maxSupply    *ui.Int
	startTime    int
	transactions []ent.Transaction
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	bt, err := newBacktest(cfg, logger)
	if err != nil {
		return err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("run-%d", time.Now().Unix())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OutDir != "" {
		bt.sinks = append(bt.sinks, storage.NewJsonlStorage(cfg.OutDir))
	}
	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		bt.sinks = append(bt.sinks, store)
	}

	logger.Info("backtest start",
		zap.String("run", runID),
		zap.String("transactions", cfg.Transactions),
		zap.Int("records", len(bt.transactions)),
		zap.Int("start_time", bt.startTime),
		zap.Ints("base_thresholds", cfg.BaseThresholds),
	)

	save := result.Save{
		SnapshotInterval: cfg.SnapshotInterval,
		StartAmount0:     bt.amount0.Dec(),
		StartAmount1:     bt.amount1.Dec(),
		StartTime:        bt.startTime,
		EndTime:          bt.transactions[len(bt.transactions)-1].Timestamp,
	}

	for _, baseThreshold := range cfg.BaseThresholds {
		if err := ctx.Err(); err != nil {
			return err
		}
		entryID := fmt.Sprintf("%s-%d", runID, baseThreshold)
		report, err := bt.runEntry(ctx, entryID, baseThreshold)
		if err != nil {
			return fmt.Errorf("backtest %s: %w", entryID, err)
		}
		save.Results = append(save.Results, report)
	}

	if err := writeResults(cfg.Results, save); err != nil {
		return err
	}

	logger.Info("backtest done",
		zap.String("results", cfg.Results),
		zap.Int("entries", len(save.Results)),
	)
	return nil
}

func newBacktest(cfg config.Config, logger *zap.Logger) (*backtest, error) {
	if !common.IsHexAddress(cfg.Token0) {
		return nil, fmt.Errorf("token0 address %q is invalid", cfg.Token0)
	}
	if !common.IsHexAddress(cfg.Token1) {
		return nil, fmt.Errorf("token1 address %q is invalid", cfg.Token1)
	}
	if cfg.ProtocolFee < 0 || cfg.FullRangeWeight < 0 || cfg.Period < 0 || cfg.TwapDuration < 0 {
		return nil, fmt.Errorf("protocol-fee, full-range-weight, period and twap-duration must not be negative")
	}

	sqrtPriceX96, err := parseUint256(cfg.SqrtPriceX96)
	if err != nil {
		return nil, fmt.Errorf("sqrt-price-x96: %w", err)
	}
	amount0, err := parseUint256(cfg.Amount0)
	if err != nil {
		return nil, fmt.Errorf("amount0: %w", err)
	}
	amount1, err := parseUint256(cfg.Amount1)
	if err != nil {
		return nil, fmt.Errorf("amount1: %w", err)
	}
	maxSupply := cons.MaxUint128.Clone()
	if cfg.MaxTotalSupply != "" {
		if maxSupply, err = parseUint256(cfg.MaxTotalSupply); err != nil {
			return nil, fmt.Errorf("max-total-supply: %w", err)
		}
	}

	transactions, err := ent.Load(cfg.Transactions)
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, fmt.Errorf("no transactions in %s", cfg.Transactions)
	}

	startTime := cfg.StartTime
	if startTime == 0 {
		startTime = transactions[0].Timestamp + 3600
	}

	return &backtest{
		cfg:          cfg,
		log:          logger,
		token0:       common.HexToAddress(cfg.Token0),
		token1:       common.HexToAddress(cfg.Token1),
		sqrtPriceX96: sqrtPriceX96,
		amount0:      amount0,
		amount1:      amount1,
		maxSupply:    maxSupply,
		startTime:    startTime,
		transactions: transactions,
	}, nil
}

// runEntry replays the stream against a fresh pool and vault so sweep
// entries cannot bleed state into each other.
func (b *backtest) runEntry(ctx context.Context, entryID string, baseThreshold int) (result.RunResult, error) {
	ledger := bank.New()
	p, err := pool.NewPool(b.token0, b.token1, b.cfg.PoolFee, b.sqrtPriceX96.Clone(), ledger, uint64(b.transactions[0].Timestamp))
	if err != nil {
		return result.RunResult{}, err
	}

	f, err := factory.New(governance, uint64(b.cfg.ProtocolFee), ledger, b.log)
	if err != nil {
		return result.RunResult{}, err
	}
	v, err := f.CreateVault(p, factory.VaultConfig{
		Manager:          manager,
		BaseThreshold:    baseThreshold,
		LimitThreshold:   b.cfg.LimitThreshold,
		FullRangeWeight:  uint64(b.cfg.FullRangeWeight),
		Period:           uint64(b.cfg.Period),
		MinTickMove:      b.cfg.MinTickMove,
		MaxTwapDeviation: b.cfg.MaxTwapDeviation,
		TwapDuration:     uint32(b.cfg.TwapDuration),
		MaxTotalSupply:   b.maxSupply.Clone(),
	})
	if err != nil {
		return result.RunResult{}, err
	}

	ledger.Mint(b.token0, depositor, b.amount0.Clone())
	ledger.Mint(b.token1, depositor, b.amount1.Clone())

	e, err := executor.CreateExecution(executor.Params{
		Vault:            v,
		Pool:             p,
		Bank:             ledger,
		Market:           market,
		Depositor:        depositor,
		StartTime:        b.startTime,
		SnapshotInterval: b.cfg.SnapshotInterval,
		Amount0:          b.amount0.Clone(),
		Amount1:          b.amount1.Clone(),
		Transactions:     b.transactions,
		Log:              b.log,
	})
	if err != nil {
		return result.RunResult{}, err
	}
	if err := e.Run(); err != nil {
		return result.RunResult{}, err
	}

	report := e.Report()
	for _, sink := range b.sinks {
		if err := sink.PutSnapshots(ctx, entryID, e.Snapshots); err != nil {
			return result.RunResult{}, fmt.Errorf("store snapshots: %w", err)
		}
		if err := sink.PutRebalances(ctx, entryID, e.Rebalances); err != nil {
			return result.RunResult{}, fmt.Errorf("store rebalances: %w", err)
		}
		if err := sink.PutRun(ctx, entryID, report); err != nil {
			return result.RunResult{}, fmt.Errorf("store run: %w", err)
		}
	}

	b.log.Info("entry done",
		zap.String("run", entryID),
		zap.Int("base_threshold", baseThreshold),
		zap.Int("rebalances", report.Rebalances),
		zap.String("end_amount", report.EndAmount),
	)
	return report, nil
}

func runRanges(cmd *cobra.Command, _ []string) error {
	fee, _ := cmd.Flags().GetInt("fee")
	tick, _ := cmd.Flags().GetInt("tick")
	baseThreshold, _ := cmd.Flags().GetInt("base-threshold")
	limitThreshold, _ := cmd.Flags().GetInt("limit-threshold")

	spacing, ok := cons.TickSpaces[fee]
	if !ok {
		return fmt.Errorf("unknown fee tier %d", fee)
	}
	for _, threshold := range []int{baseThreshold, limitThreshold} {
		if threshold <= 0 || threshold%spacing != 0 {
			return fmt.Errorf("threshold %d must be a positive multiple of tick spacing %d", threshold, spacing)
		}
	}

	r := vault.LayoutRanges(tick, spacing, baseThreshold, limitThreshold)
	fullLower, fullUpper := vault.FullRange(spacing)
	fmt.Printf("full [%d, %d]\n", fullLower, fullUpper)
	fmt.Printf("base [%d, %d]\n", r.BaseLower, r.BaseUpper)
	fmt.Printf("bid  [%d, %d]\n", r.BidLower, r.BidUpper)
	fmt.Printf("ask  [%d, %d]\n", r.AskLower, r.AskUpper)
	return nil
}

func writeResults(path string, save result.Save) error {
	raw, err := json.MarshalIndent(save, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func parseUint256(s string) (*ui.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal number: %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", s)
	}
	value, overflow := ui.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("amount does not fit 256 bits: %q", s)
	}
	return value, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
