package executor

import (
	"errors"
	"fmt"
	"math"

	"github.com/ftchann/vault-simulator/lib/bank"
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"
	"github.com/ftchann/vault-simulator/lib/pool"
	"github.com/ftchann/vault-simulator/lib/result"
	"github.com/ftchann/vault-simulator/lib/series"
	ent "github.com/ftchann/vault-simulator/lib/transaction"
	"github.com/ftchann/vault-simulator/lib/vault"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

const (
	hourSeconds = 3600
	daySeconds  = 86400
)

var ErrInvalidParams = errors.New("invalid execution params")

// Params wires one backtest run.
type Params struct {
	Vault *vault.Vault
	Pool  *pool.Pool
	Bank  *bank.Bank

	// Market owns the replayed liquidity and swap flow, Depositor receives
	// the shares for the opening deposit and calls the rebalances.
	Market    common.Address
	Depositor common.Address

	StartTime        int
	SnapshotInterval int

	// opening deposit
	Amount0 *ui.Int
	Amount1 *ui.Int

	Transactions []ent.Transaction
	Log          *zap.Logger
}

// Execution replays a transaction stream against the pool and drives the
// vault through it. Snapshots, Rebalances and the value series fill as Run
// progresses.
type Execution struct {
	vault            *vault.Vault
	pool             *pool.Pool
	market           common.Address
	depositor        common.Address
	startTime        int
	snapshotInterval int
	amount0          *ui.Int
	amount1          *ui.Int
	transactions     []ent.Transaction
	log              *zap.Logger

	Snapshots  []result.Snapshot
	Rebalances []result.Rebalance
	Hourly     *series.Series
	Daily      *series.Series
}

// CreateExecution validates the wiring and seeds the market owner with
// effectively unlimited balances of both pair tokens, so every replayed
// mint and swap can settle.
func CreateExecution(p Params) (*Execution, error) {
	if p.Vault == nil || p.Pool == nil || p.Bank == nil {
		return nil, fmt.Errorf("%w: vault, pool and bank are required", ErrInvalidParams)
	}
	if p.Market == (common.Address{}) || p.Depositor == (common.Address{}) {
		return nil, fmt.Errorf("%w: market and depositor addresses are required", ErrInvalidParams)
	}
	if p.SnapshotInterval <= 0 {
		return nil, fmt.Errorf("%w: snapshot interval %d", ErrInvalidParams, p.SnapshotInterval)
	}
	if len(p.Transactions) == 0 {
		return nil, fmt.Errorf("%w: no transactions", ErrInvalidParams)
	}
	if (p.Amount0 == nil || p.Amount0.IsZero()) && (p.Amount1 == nil || p.Amount1.IsZero()) {
		return nil, fmt.Errorf("%w: opening deposit is empty", ErrInvalidParams)
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	p.Bank.Mint(p.Pool.Token0, p.Market, cons.MaxUint128.Clone())
	p.Bank.Mint(p.Pool.Token1, p.Market, cons.MaxUint128.Clone())

	maxTime := p.Transactions[len(p.Transactions)-1].Timestamp
	span := maxTime - p.StartTime
	if span < 0 {
		span = 0
	}

	return &Execution{
		vault:            p.Vault,
		pool:             p.Pool,
		market:           p.Market,
		depositor:        p.Depositor,
		startTime:        p.StartTime,
		snapshotInterval: p.SnapshotInterval,
		amount0:          p.Amount0,
		amount1:          p.Amount1,
		transactions:     p.Transactions,
		log:              log,
		Snapshots:        make([]result.Snapshot, 0, span/p.SnapshotInterval+2),
		Hourly:           series.New(span/hourSeconds + 2),
		Daily:            series.New(span/daySeconds + 2),
	}, nil
}

// Run replays the stream in order. The vault opens at the first record at
// or after StartTime and rebalances whenever it reports itself eligible.
func (e *Execution) Run() error {
	started := false
	nextSnapshot := math.MaxInt64
	nextHourly := math.MaxInt64
	nextDaily := math.MaxInt64
	for _, trans := range e.transactions {
		e.pool.AdvanceTo(uint64(trans.Timestamp))

		if !started && trans.Timestamp >= e.startTime {
			shares, in0, in1, err := e.vault.Deposit(e.depositor, e.depositor, e.amount0, e.amount1, nil, nil)
			if err != nil {
				return fmt.Errorf("opening deposit: %w", err)
			}
			e.log.Info("opened position",
				zap.Int("timestamp", trans.Timestamp),
				zap.String("shares", shares.Dec()),
				zap.String("amount0", in0.Dec()),
				zap.String("amount1", in1.Dec()),
			)
			e.snapshot(trans.Timestamp)
			nextSnapshot = trans.Timestamp + e.snapshotInterval
			nextHourly = trans.Timestamp + hourSeconds
			nextDaily = trans.Timestamp + daySeconds
			started = true
		}

		if started && e.vault.ShouldRebalance() {
			if err := e.vault.Rebalance(e.depositor); err != nil {
				return fmt.Errorf("rebalance at %d: %w", trans.Timestamp, err)
			}
			tick, _ := e.pool.CurrentTickAndPrice()
			baseLower, baseUpper := e.vault.BaseRange()
			limitLower, limitUpper := e.vault.LimitRange()
			e.Rebalances = append(e.Rebalances, result.Rebalance{
				Timestamp:  trans.Timestamp,
				Tick:       tick,
				BaseLower:  baseLower,
				BaseUpper:  baseUpper,
				LimitLower: limitLower,
				LimitUpper: limitUpper,
			})
		}

		if trans.Timestamp >= nextSnapshot {
			e.snapshot(trans.Timestamp)
			nextSnapshot += e.snapshotInterval
		}
		if trans.Timestamp >= nextHourly {
			e.Hourly.Add(e.value())
			nextHourly += hourSeconds
		}
		if trans.Timestamp >= nextDaily {
			e.Daily.Add(e.value())
			nextDaily += daySeconds
		}

		if err := e.apply(trans); err != nil {
			return err
		}
	}
	if started {
		e.snapshot(e.transactions[len(e.transactions)-1].Timestamp)
	}
	return nil
}

func (e *Execution) apply(trans ent.Transaction) error {
	switch trans.Type {
	case "Mint":
		if trans.Amount.IsZero() {
			return nil
		}
		if _, _, err := e.pool.Mint(e.market, trans.TickLower, trans.TickUpper, trans.Amount); err != nil {
			return fmt.Errorf("mint %s: %w", trans.ID, err)
		}
	case "Burn":
		if trans.Amount.IsZero() {
			return nil
		}
		if _, _, err := e.pool.Burn(e.market, trans.TickLower, trans.TickUpper, trans.Amount); err != nil {
			// the stream can burn liquidity minted before its first record
			if errors.Is(err, pool.ErrInsufficientLiquidity) {
				e.log.Warn("skipping burn of unknown position",
					zap.String("id", trans.ID),
					zap.Int("tickLower", trans.TickLower),
					zap.Int("tickUpper", trans.TickUpper),
				)
				return nil
			}
			return fmt.Errorf("burn %s: %w", trans.ID, err)
		}
	case "Swap":
		limit := trans.SqrtPriceX96
		if !trans.UseX96 {
			limit = nil
		}
		var err error
		if trans.Amount0.Sign() > 0 {
			_, _, err = e.pool.ExactInputSwap(e.market, trans.Amount0, e.pool.Token0, limit)
		} else if trans.Amount1.Sign() > 0 {
			_, _, err = e.pool.ExactInputSwap(e.market, trans.Amount1, e.pool.Token1, limit)
		}
		if err != nil {
			return fmt.Errorf("swap %s: %w", trans.ID, err)
		}
	case "Flash":
		if err := e.pool.Flash(e.market, trans.Amount0, trans.Amount1); err != nil {
			if errors.Is(err, pool.ErrNoLiquidity) {
				e.log.Warn("skipping flash against an empty pool", zap.String("id", trans.ID))
				return nil
			}
			return fmt.Errorf("flash %s: %w", trans.ID, err)
		}
	default:
		return fmt.Errorf("transaction %s: unknown type %q", trans.ID, trans.Type)
	}
	return nil
}

// value prices the whole vault in token0 terms at the current pool price.
func (e *Execution) value() *ui.Int {
	total0, total1 := e.vault.GetTotalAmounts()
	_, x96 := e.pool.CurrentTickAndPrice()
	priceSquareX192 := new(ui.Int).Mul(x96, x96)
	amount1to0 := fullmath.MulDiv(total1, cons.Q192, priceSquareX192)
	return new(ui.Int).Add(amount1to0, total0)
}

func (e *Execution) snapshot(timestamp int) {
	total0, total1 := e.vault.GetTotalAmounts()
	tick, x96 := e.pool.CurrentTickAndPrice()
	priceSquareX192 := new(ui.Int).Mul(x96, x96)
	amount1to0 := fullmath.MulDiv(total1, cons.Q192, priceSquareX192)
	value := new(ui.Int).Add(amount1to0, total0)
	e.Snapshots = append(e.Snapshots, result.Snapshot{
		Timestamp:   timestamp,
		Tick:        tick,
		Amount0:     total0.Dec(),
		Amount1:     total1.Dec(),
		Value:       value.Dec(),
		Price:       x96.Dec(),
		TotalSupply: e.vault.TotalSupply().Dec(),
	})
}

// Report summarizes the finished run.
func (e *Execution) Report() result.RunResult {
	fees0, fees1 := e.vault.AccruedProtocolFees()
	return result.RunResult{
		BaseThreshold:  e.vault.BaseThreshold(),
		LimitThreshold: e.vault.LimitThreshold(),
		EndAmount:      e.value().Dec(),
		EndSupply:      e.vault.TotalSupply().Dec(),
		ProtocolFees0:  fees0.Dec(),
		ProtocolFees1:  fees1.Dec(),
		Rebalances:     len(e.Rebalances),
		VarianceHourly: e.Hourly.Variance().String(),
		VarianceDaily:  e.Daily.Variance().String(),
	}
}
