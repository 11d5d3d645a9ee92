package vault

import (
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"
	"github.com/ftchann/vault-simulator/lib/tickmath"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

// ShouldRebalance reports whether a rebalance would be accepted right now.
func (v *Vault) ShouldRebalance() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shouldRebalance()
}

func (v *Vault) shouldRebalance() bool {
	if v.clock.Now() < v.lastTimestamp+v.period {
		return false
	}

	tick, _ := v.pool.CurrentTickAndPrice()
	move := tick - v.lastTick
	if move < 0 {
		move = -move
	}
	if move < v.minTickMove {
		return false
	}

	twap, err := v.twap()
	if err != nil {
		return false
	}
	deviation := tick - twap
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > v.maxTwapDeviation {
		return false
	}

	// Too close to the tick limits there is no room to place the orders.
	maxThreshold := v.baseThreshold
	if v.limitThreshold > maxThreshold {
		maxThreshold = v.limitThreshold
	}
	spacing := v.pool.TickSpacing()
	if tick <= tickmath.MinTick+maxThreshold+spacing {
		return false
	}
	if tick >= tickmath.MaxTick-maxThreshold-spacing {
		return false
	}
	return true
}

// twap returns the time-weighted average tick over the configured window.
func (v *Vault) twap() (int, error) {
	cums, err := v.pool.ObserveCumulativeTicks([]uint32{v.twapDuration, 0})
	if err != nil {
		return 0, err
	}
	return int((cums[1] - cums[0]) / int64(v.twapDuration)), nil
}

// Rebalance exits all three ranges, collects fees, and re-places orders
// around the current tick: the weighted full-range order first, then the
// base order, then a bid or ask with whatever remains. Anyone may call it
// once the eligibility gates pass. The factory fee is re-read at the end
// so the next cycle's fees use the latest setting.
func (v *Vault) Rebalance(caller common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.shouldRebalance() {
		return ErrNotEligible
	}

	tick, _ := v.pool.CurrentTickAndPrice()
	r := LayoutRanges(tick, v.pool.TickSpacing(), v.baseThreshold, v.limitThreshold)

	for _, rng := range v.allRanges() {
		liquidity, _, _, _, _ := v.pool.RecordedPosition(v.addr, rng.lower, rng.upper)
		if _, _, _, _, err := v.burnAndCollect(rng.lower, rng.upper, liquidity); err != nil {
			return err
		}
	}

	balance0 := v.balance0()
	balance1 := v.balance1()
	v.log.Info("snapshot",
		zap.Int("tick", tick),
		zap.String("balance0", balance0.Dec()),
		zap.String("balance1", balance1.Dec()),
		zap.String("totalSupply", v.totalSupply.Dec()),
	)

	maxFull := v.liquidityForAmounts(v.fullLower, v.fullUpper, balance0, balance1)
	fullLiquidity := fullmath.MulDiv(maxFull, ui.NewInt(v.fullRangeWeight), cons.E6)
	if err := v.mintLiquidity(v.fullLower, v.fullUpper, fullLiquidity); err != nil {
		return err
	}

	balance0, balance1 = v.balance0(), v.balance1()
	baseLiquidity := v.liquidityForAmounts(r.BaseLower, r.BaseUpper, balance0, balance1)
	if err := v.mintLiquidity(r.BaseLower, r.BaseUpper, baseLiquidity); err != nil {
		return err
	}
	v.baseLower, v.baseUpper = r.BaseLower, r.BaseUpper

	// The limit order goes on whichever side the leftovers back better.
	// Ties go to the ask.
	balance0, balance1 = v.balance0(), v.balance1()
	bidLiquidity := v.liquidityForAmounts(r.BidLower, r.BidUpper, balance0, balance1)
	askLiquidity := v.liquidityForAmounts(r.AskLower, r.AskUpper, balance0, balance1)
	if bidLiquidity.Gt(askLiquidity) {
		if err := v.mintLiquidity(r.BidLower, r.BidUpper, bidLiquidity); err != nil {
			return err
		}
		v.limitLower, v.limitUpper = r.BidLower, r.BidUpper
	} else {
		if err := v.mintLiquidity(r.AskLower, r.AskUpper, askLiquidity); err != nil {
			return err
		}
		v.limitLower, v.limitUpper = r.AskLower, r.AskUpper
	}

	v.lastTimestamp = v.clock.Now()
	v.lastTick = tick
	v.protocolFee = v.gov.ProtocolFee()

	v.log.Info("rebalance",
		zap.String("caller", caller.Hex()),
		zap.Int("tick", tick),
		zap.Int("baseLower", v.baseLower),
		zap.Int("baseUpper", v.baseUpper),
		zap.Int("limitLower", v.limitLower),
		zap.Int("limitUpper", v.limitUpper),
	)
	return nil
}
