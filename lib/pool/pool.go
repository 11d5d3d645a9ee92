package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/ftchann/vault-simulator/lib/bank"
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"
	"github.com/ftchann/vault-simulator/lib/position"
	"github.com/ftchann/vault-simulator/lib/sqrtprice_math"
	"github.com/ftchann/vault-simulator/lib/swapmath"
	td "github.com/ftchann/vault-simulator/lib/tickdata"
	"github.com/ftchann/vault-simulator/lib/tickmath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ui "github.com/holiman/uint256"
)

var (
	ErrUnknownFee            = errors.New("unknown fee tier")
	ErrTickRange             = errors.New("invalid tick range")
	ErrUnknownToken          = errors.New("token not in pair")
	ErrInsufficientLiquidity = errors.New("insufficient position liquidity")
	ErrNoLiquidity           = errors.New("pool has no active liquidity")
	ErrStaleObservation      = errors.New("observation window exceeds recorded history")
)

// maxObservations bounds the tick-cumulative history kept for TWAP queries.
// Older entries are pruned; a query reaching past the oldest retained entry
// fails with ErrStaleObservation.
const maxObservations = 1 << 16

type observation struct {
	timestamp      uint64
	tickCumulative int64
}

type positionKey struct {
	owner common.Address
	lower int
	upper int
}

type StepComputations struct {
	sqrtPriceStartX96 *ui.Int
	tickNext          int
	initialized       bool
	sqrtPriceNextX96  *ui.Int
	amountIn          *ui.Int
	amountOut         *ui.Int
	feeAmount         *ui.Int
}

type stateStruct struct {
	amountSpecifiedRemainingI *ui.Int
	amountCalculatedI         *ui.Int
	sqrtPriceX96              *ui.Int
	tick                      int
	feeGrowthGlobalX128       *ui.Int
	liquidity                 *ui.Int
}

// Pool is a deterministic constant-product pool with concentrated
// liquidity. All token custody is settled against a bank ledger under the
// pool's own address, and simulated time advances explicitly so
// time-weighted tick queries stay reproducible.
type Pool struct {
	Token0               common.Address
	Token1               common.Address
	Fee                  int
	SqrtRatioX96         *ui.Int
	Liquidity            *ui.Int
	FeeGrowthGlobal0X128 *ui.Int
	FeeGrowthGlobal1X128 *ui.Int
	TickCurrent          int
	TickData             *td.TickData

	tickSpacing  int
	addr         common.Address
	bank         *bank.Bank
	positions    map[positionKey]*position.Info
	now          uint64
	observations []observation
}

func NewPool(token0, token1 common.Address, fee int, sqrtRatioX96 *ui.Int, b *bank.Bank, startTime uint64) (*Pool, error) {
	tickSpacing, ok := cons.TickSpaces[fee]
	if !ok {
		return nil, fmt.Errorf("fee %d: %w", fee, ErrUnknownFee)
	}
	tickCurrent := tickmath.TM.GetTickAtSqrtRatio(sqrtRatioX96)
	p := &Pool{
		Token0:               token0,
		Token1:               token1,
		Fee:                  fee,
		SqrtRatioX96:         sqrtRatioX96.Clone(),
		Liquidity:            ui.NewInt(0),
		FeeGrowthGlobal0X128: cons.Zero.Clone(),
		FeeGrowthGlobal1X128: cons.Zero.Clone(),
		TickCurrent:          tickCurrent,
		TickData:             td.NewTickData(tickSpacing),
		tickSpacing:          tickSpacing,
		addr:                 poolAddress(token0, token1, fee),
		bank:                 b,
		positions:            make(map[positionKey]*position.Info),
		now:                  startTime,
		observations:         []observation{{timestamp: startTime}},
	}
	return p, nil
}

func poolAddress(token0, token1 common.Address, fee int) common.Address {
	var feeBytes [8]byte
	binary.BigEndian.PutUint64(feeBytes[:], uint64(fee))
	hash := crypto.Keccak256(token0.Bytes(), token1.Bytes(), feeBytes[:])
	return common.BytesToAddress(hash[12:])
}

func (p *Pool) Address() common.Address {
	return p.addr
}

func (p *Pool) TickSpacing() int {
	return p.tickSpacing
}

func (p *Pool) CurrentTickAndPrice() (int, *ui.Int) {
	return p.TickCurrent, p.SqrtRatioX96.Clone()
}

// Now returns the pool's simulated time in unix seconds.
func (p *Pool) Now() uint64 {
	return p.now
}

// AdvanceTo moves simulated time forward and records a tick-cumulative
// observation. Calls that do not move time are ignored.
func (p *Pool) AdvanceTo(timestamp uint64) {
	if timestamp <= p.now {
		return
	}
	// the newest observation always sits at p.now, so the tick has been
	// constant over the whole gap
	last := p.observations[len(p.observations)-1]
	cumulative := last.tickCumulative + int64(p.TickCurrent)*int64(timestamp-p.now)
	p.now = timestamp
	p.observations = append(p.observations, observation{timestamp, cumulative})
	if len(p.observations) > 2*maxObservations {
		kept := make([]observation, maxObservations)
		copy(kept, p.observations[len(p.observations)-maxObservations:])
		p.observations = kept
	}
}

// ObserveCumulativeTicks returns the tick-cumulative values as of
// (now - secondsAgo[i]) for each entry, interpolating between recorded
// observations.
func (p *Pool) ObserveCumulativeTicks(secondsAgo []uint32) ([]int64, error) {
	out := make([]int64, len(secondsAgo))
	for i, ago := range secondsAgo {
		if uint64(ago) > p.now {
			return nil, fmt.Errorf("%d seconds ago predates the pool: %w", ago, ErrStaleObservation)
		}
		cum, err := p.cumulativeAt(p.now - uint64(ago))
		if err != nil {
			return nil, err
		}
		out[i] = cum
	}
	return out, nil
}

func (p *Pool) cumulativeAt(target uint64) (int64, error) {
	obs := p.observations
	i := sort.Search(len(obs), func(j int) bool { return obs[j].timestamp > target })
	i--
	if i < 0 {
		return 0, fmt.Errorf("target %d older than retained history: %w", target, ErrStaleObservation)
	}
	at := obs[i]
	if i == len(obs)-1 {
		// the tick has been constant since the newest observation
		return at.tickCumulative + int64(p.TickCurrent)*int64(target-at.timestamp), nil
	}
	next := obs[i+1]
	span := int64(next.timestamp - at.timestamp)
	slope := (next.tickCumulative - at.tickCumulative) / span
	return at.tickCumulative + slope*int64(target-at.timestamp), nil
}

func (p *Pool) checkTicks(tickLower, tickUpper int) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("lower %d >= upper %d: %w", tickLower, tickUpper, ErrTickRange)
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return fmt.Errorf("[%d, %d] outside tick bounds: %w", tickLower, tickUpper, ErrTickRange)
	}
	if tickLower%p.tickSpacing != 0 || tickUpper%p.tickSpacing != 0 {
		return fmt.Errorf("[%d, %d] not aligned to spacing %d: %w", tickLower, tickUpper, p.tickSpacing, ErrTickRange)
	}
	return nil
}

// amountsForLiquidity prices a signed liquidity delta at the current pool
// price. Positive deltas round against the caller (up), negative deltas
// round toward the pool (down, returned negated).
func (p *Pool) amountsForLiquidity(tickLower, tickUpper int, liquidityDelta *ui.Int) (amount0, amount1 *ui.Int) {
	if p.TickCurrent < tickLower {
		amount0 = sqrtprice_math.GetAmount0DeltaRounded(tickmath.TM.GetSqrtRatioAtTick(tickLower), tickmath.TM.GetSqrtRatioAtTick(tickUpper), liquidityDelta)
		amount1 = ui.NewInt(0)
	} else if p.TickCurrent < tickUpper {
		amount0 = sqrtprice_math.GetAmount0DeltaRounded(p.SqrtRatioX96, tickmath.TM.GetSqrtRatioAtTick(tickUpper), liquidityDelta)
		amount1 = sqrtprice_math.GetAmount1DeltaRounded(p.SqrtRatioX96, tickmath.TM.GetSqrtRatioAtTick(tickLower), liquidityDelta)
	} else {
		amount0 = ui.NewInt(0)
		amount1 = sqrtprice_math.GetAmount1DeltaRounded(tickmath.TM.GetSqrtRatioAtTick(tickLower), tickmath.TM.GetSqrtRatioAtTick(tickUpper), liquidityDelta)
	}
	return
}

// updatePosition routes a signed liquidity delta through the tick data and
// the owner's position. Fee growth inside is evaluated after the tick
// updates so a freshly initialized boundary carries the right outside
// value.
func (p *Pool) updatePosition(owner common.Address, tickLower, tickUpper int, liquidityDelta *ui.Int) *position.Info {
	if !liquidityDelta.IsZero() {
		p.TickData.UpdateTick(tickLower, p.TickCurrent, liquidityDelta, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, false)
		p.TickData.UpdateTick(tickUpper, p.TickCurrent, liquidityDelta, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, true)
	}
	inside0, inside1 := p.TickData.GetFeeGrowthInside(tickLower, tickUpper, p.TickCurrent, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128)

	key := positionKey{owner, tickLower, tickUpper}
	pos := p.positions[key]
	if pos == nil {
		pos = position.NewPosition()
		p.positions[key] = pos
	}
	pos.Update(liquidityDelta, inside0, inside1)

	if !liquidityDelta.IsZero() && p.TickCurrent >= tickLower && p.TickCurrent < tickUpper {
		p.Liquidity.Add(p.Liquidity, liquidityDelta)
	}
	return pos
}

// Mint adds liquidity to the owner's position, pulling the backing tokens
// from the owner's bank balance. Nothing changes if either pull would fail.
func (p *Pool) Mint(owner common.Address, tickLower, tickUpper int, liquidity *ui.Int) (amount0, amount1 *ui.Int, err error) {
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}
	if liquidity == nil || liquidity.IsZero() {
		return ui.NewInt(0), ui.NewInt(0), nil
	}
	amount0, amount1 = p.amountsForLiquidity(tickLower, tickUpper, liquidity)
	if p.bank.Balance(p.Token0, owner).Lt(amount0) || p.bank.Balance(p.Token1, owner).Lt(amount1) {
		return nil, nil, fmt.Errorf("mint [%d, %d): %w", tickLower, tickUpper, bank.ErrInsufficientBalance)
	}
	if err := p.bank.Move(p.Token0, owner, p.addr, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.bank.Move(p.Token1, owner, p.addr, amount1); err != nil {
		return nil, nil, err
	}
	p.updatePosition(owner, tickLower, tickUpper, liquidity)
	return amount0, amount1, nil
}

// Burn removes liquidity from the owner's position and credits the freed
// amounts, plus any fees accrued so far, to the position's tokensOwed. A
// zero burn only refreshes the fee accounting.
func (p *Pool) Burn(owner common.Address, tickLower, tickUpper int, liquidity *ui.Int) (amount0, amount1 *ui.Int, err error) {
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}
	key := positionKey{owner, tickLower, tickUpper}
	pos := p.positions[key]
	if liquidity == nil || liquidity.IsZero() {
		if pos != nil {
			p.updatePosition(owner, tickLower, tickUpper, cons.Zero)
		}
		return ui.NewInt(0), ui.NewInt(0), nil
	}
	if pos == nil || pos.Liquidity.Lt(liquidity) {
		return nil, nil, fmt.Errorf("burn [%d, %d): %w", tickLower, tickUpper, ErrInsufficientLiquidity)
	}
	delta := new(ui.Int).Neg(liquidity)
	amount0Neg, amount1Neg := p.amountsForLiquidity(tickLower, tickUpper, delta)
	amount0 = new(ui.Int).Neg(amount0Neg)
	amount1 = new(ui.Int).Neg(amount1Neg)
	pos = p.updatePosition(owner, tickLower, tickUpper, delta)
	pos.TokensOwed0.Add(pos.TokensOwed0, amount0)
	pos.TokensOwed1.Add(pos.TokensOwed1, amount1)
	return amount0, amount1, nil
}

// Collect pays out up to (max0, max1) of the owner's tokensOwed. Nil
// maximums collect everything.
func (p *Pool) Collect(owner common.Address, tickLower, tickUpper int, max0, max1 *ui.Int) (amount0, amount1 *ui.Int, err error) {
	key := positionKey{owner, tickLower, tickUpper}
	pos := p.positions[key]
	if pos == nil {
		return ui.NewInt(0), ui.NewInt(0), nil
	}
	amount0 = pos.TokensOwed0.Clone()
	if max0 != nil && amount0.Gt(max0) {
		amount0 = max0.Clone()
	}
	amount1 = pos.TokensOwed1.Clone()
	if max1 != nil && amount1.Gt(max1) {
		amount1 = max1.Clone()
	}
	if err := p.bank.Move(p.Token0, p.addr, owner, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.bank.Move(p.Token1, p.addr, owner, amount1); err != nil {
		return nil, nil, err
	}
	pos.TokensOwed0.Sub(pos.TokensOwed0, amount0)
	pos.TokensOwed1.Sub(pos.TokensOwed1, amount1)
	if pos.Empty() {
		delete(p.positions, key)
	}
	return amount0, amount1, nil
}

// RecordedPosition returns the owner's booked state for a range: liquidity,
// the fee growth inside snapshots taken at its last update, and the
// uncollected amounts. Unknown positions read as zero.
func (p *Pool) RecordedPosition(owner common.Address, tickLower, tickUpper int) (liquidity, feeGrowthInside0, feeGrowthInside1, owed0, owed1 *ui.Int) {
	pos := p.positions[positionKey{owner, tickLower, tickUpper}]
	if pos == nil {
		return ui.NewInt(0), ui.NewInt(0), ui.NewInt(0), ui.NewInt(0), ui.NewInt(0)
	}
	return pos.Liquidity.Clone(), pos.FeeGrowthInside0LastX128.Clone(), pos.FeeGrowthInside1LastX128.Clone(),
		pos.TokensOwed0.Clone(), pos.TokensOwed1.Clone()
}

// ExactInputSwap swaps amountIn of tokenIn against the pool, settling both
// legs with the sender. A nil or zero limit means no price limit.
func (p *Pool) ExactInputSwap(sender common.Address, amountIn *ui.Int, tokenIn common.Address, sqrtPriceLimitX96 *ui.Int) (amount0, amount1 *ui.Int, err error) {
	if tokenIn != p.Token0 && tokenIn != p.Token1 {
		return nil, nil, fmt.Errorf("swap input %s: %w", tokenIn, ErrUnknownToken)
	}
	if sqrtPriceLimitX96 == nil {
		sqrtPriceLimitX96 = cons.Zero
	}
	zeroForOne := tokenIn == p.Token0
	if p.bank.Balance(tokenIn, sender).Lt(amountIn) {
		return nil, nil, fmt.Errorf("swap input %s: %w", amountIn.Dec(), bank.ErrInsufficientBalance)
	}
	amount0, amount1 = p.swap(zeroForOne, amountIn, sqrtPriceLimitX96)
	if err := p.settle(sender, p.Token0, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.settle(sender, p.Token1, amount1); err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// settle moves one signed swap leg: positive amounts flow from the sender
// into the pool, negative amounts flow out to the sender.
func (p *Pool) settle(sender, token common.Address, amount *ui.Int) error {
	switch amount.Sign() {
	case 1:
		return p.bank.Move(token, sender, p.addr, amount)
	case -1:
		return p.bank.Move(token, p.addr, sender, new(ui.Int).Neg(amount))
	}
	return nil
}

// Flash injects donated fees, growing the global fee accumulators the same
// way swap fees do. The donation is settled from the sender.
func (p *Pool) Flash(sender common.Address, amount0, amount1 *ui.Int) error {
	if p.Liquidity.IsZero() {
		return ErrNoLiquidity
	}
	fee0 := fullmath.MulDivRoundingUp(amount0, ui.NewInt(uint64(p.Fee)), cons.E6)
	fee1 := fullmath.MulDivRoundingUp(amount1, ui.NewInt(uint64(p.Fee)), cons.E6)
	if p.bank.Balance(p.Token0, sender).Lt(fee0) || p.bank.Balance(p.Token1, sender).Lt(fee1) {
		return fmt.Errorf("flash fees (%s, %s): %w", fee0.Dec(), fee1.Dec(), bank.ErrInsufficientBalance)
	}
	if err := p.bank.Move(p.Token0, sender, p.addr, fee0); err != nil {
		return err
	}
	if err := p.bank.Move(p.Token1, sender, p.addr, fee1); err != nil {
		return err
	}
	p.FeeGrowthGlobal0X128.Add(p.FeeGrowthGlobal0X128, fullmath.MulDiv(fee0, cons.Q128, p.Liquidity))
	p.FeeGrowthGlobal1X128.Add(p.FeeGrowthGlobal1X128, fullmath.MulDiv(fee1, cons.Q128, p.Liquidity))
	return nil
}

// swap
// amountSpecified can be negative
func (p *Pool) swap(zeroForOne bool, amountSpecified *ui.Int, sqrtPriceLimitX96In *ui.Int) (*ui.Int, *ui.Int) {
	sqrtPriceLimitX96 := sqrtPriceLimitX96In.Clone()
	if sqrtPriceLimitX96.IsZero() {
		if zeroForOne {
			sqrtPriceLimitX96.Add(tickmath.MinSqrtRatio, cons.One)
		} else {
			sqrtPriceLimitX96.Sub(tickmath.MaxSqrtRatio, cons.One)
		}
	}
	exactInput := amountSpecified.Sign() >= 0

	var feeGrowthGlobalX128 *ui.Int
	if zeroForOne {
		feeGrowthGlobalX128 = p.FeeGrowthGlobal0X128.Clone()
	} else {
		feeGrowthGlobalX128 = p.FeeGrowthGlobal1X128.Clone()
	}
	state := stateStruct{
		amountSpecified.Clone(),
		ui.NewInt(0),
		p.SqrtRatioX96.Clone(),
		p.TickCurrent,
		feeGrowthGlobalX128,
		p.Liquidity.Clone(),
	}

	for !state.amountSpecifiedRemainingI.IsZero() && state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		var step StepComputations
		step.sqrtPriceStartX96 = state.sqrtPriceX96
		step.tickNext, step.initialized = p.TickData.NextInitializedTickWithinOneWord(state.tick, zeroForOne)

		if step.tickNext < tickmath.MinTick {
			step.tickNext = tickmath.MinTick
		} else if step.tickNext > tickmath.MaxTick {
			step.tickNext = tickmath.MaxTick
		}

		step.sqrtPriceNextX96 = tickmath.TM.GetSqrtRatioAtTick(step.tickNext)
		var targetValue *ui.Int
		if zeroForOne {
			if step.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0 {
				targetValue = sqrtPriceLimitX96
			} else {
				targetValue = step.sqrtPriceNextX96
			}
		} else {
			if step.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0 {
				targetValue = sqrtPriceLimitX96
			} else {
				targetValue = step.sqrtPriceNextX96
			}
		}

		state.sqrtPriceX96, step.amountIn, step.amountOut, step.feeAmount =
			swapmath.ComputeSwapStep(state.sqrtPriceX96,
				targetValue, state.liquidity, state.amountSpecifiedRemainingI, p.Fee)

		if exactInput {
			state.amountSpecifiedRemainingI.Sub(state.amountSpecifiedRemainingI, new(ui.Int).Add(step.amountIn, step.feeAmount))
			state.amountCalculatedI.Sub(state.amountCalculatedI, step.amountOut)
		} else { // exactOutput
			state.amountSpecifiedRemainingI = new(ui.Int).Add(state.amountSpecifiedRemainingI, step.amountOut)
			state.amountCalculatedI = new(ui.Int).Add(state.amountCalculatedI, new(ui.Int).Add(step.amountIn, step.feeAmount))
		}

		if state.liquidity.Sign() > 0 {
			fee := fullmath.MulDiv(step.feeAmount, cons.Q128, state.liquidity)
			state.feeGrowthGlobalX128.Add(state.feeGrowthGlobalX128, fee)
		}

		if state.sqrtPriceX96.Cmp(step.sqrtPriceNextX96) == 0 {
			if step.initialized {
				var feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int
				if zeroForOne {
					feeGrowthGlobal0X128 = state.feeGrowthGlobalX128
					feeGrowthGlobal1X128 = p.FeeGrowthGlobal1X128
				} else {
					feeGrowthGlobal0X128 = p.FeeGrowthGlobal0X128
					feeGrowthGlobal1X128 = state.feeGrowthGlobalX128
				}
				liquidityNet := p.TickData.Cross(step.tickNext, feeGrowthGlobal0X128, feeGrowthGlobal1X128)

				if zeroForOne {
					state.liquidity = state.liquidity.Sub(state.liquidity, liquidityNet)
				} else {
					state.liquidity = state.liquidity.Add(state.liquidity, liquidityNet)
				}
			}
			if zeroForOne {
				state.tick = step.tickNext - 1
			} else {
				state.tick = step.tickNext
			}
		} else if state.sqrtPriceX96.Cmp(step.sqrtPriceStartX96) != 0 {
			state.tick = tickmath.TM.GetTickAtSqrtRatio(state.sqrtPriceX96)
		}
	}

	p.TickCurrent = state.tick
	p.Liquidity = state.liquidity
	p.SqrtRatioX96 = state.sqrtPriceX96

	if zeroForOne {
		p.FeeGrowthGlobal0X128 = state.feeGrowthGlobalX128
	} else {
		p.FeeGrowthGlobal1X128 = state.feeGrowthGlobalX128
	}

	amount0, amount1 := new(ui.Int), new(ui.Int)
	if zeroForOne == exactInput {
		amount0.Sub(amountSpecified, state.amountSpecifiedRemainingI)
		amount1.Set(state.amountCalculatedI)
	} else {
		amount0.Set(state.amountCalculatedI)
		amount1.Sub(amountSpecified, state.amountSpecifiedRemainingI)
	}
	return amount0, amount1
}
