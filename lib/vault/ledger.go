package vault

import (
	"fmt"

	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"
	la "github.com/ftchann/vault-simulator/lib/liquidity_amounts"
	"github.com/ftchann/vault-simulator/lib/tickmath"

	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

type tickRange struct {
	lower int
	upper int
}

func (v *Vault) allRanges() []tickRange {
	return []tickRange{
		{v.fullLower, v.fullUpper},
		{v.baseLower, v.baseUpper},
		{v.limitLower, v.limitUpper},
	}
}

// balance0 returns the vault's idle token0 custody net of fees set aside
// for the protocol.
func (v *Vault) balance0() *ui.Int {
	bal := v.bank.Balance(v.token0, v.addr)
	return bal.Sub(bal, v.accruedProtocolFees0)
}

func (v *Vault) balance1() *ui.Int {
	bal := v.bank.Balance(v.token1, v.addr)
	return bal.Sub(bal, v.accruedProtocolFees1)
}

// poke burns zero liquidity so the pool folds pending fee growth into the
// position's owed balances. Ranges without liquidity are left alone.
func (v *Vault) poke(tickLower, tickUpper int) error {
	liquidity, _, _, _, _ := v.pool.RecordedPosition(v.addr, tickLower, tickUpper)
	if liquidity.IsZero() {
		return nil
	}
	_, _, err := v.pool.Burn(v.addr, tickLower, tickUpper, nil)
	return err
}

func (v *Vault) pokeAll() error {
	for _, r := range v.allRanges() {
		if err := v.poke(r.lower, r.upper); err != nil {
			return err
		}
	}
	return nil
}

// amountsForLiquidity converts range liquidity to token amounts at the
// current pool price, rounding down like a burn would.
func (v *Vault) amountsForLiquidity(tickLower, tickUpper int, liquidity *ui.Int) (amount0, amount1 *ui.Int) {
	_, sqrtRatioX96 := v.pool.CurrentTickAndPrice()
	return la.GetAmountsForLiquidity(
		sqrtRatioX96,
		tickmath.TM.GetSqrtRatioAtTick(tickLower),
		tickmath.TM.GetSqrtRatioAtTick(tickUpper),
		liquidity,
	)
}

// positionAmounts values one range. Tokens already owed count at the
// vault's share only; the protocol's prospective cut is excluded the same
// way a collect would exclude it.
func (v *Vault) positionAmounts(tickLower, tickUpper int) (amount0, amount1 *ui.Int) {
	liquidity, _, _, owed0, owed1 := v.pool.RecordedPosition(v.addr, tickLower, tickUpper)
	amount0, amount1 = v.amountsForLiquidity(tickLower, tickUpper, liquidity)
	oneMinusFee := ui.NewInt(cons.FeeScale - v.protocolFee)
	amount0.Add(amount0, fullmath.MulDiv(owed0, oneMinusFee, cons.E6))
	amount1.Add(amount1, fullmath.MulDiv(owed1, oneMinusFee, cons.E6))
	return amount0, amount1
}

func (v *Vault) totalAmounts() (total0, total1 *ui.Int) {
	total0 = v.balance0()
	total1 = v.balance1()
	for _, r := range v.allRanges() {
		a0, a1 := v.positionAmounts(r.lower, r.upper)
		total0.Add(total0, a0)
		total1.Add(total1, a1)
	}
	return total0, total1
}

// splitFees carves the protocol's cut out of collected fees using the
// fee fraction frozen at the last rebalance.
func (v *Vault) splitFees(fees *ui.Int) (toVault, toProtocol *ui.Int) {
	toProtocol = fullmath.MulDiv(fees, ui.NewInt(v.protocolFee), cons.E6)
	toVault = new(ui.Int).Sub(fees, toProtocol)
	return toVault, toProtocol
}

// burnAndCollect exits liquidity from a range and collects everything the
// pool owes on it. Whatever comes back beyond the burned principal is fee
// income and gets split with the protocol.
func (v *Vault) burnAndCollect(tickLower, tickUpper int, liquidity *ui.Int) (burned0, burned1, feesToVault0, feesToVault1 *ui.Int, err error) {
	burned0, burned1 = ui.NewInt(0), ui.NewInt(0)
	if liquidity != nil && !liquidity.IsZero() {
		burned0, burned1, err = v.pool.Burn(v.addr, tickLower, tickUpper, liquidity)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}
	collected0, collected1, err := v.pool.Collect(v.addr, tickLower, tickUpper, nil, nil)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	fees0 := new(ui.Int).Sub(collected0, burned0)
	fees1 := new(ui.Int).Sub(collected1, burned1)
	feesToVault0, toProtocol0 := v.splitFees(fees0)
	feesToVault1, toProtocol1 := v.splitFees(fees1)
	v.accruedProtocolFees0.Add(v.accruedProtocolFees0, toProtocol0)
	v.accruedProtocolFees1.Add(v.accruedProtocolFees1, toProtocol1)

	v.log.Debug("collect fees",
		zap.Int("tickLower", tickLower),
		zap.Int("tickUpper", tickUpper),
		zap.String("toVault0", feesToVault0.Dec()),
		zap.String("toVault1", feesToVault1.Dec()),
		zap.String("toProtocol0", toProtocol0.Dec()),
		zap.String("toProtocol1", toProtocol1.Dec()),
	)
	return burned0, burned1, feesToVault0, feesToVault1, nil
}

// liquidityForAmounts computes the most liquidity the given balances can
// back over a range at the current price.
func (v *Vault) liquidityForAmounts(tickLower, tickUpper int, amount0, amount1 *ui.Int) *ui.Int {
	_, sqrtRatioX96 := v.pool.CurrentTickAndPrice()
	return la.GetLiquidityForAmount(
		sqrtRatioX96,
		tickmath.TM.GetSqrtRatioAtTick(tickLower),
		tickmath.TM.GetSqrtRatioAtTick(tickUpper),
		amount0, amount1,
	)
}

func (v *Vault) mintLiquidity(tickLower, tickUpper int, liquidity *ui.Int) error {
	if liquidity.IsZero() {
		return nil
	}
	if !fullmath.FitsUint128(liquidity) {
		return fmt.Errorf("%w: liquidity %s exceeds 128 bits", ErrArithmeticOverflow, liquidity.Dec())
	}
	_, _, err := v.pool.Mint(v.addr, tickLower, tickUpper, liquidity)
	return err
}
