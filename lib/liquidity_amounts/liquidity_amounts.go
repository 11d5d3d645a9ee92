package liquidity_amounts

import (
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"
	sqrtmath "github.com/ftchann/vault-simulator/lib/sqrtprice_math"

	ui "github.com/holiman/uint256"
)

func GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *ui.Int) *ui.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	intermediate := fullmath.MulDiv(sqrtRatioAX96, sqrtRatioBX96, cons.Q96)
	return fullmath.MulDiv(amount0, intermediate, new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
}

func GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *ui.Int) *ui.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	return fullmath.MulDiv(amount1, cons.Q96, new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
}

// GetLiquidityForAmount returns the most liquidity the range [A, B] can hold
// for the given token balances at the current price.
func GetLiquidityForAmount(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *ui.Int) (liquidity *ui.Int) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0 {
		liquidity = GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0)
	} else if sqrtRatioX96.Cmp(sqrtRatioBX96) < 0 {
		liquidity0 := GetLiquidityForAmount0(sqrtRatioX96, sqrtRatioBX96, amount0)
		liquidity1 := GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioX96, amount1)

		if liquidity0.Cmp(liquidity1) < 0 {
			liquidity = liquidity0
		} else {
			liquidity = liquidity1
		}
	} else {
		liquidity = GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1)
	}
	return liquidity
}

// GetAmountsForLiquidity is the inverse: the token amounts currently backing
// a position of the given liquidity, rounded down.
func GetAmountsForLiquidity(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int) (amount0, amount1 *ui.Int) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	amount0, amount1 = ui.NewInt(0), ui.NewInt(0)
	if sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0 {
		amount0 = sqrtmath.GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
	} else if sqrtRatioX96.Cmp(sqrtRatioBX96) < 0 {
		amount0 = sqrtmath.GetAmount0Delta(sqrtRatioX96, sqrtRatioBX96, liquidity, false)
		amount1 = sqrtmath.GetAmount1Delta(sqrtRatioAX96, sqrtRatioX96, liquidity, false)
	} else {
		amount1 = sqrtmath.GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
	}
	return
}
