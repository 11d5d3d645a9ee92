package position

import (
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"

	ui "github.com/holiman/uint256"
)

// Info tracks one liquidity position. Fees accrued since the last update are
// folded into TokensOwed whenever Update runs, including zero-delta updates.
type Info struct {
	Liquidity                *ui.Int
	FeeGrowthInside0LastX128 *ui.Int
	FeeGrowthInside1LastX128 *ui.Int
	TokensOwed0              *ui.Int
	TokensOwed1              *ui.Int
}

func NewPosition() *Info {
	return &Info{
		Liquidity:                ui.NewInt(0),
		FeeGrowthInside0LastX128: ui.NewInt(0),
		FeeGrowthInside1LastX128: ui.NewInt(0),
		TokensOwed0:              ui.NewInt(0),
		TokensOwed1:              ui.NewInt(0),
	}
}

func (i *Info) Update(liquidityDelta, feeGrowthInside0X128, feeGrowthInside1X128 *ui.Int) {
	liquidityNext := new(ui.Int).Add(i.Liquidity, liquidityDelta)
	temp0 := new(ui.Int).Sub(feeGrowthInside0X128, i.FeeGrowthInside0LastX128)
	temp1 := new(ui.Int).Sub(feeGrowthInside1X128, i.FeeGrowthInside1LastX128)
	tokensOwed0 := fullmath.MulDiv(temp0, i.Liquidity, cons.Q128)
	tokensOwed1 := fullmath.MulDiv(temp1, i.Liquidity, cons.Q128)
	i.Liquidity = liquidityNext
	i.FeeGrowthInside0LastX128 = feeGrowthInside0X128.Clone()
	i.FeeGrowthInside1LastX128 = feeGrowthInside1X128.Clone()
	i.TokensOwed0.Add(i.TokensOwed0, tokensOwed0)
	i.TokensOwed1.Add(i.TokensOwed1, tokensOwed1)
}

// Empty reports whether the position holds no liquidity and owes nothing,
// so its bookkeeping entry can be dropped.
func (i *Info) Empty() bool {
	return i.Liquidity.IsZero() && i.TokensOwed0.IsZero() && i.TokensOwed1.IsZero()
}
