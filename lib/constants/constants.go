package constants

import (
	"math/big"

	ui "github.com/holiman/uint256"
)

var (
	NegativeOne, _ = ui.FromBig(big.NewInt(-1))
	Zero           = new(ui.Int)
	One            = new(ui.Int).SetOne()
	MaxUint256, _  = ui.FromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	MaxUint128, _  = ui.FromHex("0xffffffffffffffffffffffffffffffff")
	// used in liquidity amount math
	Q128, _ = ui.FromHex("0x100000000000000000000000000000000")
	Q96     = new(ui.Int).Exp(ui.NewInt(2), ui.NewInt(96))
	Q192    = new(ui.Int).Exp(Q96, ui.NewInt(2))
	E6      = new(ui.Int).Exp(ui.NewInt(10), ui.NewInt(6))
	E18     = new(ui.Int).Exp(ui.NewInt(10), ui.NewInt(18))
)

// Fee fractions and range weights are expressed on the same 1e6 scale.
const FeeScale = 1000000

var TickSpaces = map[int]int{
	500:   10,
	3000:  60,
	10000: 200,
}
