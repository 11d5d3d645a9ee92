package liquidity_amounts

import (
	"testing"

	cons "github.com/ftchann/vault-simulator/lib/constants"

	ui "github.com/holiman/uint256"
)

// Ratios are chosen as exact Q96 multiples so every expectation is exact:
// A = 1.0, B = 2.0, in between P = 1.5 (all as sqrt ratios).

func ratios() (a, b, p *ui.Int) {
	a = cons.Q96.Clone()
	b = new(ui.Int).Lsh(cons.Q96, 1)
	p = new(ui.Int).Add(a, new(ui.Int).Rsh(cons.Q96, 1))
	return
}

func TestGetLiquidityForAmountBelowRange(t *testing.T) {
	a, b, _ := ratios()
	below := new(ui.Int).Sub(a, ui.NewInt(1))
	liquidity := GetLiquidityForAmount(below, a, b, ui.NewInt(100), ui.NewInt(0))
	if !liquidity.Eq(ui.NewInt(200)) {
		t.Fatalf("liquidity = %v, want 200", liquidity.Dec())
	}
}

func TestGetLiquidityForAmountAboveRange(t *testing.T) {
	a, b, _ := ratios()
	liquidity := GetLiquidityForAmount(b, a, b, ui.NewInt(0), ui.NewInt(100))
	if !liquidity.Eq(ui.NewInt(100)) {
		t.Fatalf("liquidity = %v, want 100", liquidity.Dec())
	}
}

func TestGetLiquidityForAmountInRange(t *testing.T) {
	a, b, p := ratios()
	// token0 supports 600, token1 supports 200, the smaller side wins
	liquidity := GetLiquidityForAmount(p, a, b, ui.NewInt(100), ui.NewInt(100))
	if !liquidity.Eq(ui.NewInt(200)) {
		t.Fatalf("liquidity = %v, want 200", liquidity.Dec())
	}
}

func TestGetAmountsForLiquidityRoundTrip(t *testing.T) {
	a, b, _ := ratios()
	below := new(ui.Int).Sub(a, ui.NewInt(1))
	amount0, amount1 := GetAmountsForLiquidity(below, a, b, ui.NewInt(200))
	if !amount0.Eq(ui.NewInt(100)) || !amount1.IsZero() {
		t.Fatalf("below range: got (%v, %v), want (100, 0)", amount0.Dec(), amount1.Dec())
	}

	amount0, amount1 = GetAmountsForLiquidity(b, a, b, ui.NewInt(100))
	if !amount0.IsZero() || !amount1.Eq(ui.NewInt(100)) {
		t.Fatalf("above range: got (%v, %v), want (0, 100)", amount0.Dec(), amount1.Dec())
	}
}

func TestGetAmountsForLiquidityInRange(t *testing.T) {
	a, b, p := ratios()
	amount0, amount1 := GetAmountsForLiquidity(p, a, b, ui.NewInt(600))
	// amount0 = L*(B-P)/(P*B) scaled, amount1 = L*(P-A)
	if !amount0.Eq(ui.NewInt(100)) {
		t.Errorf("amount0 = %v, want 100", amount0.Dec())
	}
	if !amount1.Eq(ui.NewInt(300)) {
		t.Errorf("amount1 = %v, want 300", amount1.Dec())
	}
}
