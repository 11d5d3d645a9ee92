package swapmath

import (
	"testing"

	cons "github.com/ftchann/vault-simulator/lib/constants"

	ui "github.com/holiman/uint256"
)

// Liquidity 2^96 makes the token1 deltas equal the raw sqrt price deltas,
// so every expectation below can be checked by hand.

func TestComputeSwapStepReachesTarget(t *testing.T) {
	current := cons.Q96.Clone()
	target := new(ui.Int).Add(current, ui.NewInt(1000))
	liquidity := cons.Q96.Clone()
	remaining := ui.NewInt(1000000)

	next, amountIn, amountOut, fee := ComputeSwapStep(current, target, liquidity, remaining, 500)
	if next.Cmp(target) != 0 {
		t.Errorf("next = %v, want target", next.Dec())
	}
	if !amountIn.Eq(ui.NewInt(1000)) {
		t.Errorf("amountIn = %v, want 1000", amountIn.Dec())
	}
	if !amountOut.Eq(ui.NewInt(999)) {
		t.Errorf("amountOut = %v, want 999", amountOut.Dec())
	}
	if !fee.Eq(ui.NewInt(1)) {
		t.Errorf("fee = %v, want 1", fee.Dec())
	}
}

func TestComputeSwapStepAmountLimited(t *testing.T) {
	current := cons.Q96.Clone()
	target := new(ui.Int).Add(current, ui.NewInt(1000))
	liquidity := cons.Q96.Clone()
	remaining := ui.NewInt(500)

	next, amountIn, amountOut, fee := ComputeSwapStep(current, target, liquidity, remaining, 500)
	want := new(ui.Int).Add(current, ui.NewInt(499))
	if next.Cmp(want) != 0 {
		t.Errorf("next = %v, want current+499", next.Dec())
	}
	if !amountIn.Eq(ui.NewInt(499)) {
		t.Errorf("amountIn = %v, want 499", amountIn.Dec())
	}
	if !amountOut.Eq(ui.NewInt(498)) {
		t.Errorf("amountOut = %v, want 498", amountOut.Dec())
	}
	// input that did not move the price is kept as fee
	if !fee.Eq(ui.NewInt(1)) {
		t.Errorf("fee = %v, want 1", fee.Dec())
	}
}

func TestComputeSwapStepZeroForOne(t *testing.T) {
	current := cons.Q96.Clone()
	target := new(ui.Int).Sub(current, ui.NewInt(1000))
	liquidity := cons.Q96.Clone()
	remaining := ui.NewInt(2000)

	next, amountIn, amountOut, fee := ComputeSwapStep(current, target, liquidity, remaining, 500)
	if next.Cmp(target) != 0 {
		t.Errorf("next = %v, want target", next.Dec())
	}
	if !amountIn.Eq(ui.NewInt(1001)) {
		t.Errorf("amountIn = %v, want 1001", amountIn.Dec())
	}
	if !amountOut.Eq(ui.NewInt(1000)) {
		t.Errorf("amountOut = %v, want 1000", amountOut.Dec())
	}
	if !fee.Eq(ui.NewInt(1)) {
		t.Errorf("fee = %v, want 1", fee.Dec())
	}
}
