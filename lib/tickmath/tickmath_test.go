package tickmath

import (
	"fmt"
	"testing"

	ui "github.com/holiman/uint256"
)

func TestFloor(t *testing.T) {
	tests := [][]int{
		// tick, spacing, want
		{12345, 60, 12300},
		{12300, 60, 12300},
		{12359, 60, 12300},
		{0, 60, 0},
		{59, 60, 0},
		{-1, 60, -60},
		{-60, 60, -60},
		{-61, 60, -120},
		{-12345, 60, -12360},
		{-12360, 60, -12360},
		{887271, 10, 887270},
		{-887272, 10, -887280},
	}
	for _, arg := range tests {
		t.Run(fmt.Sprint(arg), func(t *testing.T) {
			if got := Floor(arg[0], arg[1]); got != arg[2] {
				t.Fatalf("Floor(%d, %d) = %d, want %d", arg[0], arg[1], got, arg[2])
			}
		})
	}
}

func TestGetSqrtRatioAtTickKnownValues(t *testing.T) {
	q96 := new(ui.Int).Lsh(ui.NewInt(1), 96)
	if got := TM.GetSqrtRatioAtTick(0); got.Cmp(q96) != 0 {
		t.Errorf("tick 0: got %v, want 2^96", got.Dec())
	}
	if got := TM.GetSqrtRatioAtTick(MinTick); got.Cmp(MinSqrtRatio) != 0 {
		t.Errorf("MinTick: got %v, want %v", got.Dec(), MinSqrtRatio.Dec())
	}
	if got := TM.GetSqrtRatioAtTick(MaxTick); got.Cmp(MaxSqrtRatio) != 0 {
		t.Errorf("MaxTick: got %v, want %v", got.Dec(), MaxSqrtRatio.Dec())
	}
}

func TestGetTickAtSqrtRatioRoundTrip(t *testing.T) {
	ticks := []int{MinTick, -887220, -12360, -60, -1, 0, 1, 60, 12345, 887220}
	for _, tick := range ticks {
		t.Run(fmt.Sprint(tick), func(t *testing.T) {
			ratio := TM.GetSqrtRatioAtTick(tick)
			if got := TM.GetTickAtSqrtRatio(ratio); got != tick {
				t.Fatalf("round trip for tick %d gave %d", tick, got)
			}
		})
	}
}

func TestGetTickAtSqrtRatioBetweenTicks(t *testing.T) {
	// A price strictly between two tick ratios maps to the lower tick.
	ratio := TM.GetSqrtRatioAtTick(100)
	ratio.Add(ratio, ui.NewInt(1))
	if got := TM.GetTickAtSqrtRatio(ratio); got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}
