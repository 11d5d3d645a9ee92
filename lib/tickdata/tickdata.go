package tickdata

import (
	"sort"

	ui "github.com/holiman/uint256"
)

// Tick is one initialized tick boundary. LiquidityNet is signed and stored
// in two's complement. FeeGrowthOutside follows the usual convention: it is
// only meaningful relative to the side of the current tick it was
// initialized on, and flips on every cross.
type Tick struct {
	Index                 int
	LiquidityNet          *ui.Int
	LiquidityGross        *ui.Int
	FeeGrowthOutside0X128 *ui.Int
	FeeGrowthOutside1X128 *ui.Int
}

// TickData keeps the initialized ticks of a pool as a sorted slice.
type TickData struct {
	ticks       []Tick
	tickSpacing int
}

func NewTickData(tickSpacing int) *TickData {
	return &TickData{
		nil,
		tickSpacing,
	}
}

func (t *TickData) Len() int {
	return len(t.ticks)
}

// search returns the index of the first tick with Index >= index and whether
// that slot holds exactly index.
func (t *TickData) search(index int) (int, bool) {
	i := sort.Search(len(t.ticks), func(j int) bool { return t.ticks[j].Index >= index })
	return i, i < len(t.ticks) && t.ticks[i].Index == index
}

func (t *TickData) GetTick(index int) (Tick, bool) {
	i, ok := t.search(index)
	if !ok {
		return Tick{}, false
	}
	return t.ticks[i], true
}

// UpdateTick applies a signed liquidity delta to a tick boundary, inserting
// or removing the tick as its gross liquidity flips between zero and
// nonzero. A tick initialized at or below the current tick starts with the
// global fee growth as its outside value.
func (t *TickData) UpdateTick(index, currentTick int, liquidityDelta, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int, upper bool) {
	if liquidityDelta.IsZero() {
		return
	}
	i, ok := t.search(index)
	if !ok {
		if liquidityDelta.Sign() < 0 {
			return
		}
		outside0, outside1 := ui.NewInt(0), ui.NewInt(0)
		if index <= currentTick {
			outside0 = feeGrowthGlobal0X128.Clone()
			outside1 = feeGrowthGlobal1X128.Clone()
		}
		net := liquidityDelta.Clone()
		if upper {
			net.Neg(liquidityDelta)
		}
		tick := Tick{index, net, liquidityDelta.Clone(), outside0, outside1}
		t.ticks = append(t.ticks, Tick{})
		copy(t.ticks[i+1:], t.ticks[i:])
		t.ticks[i] = tick
		return
	}

	tick := t.ticks[i]
	if upper {
		tick.LiquidityNet.Sub(tick.LiquidityNet, liquidityDelta)
	} else {
		tick.LiquidityNet.Add(tick.LiquidityNet, liquidityDelta)
	}
	tick.LiquidityGross.Add(tick.LiquidityGross, liquidityDelta)
	if tick.LiquidityGross.IsZero() {
		t.ticks = append(t.ticks[:i], t.ticks[i+1:]...)
	}
}

// Cross flips the tick's outside fee growth and returns its net liquidity.
func (t *TickData) Cross(index int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int) *ui.Int {
	i, ok := t.search(index)
	if !ok {
		panic("tickdata: crossing uninitialized tick")
	}
	tick := t.ticks[i]
	tick.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0X128, tick.FeeGrowthOutside0X128)
	tick.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1X128, tick.FeeGrowthOutside1X128)
	return tick.LiquidityNet.Clone()
}

// GetFeeGrowthInside computes the fee growth accumulated inside [lower,
// upper]. The subtractions wrap on underflow; only differences of inside
// values are meaningful.
func (t *TickData) GetFeeGrowthInside(lower, upper, currentTick int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int) (*ui.Int, *ui.Int) {
	lower0, lower1 := t.outside(lower)
	upper0, upper1 := t.outside(upper)

	below0, below1 := new(ui.Int), new(ui.Int)
	if currentTick >= lower {
		below0.Set(lower0)
		below1.Set(lower1)
	} else {
		below0.Sub(feeGrowthGlobal0X128, lower0)
		below1.Sub(feeGrowthGlobal1X128, lower1)
	}

	above0, above1 := new(ui.Int), new(ui.Int)
	if currentTick < upper {
		above0.Set(upper0)
		above1.Set(upper1)
	} else {
		above0.Sub(feeGrowthGlobal0X128, upper0)
		above1.Sub(feeGrowthGlobal1X128, upper1)
	}

	inside0 := new(ui.Int).Sub(feeGrowthGlobal0X128, below0)
	inside0.Sub(inside0, above0)
	inside1 := new(ui.Int).Sub(feeGrowthGlobal1X128, below1)
	inside1.Sub(inside1, above1)
	return inside0, inside1
}

func (t *TickData) outside(index int) (*ui.Int, *ui.Int) {
	i, ok := t.search(index)
	if !ok {
		return new(ui.Int), new(ui.Int)
	}
	return t.ticks[i].FeeGrowthOutside0X128, t.ticks[i].FeeGrowthOutside1X128
}

func (t *TickData) isBelowSmallest(tick int) bool {
	return tick < t.ticks[0].Index
}

func (t *TickData) isAtOrAboveLargest(tick int) bool {
	return tick >= t.ticks[len(t.ticks)-1].Index
}

// NextInitializedTickWithinOneWord mirrors the word-sized probing a pool
// swap performs: it returns the next initialized tick in the given
// direction, clamped to the current 256-tick word, and whether the returned
// tick is actually initialized.
func (t *TickData) NextInitializedTickWithinOneWord(tick int, lte bool) (int, bool) {
	compressed := tick / t.tickSpacing
	if tick < 0 && tick%t.tickSpacing != 0 {
		compressed--
	}
	if lte {
		wordPos := compressed >> 8
		minimum := (wordPos << 8) * t.tickSpacing
		if len(t.ticks) == 0 || t.isBelowSmallest(tick) {
			return minimum, false
		}

		index := t.nextInitializedTick(tick, lte).Index
		nextInitializedTick := max(minimum, index)
		return nextInitializedTick, nextInitializedTick == index
	}
	wordPos := (compressed + 1) >> 8
	maximum := (((wordPos + 1) << 8) - 1) * t.tickSpacing
	if len(t.ticks) == 0 || t.isAtOrAboveLargest(tick) {
		return maximum, false
	}
	index := t.nextInitializedTick(tick, lte).Index
	nextInitializedTick := min(maximum, index)
	return nextInitializedTick, nextInitializedTick == index
}

// nextInitializedTick finds the closest initialized tick at or below tick
// (lte) or strictly above it. Callers have already ruled out the
// out-of-range cases.
func (t *TickData) nextInitializedTick(tick int, lte bool) Tick {
	i := sort.Search(len(t.ticks), func(j int) bool { return t.ticks[j].Index > tick })
	if lte {
		if t.isAtOrAboveLargest(tick) {
			return t.ticks[len(t.ticks)-1]
		}
		return t.ticks[i-1]
	}
	if t.isBelowSmallest(tick) {
		return t.ticks[0]
	}
	return t.ticks[i]
}
