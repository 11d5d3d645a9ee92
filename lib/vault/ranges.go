package vault

import (
	"fmt"

	"github.com/ftchann/vault-simulator/lib/tickmath"
)

// Ranges describes the three order placements derived from a tick: a
// symmetric base order around the current price and a one-sided bid and
// ask hugging it from below and above.
type Ranges struct {
	BaseLower int
	BaseUpper int
	BidLower  int
	BidUpper  int
	AskLower  int
	AskUpper  int
}

// LayoutRanges computes the order placements for a given tick. The tick is
// floored to the previous initializable tick, the ceiling is one spacing
// above the floor. Both thresholds must be positive multiples of
// tickSpacing.
func LayoutRanges(tick, tickSpacing, baseThreshold, limitThreshold int) Ranges {
	floor := tickmath.Floor(tick, tickSpacing)
	ceil := floor + tickSpacing
	return Ranges{
		BaseLower: floor - baseThreshold,
		BaseUpper: ceil + baseThreshold,
		BidLower:  floor - limitThreshold,
		BidUpper:  floor,
		AskLower:  ceil,
		AskUpper:  ceil + limitThreshold,
	}
}

// FullRange returns the widest tick range usable on a pool with the given
// spacing. Both bounds truncate toward zero so they stay inside the global
// tick limits.
func FullRange(tickSpacing int) (int, int) {
	return (tickmath.MinTick / tickSpacing) * tickSpacing,
		(tickmath.MaxTick / tickSpacing) * tickSpacing
}

func checkThreshold(threshold, tickSpacing int) error {
	if threshold <= 0 {
		return fmt.Errorf("%w: threshold %d must be positive", ErrInvalidConfig, threshold)
	}
	if threshold > tickmath.MaxTick {
		return fmt.Errorf("%w: threshold %d above max tick", ErrInvalidConfig, threshold)
	}
	if threshold%tickSpacing != 0 {
		return fmt.Errorf("%w: threshold %d not a multiple of tick spacing %d", ErrInvalidConfig, threshold, tickSpacing)
	}
	return nil
}
