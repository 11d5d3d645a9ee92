package vault

import (
	"fmt"
	"sync"

	"github.com/ftchann/vault-simulator/lib/bank"
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

// LiquidityPool is the slice of pool behavior the vault drives.
type LiquidityPool interface {
	TickSpacing() int
	CurrentTickAndPrice() (tick int, sqrtRatioX96 *ui.Int)
	ObserveCumulativeTicks(secondsAgo []uint32) ([]int64, error)
	Mint(owner common.Address, tickLower, tickUpper int, liquidity *ui.Int) (*ui.Int, *ui.Int, error)
	Burn(owner common.Address, tickLower, tickUpper int, liquidity *ui.Int) (*ui.Int, *ui.Int, error)
	Collect(owner common.Address, tickLower, tickUpper int, max0, max1 *ui.Int) (*ui.Int, *ui.Int, error)
	RecordedPosition(owner common.Address, tickLower, tickUpper int) (liquidity, feeGrowthInside0, feeGrowthInside1, owed0, owed1 *ui.Int)
}

// TokenBank moves and reports token custody.
type TokenBank interface {
	Balance(token, holder common.Address) *ui.Int
	Move(token, from, to common.Address, amount *ui.Int) error
}

// Governance supplies the protocol-wide settings the vault reads from its
// factory: the fee cut on collected swap fees and who may withdraw it.
type Governance interface {
	ProtocolFee() uint64
	FeeCollector() common.Address
}

// Clock reports the current simulation time in seconds.
type Clock interface {
	Now() uint64
}

// Params configures a new vault.
type Params struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address

	Pool  LiquidityPool
	Bank  TokenBank
	Gov   Governance
	Clock Clock

	Manager          common.Address
	BaseThreshold    int
	LimitThreshold   int
	FullRangeWeight  uint64 // fraction of 1e6 backing the full-range order
	Period           uint64 // seconds that must pass between rebalances
	MinTickMove      int
	MaxTwapDeviation int
	TwapDuration     uint32 // seconds
	MaxTotalSupply   *ui.Int

	Log *zap.Logger
}

// Vault manages a three-range liquidity strategy on a single pool and
// tracks a proportional share ledger over the holdings. All methods are
// safe for concurrent use.
type Vault struct {
	mu sync.Mutex

	addr   common.Address
	token0 common.Address
	token1 common.Address

	pool  LiquidityPool
	bank  TokenBank
	gov   Governance
	clock Clock
	log   *zap.Logger

	manager        common.Address
	pendingManager common.Address

	baseThreshold    int
	limitThreshold   int
	fullRangeWeight  uint64
	period           uint64
	minTickMove      int
	maxTwapDeviation int
	twapDuration     uint32
	maxTotalSupply   *ui.Int

	fullLower  int
	fullUpper  int
	baseLower  int
	baseUpper  int
	limitLower int
	limitUpper int

	lastTimestamp uint64
	lastTick      int

	// protocolFee is the factory fee frozen at the last rebalance so a
	// mid-cycle change cannot retroactively apply to fees already earned.
	protocolFee          uint64
	accruedProtocolFees0 *ui.Int
	accruedProtocolFees1 *ui.Int

	totalSupply   *ui.Int
	shareBalances map[common.Address]*ui.Int
}

// New validates params and returns a vault with its full range fixed to
// the widest placement the pool's tick spacing allows. The base and limit
// ranges stay empty until the first rebalance.
func New(p Params) (*Vault, error) {
	if p.Pool == nil || p.Bank == nil || p.Gov == nil || p.Clock == nil {
		return nil, fmt.Errorf("%w: missing pool, bank, governance or clock", ErrInvalidConfig)
	}
	var zero common.Address
	if p.Address == zero {
		return nil, fmt.Errorf("%w: vault address required", ErrInvalidConfig)
	}
	if p.Token0 == zero || p.Token1 == zero || p.Token0 == p.Token1 {
		return nil, fmt.Errorf("%w: need two distinct tokens", ErrInvalidConfig)
	}
	if p.Manager == zero {
		return nil, fmt.Errorf("%w: manager required", ErrInvalidConfig)
	}
	spacing := p.Pool.TickSpacing()
	if err := checkThreshold(p.BaseThreshold, spacing); err != nil {
		return nil, err
	}
	if err := checkThreshold(p.LimitThreshold, spacing); err != nil {
		return nil, err
	}
	if p.FullRangeWeight > cons.FeeScale {
		return nil, fmt.Errorf("%w: full range weight %d above %d", ErrInvalidConfig, p.FullRangeWeight, cons.FeeScale)
	}
	if p.TwapDuration == 0 {
		return nil, fmt.Errorf("%w: twap duration required", ErrInvalidConfig)
	}
	if p.MinTickMove < 0 {
		return nil, fmt.Errorf("%w: min tick move %d negative", ErrInvalidConfig, p.MinTickMove)
	}
	if p.MaxTwapDeviation < 0 {
		return nil, fmt.Errorf("%w: max twap deviation %d negative", ErrInvalidConfig, p.MaxTwapDeviation)
	}
	if p.MaxTotalSupply == nil {
		return nil, fmt.Errorf("%w: max total supply required", ErrInvalidConfig)
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	fullLower, fullUpper := FullRange(spacing)
	v := &Vault{
		addr:   p.Address,
		token0: p.Token0,
		token1: p.Token1,
		pool:   p.Pool,
		bank:   p.Bank,
		gov:    p.Gov,
		clock:  p.Clock,
		log:    log,

		manager:          p.Manager,
		baseThreshold:    p.BaseThreshold,
		limitThreshold:   p.LimitThreshold,
		fullRangeWeight:  p.FullRangeWeight,
		period:           p.Period,
		minTickMove:      p.MinTickMove,
		maxTwapDeviation: p.MaxTwapDeviation,
		twapDuration:     p.TwapDuration,
		maxTotalSupply:   p.MaxTotalSupply.Clone(),

		fullLower: fullLower,
		fullUpper: fullUpper,

		protocolFee:          p.Gov.ProtocolFee(),
		accruedProtocolFees0: ui.NewInt(0),
		accruedProtocolFees1: ui.NewInt(0),

		totalSupply:   ui.NewInt(0),
		shareBalances: make(map[common.Address]*ui.Int),
	}
	return v, nil
}

// Deposit pays in up to the desired amounts in exchange for newly minted
// shares. Amounts are rounded against the depositor so existing holders
// are never diluted; the actual amounts are returned and must meet the
// given minimums. Nothing is moved unless the whole deposit succeeds.
func (v *Vault) Deposit(sender, to common.Address, amount0Desired, amount1Desired, amount0Min, amount1Min *ui.Int) (shares, amount0, amount1 *ui.Int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	amount0Desired = valueOrZero(amount0Desired)
	amount1Desired = valueOrZero(amount1Desired)
	amount0Min = valueOrZero(amount0Min)
	amount1Min = valueOrZero(amount1Min)

	if amount0Desired.IsZero() && amount1Desired.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: nothing to deposit", ErrZeroInput)
	}
	if err := v.checkRecipient(to); err != nil {
		return nil, nil, nil, err
	}

	// Fold pending fees into the positions so totals are current.
	if err := v.pokeAll(); err != nil {
		return nil, nil, nil, err
	}

	total0, total1 := v.totalAmounts()
	shares, amount0, amount1, err = v.calcSharesAndAmounts(total0, total1, amount0Desired, amount1Desired)
	if err != nil {
		return nil, nil, nil, err
	}
	if shares.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: deposit produces no shares", ErrZeroInput)
	}
	if amount0.Lt(amount0Min) {
		return nil, nil, nil, fmt.Errorf("%w: amount0 %s < %s", ErrSlippageExceeded, amount0.Dec(), amount0Min.Dec())
	}
	if amount1.Lt(amount1Min) {
		return nil, nil, nil, fmt.Errorf("%w: amount1 %s < %s", ErrSlippageExceeded, amount1.Dec(), amount1Min.Dec())
	}
	newSupply := new(ui.Int).Add(v.totalSupply, shares)
	if newSupply.Gt(v.maxTotalSupply) {
		return nil, nil, nil, fmt.Errorf("%w: supply %s over cap %s", ErrSupplyCapExceeded, newSupply.Dec(), v.maxTotalSupply.Dec())
	}

	// Both transfers have to clear before anything is committed.
	if v.bank.Balance(v.token0, sender).Lt(amount0) {
		return nil, nil, nil, fmt.Errorf("deposit %s of token0: %w", amount0.Dec(), bank.ErrInsufficientBalance)
	}
	if v.bank.Balance(v.token1, sender).Lt(amount1) {
		return nil, nil, nil, fmt.Errorf("deposit %s of token1: %w", amount1.Dec(), bank.ErrInsufficientBalance)
	}
	if err := v.bank.Move(v.token0, sender, v.addr, amount0); err != nil {
		return nil, nil, nil, err
	}
	if err := v.bank.Move(v.token1, sender, v.addr, amount1); err != nil {
		return nil, nil, nil, err
	}
	v.mintShares(to, shares)

	v.log.Info("deposit",
		zap.String("sender", sender.Hex()),
		zap.String("to", to.Hex()),
		zap.String("shares", shares.Dec()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return shares, amount0, amount1, nil
}

// Withdraw burns shares and pays out the proportional part of everything
// the vault holds: idle balances, deployed liquidity and the vault's cut
// of fees owed on each range. The payout must meet the given minimums or
// the whole withdrawal fails before any state changes.
func (v *Vault) Withdraw(sender, to common.Address, shares, amount0Min, amount1Min *ui.Int) (amount0, amount1 *ui.Int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if shares == nil || shares.IsZero() {
		return nil, nil, fmt.Errorf("%w: no shares to redeem", ErrZeroInput)
	}
	amount0Min = valueOrZero(amount0Min)
	amount1Min = valueOrZero(amount1Min)
	if err := v.checkRecipient(to); err != nil {
		return nil, nil, err
	}
	if bal, ok := v.shareBalances[sender]; !ok || bal.Lt(shares) {
		return nil, nil, fmt.Errorf("%w: burn exceeds share balance of %s", ErrArithmeticOverflow, sender.Hex())
	}
	totalSupply := v.totalSupply.Clone()

	// Materialize pending fees so the owed amounts below are complete.
	if err := v.pokeAll(); err != nil {
		return nil, nil, err
	}

	// Work the exits out up front; the pool is only touched once the
	// minimums are known to clear.
	amount0 = fullmath.MulDiv(v.balance0(), shares, totalSupply)
	amount1 = fullmath.MulDiv(v.balance1(), shares, totalSupply)

	type exit struct {
		lower, upper int
		liquidity    *ui.Int
	}
	var exits []exit
	predicted0 := amount0.Clone()
	predicted1 := amount1.Clone()
	for _, r := range v.allRanges() {
		liquidity, _, _, owed0, owed1 := v.pool.RecordedPosition(v.addr, r.lower, r.upper)
		share := fullmath.MulDiv(liquidity, shares, totalSupply)
		if share.IsZero() {
			continue
		}
		exits = append(exits, exit{r.lower, r.upper, share})
		burn0, burn1 := v.amountsForLiquidity(r.lower, r.upper, share)
		feesToVault0, _ := v.splitFees(owed0)
		feesToVault1, _ := v.splitFees(owed1)
		predicted0.Add(predicted0, burn0)
		predicted0.Add(predicted0, fullmath.MulDiv(feesToVault0, shares, totalSupply))
		predicted1.Add(predicted1, burn1)
		predicted1.Add(predicted1, fullmath.MulDiv(feesToVault1, shares, totalSupply))
	}
	if predicted0.Lt(amount0Min) {
		return nil, nil, fmt.Errorf("%w: amount0 %s < %s", ErrSlippageExceeded, predicted0.Dec(), amount0Min.Dec())
	}
	if predicted1.Lt(amount1Min) {
		return nil, nil, fmt.Errorf("%w: amount1 %s < %s", ErrSlippageExceeded, predicted1.Dec(), amount1Min.Dec())
	}

	for _, e := range exits {
		burned0, burned1, fees0, fees1, err := v.burnAndCollect(e.lower, e.upper, e.liquidity)
		if err != nil {
			return nil, nil, err
		}
		amount0.Add(amount0, burned0)
		amount0.Add(amount0, fullmath.MulDiv(fees0, shares, totalSupply))
		amount1.Add(amount1, burned1)
		amount1.Add(amount1, fullmath.MulDiv(fees1, shares, totalSupply))
	}

	if !amount0.IsZero() {
		if err := v.bank.Move(v.token0, v.addr, to, amount0); err != nil {
			return nil, nil, err
		}
	}
	if !amount1.IsZero() {
		if err := v.bank.Move(v.token1, v.addr, to, amount1); err != nil {
			return nil, nil, err
		}
	}
	if err := v.burnShares(sender, shares); err != nil {
		return nil, nil, err
	}

	v.log.Info("withdraw",
		zap.String("sender", sender.Hex()),
		zap.String("to", to.Hex()),
		zap.String("shares", shares.Dec()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return amount0, amount1, nil
}

// GetTotalAmounts returns the vault's holdings in both tokens: idle
// balances plus the value of all three ranges, with the protocol's unpaid
// fee cut excluded throughout.
func (v *Vault) GetTotalAmounts() (total0, total1 *ui.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalAmounts()
}

// GetPositionAmounts values one range as the amounts its liquidity would
// pay out at the current price plus the vault's share of fees owed on it.
func (v *Vault) GetPositionAmounts(tickLower, tickUpper int) (amount0, amount1 *ui.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionAmounts(tickLower, tickUpper)
}

// Address returns the vault's custody address.
func (v *Vault) Address() common.Address { return v.addr }

// Token0 returns the pool's first token.
func (v *Vault) Token0() common.Address { return v.token0 }

// Token1 returns the pool's second token.
func (v *Vault) Token1() common.Address { return v.token1 }

// Manager returns the current manager.
func (v *Vault) Manager() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.manager
}

// PendingManager returns the nominated manager, if any.
func (v *Vault) PendingManager() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingManager
}

// FullRangeBounds returns the fixed full-range placement.
func (v *Vault) FullRangeBounds() (lower, upper int) {
	return v.fullLower, v.fullUpper
}

// BaseRange returns the current base order placement.
func (v *Vault) BaseRange() (lower, upper int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.baseLower, v.baseUpper
}

// LimitRange returns the current limit order placement.
func (v *Vault) LimitRange() (lower, upper int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.limitLower, v.limitUpper
}

func (v *Vault) BaseThreshold() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.baseThreshold
}

func (v *Vault) LimitThreshold() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.limitThreshold
}

// LastRebalance returns when the last rebalance ran and the tick it saw.
func (v *Vault) LastRebalance() (timestamp uint64, tick int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastTimestamp, v.lastTick
}

// ProtocolFee returns the fee fraction frozen at the last rebalance.
func (v *Vault) ProtocolFee() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.protocolFee
}

// AccruedProtocolFees returns the fees set aside for the fee collector.
func (v *Vault) AccruedProtocolFees() (fees0, fees1 *ui.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accruedProtocolFees0.Clone(), v.accruedProtocolFees1.Clone()
}

// MaxTotalSupply returns the share supply cap.
func (v *Vault) MaxTotalSupply() *ui.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxTotalSupply.Clone()
}

func (v *Vault) checkRecipient(to common.Address) error {
	if to == (common.Address{}) || to == v.addr {
		return fmt.Errorf("%w: %s", ErrInvalidRecipient, to.Hex())
	}
	return nil
}

func valueOrZero(x *ui.Int) *ui.Int {
	if x == nil {
		return ui.NewInt(0)
	}
	return x
}
