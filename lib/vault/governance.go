package vault

import (
	"fmt"

	cons "github.com/ftchann/vault-simulator/lib/constants"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

func (v *Vault) requireManager(caller common.Address) error {
	if caller != v.manager {
		return fmt.Errorf("%w: %s is not the manager", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// SetManager nominates a new manager. The handoff completes only when the
// nominee calls AcceptManager.
func (v *Vault) SetManager(caller, next common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	v.pendingManager = next
	v.log.Info("manager nominated", zap.String("pending", next.Hex()))
	return nil
}

// AcceptManager completes a pending manager handoff.
func (v *Vault) AcceptManager(caller common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.pendingManager {
		return fmt.Errorf("%w: %s is not the pending manager", ErrUnauthorized, caller.Hex())
	}
	v.manager = caller
	v.log.Info("manager changed", zap.String("manager", caller.Hex()))
	return nil
}

// SetBaseThreshold changes the base order half-width. Takes effect at the
// next rebalance.
func (v *Vault) SetBaseThreshold(caller common.Address, threshold int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if err := checkThreshold(threshold, v.pool.TickSpacing()); err != nil {
		return err
	}
	v.baseThreshold = threshold
	return nil
}

// SetLimitThreshold changes the limit order width. Takes effect at the
// next rebalance.
func (v *Vault) SetLimitThreshold(caller common.Address, threshold int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if err := checkThreshold(threshold, v.pool.TickSpacing()); err != nil {
		return err
	}
	v.limitThreshold = threshold
	return nil
}

// SetFullRangeWeight changes the fraction of holdings pinned to the full
// range, on the 1e6 scale.
func (v *Vault) SetFullRangeWeight(caller common.Address, weight uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if weight > cons.FeeScale {
		return fmt.Errorf("%w: full range weight %d above %d", ErrInvalidConfig, weight, cons.FeeScale)
	}
	v.fullRangeWeight = weight
	return nil
}

// SetPeriod changes the minimum seconds between rebalances.
func (v *Vault) SetPeriod(caller common.Address, period uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	v.period = period
	return nil
}

// SetMinTickMove changes how far the tick must have moved since the last
// rebalance before another is allowed.
func (v *Vault) SetMinTickMove(caller common.Address, move int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if move < 0 {
		return fmt.Errorf("%w: min tick move %d negative", ErrInvalidConfig, move)
	}
	v.minTickMove = move
	return nil
}

// SetMaxTwapDeviation changes how far the tick may sit from its time
// weighted average for a rebalance to proceed.
func (v *Vault) SetMaxTwapDeviation(caller common.Address, deviation int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if deviation < 0 {
		return fmt.Errorf("%w: max twap deviation %d negative", ErrInvalidConfig, deviation)
	}
	v.maxTwapDeviation = deviation
	return nil
}

// SetTwapDuration changes the averaging window used against manipulation.
func (v *Vault) SetTwapDuration(caller common.Address, duration uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if duration == 0 {
		return fmt.Errorf("%w: twap duration required", ErrInvalidConfig)
	}
	v.twapDuration = duration
	return nil
}

// SetMaxTotalSupply changes the share supply cap. Lowering it below the
// current supply blocks new deposits but never forces exits.
func (v *Vault) SetMaxTotalSupply(caller common.Address, maxSupply *ui.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if maxSupply == nil {
		return fmt.Errorf("%w: max total supply required", ErrInvalidConfig)
	}
	v.maxTotalSupply = maxSupply.Clone()
	return nil
}

// Sweep lets the manager recover tokens accidentally sent to the vault.
// The pool pair itself cannot be swept.
func (v *Vault) Sweep(caller, token common.Address, amount *ui.Int, to common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	if token == v.token0 || token == v.token1 {
		return fmt.Errorf("%w: %s is part of the pool pair", ErrInvalidToken, token.Hex())
	}
	if err := v.bank.Move(token, v.addr, to, amount); err != nil {
		return err
	}
	v.log.Info("sweep",
		zap.String("token", token.Hex()),
		zap.String("amount", valueOrZero(amount).Dec()),
		zap.String("to", to.Hex()),
	)
	return nil
}

// EmergencyBurn pulls liquidity and everything owed out of an arbitrary
// range with no fee split. Withdrawn funds sit in the vault for
// shareholders to redeem.
func (v *Vault) EmergencyBurn(caller common.Address, tickLower, tickUpper int, liquidity *ui.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireManager(caller); err != nil {
		return err
	}
	burned0, burned1, err := v.pool.Burn(v.addr, tickLower, tickUpper, liquidity)
	if err != nil {
		return err
	}
	collected0, collected1, err := v.pool.Collect(v.addr, tickLower, tickUpper, nil, nil)
	if err != nil {
		return err
	}
	v.log.Warn("emergency burn",
		zap.Int("tickLower", tickLower),
		zap.Int("tickUpper", tickUpper),
		zap.String("burned0", burned0.Dec()),
		zap.String("burned1", burned1.Dec()),
		zap.String("collected0", collected0.Dec()),
		zap.String("collected1", collected1.Dec()),
	)
	return nil
}

// CollectProtocolFees pays out accrued protocol fees. Only the factory's
// fee collector may call it, and only up to what has accrued.
func (v *Vault) CollectProtocolFees(caller, to common.Address, amount0, amount1 *ui.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.gov.FeeCollector() {
		return fmt.Errorf("%w: %s is not the fee collector", ErrUnauthorized, caller.Hex())
	}
	amount0 = valueOrZero(amount0)
	amount1 = valueOrZero(amount1)
	if amount0.Gt(v.accruedProtocolFees0) || amount1.Gt(v.accruedProtocolFees1) {
		return fmt.Errorf("%w: collect exceeds accrued protocol fees", ErrArithmeticOverflow)
	}
	if !amount0.IsZero() {
		if err := v.bank.Move(v.token0, v.addr, to, amount0); err != nil {
			return err
		}
	}
	if !amount1.IsZero() {
		if err := v.bank.Move(v.token1, v.addr, to, amount1); err != nil {
			return err
		}
	}
	v.accruedProtocolFees0.Sub(v.accruedProtocolFees0, amount0)
	v.accruedProtocolFees1.Sub(v.accruedProtocolFees1, amount1)
	v.log.Info("protocol fees collected",
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
		zap.String("to", to.Hex()),
	)
	return nil
}
