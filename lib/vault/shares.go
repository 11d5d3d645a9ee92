package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
)

const (
	// ShareName and ShareSymbol label the vault's share ledger.
	ShareName   = "Range Vault"
	ShareSymbol = "RV"
	// ShareDecimals matches the display precision of the share token.
	ShareDecimals = 18
)

// Name returns the share token name.
func (v *Vault) Name() string { return ShareName }

// Symbol returns the share token symbol.
func (v *Vault) Symbol() string { return ShareSymbol }

// Decimals returns the share token display precision.
func (v *Vault) Decimals() uint8 { return ShareDecimals }

// TotalSupply returns the number of shares in existence.
func (v *Vault) TotalSupply() *ui.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalSupply.Clone()
}

// BalanceOf returns the share balance of holder.
func (v *Vault) BalanceOf(holder common.Address) *ui.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if bal, ok := v.shareBalances[holder]; ok {
		return bal.Clone()
	}
	return ui.NewInt(0)
}

func (v *Vault) mintShares(to common.Address, shares *ui.Int) {
	bal, ok := v.shareBalances[to]
	if !ok {
		bal = ui.NewInt(0)
		v.shareBalances[to] = bal
	}
	bal.Add(bal, shares)
	v.totalSupply.Add(v.totalSupply, shares)
}

func (v *Vault) burnShares(from common.Address, shares *ui.Int) error {
	bal, ok := v.shareBalances[from]
	if !ok || bal.Lt(shares) {
		return fmt.Errorf("%w: burn exceeds share balance of %s", ErrArithmeticOverflow, from)
	}
	bal.Sub(bal, shares)
	if bal.IsZero() {
		delete(v.shareBalances, from)
	}
	v.totalSupply.Sub(v.totalSupply, shares)
	return nil
}

// calcSharesAndAmounts computes the largest shares amount backed by the
// desired deposit and the exact token amounts owed for it. Amounts round
// up and shares round down so a deposit can never dilute existing holders.
func (v *Vault) calcSharesAndAmounts(total0, total1, amount0Desired, amount1Desired *ui.Int) (shares, amount0, amount1 *ui.Int, err error) {
	totalSupply := v.totalSupply
	if totalSupply.IsZero() {
		// First depositor sets the initial share price.
		amount0 = amount0Desired.Clone()
		amount1 = amount1Desired.Clone()
		if amount0.Gt(amount1) {
			shares = amount0.Clone()
		} else {
			shares = amount1.Clone()
		}
		return shares, amount0, amount1, nil
	}

	if total0.IsZero() && total1.IsZero() {
		panic("vault: nonzero supply with zero holdings")
	}

	var overflow bool
	switch {
	case total0.IsZero():
		amount0 = ui.NewInt(0)
		amount1 = amount1Desired.Clone()
		shares, overflow = new(ui.Int).MulDivOverflow(amount1, totalSupply, total1)
		if overflow {
			return nil, nil, nil, fmt.Errorf("%w: deposit too large", ErrArithmeticOverflow)
		}
	case total1.IsZero():
		amount0 = amount0Desired.Clone()
		amount1 = ui.NewInt(0)
		shares, overflow = new(ui.Int).MulDivOverflow(amount0, totalSupply, total0)
		if overflow {
			return nil, nil, nil, fmt.Errorf("%w: deposit too large", ErrArithmeticOverflow)
		}
	default:
		cross0, overflow0 := new(ui.Int).MulOverflow(amount0Desired, total1)
		cross1, overflow1 := new(ui.Int).MulOverflow(amount1Desired, total0)
		if overflow0 || overflow1 {
			return nil, nil, nil, fmt.Errorf("%w: deposit too large", ErrArithmeticOverflow)
		}
		cross := cross0
		if cross1.Lt(cross0) {
			cross = cross1
		}
		if cross.IsZero() {
			return nil, nil, nil, ErrZeroCross
		}

		// Round amounts up and shares down.
		one := ui.NewInt(1)
		amount0 = new(ui.Int).Sub(cross, one)
		amount0.Div(amount0, total1)
		amount0.Add(amount0, one)
		amount1 = new(ui.Int).Sub(cross, one)
		amount1.Div(amount1, total0)
		amount1.Add(amount1, one)
		shares, overflow = new(ui.Int).MulDivOverflow(cross, totalSupply, total0)
		if overflow {
			return nil, nil, nil, fmt.Errorf("%w: deposit too large", ErrArithmeticOverflow)
		}
		shares.Div(shares, total1)
	}
	return shares, amount0, amount1, nil
}
