package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type account struct {
	token  common.Address
	holder common.Address
}

// Bank is an in-memory token ledger. It settles every transfer a run
// performs: deposits into the vault, pool mints and collects, swap legs and
// fee payouts. Keeping all custody in one place lets tests assert that no
// token ever appears out of thin air.
type Bank struct {
	balances map[account]*ui.Int
}

func New() *Bank {
	return &Bank{balances: make(map[account]*ui.Int)}
}

// Mint credits a holder with new tokens. It is the only way supply enters
// the ledger and is meant for run setup.
func (b *Bank) Mint(token, to common.Address, amount *ui.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	key := account{token, to}
	bal := b.balances[key]
	if bal == nil {
		bal = ui.NewInt(0)
		b.balances[key] = bal
	}
	bal.Add(bal, amount)
}

// Balance returns a copy of the holder's balance.
func (b *Bank) Balance(token, holder common.Address) *ui.Int {
	bal := b.balances[account{token, holder}]
	if bal == nil {
		return ui.NewInt(0)
	}
	return bal.Clone()
}

// Move transfers amount between holders. Zero moves are no-ops.
func (b *Bank) Move(token, from, to common.Address, amount *ui.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromKey := account{token, from}
	bal := b.balances[fromKey]
	if bal == nil || bal.Lt(amount) {
		have := ui.NewInt(0)
		if bal != nil {
			have = bal
		}
		return fmt.Errorf("move %s of %s from %s: %w (have %s)",
			amount.Dec(), token, from, ErrInsufficientBalance, have.Dec())
	}
	bal.Sub(bal, amount)
	toKey := account{token, to}
	dst := b.balances[toKey]
	if dst == nil {
		dst = ui.NewInt(0)
		b.balances[toKey] = dst
	}
	dst.Add(dst, amount)
	return nil
}
