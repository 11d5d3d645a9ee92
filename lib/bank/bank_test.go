package bank

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
)

var (
	token = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMintAndMove(t *testing.T) {
	b := New()
	b.Mint(token, alice, ui.NewInt(1000))

	if err := b.Move(token, alice, bob, ui.NewInt(300)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := b.Balance(token, alice); !got.Eq(ui.NewInt(700)) {
		t.Errorf("alice = %v, want 700", got.Dec())
	}
	if got := b.Balance(token, bob); !got.Eq(ui.NewInt(300)) {
		t.Errorf("bob = %v, want 300", got.Dec())
	}
}

func TestMoveInsufficient(t *testing.T) {
	b := New()
	b.Mint(token, alice, ui.NewInt(100))
	err := b.Move(token, alice, bob, ui.NewInt(101))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	// failed moves must not touch either side
	if got := b.Balance(token, alice); !got.Eq(ui.NewInt(100)) {
		t.Errorf("alice = %v, want 100", got.Dec())
	}
	if got := b.Balance(token, bob); !got.IsZero() {
		t.Errorf("bob = %v, want 0", got.Dec())
	}
}

func TestZeroMoveIsNoop(t *testing.T) {
	b := New()
	if err := b.Move(token, alice, bob, ui.NewInt(0)); err != nil {
		t.Fatalf("zero move: %v", err)
	}
	if err := b.Move(token, alice, bob, nil); err != nil {
		t.Fatalf("nil move: %v", err)
	}
}

func TestBalanceReturnsCopy(t *testing.T) {
	b := New()
	b.Mint(token, alice, ui.NewInt(50))
	bal := b.Balance(token, alice)
	bal.Add(bal, ui.NewInt(1000))
	if got := b.Balance(token, alice); !got.Eq(ui.NewInt(50)) {
		t.Errorf("ledger mutated through a returned balance: %v", got.Dec())
	}
}
