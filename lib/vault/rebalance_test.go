package vault

import (
	"errors"
	"testing"

	"github.com/ftchann/vault-simulator/lib/bank"
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/fullmath"
	"github.com/ftchann/vault-simulator/lib/pool"

	ui "github.com/holiman/uint256"
)

func TestShouldRebalanceGates(t *testing.T) {
	t.Run("fresh vault eligible", func(t *testing.T) {
		v, _, _, _ := newTestVault(t, 0)
		if !v.ShouldRebalance() {
			t.Fatalf("want=true")
		}
	})

	t.Run("period gate", func(t *testing.T) {
		v, p, _, _ := newTestVault(t, 0)
		v.lastTimestamp = p.Now()
		v.period = 3600
		if v.ShouldRebalance() {
			t.Fatalf("want=false before period elapses")
		}
		p.AdvanceTo(p.Now() + 3600)
		if !v.ShouldRebalance() {
			t.Fatalf("want=true after period elapses")
		}
	})

	t.Run("tick move gate", func(t *testing.T) {
		v, _, _, _ := newTestVault(t, 0)
		v.minTickMove = 1
		if v.ShouldRebalance() {
			t.Fatalf("want=false while tick sits on lastTick")
		}
	})

	t.Run("twap deviation gate", func(t *testing.T) {
		v, p, _, _ := newTestVault(t, 0)
		p.TickCurrent = 500
		// History still averages near zero, so the tick is 500 away
		// from its twap.
		if v.ShouldRebalance() {
			t.Fatalf("want=false while price runs from its twap")
		}
		p.AdvanceTo(p.Now() + 300)
		if !v.ShouldRebalance() {
			t.Fatalf("want=true once the twap catches up")
		}
	})

	t.Run("boundary gate", func(t *testing.T) {
		v, p, _, _ := newTestVault(t, 0)
		v.maxTwapDeviation = 10000000
		p.TickCurrent = -884000
		p.AdvanceTo(p.Now() + 600)
		if v.ShouldRebalance() {
			t.Fatalf("want=false near the lower tick limit")
		}
		p.TickCurrent = 884000
		p.AdvanceTo(p.Now() + 600)
		if v.ShouldRebalance() {
			t.Fatalf("want=false near the upper tick limit")
		}
		p.TickCurrent = 0
		p.AdvanceTo(p.Now() + 600)
		if !v.ShouldRebalance() {
			t.Fatalf("want=true back in the open interior")
		}
	})

	t.Run("missing twap history", func(t *testing.T) {
		b := bank.New()
		p, err := pool.NewPool(usdc, weth, 3000, cons.Q96.Clone(), b, startTime)
		if err != nil {
			t.Fatalf("new pool: %v", err)
		}
		gov := &testGov{feeCollector: collector}
		v, err := New(testParams(p, b, gov))
		if err != nil {
			t.Fatalf("new vault: %v", err)
		}
		// The pool has no observations reaching back a full window yet.
		if v.ShouldRebalance() {
			t.Fatalf("want=false without twap history")
		}
	})
}

func TestTwap(t *testing.T) {
	v, p, _, _ := newTestVault(t, 0)

	twap, err := v.twap()
	if err != nil || twap != 0 {
		t.Fatalf("want=0 result=%d err=%v", twap, err)
	}

	p.TickCurrent = 100
	p.AdvanceTo(p.Now() + 600)
	twap, err = v.twap()
	if err != nil || twap != 100 {
		t.Fatalf("want=100 result=%d err=%v", twap, err)
	}

	p.TickCurrent = -50
	p.AdvanceTo(p.Now() + 600)
	twap, err = v.twap()
	if err != nil || twap != -50 {
		t.Fatalf("want=-50 result=%d err=%v", twap, err)
	}
}

func TestRebalanceNotEligible(t *testing.T) {
	v, p, _, _ := newTestVault(t, 0)
	v.lastTimestamp = p.Now()
	v.period = 3600
	if err := v.Rebalance(bob); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("want=ErrNotEligible result=%v", err)
	}
}

func TestRebalancePlacesOrders(t *testing.T) {
	v, p, _, _ := newTestVault(t, 0)
	if _, _, _, err := v.Deposit(alice, alice, ui.NewInt(1000000000000), ui.NewInt(1000000000000), nil, nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Rebalancing needs no special role.
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("rebalance: %v", err)
	}

	if lower, upper := v.BaseRange(); lower != -3600 || upper != 3660 {
		t.Fatalf("base range want=(-3600, 3660) result=(%d, %d)", lower, upper)
	}
	// The base order runs out of token0 first at tick 0, so the leftover
	// token1 backs a bid below the price.
	if lower, upper := v.LimitRange(); lower != -1200 || upper != 0 {
		t.Fatalf("limit range want=(-1200, 0) result=(%d, %d)", lower, upper)
	}
	if ts, tick := v.LastRebalance(); ts != p.Now() || tick != 0 {
		t.Fatalf("last rebalance want=(%d, 0) result=(%d, %d)", p.Now(), ts, tick)
	}

	fullLiq, _, _, _, _ := p.RecordedPosition(vaultAddr, v.fullLower, v.fullUpper)
	baseLiq, _, _, _, _ := p.RecordedPosition(vaultAddr, -3600, 3660)
	limitLiq, _, _, _, _ := p.RecordedPosition(vaultAddr, -1200, 0)
	if fullLiq.IsZero() || baseLiq.IsZero() || limitLiq.IsZero() {
		t.Fatalf("orders missing: full=%s base=%s limit=%s", fullLiq.Dec(), baseLiq.Dec(), limitLiq.Dec())
	}
}

func TestRebalanceEmptyVaultPlacesAsk(t *testing.T) {
	v, p, _, _ := newTestVault(t, 0)
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if lower, upper := v.BaseRange(); lower != -3600 || upper != 3660 {
		t.Fatalf("base range want=(-3600, 3660) result=(%d, %d)", lower, upper)
	}
	// With nothing to place, the bid and ask tie at zero and the ask wins.
	if lower, upper := v.LimitRange(); lower != 60 || upper != 1260 {
		t.Fatalf("limit range want=(60, 1260) result=(%d, %d)", lower, upper)
	}
	if liq, _, _, _, _ := p.RecordedPosition(vaultAddr, -3600, 3660); !liq.IsZero() {
		t.Fatalf("unexpected base liquidity %s", liq.Dec())
	}
}

func TestSplitFees(t *testing.T) {
	v := &Vault{protocolFee: 50000}
	toVault, toProtocol := v.splitFees(ui.NewInt(1000000))
	if !toVault.Eq(ui.NewInt(950000)) || !toProtocol.Eq(ui.NewInt(50000)) {
		t.Fatalf("want=(950000, 50000) result=(%s, %s)", toVault.Dec(), toProtocol.Dec())
	}

	// Remainders stay with the vault.
	toVault, toProtocol = v.splitFees(ui.NewInt(3))
	if !toVault.Eq(ui.NewInt(3)) || !toProtocol.IsZero() {
		t.Fatalf("want=(3, 0) result=(%s, %s)", toVault.Dec(), toProtocol.Dec())
	}

	v.protocolFee = 0
	toVault, toProtocol = v.splitFees(ui.NewInt(1000000))
	if !toVault.Eq(ui.NewInt(1000000)) || !toProtocol.IsZero() {
		t.Fatalf("want=(1000000, 0) result=(%s, %s)", toVault.Dec(), toProtocol.Dec())
	}
}

func TestRebalanceCollectsAndSplitsFees(t *testing.T) {
	v, p, _, _ := newTestVault(t, 50000)
	if _, _, _, err := v.Deposit(alice, alice, ui.NewInt(1000000000000), ui.NewInt(1000000000000), nil, nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("rebalance: %v", err)
	}

	// A swap leaves token0 fees pending on the in-range orders.
	if _, _, err := p.ExactInputSwap(bob, ui.NewInt(1000000000), usdc, nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if err := v.pokeAll(); err != nil {
		t.Fatalf("poke: %v", err)
	}
	expected := ui.NewInt(0)
	totalOwed := ui.NewInt(0)
	for _, r := range v.allRanges() {
		_, _, _, owed0, _ := p.RecordedPosition(vaultAddr, r.lower, r.upper)
		totalOwed.Add(totalOwed, owed0)
		expected.Add(expected, fullmath.MulDiv(owed0, ui.NewInt(50000), cons.E6))
	}
	if totalOwed.IsZero() {
		t.Fatalf("swap generated no fees")
	}

	p.AdvanceTo(p.Now() + 120)
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("second rebalance: %v", err)
	}
	accrued0, accrued1 := v.AccruedProtocolFees()
	if !accrued0.Eq(expected) {
		t.Fatalf("accrued0 want=%s result=%s", expected.Dec(), accrued0.Dec())
	}
	if !accrued1.IsZero() {
		t.Fatalf("accrued1 want=0 result=%s", accrued1.Dec())
	}
}

func TestRebalanceResnapshotsProtocolFee(t *testing.T) {
	v, p, _, gov := newTestVault(t, 0)
	if _, _, _, err := v.Deposit(alice, alice, ui.NewInt(1000000000000), ui.NewInt(1000000000000), nil, nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("rebalance: %v", err)
	}

	if _, _, err := p.ExactInputSwap(bob, ui.NewInt(1000000000), usdc, nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	gov.fee = 50000
	if v.ProtocolFee() != 0 {
		t.Fatalf("snapshot moved before rebalance: %d", v.ProtocolFee())
	}

	// Fees earned under the old snapshot are split at the old rate; the
	// new rate only applies from here on.
	p.AdvanceTo(p.Now() + 120)
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("second rebalance: %v", err)
	}
	accrued0, _ := v.AccruedProtocolFees()
	if !accrued0.IsZero() {
		t.Fatalf("old-rate fees should owe nothing, got %s", accrued0.Dec())
	}
	if v.ProtocolFee() != 50000 {
		t.Fatalf("snapshot want=50000 result=%d", v.ProtocolFee())
	}

	if _, _, err := p.ExactInputSwap(bob, ui.NewInt(1000000000), usdc, nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	p.AdvanceTo(p.Now() + 120)
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("third rebalance: %v", err)
	}
	accrued0, _ = v.AccruedProtocolFees()
	if accrued0.IsZero() {
		t.Fatalf("new-rate fees missing")
	}
}

func TestWithdrawAfterRebalanceLeavesOnlyProtocolFees(t *testing.T) {
	v, p, b, _ := newTestVault(t, 50000)
	shares, _, _, err := v.Deposit(alice, alice, ui.NewInt(1000000000000), ui.NewInt(1000000000000), nil, nil)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if _, _, err := p.ExactInputSwap(bob, ui.NewInt(1000000000), usdc, nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	// The sole holder redeems everything: the only value left behind is
	// the protocol's accrued cut.
	if _, _, err := v.Withdraw(alice, alice, shares, nil, nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !v.TotalSupply().IsZero() {
		t.Fatalf("supply want=0 result=%s", v.TotalSupply().Dec())
	}
	accrued0, accrued1 := v.AccruedProtocolFees()
	if !b.Balance(usdc, vaultAddr).Eq(accrued0) {
		t.Fatalf("token0 custody want=%s result=%s", accrued0.Dec(), b.Balance(usdc, vaultAddr).Dec())
	}
	if !b.Balance(weth, vaultAddr).Eq(accrued1) {
		t.Fatalf("token1 custody want=%s result=%s", accrued1.Dec(), b.Balance(weth, vaultAddr).Dec())
	}

	// Collecting the accrued fees empties the vault completely.
	if err := v.CollectProtocolFees(collector, collector, accrued0, accrued1); err != nil {
		t.Fatalf("collect protocol fees: %v", err)
	}
	if !b.Balance(usdc, vaultAddr).IsZero() || !b.Balance(weth, vaultAddr).IsZero() {
		t.Fatalf("vault custody not drained: (%s, %s)",
			b.Balance(usdc, vaultAddr).Dec(), b.Balance(weth, vaultAddr).Dec())
	}
}

func TestPokeKeepsOwedStable(t *testing.T) {
	v, p, _, _ := newTestVault(t, 0)
	if _, _, _, err := v.Deposit(alice, alice, ui.NewInt(1000000000000), ui.NewInt(1000000000000), nil, nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := v.Rebalance(bob); err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if _, _, err := p.ExactInputSwap(bob, ui.NewInt(1000000000), usdc, nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if err := v.pokeAll(); err != nil {
		t.Fatalf("poke: %v", err)
	}
	first := make([]*ui.Int, 0, 3)
	for _, r := range v.allRanges() {
		_, _, _, owed0, _ := p.RecordedPosition(vaultAddr, r.lower, r.upper)
		first = append(first, owed0)
	}
	if err := v.pokeAll(); err != nil {
		t.Fatalf("second poke: %v", err)
	}
	for i, r := range v.allRanges() {
		_, _, _, owed0, _ := p.RecordedPosition(vaultAddr, r.lower, r.upper)
		if !owed0.Eq(first[i]) {
			t.Fatalf("owed drifted on re-poke: want=%s result=%s", first[i].Dec(), owed0.Dec())
		}
	}
}
