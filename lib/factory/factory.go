package factory

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ftchann/vault-simulator/lib/bank"
	cons "github.com/ftchann/vault-simulator/lib/constants"
	"github.com/ftchann/vault-simulator/lib/pool"
	"github.com/ftchann/vault-simulator/lib/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Factory creates vaults and owns the protocol-wide fee settings they
// snapshot. It is the Governance every vault it creates reads from, and
// its governance address doubles as the fee collector.
type Factory struct {
	mu sync.Mutex

	governance        common.Address
	pendingGovernance common.Address
	protocolFee       uint64

	bank   *bank.Bank
	log    *zap.Logger
	vaults []*vault.Vault
	byAddr map[common.Address]*vault.Vault
	serial uint64
}

// VaultConfig carries the strategy parameters for a new vault.
type VaultConfig struct {
	Manager          common.Address
	BaseThreshold    int
	LimitThreshold   int
	FullRangeWeight  uint64
	Period           uint64
	MinTickMove      int
	MaxTwapDeviation int
	TwapDuration     uint32
	MaxTotalSupply   *ui.Int
}

// New returns a factory governed by the given address. The protocol fee
// must sit strictly below the 1e6 scale.
func New(governance common.Address, protocolFee uint64, b *bank.Bank, log *zap.Logger) (*Factory, error) {
	if governance == (common.Address{}) {
		return nil, fmt.Errorf("%w: governance required", vault.ErrInvalidConfig)
	}
	if protocolFee >= cons.FeeScale {
		return nil, fmt.Errorf("%w: protocol fee %d not below %d", vault.ErrInvalidConfig, protocolFee, cons.FeeScale)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: bank required", vault.ErrInvalidConfig)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{
		governance:  governance,
		protocolFee: protocolFee,
		bank:        b,
		log:         log,
		byAddr:      make(map[common.Address]*vault.Vault),
	}, nil
}

// CreateVault wires a new vault to the given pool. The vault gets its own
// custody address derived from the pool and a running serial.
func (f *Factory) CreateVault(p *pool.Pool, cfg VaultConfig) (*vault.Vault, error) {
	f.mu.Lock()
	var serial [8]byte
	binary.BigEndian.PutUint64(serial[:], f.serial)
	f.serial++
	f.mu.Unlock()

	addr := common.BytesToAddress(crypto.Keccak256(p.Address().Bytes(), serial[:])[12:])

	// vault.New reads the protocol fee back through f, so the lock must be
	// released before it runs.
	v, err := vault.New(vault.Params{
		Address: addr,
		Token0:  p.Token0,
		Token1:  p.Token1,
		Pool:    p,
		Bank:    f.bank,
		Gov:     f,
		Clock:   p,

		Manager:          cfg.Manager,
		BaseThreshold:    cfg.BaseThreshold,
		LimitThreshold:   cfg.LimitThreshold,
		FullRangeWeight:  cfg.FullRangeWeight,
		Period:           cfg.Period,
		MinTickMove:      cfg.MinTickMove,
		MaxTwapDeviation: cfg.MaxTwapDeviation,
		TwapDuration:     cfg.TwapDuration,
		MaxTotalSupply:   cfg.MaxTotalSupply,

		Log: f.log,
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.vaults = append(f.vaults, v)
	f.byAddr[addr] = v
	f.mu.Unlock()

	f.log.Info("vault created",
		zap.String("vault", addr.Hex()),
		zap.String("pool", p.Address().Hex()),
		zap.String("manager", cfg.Manager.Hex()),
	)
	return v, nil
}

// ProtocolFee returns the current fee fraction on the 1e6 scale.
func (f *Factory) ProtocolFee() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.protocolFee
}

// FeeCollector returns who may withdraw accrued protocol fees.
func (f *Factory) FeeCollector() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.governance
}

// Governance returns the owner of the factory settings.
func (f *Factory) Governance() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.governance
}

// PendingGovernance returns the nominated owner, if any.
func (f *Factory) PendingGovernance() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingGovernance
}

// SetProtocolFee changes the fee taken from future fee collections.
// Running vaults pick the change up at their next rebalance.
func (f *Factory) SetProtocolFee(caller common.Address, fee uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.governance {
		return fmt.Errorf("%w: %s is not governance", vault.ErrUnauthorized, caller.Hex())
	}
	if fee >= cons.FeeScale {
		return fmt.Errorf("%w: protocol fee %d not below %d", vault.ErrInvalidConfig, fee, cons.FeeScale)
	}
	f.protocolFee = fee
	f.log.Info("protocol fee changed", zap.Uint64("fee", fee))
	return nil
}

// SetGovernance nominates a new owner. The change takes effect when the
// nominee calls AcceptGovernance.
func (f *Factory) SetGovernance(caller, next common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.governance {
		return fmt.Errorf("%w: %s is not governance", vault.ErrUnauthorized, caller.Hex())
	}
	f.pendingGovernance = next
	return nil
}

// AcceptGovernance completes a pending governance handoff.
func (f *Factory) AcceptGovernance(caller common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.pendingGovernance {
		return fmt.Errorf("%w: %s is not the pending governance", vault.ErrUnauthorized, caller.Hex())
	}
	f.governance = caller
	f.log.Info("governance changed", zap.String("governance", caller.Hex()))
	return nil
}

// Vaults returns all vaults this factory created, in creation order.
func (f *Factory) Vaults() []*vault.Vault {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*vault.Vault, len(f.vaults))
	copy(out, f.vaults)
	return out
}

// Vault looks a vault up by its custody address.
func (f *Factory) Vault(addr common.Address) (*vault.Vault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.byAddr[addr]
	return v, ok
}

// IsVault reports whether addr belongs to a vault from this factory.
func (f *Factory) IsVault(addr common.Address) bool {
	_, ok := f.Vault(addr)
	return ok
}
