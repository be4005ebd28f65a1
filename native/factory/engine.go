package factory

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
	"vaultchain/native/staking"
	"vaultchain/native/vault"
)

var (
	errNilState        = errors.New("factory engine: state not configured")
	errNilCollaborator = errors.New("factory engine: vault engine not configured")
)

var (
	configKey      = []byte("factory/config")
	excludedPrefix = "factory/excluded/"
	assetPrefix    = "factory/asset/"
)

// Account is the identity the factory uses when calling other modules.
var Account = crypto.ModuleAddress("vault-factory")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// VaultCreator instantiates vault records.
type VaultCreator interface {
	Create(caller [20]byte, params vault.CreateParams) (*vault.Vault, error)
}

// FeeRegistrar registers vaults with the fee distributor.
type FeeRegistrar interface {
	RegisterVault(caller [20]byte, vaultID uint64, account [20]byte, shareToken string) error
}

// PoolCreator opens the staking pool of a new vault.
type PoolCreator interface {
	AddPool(caller [20]byte, vaultID uint64, rewardToken string) (*staking.Pool, error)
}

type storedConfig struct {
	DefaultFees vault.Fees
	Zap         [20]byte
	VaultCount  uint64
}

// Engine creates vaults and holds protocol-wide settings: default fees,
// fee exclusions and the staking zap identity.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	vaults      VaultCreator
	fees        FeeRegistrar
	pools       PoolCreator
	admin       [20]byte
	defaultFees vault.Fees
}

// NewEngine constructs a factory with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetVaults wires the vault engine.
func (e *Engine) SetVaults(v VaultCreator) { e.vaults = v }

// SetFeeRegistrar wires the fee distributor.
func (e *Engine) SetFeeRegistrar(f FeeRegistrar) { e.fees = f }

// SetPools wires the staking engine.
func (e *Engine) SetPools(p PoolCreator) { e.pools = p }

// SetAdmin configures the governance identity.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetInitialDefaultFees seeds the fee schedule used until governance stores one.
func (e *Engine) SetInitialDefaultFees(fees vault.Fees) { e.defaultFees = fees.Clone() }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func excludedKey(addr [20]byte) []byte {
	return append([]byte(excludedPrefix), addr[:]...)
}

func assetKey(assetClass string) []byte {
	return []byte(assetPrefix + strings.TrimSpace(assetClass))
}

func (e *Engine) config() (*storedConfig, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var cfg storedConfig
	ok, err := e.state.KVGet(configKey, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		cfg.DefaultFees = e.defaultFees.Clone()
	}
	cfg.DefaultFees = cfg.DefaultFees.Clone()
	return &cfg, nil
}

func (e *Engine) putConfig(cfg *storedConfig) error {
	return e.state.KVPut(configKey, cfg)
}

// CreateVault creates a vault with the default fees and every feature
// enabled. The caller becomes its manager. The vault is registered with the
// fee distributor and receives a staking pool.
func (e *Engine) CreateVault(caller [20]byte, name, symbol, assetClass string, allowAll, is1155 bool) (*vault.Vault, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if e.vaults == nil {
		return nil, errNilCollaborator
	}
	id := cfg.VaultCount
	v, err := e.vaults.Create(Account, vault.CreateParams{
		ID:         id,
		Name:       name,
		Symbol:     symbol,
		AssetClass: assetClass,
		AllowAll:   allowAll,
		Is1155:     is1155,
		Manager:    caller,
		Fees:       cfg.DefaultFees,
		Features:   vault.AllFeatures(),
	})
	if err != nil {
		return nil, err
	}
	if e.fees != nil {
		if err := e.fees.RegisterVault(Account, id, v.Account, v.Symbol); err != nil {
			return nil, err
		}
	}
	if e.pools != nil {
		if _, err := e.pools.AddPool(Account, id, v.Symbol); err != nil {
			return nil, err
		}
	}
	ids, err := e.VaultsForAsset(v.AssetClass)
	if err != nil {
		return nil, err
	}
	if err := e.state.KVPut(assetKey(v.AssetClass), append(ids, id)); err != nil {
		return nil, err
	}
	cfg.VaultCount = id + 1
	if err := e.putConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(VaultCreatedEvent(v, caller))
	return v, nil
}

// VaultCount returns the number of vaults created.
func (e *Engine) VaultCount() (uint64, error) {
	cfg, err := e.config()
	if err != nil {
		return 0, err
	}
	return cfg.VaultCount, nil
}

// VaultsForAsset lists the vault ids created for an asset class.
func (e *Engine) VaultsForAsset(assetClass string) ([]uint64, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var ids []uint64
	if _, err := e.state.KVGet(assetKey(assetClass), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DefaultFees returns the fee schedule applied to new vaults.
func (e *Engine) DefaultFees() (vault.Fees, error) {
	cfg, err := e.config()
	if err != nil {
		return vault.Fees{}, err
	}
	return cfg.DefaultFees, nil
}

// SetDefaultFees replaces the schedule applied to new vaults.
func (e *Engine) SetDefaultFees(caller [20]byte, fees vault.Fees) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("factory: set default fees: %w", common.ErrUnauthorized)
	}
	for _, fee := range []*big.Int{fees.Mint, fees.RandomRedeem, fees.TargetRedeem, fees.RandomSwap, fees.TargetSwap} {
		if fee != nil && (fee.Sign() < 0 || fee.Cmp(common.FeeCeiling) > 0) {
			return fmt.Errorf("factory: %w: fee %s outside [0, %s]", common.ErrConfigInvariantViolated, fee, common.FeeCeiling)
		}
	}
	prev := cfg.DefaultFees
	cfg.DefaultFees = fees.Clone()
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(DefaultFeesUpdatedEvent(prev, cfg.DefaultFees))
	return nil
}

// IsExcludedFromFees reports whether addr pays no vault fees.
func (e *Engine) IsExcludedFromFees(addr [20]byte) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	var excluded bool
	ok, err := e.state.KVGet(excludedKey(addr), &excluded)
	if err != nil || !ok {
		return false, err
	}
	return excluded, nil
}

// SetFeeExclusion adds or removes addr from the fee-exempt set.
func (e *Engine) SetFeeExclusion(caller, addr [20]byte, excluded bool) error {
	if e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return fmt.Errorf("factory: set fee exclusion: %w", common.ErrUnauthorized)
	}
	prev, err := e.IsExcludedFromFees(addr)
	if err != nil {
		return err
	}
	if excluded {
		err = e.state.KVPut(excludedKey(addr), true)
	} else {
		err = e.state.KVDelete(excludedKey(addr))
	}
	if err != nil {
		return err
	}
	e.emit(FeeExclusionEvent(addr, prev, excluded))
	return nil
}

// ZapContract returns the configured staking zap identity.
func (e *Engine) ZapContract() ([20]byte, error) {
	cfg, err := e.config()
	if err != nil {
		return [20]byte{}, err
	}
	return cfg.Zap, nil
}

// SetZapContract records the staking zap identity.
func (e *Engine) SetZapContract(caller, zap [20]byte) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("factory: set zap: %w", common.ErrUnauthorized)
	}
	prev := cfg.Zap
	cfg.Zap = zap
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(ZapUpdatedEvent(prev, zap))
	return nil
}
