package fees

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
)

var (
	errNilState          = errors.New("fees engine: state not configured")
	errVaultRegistered   = errors.New("fees engine: vault already registered")
	errTreasuryUnset     = errors.New("fees engine: treasury not configured")
	errNonPositiveAmount = errors.New("fees engine: amount must be positive")
)

var (
	configKey   = []byte("fees/config")
	vaultPrefix = "fees/vault/"
)

// DistributorAccount holds reported fees until they are distributed.
var DistributorAccount = crypto.ModuleAddress("fee-distributor")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(token string, addr [20]byte) (*big.Int, error)
	Transfer(token string, from, to [20]byte, amount *big.Int) error
}

// RewardReceiver is the staking side of a distribution.
type RewardReceiver interface {
	PoolAccount(vaultID uint64) ([20]byte, bool, error)
	Accrue(caller [20]byte, vaultID uint64, amount *big.Int) error
}

type storedConfig struct {
	StakingBps  uint32
	TreasuryBps uint32
	Treasury    [20]byte
	Paused      bool
}

// Distribution describes one executed distribution.
type Distribution struct {
	VaultID    uint64
	Amount     *big.Int
	ToStaking  *big.Int
	ToTreasury *big.Int
}

// Engine is the fee distributor. Vaults report the share fees they forward
// to DistributorAccount; Distribute splits a vault's pending fees between
// its staking pool and the treasury.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	staking  RewardReceiver
	admin    [20]byte
	factory  [20]byte
	defaults storedConfig
}

// NewEngine constructs a distributor with the default split.
func NewEngine() *Engine {
	split := DefaultSplit()
	return &Engine{
		emitter:  events.NoopEmitter{},
		defaults: storedConfig{StakingBps: split.StakingBps, TreasuryBps: split.TreasuryBps},
	}
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

// SetStaking wires the staking receiver.
func (e *Engine) SetStaking(staking RewardReceiver) { e.staking = staking }

// SetAdmin configures the governance identity.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetFactory configures the identity allowed to register vaults.
func (e *Engine) SetFactory(addr [20]byte) { e.factory = addr }

// SetDefaults seeds the configuration used until governance stores one.
func (e *Engine) SetDefaults(split SplitPolicy, treasury [20]byte, paused bool) error {
	if err := split.Validate(); err != nil {
		return err
	}
	e.defaults = storedConfig{StakingBps: split.StakingBps, TreasuryBps: split.TreasuryBps, Treasury: treasury, Paused: paused}
	return nil
}

// Account returns the distributor's custody account.
func (e *Engine) Account() [20]byte { return DistributorAccount }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func vaultKey(id uint64) []byte {
	return []byte(vaultPrefix + strconv.FormatUint(id, 10))
}

func (e *Engine) config() (storedConfig, error) {
	if e.state == nil {
		return storedConfig{}, errNilState
	}
	var cfg storedConfig
	ok, err := e.state.KVGet(configKey, &cfg)
	if err != nil {
		return storedConfig{}, err
	}
	if !ok {
		return e.defaults, nil
	}
	return cfg, nil
}

func (e *Engine) putConfig(cfg storedConfig) error {
	return e.state.KVPut(configKey, &cfg)
}

// Split returns the active split policy.
func (e *Engine) Split() (SplitPolicy, error) {
	cfg, err := e.config()
	if err != nil {
		return SplitPolicy{}, err
	}
	return SplitPolicy{StakingBps: cfg.StakingBps, TreasuryBps: cfg.TreasuryBps}, nil
}

// Treasury returns the configured treasury account.
func (e *Engine) Treasury() ([20]byte, error) {
	cfg, err := e.config()
	return cfg.Treasury, err
}

// Paused reports whether distribution is paused.
func (e *Engine) Paused() (bool, error) {
	cfg, err := e.config()
	return cfg.Paused, err
}

// Totals returns the accounting ledger of a registered vault.
func (e *Engine) Totals(vaultID uint64) (Totals, error) {
	if e.state == nil {
		return Totals{}, errNilState
	}
	var t Totals
	ok, err := e.state.KVGet(vaultKey(vaultID), &t)
	if err != nil {
		return Totals{}, err
	}
	if !ok {
		return Totals{}, fmt.Errorf("fees: vault %d: %w", vaultID, common.ErrUnknownVault)
	}
	return t.Clone(), nil
}

func (e *Engine) putTotals(t Totals) error {
	return e.state.KVPut(vaultKey(t.VaultID), &t)
}

// RegisterVault records the custody account and share token of a new vault.
func (e *Engine) RegisterVault(caller [20]byte, vaultID uint64, account [20]byte, shareToken string) error {
	if e.state == nil {
		return errNilState
	}
	if caller != e.factory {
		return fmt.Errorf("fees: register vault: %w", common.ErrUnauthorized)
	}
	if ok, err := e.state.KVGet(vaultKey(vaultID), nil); err != nil {
		return err
	} else if ok {
		return errVaultRegistered
	}
	t := Totals{VaultID: vaultID, Account: account, ShareToken: shareToken}.Clone()
	if err := e.putTotals(t); err != nil {
		return err
	}
	e.emit(VaultRegisteredEvent(vaultID, account, shareToken))
	return nil
}

// ReportFee records fees a vault has forwarded to the distributor account.
// Only the vault's own custody account may report.
func (e *Engine) ReportFee(caller [20]byte, vaultID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errNonPositiveAmount
	}
	t, err := e.Totals(vaultID)
	if err != nil {
		return err
	}
	if caller != t.Account {
		return fmt.Errorf("fees: report for vault %d: %w", vaultID, common.ErrUnauthorized)
	}
	t.Reported.Add(t.Reported, amount)
	if err := e.putTotals(t); err != nil {
		return err
	}
	e.emit(FeeReportedEvent(vaultID, amount, t.Pending()))
	return nil
}

// Distribute forwards a vault's pending fees. It is a no-op when paused or
// when nothing is pending, so repeated calls never double-distribute.
func (e *Engine) Distribute(caller [20]byte, vaultID uint64) (*Distribution, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	t, err := e.Totals(vaultID)
	if err != nil {
		return nil, err
	}
	result := &Distribution{VaultID: vaultID, Amount: big.NewInt(0), ToStaking: big.NewInt(0), ToTreasury: big.NewInt(0)}
	pending := t.Pending()
	if cfg.Paused || pending.Sign() <= 0 {
		return result, nil
	}
	split := Apply(pending, SplitPolicy{StakingBps: cfg.StakingBps, TreasuryBps: cfg.TreasuryBps})

	var pool [20]byte
	hasPool := false
	if e.staking != nil && split.Staking.Sign() > 0 {
		pool, hasPool, err = e.staking.PoolAccount(vaultID)
		if err != nil {
			return nil, err
		}
	}
	if !hasPool {
		split.Treasury.Add(split.Treasury, split.Staking)
		split.Staking = big.NewInt(0)
	}
	if split.Treasury.Sign() > 0 && cfg.Treasury == ([20]byte{}) {
		return nil, errTreasuryUnset
	}
	if split.Staking.Sign() > 0 {
		if err := e.state.Transfer(t.ShareToken, DistributorAccount, pool, split.Staking); err != nil {
			return nil, err
		}
		if err := e.staking.Accrue(DistributorAccount, vaultID, split.Staking); err != nil {
			return nil, err
		}
	}
	if split.Treasury.Sign() > 0 {
		if err := e.state.Transfer(t.ShareToken, DistributorAccount, cfg.Treasury, split.Treasury); err != nil {
			return nil, err
		}
	}
	t.ToStaking.Add(t.ToStaking, split.Staking)
	t.ToTreasury.Add(t.ToTreasury, split.Treasury)
	if err := e.putTotals(t); err != nil {
		return nil, err
	}
	result.Amount = pending
	result.ToStaking = split.Staking
	result.ToTreasury = split.Treasury
	e.emit(DistributedEvent(caller, result))
	return result, nil
}

// PauseFeeDistribution toggles distribution. Fees keep accruing while paused.
func (e *Engine) PauseFeeDistribution(caller [20]byte, paused bool) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("fees: pause: %w", common.ErrUnauthorized)
	}
	prev := cfg.Paused
	cfg.Paused = paused
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(PausedEvent(prev, paused))
	return nil
}

// SetSplitRatio replaces the staking/treasury split.
func (e *Engine) SetSplitRatio(caller [20]byte, stakingBps, treasuryBps uint32) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("fees: set split: %w", common.ErrUnauthorized)
	}
	next := SplitPolicy{StakingBps: stakingBps, TreasuryBps: treasuryBps}
	if err := next.Validate(); err != nil {
		return err
	}
	prev := SplitPolicy{StakingBps: cfg.StakingBps, TreasuryBps: cfg.TreasuryBps}
	cfg.StakingBps, cfg.TreasuryBps = stakingBps, treasuryBps
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(SplitUpdatedEvent(prev, next))
	return nil
}

// SetTreasury replaces the treasury account.
func (e *Engine) SetTreasury(caller [20]byte, treasury [20]byte) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("fees: set treasury: %w", common.ErrUnauthorized)
	}
	if treasury == ([20]byte{}) {
		return fmt.Errorf("fees: %w: treasury must be set", common.ErrConfigInvariantViolated)
	}
	prev := cfg.Treasury
	cfg.Treasury = treasury
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(TreasuryUpdatedEvent(prev, treasury))
	return nil
}
