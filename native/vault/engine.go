package vault

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
)

const moduleName = "vault"

var (
	errNilState      = errors.New("vault engine: state not configured")
	errNilFeeSink    = errors.New("vault engine: fee sink not configured")
	errVaultExists   = errors.New("vault engine: vault already exists")
	errSymbolTaken   = errors.New("vault engine: share symbol already in use")
	errEmptyIDs      = errors.New("vault engine: asset ids required")
	errAmountsLength = errors.New("vault engine: amounts must match ids")
	errNoHoldings    = errors.New("vault engine: vault holds no assets")
)

var (
	vaultPrefix    = "vault/record/"
	holdingsPrefix = "vault/holdings/"
	symbolPrefix   = "vault/symbol/"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Balance(token string, addr [20]byte) (*big.Int, error)
	TotalSupply(token string) (*big.Int, error)
	Mint(token string, to [20]byte, amount *big.Int) error
	Burn(token string, from [20]byte, amount *big.Int) error
	Transfer(token string, from, to [20]byte, amount *big.Int) error
	RegisterCollection(name string, is1155 bool) error
	AssetBalance(collection string, id *big.Int, holder [20]byte) (*big.Int, error)
	TransferAsset(collection string, from, to [20]byte, id, amount *big.Int) error
}

// EligibilityChecker answers whether a batch of ids may enter a vault.
type EligibilityChecker interface {
	CheckAllEligible(vaultID uint64, collection string, ids []*big.Int) (bool, error)
}

// FeeSink receives the share fees charged by vault operations.
type FeeSink interface {
	Account() [20]byte
	ReportFee(caller [20]byte, vaultID uint64, amount *big.Int) error
}

// FeeExclusions reports callers that pay no vault fees.
type FeeExclusions interface {
	IsExcludedFromFees(addr [20]byte) (bool, error)
}

// Engine custodies non-fungible assets and issues fungible shares against
// them. Every vault's share supply equals Base times its held unit count.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	eligibility EligibilityChecker
	feeSink     FeeSink
	exclusions  FeeExclusions
	pauses      common.PauseView
	factory     [20]byte
	admin       [20]byte
	nowFn       func() time.Time
	entropyFn   func() [32]byte
	guard       common.ReentrancyGuard
}

// NewEngine constructs a vault engine with default dependencies.
func NewEngine() *Engine {
	e := &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
	}
	e.entropyFn = func() [32]byte {
		var out [32]byte
		copy(out[:], ethcrypto.Keccak256([]byte(strconv.FormatInt(e.nowFn().UnixNano(), 10))))
		return out
	}
	return e
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

// SetEligibility configures the eligibility checker consulted on entry.
func (e *Engine) SetEligibility(checker EligibilityChecker) { e.eligibility = checker }

// SetFeeSink configures where fees are forwarded.
func (e *Engine) SetFeeSink(sink FeeSink) { e.feeSink = sink }

// SetFeeExclusions configures the fee-exclusion registry.
func (e *Engine) SetFeeExclusions(exclusions FeeExclusions) { e.exclusions = exclusions }

// SetPauses wires the pause view consulted before mutating operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetFactory configures the only identity allowed to create vaults.
func (e *Engine) SetFactory(addr [20]byte) { e.factory = addr }

// SetAdmin configures the identity that governs finalized vaults.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetNowFunc overrides the clock used for creation timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// SetEntropyFunc overrides the entropy source used by random selection.
func (e *Engine) SetEntropyFunc(fn func() [32]byte) {
	if fn != nil {
		e.entropyFn = fn
	}
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func vaultKey(id uint64) []byte {
	return []byte(vaultPrefix + strconv.FormatUint(id, 10))
}

func holdingsKey(id uint64) []byte {
	return []byte(holdingsPrefix + strconv.FormatUint(id, 10))
}

func symbolKey(symbol string) []byte {
	return []byte(symbolPrefix + strings.ToUpper(strings.TrimSpace(symbol)))
}

// AccountFor returns the deterministic custody account of a vault.
func AccountFor(id uint64) [20]byte {
	return crypto.ModuleAddress("vault:" + strconv.FormatUint(id, 10))
}

func validateFees(fees Fees) error {
	for _, fee := range fees.fields() {
		if fee == nil {
			continue
		}
		if fee.Sign() < 0 || fee.Cmp(common.FeeCeiling) > 0 {
			return fmt.Errorf("vault: %w: fee %s outside [0, %s]", common.ErrConfigInvariantViolated, fee, common.FeeCeiling)
		}
	}
	return nil
}

// Create registers a new vault. Only the configured factory may call it.
func (e *Engine) Create(caller [20]byte, params CreateParams) (*Vault, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if caller != e.factory {
		return nil, fmt.Errorf("vault: create: %w", common.ErrUnauthorized)
	}
	symbol := strings.ToUpper(strings.TrimSpace(params.Symbol))
	assetClass := strings.TrimSpace(params.AssetClass)
	if symbol == "" || assetClass == "" || strings.TrimSpace(params.Name) == "" {
		return nil, fmt.Errorf("vault: %w: name, symbol and asset class required", common.ErrConfigInvariantViolated)
	}
	if err := validateFees(params.Fees); err != nil {
		return nil, err
	}
	if ok, err := e.state.KVGet(vaultKey(params.ID), nil); err != nil {
		return nil, err
	} else if ok {
		return nil, errVaultExists
	}
	if ok, err := e.state.KVGet(symbolKey(symbol), nil); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", errSymbolTaken, symbol)
	}
	if err := e.state.RegisterCollection(assetClass, params.Is1155); err != nil {
		return nil, fmt.Errorf("vault: %w: %v", common.ErrConfigInvariantViolated, err)
	}
	v := &Vault{
		ID:         params.ID,
		Name:       strings.TrimSpace(params.Name),
		Symbol:     symbol,
		AssetClass: assetClass,
		Is1155:     params.Is1155,
		AllowAll:   params.AllowAll,
		Manager:    params.Manager,
		Account:    AccountFor(params.ID),
		Features:   params.Features,
		Fees:       params.Fees.Clone(),
		CreatedAt:  uint64(e.nowFn().Unix()),
	}
	if err := e.putVault(v); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(symbolKey(symbol), params.ID); err != nil {
		return nil, err
	}
	e.emit(CreatedEvent(v))
	return v.Clone(), nil
}

func (e *Engine) putVault(v *Vault) error {
	return e.state.KVPut(vaultKey(v.ID), v)
}

func (e *Engine) loadVault(id uint64) (*Vault, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var v Vault
	ok, err := e.state.KVGet(vaultKey(id), &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("vault %d: %w", id, common.ErrUnknownVault)
	}
	v.Fees = v.Fees.Clone()
	return &v, nil
}

// Vault returns a copy of the vault record.
func (e *Engine) Vault(id uint64) (*Vault, error) {
	return e.loadVault(id)
}

// Holdings returns the vault's custodied ids in storage order.
func (e *Engine) Holdings(id uint64) ([]Holding, error) {
	if _, err := e.loadVault(id); err != nil {
		return nil, err
	}
	return e.loadHoldings(id)
}

// HeldCount returns the total number of units the vault custodies.
func (e *Engine) HeldCount(id uint64) (*big.Int, error) {
	holdings, err := e.Holdings(id)
	if err != nil {
		return nil, err
	}
	return countUnits(holdings), nil
}

// ShareSupply returns the outstanding share supply of the vault.
func (e *Engine) ShareSupply(id uint64) (*big.Int, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return nil, err
	}
	return e.state.TotalSupply(v.Symbol)
}

func (e *Engine) loadHoldings(id uint64) ([]Holding, error) {
	var holdings []Holding
	if _, err := e.state.KVGet(holdingsKey(id), &holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

func (e *Engine) storeHoldings(id uint64, holdings []Holding) error {
	if len(holdings) == 0 {
		return e.state.KVDelete(holdingsKey(id))
	}
	return e.state.KVPut(holdingsKey(id), holdings)
}

func countUnits(holdings []Holding) *big.Int {
	total := big.NewInt(0)
	for _, h := range holdings {
		total.Add(total, h.Amount)
	}
	return total
}

func (e *Engine) privileged(caller [20]byte, v *Vault) bool {
	if v.Finalized {
		return caller == e.admin
	}
	return caller == v.Manager
}

// SetFees replaces the vault's fee schedule. Each fee must not exceed half a share.
func (e *Engine) SetFees(caller [20]byte, id uint64, fees Fees) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if !e.privileged(caller, v) {
		return fmt.Errorf("vault: set fees: %w", common.ErrUnauthorized)
	}
	if err := validateFees(fees); err != nil {
		return err
	}
	prev := v.Fees.Clone()
	v.Fees = fees.Clone()
	if err := e.putVault(v); err != nil {
		return err
	}
	e.emit(FeesUpdatedEvent(id, prev, v.Fees))
	return nil
}

// SetFeatures replaces the vault's operation toggles.
func (e *Engine) SetFeatures(caller [20]byte, id uint64, features Features) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if !e.privileged(caller, v) {
		return fmt.Errorf("vault: set features: %w", common.ErrUnauthorized)
	}
	prev := v.Features
	v.Features = features
	if err := e.putVault(v); err != nil {
		return err
	}
	e.emit(FeaturesUpdatedEvent(id, prev, features))
	return nil
}

// SetManager hands the vault over to a new manager.
func (e *Engine) SetManager(caller [20]byte, id uint64, manager [20]byte) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if !e.privileged(caller, v) {
		return fmt.Errorf("vault: set manager: %w", common.ErrUnauthorized)
	}
	prev := v.Manager
	v.Manager = manager
	if err := e.putVault(v); err != nil {
		return err
	}
	e.emit(ManagerUpdatedEvent(id, prev, manager, v.Finalized))
	return nil
}

// Finalize renounces the manager role; governance passes to the admin.
func (e *Engine) Finalize(caller [20]byte, id uint64) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if !e.privileged(caller, v) {
		return fmt.Errorf("vault: finalize: %w", common.ErrUnauthorized)
	}
	if v.Finalized {
		return nil
	}
	prev := v.Manager
	v.Manager = [20]byte{}
	v.Finalized = true
	if err := e.putVault(v); err != nil {
		return err
	}
	e.emit(ManagerUpdatedEvent(id, prev, v.Manager, true))
	return nil
}

// IsManager reports whether caller currently manages the vault.
func (e *Engine) IsManager(caller [20]byte, id uint64) bool {
	v, err := e.loadVault(id)
	if err != nil {
		return false
	}
	return !v.Finalized && v.Manager == caller
}
