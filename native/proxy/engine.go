package proxy

import (
	"errors"
	"fmt"
	"strconv"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
)

// Component indexes the upgradeable components the controller administers.
type Component uint8

const (
	ComponentFactory Component = iota
	ComponentEligibilityManager
	ComponentStakingTokenProvider
	ComponentLPStaking
	ComponentFeeDistributor
	ComponentMarketplaceZap
	ComponentStakingZap
	componentCount
)

var componentNames = [...]string{
	"factory",
	"eligibility-manager",
	"staking-token-provider",
	"lp-staking",
	"fee-distributor",
	"marketplace-zap",
	"staking-zap",
}

func (c Component) String() string {
	if c < componentCount {
		return componentNames[c]
	}
	return "component-" + strconv.Itoa(int(c))
}

// Components lists every known component in index order.
func Components() []Component {
	out := make([]Component, 0, componentCount)
	for c := Component(0); c < componentCount; c++ {
		out = append(out, c)
	}
	return out
}

// ControllerAccount is the controller's own identity; a proxy whose admin is
// this account is upgradeable by the controller owner.
var ControllerAccount = crypto.ModuleAddress("proxy-controller")

var (
	errNilState          = errors.New("proxy engine: state not configured")
	errUnknownComponent  = errors.New("proxy engine: unknown component")
	errAlreadyRegistered = errors.New("proxy engine: component already registered")
	errNotRegistered     = errors.New("proxy engine: component not registered")
)

const (
	recordPrefix = "proxy/record/"
	cachedPrefix = "proxy/cached/"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Record is the stored state of one proxy.
type Record struct {
	Index uint8
	Impl  [20]byte
	Admin [20]byte
}

// Engine is the proxy controller: the registry of implementation addresses
// behind each upgradeable component and of who may upgrade them.
type Engine struct {
	state   engineState
	emitter events.Emitter
	owner   [20]byte
}

// NewEngine constructs a controller with a no-op emitter.
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

// SetOwner configures the controller owner.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func recordKey(c Component) []byte {
	return []byte(recordPrefix + strconv.Itoa(int(c)))
}

func cachedKey(c Component) []byte {
	return []byte(cachedPrefix + strconv.Itoa(int(c)))
}

func (e *Engine) load(c Component) (*Record, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if c >= componentCount {
		return nil, fmt.Errorf("%w: %d", errUnknownComponent, c)
	}
	var rec Record
	ok, err := e.state.KVGet(recordKey(c), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotRegistered, c)
	}
	return &rec, nil
}

// Register records the initial implementation of a component. The
// controller becomes the proxy admin.
func (e *Engine) Register(caller [20]byte, c Component, impl [20]byte) error {
	if e.state == nil {
		return errNilState
	}
	if caller != e.owner {
		return fmt.Errorf("proxy: register: %w", common.ErrUnauthorized)
	}
	if c >= componentCount {
		return fmt.Errorf("%w: %d", errUnknownComponent, c)
	}
	if ok, err := e.state.KVGet(recordKey(c), nil); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", errAlreadyRegistered, c)
	}
	rec := &Record{Index: uint8(c), Impl: impl, Admin: ControllerAccount}
	if err := e.state.KVPut(recordKey(c), rec); err != nil {
		return err
	}
	e.emit(UpgradedEvent(c, [20]byte{}, impl))
	return nil
}

func (e *Engine) authorized(caller [20]byte, rec *Record) bool {
	if rec.Admin == ControllerAccount {
		return caller == e.owner
	}
	return caller == rec.Admin
}

// UpgradeProxyTo points a component at a new implementation.
func (e *Engine) UpgradeProxyTo(caller [20]byte, c Component, impl [20]byte) error {
	rec, err := e.load(c)
	if err != nil {
		return err
	}
	if !e.authorized(caller, rec) {
		return fmt.Errorf("proxy: upgrade %s: %w", c, common.ErrUnauthorized)
	}
	if impl == ([20]byte{}) {
		return fmt.Errorf("proxy: %w: implementation required", common.ErrConfigInvariantViolated)
	}
	prev := rec.Impl
	rec.Impl = impl
	if err := e.state.KVPut(recordKey(c), rec); err != nil {
		return err
	}
	e.emit(UpgradedEvent(c, prev, impl))
	return nil
}

// ChangeProxyAdmin hands administration of a component's proxy to newAdmin.
// Once handed over the controller owner can no longer upgrade it.
func (e *Engine) ChangeProxyAdmin(caller [20]byte, c Component, newAdmin [20]byte) error {
	rec, err := e.load(c)
	if err != nil {
		return err
	}
	if !e.authorized(caller, rec) {
		return fmt.Errorf("proxy: change admin of %s: %w", c, common.ErrUnauthorized)
	}
	if newAdmin == ([20]byte{}) {
		return fmt.Errorf("proxy: %w: admin required", common.ErrConfigInvariantViolated)
	}
	prev := rec.Admin
	rec.Admin = newAdmin
	if err := e.state.KVPut(recordKey(c), rec); err != nil {
		return err
	}
	e.emit(AdminChangedEvent(c, prev, newAdmin))
	return nil
}

// FetchImplAddress refreshes the cached implementation view of a component
// from its proxy record and returns it.
func (e *Engine) FetchImplAddress(c Component) ([20]byte, error) {
	rec, err := e.load(c)
	if err != nil {
		return [20]byte{}, err
	}
	if err := e.state.KVPut(cachedKey(c), rec.Impl); err != nil {
		return [20]byte{}, err
	}
	return rec.Impl, nil
}

// ImplAddress returns the cached implementation view, which lags upgrades
// until FetchImplAddress is called.
func (e *Engine) ImplAddress(c Component) ([20]byte, error) {
	if e.state == nil {
		return [20]byte{}, errNilState
	}
	if c >= componentCount {
		return [20]byte{}, fmt.Errorf("%w: %d", errUnknownComponent, c)
	}
	var impl [20]byte
	if _, err := e.state.KVGet(cachedKey(c), &impl); err != nil {
		return [20]byte{}, err
	}
	return impl, nil
}

// Record returns the stored proxy record of a component.
func (e *Engine) Record(c Component) (*Record, error) {
	return e.load(c)
}
