package eligibility

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/native/common"
)

var (
	errNilState       = errors.New("eligibility manager: state not configured")
	errModuleNotFound = errors.New("eligibility manager: module not found")
)

var (
	moduleCountKey = []byte("eligibility/module/count")
	modulePrefix   = "eligibility/module/"
	bindingPrefix  = "eligibility/binding/"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	AssetAttributes(collection string, id *big.Int) (map[string]string, error)
}

type storedDefinition struct {
	Kind       uint8
	Name       string
	IDs        []*big.Int
	Min        *big.Int
	Max        *big.Int
	Expression string
}

// Manager is the registry of eligibility modules and their vault bindings.
// Modules live in an arena addressed by id; vaults hold an id, never the module.
type Manager struct {
	state      engineState
	emitter    events.Emitter
	admin      [20]byte
	authorizer func(caller [20]byte, vaultID uint64) bool
}

// NewManager constructs a manager with a no-op emitter.
func NewManager() *Manager {
	return &Manager{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the manager.
func (m *Manager) SetState(state engineState) { m.state = state }

// SetAdmin configures the identity allowed to register modules.
func (m *Manager) SetAdmin(admin [20]byte) { m.admin = admin }

// SetEmitter configures the event emitter used by the manager.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetBindingAuthorizer allows identities other than the admin (typically the
// vault manager) to bind modules to a vault.
func (m *Manager) SetBindingAuthorizer(fn func(caller [20]byte, vaultID uint64) bool) {
	m.authorizer = fn
}

func (m *Manager) emit(evt *types.Event) {
	if m == nil || m.emitter == nil || evt == nil {
		return
	}
	m.emitter.Emit(events.Wrap(evt))
}

func moduleKey(id uint64) []byte {
	return []byte(modulePrefix + strconv.FormatUint(id, 10))
}

func bindingKey(vaultID uint64) []byte {
	return []byte(bindingPrefix + strconv.FormatUint(vaultID, 10))
}

func validateDefinition(def *Definition) error {
	if def == nil {
		return fmt.Errorf("eligibility: %w: definition required", common.ErrConfigInvariantViolated)
	}
	switch def.Kind {
	case KindListMembership:
		if len(def.IDs) == 0 {
			return fmt.Errorf("eligibility: %w: list module requires ids", common.ErrConfigInvariantViolated)
		}
		for _, id := range def.IDs {
			if id == nil || id.Sign() < 0 {
				return fmt.Errorf("eligibility: %w: list ids must be non-negative", common.ErrConfigInvariantViolated)
			}
		}
	case KindNumericRange:
		if def.Min == nil || def.Max == nil || def.Min.Sign() < 0 || def.Min.Cmp(def.Max) > 0 {
			return fmt.Errorf("eligibility: %w: range requires 0 <= min <= max", common.ErrConfigInvariantViolated)
		}
	case KindDerivedAttribute:
		if strings.TrimSpace(def.Expression) == "" {
			return fmt.Errorf("eligibility: %w: attribute module requires an expression", common.ErrConfigInvariantViolated)
		}
		if _, err := compileExpression(def.Expression); err != nil {
			return fmt.Errorf("eligibility: %w: %v", common.ErrConfigInvariantViolated, err)
		}
	default:
		return fmt.Errorf("eligibility: %w: unknown module kind %d", common.ErrConfigInvariantViolated, def.Kind)
	}
	return nil
}

// AddModule registers a module definition and returns its arena id.
func (m *Manager) AddModule(caller [20]byte, def *Definition) (uint64, error) {
	if m == nil || m.state == nil {
		return 0, errNilState
	}
	if caller != m.admin {
		return 0, fmt.Errorf("eligibility: add module: %w", common.ErrUnauthorized)
	}
	if err := validateDefinition(def); err != nil {
		return 0, err
	}
	var count uint64
	if _, err := m.state.KVGet(moduleCountKey, &count); err != nil {
		return 0, err
	}
	stored := storedDefinition{
		Kind:       uint8(def.Kind),
		Name:       strings.TrimSpace(def.Name),
		IDs:        def.Clone().IDs,
		Min:        common.Clone(def.Min),
		Max:        common.Clone(def.Max),
		Expression: strings.TrimSpace(def.Expression),
	}
	if err := m.state.KVPut(moduleKey(count), &stored); err != nil {
		return 0, err
	}
	if err := m.state.KVPut(moduleCountKey, count+1); err != nil {
		return 0, err
	}
	m.emit(ModuleAddedEvent(count, def.Kind, stored.Name))
	return count, nil
}

// ModuleCount returns the number of registered modules.
func (m *Manager) ModuleCount() (uint64, error) {
	if m == nil || m.state == nil {
		return 0, errNilState
	}
	var count uint64
	_, err := m.state.KVGet(moduleCountKey, &count)
	return count, err
}

// Module returns the definition registered under id.
func (m *Manager) Module(id uint64) (*Definition, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	var stored storedDefinition
	ok, err := m.state.KVGet(moduleKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errModuleNotFound
	}
	return &Definition{
		Kind:       Kind(stored.Kind),
		Name:       stored.Name,
		IDs:        stored.IDs,
		Min:        stored.Min,
		Max:        stored.Max,
		Expression: stored.Expression,
	}, nil
}

// SetActiveModule binds moduleID to vaultID and toggles enforcement.
func (m *Manager) SetActiveModule(caller [20]byte, vaultID uint64, moduleID uint64, enabled bool) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if caller != m.admin && (m.authorizer == nil || !m.authorizer(caller, vaultID)) {
		return fmt.Errorf("eligibility: bind vault %d: %w", vaultID, common.ErrUnauthorized)
	}
	if _, err := m.Module(moduleID); err != nil {
		return fmt.Errorf("eligibility: bind module %d: %w", moduleID, err)
	}
	prev, err := m.Binding(vaultID)
	if err != nil {
		return err
	}
	next := &Binding{VaultID: vaultID, ModuleID: moduleID, Enabled: enabled}
	if err := m.state.KVPut(bindingKey(vaultID), next); err != nil {
		return err
	}
	m.emit(BindingUpdatedEvent(prev, next))
	return nil
}

// Binding returns the current binding of the vault; a zero binding with
// Enabled=false means no module is enforced.
func (m *Manager) Binding(vaultID uint64) (*Binding, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	var b Binding
	ok, err := m.state.KVGet(bindingKey(vaultID), &b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Binding{VaultID: vaultID}, nil
	}
	return &b, nil
}

// instance builds the predicate for moduleID. Attribute modules read the
// asset metadata of the vault's collection.
func (m *Manager) instance(moduleID uint64, collection string) (Module, error) {
	def, err := m.Module(moduleID)
	if err != nil {
		return nil, err
	}
	switch def.Kind {
	case KindListMembership:
		return newListModule(def.IDs), nil
	case KindNumericRange:
		return &rangeModule{min: def.Min, max: def.Max}, nil
	case KindDerivedAttribute:
		program, err := compileExpression(def.Expression)
		if err != nil {
			return nil, err
		}
		return &attributeModule{
			program: program,
			attrs: func(id *big.Int) (map[string]string, error) {
				return m.state.AssetAttributes(collection, id)
			},
		}, nil
	}
	return nil, fmt.Errorf("eligibility: %w: unknown module kind %d", common.ErrConfigInvariantViolated, def.Kind)
}

// CheckEligible delegates to the vault's active module, accepting every id
// when no module is enabled.
func (m *Manager) CheckEligible(vaultID uint64, collection string, id *big.Int) (bool, error) {
	return m.CheckAllEligible(vaultID, collection, []*big.Int{id})
}

// CheckAllEligible reports whether every id passes the vault's active module.
func (m *Manager) CheckAllEligible(vaultID uint64, collection string, ids []*big.Int) (bool, error) {
	binding, err := m.Binding(vaultID)
	if err != nil {
		return false, err
	}
	if !binding.Enabled {
		return true, nil
	}
	mod, err := m.instance(binding.ModuleID, collection)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == nil {
			return false, nil
		}
		ok, err := mod.CheckEligible(id)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
