package eligibility

import (
	"fmt"
	"math/big"
	"strings"
)

// Kind tags the predicate variant of a module.
type Kind uint8

const (
	KindListMembership Kind = iota + 1
	KindNumericRange
	KindDerivedAttribute
)

func (k Kind) String() string {
	switch k {
	case KindListMembership:
		return "list"
	case KindNumericRange:
		return "range"
	case KindDerivedAttribute:
		return "attribute"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind resolves the textual module kind used by config and RPC.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "list":
		return KindListMembership, true
	case "range":
		return KindNumericRange, true
	case "attribute":
		return KindDerivedAttribute, true
	}
	return 0, false
}

// Definition is the registered configuration of a module. Only the fields of
// the tagged Kind are meaningful.
type Definition struct {
	Kind       Kind
	Name       string
	IDs        []*big.Int
	Min        *big.Int
	Max        *big.Int
	Expression string
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	clone := *d
	clone.IDs = make([]*big.Int, 0, len(d.IDs))
	for _, id := range d.IDs {
		clone.IDs = append(clone.IDs, new(big.Int).Set(id))
	}
	if d.Min != nil {
		clone.Min = new(big.Int).Set(d.Min)
	}
	if d.Max != nil {
		clone.Max = new(big.Int).Set(d.Max)
	}
	return &clone
}

// Binding ties a vault to at most one module.
type Binding struct {
	VaultID  uint64
	ModuleID uint64
	Enabled  bool
}

// Module is the uniform predicate capability shared by every variant.
type Module interface {
	Kind() Kind
	CheckEligible(id *big.Int) (bool, error)
}
