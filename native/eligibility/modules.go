package eligibility

import (
	"fmt"
	"math/big"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

type listModule struct {
	members map[string]struct{}
}

func newListModule(ids []*big.Int) *listModule {
	members := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		members[id.String()] = struct{}{}
	}
	return &listModule{members: members}
}

func (m *listModule) Kind() Kind { return KindListMembership }

func (m *listModule) CheckEligible(id *big.Int) (bool, error) {
	_, ok := m.members[id.String()]
	return ok, nil
}

type rangeModule struct {
	min *big.Int
	max *big.Int
}

func (m *rangeModule) Kind() Kind { return KindNumericRange }

func (m *rangeModule) CheckEligible(id *big.Int) (bool, error) {
	return id.Cmp(m.min) >= 0 && id.Cmp(m.max) <= 0, nil
}

// AttributeReader returns the metadata attributes recorded for an asset.
type AttributeReader func(id *big.Int) (map[string]string, error)

type attributeModule struct {
	program *vm.Program
	attrs   AttributeReader
}

func (m *attributeModule) Kind() Kind { return KindDerivedAttribute }

func (m *attributeModule) CheckEligible(id *big.Int) (bool, error) {
	attrs := map[string]string{}
	if m.attrs != nil {
		loaded, err := m.attrs(id)
		if err != nil {
			return false, err
		}
		if loaded != nil {
			attrs = loaded
		}
	}
	out, err := expr.Run(m.program, attributeEnv(id, attrs))
	if err != nil {
		return false, fmt.Errorf("eligibility: evaluate attribute predicate: %w", err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

func attributeEnv(id *big.Int, attrs map[string]string) map[string]interface{} {
	idNum := -1
	if id != nil && id.IsInt64() && id.Int64() <= int64(^uint(0)>>1) {
		idNum = int(id.Int64())
	}
	idStr := ""
	if id != nil {
		idStr = id.String()
	}
	return map[string]interface{}{
		"id":    idStr,
		"idNum": idNum,
		"attrs": attrs,
	}
}

func compileExpression(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(attributeEnv(big.NewInt(0), map[string]string{})), expr.AsBool())
}
