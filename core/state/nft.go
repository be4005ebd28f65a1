package state

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"vaultchain/native/common"
)

// Collection describes a registered non-fungible asset class.
type Collection struct {
	Name   string
	Is1155 bool
}

type storedAttribute struct {
	Key   string
	Value string
}

func normalizeCollection(name string) string {
	return strings.TrimSpace(name)
}

func checkID(id *big.Int) error {
	if id == nil || id.Sign() < 0 {
		return fmt.Errorf("state: asset id must be non-negative")
	}
	if _, overflow := uint256.FromBig(id); overflow {
		return fmt.Errorf("state: asset id overflows 256 bits")
	}
	return nil
}

// RegisterCollection records a collection and whether it carries multi-unit ids.
func (m *Manager) RegisterCollection(name string, is1155 bool) error {
	normalized := normalizeCollection(name)
	if normalized == "" {
		return fmt.Errorf("state: collection name required")
	}
	existing, ok, err := m.Collection(normalized)
	if err != nil {
		return err
	}
	if ok {
		if existing.Is1155 != is1155 {
			return fmt.Errorf("state: collection %s already registered with a different kind", normalized)
		}
		return nil
	}
	return m.KVPut(collectionKey(normalized), &Collection{Name: normalized, Is1155: is1155})
}

// Collection returns the registered collection metadata.
func (m *Manager) Collection(name string) (Collection, bool, error) {
	var c Collection
	ok, err := m.KVGet(collectionKey(normalizeCollection(name)), &c)
	if err != nil || !ok {
		return Collection{}, false, err
	}
	return c, true, nil
}

func (m *Manager) mustCollection(name string) (Collection, error) {
	c, ok, err := m.Collection(name)
	if err != nil {
		return Collection{}, err
	}
	if !ok {
		return Collection{}, fmt.Errorf("state: collection %s not registered", name)
	}
	return c, nil
}

// OwnerOf returns the owner of a single-unit asset.
func (m *Manager) OwnerOf(collection string, id *big.Int) ([20]byte, bool, error) {
	var owner [20]byte
	if err := checkID(id); err != nil {
		return owner, false, err
	}
	ok, err := m.KVGet(ownerKey(normalizeCollection(collection), id), &owner)
	return owner, ok, err
}

// MintNFT assigns a new single-unit asset to the recipient.
func (m *Manager) MintNFT(collection string, to [20]byte, id *big.Int) error {
	c, err := m.mustCollection(collection)
	if err != nil {
		return err
	}
	if c.Is1155 {
		return fmt.Errorf("state: collection %s is multi-unit", c.Name)
	}
	if _, ok, err := m.OwnerOf(c.Name, id); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("state: asset %s/%s already minted", c.Name, id)
	}
	return m.KVPut(ownerKey(c.Name, id), to)
}

// MintNFT1155 credits amount units of a multi-unit asset.
func (m *Manager) MintNFT1155(collection string, to [20]byte, id, amount *big.Int) error {
	c, err := m.mustCollection(collection)
	if err != nil {
		return err
	}
	if !c.Is1155 {
		return fmt.Errorf("state: collection %s is single-unit", c.Name)
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal, err := m.loadAmount(multiKey(c.Name, id, to))
	if err != nil {
		return err
	}
	return m.storeAmount(multiKey(c.Name, id, to), new(big.Int).Add(bal, amount))
}

// AssetBalance returns how many units of id the holder owns. Single-unit
// collections report 0 or 1.
func (m *Manager) AssetBalance(collection string, id *big.Int, holder [20]byte) (*big.Int, error) {
	c, err := m.mustCollection(collection)
	if err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	if c.Is1155 {
		return m.loadAmount(multiKey(c.Name, id, holder))
	}
	owner, ok, err := m.OwnerOf(c.Name, id)
	if err != nil {
		return nil, err
	}
	if ok && owner == holder {
		return big.NewInt(1), nil
	}
	return big.NewInt(0), nil
}

// TransferAsset moves amount units of id between holders. Single-unit
// collections require amount == 1 and ownership by from.
func (m *Manager) TransferAsset(collection string, from, to [20]byte, id, amount *big.Int) error {
	c, err := m.mustCollection(collection)
	if err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if !c.Is1155 {
		if amount.Cmp(big.NewInt(1)) != 0 {
			return fmt.Errorf("state: %w: single-unit transfer of %s", common.ErrInvalidAmount, amount)
		}
		owner, ok, err := m.OwnerOf(c.Name, id)
		if err != nil {
			return err
		}
		if !ok || owner != from {
			return fmt.Errorf("state: asset %s/%s: %w", c.Name, id, common.ErrInsufficientBalance)
		}
		return m.KVPut(ownerKey(c.Name, id), to)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := m.loadAmount(multiKey(c.Name, id, from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("state: asset %s/%s: %w", c.Name, id, common.ErrInsufficientBalance)
	}
	toBal, err := m.loadAmount(multiKey(c.Name, id, to))
	if err != nil {
		return err
	}
	if err := m.storeAmount(multiKey(c.Name, id, from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.storeAmount(multiKey(c.Name, id, to), new(big.Int).Add(toBal, amount))
}

// SetAssetAttributes records metadata attributes used by derived eligibility.
func (m *Manager) SetAssetAttributes(collection string, id *big.Int, attrs map[string]string) error {
	if err := checkID(id); err != nil {
		return err
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	stored := make([]storedAttribute, 0, len(keys))
	for _, k := range keys {
		stored = append(stored, storedAttribute{Key: k, Value: attrs[k]})
	}
	return m.KVPut(attributeKey(normalizeCollection(collection), id), stored)
}

// AssetAttributes returns the attributes registered for an asset.
func (m *Manager) AssetAttributes(collection string, id *big.Int) (map[string]string, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var stored []storedAttribute
	if _, err := m.KVGet(attributeKey(normalizeCollection(collection), id), &stored); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(stored))
	for _, attr := range stored {
		out[attr.Key] = attr.Value
	}
	return out, nil
}
