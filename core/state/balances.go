package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"vaultchain/native/common"
)

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: %w: amount must be non-negative", common.ErrInvalidAmount)
	}
	return nil
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	var stored big.Int
	ok, err := m.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(&stored), nil
}

func (m *Manager) storeAmount(key []byte, value *big.Int) error {
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative amount")
	}
	if _, overflow := uint256.FromBig(value); overflow {
		return fmt.Errorf("state: amount overflows 256 bits")
	}
	if value.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, value)
}

// Balance returns the fungible balance of addr in token.
func (m *Manager) Balance(token string, addr [20]byte) (*big.Int, error) {
	return m.loadAmount(balanceKey(NormalizeToken(token), addr))
}

// TotalSupply returns the outstanding supply of token.
func (m *Manager) TotalSupply(token string) (*big.Int, error) {
	return m.loadAmount(supplyKey(NormalizeToken(token)))
}

// Mint credits amount of token to addr and grows the supply.
func (m *Manager) Mint(token string, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	symbol := NormalizeToken(token)
	if symbol == "" {
		return fmt.Errorf("state: token symbol required")
	}
	bal, err := m.Balance(symbol, to)
	if err != nil {
		return err
	}
	if err := m.storeAmount(balanceKey(symbol, to), new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	supply, err := m.TotalSupply(symbol)
	if err != nil {
		return err
	}
	return m.storeAmount(supplyKey(symbol), new(big.Int).Add(supply, amount))
}

// Burn debits amount of token from addr and shrinks the supply.
func (m *Manager) Burn(token string, from [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	symbol := NormalizeToken(token)
	bal, err := m.Balance(symbol, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("state: burn %s %s: %w", amount, symbol, common.ErrInsufficientBalance)
	}
	if err := m.storeAmount(balanceKey(symbol, from), new(big.Int).Sub(bal, amount)); err != nil {
		return err
	}
	supply, err := m.TotalSupply(symbol)
	if err != nil {
		return err
	}
	return m.storeAmount(supplyKey(symbol), new(big.Int).Sub(supply, amount))
}

// Transfer moves amount of token between accounts.
func (m *Manager) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	symbol := NormalizeToken(token)
	fromBal, err := m.Balance(symbol, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("state: transfer %s %s: %w", amount, symbol, common.ErrInsufficientBalance)
	}
	toBal, err := m.Balance(symbol, to)
	if err != nil {
		return err
	}
	if err := m.storeAmount(balanceKey(symbol, from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.storeAmount(balanceKey(symbol, to), new(big.Int).Add(toBal, amount))
}
