package zap

import (
	"fmt"
	"math/big"
	"strings"

	"vaultchain/native/common"
)

type tokenRef struct {
	symbol string
	base   *big.Int
}

type assetRef struct {
	collection string
	id         *big.Int
	base       *big.Int
}

// ledger records the zap account's balance of every token and asset a call
// touches, as it stood before the call moved anything. The final sweep
// proves the call left the account exactly where it found it.
type ledger struct {
	state   engineState
	account [20]byte
	tokens  []tokenRef
	assets  []assetRef
}

func newLedger(st engineState, account [20]byte) *ledger {
	return &ledger{state: st, account: account}
}

func (l *ledger) token(symbols ...string) error {
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if _, ok := l.tokenBase(symbol); ok {
			continue
		}
		bal, err := l.state.Balance(symbol, l.account)
		if err != nil {
			return err
		}
		l.tokens = append(l.tokens, tokenRef{symbol: symbol, base: new(big.Int).Set(bal)})
	}
	return nil
}

func (l *ledger) tokenBase(symbol string) (*big.Int, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range l.tokens {
		if t.symbol == symbol {
			return t.base, true
		}
	}
	return nil, false
}

func (l *ledger) asset(collection string, ids ...*big.Int) error {
	for _, id := range ids {
		bal, err := l.state.AssetBalance(collection, id, l.account)
		if err != nil {
			return err
		}
		l.assets = append(l.assets, assetRef{collection: collection, id: id, base: new(big.Int).Set(bal)})
	}
	return nil
}

// refund returns whatever the call added to the zap's balance of token.
func (l *ledger) refund(token string, to [20]byte) (*big.Int, error) {
	base, ok := l.tokenBase(token)
	if !ok {
		return nil, fmt.Errorf("zap: refund of untracked token %s", token)
	}
	bal, err := l.state.Balance(token, l.account)
	if err != nil {
		return nil, err
	}
	excess := new(big.Int).Sub(bal, base)
	if excess.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if err := l.state.Transfer(token, l.account, to, excess); err != nil {
		return nil, err
	}
	return excess, nil
}

// verify fails with ErrResidualBalance when any tracked balance differs from
// its value on entry.
func (l *ledger) verify() error {
	for _, t := range l.tokens {
		bal, err := l.state.Balance(t.symbol, l.account)
		if err != nil {
			return err
		}
		if bal.Cmp(t.base) != 0 {
			return fmt.Errorf("zap: %s balance %s, entered with %s: %w", t.symbol, bal, t.base, common.ErrResidualBalance)
		}
	}
	for _, ref := range l.assets {
		bal, err := l.state.AssetBalance(ref.collection, ref.id, l.account)
		if err != nil {
			return err
		}
		if bal.Cmp(ref.base) != 0 {
			return fmt.Errorf("zap: %s/%s held: %w", ref.collection, ref.id, common.ErrResidualBalance)
		}
	}
	return nil
}

// checkRecipient rejects routing a call's output back into the zap itself.
func checkRecipient(account, to [20]byte) error {
	if to == account {
		return fmt.Errorf("zap: %w: recipient is the zap account", common.ErrUnauthorized)
	}
	return nil
}

// sellPath validates a path selling the vault share for the base token. An
// empty path trades through the direct pair.
func sellPath(path []string, share, base string) ([]string, error) {
	return checkPath(path, share, base)
}

// buyPath validates a path buying the vault share with the base token.
func buyPath(path []string, share, base string) ([]string, error) {
	return checkPath(path, base, share)
}

func checkPath(path []string, from, to string) ([]string, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if len(path) == 0 {
		return []string{from, to}, nil
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("zap: %w: path needs at least two tokens", common.ErrInvalidPath)
	}
	out := make([]string, len(path))
	for i, token := range path {
		out[i] = strings.ToUpper(strings.TrimSpace(token))
	}
	if out[0] != from || out[len(out)-1] != to {
		return nil, fmt.Errorf("zap: %w: path must run %s to %s, got %s to %s", common.ErrInvalidPath, from, to, out[0], out[len(out)-1])
	}
	return out, nil
}

func pullAssets(st engineState, collection string, from, to [20]byte, ids, amounts []*big.Int) error {
	for i, id := range ids {
		amount := big.NewInt(1)
		if len(amounts) > i && amounts[i] != nil {
			amount = amounts[i]
		}
		if err := st.TransferAsset(collection, from, to, id, amount); err != nil {
			return fmt.Errorf("zap: custody of %s/%s: %w", collection, id, err)
		}
	}
	return nil
}
