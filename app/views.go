package app

import (
	"context"
	"errors"
	"math/big"

	"vaultchain/indexer"
	"vaultchain/native/fees"
	"vaultchain/native/proxy"
	"vaultchain/native/staking"
	"vaultchain/native/vault"
)

// ErrArchiveDisabled is returned by Events when no archive is configured.
var ErrArchiveDisabled = errors.New("app: event archive not configured")

// VaultView is a vault record with its share supply and custody count.
type VaultView struct {
	Vault       *vault.Vault
	ShareSupply *big.Int
	Held        *big.Int
}

// StakeView is one account's position in a vault's staking pool.
type StakeView struct {
	Pool     *staking.Pool
	Position *staking.Position
	Pending  *big.Int
}

// ProxyView pairs the stored proxy record with the cached implementation.
type ProxyView struct {
	Record *proxy.Record
	Cached [20]byte
}

func (a *App) VaultInfo(id uint64) (*VaultView, error) {
	var out *VaultView
	err := a.Executor.View(func() error {
		v, err := a.Vaults.Vault(id)
		if err != nil {
			return err
		}
		supply, err := a.Vaults.ShareSupply(id)
		if err != nil {
			return err
		}
		held, err := a.Vaults.HeldCount(id)
		if err != nil {
			return err
		}
		out = &VaultView{Vault: v, ShareSupply: supply, Held: held}
		return nil
	})
	return out, err
}

func (a *App) Holdings(id uint64) ([]vault.Holding, error) {
	var out []vault.Holding
	err := a.Executor.View(func() error {
		var err error
		out, err = a.Vaults.Holdings(id)
		return err
	})
	return out, err
}

func (a *App) FeeTotals(id uint64) (fees.Totals, error) {
	var out fees.Totals
	err := a.Executor.View(func() error {
		var err error
		out, err = a.Fees.Totals(id)
		return err
	})
	return out, err
}

func (a *App) StakeInfo(vaultID uint64, addr [20]byte) (*StakeView, error) {
	var out *StakeView
	err := a.Executor.View(func() error {
		pool, err := a.Staking.Pool(vaultID)
		if err != nil {
			return err
		}
		pos, err := a.Staking.Position(vaultID, addr)
		if err != nil {
			return err
		}
		pending, err := a.Staking.PendingRewards(vaultID, addr)
		if err != nil {
			return err
		}
		out = &StakeView{Pool: pool, Position: pos, Pending: pending}
		return nil
	})
	return out, err
}

func (a *App) ProxyInfo(c proxy.Component) (*ProxyView, error) {
	var out *ProxyView
	err := a.Executor.View(func() error {
		rec, err := a.Proxy.Record(c)
		if err != nil {
			return err
		}
		cached, err := a.Proxy.ImplAddress(c)
		if err != nil {
			return err
		}
		out = &ProxyView{Record: rec, Cached: cached}
		return nil
	})
	return out, err
}

func (a *App) Balance(token string, addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := a.Executor.View(func() error {
		var err error
		out, err = a.State.Balance(token, addr)
		return err
	})
	return out, err
}

// Events queries the committed event archive.
func (a *App) Events(ctx context.Context, f indexer.Filter) ([]indexer.EventRecord, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return a.archive.Query(ctx, f)
}
