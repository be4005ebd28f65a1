package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"vaultchain/core"
	"vaultchain/native/common"
	"vaultchain/native/eligibility"
	"vaultchain/native/fees"
	"vaultchain/native/proxy"
	"vaultchain/native/staking"
	"vaultchain/native/vault"
	"vaultchain/native/zap"
)

// run executes fn as one atomic operation and returns its result with the
// commit receipt.
func run[T any](ctx context.Context, a *App, name string, fn func() (T, error)) (T, *core.Receipt, error) {
	var out T
	receipt, err := a.Executor.Execute(ctx, name, func(ctx context.Context) error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if strings.HasPrefix(name, "zap.") {
		result := "ok"
		if err != nil {
			result = common.Kind(err)
		}
		a.metrics.RecordZap(name, result)
	}
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return out, receipt, nil
}

func exec(ctx context.Context, a *App, name string, fn func() error) (*core.Receipt, error) {
	_, receipt, err := run(ctx, a, name, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return receipt, err
}

// CreateVault deploys a vault through the factory.
func (a *App) CreateVault(ctx context.Context, caller [20]byte, name, symbol, assetClass string, allowAll, is1155 bool) (*vault.Vault, *core.Receipt, error) {
	return run(ctx, a, "factory.create_vault", func() (*vault.Vault, error) {
		return a.Factory.CreateVault(caller, name, symbol, assetClass, allowAll, is1155)
	})
}

func (a *App) Mint(ctx context.Context, caller [20]byte, vaultID uint64, ids, amounts []*big.Int) (*vault.MintResult, *core.Receipt, error) {
	return run(ctx, a, "vault.mint", func() (*vault.MintResult, error) {
		return a.Vaults.Mint(caller, vaultID, ids, amounts)
	})
}

func (a *App) Redeem(ctx context.Context, caller [20]byte, vaultID uint64, count uint64, specificIDs []*big.Int, to [20]byte) (*vault.RedeemResult, *core.Receipt, error) {
	return run(ctx, a, "vault.redeem", func() (*vault.RedeemResult, error) {
		return a.Vaults.Redeem(caller, vaultID, count, specificIDs, to)
	})
}

func (a *App) Swap(ctx context.Context, caller [20]byte, vaultID uint64, ids, amounts, specificOut []*big.Int, to [20]byte) (*vault.RedeemResult, *core.Receipt, error) {
	return run(ctx, a, "vault.swap", func() (*vault.RedeemResult, error) {
		return a.Vaults.Swap(caller, vaultID, ids, amounts, specificOut, to)
	})
}

func (a *App) SetVaultFees(ctx context.Context, caller [20]byte, vaultID uint64, schedule vault.Fees) (*core.Receipt, error) {
	return exec(ctx, a, "vault.set_fees", func() error {
		return a.Vaults.SetFees(caller, vaultID, schedule)
	})
}

func (a *App) FinalizeVault(ctx context.Context, caller [20]byte, vaultID uint64) (*core.Receipt, error) {
	return exec(ctx, a, "vault.finalize", func() error {
		return a.Vaults.Finalize(caller, vaultID)
	})
}

// Distribute splits a vault's pending fees.
func (a *App) Distribute(ctx context.Context, caller [20]byte, vaultID uint64) (*fees.Distribution, *core.Receipt, error) {
	return run(ctx, a, "fees.distribute", func() (*fees.Distribution, error) {
		return a.Fees.Distribute(caller, vaultID)
	})
}

func (a *App) SetSplitRatio(ctx context.Context, caller [20]byte, stakingBps, treasuryBps uint32) (*core.Receipt, error) {
	return exec(ctx, a, "fees.set_split", func() error {
		return a.Fees.SetSplitRatio(caller, stakingBps, treasuryBps)
	})
}

func (a *App) PauseFeeDistribution(ctx context.Context, caller [20]byte, paused bool) (*core.Receipt, error) {
	return exec(ctx, a, "fees.pause", func() error {
		return a.Fees.PauseFeeDistribution(caller, paused)
	})
}

func (a *App) Stake(ctx context.Context, caller [20]byte, vaultID uint64, amount *big.Int) (*staking.Position, *core.Receipt, error) {
	return run(ctx, a, "staking.stake", func() (*staking.Position, error) {
		return a.Staking.Stake(caller, vaultID, amount)
	})
}

func (a *App) Unstake(ctx context.Context, caller [20]byte, vaultID uint64, amount *big.Int) (*big.Int, *core.Receipt, error) {
	return run(ctx, a, "staking.unstake", func() (*big.Int, error) {
		return a.Staking.Unstake(caller, vaultID, amount)
	})
}

func (a *App) Claim(ctx context.Context, caller [20]byte, vaultID uint64) (*big.Int, *core.Receipt, error) {
	return run(ctx, a, "staking.claim", func() (*big.Int, error) {
		return a.Staking.Claim(caller, vaultID)
	})
}

func (a *App) MintAndSell(ctx context.Context, caller [20]byte, vaultID uint64, ids, amounts []*big.Int, minBaseOut *big.Int, path []string, to [20]byte) (*big.Int, *core.Receipt, error) {
	return run(ctx, a, zap.EventTypeMintAndSell, func() (*big.Int, error) {
		return a.Marketplace.MintAndSell(caller, vaultID, ids, amounts, minBaseOut, path, to)
	})
}

func (a *App) BuyAndRedeem(ctx context.Context, caller [20]byte, vaultID uint64, count uint64, specificIDs []*big.Int, maxBaseIn *big.Int, path []string, to [20]byte) (*zap.RedeemOutcome, *core.Receipt, error) {
	return run(ctx, a, zap.EventTypeBuyAndRedeem, func() (*zap.RedeemOutcome, error) {
		return a.Marketplace.BuyAndRedeem(caller, vaultID, count, specificIDs, maxBaseIn, path, to)
	})
}

func (a *App) BuyAndSwap(ctx context.Context, caller [20]byte, vaultID uint64, ids, amounts, specificOut []*big.Int, maxBaseIn *big.Int, path []string, to [20]byte) (*zap.RedeemOutcome, *core.Receipt, error) {
	return run(ctx, a, zap.EventTypeBuyAndSwap, func() (*zap.RedeemOutcome, error) {
		return a.Marketplace.BuyAndSwap(caller, vaultID, ids, amounts, specificOut, maxBaseIn, path, to)
	})
}

func (a *App) ZapLiquidity(ctx context.Context, caller [20]byte, vaultID uint64, ids, amounts []*big.Int, baseMax, minBaseIn *big.Int, to [20]byte) (*zap.LiquidityOutcome, *core.Receipt, error) {
	return run(ctx, a, zap.EventTypeLiquidityZapped, func() (*zap.LiquidityOutcome, error) {
		return a.StakingZap.AddLiquidity(caller, vaultID, ids, amounts, baseMax, minBaseIn, to)
	})
}

// LiquidityResult reports an AMM deposit.
type LiquidityResult struct {
	AmountA   *big.Int `json:"amountA"`
	AmountB   *big.Int `json:"amountB"`
	Liquidity *big.Int `json:"liquidity"`
}

func (a *App) AddLiquidity(ctx context.Context, caller [20]byte, tokenA, tokenB string, amountA, amountB *big.Int, to [20]byte) (*LiquidityResult, *core.Receipt, error) {
	return run(ctx, a, "amm.add_liquidity", func() (*LiquidityResult, error) {
		usedA, usedB, liquidity, err := a.Pools.AddLiquidity(caller, tokenA, tokenB, amountA, amountB, nil, nil, to)
		if err != nil {
			return nil, err
		}
		return &LiquidityResult{AmountA: usedA, AmountB: usedB, Liquidity: liquidity}, nil
	})
}

func (a *App) AddEligibilityModule(ctx context.Context, caller [20]byte, def *eligibility.Definition) (uint64, *core.Receipt, error) {
	return run(ctx, a, "eligibility.add_module", func() (uint64, error) {
		return a.Eligibility.AddModule(caller, def)
	})
}

func (a *App) SetActiveModule(ctx context.Context, caller [20]byte, vaultID, moduleID uint64, enabled bool) (*core.Receipt, error) {
	return exec(ctx, a, "eligibility.set_active", func() error {
		return a.Eligibility.SetActiveModule(caller, vaultID, moduleID, enabled)
	})
}

// UpgradeComponent points a component at impl and refreshes the cached view.
func (a *App) UpgradeComponent(ctx context.Context, caller [20]byte, c proxy.Component, impl [20]byte) (*core.Receipt, error) {
	return exec(ctx, a, "proxy.upgrade", func() error {
		if err := a.Proxy.UpgradeProxyTo(caller, c, impl); err != nil {
			return err
		}
		_, err := a.Proxy.FetchImplAddress(c)
		return err
	})
}

func (a *App) ChangeProxyAdmin(ctx context.Context, caller [20]byte, c proxy.Component, newAdmin [20]byte) (*core.Receipt, error) {
	return exec(ctx, a, "proxy.change_admin", func() error {
		return a.Proxy.ChangeProxyAdmin(caller, c, newAdmin)
	})
}

// Credit mints fungible tokens or assets into an account. Admin only; it
// stands in for the bridges that fund accounts in a full deployment.
func (a *App) Credit(ctx context.Context, caller [20]byte, token string, id *big.Int, to [20]byte, amount *big.Int) (*core.Receipt, error) {
	return exec(ctx, a, "app.credit", func() error {
		if caller != a.admin {
			return fmt.Errorf("app: credit: %w", common.ErrUnauthorized)
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("app: credit: %w", common.ErrInvalidAmount)
		}
		if id == nil {
			return a.State.Mint(token, to, amount)
		}
		col, ok, err := a.State.Collection(token)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("app: credit: unknown collection %q: %w", token, common.ErrConfigInvariantViolated)
		}
		if col.Is1155 {
			return a.State.MintNFT1155(token, to, id, amount)
		}
		return a.State.MintNFT(token, to, id)
	})
}
