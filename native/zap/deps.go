package zap

import (
	"math/big"

	"vaultchain/native/staking"
	"vaultchain/native/vault"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(token string, addr [20]byte) (*big.Int, error)
	Transfer(token string, from, to [20]byte, amount *big.Int) error
	AssetBalance(collection string, id *big.Int, holder [20]byte) (*big.Int, error)
	TransferAsset(collection string, from, to [20]byte, id, amount *big.Int) error
}

// Vaults is the vault surface the zaps drive.
type Vaults interface {
	Vault(id uint64) (*vault.Vault, error)
	Mint(caller [20]byte, vaultID uint64, ids, amounts []*big.Int) (*vault.MintResult, error)
	Redeem(caller [20]byte, vaultID uint64, count uint64, specificIDs []*big.Int, to [20]byte) (*vault.RedeemResult, error)
	Swap(caller [20]byte, vaultID uint64, inIDs, inAmounts, specificOut []*big.Int, to [20]byte) (*vault.RedeemResult, error)
	QuoteRedeemFee(caller [20]byte, vaultID uint64, count, targeted uint64) (*big.Int, error)
	QuoteSwapFee(caller [20]byte, vaultID uint64, count, targeted uint64) (*big.Int, error)
}

// Router is the external pool the zaps trade through. Any venue exposing
// these calls can back the zaps.
type Router interface {
	SwapExactTokensForTokens(caller [20]byte, amountIn, amountOutMin *big.Int, path []string, to [20]byte) ([]*big.Int, error)
	SwapTokensForExactTokens(caller [20]byte, amountOut, amountInMax *big.Int, path []string, to [20]byte) ([]*big.Int, error)
}

// LiquidityRouter is a Router that also accepts liquidity.
type LiquidityRouter interface {
	Router
	AddLiquidity(caller [20]byte, tokenA, tokenB string, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int, to [20]byte) (*big.Int, *big.Int, *big.Int, error)
}

// Stakers is the staking surface the staking zap deposits into.
type Stakers interface {
	Pool(vaultID uint64) (*staking.Pool, error)
	StakeFor(caller, beneficiary [20]byte, vaultID uint64, amount *big.Int, lockUntil uint64) (*staking.Position, error)
}
