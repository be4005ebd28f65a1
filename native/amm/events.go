package amm

import (
	"math/big"

	"vaultchain/core/events"
	"vaultchain/core/types"
)

const (
	EventTypeLiquidityAdded   = "amm.liquidity.added"
	EventTypeLiquidityRemoved = "amm.liquidity.removed"
	EventTypeSwap             = "amm.swap"
)

func LiquidityAddedEvent(p *Pair, to [20]byte, liquidity *big.Int) *types.Event {
	return types.NewEvent(EventTypeLiquidityAdded).
		With("pair", p.LPToken).
		With("to", events.FormatAddress(to)).
		With("liquidity", events.FormatAmount(liquidity)).
		With("reserve0", events.FormatAmount(p.Reserve0)).
		With("reserve1", events.FormatAmount(p.Reserve1))
}

func LiquidityRemovedEvent(p *Pair, to [20]byte, liquidity *big.Int) *types.Event {
	return types.NewEvent(EventTypeLiquidityRemoved).
		With("pair", p.LPToken).
		With("to", events.FormatAddress(to)).
		With("liquidity", events.FormatAmount(liquidity)).
		With("reserve0", events.FormatAmount(p.Reserve0)).
		With("reserve1", events.FormatAmount(p.Reserve1))
}

func SwapEvent(p *Pair, caller [20]byte, tokenIn string, amountIn, amountOut *big.Int, to [20]byte) *types.Event {
	return types.NewEvent(EventTypeSwap).
		With("pair", p.LPToken).
		With("caller", events.FormatAddress(caller)).
		With("tokenIn", tokenIn).
		With("amountIn", events.FormatAmount(amountIn)).
		With("amountOut", events.FormatAmount(amountOut)).
		With("to", events.FormatAddress(to))
}
