package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultchain/core/state"
	"vaultchain/native/common"
	"vaultchain/storage"
)

var (
	lp     = [20]byte{0x11}
	trader = [20]byte{0x22}
)

func newEngine(t *testing.T) (*Engine, *state.Manager) {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	engine := NewEngine()
	engine.SetState(st)
	for _, token := range []string{"PUNK", "WETH", "DAI"} {
		require.NoError(t, st.Mint(token, lp, common.Units(1_000)))
		require.NoError(t, st.Mint(token, trader, common.Units(100)))
	}
	return engine, st
}

func TestGetAmountOutMatchesConstantProduct(t *testing.T) {
	out, err := GetAmountOut(big.NewInt(1_000), big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(987), out)

	in, err := GetAmountIn(big.NewInt(987), big.NewInt(100_000), big.NewInt(100_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), in)

	_, err = GetAmountIn(big.NewInt(100_000), big.NewInt(100_000), big.NewInt(100_000))
	require.ErrorIs(t, err, errInsufficientLiquidity)
	_, err = GetAmountOut(big.NewInt(0), big.NewInt(1), big.NewInt(1))
	require.ErrorIs(t, err, errInsufficientInput)
}

func TestAddLiquidityLocksMinimum(t *testing.T) {
	engine, st := newEngine(t)
	a, b, liquidity, err := engine.AddLiquidity(lp, "WETH", "PUNK", common.Units(10), common.Units(40), nil, nil, lp)
	require.NoError(t, err)
	require.Equal(t, common.Units(10), a)
	require.Equal(t, common.Units(40), b)
	expected := new(big.Int).Sub(common.Units(20), MinimumLiquidity)
	require.Equal(t, expected, liquidity)

	pair, ok, err := engine.PairFor("punk", "weth")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "LP-PUNK-WETH", pair.LPToken)
	require.Equal(t, "PUNK", pair.Token0)
	locked, err := st.Balance(pair.LPToken, [20]byte{})
	require.NoError(t, err)
	require.Equal(t, MinimumLiquidity, locked)

	rWeth, rPunk, err := engine.Reserves("WETH", "PUNK")
	require.NoError(t, err)
	require.Equal(t, common.Units(10), rWeth)
	require.Equal(t, common.Units(40), rPunk)

	// Second deposit follows the ratio.
	a, b, _, err = engine.AddLiquidity(trader, "PUNK", "WETH", common.Units(8), common.Units(8), nil, nil, trader)
	require.NoError(t, err)
	require.Equal(t, common.Units(8), a)
	require.Equal(t, common.Units(2), b)

	_, _, _, err = engine.AddLiquidity(trader, "PUNK", "WETH", common.Units(8), common.Units(1), common.Units(8), nil, trader)
	require.ErrorIs(t, err, common.ErrSlippageExceeded)
}

func TestSwapsMoveReservesAndRespectLimits(t *testing.T) {
	engine, st := newEngine(t)
	_, _, _, err := engine.AddLiquidity(lp, "PUNK", "WETH", common.Units(100), common.Units(100), nil, nil, lp)
	require.NoError(t, err)

	quoted, err := engine.GetAmountsOut(common.Units(1), []string{"PUNK", "WETH"})
	require.NoError(t, err)
	_, err = engine.SwapExactTokensForTokens(trader, common.Units(1), new(big.Int).Add(quoted[1], big.NewInt(1)), []string{"PUNK", "WETH"}, trader)
	require.ErrorIs(t, err, common.ErrSlippageExceeded)

	amounts, err := engine.SwapExactTokensForTokens(trader, common.Units(1), quoted[1], []string{"PUNK", "WETH"}, trader)
	require.NoError(t, err)
	require.Equal(t, quoted, amounts)
	weth, err := st.Balance("WETH", trader)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(common.Units(100), quoted[1]), weth)

	need, err := engine.GetAmountsIn(common.Units(2), []string{"WETH", "PUNK"})
	require.NoError(t, err)
	_, err = engine.SwapTokensForExactTokens(trader, common.Units(2), new(big.Int).Sub(need[0], big.NewInt(1)), []string{"WETH", "PUNK"}, trader)
	require.ErrorIs(t, err, common.ErrSlippageExceeded)
	amounts, err = engine.SwapTokensForExactTokens(trader, common.Units(2), need[0], []string{"WETH", "PUNK"}, trader)
	require.NoError(t, err)
	require.Equal(t, common.Units(2), amounts[1])

	pair, _, err := engine.PairFor("PUNK", "WETH")
	require.NoError(t, err)
	punkHeld, err := st.Balance("PUNK", pair.Account)
	require.NoError(t, err)
	require.Equal(t, pair.Reserve0, punkHeld)
	wethHeld, err := st.Balance("WETH", pair.Account)
	require.NoError(t, err)
	require.Equal(t, pair.Reserve1, wethHeld)
}

func TestMultiHopSwap(t *testing.T) {
	engine, st := newEngine(t)
	_, _, _, err := engine.AddLiquidity(lp, "PUNK", "WETH", common.Units(100), common.Units(100), nil, nil, lp)
	require.NoError(t, err)
	_, _, _, err = engine.AddLiquidity(lp, "WETH", "DAI", common.Units(100), common.Units(200), nil, nil, lp)
	require.NoError(t, err)

	path := []string{"PUNK", "WETH", "DAI"}
	amounts, err := engine.SwapExactTokensForTokens(trader, common.Units(1), nil, path, trader)
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	dai, err := st.Balance("DAI", trader)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(common.Units(100), amounts[2]), dai)

	_, err = engine.GetAmountsOut(common.Units(1), []string{"PUNK"})
	require.ErrorIs(t, err, errInvalidPath)
	_, err = engine.GetAmountsOut(common.Units(1), []string{"PUNK", "DAI"})
	require.ErrorIs(t, err, errPairNotFound)
}

func TestRemoveLiquidityReturnsShare(t *testing.T) {
	engine, st := newEngine(t)
	_, _, liquidity, err := engine.AddLiquidity(lp, "PUNK", "WETH", common.Units(10), common.Units(10), nil, nil, lp)
	require.NoError(t, err)

	a, b, err := engine.RemoveLiquidity(lp, "PUNK", "WETH", liquidity, nil, nil, lp)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Sub(common.Units(10), MinimumLiquidity), a)
	require.Equal(t, a, b)
	bal, err := st.Balance("LP-PUNK-WETH", lp)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}
