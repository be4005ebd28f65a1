package common

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindUnwrapsModuleContext(t *testing.T) {
	err := fmt.Errorf("vault: redeem id 7565: %w", ErrAssetNotHeld)
	require.Equal(t, "AssetNotHeld", Kind(err))
	require.Equal(t, "Unauthorized", Kind(fmt.Errorf("fees: %w", ErrUnauthorized)))
	require.Equal(t, "Internal", Kind(errors.New("boom")))
	require.Equal(t, "", Kind(nil))
}

func TestReentrancyGuard(t *testing.T) {
	var g ReentrancyGuard
	release, err := g.Enter()
	require.NoError(t, err)
	require.True(t, g.Held())

	_, err = g.Enter()
	require.ErrorIs(t, err, ErrReentrantCall)

	release()
	release()
	require.False(t, g.Held())

	again, err := g.Enter()
	require.NoError(t, err)
	again()
}

type pauses map[string]bool

func (p pauses) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	require.NoError(t, Guard(nil, "vault"))
	require.NoError(t, Guard(pauses{}, "vault"))
	require.ErrorIs(t, Guard(pauses{"vault": true}, "vault"), ErrModulePaused)
}

func TestDecimalRoundTrip(t *testing.T) {
	v, ok := ParseDecimal("0.1")
	require.True(t, ok)
	require.Equal(t, new(big.Int).Div(Base, big.NewInt(10)), v)
	require.Equal(t, "0.1", FormatDecimal(v))
	require.Equal(t, "2", FormatDecimal(Units(2)))
	require.Equal(t, "0", FormatDecimal(nil))

	_, ok = ParseDecimal("-1")
	require.False(t, ok)
	_, ok = ParseDecimal("0.0000000000000000001")
	require.False(t, ok)
}

func TestMulBps(t *testing.T) {
	require.Equal(t, big.NewInt(80), MulBps(big.NewInt(100), 8000))
	require.Zero(t, MulBps(big.NewInt(1), 8000).Sign())
	require.Zero(t, MulBps(nil, 8000).Sign())
}

func TestPairSymbolIsOrderIndependent(t *testing.T) {
	require.Equal(t, "LP-PUNK-WETH", PairSymbol("weth", "PUNK"))
	require.Equal(t, PairSymbol("PUNK", "WETH"), PairSymbol("WETH", "punk"))
}
