package core_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultchain/core"
	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/core/types"
	"vaultchain/native/amm"
	"vaultchain/native/common"
	"vaultchain/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func newExecutor(t *testing.T) (*core.Executor, *state.Manager, *events.Recorder, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	st := state.NewManager(db)
	sink := &events.Recorder{}
	n := 0
	x := core.NewExecutor(st, sink, core.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("op-%d", n)
	}))
	return x, st, sink, db
}

func TestExecuteCommitsAndForwardsEvents(t *testing.T) {
	x, st, sink, db := newExecutor(t)
	alice := addr(1)

	receipt, err := x.Execute(context.Background(), "mint", func(ctx context.Context) error {
		if err := st.Mint("WETH", alice, big.NewInt(50)); err != nil {
			return err
		}
		x.Emitter().Emit(events.Wrap(types.NewEvent("test.minted").With("amount", "50")))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Height)
	require.Equal(t, "op-1", receipt.OpID)
	require.Len(t, receipt.Events, 1)
	require.Len(t, sink.OfType("test.minted"), 1)
	require.Zero(t, st.Dirty())
	require.Positive(t, db.Len())

	bal, err := st.Balance("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, int64(50), bal.Int64())
}

func TestExecuteRevertsOnError(t *testing.T) {
	x, st, sink, _ := newExecutor(t)
	alice := addr(1)
	_, err := x.Execute(context.Background(), "seed", func(ctx context.Context) error {
		return st.Mint("WETH", alice, big.NewInt(10))
	})
	require.NoError(t, err)

	boom := fmt.Errorf("zap: %w", common.ErrResidualBalance)
	_, err = x.Execute(context.Background(), "fail", func(ctx context.Context) error {
		if err := st.Burn("WETH", alice, big.NewInt(10)); err != nil {
			return err
		}
		x.Emitter().Emit(events.Wrap(types.NewEvent("test.burned")))
		return boom
	})
	require.ErrorIs(t, err, common.ErrResidualBalance)
	require.Empty(t, sink.OfType("test.burned"))

	bal, err := st.Balance("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.Int64())

	height, err := x.Height()
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)
}

func TestSlippageFailureLeavesCallerUntouched(t *testing.T) {
	x, st, _, _ := newExecutor(t)
	pools := amm.NewEngine()
	pools.SetState(st)
	pools.SetEmitter(x.Emitter())

	lp, trader := addr(1), addr(2)
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	hundred := new(big.Int).Mul(base, big.NewInt(100))
	_, err := x.Execute(context.Background(), "seed", func(ctx context.Context) error {
		for _, token := range []string{"WETH", "PUNK"} {
			if err := st.Mint(token, lp, hundred); err != nil {
				return err
			}
		}
		if err := st.Mint("WETH", trader, base); err != nil {
			return err
		}
		_, _, _, err := pools.AddLiquidity(lp, "WETH", "PUNK", hundred, hundred, big.NewInt(0), big.NewInt(0), lp)
		return err
	})
	require.NoError(t, err)

	custody := addr(9)
	_, err = x.Execute(context.Background(), "zap.buy", func(ctx context.Context) error {
		if err := st.Transfer("WETH", trader, custody, base); err != nil {
			return err
		}
		_, err := pools.SwapExactTokensForTokens(custody, base, base, []string{"WETH", "PUNK"}, trader)
		return err
	})
	require.ErrorIs(t, err, common.ErrSlippageExceeded)

	bal, err := st.Balance("WETH", trader)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Cmp(base))
	held, err := st.Balance("WETH", custody)
	require.NoError(t, err)
	require.Zero(t, held.Sign())
}

func TestEntropyAdvancesPerOperation(t *testing.T) {
	x, _, _, _ := newExecutor(t)
	var seen [][32]byte
	for i := 0; i < 3; i++ {
		_, err := x.Execute(context.Background(), "noop", func(ctx context.Context) error {
			seen = append(seen, x.Entropy())
			return nil
		})
		require.NoError(t, err)
	}
	require.NotEqual(t, seen[0], seen[1])
	require.NotEqual(t, seen[1], seen[2])
	require.Equal(t, [32]byte{}, x.Entropy())
}

func TestHeadSurvivesRestart(t *testing.T) {
	db := storage.NewMemDB()
	first := core.NewExecutor(state.NewManager(db), nil)
	for i := 0; i < 2; i++ {
		_, err := first.Execute(context.Background(), "noop", func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}
	second := core.NewExecutor(state.NewManager(db), nil)
	receipt, err := second.Execute(context.Background(), "noop", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(3), receipt.Height)
}

func TestExecuteRecoversPanics(t *testing.T) {
	x, _, _, _ := newExecutor(t)
	_, err := x.Execute(context.Background(), "panic", func(ctx context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	require.Equal(t, "Internal", common.Kind(err))
}

func TestExecuteRejectsCancelledContext(t *testing.T) {
	x, _, _, _ := newExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := x.Execute(ctx, "noop", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, called)
}

type readOnlyDB struct {
	*storage.MemDB
}

func (readOnlyDB) Write(storage.Batch) error { return errors.New("read-only") }

func TestFailedCommitLeavesNoTrace(t *testing.T) {
	db := readOnlyDB{storage.NewMemDB()}
	st := state.NewManager(db)
	sink := &events.Recorder{}
	x := core.NewExecutor(st, sink)

	_, err := x.Execute(context.Background(), "mint", func(ctx context.Context) error {
		x.Emitter().Emit(events.Wrap(types.NewEvent("test.minted")))
		return st.Mint("WETH", addr(1), big.NewInt(5))
	})
	require.Error(t, err)
	require.Equal(t, 0, db.Len())
	require.Empty(t, sink.OfType("test.minted"))
	require.Zero(t, st.Dirty())

	height, err := x.Height()
	require.NoError(t, err)
	require.Zero(t, height)
}
