package events

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultchain/core/types"
)

func TestRecorderFiltersByType(t *testing.T) {
	rec := &Recorder{}
	var emitter Emitter = Multi{rec, NoopEmitter{}}

	emitter.Emit(Wrap(types.NewEvent("vault.minted").With("vaultId", "0")))
	emitter.Emit(Wrap(types.NewEvent("fees.reported").With("amount", "1")))
	emitter.Emit(nil)

	require.Equal(t, 2, rec.Len())
	minted := rec.OfType("vault.minted")
	require.Len(t, minted, 1)
	require.Equal(t, "0", minted[0].Attr("vaultId"))

	rec.Reset()
	require.Empty(t, rec.Events())
}

func TestFormatHelpers(t *testing.T) {
	require.Equal(t, "0", FormatAmount(nil))
	require.Equal(t, "7565,2533", FormatIDs([]*big.Int{big.NewInt(7565), big.NewInt(2533)}))
	require.True(t, strings.HasPrefix(FormatAddress([20]byte{1}), "vlt1"))
	require.Equal(t, "true", FormatBool(true))
	require.Equal(t, "42", FormatUint(42))
}

func TestFeedBacklogAndLiveUpdates(t *testing.T) {
	feed := NewFeed(2)
	feed.Emit(Wrap(types.NewEvent("a")))
	feed.Emit(Wrap(types.NewEvent("b")))
	feed.Emit(Wrap(types.NewEvent("c")))

	live, cancel, backlog := feed.Subscribe("0")
	defer cancel()
	require.Len(t, backlog, 2)
	require.Equal(t, "b", backlog[0].Event.Type)
	require.Equal(t, "3", backlog[1].Cursor)

	_, cancelEdge, none := feed.Subscribe("")
	require.Empty(t, none)
	require.Equal(t, 2, feed.Subscribers())
	cancelEdge()
	cancelEdge()
	require.Equal(t, 1, feed.Subscribers())

	src := types.NewEvent("d").With("k", "v")
	feed.Emit(Wrap(src))
	src.With("k", "changed")
	update := <-live
	require.Equal(t, uint64(4), update.Sequence)
	require.Equal(t, "v", update.Event.Attr("k"))
}
