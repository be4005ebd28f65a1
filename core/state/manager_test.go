package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultchain/native/common"
	"vaultchain/storage"
)

type record struct {
	Name  string
	Count uint64
	Value *big.Int
}

func TestKVRoundTripAndCommit(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("rec"), &record{Name: "punks", Count: 2, Value: big.NewInt(7)}))
	var got record
	ok, err := mgr.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "punks", got.Name)
	require.Equal(t, 0, db.Len())

	require.NoError(t, mgr.Commit())
	require.Equal(t, 1, db.Len())
	require.Zero(t, mgr.Dirty())

	reopened := NewManager(db)
	ok, err = reopened.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), got.Count)

	require.NoError(t, reopened.KVDelete([]byte("rec")))
	ok, err = reopened.KVGet([]byte("rec"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, reopened.Commit())
	require.Equal(t, 0, db.Len())
}

// brokenDB rejects every write after the first succeeds.
type brokenDB struct {
	*storage.MemDB
	puts int
}

func (db *brokenDB) Put(key, value []byte) error {
	db.puts++
	if db.puts > 1 {
		return errors.New("disk full")
	}
	return db.MemDB.Put(key, value)
}

func (db *brokenDB) Write(storage.Batch) error {
	return errors.New("disk full")
}

func TestCommitIsAllOrNothing(t *testing.T) {
	db := &brokenDB{MemDB: storage.NewMemDB()}
	mgr := NewManager(db)
	require.NoError(t, mgr.KVPut([]byte("a"), uint64(1)))
	require.NoError(t, mgr.KVPut([]byte("b"), uint64(2)))
	require.NoError(t, mgr.KVPut([]byte("c"), uint64(3)))

	require.Error(t, mgr.Commit())
	require.Equal(t, 0, db.Len())
	require.Equal(t, 3, mgr.Dirty())

	healthy := storage.NewMemDB()
	retry := NewManager(healthy)
	require.NoError(t, retry.KVPut([]byte("a"), uint64(1)))
	require.NoError(t, retry.KVPut([]byte("b"), uint64(2)))
	require.NoError(t, retry.Commit())
	require.Equal(t, 2, healthy.Len())
}

func TestRevertToSnapshotRestoresPriorValues(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	alice := [20]byte{1}

	require.NoError(t, mgr.Mint("weth", alice, big.NewInt(100)))
	require.NoError(t, mgr.Commit())

	snap := mgr.Snapshot()
	require.NoError(t, mgr.Mint("WETH", alice, big.NewInt(50)))
	require.NoError(t, mgr.KVPut([]byte("new"), uint64(1)))
	inner := mgr.Snapshot()
	require.NoError(t, mgr.Burn("WETH", alice, big.NewInt(10)))

	mgr.RevertToSnapshot(inner)
	bal, err := mgr.Balance("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(150), bal)

	mgr.RevertToSnapshot(snap)
	bal, err = mgr.Balance("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), bal)
	ok, err := mgr.KVGet([]byte("new"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	supply, err := mgr.TotalSupply("weth")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), supply)
}

func TestTransferRejectsOverdraft(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	alice, bob := [20]byte{1}, [20]byte{2}
	require.NoError(t, mgr.Mint("PUNK", alice, big.NewInt(5)))

	err := mgr.Transfer("PUNK", alice, bob, big.NewInt(6))
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	require.NoError(t, mgr.Transfer("PUNK", alice, bob, big.NewInt(5)))
	bal, err := mgr.Balance("PUNK", bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), bal)

	require.Error(t, mgr.Transfer("PUNK", bob, alice, big.NewInt(-1)))
	require.ErrorIs(t, mgr.Burn("PUNK", alice, big.NewInt(1)), common.ErrInsufficientBalance)
}

func TestSingleUnitCustody(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	alice, vault := [20]byte{1}, [20]byte{9}
	require.NoError(t, mgr.RegisterCollection("coolcats", false))
	require.NoError(t, mgr.MintNFT("coolcats", alice, big.NewInt(7565)))
	require.Error(t, mgr.MintNFT("coolcats", alice, big.NewInt(7565)))

	err := mgr.TransferAsset("coolcats", vault, alice, big.NewInt(7565), big.NewInt(1))
	require.ErrorIs(t, err, common.ErrInsufficientBalance)
	require.NoError(t, mgr.TransferAsset("coolcats", alice, vault, big.NewInt(7565), big.NewInt(1)))

	owner, ok, err := mgr.OwnerOf("coolcats", big.NewInt(7565))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vault, owner)

	bal, err := mgr.AssetBalance("coolcats", big.NewInt(7565), alice)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestMultiUnitCustody(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	alice, vault := [20]byte{1}, [20]byte{9}
	require.NoError(t, mgr.RegisterCollection("fake", true))
	require.Error(t, mgr.RegisterCollection("fake", false))
	require.NoError(t, mgr.MintNFT1155("fake", alice, big.NewInt(3), big.NewInt(10)))

	require.NoError(t, mgr.TransferAsset("fake", alice, vault, big.NewInt(3), big.NewInt(4)))
	bal, err := mgr.AssetBalance("fake", big.NewInt(3), vault)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(4), bal)

	err = mgr.TransferAsset("fake", alice, vault, big.NewInt(3), big.NewInt(7))
	require.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestAssetAttributes(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.SetAssetAttributes("kitties", big.NewInt(1), map[string]string{"generation": "0", "color": "orange"}))
	attrs, err := mgr.AssetAttributes("kitties", big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, "0", attrs["generation"])

	empty, err := mgr.AssetAttributes("kitties", big.NewInt(2))
	require.NoError(t, err)
	require.Empty(t, empty)
}
