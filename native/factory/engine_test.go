package factory

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/native/common"
	"vaultchain/native/fees"
	"vaultchain/native/staking"
	"vaultchain/native/vault"
	"vaultchain/storage"
)

var (
	admin   = [20]byte{0xad}
	creator = [20]byte{0xc0}
	alice   = [20]byte{0xa1}
)

type fixture struct {
	factory *Engine
	vaults  *vault.Engine
	fees    *fees.Engine
	staking *staking.Engine
	state   *state.Manager
	rec     *events.Recorder
}

func testFees() vault.Fees {
	tenth := new(big.Int).Div(common.Base, big.NewInt(10))
	twentieth := new(big.Int).Div(common.Base, big.NewInt(20))
	return vault.Fees{Mint: tenth, RandomRedeem: twentieth, TargetRedeem: tenth, RandomSwap: twentieth, TargetSwap: tenth}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}

	provider := staking.NewTokenProvider("WETH")
	provider.SetState(st)
	stakingEngine := staking.NewEngine()
	stakingEngine.SetState(st)
	stakingEngine.SetProvider(provider)
	stakingEngine.SetFactory(Account)
	stakingEngine.SetDistributor(fees.DistributorAccount)

	feeEngine := fees.NewEngine()
	feeEngine.SetState(st)
	feeEngine.SetFactory(Account)
	feeEngine.SetStaking(stakingEngine)

	factory := NewEngine()
	factory.SetState(st)
	factory.SetEmitter(rec)
	factory.SetAdmin(admin)
	factory.SetInitialDefaultFees(testFees())

	vaults := vault.NewEngine()
	vaults.SetState(st)
	vaults.SetFactory(Account)
	vaults.SetFeeSink(feeEngine)
	vaults.SetFeeExclusions(factory)

	factory.SetVaults(vaults)
	factory.SetFeeRegistrar(feeEngine)
	factory.SetPools(stakingEngine)
	return &fixture{factory: factory, vaults: vaults, fees: feeEngine, staking: stakingEngine, state: st, rec: rec}
}

func TestCreateVaultWiresCollaborators(t *testing.T) {
	f := newFixture(t)
	first, err := f.factory.CreateVault(creator, "Punks", "PUNK", "punks", true, false)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first.ID)
	require.Equal(t, creator, first.Manager)
	require.Equal(t, vault.AllFeatures(), first.Features)
	require.Equal(t, testFees().Mint, first.Fees.Mint)

	second, err := f.factory.CreateVault(creator, "Punks Alt", "PUNKALT", "punks", false, false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.ID)

	count, err := f.factory.VaultCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
	ids, err := f.factory.VaultsForAsset("punks")
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, ids)

	totals, err := f.fees.Totals(1)
	require.NoError(t, err)
	require.Equal(t, second.Account, totals.Account)
	pool, err := f.staking.Pool(1)
	require.NoError(t, err)
	require.Equal(t, "LP-PUNKALT-WETH", pool.StakingToken)
	require.Len(t, f.rec.OfType(EventTypeVaultCreated), 2)

	_, err = f.factory.CreateVault(creator, "Dup", "punk", "other", true, false)
	require.Error(t, err)
	count, err = f.factory.VaultCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
}

func TestFeeExclusionAppliesToVaults(t *testing.T) {
	f := newFixture(t)
	_, err := f.factory.CreateVault(creator, "Punks", "PUNK", "punks", true, false)
	require.NoError(t, err)
	require.NoError(t, f.state.MintNFT("punks", alice, big.NewInt(1)))

	require.ErrorIs(t, f.factory.SetFeeExclusion(alice, alice, true), common.ErrUnauthorized)
	require.NoError(t, f.factory.SetFeeExclusion(admin, alice, true))
	excluded, err := f.factory.IsExcludedFromFees(alice)
	require.NoError(t, err)
	require.True(t, excluded)

	res, err := f.vaults.Mint(alice, 0, []*big.Int{big.NewInt(1)}, nil)
	require.NoError(t, err)
	require.Equal(t, common.Units(1), res.Shares)

	require.NoError(t, f.factory.SetFeeExclusion(admin, alice, false))
	excluded, err = f.factory.IsExcludedFromFees(alice)
	require.NoError(t, err)
	require.False(t, excluded)
}

func TestDefaultFeesAndZap(t *testing.T) {
	f := newFixture(t)
	next := testFees()
	next.Mint = common.FeeCeiling
	require.ErrorIs(t, f.factory.SetDefaultFees(alice, next), common.ErrUnauthorized)
	require.NoError(t, f.factory.SetDefaultFees(admin, next))

	tooHigh := testFees()
	tooHigh.TargetSwap = new(big.Int).Add(common.FeeCeiling, big.NewInt(1))
	require.ErrorIs(t, f.factory.SetDefaultFees(admin, tooHigh), common.ErrConfigInvariantViolated)

	v, err := f.factory.CreateVault(creator, "Gems", "GEM", "gems", true, true)
	require.NoError(t, err)
	require.Equal(t, common.FeeCeiling, v.Fees.Mint)
	require.Len(t, f.rec.OfType(EventTypeDefaultFees), 1)

	zap := [20]byte{0x2a}
	require.ErrorIs(t, f.factory.SetZapContract(alice, zap), common.ErrUnauthorized)
	require.NoError(t, f.factory.SetZapContract(admin, zap))
	got, err := f.factory.ZapContract()
	require.NoError(t, err)
	require.Equal(t, zap, got)
}
