package zap

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/native/amm"
	"vaultchain/native/common"
	"vaultchain/native/factory"
	"vaultchain/native/fees"
	"vaultchain/native/staking"
	"vaultchain/native/vault"
	"vaultchain/storage"
)

var (
	admin    = [20]byte{0xad}
	treasury = [20]byte{0x7e}
	lp       = [20]byte{0x11}
	alice    = [20]byte{0xa1}
)

type fixture struct {
	state       *state.Manager
	vaults      *vault.Engine
	factory     *factory.Engine
	staking     *staking.Engine
	amm         *amm.Engine
	marketplace *Marketplace
	stakingZap  *StakingZap
	rec         *events.Recorder
	now         time.Time
}

func tenth() *big.Int { return new(big.Int).Div(common.Base, big.NewInt(10)) }

func twentieth() *big.Int { return new(big.Int).Div(common.Base, big.NewInt(20)) }

func ids(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	f := &fixture{state: st, rec: rec, now: time.Unix(1_700_000_000, 0)}

	provider := staking.NewTokenProvider("WETH")
	provider.SetState(st)
	stakingEngine := staking.NewEngine()
	stakingEngine.SetState(st)
	stakingEngine.SetProvider(provider)
	stakingEngine.SetFactory(factory.Account)
	stakingEngine.SetDistributor(fees.DistributorAccount)
	stakingEngine.SetZap(StakingAccount)
	stakingEngine.SetNowFunc(func() time.Time { return f.now })

	feeEngine := fees.NewEngine()
	feeEngine.SetState(st)
	feeEngine.SetFactory(factory.Account)
	feeEngine.SetStaking(stakingEngine)
	require.NoError(t, feeEngine.SetDefaults(fees.DefaultSplit(), treasury, false))

	factoryEngine := factory.NewEngine()
	factoryEngine.SetState(st)
	factoryEngine.SetAdmin(admin)
	factoryEngine.SetInitialDefaultFees(vault.Fees{Mint: tenth(), RandomRedeem: twentieth(), TargetRedeem: tenth(), RandomSwap: twentieth(), TargetSwap: tenth()})

	vaults := vault.NewEngine()
	vaults.SetState(st)
	vaults.SetFactory(factory.Account)
	vaults.SetAdmin(admin)
	vaults.SetFeeSink(feeEngine)
	vaults.SetFeeExclusions(factoryEngine)
	vaults.SetEntropyFunc(func() [32]byte { return [32]byte{1} })
	factoryEngine.SetVaults(vaults)
	factoryEngine.SetFeeRegistrar(feeEngine)
	factoryEngine.SetPools(stakingEngine)

	pools := amm.NewEngine()
	pools.SetState(st)

	marketplace := NewMarketplace("weth")
	marketplace.SetState(st)
	marketplace.SetEmitter(rec)
	marketplace.SetVaults(vaults)
	marketplace.SetRouter(pools)

	stakingZap := NewStakingZap("WETH")
	stakingZap.SetState(st)
	stakingZap.SetEmitter(rec)
	stakingZap.SetVaults(vaults)
	stakingZap.SetRouter(pools)
	stakingZap.SetStakers(stakingEngine)
	stakingZap.SetAdmin(admin)
	stakingZap.SetNowFunc(func() time.Time { return f.now })

	f.vaults, f.factory, f.staking, f.amm = vaults, factoryEngine, stakingEngine, pools
	f.marketplace, f.stakingZap = marketplace, stakingZap

	_, err := factoryEngine.CreateVault(admin, "Punks", "PUNK", "punks", true, false)
	require.NoError(t, err)
	require.NoError(t, factoryEngine.SetFeeExclusion(admin, lp, true))
	require.NoError(t, factoryEngine.SetFeeExclusion(admin, StakingAccount, true))

	for id := int64(0); id < 10; id++ {
		require.NoError(t, st.MintNFT("punks", lp, big.NewInt(id)))
	}
	for id := int64(100); id < 106; id++ {
		require.NoError(t, st.MintNFT("punks", alice, big.NewInt(id)))
	}
	_, err = vaults.Mint(lp, 0, ids(0, 1, 2, 3, 4, 5, 6, 7, 8, 9), nil)
	require.NoError(t, err)
	require.NoError(t, st.Mint("WETH", lp, common.Units(10)))
	require.NoError(t, st.Mint("WETH", alice, common.Units(100)))
	_, _, _, err = pools.AddLiquidity(lp, "PUNK", "WETH", common.Units(8), common.Units(8), nil, nil, lp)
	require.NoError(t, err)
	return f
}

func (f *fixture) requireZapEmpty(t *testing.T, account [20]byte) {
	t.Helper()
	for _, token := range []string{"PUNK", "WETH", "LP-PUNK-WETH"} {
		bal, err := f.state.Balance(token, account)
		require.NoError(t, err)
		require.Zero(t, bal.Sign(), token)
	}
}

func (f *fixture) owner(t *testing.T, id int64) [20]byte {
	t.Helper()
	owner, ok, err := f.state.OwnerOf("punks", big.NewInt(id))
	require.NoError(t, err)
	require.True(t, ok)
	return owner
}

func TestMintAndSell(t *testing.T) {
	f := newFixture(t)
	shares := new(big.Int).Sub(common.Base, tenth())
	quote, err := f.amm.GetAmountsOut(shares, []string{"PUNK", "WETH"})
	require.NoError(t, err)

	received, err := f.marketplace.MintAndSell(alice, 0, ids(100), nil, quote[1], nil, alice)
	require.NoError(t, err)
	require.Equal(t, quote[1], received)

	weth, err := f.state.Balance("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(common.Units(100), received), weth)
	require.Equal(t, vault.AccountFor(0), f.owner(t, 100))
	f.requireZapEmpty(t, MarketplaceAccount)
	require.Len(t, f.rec.OfType(EventTypeMintAndSell), 1)
}

func TestMintAndSellSlippage(t *testing.T) {
	f := newFixture(t)
	_, err := f.marketplace.MintAndSell(alice, 0, ids(100), nil, common.Units(5), nil, alice)
	require.ErrorIs(t, err, common.ErrSlippageExceeded)
}

func TestBuyAndRedeemRefundsUnusedBase(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.marketplace.BuyAndRedeem(alice, 0, 1, ids(5), common.Units(5), []string{"WETH", "PUNK"}, alice)
	require.NoError(t, err)
	require.Equal(t, ids(5), outcome.IDs)
	require.Equal(t, tenth(), outcome.Fee)
	require.Equal(t, alice, f.owner(t, 5))
	require.Positive(t, outcome.Refunded.Sign())

	spent := new(big.Int).Sub(common.Units(5), outcome.Refunded)
	require.Equal(t, outcome.BaseSpent, spent)
	weth, err := f.state.Balance("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Sub(common.Units(100), spent), weth)
	f.requireZapEmpty(t, MarketplaceAccount)

	_, err = f.marketplace.BuyAndRedeem(alice, 0, 1, nil, big.NewInt(1), nil, alice)
	require.ErrorIs(t, err, common.ErrSlippageExceeded)
}

func TestBuyAndSwap(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.marketplace.BuyAndSwap(alice, 0, ids(101), nil, ids(6), common.Units(1), nil, alice)
	require.NoError(t, err)
	require.Equal(t, ids(6), outcome.IDs)
	require.Equal(t, tenth(), outcome.Fee)
	require.Equal(t, alice, f.owner(t, 6))
	require.Equal(t, vault.AccountFor(0), f.owner(t, 101))
	f.requireZapEmpty(t, MarketplaceAccount)

	_, err = f.marketplace.BuyAndSwap(alice, 0, ids(102), nil, ids(7, 8), common.Units(1), nil, alice)
	require.ErrorIs(t, err, common.ErrCountMismatch)
}

func TestStakingZapLocksLiquidity(t *testing.T) {
	f := newFixture(t)
	lock, err := f.stakingZap.LockTime()
	require.NoError(t, err)
	require.Equal(t, DefaultLockSeconds, lock)

	outcome, err := f.stakingZap.AddLiquidity(alice, 0, ids(102, 103), nil, common.Units(5), nil, alice)
	require.NoError(t, err)
	require.Equal(t, common.Units(2), outcome.Shares)
	require.Equal(t, common.Units(2), outcome.BaseUsed)
	require.Equal(t, common.Units(3), outcome.Refunded)
	require.Equal(t, uint64(f.now.Unix())+DefaultLockSeconds, outcome.LockedUntil)

	pos, err := f.staking.Position(0, alice)
	require.NoError(t, err)
	require.Equal(t, outcome.Liquidity, pos.Amount)
	f.requireZapEmpty(t, StakingAccount)

	_, err = f.staking.Unstake(alice, 0, pos.Amount)
	require.Error(t, err)
	f.now = f.now.Add(time.Duration(DefaultLockSeconds+1) * time.Second)
	_, err = f.staking.Unstake(alice, 0, pos.Amount)
	require.NoError(t, err)
}

func TestSetLockTimeRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.stakingZap.SetLockTime(alice, 10), common.ErrUnauthorized)
	require.NoError(t, f.stakingZap.SetLockTime(admin, 10))
	lock, err := f.stakingZap.LockTime()
	require.NoError(t, err)
	require.Equal(t, uint64(10), lock)
	require.Len(t, f.rec.OfType(EventTypeLockTimeUpdated), 1)
}

// reentrantRouter calls back into the zap from inside the trade.
type reentrantRouter struct {
	Router
	zap   *Marketplace
	inner error
}

func (r *reentrantRouter) SwapExactTokensForTokens(caller [20]byte, amountIn, amountOutMin *big.Int, path []string, to [20]byte) ([]*big.Int, error) {
	_, r.inner = r.zap.MintAndSell(alice, 0, ids(101), nil, nil, nil, alice)
	if r.inner != nil {
		return nil, r.inner
	}
	return r.Router.SwapExactTokensForTokens(caller, amountIn, amountOutMin, path, to)
}

func TestReentrantRouterIsRejected(t *testing.T) {
	f := newFixture(t)
	router := &reentrantRouter{Router: f.amm, zap: f.marketplace}
	f.marketplace.SetRouter(router)

	_, err := f.marketplace.MintAndSell(alice, 0, ids(100), nil, nil, nil, alice)
	require.ErrorIs(t, err, common.ErrReentrantCall)
	require.ErrorIs(t, router.inner, common.ErrReentrantCall)
}

// idleRouter reports a fill without moving any tokens.
type idleRouter struct{ Router }

func (idleRouter) SwapExactTokensForTokens(_ [20]byte, amountIn, _ *big.Int, _ []string, _ [20]byte) ([]*big.Int, error) {
	return []*big.Int{amountIn, big.NewInt(1)}, nil
}

func TestResidualBalanceIsDetected(t *testing.T) {
	f := newFixture(t)
	f.marketplace.SetRouter(idleRouter{Router: f.amm})
	_, err := f.marketplace.MintAndSell(alice, 0, ids(100), nil, nil, nil, alice)
	require.ErrorIs(t, err, common.ErrResidualBalance)
}

func TestDonatedAssetsDoNotBlockMintAndSell(t *testing.T) {
	f := newFixture(t)
	gems, err := f.factory.CreateVault(admin, "Gems", "GEM", "gems", true, true)
	require.NoError(t, err)
	require.NoError(t, f.state.MintNFT1155("gems", lp, big.NewInt(1), big.NewInt(5)))
	require.NoError(t, f.state.MintNFT1155("gems", alice, big.NewInt(1), big.NewInt(2)))
	_, err = f.vaults.Mint(lp, gems.ID, ids(1), ids(5))
	require.NoError(t, err)

	// One unit parked on the zap account by an unrelated redeem.
	_, err = f.vaults.Redeem(lp, gems.ID, 1, ids(1), MarketplaceAccount)
	require.NoError(t, err)
	require.NoError(t, f.state.Mint("WETH", lp, common.Units(3)))
	_, _, _, err = f.amm.AddLiquidity(lp, "GEM", "WETH", common.Units(3), common.Units(3), nil, nil, lp)
	require.NoError(t, err)

	received, err := f.marketplace.MintAndSell(alice, gems.ID, ids(1), ids(1), nil, nil, alice)
	require.NoError(t, err)
	require.Positive(t, received.Sign())

	held, err := f.state.AssetBalance("gems", big.NewInt(1), MarketplaceAccount)
	require.NoError(t, err)
	require.Equal(t, int64(1), held.Int64())
	held, err = f.state.AssetBalance("gems", big.NewInt(1), alice)
	require.NoError(t, err)
	require.Equal(t, int64(1), held.Int64())
}

func TestDonatedLiquidityDoesNotBlockStakingZap(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.Mint("WETH", lp, common.Units(1)))
	_, _, donated, err := f.amm.AddLiquidity(lp, "PUNK", "WETH", common.Units(1), common.Units(1), nil, nil, StakingAccount)
	require.NoError(t, err)

	outcome, err := f.stakingZap.AddLiquidity(alice, 0, ids(102), nil, common.Units(2), nil, alice)
	require.NoError(t, err)
	require.Equal(t, common.Units(1), outcome.Refunded)

	bal, err := f.state.Balance("LP-PUNK-WETH", StakingAccount)
	require.NoError(t, err)
	require.Equal(t, donated, bal)
}

func TestDonatedBaseIsNotRefunded(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.Mint("WETH", MarketplaceAccount, common.Units(7)))

	outcome, err := f.marketplace.BuyAndRedeem(alice, 0, 1, ids(5), common.Units(5), nil, alice)
	require.NoError(t, err)
	require.Equal(t, common.Units(5), new(big.Int).Add(outcome.BaseSpent, outcome.Refunded))

	bal, err := f.state.Balance("WETH", MarketplaceAccount)
	require.NoError(t, err)
	require.Equal(t, common.Units(7), bal)
}

func TestZapAccountCannotReceiveOutput(t *testing.T) {
	f := newFixture(t)
	_, err := f.marketplace.MintAndSell(alice, 0, ids(100), nil, nil, nil, MarketplaceAccount)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	_, err = f.marketplace.BuyAndRedeem(alice, 0, 1, nil, common.Units(5), nil, MarketplaceAccount)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	_, err = f.stakingZap.AddLiquidity(alice, 0, ids(102), nil, common.Units(2), nil, StakingAccount)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	require.Equal(t, alice, f.owner(t, 100))
}

// seedRoute opens PUNK/DAI, DAI/USDC and USDC/WETH pools so trades can reach
// the base token in three hops.
func seedRoute(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.state.Mint("DAI", lp, common.Units(22)))
	require.NoError(t, f.state.Mint("USDC", lp, common.Units(40)))
	require.NoError(t, f.state.Mint("WETH", lp, common.Units(20)))
	_, _, _, err := f.amm.AddLiquidity(lp, "PUNK", "DAI", common.Units(2), common.Units(2), nil, nil, lp)
	require.NoError(t, err)
	_, _, _, err = f.amm.AddLiquidity(lp, "DAI", "USDC", common.Units(20), common.Units(20), nil, nil, lp)
	require.NoError(t, err)
	_, _, _, err = f.amm.AddLiquidity(lp, "USDC", "WETH", common.Units(20), common.Units(20), nil, nil, lp)
	require.NoError(t, err)
}

func TestMintAndSellAlongMultiHopPath(t *testing.T) {
	f := newFixture(t)
	seedRoute(t, f)
	path := []string{"PUNK", "DAI", "USDC", "WETH"}
	shares := new(big.Int).Sub(common.Base, tenth())
	quote, err := f.amm.GetAmountsOut(shares, path)
	require.NoError(t, err)
	require.Len(t, quote, 4)

	received, err := f.marketplace.MintAndSell(alice, 0, ids(104), nil, quote[3], path, alice)
	require.NoError(t, err)
	require.Equal(t, quote[3], received)

	weth, err := f.state.Balance("WETH", alice)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(common.Units(100), received), weth)
	for _, token := range path {
		bal, err := f.state.Balance(token, MarketplaceAccount)
		require.NoError(t, err)
		require.Zero(t, bal.Sign(), token)
	}
}

func TestBuyAndRedeemAlongMultiHopPath(t *testing.T) {
	f := newFixture(t)
	seedRoute(t, f)
	path := []string{"WETH", "USDC", "DAI", "PUNK"}
	need := new(big.Int).Add(common.Base, twentieth())
	quote, err := f.amm.GetAmountsIn(need, path)
	require.NoError(t, err)

	outcome, err := f.marketplace.BuyAndRedeem(alice, 0, 1, nil, common.Units(5), path, alice)
	require.NoError(t, err)
	require.Len(t, outcome.IDs, 1)
	require.Equal(t, quote[0], outcome.BaseSpent)
	require.Equal(t, alice, f.owner(t, outcome.IDs[0].Int64()))
	f.requireZapEmpty(t, MarketplaceAccount)
}

func TestSwapPathMustJoinShareAndBase(t *testing.T) {
	f := newFixture(t)
	seedRoute(t, f)
	_, err := f.marketplace.MintAndSell(alice, 0, ids(100), nil, nil, []string{"WETH", "PUNK"}, alice)
	require.ErrorIs(t, err, common.ErrInvalidPath)
	_, err = f.marketplace.MintAndSell(alice, 0, ids(100), nil, nil, []string{"PUNK"}, alice)
	require.ErrorIs(t, err, common.ErrInvalidPath)
	_, err = f.marketplace.BuyAndRedeem(alice, 0, 1, nil, common.Units(5), []string{"WETH", "USDC", "DAI"}, alice)
	require.ErrorIs(t, err, common.ErrInvalidPath)
	_, err = f.marketplace.BuyAndSwap(alice, 0, ids(101), nil, nil, common.Units(1), []string{"PUNK", "WETH"}, alice)
	require.ErrorIs(t, err, common.ErrInvalidPath)
	require.Equal(t, alice, f.owner(t, 100))
}
