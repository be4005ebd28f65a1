package staking

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/native/common"
	"vaultchain/storage"
)

var (
	admin       = [20]byte{0xad}
	factory     = [20]byte{0xfa}
	distributor = [20]byte{0xd1}
	zap         = [20]byte{0x2a}
	alice       = [20]byte{0xa1}
	bob         = [20]byte{0xb0}
)

const lpToken = "LP-PUNK-WETH"

type fixture struct {
	engine *Engine
	state  *state.Manager
	rec    *events.Recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	rec := &events.Recorder{}
	provider := NewTokenProvider("weth")
	provider.SetState(st)
	provider.SetAdmin(admin)
	f := &fixture{state: st, rec: rec, now: time.Unix(1_700_000_000, 0)}
	engine := NewEngine()
	engine.SetState(st)
	engine.SetEmitter(rec)
	engine.SetProvider(provider)
	engine.SetAdmin(admin)
	engine.SetFactory(factory)
	engine.SetDistributor(distributor)
	engine.SetZap(zap)
	engine.SetNowFunc(func() time.Time { return f.now })
	f.engine = engine

	pool, err := engine.AddPool(factory, 0, "PUNK")
	require.NoError(t, err)
	require.Equal(t, lpToken, pool.StakingToken)
	for _, addr := range [][20]byte{alice, bob, zap} {
		require.NoError(t, st.Mint(lpToken, addr, big.NewInt(1_000)))
	}
	return f
}

func (f *fixture) accrue(t *testing.T, amount int64) {
	t.Helper()
	require.NoError(t, f.state.Mint("PUNK", PoolAccountFor(0), big.NewInt(amount)))
	require.NoError(t, f.engine.Accrue(distributor, 0, big.NewInt(amount)))
}

func (f *fixture) rewards(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	bal, err := f.state.Balance("PUNK", addr)
	require.NoError(t, err)
	return bal
}

func TestAccrueWithoutStakersHoldsPending(t *testing.T) {
	f := newFixture(t)
	f.accrue(t, 1_000)

	pool, err := f.engine.Pool(0)
	require.NoError(t, err)
	require.Zero(t, pool.AccRewardPerShare.Sign())
	require.Equal(t, big.NewInt(1_000), pool.Pending)
	require.Equal(t, big.NewInt(1_000), pool.Forwarded)

	_, err = f.engine.Stake(alice, 0, big.NewInt(100))
	require.NoError(t, err)
	owed, err := f.engine.PendingRewards(0, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), owed)

	pool, err = f.engine.Pool(0)
	require.NoError(t, err)
	require.Zero(t, pool.Pending.Sign())
}

func TestRewardsArePaidProRata(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Stake(alice, 0, big.NewInt(100))
	require.NoError(t, err)
	_, err = f.engine.Stake(bob, 0, big.NewInt(300))
	require.NoError(t, err)
	f.accrue(t, 400)

	paid, err := f.engine.Claim(alice, 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), paid)
	paid, err = f.engine.Claim(bob, 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), paid)

	again, err := f.engine.Claim(bob, 0)
	require.NoError(t, err)
	require.Zero(t, again.Sign())
	require.Len(t, f.rec.OfType(EventTypeClaimed), 2)
}

func TestClaimsNeverExceedForwarded(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Stake(alice, 0, big.NewInt(3))
	require.NoError(t, err)
	_, err = f.engine.Stake(bob, 0, big.NewInt(7))
	require.NoError(t, err)
	for _, amount := range []int64{1, 5, 11, 13} {
		f.accrue(t, amount)
		_, err = f.engine.Claim(alice, 0)
		require.NoError(t, err)
	}
	_, err = f.engine.Unstake(bob, 0, big.NewInt(7))
	require.NoError(t, err)
	_, err = f.engine.Claim(alice, 0)
	require.NoError(t, err)

	pool, err := f.engine.Pool(0)
	require.NoError(t, err)
	require.LessOrEqual(t, pool.Claimed.Cmp(pool.Forwarded), 0)
	total := new(big.Int).Add(f.rewards(t, alice), f.rewards(t, bob))
	require.Equal(t, pool.Claimed, total)
	require.Equal(t, big.NewInt(30), pool.Forwarded)
}

func TestAccrueCarriesUndividedRemainder(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Stake(alice, 0, big.NewInt(3))
	require.NoError(t, err)

	f.accrue(t, 10)
	pool, err := f.engine.Pool(0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), pool.Pending)
	owed, err := f.engine.PendingRewards(0, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9), owed)

	f.accrue(t, 2)
	pool, err = f.engine.Pool(0)
	require.NoError(t, err)
	require.Zero(t, pool.Pending.Sign())

	paid, err := f.engine.Claim(alice, 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(12), paid)
	require.Equal(t, pool.Forwarded, paid)
}

func TestUnstakeChecksBalanceAndLock(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Stake(alice, 0, big.NewInt(50))
	require.NoError(t, err)
	_, err = f.engine.Unstake(alice, 0, big.NewInt(51))
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	_, err = f.engine.StakeFor(alice, bob, 0, big.NewInt(10), 0)
	require.ErrorIs(t, err, common.ErrUnauthorized)

	lockUntil := uint64(f.now.Add(10 * time.Minute).Unix())
	pos, err := f.engine.StakeFor(zap, bob, 0, big.NewInt(10), lockUntil)
	require.NoError(t, err)
	require.Equal(t, lockUntil, pos.LockedUntil)

	_, err = f.engine.Unstake(bob, 0, big.NewInt(10))
	require.ErrorIs(t, err, errPositionLocked)

	f.now = f.now.Add(11 * time.Minute)
	_, err = f.engine.Unstake(bob, 0, big.NewInt(10))
	require.NoError(t, err)
	bal, err := f.state.Balance(lpToken, bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_010), bal)
}

func TestAccrueRestrictedToDistributor(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.Accrue(alice, 0, big.NewInt(1)), common.ErrUnauthorized)
	require.ErrorIs(t, f.engine.Accrue(distributor, 5, big.NewInt(1)), common.ErrUnknownVault)

	_, err := f.engine.AddPool(alice, 1, "GEM")
	require.ErrorIs(t, err, common.ErrUnauthorized)
	_, err = f.engine.AddPool(admin, 0, "PUNK")
	require.ErrorIs(t, err, errPoolExists)

	_, ok, err := f.engine.PoolAccount(9)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokenProviderOverrides(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	provider := NewTokenProvider("WETH")
	provider.SetState(st)
	provider.SetAdmin(admin)

	token, err := provider.StakingTokenFor("GEM")
	require.NoError(t, err)
	require.Equal(t, "LP-GEM-WETH", token)

	require.ErrorIs(t, provider.SetPairedTokenOverride(alice, "GEM", "USDC"), common.ErrUnauthorized)
	require.NoError(t, provider.SetPairedTokenOverride(admin, "gem", "usdc"))
	token, err = provider.StakingTokenFor("GEM")
	require.NoError(t, err)
	require.Equal(t, "LP-GEM-USDC", token)

	require.NoError(t, provider.SetDefaultPairedToken(admin, "DAI"))
	token, err = provider.StakingTokenFor("PUNK")
	require.NoError(t, err)
	require.Equal(t, "LP-DAI-PUNK", token)
}
