package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultchain/core/events"
	"vaultchain/core/state"
	"vaultchain/native/common"
	"vaultchain/storage"
)

var (
	testFactory = [20]byte{0xfa}
	testAdmin   = [20]byte{0xad}
	testManager = [20]byte{0x01}
	alice       = [20]byte{0xa1}
	bob         = [20]byte{0xb0}
	sinkAccount = [20]byte{0xfe}
)

type recordingSink struct {
	reported map[uint64]*big.Int
	callers  [][20]byte
	onReport func() error
}

func (s *recordingSink) Account() [20]byte { return sinkAccount }

func (s *recordingSink) ReportFee(caller [20]byte, vaultID uint64, amount *big.Int) error {
	if s.onReport != nil {
		if err := s.onReport(); err != nil {
			return err
		}
	}
	if s.reported == nil {
		s.reported = map[uint64]*big.Int{}
	}
	if s.reported[vaultID] == nil {
		s.reported[vaultID] = big.NewInt(0)
	}
	s.reported[vaultID].Add(s.reported[vaultID], amount)
	s.callers = append(s.callers, caller)
	return nil
}

type staticExclusions map[[20]byte]bool

func (s staticExclusions) IsExcludedFromFees(addr [20]byte) (bool, error) { return s[addr], nil }

type denyList map[string]bool

func (d denyList) CheckAllEligible(_ uint64, _ string, ids []*big.Int) (bool, error) {
	for _, id := range ids {
		if d[id.String()] {
			return false, nil
		}
	}
	return true, nil
}

type fixture struct {
	engine   *Engine
	state    *state.Manager
	sink     *recordingSink
	recorder *events.Recorder
}

func defaultFees() Fees {
	dec := func(s string) *big.Int {
		v, ok := common.ParseDecimal(s)
		if !ok {
			panic(s)
		}
		return v
	}
	return Fees{
		Mint:         dec("0.1"),
		RandomRedeem: dec("0.05"),
		TargetRedeem: dec("0.1"),
		RandomSwap:   dec("0.05"),
		TargetSwap:   dec("0.1"),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	sink := &recordingSink{}
	rec := &events.Recorder{}
	engine := NewEngine()
	engine.SetState(st)
	engine.SetFeeSink(sink)
	engine.SetEmitter(rec)
	engine.SetFactory(testFactory)
	engine.SetAdmin(testAdmin)
	engine.SetEntropyFunc(func() [32]byte { return [32]byte{7} })
	return &fixture{engine: engine, state: st, sink: sink, recorder: rec}
}

func (f *fixture) create(t *testing.T, id uint64, symbol, class string, is1155 bool) *Vault {
	t.Helper()
	v, err := f.engine.Create(testFactory, CreateParams{
		ID:         id,
		Name:       symbol + " vault",
		Symbol:     symbol,
		AssetClass: class,
		Is1155:     is1155,
		Manager:    testManager,
		Fees:       defaultFees(),
		Features:   AllFeatures(),
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) give721(t *testing.T, class string, to [20]byte, ids ...int64) []*big.Int {
	t.Helper()
	out := make([]*big.Int, 0, len(ids))
	for _, id := range ids {
		require.NoError(t, f.state.MintNFT(class, to, big.NewInt(id)))
		out = append(out, big.NewInt(id))
	}
	return out
}

func (f *fixture) balance(t *testing.T, symbol string, addr [20]byte) *big.Int {
	t.Helper()
	bal, err := f.state.Balance(symbol, addr)
	require.NoError(t, err)
	return bal
}

func decimal(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := common.ParseDecimal(s)
	require.True(t, ok)
	return v
}

func requireSupplyMatchesHoldings(t *testing.T, f *fixture, id uint64) {
	t.Helper()
	supply, err := f.engine.ShareSupply(id)
	require.NoError(t, err)
	held, err := f.engine.HeldCount(id)
	require.NoError(t, err)
	require.Zero(t, supply.Cmp(new(big.Int).Mul(held, common.Base)), "supply %s held %s", supply, held)
}

func TestCreateRestrictedToFactory(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(alice, CreateParams{Name: "x", Symbol: "X", AssetClass: "punks"})
	require.ErrorIs(t, err, common.ErrUnauthorized)

	v := f.create(t, 0, "punk", "punks", false)
	require.Equal(t, "PUNK", v.Symbol)
	require.Equal(t, AccountFor(0), v.Account)
	require.Len(t, f.recorder.OfType(EventTypeCreated), 1)

	_, err = f.engine.Create(testFactory, CreateParams{ID: 1, Name: "y", Symbol: "punk", AssetClass: "other"})
	require.ErrorIs(t, err, errSymbolTaken)

	_, err = f.engine.Create(testFactory, CreateParams{ID: 2, Name: "z", Symbol: "Z", AssetClass: "punks", Is1155: true})
	require.ErrorIs(t, err, common.ErrConfigInvariantViolated)
}

func TestMintCreditsSharesNetOfFee(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)
	ids := f.give721(t, "punks", alice, 7565)

	res, err := f.engine.Mint(alice, 0, ids, nil)
	require.NoError(t, err)
	require.Equal(t, decimal(t, "0.9"), res.Shares)
	require.Equal(t, decimal(t, "0.1"), res.Fee)
	require.Equal(t, decimal(t, "0.9"), f.balance(t, "PUNK", alice))
	require.Equal(t, decimal(t, "0.1"), f.balance(t, "PUNK", sinkAccount))
	require.Equal(t, decimal(t, "0.1"), f.sink.reported[0])
	require.Equal(t, [][20]byte{AccountFor(0)}, f.sink.callers)

	owner, ok, err := f.state.OwnerOf("punks", big.NewInt(7565))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, AccountFor(0), owner)
	requireSupplyMatchesHoldings(t, f, 0)

	minted := f.recorder.OfType(EventTypeMinted)
	require.Len(t, minted, 1)
	require.Equal(t, "7565", minted[0].Attr("ids"))
}

func TestMintFeeExcludedCallerPaysNothing(t *testing.T) {
	f := newFixture(t)
	f.engine.SetFeeExclusions(staticExclusions{alice: true})
	f.create(t, 0, "PUNK", "punks", false)
	ids := f.give721(t, "punks", alice, 1, 2)

	res, err := f.engine.Mint(alice, 0, ids, nil)
	require.NoError(t, err)
	require.Zero(t, res.Fee.Sign())
	require.Equal(t, common.Units(2), f.balance(t, "PUNK", alice))
	require.Empty(t, f.sink.reported)
}

func TestMintRejectsIneligibleAndDisabled(t *testing.T) {
	f := newFixture(t)
	f.engine.SetEligibility(denyList{"13": true})
	f.create(t, 0, "PUNK", "punks", false)
	ids := f.give721(t, "punks", alice, 12, 13)

	_, err := f.engine.Mint(alice, 0, ids, nil)
	require.ErrorIs(t, err, common.ErrIneligibleAsset)
	require.Zero(t, f.balance(t, "PUNK", alice).Sign())

	features := AllFeatures()
	features.Mint = false
	require.NoError(t, f.engine.SetFeatures(testManager, 0, features))
	_, err = f.engine.Mint(alice, 0, ids[:1], nil)
	require.ErrorIs(t, err, common.ErrFeatureDisabled)

	_, err = f.engine.Mint(alice, 7, ids[:1], nil)
	require.ErrorIs(t, err, common.ErrUnknownVault)
}

func TestMintRequiresCustody(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)
	ids := f.give721(t, "punks", bob, 5)

	_, err := f.engine.Mint(alice, 0, ids, nil)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	_, err = f.engine.Mint(alice, 0, ids, []*big.Int{big.NewInt(2)})
	require.ErrorIs(t, err, common.ErrInvalidAmount)
}

func TestRedeemSpecificAndRandom(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)
	ids := f.give721(t, "punks", alice, 1, 2, 3)
	_, err := f.engine.Mint(alice, 0, ids, nil)
	require.NoError(t, err)
	require.Equal(t, decimal(t, "2.7"), f.balance(t, "PUNK", alice))

	res, err := f.engine.Redeem(alice, 0, 2, []*big.Int{big.NewInt(2)}, bob)
	require.NoError(t, err)
	require.Len(t, res.IDs, 2)
	require.Equal(t, big.NewInt(2), res.IDs[0])
	require.Equal(t, decimal(t, "0.15"), res.Fee)
	require.Equal(t, decimal(t, "0.55"), f.balance(t, "PUNK", alice))
	require.Equal(t, decimal(t, "0.45"), f.balance(t, "PUNK", sinkAccount))

	for _, id := range res.IDs {
		owner, ok, err := f.state.OwnerOf("punks", id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, bob, owner)
	}
	holdings, err := f.engine.Holdings(0)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	requireSupplyMatchesHoldings(t, f, 0)

	v, err := f.engine.Vault(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v.RandNonce)
}

func TestRedeemUnheldSpecificBurnsNothing(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)
	ids := f.give721(t, "punks", alice, 1, 2)
	_, err := f.engine.Mint(alice, 0, ids, nil)
	require.NoError(t, err)
	before := f.balance(t, "PUNK", alice)

	_, err = f.engine.Redeem(alice, 0, 1, []*big.Int{big.NewInt(99)}, alice)
	require.ErrorIs(t, err, common.ErrAssetNotHeld)
	require.Equal(t, before, f.balance(t, "PUNK", alice))
	requireSupplyMatchesHoldings(t, f, 0)

	_, err = f.engine.Redeem(alice, 0, 1, []*big.Int{big.NewInt(1), big.NewInt(2)}, alice)
	require.ErrorIs(t, err, common.ErrCountMismatch)

	_, err = f.engine.Redeem(alice, 0, 2, nil, alice)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestRandomSelectionIsDeterministicForEntropy(t *testing.T) {
	draw := func() []*big.Int {
		f := newFixture(t)
		f.create(t, 0, "PUNK", "punks", false)
		ids := f.give721(t, "punks", alice, 10, 11, 12, 13, 14)
		f.engine.SetFeeExclusions(staticExclusions{alice: true})
		_, err := f.engine.Mint(alice, 0, ids, nil)
		require.NoError(t, err)
		res, err := f.engine.Redeem(alice, 0, 3, nil, alice)
		require.NoError(t, err)
		return res.IDs
	}
	first := draw()
	require.Equal(t, first, draw())
	seen := map[string]bool{}
	for _, id := range first {
		require.False(t, seen[id.String()])
		seen[id.String()] = true
	}
}

func TestSwap1155KeepsSupply(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "GEM", "gems", true)
	require.NoError(t, f.state.MintNFT1155("gems", alice, big.NewInt(1), big.NewInt(3)))
	require.NoError(t, f.state.MintNFT1155("gems", alice, big.NewInt(2), big.NewInt(1)))

	_, err := f.engine.Mint(alice, 0, []*big.Int{big.NewInt(1)}, []*big.Int{big.NewInt(3)})
	require.NoError(t, err)
	require.Equal(t, decimal(t, "2.7"), f.balance(t, "GEM", alice))
	supply, err := f.engine.ShareSupply(0)
	require.NoError(t, err)

	res, err := f.engine.Swap(alice, 0, []*big.Int{big.NewInt(2)}, []*big.Int{big.NewInt(1)}, []*big.Int{big.NewInt(1)}, alice)
	require.NoError(t, err)
	require.Equal(t, []*big.Int{big.NewInt(1)}, res.IDs)
	require.Equal(t, decimal(t, "0.1"), res.Fee)

	after, err := f.engine.ShareSupply(0)
	require.NoError(t, err)
	require.Equal(t, supply, after)
	requireSupplyMatchesHoldings(t, f, 0)

	bal, err := f.state.AssetBalance("gems", big.NewInt(1), alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), bal)
	bal, err = f.state.AssetBalance("gems", big.NewInt(2), AccountFor(0))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), bal)

	_, err = f.engine.Swap(alice, 0, []*big.Int{big.NewInt(1)}, []*big.Int{big.NewInt(1)}, []*big.Int{big.NewInt(1), big.NewInt(2)}, alice)
	require.ErrorIs(t, err, common.ErrCountMismatch)
}

func TestFeeAdministration(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)

	fees := defaultFees()
	fees.Mint = decimal(t, "0.6")
	require.ErrorIs(t, f.engine.SetFees(testManager, 0, fees), common.ErrConfigInvariantViolated)
	require.ErrorIs(t, f.engine.SetFees(alice, 0, defaultFees()), common.ErrUnauthorized)

	fees.Mint = decimal(t, "0.5")
	require.NoError(t, f.engine.SetFees(testManager, 0, fees))
	updated := f.recorder.OfType(EventTypeFeesUpdated)
	require.Len(t, updated, 1)
	require.Equal(t, decimal(t, "0.1").String(), updated[0].Attr("oldMint"))
	require.Equal(t, decimal(t, "0.5").String(), updated[0].Attr("mint"))

	require.NoError(t, f.engine.Finalize(testManager, 0))
	require.False(t, f.engine.IsManager(testManager, 0))
	require.ErrorIs(t, f.engine.SetFees(testManager, 0, defaultFees()), common.ErrUnauthorized)
	require.NoError(t, f.engine.SetFees(testAdmin, 0, defaultFees()))
}

func TestReentrantFeeReportRejected(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)
	ids := f.give721(t, "punks", alice, 1, 2)
	f.sink.onReport = func() error {
		_, err := f.engine.Mint(alice, 0, ids[1:], nil)
		return err
	}

	_, err := f.engine.Mint(alice, 0, ids[:1], nil)
	require.ErrorIs(t, err, common.ErrReentrantCall)
	require.False(t, f.engine.guard.Held())

	f.sink.onReport = nil
	_, err = f.engine.Mint(alice, 0, ids[1:], nil)
	require.NoError(t, err)
}

type pauseAll struct{}

func (pauseAll) IsPaused(string) bool { return true }

func TestPausedEngineRejectsOperations(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)
	f.engine.SetPauses(pauseAll{})
	_, err := f.engine.Redeem(alice, 0, 1, nil, alice)
	require.True(t, errors.Is(err, common.ErrModulePaused))
}

func TestQuotes(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0, "PUNK", "punks", false)
	fee, err := f.engine.QuoteRedeemFee(alice, 0, 3, 1)
	require.NoError(t, err)
	require.Equal(t, decimal(t, "0.2"), fee)
	fee, err = f.engine.QuoteSwapFee(alice, 0, 2, 2)
	require.NoError(t, err)
	require.Equal(t, decimal(t, "0.2"), fee)
	fee, err = f.engine.QuoteMintFee(alice, 0, 4)
	require.NoError(t, err)
	require.Equal(t, decimal(t, "0.4"), fee)
}
