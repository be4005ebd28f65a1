package zap

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
)

var (
	errNilState  = errors.New("zap engine: state not configured")
	errNilRouter = errors.New("zap engine: router not configured")
	errNilVaults = errors.New("zap engine: vaults not configured")
	errEmptyIDs  = errors.New("zap engine: asset ids required")
	errMaxBaseIn = errors.New("zap engine: max base input must be positive")
)

// MarketplaceAccount is the custody identity of the marketplace zap.
var MarketplaceAccount = crypto.ModuleAddress("marketplace-zap")

// Marketplace composes vault operations with pool trades so users can go
// between assets and the base token in one atomic call.
type Marketplace struct {
	state     engineState
	emitter   events.Emitter
	vaults    Vaults
	router    Router
	baseToken string
	guard     common.ReentrancyGuard
}

// NewMarketplace constructs a marketplace zap trading against baseToken.
func NewMarketplace(baseToken string) *Marketplace {
	return &Marketplace{
		emitter:   events.NoopEmitter{},
		baseToken: strings.ToUpper(strings.TrimSpace(baseToken)),
	}
}

// SetState configures the state backend used by the zap.
func (m *Marketplace) SetState(state engineState) { m.state = state }

// SetEmitter configures the event emitter used by the zap.
func (m *Marketplace) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetVaults wires the vault engine.
func (m *Marketplace) SetVaults(v Vaults) { m.vaults = v }

// SetRouter wires the pool router.
func (m *Marketplace) SetRouter(r Router) { m.router = r }

// Account returns the zap's custody identity.
func (m *Marketplace) Account() [20]byte { return MarketplaceAccount }

func (m *Marketplace) emit(evt *types.Event) {
	if m == nil || m.emitter == nil || evt == nil {
		return
	}
	m.emitter.Emit(events.Wrap(evt))
}

func (m *Marketplace) enter(op string) (func(), error) {
	if m.state == nil {
		return nil, errNilState
	}
	if m.vaults == nil {
		return nil, errNilVaults
	}
	if m.router == nil {
		return nil, errNilRouter
	}
	release, err := m.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("zap: %s: %w", op, err)
	}
	return release, nil
}

// MintAndSell deposits the caller's assets into the vault and sells the
// resulting shares along path for at least minBaseOut of the base token,
// paid to `to`. path runs from the share token to the base token; empty
// trades through the direct pair.
func (m *Marketplace) MintAndSell(caller [20]byte, vaultID uint64, ids, amounts []*big.Int, minBaseOut *big.Int, path []string, to [20]byte) (*big.Int, error) {
	release, err := m.enter("mint and sell")
	if err != nil {
		return nil, err
	}
	defer release()
	if len(ids) == 0 {
		return nil, errEmptyIDs
	}
	if err := checkRecipient(MarketplaceAccount, to); err != nil {
		return nil, err
	}
	v, err := m.vaults.Vault(vaultID)
	if err != nil {
		return nil, err
	}
	route, err := sellPath(path, v.Symbol, m.baseToken)
	if err != nil {
		return nil, err
	}
	l := newLedger(m.state, MarketplaceAccount)
	if err := l.token(route...); err != nil {
		return nil, err
	}
	if err := l.asset(v.AssetClass, ids...); err != nil {
		return nil, err
	}

	if err := pullAssets(m.state, v.AssetClass, caller, MarketplaceAccount, ids, amounts); err != nil {
		return nil, err
	}
	minted, err := m.vaults.Mint(MarketplaceAccount, vaultID, ids, amounts)
	if err != nil {
		return nil, err
	}
	out, err := m.router.SwapExactTokensForTokens(MarketplaceAccount, minted.Shares, minBaseOut, route, to)
	if err != nil {
		return nil, err
	}
	if err := l.verify(); err != nil {
		return nil, err
	}
	received := out[len(out)-1]
	m.emit(MintAndSellEvent(vaultID, caller, to, ids, minted.Shares, received))
	return received, nil
}

// BuyAndRedeem buys exactly the shares needed to redeem count units, fees
// included, spending at most maxBaseIn along path, and delivers the assets
// to `to`. Unspent base is refunded to the caller.
func (m *Marketplace) BuyAndRedeem(caller [20]byte, vaultID uint64, count uint64, specificIDs []*big.Int, maxBaseIn *big.Int, path []string, to [20]byte) (*RedeemOutcome, error) {
	release, err := m.enter("buy and redeem")
	if err != nil {
		return nil, err
	}
	defer release()
	if maxBaseIn == nil || maxBaseIn.Sign() <= 0 {
		return nil, errMaxBaseIn
	}
	if err := checkRecipient(MarketplaceAccount, to); err != nil {
		return nil, err
	}
	v, err := m.vaults.Vault(vaultID)
	if err != nil {
		return nil, err
	}
	route, err := buyPath(path, v.Symbol, m.baseToken)
	if err != nil {
		return nil, err
	}
	fee, err := m.vaults.QuoteRedeemFee(MarketplaceAccount, vaultID, count, uint64(len(specificIDs)))
	if err != nil {
		return nil, err
	}
	need := new(big.Int).Mul(new(big.Int).SetUint64(count), common.Base)
	need.Add(need, fee)

	l := newLedger(m.state, MarketplaceAccount)
	if err := l.token(route...); err != nil {
		return nil, err
	}

	if err := m.state.Transfer(m.baseToken, caller, MarketplaceAccount, maxBaseIn); err != nil {
		return nil, err
	}
	amounts, err := m.router.SwapTokensForExactTokens(MarketplaceAccount, need, maxBaseIn, route, MarketplaceAccount)
	if err != nil {
		return nil, err
	}
	redeemed, err := m.vaults.Redeem(MarketplaceAccount, vaultID, count, specificIDs, to)
	if err != nil {
		return nil, err
	}
	refunded, err := l.refund(m.baseToken, caller)
	if err != nil {
		return nil, err
	}
	if err := l.verify(); err != nil {
		return nil, err
	}
	outcome := &RedeemOutcome{IDs: redeemed.IDs, BaseSpent: amounts[0], Refunded: refunded, Fee: redeemed.Fee}
	m.emit(BuyAndRedeemEvent(vaultID, caller, to, outcome))
	return outcome, nil
}

// BuyAndSwap buys the swap fee in shares with at most maxBaseIn along path
// and swaps the caller's assets for the same number of vault assets.
func (m *Marketplace) BuyAndSwap(caller [20]byte, vaultID uint64, ids, amounts, specificOut []*big.Int, maxBaseIn *big.Int, path []string, to [20]byte) (*RedeemOutcome, error) {
	release, err := m.enter("buy and swap")
	if err != nil {
		return nil, err
	}
	defer release()
	if len(ids) == 0 {
		return nil, errEmptyIDs
	}
	if err := checkRecipient(MarketplaceAccount, to); err != nil {
		return nil, err
	}
	v, err := m.vaults.Vault(vaultID)
	if err != nil {
		return nil, err
	}
	route, err := buyPath(path, v.Symbol, m.baseToken)
	if err != nil {
		return nil, err
	}
	count := uint64(0)
	for i := range ids {
		if len(amounts) > i && amounts[i] != nil {
			if !amounts[i].IsUint64() {
				return nil, fmt.Errorf("zap: %w: amount too large", common.ErrInvalidAmount)
			}
			count += amounts[i].Uint64()
		} else {
			count++
		}
	}
	if uint64(len(specificOut)) > count {
		return nil, fmt.Errorf("zap: %w: %d out ids for %d in", common.ErrCountMismatch, len(specificOut), count)
	}
	fee, err := m.vaults.QuoteSwapFee(MarketplaceAccount, vaultID, count, uint64(len(specificOut)))
	if err != nil {
		return nil, err
	}

	l := newLedger(m.state, MarketplaceAccount)
	if err := l.token(route...); err != nil {
		return nil, err
	}
	if err := l.asset(v.AssetClass, ids...); err != nil {
		return nil, err
	}

	spent := big.NewInt(0)
	if fee.Sign() > 0 {
		if maxBaseIn == nil || maxBaseIn.Sign() <= 0 {
			return nil, errMaxBaseIn
		}
		if err := m.state.Transfer(m.baseToken, caller, MarketplaceAccount, maxBaseIn); err != nil {
			return nil, err
		}
		bought, err := m.router.SwapTokensForExactTokens(MarketplaceAccount, fee, maxBaseIn, route, MarketplaceAccount)
		if err != nil {
			return nil, err
		}
		spent = bought[0]
	}
	if err := pullAssets(m.state, v.AssetClass, caller, MarketplaceAccount, ids, amounts); err != nil {
		return nil, err
	}
	swapped, err := m.vaults.Swap(MarketplaceAccount, vaultID, ids, amounts, specificOut, to)
	if err != nil {
		return nil, err
	}
	refunded, err := l.refund(m.baseToken, caller)
	if err != nil {
		return nil, err
	}
	if err := l.verify(); err != nil {
		return nil, err
	}
	outcome := &RedeemOutcome{IDs: swapped.IDs, BaseSpent: spent, Refunded: refunded, Fee: swapped.Fee}
	m.emit(BuyAndSwapEvent(vaultID, caller, to, ids, outcome))
	return outcome, nil
}

// RedeemOutcome summarises a buy-side zap.
type RedeemOutcome struct {
	IDs       []*big.Int
	BaseSpent *big.Int
	Refunded  *big.Int
	Fee       *big.Int
}
