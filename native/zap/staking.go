package zap

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
)

// DefaultLockSeconds is how long zapped LP stays locked in the pool.
const DefaultLockSeconds uint64 = 600

var (
	lockTimeKey       = []byte("zap/staking/lock")
	errNilStakers     = errors.New("zap engine: staking not configured")
	errStakingTokenLP = errors.New("zap engine: pool stakes a different token")
)

// StakingAccount is the custody identity of the staking zap. It must be
// excluded from vault fees so zapped assets mint whole shares.
var StakingAccount = crypto.ModuleAddress("staking-zap")

// StakingZap mints vault shares, pairs them with the base token in the pool
// and stakes the LP for the caller under a time lock.
type StakingZap struct {
	state       engineState
	emitter     events.Emitter
	vaults      Vaults
	router      LiquidityRouter
	stakers     Stakers
	baseToken   string
	admin       [20]byte
	defaultLock uint64
	nowFn       func() time.Time
	guard       common.ReentrancyGuard
}

// NewStakingZap constructs a staking zap pairing shares with baseToken.
func NewStakingZap(baseToken string) *StakingZap {
	return &StakingZap{
		emitter:     events.NoopEmitter{},
		baseToken:   strings.ToUpper(strings.TrimSpace(baseToken)),
		defaultLock: DefaultLockSeconds,
		nowFn:       time.Now,
	}
}

// SetState configures the state backend used by the zap.
func (z *StakingZap) SetState(state engineState) { z.state = state }

// SetEmitter configures the event emitter used by the zap.
func (z *StakingZap) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		z.emitter = events.NoopEmitter{}
		return
	}
	z.emitter = emitter
}

// SetVaults wires the vault engine.
func (z *StakingZap) SetVaults(v Vaults) { z.vaults = v }

// SetRouter wires the pool router.
func (z *StakingZap) SetRouter(r LiquidityRouter) { z.router = r }

// SetStakers wires the staking engine.
func (z *StakingZap) SetStakers(s Stakers) { z.stakers = s }

// SetAdmin configures the identity allowed to change the lock time.
func (z *StakingZap) SetAdmin(addr [20]byte) { z.admin = addr }

// SetDefaultLock seeds the lock time used until governance stores one.
func (z *StakingZap) SetDefaultLock(seconds uint64) { z.defaultLock = seconds }

// SetNowFunc overrides the clock used for locks.
func (z *StakingZap) SetNowFunc(now func() time.Time) {
	if now == nil {
		z.nowFn = time.Now
		return
	}
	z.nowFn = now
}

// Account returns the zap's custody identity.
func (z *StakingZap) Account() [20]byte { return StakingAccount }

func (z *StakingZap) emit(evt *types.Event) {
	if z == nil || z.emitter == nil || evt == nil {
		return
	}
	z.emitter.Emit(events.Wrap(evt))
}

// LockTime returns the lock applied to zapped stakes, in seconds.
func (z *StakingZap) LockTime() (uint64, error) {
	if z.state == nil {
		return 0, errNilState
	}
	var seconds uint64
	ok, err := z.state.KVGet(lockTimeKey, &seconds)
	if err != nil {
		return 0, err
	}
	if !ok {
		return z.defaultLock, nil
	}
	return seconds, nil
}

// SetLockTime changes the lock applied to future zapped stakes.
func (z *StakingZap) SetLockTime(caller [20]byte, seconds uint64) error {
	prev, err := z.LockTime()
	if err != nil {
		return err
	}
	if caller != z.admin {
		return fmt.Errorf("zap: set lock time: %w", common.ErrUnauthorized)
	}
	if err := z.state.KVPut(lockTimeKey, seconds); err != nil {
		return err
	}
	z.emit(LockTimeUpdatedEvent(prev, seconds))
	return nil
}

// LiquidityOutcome summarises a staking zap.
type LiquidityOutcome struct {
	Shares      *big.Int
	BaseUsed    *big.Int
	Refunded    *big.Int
	Liquidity   *big.Int
	LockedUntil uint64
}

// AddLiquidity mints shares for the caller's assets, adds them to the pool
// with up to baseMax of the base token (at least minBaseIn) and stakes the
// LP for `to`. Unused base is refunded.
func (z *StakingZap) AddLiquidity(caller [20]byte, vaultID uint64, ids, amounts []*big.Int, baseMax, minBaseIn *big.Int, to [20]byte) (*LiquidityOutcome, error) {
	if z.state == nil {
		return nil, errNilState
	}
	if z.vaults == nil {
		return nil, errNilVaults
	}
	if z.router == nil {
		return nil, errNilRouter
	}
	if z.stakers == nil {
		return nil, errNilStakers
	}
	release, err := z.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("zap: add liquidity: %w", err)
	}
	defer release()
	if len(ids) == 0 {
		return nil, errEmptyIDs
	}
	if baseMax == nil || baseMax.Sign() <= 0 {
		return nil, errMaxBaseIn
	}
	v, err := z.vaults.Vault(vaultID)
	if err != nil {
		return nil, err
	}
	pool, err := z.stakers.Pool(vaultID)
	if err != nil {
		return nil, err
	}
	if pool.StakingToken != common.PairSymbol(v.Symbol, z.baseToken) {
		return nil, fmt.Errorf("%w: %s", errStakingTokenLP, pool.StakingToken)
	}
	lock, err := z.LockTime()
	if err != nil {
		return nil, err
	}

	if err := checkRecipient(StakingAccount, to); err != nil {
		return nil, err
	}
	l := newLedger(z.state, StakingAccount)
	if err := l.token(v.Symbol, z.baseToken, pool.StakingToken); err != nil {
		return nil, err
	}
	if err := l.asset(v.AssetClass, ids...); err != nil {
		return nil, err
	}

	if err := pullAssets(z.state, v.AssetClass, caller, StakingAccount, ids, amounts); err != nil {
		return nil, err
	}
	minted, err := z.vaults.Mint(StakingAccount, vaultID, ids, amounts)
	if err != nil {
		return nil, err
	}
	if err := z.state.Transfer(z.baseToken, caller, StakingAccount, baseMax); err != nil {
		return nil, err
	}
	_, baseUsed, liquidity, err := z.router.AddLiquidity(StakingAccount, v.Symbol, z.baseToken, minted.Shares, baseMax, minted.Shares, minBaseIn, StakingAccount)
	if err != nil {
		return nil, err
	}
	lockedUntil := uint64(z.nowFn().Unix()) + lock
	if _, err := z.stakers.StakeFor(StakingAccount, to, vaultID, liquidity, lockedUntil); err != nil {
		return nil, err
	}
	refunded, err := l.refund(z.baseToken, caller)
	if err != nil {
		return nil, err
	}
	if err := l.verify(); err != nil {
		return nil, err
	}
	outcome := &LiquidityOutcome{Shares: minted.Shares, BaseUsed: baseUsed, Refunded: refunded, Liquidity: liquidity, LockedUntil: lockedUntil}
	z.emit(LiquidityZappedEvent(vaultID, caller, to, outcome))
	return outcome, nil
}
