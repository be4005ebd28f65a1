package staking

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/common"
)

var (
	errNilState       = errors.New("staking engine: state not configured")
	errNilProvider    = errors.New("staking engine: token provider not configured")
	errPoolExists     = errors.New("staking engine: pool already exists")
	errPositionLocked = errors.New("staking engine: position locked")
)

var (
	poolPrefix     = "staking/pool/"
	positionPrefix = "staking/position/"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Transfer(token string, from, to [20]byte, amount *big.Int) error
}

// Engine pays vault fee rewards to LP stakers pro rata via a ray-scaled
// accumulator. Rewards accrued while nothing is staked are held as pending
// and folded in by the next stake.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	provider    *TokenProvider
	admin       [20]byte
	factory     [20]byte
	distributor [20]byte
	zap         [20]byte
	nowFn       func() time.Time
}

// NewEngine constructs a staking engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetProvider wires the staking token provider.
func (e *Engine) SetProvider(provider *TokenProvider) { e.provider = provider }

// SetAdmin configures the governance identity.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetFactory configures the identity allowed to add pools besides the admin.
func (e *Engine) SetFactory(addr [20]byte) { e.factory = addr }

// SetDistributor configures the only identity allowed to accrue rewards.
func (e *Engine) SetDistributor(addr [20]byte) { e.distributor = addr }

// SetZap configures the identity allowed to stake on behalf of others.
func (e *Engine) SetZap(addr [20]byte) { e.zap = addr }

// SetNowFunc overrides the clock used for locks.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func poolKey(vaultID uint64) []byte {
	return []byte(poolPrefix + strconv.FormatUint(vaultID, 10))
}

func positionKey(vaultID uint64, addr [20]byte) []byte {
	return []byte(positionPrefix + strconv.FormatUint(vaultID, 10) + "/" + string(addr[:]))
}

// PoolAccountFor returns the custody account of a vault's staking pool.
func PoolAccountFor(vaultID uint64) [20]byte {
	return crypto.ModuleAddress("staking:" + strconv.FormatUint(vaultID, 10))
}

func (e *Engine) loadPool(vaultID uint64) (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var p Pool
	ok, err := e.state.KVGet(poolKey(vaultID), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("staking: pool %d: %w", vaultID, common.ErrUnknownVault)
	}
	return p.Clone(), nil
}

func (e *Engine) putPool(p *Pool) error {
	return e.state.KVPut(poolKey(p.VaultID), p)
}

func (e *Engine) loadPosition(vaultID uint64, addr [20]byte) (*Position, error) {
	var pos Position
	if _, err := e.state.KVGet(positionKey(vaultID, addr), &pos); err != nil {
		return nil, err
	}
	pos.normalize()
	return &pos, nil
}

func (e *Engine) putPosition(vaultID uint64, addr [20]byte, pos *Position) error {
	if pos.Amount.Sign() == 0 && pos.RewardDebt.Sign() == 0 && pos.LockedUntil == 0 {
		return e.state.KVDelete(positionKey(vaultID, addr))
	}
	return e.state.KVPut(positionKey(vaultID, addr), pos)
}

// Pool returns a copy of the vault's pool.
func (e *Engine) Pool(vaultID uint64) (*Pool, error) {
	return e.loadPool(vaultID)
}

// PoolAccount reports the custody account of a vault's pool when one exists.
func (e *Engine) PoolAccount(vaultID uint64) ([20]byte, bool, error) {
	p, err := e.loadPool(vaultID)
	if errors.Is(err, common.ErrUnknownVault) {
		return [20]byte{}, false, nil
	}
	if err != nil {
		return [20]byte{}, false, err
	}
	return p.Account, true, nil
}

// Position returns the staker's position, zero-valued when absent.
func (e *Engine) Position(vaultID uint64, addr [20]byte) (*Position, error) {
	if _, err := e.loadPool(vaultID); err != nil {
		return nil, err
	}
	return e.loadPosition(vaultID, addr)
}

// PendingRewards returns the rewards addr could claim now.
func (e *Engine) PendingRewards(vaultID uint64, addr [20]byte) (*big.Int, error) {
	p, err := e.loadPool(vaultID)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(vaultID, addr)
	if err != nil {
		return nil, err
	}
	return pos.owed(p.AccRewardPerShare), nil
}

// AddPool creates the staking pool of a vault paying rewardToken.
func (e *Engine) AddPool(caller [20]byte, vaultID uint64, rewardToken string) (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if caller != e.factory && caller != e.admin {
		return nil, fmt.Errorf("staking: add pool: %w", common.ErrUnauthorized)
	}
	if e.provider == nil {
		return nil, errNilProvider
	}
	if ok, err := e.state.KVGet(poolKey(vaultID), nil); err != nil {
		return nil, err
	} else if ok {
		return nil, errPoolExists
	}
	stakingToken, err := e.provider.StakingTokenFor(rewardToken)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		VaultID:      vaultID,
		RewardToken:  rewardToken,
		StakingToken: stakingToken,
		Account:      PoolAccountFor(vaultID),
	}
	p = p.Clone()
	if err := e.putPool(p); err != nil {
		return nil, err
	}
	e.emit(PoolAddedEvent(p))
	return p.Clone(), nil
}

// Accrue credits amount of reward tokens, already transferred to the pool
// account, to the pool's stakers. Only the distributor may accrue.
func (e *Engine) Accrue(caller [20]byte, vaultID uint64, amount *big.Int) error {
	if caller != e.distributor {
		return fmt.Errorf("staking: accrue: %w", common.ErrUnauthorized)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("staking: %w: accrue amount must be positive", common.ErrInvalidAmount)
	}
	p, err := e.loadPool(vaultID)
	if err != nil {
		return err
	}
	p.Forwarded.Add(p.Forwarded, amount)
	p.Pending.Add(p.Pending, amount)
	p.release()
	if err := e.putPool(p); err != nil {
		return err
	}
	e.emit(AccruedEvent(p, amount))
	return nil
}

// settle pays out owed rewards to addr and returns the amount paid.
func (e *Engine) settle(p *Pool, addr [20]byte, pos *Position) (*big.Int, error) {
	owed := pos.owed(p.AccRewardPerShare)
	if owed.Sign() == 0 {
		return owed, nil
	}
	if err := e.state.Transfer(p.RewardToken, p.Account, addr, owed); err != nil {
		return nil, err
	}
	p.Claimed.Add(p.Claimed, owed)
	return owed, nil
}

func (e *Engine) deposit(funder, beneficiary [20]byte, vaultID uint64, amount *big.Int, lockUntil uint64) (*Position, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("staking: %w: stake amount must be positive", common.ErrInvalidAmount)
	}
	p, err := e.loadPool(vaultID)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(vaultID, beneficiary)
	if err != nil {
		return nil, err
	}
	paid, err := e.settle(p, beneficiary, pos)
	if err != nil {
		return nil, err
	}
	if err := e.state.Transfer(p.StakingToken, funder, p.Account, amount); err != nil {
		return nil, err
	}
	pos.Amount.Add(pos.Amount, amount)
	p.TotalStaked.Add(p.TotalStaked, amount)
	pos.RewardDebt = rayMulDown(pos.Amount, p.AccRewardPerShare)
	// Rewards held while the pool was empty go to the stake now present.
	p.release()
	if lockUntil > pos.LockedUntil {
		pos.LockedUntil = lockUntil
	}
	if err := e.putPool(p); err != nil {
		return nil, err
	}
	if err := e.putPosition(vaultID, beneficiary, pos); err != nil {
		return nil, err
	}
	if paid.Sign() > 0 {
		e.emit(ClaimedEvent(vaultID, beneficiary, paid))
	}
	e.emit(StakedEvent(vaultID, funder, beneficiary, amount, pos.LockedUntil))
	return pos, nil
}

// Stake deposits amount of the pool's LP token for caller.
func (e *Engine) Stake(caller [20]byte, vaultID uint64, amount *big.Int) (*Position, error) {
	return e.deposit(caller, caller, vaultID, amount, 0)
}

// StakeFor deposits caller's LP tokens on behalf of beneficiary with a lock.
// Only the staking zap may call it.
func (e *Engine) StakeFor(caller, beneficiary [20]byte, vaultID uint64, amount *big.Int, lockUntil uint64) (*Position, error) {
	if caller != e.zap || e.zap == ([20]byte{}) {
		return nil, fmt.Errorf("staking: stake for: %w", common.ErrUnauthorized)
	}
	return e.deposit(caller, beneficiary, vaultID, amount, lockUntil)
}

// Claim pays out caller's accrued rewards.
func (e *Engine) Claim(caller [20]byte, vaultID uint64) (*big.Int, error) {
	p, err := e.loadPool(vaultID)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(vaultID, caller)
	if err != nil {
		return nil, err
	}
	paid, err := e.settle(p, caller, pos)
	if err != nil {
		return nil, err
	}
	if paid.Sign() == 0 {
		return paid, nil
	}
	pos.RewardDebt = rayMulDown(pos.Amount, p.AccRewardPerShare)
	if err := e.putPool(p); err != nil {
		return nil, err
	}
	if err := e.putPosition(vaultID, caller, pos); err != nil {
		return nil, err
	}
	e.emit(ClaimedEvent(vaultID, caller, paid))
	return paid, nil
}

// Unstake withdraws amount of LP tokens after paying out rewards.
func (e *Engine) Unstake(caller [20]byte, vaultID uint64, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("staking: %w: unstake amount must be positive", common.ErrInvalidAmount)
	}
	p, err := e.loadPool(vaultID)
	if err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(vaultID, caller)
	if err != nil {
		return nil, err
	}
	if pos.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("staking: unstake %s of %s: %w", amount, pos.Amount, common.ErrInsufficientBalance)
	}
	if now := uint64(e.nowFn().Unix()); now < pos.LockedUntil {
		return nil, fmt.Errorf("%w until %d", errPositionLocked, pos.LockedUntil)
	}
	paid, err := e.settle(p, caller, pos)
	if err != nil {
		return nil, err
	}
	if err := e.state.Transfer(p.StakingToken, p.Account, caller, amount); err != nil {
		return nil, err
	}
	pos.Amount.Sub(pos.Amount, amount)
	p.TotalStaked.Sub(p.TotalStaked, amount)
	pos.RewardDebt = rayMulDown(pos.Amount, p.AccRewardPerShare)
	if pos.Amount.Sign() == 0 {
		pos.LockedUntil = 0
	}
	if err := e.putPool(p); err != nil {
		return nil, err
	}
	if err := e.putPosition(vaultID, caller, pos); err != nil {
		return nil, err
	}
	if paid.Sign() > 0 {
		e.emit(ClaimedEvent(vaultID, caller, paid))
	}
	e.emit(UnstakedEvent(vaultID, caller, amount))
	return paid, nil
}
