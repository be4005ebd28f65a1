package amm

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
	errNilState       = errors.New("amm engine: state not configured")
	errIdenticalToken = errors.New("amm engine: identical tokens")
	errInvalidPath    = errors.New("amm engine: path requires at least two tokens")
	errPairNotFound   = errors.New("amm engine: pair not found")
)

const pairPrefix = "amm/pair/"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(token string, addr [20]byte) (*big.Int, error)
	TotalSupply(token string) (*big.Int, error)
	Mint(token string, to [20]byte, amount *big.Int) error
	Burn(token string, from [20]byte, amount *big.Int) error
	Transfer(token string, from, to [20]byte, amount *big.Int) error
}

// Pair is a constant-product pool. Token0 sorts before Token1.
type Pair struct {
	Token0   string
	Token1   string
	Reserve0 *big.Int
	Reserve1 *big.Int
	Account  [20]byte
	LPToken  string
}

func (p *Pair) normalize() {
	p.Reserve0 = common.Clone(p.Reserve0)
	p.Reserve1 = common.Clone(p.Reserve1)
}

// reservesFor returns the reserves ordered as (in, out) for tokenIn.
func (p *Pair) reservesFor(tokenIn string) (*big.Int, *big.Int) {
	if tokenIn == p.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

// Engine is a Uniswap-V2 style pool and router over fungible ledger tokens.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine constructs an AMM engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
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

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func sortTokens(a, b string) (string, string, error) {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == b {
		return "", "", errIdenticalToken
	}
	if b < a {
		a, b = b, a
	}
	return a, b, nil
}

func pairKey(token0, token1 string) []byte {
	return []byte(pairPrefix + token0 + "/" + token1)
}

// PairFor returns the pair of two tokens in either order.
func (e *Engine) PairFor(tokenA, tokenB string) (*Pair, bool, error) {
	if e.state == nil {
		return nil, false, errNilState
	}
	t0, t1, err := sortTokens(tokenA, tokenB)
	if err != nil {
		return nil, false, err
	}
	var p Pair
	ok, err := e.state.KVGet(pairKey(t0, t1), &p)
	if err != nil || !ok {
		return nil, false, err
	}
	p.normalize()
	return &p, true, nil
}

func (e *Engine) mustPair(tokenA, tokenB string) (*Pair, error) {
	p, ok, err := e.PairFor(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", errPairNotFound, tokenA, tokenB)
	}
	return p, nil
}

func (e *Engine) putPair(p *Pair) error {
	return e.state.KVPut(pairKey(p.Token0, p.Token1), p)
}

// Reserves returns the reserves of the pair ordered as (tokenA, tokenB).
func (e *Engine) Reserves(tokenA, tokenB string) (*big.Int, *big.Int, error) {
	p, err := e.mustPair(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	in, out := p.reservesFor(strings.ToUpper(strings.TrimSpace(tokenA)))
	return new(big.Int).Set(in), new(big.Int).Set(out), nil
}

// AddLiquidity deposits up to the desired amounts at the pool ratio and
// mints LP tokens to the recipient. The first deposit sets the ratio and
// locks MinimumLiquidity.
func (e *Engine) AddLiquidity(caller [20]byte, tokenA, tokenB string, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int, to [20]byte) (*big.Int, *big.Int, *big.Int, error) {
	if e.state == nil {
		return nil, nil, nil, errNilState
	}
	t0, t1, err := sortTokens(tokenA, tokenB)
	if err != nil {
		return nil, nil, nil, err
	}
	p, ok, err := e.PairFor(t0, t1)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		p = &Pair{Token0: t0, Token1: t1, LPToken: common.PairSymbol(t0, t1)}
		p.Account = crypto.ModuleAddress("amm:" + p.LPToken)
		p.normalize()
	}
	tokenA = strings.ToUpper(strings.TrimSpace(tokenA))
	reserveA, reserveB := p.reservesFor(tokenA)

	amountA, amountB := common.Clone(amountADesired), common.Clone(amountBDesired)
	if reserveA.Sign() > 0 || reserveB.Sign() > 0 {
		optimalB, err := quote(amountADesired, reserveA, reserveB)
		if err != nil {
			return nil, nil, nil, err
		}
		if optimalB.Cmp(amountBDesired) <= 0 {
			if amountBMin != nil && optimalB.Cmp(amountBMin) < 0 {
				return nil, nil, nil, fmt.Errorf("amm: token B %s below minimum %s: %w", optimalB, amountBMin, common.ErrSlippageExceeded)
			}
			amountB = optimalB
		} else {
			optimalA, err := quote(amountBDesired, reserveB, reserveA)
			if err != nil {
				return nil, nil, nil, err
			}
			if amountAMin != nil && optimalA.Cmp(amountAMin) < 0 {
				return nil, nil, nil, fmt.Errorf("amm: token A %s below minimum %s: %w", optimalA, amountAMin, common.ErrSlippageExceeded)
			}
			amountA = optimalA
		}
	}
	if amountA.Sign() <= 0 || amountB.Sign() <= 0 {
		return nil, nil, nil, errInsufficientInput
	}

	supply, err := e.state.TotalSupply(p.LPToken)
	if err != nil {
		return nil, nil, nil, err
	}
	var liquidity *big.Int
	if supply.Sign() == 0 {
		liquidity = new(big.Int).Sqrt(new(big.Int).Mul(amountA, amountB))
		liquidity.Sub(liquidity, MinimumLiquidity)
		if liquidity.Sign() <= 0 {
			return nil, nil, nil, errInsufficientLiquidity
		}
		if err := e.state.Mint(p.LPToken, [20]byte{}, MinimumLiquidity); err != nil {
			return nil, nil, nil, err
		}
	} else {
		byA := new(big.Int).Mul(amountA, supply)
		byA.Quo(byA, reserveA)
		byB := new(big.Int).Mul(amountB, supply)
		byB.Quo(byB, reserveB)
		liquidity = minBig(byA, byB)
		if liquidity.Sign() <= 0 {
			return nil, nil, nil, errInsufficientLiquidity
		}
	}
	if err := e.state.Transfer(tokenA, caller, p.Account, amountA); err != nil {
		return nil, nil, nil, err
	}
	tokenB = strings.ToUpper(strings.TrimSpace(tokenB))
	if err := e.state.Transfer(tokenB, caller, p.Account, amountB); err != nil {
		return nil, nil, nil, err
	}
	if err := e.state.Mint(p.LPToken, to, liquidity); err != nil {
		return nil, nil, nil, err
	}
	if tokenA == p.Token0 {
		p.Reserve0.Add(p.Reserve0, amountA)
		p.Reserve1.Add(p.Reserve1, amountB)
	} else {
		p.Reserve0.Add(p.Reserve0, amountB)
		p.Reserve1.Add(p.Reserve1, amountA)
	}
	if err := e.putPair(p); err != nil {
		return nil, nil, nil, err
	}
	e.emit(LiquidityAddedEvent(p, to, liquidity))
	return amountA, amountB, liquidity, nil
}

// RemoveLiquidity burns LP tokens and returns the pro-rata reserves.
func (e *Engine) RemoveLiquidity(caller [20]byte, tokenA, tokenB string, liquidity, amountAMin, amountBMin *big.Int, to [20]byte) (*big.Int, *big.Int, error) {
	p, err := e.mustPair(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, nil, errInsufficientLiquidity
	}
	supply, err := e.state.TotalSupply(p.LPToken)
	if err != nil {
		return nil, nil, err
	}
	amount0 := new(big.Int).Mul(liquidity, p.Reserve0)
	amount0.Quo(amount0, supply)
	amount1 := new(big.Int).Mul(liquidity, p.Reserve1)
	amount1.Quo(amount1, supply)
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		return nil, nil, errInsufficientLiquidity
	}
	tokenA = strings.ToUpper(strings.TrimSpace(tokenA))
	amountA, amountB := amount0, amount1
	if tokenA != p.Token0 {
		amountA, amountB = amount1, amount0
	}
	if (amountAMin != nil && amountA.Cmp(amountAMin) < 0) || (amountBMin != nil && amountB.Cmp(amountBMin) < 0) {
		return nil, nil, fmt.Errorf("amm: remove liquidity: %w", common.ErrSlippageExceeded)
	}
	if err := e.state.Burn(p.LPToken, caller, liquidity); err != nil {
		return nil, nil, err
	}
	if err := e.state.Transfer(p.Token0, p.Account, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := e.state.Transfer(p.Token1, p.Account, to, amount1); err != nil {
		return nil, nil, err
	}
	p.Reserve0.Sub(p.Reserve0, amount0)
	p.Reserve1.Sub(p.Reserve1, amount1)
	if err := e.putPair(p); err != nil {
		return nil, nil, err
	}
	e.emit(LiquidityRemovedEvent(p, to, liquidity))
	return amountA, amountB, nil
}

// GetAmountsOut chains GetAmountOut along path.
func (e *Engine) GetAmountsOut(amountIn *big.Int, path []string) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, errInvalidPath
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = common.Clone(amountIn)
	for i := 0; i < len(path)-1; i++ {
		p, err := e.mustPair(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		in, out := p.reservesFor(strings.ToUpper(strings.TrimSpace(path[i])))
		amounts[i+1], err = GetAmountOut(amounts[i], in, out)
		if err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// GetAmountsIn chains GetAmountIn backwards along path.
func (e *Engine) GetAmountsIn(amountOut *big.Int, path []string) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, errInvalidPath
	}
	amounts := make([]*big.Int, len(path))
	amounts[len(amounts)-1] = common.Clone(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		p, err := e.mustPair(path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		in, out := p.reservesFor(strings.ToUpper(strings.TrimSpace(path[i-1])))
		amounts[i-1], err = GetAmountIn(amounts[i], in, out)
		if err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// SwapExactTokensForTokens sells exactly amountIn of path[0] for at least
// amountOutMin of the last token.
func (e *Engine) SwapExactTokensForTokens(caller [20]byte, amountIn, amountOutMin *big.Int, path []string, to [20]byte) ([]*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	amounts, err := e.GetAmountsOut(amountIn, path)
	if err != nil {
		return nil, err
	}
	if last := amounts[len(amounts)-1]; amountOutMin != nil && last.Cmp(amountOutMin) < 0 {
		return nil, fmt.Errorf("amm: output %s below minimum %s: %w", last, amountOutMin, common.ErrSlippageExceeded)
	}
	if err := e.execute(caller, amounts, path, to); err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapTokensForExactTokens buys exactly amountOut of the last token spending
// at most amountInMax of path[0].
func (e *Engine) SwapTokensForExactTokens(caller [20]byte, amountOut, amountInMax *big.Int, path []string, to [20]byte) ([]*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	amounts, err := e.GetAmountsIn(amountOut, path)
	if err != nil {
		return nil, err
	}
	if amountInMax != nil && amounts[0].Cmp(amountInMax) > 0 {
		return nil, fmt.Errorf("amm: input %s above maximum %s: %w", amounts[0], amountInMax, common.ErrSlippageExceeded)
	}
	if err := e.execute(caller, amounts, path, to); err != nil {
		return nil, err
	}
	return amounts, nil
}

func (e *Engine) execute(caller [20]byte, amounts []*big.Int, path []string, to [20]byte) error {
	from := caller
	for i := 0; i < len(path)-1; i++ {
		p, err := e.mustPair(path[i], path[i+1])
		if err != nil {
			return err
		}
		tokenIn := strings.ToUpper(strings.TrimSpace(path[i]))
		tokenOut := strings.ToUpper(strings.TrimSpace(path[i+1]))
		if err := e.state.Transfer(tokenIn, from, p.Account, amounts[i]); err != nil {
			return err
		}
		recipient := to
		if i < len(path)-2 {
			next, err := e.mustPair(path[i+1], path[i+2])
			if err != nil {
				return err
			}
			recipient = next.Account
		}
		if err := e.state.Transfer(tokenOut, p.Account, recipient, amounts[i+1]); err != nil {
			return err
		}
		if tokenIn == p.Token0 {
			p.Reserve0.Add(p.Reserve0, amounts[i])
			p.Reserve1.Sub(p.Reserve1, amounts[i+1])
		} else {
			p.Reserve1.Add(p.Reserve1, amounts[i])
			p.Reserve0.Sub(p.Reserve0, amounts[i+1])
		}
		if err := e.putPair(p); err != nil {
			return err
		}
		e.emit(SwapEvent(p, caller, tokenIn, amounts[i], amounts[i+1], recipient))
		// The next hop pulls from this hop's output holder.
		from = recipient
	}
	return nil
}
