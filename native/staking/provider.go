package staking

import (
	"fmt"
	"strings"

	"vaultchain/core/events"
	"vaultchain/native/common"
)

var (
	providerDefaultKey     = []byte("staking/provider/default")
	providerOverridePrefix = "staking/provider/override/"
)

// TokenProvider names the LP token a vault's pool stakes: the pair of the
// vault share with its paired token (the base token unless overridden).
type TokenProvider struct {
	state   engineState
	admin   [20]byte
	base    string
	emitter events.Emitter
}

// NewTokenProvider constructs a provider pairing shares with baseToken.
func NewTokenProvider(baseToken string) *TokenProvider {
	return &TokenProvider{base: strings.ToUpper(strings.TrimSpace(baseToken)), emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the provider.
func (p *TokenProvider) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetState configures the state backend used by the provider.
func (p *TokenProvider) SetState(state engineState) { p.state = state }

// SetAdmin configures the identity allowed to change pairings.
func (p *TokenProvider) SetAdmin(admin [20]byte) { p.admin = admin }

func (p *TokenProvider) defaultPaired() (string, error) {
	if p.state == nil {
		return p.base, nil
	}
	var token string
	ok, err := p.state.KVGet(providerDefaultKey, &token)
	if err != nil {
		return "", err
	}
	if !ok {
		return p.base, nil
	}
	return token, nil
}

// PairedToken returns the token vaultToken is paired with.
func (p *TokenProvider) PairedToken(vaultToken string) (string, error) {
	if p.state != nil {
		var token string
		ok, err := p.state.KVGet([]byte(providerOverridePrefix+strings.ToUpper(vaultToken)), &token)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
	}
	return p.defaultPaired()
}

// StakingTokenFor returns the LP symbol staked in vaultToken's pool.
func (p *TokenProvider) StakingTokenFor(vaultToken string) (string, error) {
	paired, err := p.PairedToken(vaultToken)
	if err != nil {
		return "", err
	}
	if paired == "" {
		return "", fmt.Errorf("staking: %w: no paired token", common.ErrConfigInvariantViolated)
	}
	return common.PairSymbol(vaultToken, paired), nil
}

// SetDefaultPairedToken changes the paired token for vaults without an override.
func (p *TokenProvider) SetDefaultPairedToken(caller [20]byte, token string) error {
	if p.state == nil {
		return errNilState
	}
	if caller != p.admin {
		return fmt.Errorf("staking: set paired token: %w", common.ErrUnauthorized)
	}
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return fmt.Errorf("staking: %w: paired token required", common.ErrConfigInvariantViolated)
	}
	prev, err := p.defaultPaired()
	if err != nil {
		return err
	}
	if err := p.state.KVPut(providerDefaultKey, token); err != nil {
		return err
	}
	p.emitter.Emit(events.Wrap(PairedTokenUpdatedEvent("", prev, token)))
	return nil
}

// SetPairedTokenOverride pairs one vault token with a different token.
func (p *TokenProvider) SetPairedTokenOverride(caller [20]byte, vaultToken, token string) error {
	if p.state == nil {
		return errNilState
	}
	if caller != p.admin {
		return fmt.Errorf("staking: set paired override: %w", common.ErrUnauthorized)
	}
	vaultToken = strings.ToUpper(strings.TrimSpace(vaultToken))
	token = strings.ToUpper(strings.TrimSpace(token))
	if vaultToken == "" || token == "" || vaultToken == token {
		return fmt.Errorf("staking: %w: invalid paired override", common.ErrConfigInvariantViolated)
	}
	prev, err := p.PairedToken(vaultToken)
	if err != nil {
		return err
	}
	if err := p.state.KVPut([]byte(providerOverridePrefix+vaultToken), token); err != nil {
		return err
	}
	p.emitter.Emit(events.Wrap(PairedTokenUpdatedEvent(vaultToken, prev, token)))
	return nil
}
