package config

import (
	"fmt"
	"math/big"
	"strings"

	"vaultchain/crypto"
	"vaultchain/native/common"
)

// Parse converts the default fee schedule into 18-decimal amounts.
func (f DefaultFees) Parse() (mint, randomRedeem, targetRedeem, randomSwap, targetSwap *big.Int, err error) {
	out := make([]*big.Int, 5)
	for i, raw := range []struct{ name, value string }{
		{"Mint", f.Mint},
		{"RandomRedeem", f.RandomRedeem},
		{"TargetRedeem", f.TargetRedeem},
		{"RandomSwap", f.RandomSwap},
		{"TargetSwap", f.TargetSwap},
	} {
		v, ok := common.ParseDecimal(raw.value)
		if !ok {
			return nil, nil, nil, nil, nil, fmt.Errorf("default_fees.%s: invalid decimal %q", raw.name, raw.value)
		}
		out[i] = v
	}
	return out[0], out[1], out[2], out[3], out[4], nil
}

// AdminAddress decodes the configured admin.
func (c *Config) AdminAddress() ([20]byte, error) {
	return crypto.ParseAddress(c.Admin)
}

// TreasuryAddress decodes the configured treasury.
func (c *Config) TreasuryAddress() ([20]byte, error) {
	return crypto.ParseAddress(c.Treasury)
}

const minAdminSecret = 32

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if err := c.FeeSplit.Validate(); err != nil {
		return fmt.Errorf("fee_split: %w", err)
	}
	mint, rr, tr, rs, ts, err := c.DefaultFees.Parse()
	if err != nil {
		return err
	}
	for _, fee := range []*big.Int{mint, rr, tr, rs, ts} {
		if fee.Cmp(common.FeeCeiling) > 0 {
			return fmt.Errorf("default_fees: %s exceeds ceiling %s", common.FormatDecimal(fee), common.FormatDecimal(common.FeeCeiling))
		}
	}
	if _, err := c.AdminAddress(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if _, err := c.TreasuryAddress(); err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	if c.BaseToken == "" {
		return fmt.Errorf("base_token: required")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.Archive.Enabled() {
		switch strings.ToLower(strings.TrimSpace(c.Archive.Driver)) {
		case "", "sqlite", "postgres":
		default:
			return fmt.Errorf("archive: unsupported driver %q", c.Archive.Driver)
		}
	}
	if c.AdminAuth.Enabled() && len(strings.TrimSpace(c.AdminAuth.Secret)) < minAdminSecret {
		return fmt.Errorf("admin_auth: secret must be at least %d bytes", minAdminSecret)
	}
	return nil
}
