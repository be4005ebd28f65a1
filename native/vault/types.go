package vault

import "math/big"

// Features toggles the operations a vault accepts.
type Features struct {
	Mint         bool
	RandomRedeem bool
	TargetRedeem bool
	RandomSwap   bool
	TargetSwap   bool
}

// AllFeatures enables every operation.
func AllFeatures() Features {
	return Features{Mint: true, RandomRedeem: true, TargetRedeem: true, RandomSwap: true, TargetSwap: true}
}

// Fees is the per-vault fee schedule, each a fraction of one share.
type Fees struct {
	Mint         *big.Int
	RandomRedeem *big.Int
	TargetRedeem *big.Int
	RandomSwap   *big.Int
	TargetSwap   *big.Int
}

// Clone returns a deep copy of the schedule with nil fields mapped to zero.
func (f Fees) Clone() Fees {
	return Fees{
		Mint:         cloneBig(f.Mint),
		RandomRedeem: cloneBig(f.RandomRedeem),
		TargetRedeem: cloneBig(f.TargetRedeem),
		RandomSwap:   cloneBig(f.RandomSwap),
		TargetSwap:   cloneBig(f.TargetSwap),
	}
}

func (f Fees) fields() []*big.Int {
	return []*big.Int{f.Mint, f.RandomRedeem, f.TargetRedeem, f.RandomSwap, f.TargetSwap}
}

// Vault owns one asset class and issues fungible shares against it.
type Vault struct {
	ID         uint64
	Name       string
	Symbol     string
	AssetClass string
	Is1155     bool
	AllowAll   bool
	Manager    [20]byte
	Finalized  bool
	Account    [20]byte
	Features   Features
	Fees       Fees
	RandNonce  uint64
	CreatedAt  uint64
}

// Clone returns a deep copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Fees = v.Fees.Clone()
	return &clone
}

// ShareToken returns the fungible symbol of the vault's shares.
func (v *Vault) ShareToken() string { return v.Symbol }

// Holding is one custodied asset id; Amount is 1 for single-unit collections.
type Holding struct {
	ID     *big.Int
	Amount *big.Int
}

// CreateParams carries the factory's creation inputs.
type CreateParams struct {
	ID         uint64
	Name       string
	Symbol     string
	AssetClass string
	AllowAll   bool
	Is1155     bool
	Manager    [20]byte
	Fees       Fees
	Features   Features
}

// MintResult summarises a mint.
type MintResult struct {
	Count  *big.Int
	Shares *big.Int
	Fee    *big.Int
}

// RedeemResult summarises a redeem or the out-leg of a swap.
type RedeemResult struct {
	IDs []*big.Int
	Fee *big.Int
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
