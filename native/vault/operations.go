package vault

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultchain/native/common"
)

var one = big.NewInt(1)

// normalizeUnits validates ids and amounts for the vault's collection kind and
// returns per-id units and their total.
func normalizeUnits(v *Vault, ids, amounts []*big.Int) ([]*big.Int, *big.Int, error) {
	if len(ids) == 0 {
		return nil, nil, errEmptyIDs
	}
	units := make([]*big.Int, len(ids))
	total := big.NewInt(0)
	if v.Is1155 {
		if len(amounts) != len(ids) {
			return nil, nil, errAmountsLength
		}
	} else if len(amounts) != 0 && len(amounts) != len(ids) {
		return nil, nil, errAmountsLength
	}
	for i, id := range ids {
		if id == nil || id.Sign() < 0 {
			return nil, nil, fmt.Errorf("vault: %w: asset id must be non-negative", common.ErrInvalidAmount)
		}
		amount := one
		if len(amounts) > 0 {
			amount = amounts[i]
		}
		if amount == nil || amount.Sign() <= 0 {
			return nil, nil, fmt.Errorf("vault: %w: amount for id %s must be positive", common.ErrInvalidAmount, id)
		}
		if !v.Is1155 && amount.Cmp(one) != 0 {
			return nil, nil, fmt.Errorf("vault: %w: single-unit collection requires amount 1", common.ErrInvalidAmount)
		}
		units[i] = new(big.Int).Set(amount)
		total.Add(total, amount)
	}
	return units, total, nil
}

func (e *Engine) checkEligible(v *Vault, ids []*big.Int) error {
	if v.AllowAll || e.eligibility == nil {
		return nil
	}
	ok, err := e.eligibility.CheckAllEligible(v.ID, v.AssetClass, ids)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("vault %d: %w", v.ID, common.ErrIneligibleAsset)
	}
	return nil
}

func (e *Engine) excluded(caller [20]byte) (bool, error) {
	if e.exclusions == nil {
		return false, nil
	}
	return e.exclusions.IsExcludedFromFees(caller)
}

// quoteFee returns target*targeted + random*(count-targeted).
func quoteFee(target, random *big.Int, targeted, count *big.Int) *big.Int {
	fee := new(big.Int).Mul(common.Clone(target), targeted)
	rest := new(big.Int).Sub(count, targeted)
	return fee.Add(fee, new(big.Int).Mul(common.Clone(random), rest))
}

func addHolding(holdings []Holding, id, amount *big.Int) []Holding {
	for i := range holdings {
		if holdings[i].ID.Cmp(id) == 0 {
			holdings[i].Amount = new(big.Int).Add(holdings[i].Amount, amount)
			return holdings
		}
	}
	return append(holdings, Holding{ID: new(big.Int).Set(id), Amount: new(big.Int).Set(amount)})
}

// takeUnit removes one unit at idx, swap-removing exhausted entries.
func takeUnit(holdings []Holding, idx int) ([]Holding, *big.Int) {
	id := new(big.Int).Set(holdings[idx].ID)
	remaining := new(big.Int).Sub(holdings[idx].Amount, one)
	if remaining.Sign() > 0 {
		holdings[idx].Amount = remaining
		return holdings, id
	}
	last := len(holdings) - 1
	holdings[idx] = holdings[last]
	return holdings[:last], id
}

func indexOf(holdings []Holding, id *big.Int) int {
	for i := range holdings {
		if holdings[i].ID.Cmp(id) == 0 {
			return i
		}
	}
	return -1
}

func copyHoldings(holdings []Holding) []Holding {
	out := make([]Holding, len(holdings))
	for i, h := range holdings {
		out[i] = Holding{ID: new(big.Int).Set(h.ID), Amount: new(big.Int).Set(h.Amount)}
	}
	return out
}

// drawIndex selects a holding index from keccak(entropy, caller, nonce).
func drawIndex(entropy [32]byte, caller [20]byte, nonce uint64, size int) int {
	var nonceBytes [8]byte
	for i := 0; i < 8; i++ {
		nonceBytes[7-i] = byte(nonce >> (8 * i))
	}
	seed := new(big.Int).SetBytes(ethcrypto.Keccak256(entropy[:], caller[:], nonceBytes[:]))
	return int(seed.Mod(seed, big.NewInt(int64(size))).Int64())
}

// selectOut picks specific ids first, then count-len(specific) random units.
// holdings is modified in place; v.RandNonce advances per random draw.
func (e *Engine) selectOut(v *Vault, caller [20]byte, holdings []Holding, specific []*big.Int, random uint64) ([]Holding, []*big.Int, error) {
	out := make([]*big.Int, 0, len(specific)+int(random))
	for _, id := range specific {
		if id == nil {
			return nil, nil, fmt.Errorf("vault %d: %w: nil id", v.ID, common.ErrAssetNotHeld)
		}
		idx := indexOf(holdings, id)
		if idx < 0 {
			return nil, nil, fmt.Errorf("vault %d: id %s: %w", v.ID, id, common.ErrAssetNotHeld)
		}
		var taken *big.Int
		holdings, taken = takeUnit(holdings, idx)
		out = append(out, taken)
	}
	if random == 0 {
		return holdings, out, nil
	}
	entropy := e.entropyFn()
	for i := uint64(0); i < random; i++ {
		if len(holdings) == 0 {
			return nil, nil, fmt.Errorf("vault %d: %w", v.ID, errNoHoldings)
		}
		idx := drawIndex(entropy, caller, v.RandNonce, len(holdings))
		v.RandNonce++
		var taken *big.Int
		holdings, taken = takeUnit(holdings, idx)
		out = append(out, taken)
	}
	return holdings, out, nil
}

func (e *Engine) chargeFee(v *Vault, from [20]byte, fee *big.Int) error {
	if fee.Sign() == 0 {
		return nil
	}
	if e.feeSink == nil {
		return errNilFeeSink
	}
	if err := e.state.Transfer(v.Symbol, from, e.feeSink.Account(), fee); err != nil {
		return err
	}
	return e.feeSink.ReportFee(v.Account, v.ID, fee)
}

func (e *Engine) enter(op string) (func(), error) {
	if e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, fmt.Errorf("vault: %s: %w", op, err)
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("vault: %s: %w", op, err)
	}
	return release, nil
}

// Mint moves ids into custody and credits caller with one share per unit,
// less the mint fee unless caller is fee-excluded.
func (e *Engine) Mint(caller [20]byte, vaultID uint64, ids, amounts []*big.Int) (*MintResult, error) {
	release, err := e.enter("mint")
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	if !v.Features.Mint {
		return nil, fmt.Errorf("vault %d: mint: %w", vaultID, common.ErrFeatureDisabled)
	}
	units, count, err := normalizeUnits(v, ids, amounts)
	if err != nil {
		return nil, err
	}
	if err := e.checkEligible(v, ids); err != nil {
		return nil, err
	}
	fee := big.NewInt(0)
	if skip, err := e.excluded(caller); err != nil {
		return nil, err
	} else if !skip {
		fee = new(big.Int).Mul(common.Clone(v.Fees.Mint), count)
	}

	holdings, err := e.loadHoldings(vaultID)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if err := e.state.TransferAsset(v.AssetClass, caller, v.Account, id, units[i]); err != nil {
			return nil, fmt.Errorf("vault %d: custody of %s: %w", vaultID, id, err)
		}
		holdings = addHolding(holdings, id, units[i])
	}
	if err := e.storeHoldings(vaultID, holdings); err != nil {
		return nil, err
	}

	shares := new(big.Int).Mul(count, common.Base)
	net := new(big.Int).Sub(shares, fee)
	if err := e.state.Mint(v.Symbol, caller, net); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if e.feeSink == nil {
			return nil, errNilFeeSink
		}
		if err := e.state.Mint(v.Symbol, e.feeSink.Account(), fee); err != nil {
			return nil, err
		}
		if err := e.feeSink.ReportFee(v.Account, vaultID, fee); err != nil {
			return nil, err
		}
	}
	e.emit(MintedEvent(v, caller, ids, units, net, fee))
	return &MintResult{Count: count, Shares: net, Fee: fee}, nil
}

// Redeem burns count shares from caller plus fees and delivers count units
// to the recipient. specificIDs are honoured first; the rest are drawn at
// random from the vault's holdings.
func (e *Engine) Redeem(caller [20]byte, vaultID uint64, count uint64, specificIDs []*big.Int, to [20]byte) (*RedeemResult, error) {
	release, err := e.enter("redeem")
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("vault %d: %w: redeem count must be positive", vaultID, common.ErrInvalidAmount)
	}
	targeted := uint64(len(specificIDs))
	if targeted > count {
		return nil, fmt.Errorf("vault %d: %w: %d specific ids for count %d", vaultID, common.ErrCountMismatch, targeted, count)
	}
	if targeted > 0 && !v.Features.TargetRedeem {
		return nil, fmt.Errorf("vault %d: target redeem: %w", vaultID, common.ErrFeatureDisabled)
	}
	if count > targeted && !v.Features.RandomRedeem {
		return nil, fmt.Errorf("vault %d: random redeem: %w", vaultID, common.ErrFeatureDisabled)
	}
	fee := big.NewInt(0)
	if skip, err := e.excluded(caller); err != nil {
		return nil, err
	} else if !skip {
		fee = quoteFee(v.Fees.TargetRedeem, v.Fees.RandomRedeem, new(big.Int).SetUint64(targeted), new(big.Int).SetUint64(count))
	}

	holdings, err := e.loadHoldings(vaultID)
	if err != nil {
		return nil, err
	}
	holdings, out, err := e.selectOut(v, caller, copyHoldings(holdings), specificIDs, count-targeted)
	if err != nil {
		return nil, err
	}

	burn := new(big.Int).Mul(new(big.Int).SetUint64(count), common.Base)
	required := new(big.Int).Add(burn, fee)
	bal, err := e.state.Balance(v.Symbol, caller)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(required) < 0 {
		return nil, fmt.Errorf("vault %d: need %s shares, have %s: %w", vaultID, required, bal, common.ErrInsufficientBalance)
	}
	if err := e.state.Burn(v.Symbol, caller, burn); err != nil {
		return nil, err
	}
	if err := e.chargeFee(v, caller, fee); err != nil {
		return nil, err
	}
	for _, id := range out {
		if err := e.state.TransferAsset(v.AssetClass, v.Account, to, id, one); err != nil {
			return nil, fmt.Errorf("vault %d: release of %s: %w", vaultID, id, err)
		}
	}
	if err := e.storeHoldings(vaultID, holdings); err != nil {
		return nil, err
	}
	if err := e.putVault(v); err != nil {
		return nil, err
	}
	e.emit(RedeemedEvent(vaultID, caller, to, specificIDs, out, fee))
	return &RedeemResult{IDs: out, Fee: fee}, nil
}

// Swap exchanges incoming ids for the same number of outgoing units. The
// share supply is unchanged; caller pays the swap fee in shares.
func (e *Engine) Swap(caller [20]byte, vaultID uint64, inIDs, inAmounts, specificOut []*big.Int, to [20]byte) (*RedeemResult, error) {
	release, err := e.enter("swap")
	if err != nil {
		return nil, err
	}
	defer release()

	v, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	units, count, err := normalizeUnits(v, inIDs, inAmounts)
	if err != nil {
		return nil, err
	}
	if !count.IsUint64() {
		return nil, fmt.Errorf("vault %d: %w: swap count too large", vaultID, common.ErrInvalidAmount)
	}
	total := count.Uint64()
	targeted := uint64(len(specificOut))
	if targeted > total {
		return nil, fmt.Errorf("vault %d: %w: %d out ids for %d in", vaultID, common.ErrCountMismatch, targeted, total)
	}
	if targeted > 0 && !v.Features.TargetSwap {
		return nil, fmt.Errorf("vault %d: target swap: %w", vaultID, common.ErrFeatureDisabled)
	}
	if total > targeted && !v.Features.RandomSwap {
		return nil, fmt.Errorf("vault %d: random swap: %w", vaultID, common.ErrFeatureDisabled)
	}
	if err := e.checkEligible(v, inIDs); err != nil {
		return nil, err
	}
	fee := big.NewInt(0)
	if skip, err := e.excluded(caller); err != nil {
		return nil, err
	} else if !skip {
		fee = quoteFee(v.Fees.TargetSwap, v.Fees.RandomSwap, new(big.Int).SetUint64(targeted), count)
	}
	if fee.Sign() > 0 {
		bal, err := e.state.Balance(v.Symbol, caller)
		if err != nil {
			return nil, err
		}
		if bal.Cmp(fee) < 0 {
			return nil, fmt.Errorf("vault %d: swap fee %s exceeds balance %s: %w", vaultID, fee, bal, common.ErrInsufficientBalance)
		}
	}

	holdings, err := e.loadHoldings(vaultID)
	if err != nil {
		return nil, err
	}
	holdings = copyHoldings(holdings)
	for i, id := range inIDs {
		if err := e.state.TransferAsset(v.AssetClass, caller, v.Account, id, units[i]); err != nil {
			return nil, fmt.Errorf("vault %d: custody of %s: %w", vaultID, id, err)
		}
		holdings = addHolding(holdings, id, units[i])
	}
	holdings, out, err := e.selectOut(v, caller, holdings, specificOut, total-targeted)
	if err != nil {
		return nil, err
	}
	if err := e.chargeFee(v, caller, fee); err != nil {
		return nil, err
	}
	for _, id := range out {
		if err := e.state.TransferAsset(v.AssetClass, v.Account, to, id, one); err != nil {
			return nil, fmt.Errorf("vault %d: release of %s: %w", vaultID, id, err)
		}
	}
	if err := e.storeHoldings(vaultID, holdings); err != nil {
		return nil, err
	}
	if err := e.putVault(v); err != nil {
		return nil, err
	}
	e.emit(SwappedEvent(vaultID, caller, to, inIDs, out, fee))
	return &RedeemResult{IDs: out, Fee: fee}, nil
}

// QuoteRedeemFee returns the shares, beyond count*Base, caller would pay to
// redeem count units with the given number of targeted ids.
func (e *Engine) QuoteRedeemFee(caller [20]byte, vaultID uint64, count, targeted uint64) (*big.Int, error) {
	v, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	if skip, err := e.excluded(caller); err != nil || skip {
		return big.NewInt(0), err
	}
	return quoteFee(v.Fees.TargetRedeem, v.Fees.RandomRedeem, new(big.Int).SetUint64(targeted), new(big.Int).SetUint64(count)), nil
}

// QuoteSwapFee returns the share fee for swapping count units.
func (e *Engine) QuoteSwapFee(caller [20]byte, vaultID uint64, count, targeted uint64) (*big.Int, error) {
	v, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	if skip, err := e.excluded(caller); err != nil || skip {
		return big.NewInt(0), err
	}
	return quoteFee(v.Fees.TargetSwap, v.Fees.RandomSwap, new(big.Int).SetUint64(targeted), new(big.Int).SetUint64(count)), nil
}

// QuoteMintFee returns the share fee for minting count units.
func (e *Engine) QuoteMintFee(caller [20]byte, vaultID uint64, count uint64) (*big.Int, error) {
	v, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	if skip, err := e.excluded(caller); err != nil || skip {
		return big.NewInt(0), err
	}
	return new(big.Int).Mul(common.Clone(v.Fees.Mint), new(big.Int).SetUint64(count)), nil
}
