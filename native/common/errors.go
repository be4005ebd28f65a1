package common

import "errors"

// Error taxonomy shared by every native module. Engines wrap these with
// module context so callers can discriminate with errors.Is.
var (
	ErrIneligibleAsset         = errors.New("ineligible asset")
	ErrAssetNotHeld            = errors.New("asset not held")
	ErrCountMismatch           = errors.New("count mismatch")
	ErrSlippageExceeded        = errors.New("slippage exceeded")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrConfigInvariantViolated = errors.New("config invariant violated")
	ErrReentrantCall           = errors.New("reentrant call")
	ErrFeatureDisabled         = errors.New("feature disabled")
	ErrResidualBalance         = errors.New("residual balance")
	ErrUnknownVault            = errors.New("unknown vault")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidPath             = errors.New("invalid swap path")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrIneligibleAsset, "IneligibleAsset"},
	{ErrAssetNotHeld, "AssetNotHeld"},
	{ErrCountMismatch, "CountMismatch"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrConfigInvariantViolated, "ConfigInvariantViolated"},
	{ErrReentrantCall, "ReentrantCall"},
	{ErrFeatureDisabled, "FeatureDisabled"},
	{ErrResidualBalance, "ResidualBalance"},
	{ErrUnknownVault, "UnknownVault"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidPath, "InvalidPath"},
	{ErrModulePaused, "ModulePaused"},
}

// Kind returns a stable identifier for the error category carried by err.
// Nil maps to the empty string and unclassified errors to "Internal".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
