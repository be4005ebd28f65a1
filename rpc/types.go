package rpc

import (
	"fmt"
	"math/big"

	"vaultchain/core"
	"vaultchain/core/events"
	"vaultchain/core/types"
	"vaultchain/crypto"
	"vaultchain/native/vault"
)

// Amounts and asset ids travel as base-10 strings so values above 2^53
// survive JSON clients. State-changing bodies are signed by their caller,
// see authenticate.

type createVaultRequest struct {
	signedFields
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	AssetClass string `json:"assetClass"`
	AllowAll   bool   `json:"allowAll"`
	Is1155     bool   `json:"is1155"`
}

type mintRequest struct {
	signedFields
	IDs     []string `json:"ids"`
	Amounts []string `json:"amounts"`
}

type redeemRequest struct {
	signedFields
	Count       uint64   `json:"count"`
	SpecificIDs []string `json:"specificIds"`
	To          string   `json:"to"`
}

type swapRequest struct {
	signedFields
	IDs         []string `json:"ids"`
	Amounts     []string `json:"amounts"`
	SpecificOut []string `json:"specificOut"`
	To          string   `json:"to"`
}

type callerRequest struct {
	signedFields
}

type stakeRequest struct {
	signedFields
	Amount string `json:"amount"`
}

type mintAndSellRequest struct {
	signedFields
	VaultID    uint64   `json:"vaultId"`
	IDs        []string `json:"ids"`
	Amounts    []string `json:"amounts"`
	MinBaseOut string   `json:"minBaseOut"`
	Path       []string `json:"path"`
	To         string   `json:"to"`
}

type buyAndRedeemRequest struct {
	signedFields
	VaultID     uint64   `json:"vaultId"`
	Count       uint64   `json:"count"`
	SpecificIDs []string `json:"specificIds"`
	MaxBaseIn   string   `json:"maxBaseIn"`
	Path        []string `json:"path"`
	To          string   `json:"to"`
}

type buyAndSwapRequest struct {
	signedFields
	VaultID     uint64   `json:"vaultId"`
	IDs         []string `json:"ids"`
	Amounts     []string `json:"amounts"`
	SpecificOut []string `json:"specificOut"`
	MaxBaseIn   string   `json:"maxBaseIn"`
	Path        []string `json:"path"`
	To          string   `json:"to"`
}

type addLiquidityRequest struct {
	signedFields
	VaultID   uint64   `json:"vaultId"`
	IDs       []string `json:"ids"`
	Amounts   []string `json:"amounts"`
	BaseMax   string   `json:"baseMax"`
	MinBaseIn string   `json:"minBaseIn"`
	To        string   `json:"to"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type envelope struct {
	Result  interface{}  `json:"result,omitempty"`
	Receipt *receiptJSON `json:"receipt,omitempty"`
	Error   *errorBody   `json:"error,omitempty"`
}

type receiptJSON struct {
	OpID   string         `json:"opId"`
	Height uint64         `json:"height"`
	Events []*types.Event `json:"events"`
}

func toReceipt(r *core.Receipt) *receiptJSON {
	if r == nil {
		return nil
	}
	return &receiptJSON{OpID: r.OpID, Height: r.Height, Events: r.Events}
}

type eventJSON struct {
	OpID       string            `json:"opId"`
	Op         string            `json:"op"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type holdingJSON struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

type vaultJSON struct {
	ID          uint64            `json:"id"`
	Name        string            `json:"name"`
	Symbol      string            `json:"symbol"`
	AssetClass  string            `json:"assetClass"`
	Is1155      bool              `json:"is1155"`
	AllowAll    bool              `json:"allowAll"`
	Manager     string            `json:"manager"`
	Finalized   bool              `json:"finalized"`
	Account     string            `json:"account"`
	Features    vault.Features    `json:"features"`
	Fees        map[string]string `json:"fees"`
	ShareSupply string            `json:"shareSupply"`
	Held        string            `json:"held"`
}

func parseAddress(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return addr, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

// parseOptionalAddress falls back to def when raw is empty.
func parseOptionalAddress(field, raw string, def [20]byte) ([20]byte, error) {
	if raw == "" {
		return def, nil
	}
	return parseAddress(field, raw)
}

func parseInt(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s: invalid integer %q", errBadRequest, field, raw)
	}
	return v, nil
}

func parseInts(field string, raw []string) ([]*big.Int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]*big.Int, len(raw))
	for i, s := range raw {
		v, err := parseInt(field, s)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("%w: %s[%d]: empty value", errBadRequest, field, i)
		}
		out[i] = v
	}
	return out, nil
}

func formatInts(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = events.FormatAmount(v)
	}
	return out
}
