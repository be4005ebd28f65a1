package events

import (
	"math/big"
	"strconv"
	"strings"

	"vaultchain/crypto"
)

// FormatAmount renders an amount attribute, mapping nil to zero.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// FormatIDs renders asset identifiers as a comma separated list.
func FormatIDs(ids []*big.Int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, FormatAmount(id))
	}
	return strings.Join(parts, ",")
}

// FormatAddress renders a 20-byte address in bech32 form.
func FormatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.VaultPrefix, addr[:]).String()
}

// FormatUint renders an unsigned counter attribute.
func FormatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// FormatBool renders a flag attribute.
func FormatBool(v bool) string {
	return strconv.FormatBool(v)
}
