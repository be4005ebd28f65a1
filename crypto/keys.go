package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the different types of human-readable address prefixes.
type AddressPrefix string

const (
	VaultPrefix AddressPrefix = "vlt"
)

// Address represents a 20-byte account address with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Array returns the address as a fixed-size array.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes, got %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// ParseAddress accepts either a bech32 address or a 0x-prefixed hex string.
func ParseAddress(s string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return out, fmt.Errorf("address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return out, fmt.Errorf("decode hex address: %w", err)
		}
		if len(raw) != 20 {
			return out, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
		}
		copy(out[:], raw)
		return out, nil
	}
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	return addr.Array(), nil
}

// ModuleAddress derives the deterministic account of a runtime component,
// e.g. a vault's custody account or the fee distributor.
func ModuleAddress(label string) [20]byte {
	var out [20]byte
	hash := crypto.Keccak256([]byte("module:" + label))
	copy(out[:], hash[12:])
	return out
}
