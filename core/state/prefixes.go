package state

import (
	"math/big"
	"strings"
)

var (
	balancePrefix    = []byte("bank/balance/")
	supplyPrefix     = []byte("bank/supply/")
	collectionPrefix = []byte("nft/collection/")
	ownerPrefix      = []byte("nft/owner/")
	multiPrefix      = []byte("nft/balance/")
	attributePrefix  = []byte("nft/attrs/")
)

// NormalizeToken canonicalises fungible token symbols.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func joinKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, p...)
	}
	return buf
}

func balanceKey(token string, addr [20]byte) []byte {
	return joinKey(balancePrefix, []byte(token), addr[:])
}

func supplyKey(token string) []byte {
	return joinKey(supplyPrefix, []byte(token))
}

func collectionKey(name string) []byte {
	return joinKey(collectionPrefix, []byte(name))
}

func ownerKey(collection string, id *big.Int) []byte {
	return joinKey(ownerPrefix, []byte(collection), []byte(id.String()))
}

func multiKey(collection string, id *big.Int, holder [20]byte) []byte {
	return joinKey(multiPrefix, []byte(collection), []byte(id.String()), holder[:])
}

func attributeKey(collection string, id *big.Int) []byte {
	return joinKey(attributePrefix, []byte(collection), []byte(id.String()))
}
