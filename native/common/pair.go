package common

import "strings"

// PairSymbol returns the LP token symbol of a pair, independent of order.
func PairSymbol(a, b string) string {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if b < a {
		a, b = b, a
	}
	return "LP-" + a + "-" + b
}
