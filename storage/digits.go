package storage

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	fxPair   = regexp.MustCompile(`^[A-Z]{6}$`)
	metalFX  = regexp.MustCompile(`^XA[UG][A-Z]{3}$`)
	maxDigit = 10
)

// InstrumentDigits guesses display precision. FX pairs use 5 (3 for JPY
// quotes), gold and silver use 2, anything else follows the reference price.
func InstrumentDigits(symbol string, ref decimal.Decimal) int {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if metalFX.MatchString(s) {
		return 2
	}
	if fxPair.MatchString(s) {
		if strings.HasSuffix(s, "JPY") {
			return 3
		}
		return 5
	}

	digits := 0
	if exp := ref.Exponent(); exp < 0 {
		digits = int(-exp)
	}
	if digits > maxDigit {
		digits = maxDigit
	}
	if digits == 0 {
		return 5
	}
	return digits
}
