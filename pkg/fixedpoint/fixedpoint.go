// Package fixedpoint implements the 18-decimal fixed-point arithmetic used for
// rates and amounts. All values are non-negative *big.Int; a rate of 1.0 is
// represented as 10^18.
package fixedpoint

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	dErrors "fxsettle/pkg/domain-errors"
)

// Decimals is the number of fractional digits carried by a scaled rate.
const Decimals = 18

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Scale returns a fresh copy of 10^18.
func Scale() *big.Int {
	return new(big.Int).Set(scale)
}

// One returns the scaled representation of 1.0.
func One() *big.Int {
	return Scale()
}

// ApplyRate converts amount at rate: settled = floor(amount*rate / 10^18) and
// remainder = (amount*rate) mod 10^18. Inputs are not modified.
func ApplyRate(amount, rate *big.Int) (settled, remainder *big.Int) {
	product := new(big.Int).Mul(amount, rate)
	settled, remainder = new(big.Int).QuoRem(product, scale, new(big.Int))
	return settled, remainder
}

// Mean returns floor(sum(values) / len(values)). Returns nil for an empty slice.
func Mean(values []*big.Int) *big.Int {
	if len(values) == 0 {
		return nil
	}
	sum := new(big.Int)
	for _, v := range values {
		sum.Add(sum, v)
	}
	return sum.Quo(sum, big.NewInt(int64(len(values))))
}

// ParseRate reads a rate from text. A value with a decimal point is a human
// rate ("1.5") and is shifted by 18 places; a bare integer is already scaled.
//
// Errors: CodeInvalidInput when the text is not a number, is negative, or has
// more than 18 fractional digits.
func ParseRate(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate is required")
	}
	if !strings.Contains(s, ".") {
		return parseInteger(s, "rate")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "rate is not a decimal number")
	}
	if d.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate must not be negative")
	}
	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate has more than 18 fractional digits")
	}
	return shifted.BigInt(), nil
}

// ParseAmount reads a base-unit integer amount.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	return parseInteger(s, "amount")
}

// FormatRate renders a scaled rate as a human decimal ("1.5").
func FormatRate(rate *big.Int) string {
	if rate == nil {
		return ""
	}
	return decimal.NewFromBigInt(rate, -Decimals).String()
}

// String renders an integer value, or "" for nil.
func String(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func parseInteger(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, field+" is not an integer")
	}
	if v.Sign() < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be negative")
	}
	return v, nil
}
