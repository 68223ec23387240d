package models

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is a quantity of chips, vote weight or stake tokens in base units.
type Amount = uint256.Int

// RatioPrecision is the denominator of every configured ratio (parts per million).
const RatioPrecision uint64 = 1_000_000

// NewAmount returns v base units
func NewAmount(v uint64) Amount {
	return *uint256.NewInt(v)
}

// ParseAmount parses a base-10 amount string
func ParseAmount(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return *v, nil
}

// MustParseAmount is ParseAmount for constants and tests
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddAmount returns a + b
func AddAmount(a, b Amount) Amount {
	var z Amount
	z.Add(&a, &b)
	return z
}

// SubAmount returns a - b. Callers guarantee a >= b.
func SubAmount(a, b Amount) Amount {
	var z Amount
	z.Sub(&a, &b)
	return z
}

// MulDiv returns floor(a * b / d) with a 512-bit intermediate product.
// A zero divisor yields zero.
func MulDiv(a, b, d Amount) Amount {
	if d.IsZero() {
		return Amount{}
	}
	var z Amount
	z.MulDivOverflow(&a, &b, &d)
	return z
}

// ApplyRatio returns floor(a * ppm / RatioPrecision)
func ApplyRatio(a Amount, ppm uint64) Amount {
	return MulDiv(a, NewAmount(ppm), NewAmount(RatioPrecision))
}

// DivAmount returns floor(a / n)
func DivAmount(a Amount, n uint64) Amount {
	if n == 0 {
		return Amount{}
	}
	var z Amount
	d := NewAmount(n)
	z.Div(&a, &d)
	return z
}

// LessThan reports a < b
func LessThan(a, b Amount) bool {
	return a.Lt(&b)
}

// GreaterThan reports a > b
func GreaterThan(a, b Amount) bool {
	return a.Gt(&b)
}

// SameAmount reports a == b
func SameAmount(a, b Amount) bool {
	return a.Eq(&b)
}

// FormatAmount renders a in base-10
func FormatAmount(a Amount) string {
	return a.Dec()
}
