package precise

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the fixed-point unit: all units, notionals and the supply
// multiplier carry 18 decimals, matching ERC-20 wei conventions.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Zero returns a fresh zero value. Callers must never share big.Int
// instances across ledger entries.
func Zero() *big.Int {
	return new(big.Int)
}

// Mul returns a * b / Scale, truncated toward zero.
func Mul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, Scale)
}

// Div returns a * Scale / b, truncated toward zero. b must be non-zero;
// the caller is responsible for guarding zero denominators (typically a
// zero total supply) before converting.
func Div(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, Scale)
	return out.Quo(out, b)
}

// DivCeil returns a * Scale / b rounded away from zero when the signs
// agree. Used where rounding down would understate an obligation.
func DivCeil(a, b *big.Int) *big.Int {
	num := new(big.Int).Mul(a, Scale)
	q, r := new(big.Int).QuoRem(num, b, new(big.Int))
	if r.Sign() != 0 && (a.Sign() > 0) == (b.Sign() > 0) {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// MulDiv returns a * b / c, truncated toward zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// FromDecimal converts a human-readable decimal amount into scaled
// fixed point, truncating anything below 18 decimals.
func FromDecimal(d decimal.Decimal) *big.Int {
	return d.Mul(decimal.New(1, 18)).BigInt()
}

// ToDecimal converts a scaled value back to a human-readable decimal.
func ToDecimal(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -18)
}

// Fraction applies a decimal fraction (e.g. a protocol fee rate) to a
// scaled amount, truncating toward zero.
func Fraction(v *big.Int, rate decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(v, 0).Mul(rate).BigInt()
}
