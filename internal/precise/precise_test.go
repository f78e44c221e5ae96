package precise

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func scaled(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale)
}

func TestMulTruncates(t *testing.T) {
	// 1.5 * 1.5 = 2.25, exact
	a := new(big.Int).Add(scaled(1), new(big.Int).Quo(Scale, big.NewInt(2)))
	out := Mul(a, a)
	want := new(big.Int).Add(scaled(2), new(big.Int).Quo(Scale, big.NewInt(4)))
	assert.Equal(t, want, out)

	// 1 / 3 * 3 loses the last wei to truncation
	third := Div(scaled(1), scaled(3))
	back := Mul(third, scaled(3))
	assert.Equal(t, -1, back.Cmp(scaled(1)))
	diff := new(big.Int).Sub(scaled(1), back)
	assert.True(t, diff.Cmp(big.NewInt(3)) <= 0)
}

func TestDivCeilRoundsAwayFromZero(t *testing.T) {
	// 10 / 3 truncated vs ceiled differ by exactly one wei
	down := Div(scaled(10), scaled(3))
	up := DivCeil(scaled(10), scaled(3))
	assert.Equal(t, big.NewInt(1), new(big.Int).Sub(up, down))

	// exact division has nothing to round
	assert.Equal(t, Div(scaled(10), scaled(2)), DivCeil(scaled(10), scaled(2)))
}

func TestMulDiv(t *testing.T) {
	// 7 * 3 / 2 = 10.5
	out := MulDiv(scaled(7), big.NewInt(3), big.NewInt(2))
	want := new(big.Int).Add(scaled(10), new(big.Int).Quo(Scale, big.NewInt(2)))
	assert.Equal(t, want, out)
}

func TestDecimalRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("123.456")
	v := FromDecimal(d)
	assert.Equal(t, "123456000000000000000", v.String())
	assert.True(t, ToDecimal(v).Equal(d))
}

func TestFraction(t *testing.T) {
	rate := decimal.RequireFromString("0.0005")
	fee := Fraction(scaled(1000), rate)
	assert.Equal(t, new(big.Int).Quo(Scale, big.NewInt(2)), fee)

	assert.Equal(t, int64(0), Fraction(scaled(1000), decimal.Zero).Int64())
}
