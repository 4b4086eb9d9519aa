// Package rational implements an exact 256-bit rational number, used for
// token amounts and prices throughout Brontes so that decimal-normalization
// never loses precision. USD valuation is the one place values are allowed
// to collapse to a float64 (see core/inspectors).
package rational

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Amount is an exact non-negative rational Num/Den, both 256-bit unsigned
// integers. The zero value Amount{} has nil Num/Den: Zero reports true and
// Float64 returns 0, but Add, Sub, Mul and Cmp need non-nil fields, so use
// FromUint64(0) for an explicit zero. Add, Sub, Mul and ShiftDecimals
// return results in lowest terms; Normalize reduces an Amount built
// directly from its fields.
type Amount struct {
	Num *uint256.Int
	Den *uint256.Int
}

// FromUint64 returns amount/1.
func FromUint64(v uint64) Amount {
	return Amount{Num: uint256.NewInt(v), Den: uint256.NewInt(1)}
}

// FromBig constructs num/den from two uint256 values. den must be non-zero.
func FromBig(num, den *uint256.Int) (Amount, error) {
	if den == nil || den.IsZero() {
		return Amount{}, fmt.Errorf("rational: zero denominator")
	}
	return Amount{Num: num.Clone(), Den: den.Clone()}, nil
}

// Zero reports whether a is 0/den for some den.
func (a Amount) Zero() bool { return a.Num == nil || a.Num.IsZero() }

func gcd(a, b *uint256.Int) *uint256.Int {
	x, y := a.Clone(), b.Clone()
	for !y.IsZero() {
		x, y = y, new(uint256.Int).Mod(x, y)
	}
	return x
}

// Normalize divides Num and Den by their GCD, leaving Den minimal.
func (a Amount) Normalize() Amount {
	if a.Num == nil || a.Num.IsZero() {
		return Amount{Num: uint256.NewInt(0), Den: uint256.NewInt(1)}
	}
	g := gcd(a.Num, a.Den)
	if g.IsZero() || g.Eq(uint256.NewInt(1)) {
		return a
	}
	return Amount{
		Num: new(uint256.Int).Div(a.Num, g),
		Den: new(uint256.Int).Div(a.Den, g),
	}
}

// Add returns a+b, normalized. Overflow in the cross-multiplication is not
// expected for realistic token amounts (uint256 headroom is enormous
// relative to 18-decimal token supplies) and is not separately guarded.
func (a Amount) Add(b Amount) Amount {
	num := new(uint256.Int).Add(
		new(uint256.Int).Mul(a.Num, b.Den),
		new(uint256.Int).Mul(b.Num, a.Den),
	)
	den := new(uint256.Int).Mul(a.Den, b.Den)
	return Amount{Num: num, Den: den}.Normalize()
}

// Sub returns a-b. If b > a the result is reported via ok=false rather than
// wrapping, since amounts are modeled as non-negative.
func (a Amount) Sub(b Amount) (Amount, bool) {
	left := new(uint256.Int).Mul(a.Num, b.Den)
	right := new(uint256.Int).Mul(b.Num, a.Den)
	if left.Lt(right) {
		return Amount{}, false
	}
	num := new(uint256.Int).Sub(left, right)
	den := new(uint256.Int).Mul(a.Den, b.Den)
	return Amount{Num: num, Den: den}.Normalize(), true
}

// Mul returns a*b, normalized.
func (a Amount) Mul(b Amount) Amount {
	return Amount{
		Num: new(uint256.Int).Mul(a.Num, b.Num),
		Den: new(uint256.Int).Mul(a.Den, b.Den),
	}.Normalize()
}

// Cmp compares a and b by cross-multiplication; returns -1, 0, or 1.
func (a Amount) Cmp(b Amount) int {
	left := new(uint256.Int).Mul(a.Num, b.Den)
	right := new(uint256.Int).Mul(b.Num, a.Den)
	return left.Cmp(right)
}

// Float64 collapses the rational to a float64. This is lossy and must only
// be used at the final USD-valuation boundary (spec Design Notes, rational
// arithmetic).
func (a Amount) Float64() float64 {
	if a.Num == nil || a.Den == nil || a.Den.IsZero() {
		return 0
	}
	nf, _ := new(big.Float).SetInt(a.Num.ToBig()).Float64()
	df, _ := new(big.Float).SetInt(a.Den.ToBig()).Float64()
	if df == 0 {
		return 0
	}
	return nf / df
}

func (a Amount) String() string {
	if a.Num == nil {
		return "0"
	}
	return fmt.Sprintf("%s/%s", a.Num.String(), a.Den.String())
}

// ShiftDecimals divides raw by 10^decimals, returning raw / 10^decimals in
// lowest terms — used to normalize a raw on-chain integer amount into its
// human-scale rational given a token's decimals.
func ShiftDecimals(raw *uint256.Int, decimals uint8) Amount {
	den := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return Amount{Num: raw.Clone(), Den: den}.Normalize()
}
