package common

import "math/big"

// MaxBps is the basis-point denominator used across risk parameters.
const MaxBps = 10_000

var (
	wad         = mustBigInt("1000000000000000000") // 1e18 fixed-point scale
	basisPoints = big.NewInt(MaxBps)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Wad returns a copy of the 1e18 fixed-point unit.
func Wad() *big.Int {
	return new(big.Int).Set(wad)
}

// MulWad computes a*b/1e18 rounding toward zero. Nil operands count as zero.
func MulWad(a, b *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, wad)
}

// DivWad computes a*1e18/b rounding toward zero. A nil or zero denominator
// yields zero rather than a panic so callers can treat it as "no value".
func DivWad(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, wad)
	return numerator.Quo(numerator, b)
}

// BpsMul computes a*bps/10000 rounding toward zero.
func BpsMul(a *big.Int, bps uint64) *big.Int {
	if a == nil || a.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(a, new(big.Int).SetUint64(bps))
	return scaled.Quo(scaled, basisPoints)
}

// MulDiv computes a*b/denom rounding toward zero, the shared primitive behind
// pro-rata allocation. A nil or zero denominator yields zero.
func MulDiv(a, b, denom *big.Int) *big.Int {
	if a == nil || b == nil || denom == nil || denom.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, denom)
}
