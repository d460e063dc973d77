package common

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator for every ratio expressed in basis points.
const BasisPoints uint64 = 10_000

// ErrOverflow reports an arithmetic result that does not fit an unsigned
// 256-bit amount, or that would be negative.
var ErrOverflow = errors.New("amount overflow")

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrOverflow
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// CheckAmount validates that v is a representable, non-negative amount.
func CheckAmount(v *big.Int) error {
	_, err := toU256(v)
	return err
}

// Add returns a+b.
func Add(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

// Sub returns a-b, failing when b exceeds a.
func Sub(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrOverflow
	}
	return diff.ToBig(), nil
}

// Mul returns a*b.
func Mul(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return product.ToBig(), nil
}

// MulDiv returns floor(a*b/d) along with the remainder of the division. The
// intermediate product must itself fit 256 bits.
func MulDiv(a, b, d *big.Int) (*big.Int, *big.Int, error) {
	product, err := Mul(a, b)
	if err != nil {
		return nil, nil, err
	}
	den, err := toU256(d)
	if err != nil {
		return nil, nil, err
	}
	if den.IsZero() {
		return nil, nil, ErrOverflow
	}
	num, _ := toU256(product)
	quo, rem := new(uint256.Int), new(uint256.Int)
	quo.DivMod(num, den, rem)
	return quo.ToBig(), rem.ToBig(), nil
}

// ApplyBps returns floor(amount*bps/10000).
func ApplyBps(amount *big.Int, bps uint64) (*big.Int, error) {
	out, _, err := MulDiv(amount, new(big.Int).SetUint64(bps), new(big.Int).SetUint64(BasisPoints))
	return out, err
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Clone returns a copy of v, mapping nil to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
