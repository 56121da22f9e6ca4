// Package fixedpoint implements the 18-decimal unsigned fixed-point arithmetic used by
// vault-based pools, plus integer helpers shared by the other pool engines.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrMulOverflow is returned when a product does not fit in 256 bits.
	ErrMulOverflow = errors.New("fixedpoint: multiplication overflow")
	// ErrZeroDivision is returned when dividing by zero.
	ErrZeroDivision = errors.New("fixedpoint: division by zero")
	// ErrNegative is returned when an operand is negative or nil.
	ErrNegative = errors.New("fixedpoint: operand must be non-nil and non-negative")
	// ErrOutOfRange is returned when an operand does not fit in 256 bits.
	ErrOutOfRange = errors.New("fixedpoint: operand exceeds 256 bits")
)

var (
	// One is 1.0 in 18-decimal fixed point.
	One = big.NewInt(1e18)

	oneU256 = uint256.NewInt(1e18)
	u256One = uint256.NewInt(1)

	ten = big.NewInt(10)

	// precomputed 10^dec for typical ERC20 decimals (0..18)
	precomputedScales [19]*big.Int
)

func init() {
	precomputedScales[0] = big.NewInt(1)
	for i := 1; i < len(precomputedScales); i++ {
		precomputedScales[i] = new(big.Int).Mul(precomputedScales[i-1], ten)
	}
}

// Pow10 returns 10^dec. The returned value MUST NOT be modified.
func Pow10(dec uint8) *big.Int {
	if int(dec) < len(precomputedScales) {
		return precomputedScales[dec]
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(dec)), nil)
}

func toU256(a *big.Int) (*uint256.Int, error) {
	if a == nil || a.Sign() < 0 {
		return nil, ErrNegative
	}
	v, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrOutOfRange
	}
	return v, nil
}

func operands(a, b *big.Int) (*uint256.Int, *uint256.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// MulDown returns a*b/1e18 rounded down.
func MulDown(a, b *big.Int) (*big.Int, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrMulOverflow
	}
	return product.Div(product, oneU256).ToBig(), nil
}

// MulUp returns a*b/1e18 rounded up.
func MulUp(a, b *big.Int) (*big.Int, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrMulOverflow
	}
	if product.IsZero() {
		return new(big.Int), nil
	}
	// ((product - 1) / ONE) + 1
	product.Sub(product, u256One)
	product.Div(product, oneU256)
	return product.Add(product, u256One).ToBig(), nil
}

// DivDown returns a*1e18/b rounded down.
func DivDown(a, b *big.Int) (*big.Int, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	if y.IsZero() {
		return nil, ErrZeroDivision
	}
	if x.IsZero() {
		return new(big.Int), nil
	}
	inflated, overflow := new(uint256.Int).MulOverflow(x, oneU256)
	if overflow {
		return nil, ErrMulOverflow
	}
	return inflated.Div(inflated, y).ToBig(), nil
}

// DivUp returns a*1e18/b rounded up.
func DivUp(a, b *big.Int) (*big.Int, error) {
	x, y, err := operands(a, b)
	if err != nil {
		return nil, err
	}
	if y.IsZero() {
		return nil, ErrZeroDivision
	}
	if x.IsZero() {
		return new(big.Int), nil
	}
	inflated, overflow := new(uint256.Int).MulOverflow(x, oneU256)
	if overflow {
		return nil, ErrMulOverflow
	}
	inflated.Sub(inflated, u256One)
	inflated.Div(inflated, y)
	return inflated.Add(inflated, u256One).ToBig(), nil
}

// Complement returns 1e18 - x, or zero when x >= 1e18.
func Complement(x *big.Int) *big.Int {
	if x.Cmp(One) >= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(One, x)
}

// MulDivDown returns a*b/c rounded down on plain integers.
func MulDivDown(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, ErrZeroDivision
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, c), nil
}

// MulDivUp returns ceil(a*b/c) on plain non-negative integers.
func MulDivUp(a, b, c *big.Int) (*big.Int, error) {
	if c.Sign() == 0 {
		return nil, ErrZeroDivision
	}
	product := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(product, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// Sqrt returns floor(sqrt(y)), matching the Babylonian implementation used by pair contracts.
func Sqrt(y *big.Int) *big.Int {
	if y.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sqrt(y)
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
