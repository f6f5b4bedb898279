// Package amount implements the fixed-point non-negative Amount type used
// throughout the execution pipeline for balances, fees and coin transfers.
// It is backed by uint256.Int rather than a hand-rolled big-integer type: the
// pipeline never needs signed or arbitrary-precision arithmetic, only
// saturating/checked 256-bit unsigned math, which holiman/uint256 already
// provides with allocation-free operations.
package amount

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Scale is the fixed-point scale factor (1 coin = Scale mantissa units).
const Scale = 1_000_000_000

// ErrOverflow is returned by checked arithmetic that would overflow.
var ErrOverflow = errors.New("amount: overflow")

// ErrUnderflow is returned by checked arithmetic that would go negative.
var ErrUnderflow = errors.New("amount: underflow")

// Amount is a fixed-point non-negative quantity of coins, stored as a raw
// mantissa (value * Scale).
type Amount struct {
	v uint256.Int
}

// Zero is the additive identity.
var Zero = Amount{}

// FromMantissa builds an Amount directly from a raw mantissa value.
func FromMantissa(mantissa uint64) Amount {
	var a Amount
	a.v.SetUint64(mantissa)
	return a
}

// FromUnits builds an Amount from a whole-coin count, scaling by Scale.
func FromUnits(units uint64) Amount {
	var a Amount
	a.v.SetUint64(units)
	a.v.Mul(&a.v, uint256.NewInt(Scale))
	return a
}

// Mantissa returns the raw mantissa as a uint64. Panics if it does not fit;
// callers dealing with economic constants (fees, prices) never exceed 64
// bits in practice, matching spec.md's Amount definition.
func (a Amount) Mantissa() uint64 {
	if !a.v.IsUint64() {
		panic(fmt.Sprintf("amount: mantissa does not fit in uint64: %s", a.v.String()))
	}
	return a.v.Uint64()
}

// String renders the raw mantissa as a base-10 integer (no decimal point).
func (a Amount) String() string {
	return a.v.String()
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp compares two amounts: -1, 0, 1 for less, equal, greater.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// SaturatingAdd returns a+b, saturating at the maximum uint256 value instead
// of overflowing (used for speculative balance math where sums are
// bounded well below the saturation point in practice).
func (a Amount) SaturatingAdd(b Amount) Amount {
	var r Amount
	overflow := r.v.AddOverflow(&a.v, &b.v)
	if overflow {
		r.v = *uint256.NewInt(0).Not(uint256.NewInt(0))
	}
	return r
}

// CheckedAdd returns a+b, or ErrOverflow if it would overflow.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	var r Amount
	if r.v.AddOverflow(&a.v, &b.v) {
		return Zero, ErrOverflow
	}
	return r, nil
}

// CheckedSub returns a-b, or ErrUnderflow if b > a.
func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if a.Cmp(b) < 0 {
		return Zero, ErrUnderflow
	}
	var r Amount
	r.v.Sub(&a.v, &b.v)
	return r, nil
}

// CheckedMulUint64 returns a*n, or ErrOverflow if it would overflow.
func (a Amount) CheckedMulUint64(n uint64) (Amount, error) {
	var r Amount
	_, overflow := r.v.MulOverflow(&a.v, uint256.NewInt(n))
	if overflow {
		return Zero, ErrOverflow
	}
	return r, nil
}

// CheckedDivUint64 returns a/n. Division by zero returns ErrOverflow (there
// is no sane saturation semantic; callers must not divide by zero).
func (a Amount) CheckedDivUint64(n uint64) (Amount, error) {
	if n == 0 {
		return Zero, ErrOverflow
	}
	var r Amount
	r.v.Div(&a.v, uint256.NewInt(n))
	return r, nil
}

// Mul256 returns a*b as a full checked multiplication, used for
// max_gas * gas_price priority-key computation.
func Mul256(a, b uint64) (Amount, error) {
	var r Amount
	_, overflow := r.v.MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow {
		return Zero, ErrOverflow
	}
	return r, nil
}
