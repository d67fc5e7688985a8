package onchain

import "math/bits"

// Add64 returns a+b or ErrArithmeticOverflow.
func Add64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub64 returns a-b or ErrArithmeticOverflow when b > a.
func Sub64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// Mul64 returns a*b or ErrArithmeticOverflow.
func Mul64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// Div64 returns floor(a/b) or ErrDivisionByZero.
func Div64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// Uint128 is an unsigned 128-bit integer.
type Uint128 struct {
	Hi, Lo uint64
}

// MulU64 returns u*v or ErrArithmeticOverflow when the product needs more
// than 128 bits.
func (u Uint128) MulU64(v uint64) (Uint128, error) {
	carry, lo := bits.Mul64(u.Lo, v)
	top, mid := bits.Mul64(u.Hi, v)
	if top != 0 {
		return Uint128{}, ErrArithmeticOverflow
	}
	hi, c := bits.Add64(mid, carry, 0)
	if c != 0 {
		return Uint128{}, ErrArithmeticOverflow
	}
	return Uint128{Hi: hi, Lo: lo}, nil
}

// DivNarrow returns floor(u/d) narrowed to 64 bits. A zero divisor is
// ErrDivisionByZero and a quotient wider than 64 bits ErrArithmeticOverflow.
func (u Uint128) DivNarrow(d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	if u.Hi >= d {
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(u.Hi, u.Lo, d)
	return q, nil
}

// MulDiv64 computes floor(f0*f1*...*fn / divisor) with a 128-bit
// intermediate product.
func MulDiv64(factors []uint64, divisor uint64) (uint64, error) {
	acc := Uint128{Lo: 1}
	for _, f := range factors {
		var err error
		if acc, err = acc.MulU64(f); err != nil {
			return 0, err
		}
	}
	return acc.DivNarrow(divisor)
}
