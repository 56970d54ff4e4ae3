package safemath

import (
	"errors"
	"math/bits"
)

var ErrOverflow = errors.New("number overflow")

type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Add returns a+b and whether the sum fits in T.
func Add[T Unsigned](a, b T) (T, bool) {
	sum := a + b
	return sum, sum >= a
}

// Sub returns a-b and whether the result did not underflow.
func Sub[T Unsigned](a, b T) (T, bool) {
	return a - b, a >= b
}

// Mul returns a*b and whether the product fits in T.
func Mul[T Unsigned](a, b T) (T, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > maxOf[T]() {
		return T(lo), false
	}
	return T(lo), true
}

// SaturatingAdd adds and clamps at the maximum of T.
func SaturatingAdd[T Unsigned](a, b T) T {
	if sum, ok := Add(a, b); ok {
		return sum
	}
	return T(maxOf[T]())
}

// SaturatingSub subtracts and clamps at zero.
func SaturatingSub[T Unsigned](a, b T) T {
	if a < b {
		return 0
	}
	return a - b
}

func maxOf[T Unsigned]() uint64 {
	return uint64(^T(0))
}
