// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package affine

import "golang.org/x/exp/constraints"

// FloorDiv returns floor(a/b) for b > 0, rounding towards negative infinity (unlike Go's `/`).
func FloorDiv[T constraints.Signed](a, b T) T {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CeilDiv returns ceil(a/b) for b > 0.
func CeilDiv[T constraints.Signed](a, b T) T {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}

// Mod returns the non-negative remainder of a divided by b, for b > 0.
func Mod[T constraints.Signed](a, b T) T {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

// GCD returns the greatest common divisor of |a| and |b|. GCD(0, 0) == 0.
func GCD[T constraints.Signed](a, b T) T {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
