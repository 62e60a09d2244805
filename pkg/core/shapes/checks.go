// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// UncheckedAxis in CheckDims accepts any dimension for the axis.
const UncheckedAxis = int(-1)

// CheckDims returns an error if s is a tuple, or if its dimensions differ from dimensions (UncheckedAxis matches
// anything). With no dimensions it checks for a scalar.
func (s Shape) CheckDims(dimensions ...int) error {
	if s.IsTuple() {
		return errors.Errorf("shape %s is a tuple, wanted dimensions %v", s, dimensions)
	}
	if s.Rank() != len(dimensions) {
		return errors.Errorf("shape %s has incompatible rank %d (wanted %d)", s, s.Rank(), len(dimensions))
	}
	for ii, wantDim := range dimensions {
		if wantDim != UncheckedAxis && s.Dimensions[ii] != wantDim {
			return errors.Errorf("shape %s axis %d has dimension %d, wanted %d (shape wanted=%v)",
				s, ii, s.Dimensions[ii], wantDim, dimensions)
		}
	}
	return nil
}

// Check is CheckDims plus a check of the dtype.
func (s Shape) Check(dtype dtypes.DType, dimensions ...int) error {
	if dtype != s.DType {
		return errors.Errorf("shape %s has incompatible dtype %s (wanted %s)", s, s.DType, dtype)
	}
	return s.CheckDims(dimensions...)
}

// CheckAxis returns an error if axis is not a valid axis of s, or if it is repeated in seen (when seen is not nil).
// It marks the axis as seen.
func (s Shape) CheckAxis(axis int, seen []bool) error {
	if axis < 0 || axis >= s.Rank() {
		return errors.Errorf("axis %d out-of-bounds for shape %s", axis, s)
	}
	if seen != nil {
		if seen[axis] {
			return errors.Errorf("axis %d repeated for shape %s", axis, s)
		}
		seen[axis] = true
	}
	return nil
}
