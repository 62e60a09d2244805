// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package indexing

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Range is the half-open integer interval [LowerBound, UpperBound).
type Range struct {
	LowerBound, UpperBound int64
}

// String implements fmt.Stringer, e.g. "[0, 150)".
func (r Range) String() string { return fmt.Sprintf("[%d, %d)", r.LowerBound, r.UpperBound) }

// Size is the number of integers in the range, 0 if it is empty.
func (r Range) Size() int64 { return max(r.UpperBound-r.LowerBound, 0) }

// IsEmpty returns whether there are no integers in the range.
func (r Range) IsEmpty() bool { return r.UpperBound <= r.LowerBound }

// IsPoint returns whether the range holds exactly one value.
func (r Range) IsPoint() bool { return r.UpperBound == r.LowerBound+1 }

// Contains returns whether v is in the range.
func (r Range) Contains(v int64) bool { return v >= r.LowerBound && v < r.UpperBound }

// Intersect returns the intersection of both ranges. If they don't overlap the result is an empty range.
func (r Range) Intersect(other Range) Range {
	result := Range{LowerBound: max(r.LowerBound, other.LowerBound), UpperBound: min(r.UpperBound, other.UpperBound)}
	if result.UpperBound < result.LowerBound {
		result.UpperBound = result.LowerBound
	}
	return result
}

// Domain holds the ranges of the dimension and symbol variables of an affine map.
type Domain struct {
	DimensionRanges []Range
	SymbolRanges    []Range
}

// FromUpperBounds returns the Domain with ranges [0, bound) for each of the given dimension and symbol bounds.
func FromUpperBounds[T int | int64](dimensionUpperBounds, symbolUpperBounds []T) Domain {
	toRanges := func(bounds []T) []Range {
		ranges := make([]Range, len(bounds))
		for ii, bound := range bounds {
			ranges[ii] = Range{UpperBound: int64(bound)}
		}
		return ranges
	}
	return Domain{DimensionRanges: toRanges(dimensionUpperBounds), SymbolRanges: toRanges(symbolUpperBounds)}
}

// Clone returns a deep copy of the domain.
func (d Domain) Clone() Domain {
	return Domain{DimensionRanges: slices.Clone(d.DimensionRanges), SymbolRanges: slices.Clone(d.SymbolRanges)}
}

// String implements fmt.Stringer, with one line per variable, e.g. "d0 in [0, 150)".
func (d Domain) String() string {
	lines := make([]string, 0, len(d.DimensionRanges)+len(d.SymbolRanges))
	for ii, r := range d.DimensionRanges {
		lines = append(lines, fmt.Sprintf("d%d in %s", ii, r))
	}
	for ii, r := range d.SymbolRanges {
		lines = append(lines, fmt.Sprintf("s%d in %s", ii, r))
	}
	return strings.Join(lines, "\n")
}

// Equal returns whether both domains have exactly the same ranges.
func (d Domain) Equal(other Domain) bool {
	return slices.Equal(d.DimensionRanges, other.DimensionRanges) && slices.Equal(d.SymbolRanges, other.SymbolRanges)
}

// Hash combines the hashes of all ranges. Equal domains have equal hashes.
func (d Domain) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	write(int64(len(d.DimensionRanges)))
	for _, r := range d.DimensionRanges {
		write(r.LowerBound)
		write(r.UpperBound)
	}
	write(int64(len(d.SymbolRanges)))
	for _, r := range d.SymbolRanges {
		write(r.LowerBound)
		write(r.UpperBound)
	}
	return h.Sum64()
}

// IsEmpty returns whether any of the ranges is empty, in which case the domain holds no points.
func (d Domain) IsEmpty() bool {
	return slices.ContainsFunc(d.DimensionRanges, Range.IsEmpty) || slices.ContainsFunc(d.SymbolRanges, Range.IsEmpty)
}

// Validate returns an ErrInvalidArgument error for every range whose lower bound is larger than its upper bound.
func (d Domain) Validate() error {
	var err error
	for ii, r := range d.DimensionRanges {
		if r.LowerBound > r.UpperBound {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidArgument, "range of d%d %s has lower bound > upper bound", ii, r))
		}
	}
	for ii, r := range d.SymbolRanges {
		if r.LowerBound > r.UpperBound {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidArgument, "range of s%d %s has lower bound > upper bound", ii, r))
		}
	}
	return err
}
