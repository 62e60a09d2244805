// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tiling describes strided tiles of arrays with symbolic strides, offsets and sizes (SymbolicTile), and
// propagates them from the output of an instruction to its operands through the indexing maps of package indexing.
package tiling

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/tileanalysis/pkg/core/affine"
	"github.com/gomlx/tileanalysis/pkg/model/indexing"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Size is an optional resolved value of a size parameter of a tile.
type Size struct {
	value int64
	known bool
}

// KnownSize returns a resolved Size.
func KnownSize(value int64) Size { return Size{value: value, known: true} }

// Get returns the size and whether it is resolved.
func (s Size) Get() (int64, bool) { return s.value, s.known }

// String implements fmt.Stringer: the value, or "?" if not resolved.
func (s Size) String() string {
	if !s.known {
		return "?"
	}
	return strconv.FormatInt(s.value, 10)
}

// SymbolicTile is a tile of an array described by an affine map: for each axis, one result of the form
//
//	offset + stride * index
//
// where stride and offset are expressions of the dimension variables (the tile parameters) and index is a symbol
// ranging over [0, size).
//
// A tile built by NewSymbolicTile has two dimensions per axis i of the shape, d_{2i} for the stride and d_{2i+1} for
// the offset, and one size symbol s_i per axis. Propagating it through an indexing map keeps the dimensions and
// prepends the symbols of the indexing map.
//
// SymbolicTile is immutable: the slices returned by its accessors must not be modified.
type SymbolicTile struct {
	affineMap            affine.Map
	sizes                []Size
	maxSizes             []int64
	maxStridesAndOffsets []int64
}

// NewSymbolicTile returns a tile covering an array of the given dimensions, with one stride, one offset and one
// size parameter per axis. Sizes are left unresolved, and are bounded by the dimensions.
func NewSymbolicTile(ctx *affine.Context, dimensions []int) SymbolicTile {
	rank := len(dimensions)
	t := SymbolicTile{
		sizes:                make([]Size, rank),
		maxSizes:             make([]int64, rank),
		maxStridesAndOffsets: make([]int64, 0, 2*rank),
	}
	results := make([]affine.Expr, rank)
	for axis, dim := range dimensions {
		stride, offset := ctx.Dim(2*axis), ctx.Dim(2*axis+1)
		results[axis] = ctx.Add(ctx.Mul(stride, ctx.Symbol(axis)), offset)
		t.maxSizes[axis] = int64(dim)
		t.maxStridesAndOffsets = append(t.maxStridesAndOffsets, int64(dim), int64(dim))
	}
	t.affineMap = ctx.NewMap(2*rank, rank, results...)
	return t
}

// AffineMap returns the map from the tile parameters (dimensions) and indices (symbols) to the array indices.
func (t SymbolicTile) AffineMap() affine.Map { return t.affineMap }

// Sizes returns the size of each symbol, if resolved.
func (t SymbolicTile) Sizes() []Size { return t.sizes }

// MaxSizes returns the upper bound of the size of each symbol.
func (t SymbolicTile) MaxSizes() []int64 { return t.maxSizes }

// MaxStridesAndOffsets returns the (exclusive) upper bound of each dimension of the map.
func (t SymbolicTile) MaxStridesAndOffsets() []int64 { return t.maxStridesAndOffsets }

// WithSizes returns a copy of the tile with the sizes of its last len(sizes) symbols resolved: these are the size
// parameters of the tile it was propagated from. Each size must be within [1, max size].
func (t SymbolicTile) WithSizes(sizes ...int64) (SymbolicTile, error) {
	first := len(t.sizes) - len(sizes)
	if first < 0 {
		return SymbolicTile{}, errors.Wrapf(indexing.ErrInvalidArgument, "tile has %d size parameters, got %d sizes",
			len(t.sizes), len(sizes))
	}
	resolved := t
	resolved.sizes = slices.Clone(t.sizes)
	for ii, size := range sizes {
		maxSize := t.maxSizes[first+ii]
		if size < 1 || size > maxSize {
			return SymbolicTile{}, errors.Wrapf(indexing.ErrInvalidArgument, "size %d of s%d is out of range [1, %d]",
				size, first+ii, maxSize)
		}
		resolved.sizes[first+ii] = KnownSize(size)
	}
	return resolved, nil
}

// Domain returns the domain of the tile parameters: each dimension within its max stride or offset, and each
// symbol within its size, or its max size if not resolved.
func (t SymbolicTile) Domain() indexing.Domain {
	domain := indexing.FromUpperBounds(t.maxStridesAndOffsets, t.maxSizes)
	for ii, size := range t.sizes {
		if value, ok := size.Get(); ok {
			domain.SymbolRanges[ii].UpperBound = value
		}
	}
	return domain
}

// StridedExpression is a result of a tile map decomposed as Offset + Stride * s_Symbol.
// Symbol is -1 for results that don't depend on any symbol, in which case Stride is 0.
type StridedExpression struct {
	Offset, Stride affine.Expr
	Symbol         int
}

// product returns the canonical product of the factors, 1 if there are none.
func product(ctx *affine.Context, factors []affine.Expr) affine.Expr {
	result := ctx.Constant(1)
	for _, f := range factors {
		result = ctx.Mul(result, f)
	}
	return result
}

// decompose writes e as offset + stride * symbol, where neither offset nor stride use symbols.
func decompose(ctx *affine.Context, e affine.Expr) (StridedExpression, bool) {
	symbol := -1
	var strides, offsets []affine.Expr
	for _, term := range affine.SumTerms(e) {
		if !affine.HasSymbols(term) {
			offsets = append(offsets, term)
			continue
		}
		termSymbol := -1
		var coefficient []affine.Expr
		for _, factor := range affine.ProductFactors(term) {
			if s, ok := factor.(affine.Symbol); ok && termSymbol < 0 {
				termSymbol = s.Position
				continue
			}
			if affine.HasSymbols(factor) {
				return StridedExpression{}, false
			}
			coefficient = append(coefficient, factor)
		}
		if symbol >= 0 && termSymbol != symbol {
			return StridedExpression{}, false
		}
		symbol = termSymbol
		strides = append(strides, product(ctx, coefficient))
	}
	return StridedExpression{Offset: ctx.Add(offsets...), Stride: ctx.Add(strides...), Symbol: symbol}, true
}

// StridedExpressions returns the decomposition of each result of the tile map.
func (t SymbolicTile) StridedExpressions(ctx *affine.Context) []StridedExpression {
	expressions := make([]StridedExpression, len(t.affineMap.Results))
	for ii, r := range t.affineMap.Results {
		// Tiles only hold strided results.
		expressions[ii], _ = decompose(ctx, r)
	}
	return expressions
}

// Bounds returns, for each axis, the range of indices the tile can reach over its Domain. The range is an
// over-approximation, computed by interval arithmetic: bounds of strides multiply the bounds of the symbols, and
// bounds of offsets add up.
func (t SymbolicTile) Bounds() []indexing.Range {
	domain := t.Domain()
	bounds := make([]indexing.Range, len(t.affineMap.Results))
	for ii, r := range t.affineMap.Results {
		bounds[ii], _ = indexing.ExpressionRange(r, domain)
	}
	return bounds
}

// TryPropagateTileThroughIndexingMap returns the tile of the array indexed by indexingMap, if this tile is a tile of
// the array indexingMap is defined on.
//
// The map of the result is the composition of indexingMap.Map with this tile map: its symbols are the symbols of
// indexingMap followed by the symbols of this tile. Each symbol of indexingMap with range [lo, hi) is replaced by
// s + lo, so that, like every tile index, it ranges over [0, hi - lo), and its size is resolved to hi - lo.
//
// It returns false, not an error, if any result of the composition is not a strided expression, or if a symbol of
// indexingMap has an empty range.
func (t SymbolicTile) TryPropagateTileThroughIndexingMap(ctx *affine.Context, indexingMap indexing.IndexingMap) (
	SymbolicTile, bool) {
	if indexingMap.Map.NumDims != t.affineMap.NumResults() {
		klog.V(3).Infof("tiling: can't propagate a tile with %d results through %s", t.affineMap.NumResults(),
			indexingMap.Map)
		return SymbolicTile{}, false
	}
	shifted := make([]affine.Expr, len(indexingMap.Domain.SymbolRanges))
	for ii, r := range indexingMap.Domain.SymbolRanges {
		if r.IsEmpty() {
			klog.V(3).Infof("tiling: s%d has the empty range %s in %s", ii, r, indexingMap)
			return SymbolicTile{}, false
		}
		shifted[ii] = ctx.AddConst(ctx.Symbol(ii), r.LowerBound)
	}
	composed := ctx.Compose(indexingMap.Map, t.affineMap)
	composed = ctx.ReplaceDimsAndSymbols(composed, nil, shifted, composed.NumDims, composed.NumSymbols)
	for _, r := range composed.Results {
		if _, ok := decompose(ctx, r); !ok {
			klog.V(3).Infof("tiling: %s is not a strided expression in %s", r, composed)
			return SymbolicTile{}, false
		}
	}
	propagated := SymbolicTile{
		affineMap:            composed,
		sizes:                make([]Size, 0, composed.NumSymbols),
		maxSizes:             make([]int64, 0, composed.NumSymbols),
		maxStridesAndOffsets: slices.Clone(t.maxStridesAndOffsets),
	}
	for _, r := range indexingMap.Domain.SymbolRanges {
		propagated.sizes = append(propagated.sizes, KnownSize(r.Size()))
		propagated.maxSizes = append(propagated.maxSizes, r.Size())
	}
	propagated.sizes = append(propagated.sizes, t.sizes...)
	propagated.maxSizes = append(propagated.maxSizes, t.maxSizes...)
	return propagated, true
}

// String implements fmt.Stringer, e.g.:
//
//	(d0, d1)[s0] -> (d0 * s0 + d1)
//	sizes: [?]
//	max sizes: [8]
//	max strides and offsets: [8, 8]
func (t SymbolicTile) String() string {
	join := func(values []string) string { return "[" + strings.Join(values, ", ") + "]" }
	formatInts := func(values []int64) []string {
		texts := make([]string, len(values))
		for ii, v := range values {
			texts[ii] = strconv.FormatInt(v, 10)
		}
		return texts
	}
	sizes := make([]string, len(t.sizes))
	for ii, s := range t.sizes {
		sizes[ii] = s.String()
	}
	return fmt.Sprintf("%s\nsizes: %s\nmax sizes: %s\nmax strides and offsets: %s", t.affineMap,
		join(sizes), join(formatInts(t.maxSizes)), join(formatInts(t.maxStridesAndOffsets)))
}
