// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package indexing

import (
	"testing"

	"github.com/gomlx/tileanalysis/pkg/core/affine"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestRange(t *testing.T) {
	r := Range{LowerBound: 2, UpperBound: 5}
	require.Equal(t, "[2, 5)", r.String())
	require.Equal(t, int64(3), r.Size())
	require.True(t, r.Contains(2))
	require.False(t, r.Contains(5))
	require.False(t, r.IsPoint())
	require.True(t, Range{7, 8}.IsPoint())
	require.True(t, Range{7, 7}.IsEmpty())
	require.Equal(t, int64(0), Range{9, 7}.Size())
	require.Equal(t, Range{3, 5}, r.Intersect(Range{3, 10}))
	require.True(t, r.Intersect(Range{6, 10}).IsEmpty())
}

func TestDomain(t *testing.T) {
	domain := FromUpperBounds([]int{150, 10}, []int{20, 50})
	require.Equal(t, []Range{{0, 150}, {0, 10}}, domain.DimensionRanges)
	require.Equal(t, []Range{{0, 20}, {0, 50}}, domain.SymbolRanges)
	require.Equal(t, "d0 in [0, 150)\nd1 in [0, 10)\ns0 in [0, 20)\ns1 in [0, 50)", domain.String())
	require.NoError(t, domain.Validate())
	require.False(t, domain.IsEmpty())

	same := FromUpperBounds([]int64{150, 10}, []int64{20, 50})
	require.True(t, domain.Equal(same))
	require.Equal(t, domain.Hash(), same.Hash())

	other := same.Clone()
	other.SymbolRanges[1] = Range{1, 50}
	require.False(t, domain.Equal(other))
	require.Equal(t, Range{0, 50}, same.SymbolRanges[1], "Clone must not share ranges")

	// Moving a range from the dimensions to the symbols changes the domain.
	require.NotEqual(t, FromUpperBounds([]int{3}, []int{}).Hash(), FromUpperBounds([]int{}, []int{3}).Hash())

	bad := Domain{DimensionRanges: []Range{{3, 1}}, SymbolRanges: []Range{{0, 1}, {5, 2}}}
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Len(t, multierr.Errors(err), 2)
}

func TestIndexingMap(t *testing.T) {
	ctx := affine.NewContext()
	d0, d1, s0 := ctx.Dim(0), ctx.Dim(1), ctx.Symbol(0)
	m := NewIndexingMap(ctx.NewMap(2, 1, d0, s0, d1), []int{150, 10}, []int{20})
	require.NoError(t, m.Validate())
	require.Equal(t, "(d0, d1)[s0] -> (d0, s0, d1)\ndomain:\nd0 in [0, 150)\nd1 in [0, 10)\ns0 in [0, 20)", m.String())
	require.Equal(t, []int64{3, 4, 5}, must.M1(m.Evaluate([]int64{3, 5}, []int64{4})))
	_, err := m.Evaluate([]int64{150, 0}, []int64{0})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.Evaluate([]int64{0}, []int64{0})
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Equal maps built independently.
	same := NewIndexingMap(ctx.NewMap(2, 1, ctx.Dim(0), ctx.Symbol(0), ctx.Dim(1)), []int{150, 10}, []int{20})
	require.True(t, m.Equal(same))
	require.Equal(t, m.Hash(), same.Hash())
	require.Equal(t, m.Key(), same.Key())

	// Same map, different domain.
	smaller := NewIndexingMap(same.Map, []int{150, 10}, []int{19})
	require.False(t, m.Equal(smaller))
	require.NotEqual(t, m.Key(), smaller.Key())

	// Arity mismatches are reported together.
	wrong := IndexingMap{Map: m.Map, Domain: FromUpperBounds([]int{150}, []int{})}
	err = wrong.Validate()
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Len(t, multierr.Errors(err), 2)

	require.False(t, m.IsKnownEmpty())
	empty := m.Clone()
	empty.Domain.DimensionRanges[1] = Range{4, 4}
	require.True(t, empty.IsKnownEmpty())
	require.False(t, m.IsKnownEmpty(), "Clone must not share the domain")
}

func TestRemoveUnusedDimensions(t *testing.T) {
	ctx := affine.NewContext()
	m := NewIndexingMap(ctx.NewMap(3, 0, ctx.Dim(2), ctx.Constant(0)), []int{4, 5, 6}, nil)
	compressed, kept := m.RemoveUnusedDimensions(ctx)
	require.Equal(t, []int{2}, kept)
	require.Equal(t, "(d0) -> (d0, 0)\ndomain:\nd0 in [0, 6)", compressed.String())
}

func TestIndexingMapSet(t *testing.T) {
	ctx := affine.NewContext()
	a := NewIndexingMap(ctx.IdentityMap(1), []int{10}, nil)
	b := NewIndexingMap(ctx.NewMap(1, 0, ctx.AddConst(ctx.Dim(0), 1)), []int{10}, nil)
	set := NewIndexingMapSet(b, a, NewIndexingMap(ctx.IdentityMap(1), []int{10}, nil))
	require.Equal(t, 2, set.Len())
	require.True(t, set.Has(a))
	require.True(t, set.Has(b))
	require.False(t, set.Has(NewIndexingMap(ctx.IdentityMap(1), []int{11}, nil)))
	sorted := set.Sorted()
	require.True(t, sorted[0].Equal(b))
	require.True(t, sorted[1].Equal(a))
	require.Equal(t, "(d0) -> (d0 + 1)\ndomain:\nd0 in [0, 10)\n(d0) -> (d0)\ndomain:\nd0 in [0, 10)", set.String())
}

func TestSimplify(t *testing.T) {
	ctx := affine.NewContext()
	d0, d1, s0, s1 := ctx.Dim(0), ctx.Dim(1), ctx.Symbol(0), ctx.Symbol(1)

	// Folding of floordiv/mod by the domain bounds.
	linear := ctx.Add(ctx.MulConst(d0, 4), s0)
	m := NewIndexingMap(ctx.NewMap(1, 1, ctx.FloorDiv(linear, 4), ctx.Mod(linear, 4)), []int{10}, []int{4})
	require.True(t, m.Simplify(ctx))
	require.Equal(t, "(d0)[s0] -> (d0, s0)", m.Map.String())
	require.False(t, m.Simplify(ctx))

	// Point symbols are replaced, unused symbols removed with their ranges. Dimensions are kept.
	m = IndexingMap{
		Map: ctx.NewMap(2, 2, ctx.Add(d0, s1)),
		Domain: Domain{
			DimensionRanges: []Range{{0, 10}, {0, 3}},
			SymbolRanges:    []Range{{0, 5}, {3, 4}},
		},
	}
	require.True(t, m.Simplify(ctx))
	require.Equal(t, "(d0, d1) -> (d0 + 3)\ndomain:\nd0 in [0, 10)\nd1 in [0, 3)", m.String())
	require.False(t, m.Simplify(ctx))

	// Point dimensions stay as variables, while the floordiv of one is folded.
	m = IndexingMap{
		Map:    ctx.NewMap(1, 0, d0, ctx.FloorDiv(d0, 2)),
		Domain: Domain{DimensionRanges: []Range{{3, 4}}},
	}
	require.True(t, m.Simplify(ctx))
	require.Equal(t, "(d0) -> (d0, 1)\ndomain:\nd0 in [3, 4)", m.String())
	require.False(t, m.Simplify(ctx))

	// Splitting of sums whose remainder is bounded below the divisor.
	linear = ctx.Add(ctx.MulConst(d1, 8), s0)
	m = NewIndexingMap(ctx.NewMap(2, 1, ctx.FloorDiv(linear, 32), ctx.Mod(linear, 32)), []int{2, 100}, []int{8})
	require.True(t, m.Simplify(ctx))
	require.Equal(t, "(d0, d1)[s0] -> (d1 floordiv 4, s0 + (d1 mod 4) * 8)", m.Map.String())

	// Nothing to do.
	m = NewIndexingMap(ctx.NewMap(1, 0, ctx.FloorDiv(d0, 8)), []int{32}, nil)
	require.False(t, m.Simplify(ctx))

	// Empty domains are left alone.
	m = NewIndexingMap(ctx.NewMap(1, 0, ctx.FloorDiv(d0, 8)), []int{0}, nil)
	require.False(t, m.Simplify(ctx))
}

// forEachPoint calls fn with every point of the domain.
func forEachPoint(domain Domain, fn func(dims, symbols []int64)) {
	ranges := append(append([]Range(nil), domain.DimensionRanges...), domain.SymbolRanges...)
	if domain.IsEmpty() {
		return
	}
	point := make([]int64, len(ranges))
	for ii, r := range ranges {
		point[ii] = r.LowerBound
	}
	numDims := len(domain.DimensionRanges)
	for {
		fn(point[:numDims], point[numDims:])
		axis := len(point) - 1
		for ; axis >= 0; axis-- {
			point[axis]++
			if point[axis] < ranges[axis].UpperBound {
				break
			}
			point[axis] = ranges[axis].LowerBound
		}
		if axis < 0 {
			return
		}
	}
}

func TestSimplifyPreservesValues(t *testing.T) {
	ctx := affine.NewContext()
	d0, d1, s0 := ctx.Dim(0), ctx.Dim(1), ctx.Symbol(0)
	byFour := ctx.Add(ctx.MulConst(d0, 4), s0)
	byEight := ctx.Add(ctx.MulConst(d1, 8), s0)
	maps := []IndexingMap{
		NewIndexingMap(ctx.NewMap(2, 1,
			ctx.FloorDiv(byFour, 4), ctx.Mod(byFour, 4),
			ctx.FloorDiv(byEight, 32), ctx.Mod(byEight, 32),
			ctx.Add(ctx.FloorDiv(d1, 16), s0),
			ctx.CeilDiv(ctx.Add(d0, d1), 3),
		), []int{5, 6}, []int{4}),
		{
			Map: ctx.NewMap(2, 1, ctx.Mod(ctx.Add(d0, ctx.Constant(-3)), 5), ctx.FloorDiv(ctx.Sub(d1, s0), 2)),
			Domain: Domain{
				DimensionRanges: []Range{{3, 8}, {2, 7}},
				SymbolRanges:    []Range{{0, 3}},
			},
		},
		NewIndexingMap(ctx.NewMap(2, 1,
			ctx.Mod(ctx.Add(ctx.MulConst(d0, 6), ctx.MulConst(d1, 3), s0), 12),
			ctx.FloorDiv(ctx.Add(ctx.MulConst(d0, 6), ctx.MulConst(d1, 3), s0), 12),
		), []int{4, 2}, []int{3}),
	}
	for _, original := range maps {
		simplified := original.Clone()
		simplified.Simplify(ctx)
		require.Equal(t, original.Map.NumSymbols, simplified.Map.NumSymbols,
			"symbols of %s must all be kept for this test", original)
		forEachPoint(original.Domain, func(dims, symbols []int64) {
			want := original.Map.Evaluate(dims, symbols)
			got := must.M1(simplified.Evaluate(dims, symbols))
			require.Equal(t, want, got, "simplified %s to %s: values differ at dims=%v, symbols=%v",
				original.Map, simplified.Map, dims, symbols)
		})
		again := simplified.Clone()
		require.False(t, again.Simplify(ctx), "Simplify not idempotent for %s", simplified)
		require.True(t, again.Equal(simplified))
	}
}

func TestExpressionRange(t *testing.T) {
	ctx := affine.NewContext()
	d0, s0 := ctx.Dim(0), ctx.Symbol(0)
	domain := FromUpperBounds([]int{10}, []int{4})
	r, ok := ExpressionRange(ctx.Add(ctx.MulConst(d0, 4), s0), domain)
	require.True(t, ok)
	require.Equal(t, Range{0, 40}, r)
	r, ok = ExpressionRange(ctx.AddConst(ctx.Neg(d0), 9), domain)
	require.True(t, ok)
	require.Equal(t, Range{0, 10}, r)
	r, ok = ExpressionRange(ctx.Mod(d0, 3), domain)
	require.True(t, ok)
	require.Equal(t, Range{0, 3}, r)
	_, ok = ExpressionRange(ctx.Dim(1), domain)
	require.False(t, ok)
}
