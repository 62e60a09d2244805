// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package affine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegerDivisions(t *testing.T) {
	require.Equal(t, int64(3), FloorDiv[int64](7, 2))
	require.Equal(t, int64(-4), FloorDiv[int64](-7, 2))
	require.Equal(t, int64(4), CeilDiv[int64](7, 2))
	require.Equal(t, int64(-3), CeilDiv[int64](-7, 2))
	require.Equal(t, int64(1), Mod[int64](-7, 2))
	require.Equal(t, int64(0), Mod[int64](-8, 4))
	require.Equal(t, int64(6), GCD[int64](-12, 18))
	require.Equal(t, int64(5), GCD[int64](0, 5))
}

func TestCanonicalForm(t *testing.T) {
	ctx := NewContext()
	d0, d1, s0 := ctx.Dim(0), ctx.Dim(1), ctx.Symbol(0)

	require.Equal(t, "d0 * 4 + d1 + 3", ctx.Add(d1, ctx.MulConst(d0, 4), ctx.Constant(3)).String())
	require.Equal(t, "d0 * 2", ctx.Add(d0, d0).String())
	require.Equal(t, "0", ctx.Sub(d0, d0).String())
	require.Equal(t, "d0 - d1", ctx.Sub(d0, d1).String())
	require.Equal(t, "-d1 + 16", ctx.AddConst(ctx.Neg(d1), 16).String())
	require.Equal(t, "d0 + s0", ctx.Add(s0, d0).String())
	require.Equal(t, "d0 * s0 + d1", ctx.Add(d1, ctx.Mul(s0, d0)).String())
	require.Equal(t, "d0 * 3 + d1 * 3", ctx.MulConst(ctx.Add(d0, d1), 3).String())

	// Same polynomial built in different ways is the very same canonical expression.
	a := ctx.Add(ctx.MulConst(d0, 2), d1, ctx.Constant(1))
	b := ctx.Sub(ctx.Add(d1, d0, d0, ctx.Constant(3)), ctx.Constant(2))
	require.True(t, a == b)
	require.Equal(t, a.String(), b.String())
	require.NotEqual(t, ctx.Add(d0, d1), ctx.Add(d0, s0))
}

func TestDivisionsCanonicalForm(t *testing.T) {
	ctx := NewContext()
	d0, d1 := ctx.Dim(0), ctx.Dim(1)
	linear := ctx.Add(ctx.MulConst(d0, 8), d1)

	require.Equal(t, "d0 + d1 floordiv 8", ctx.FloorDiv(linear, 8).String())
	require.Equal(t, "d1 mod 8", ctx.Mod(linear, 8).String())
	require.Equal(t, "d0 + d1 ceildiv 8", ctx.CeilDiv(linear, 8).String())
	require.Equal(t, "(d0 + 1) ceildiv 2", ctx.CeilDiv(ctx.AddConst(ctx.MulConst(d0, 2), 2), 4).String())
	require.Equal(t, "d0 floordiv 2", ctx.FloorDiv(ctx.MulConst(d0, 4), 8).String())
	require.Equal(t, "(d0 mod 2) * 4", ctx.Mod(ctx.MulConst(d0, 4), 8).String())
	require.Equal(t, "d0 floordiv 6", ctx.FloorDiv(ctx.FloorDiv(d0, 2), 3).String())
	require.Equal(t, "d0", ctx.FloorDiv(d0, 1).String())
	require.Equal(t, "0", ctx.Mod(d0, 1).String())
	require.Equal(t, "-4", ctx.FloorDiv(ctx.Constant(-7), 2).String())
	require.Equal(t, "(d0 - d1) floordiv 2", ctx.FloorDiv(ctx.Sub(d0, d1), 2).String())

	require.Panics(t, func() { ctx.FloorDiv(d0, 0) })
	require.Panics(t, func() { ctx.Mod(d0, -2) })
	require.Panics(t, func() { ctx.Canonicalize(Binary{Op: KindMod, LHS: d0, RHS: d1}) })
}

// randomExpr builds a non-canonical expression tree over 2 dimensions and 1 symbol.
func randomExpr(rng *rand.Rand, depth int) Expr {
	if depth == 0 || rng.Intn(4) == 0 {
		switch rng.Intn(4) {
		case 0:
			return Constant{Value: int64(rng.Intn(11) - 5)}
		case 1:
			return Dim{Position: 0}
		case 2:
			return Dim{Position: 1}
		default:
			return Symbol{Position: 0}
		}
	}
	switch rng.Intn(5) {
	case 0:
		return Binary{Op: KindAdd, LHS: randomExpr(rng, depth-1), RHS: randomExpr(rng, depth-1)}
	case 1:
		return Binary{Op: KindMul, LHS: randomExpr(rng, depth-1), RHS: Constant{Value: int64(rng.Intn(7) - 3)}}
	case 2:
		return Binary{Op: KindMod, LHS: randomExpr(rng, depth-1), RHS: Constant{Value: int64(rng.Intn(5) + 1)}}
	case 3:
		return Binary{Op: KindFloorDiv, LHS: randomExpr(rng, depth-1), RHS: Constant{Value: int64(rng.Intn(5) + 1)}}
	default:
		return Binary{Op: KindCeilDiv, LHS: randomExpr(rng, depth-1), RHS: Constant{Value: int64(rng.Intn(5) + 1)}}
	}
}

func TestCanonicalizePreservesValues(t *testing.T) {
	ctx := NewContext()
	rng := rand.New(rand.NewSource(42))
	for range 500 {
		raw := randomExpr(rng, 4)
		canonical := ctx.Canonicalize(raw)
		require.True(t, canonical == ctx.Canonicalize(canonical), "canonical form of %s is not stable", raw)
		for d0 := int64(-3); d0 <= 5; d0++ {
			for d1 := int64(-2); d1 <= 4; d1 += 3 {
				for s0 := int64(0); s0 <= 6; s0 += 2 {
					dims, symbols := []int64{d0, d1}, []int64{s0}
					require.Equal(t, Evaluate(raw, dims, symbols), Evaluate(canonical, dims, symbols),
						"raw=%s, canonical=%s, d0=%d, d1=%d, s0=%d", raw, canonical, d0, d1, s0)
				}
			}
		}
	}
}

func TestMap(t *testing.T) {
	ctx := NewContext()
	d0, d1, s0 := ctx.Dim(0), ctx.Dim(1), ctx.Symbol(0)

	m := ctx.NewMap(2, 1, ctx.Add(d0, s0), d1)
	require.Equal(t, "(d0, d1)[s0] -> (d0 + s0, d1)", m.String())
	require.Equal(t, []int64{7, 3}, m.Evaluate([]int64{5, 3}, []int64{2}))
	require.True(t, m.Equal(ctx.NewMap(2, 1, ctx.Add(s0, d0), d1)))
	require.False(t, m.Equal(ctx.NewMap(2, 2, ctx.Add(s0, d0), d1)))
	require.Equal(t, "() -> ()", ctx.EmptyMap(0, 0).String())
	require.Equal(t, "(d0, d1, d2) -> (d2, d0, d1)", ctx.PermutationMap([]int{2, 0, 1}).String())
	require.Equal(t, "(d0, d1) -> (d0, d1)", ctx.IdentityMap(2).String())
	require.Equal(t, "(d0)[s0] -> (3, 0)", ctx.ConstantMap(1, 1, 3, 0).String())

	require.Panics(t, func() { ctx.NewMap(1, 0, d1) })
	require.Panics(t, func() { ctx.NewMap(2, 0, s0) })
	require.Panics(t, func() { ctx.PermutationMap([]int{0, 2}) })
}

func TestCompose(t *testing.T) {
	ctx := NewContext()
	d0, d1, s0 := ctx.Dim(0), ctx.Dim(1), ctx.Symbol(0)

	outer := ctx.NewMap(2, 1, ctx.Add(d0, s0), d1)
	inner := ctx.NewMap(1, 1, ctx.MulConst(d0, 2), s0)
	composed := ctx.Compose(outer, inner)
	require.Equal(t, "(d0)[s0, s1] -> (d0 * 2 + s0, s1)", composed.String())

	// Composing with the identity is a no-op.
	require.True(t, outer.Equal(ctx.Compose(outer, ctx.IdentityMap(2))))

	// Permutation composed with its inverse is the identity.
	perm := ctx.PermutationMap([]int{1, 2, 0})
	inverse := ctx.PermutationMap([]int{2, 0, 1})
	require.True(t, ctx.IdentityMap(3).Equal(ctx.Compose(perm, inverse)))

	require.Panics(t, func() { ctx.Compose(outer, ctx.IdentityMap(3)) })
}

func TestCompress(t *testing.T) {
	ctx := NewContext()
	d0, d2, s1 := ctx.Dim(0), ctx.Dim(2), ctx.Symbol(1)
	m := ctx.NewMap(3, 2, ctx.Add(d0, s1), d2)
	require.Equal(t, []bool{true, false, true}, m.UsedDims())
	require.Equal(t, []bool{false, true}, m.UsedSymbols())

	compressed := ctx.CompressSymbols(m, m.UsedSymbols())
	require.Equal(t, "(d0, d1, d2)[s0] -> (d0 + s0, d2)", compressed.String())
	compressed = ctx.CompressDims(compressed, compressed.UsedDims())
	require.Equal(t, "(d0, d1)[s0] -> (d0 + s0, d1)", compressed.String())

	require.Panics(t, func() { ctx.CompressSymbols(m, []bool{true, false}) })
}

func TestExprHelpers(t *testing.T) {
	ctx := NewContext()
	d0, d1, s0 := ctx.Dim(0), ctx.Dim(1), ctx.Symbol(0)
	e := ctx.Add(ctx.Mul(d0, s0), ctx.MulConst(d1, 3), ctx.Constant(2))

	require.Len(t, SumTerms(e), 3)
	require.Equal(t, []Expr{d0, s0}, ProductFactors(SumTerms(e)[0]))
	require.True(t, UsesDim(e, 1))
	require.False(t, UsesDim(e, 2))
	require.True(t, UsesSymbol(e, 0))
	require.True(t, HasSymbols(e))
	require.False(t, IsPureAffine(e))
	require.True(t, IsPureAffine(ctx.FloorDiv(ctx.Add(d0, d1), 4)))
	v, ok := ConstantValue(ctx.Add(ctx.Constant(2), ctx.Constant(3)))
	require.True(t, ok)
	require.Equal(t, int64(5), v)
	require.Equal(t, "FloorDiv", KindFloorDiv.String())
	require.Equal(t, "-d0 * s0 - d1 * 3 - 2", ctx.Neg(e).String())
}
