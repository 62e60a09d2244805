// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package indexing

import (
	"slices"

	"github.com/gomlx/tileanalysis/pkg/core/affine"
	"k8s.io/klog/v2"
)

// maxSimplifyIterations bounds the number of bottom-up rewrite passes over each expression.
const maxSimplifyIterations = 16

// interval is a closed interval [lo, hi] of integers.
type interval struct {
	lo, hi int64
}

func (i interval) isPoint() bool { return i.lo == i.hi }

func (i interval) within(lo, hi int64) bool { return i.lo >= lo && i.hi <= hi }

// bounds returns the closed interval of values e can take over the domain. It returns false if e uses variables
// not in the domain, or if the domain is empty.
func bounds(e affine.Expr, domain Domain) (interval, bool) {
	switch x := e.(type) {
	case affine.Constant:
		return interval{x.Value, x.Value}, true
	case affine.Dim:
		if x.Position >= len(domain.DimensionRanges) {
			return interval{}, false
		}
		r := domain.DimensionRanges[x.Position]
		return interval{r.LowerBound, r.UpperBound - 1}, !r.IsEmpty()
	case affine.Symbol:
		if x.Position >= len(domain.SymbolRanges) {
			return interval{}, false
		}
		r := domain.SymbolRanges[x.Position]
		return interval{r.LowerBound, r.UpperBound - 1}, !r.IsEmpty()
	case affine.Binary:
		lhs, ok := bounds(x.LHS, domain)
		if !ok {
			return interval{}, false
		}
		rhs, ok := bounds(x.RHS, domain)
		if !ok {
			return interval{}, false
		}
		switch x.Op {
		case affine.KindAdd:
			return interval{lhs.lo + rhs.lo, lhs.hi + rhs.hi}, true
		case affine.KindMul:
			products := []int64{lhs.lo * rhs.lo, lhs.lo * rhs.hi, lhs.hi * rhs.lo, lhs.hi * rhs.hi}
			return interval{slices.Min(products), slices.Max(products)}, true
		}
		c := rhs.lo
		if !rhs.isPoint() || c <= 0 {
			return interval{}, false
		}
		switch x.Op {
		case affine.KindFloorDiv:
			return interval{affine.FloorDiv(lhs.lo, c), affine.FloorDiv(lhs.hi, c)}, true
		case affine.KindCeilDiv:
			return interval{affine.CeilDiv(lhs.lo, c), affine.CeilDiv(lhs.hi, c)}, true
		case affine.KindMod:
			if affine.FloorDiv(lhs.lo, c) == affine.FloorDiv(lhs.hi, c) {
				return interval{affine.Mod(lhs.lo, c), affine.Mod(lhs.hi, c)}, true
			}
			return interval{0, c - 1}, true
		}
	}
	return interval{}, false
}

// ExpressionRange returns the half-open range of values e can take over the domain, using interval arithmetic.
// The range may be larger than the exact set of values.
//
// It returns false if e uses a variable not in the domain, or if the domain is empty.
func ExpressionRange(e affine.Expr, domain Domain) (Range, bool) {
	b, ok := bounds(e, domain)
	if !ok {
		return Range{}, false
	}
	return Range{LowerBound: b.lo, UpperBound: b.hi + 1}, true
}

// simplifier rewrites expressions using the bounds of a domain.
type simplifier struct {
	ctx    *affine.Context
	domain Domain
}

// Simplify rewrites the map using the bounds of its domain, and returns whether anything changed:
//
//   - Symbols whose range holds a single value are replaced by that value.
//   - floordiv, ceildiv and mod sub-expressions that are constant over the domain are folded, as well as mod
//     of expressions already known to be within [0, c).
//   - (a*g + b) floordiv c, with g dividing c and b in [0, g), becomes (a*g) floordiv c. The equivalent rule is
//     applied to mod.
//   - Symbols no longer used by any result are removed, together with their ranges.
//
// Results are always kept in the canonical form of the affine package. Dimensions are never removed, since they
// define the iteration space, see RemoveUnusedDimensions. A dimension with a single value is not replaced either:
// only the sub-expressions using it that become constant are folded.
//
// Simplify is idempotent, and the simplified map computes the same values over the domain.
func (m *IndexingMap) Simplify(ctx *affine.Context) bool {
	if m.Domain.IsEmpty() {
		return false
	}
	s := &simplifier{ctx: ctx, domain: m.Domain}
	symbols := make([]affine.Expr, m.Map.NumSymbols)
	for ii := range symbols {
		if r := m.Domain.SymbolRanges[ii]; r.IsPoint() {
			symbols[ii] = ctx.Constant(r.LowerBound)
		} else {
			symbols[ii] = ctx.Symbol(ii)
		}
	}

	changed := false
	results := make([]affine.Expr, len(m.Map.Results))
	for ii, r := range m.Map.Results {
		simplified := ctx.Replace(r, nil, symbols)
		for range maxSimplifyIterations {
			next := s.rewrite(simplified)
			if next == simplified {
				break
			}
			simplified = next
		}
		if simplified != r {
			if klog.V(3).Enabled() {
				klog.Infof("indexing.Simplify: %s -> %s", r, simplified)
			}
			changed = true
		}
		results[ii] = simplified
	}
	m.Map = affine.Map{NumDims: m.Map.NumDims, NumSymbols: m.Map.NumSymbols, Results: results}

	used := m.Map.UsedSymbols()
	if slices.Contains(used, false) {
		m.Map = ctx.CompressSymbols(m.Map, used)
		ranges := make([]Range, 0, m.Map.NumSymbols)
		for ii, isUsed := range used {
			if isUsed {
				ranges = append(ranges, m.Domain.SymbolRanges[ii])
			}
		}
		m.Domain = Domain{DimensionRanges: m.Domain.DimensionRanges, SymbolRanges: ranges}
		changed = true
	}
	return changed
}

// rewrite does one bottom-up pass over e.
func (s *simplifier) rewrite(e affine.Expr) affine.Expr {
	b, ok := e.(affine.Binary)
	if !ok {
		return e
	}
	ctx := s.ctx
	lhs, rhs := s.rewrite(b.LHS), s.rewrite(b.RHS)
	switch b.Op {
	case affine.KindAdd:
		return ctx.Add(lhs, rhs)
	case affine.KindMul:
		return ctx.Mul(lhs, rhs)
	}
	c, _ := affine.ConstantValue(rhs)
	if lhsBounds, ok := bounds(lhs, s.domain); ok {
		qLo, qHi := affine.FloorDiv(lhsBounds.lo, c), affine.FloorDiv(lhsBounds.hi, c)
		switch b.Op {
		case affine.KindFloorDiv:
			if qLo == qHi {
				return ctx.Constant(qLo)
			}
		case affine.KindCeilDiv:
			if q := affine.CeilDiv(lhsBounds.lo, c); q == affine.CeilDiv(lhsBounds.hi, c) {
				return ctx.Constant(q)
			}
		case affine.KindMod:
			if qLo == qHi {
				return ctx.AddConst(lhs, -qLo*c)
			}
		}
	}
	if b.Op == affine.KindFloorDiv || b.Op == affine.KindMod {
		if simplified, ok := s.splitDivisible(b.Op, lhs, c); ok {
			return simplified
		}
	}
	return ctx.Canonicalize(affine.Binary{Op: b.Op, LHS: lhs, RHS: rhs})
}

// termCoefficient returns the constant coefficient of a term of a canonical sum.
func termCoefficient(term affine.Expr) int64 {
	if v, ok := affine.ConstantValue(term); ok {
		return v
	}
	factors := affine.ProductFactors(term)
	if v, ok := affine.ConstantValue(factors[len(factors)-1]); ok {
		return v
	}
	return 1
}

// splitDivisible implements (A + B) floordiv c = A floordiv c and (A + B) mod c = (A mod c) + B, where all
// coefficients of A are multiples of some g dividing c, and B is within [0, g).
func (s *simplifier) splitDivisible(op affine.Kind, lhs affine.Expr, c int64) (affine.Expr, bool) {
	terms := affine.SumTerms(lhs)
	if len(terms) < 2 {
		return nil, false
	}
	var candidates []int64
	for _, term := range terms {
		if g := affine.GCD(termCoefficient(term), c); g > 1 && !slices.Contains(candidates, g) {
			candidates = append(candidates, g)
		}
	}
	slices.Sort(candidates)
	slices.Reverse(candidates)
	for _, g := range candidates {
		var divisible, rest []affine.Expr
		for _, term := range terms {
			if termCoefficient(term)%g == 0 {
				divisible = append(divisible, term)
			} else {
				rest = append(rest, term)
			}
		}
		if len(divisible) == 0 || len(rest) == 0 {
			continue
		}
		restExpr := s.ctx.Add(rest...)
		restBounds, ok := bounds(restExpr, s.domain)
		if !ok || !restBounds.within(0, g-1) {
			continue
		}
		divisibleExpr := s.ctx.Add(divisible...)
		if op == affine.KindFloorDiv {
			return s.ctx.FloorDiv(divisibleExpr, c), true
		}
		return s.ctx.Add(s.ctx.Mod(divisibleExpr, c), restExpr), true
	}
	return nil, false
}
