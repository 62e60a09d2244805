// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package affine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Map is a function from NumDims dimension variables and NumSymbols symbol variables to len(Results) expressions:
//
//	(d0, ..., d_{NumDims-1})[s0, ..., s_{NumSymbols-1}] -> (Results[0], ..., Results[n-1])
//
// Maps built by a Context hold canonical results, and can be compared with Equal.
type Map struct {
	NumDims    int
	NumSymbols int
	Results    []Expr
}

// NewMap returns a Map with the canonical form of the given results.
//
// It panics if any result uses a dimension or symbol beyond numDims or numSymbols.
func (ctx *Context) NewMap(numDims, numSymbols int, results ...Expr) Map {
	m := Map{NumDims: numDims, NumSymbols: numSymbols, Results: make([]Expr, len(results))}
	for ii, r := range results {
		m.Results[ii] = ctx.Canonicalize(r)
	}
	if err := m.Validate(); err != nil {
		exceptions.Panicf("affine.NewMap: %v", err)
	}
	return m
}

// EmptyMap returns a map with no results, e.g. the indexing of a scalar from an N-dimensional iteration space.
func (ctx *Context) EmptyMap(numDims, numSymbols int) Map {
	return Map{NumDims: numDims, NumSymbols: numSymbols, Results: []Expr{}}
}

// IdentityMap returns (d0, ..., d_{rank-1}) -> (d0, ..., d_{rank-1}).
func (ctx *Context) IdentityMap(rank int) Map {
	results := make([]Expr, rank)
	for ii := range results {
		results[ii] = ctx.Dim(ii)
	}
	return Map{NumDims: rank, Results: results}
}

// ConstantMap returns a map whose results are the given constants, ignoring all its dimensions and symbols.
func (ctx *Context) ConstantMap(numDims, numSymbols int, values ...int64) Map {
	results := make([]Expr, len(values))
	for ii, v := range values {
		results[ii] = Constant{Value: v}
	}
	return Map{NumDims: numDims, NumSymbols: numSymbols, Results: results}
}

// PermutationMap returns (d0, ..., d_{n-1}) -> (d_{permutation[0]}, ..., d_{permutation[n-1]}).
func (ctx *Context) PermutationMap(permutation []int) Map {
	results := make([]Expr, len(permutation))
	for ii, p := range permutation {
		if p < 0 || p >= len(permutation) {
			exceptions.Panicf("affine.PermutationMap: invalid permutation %v", permutation)
		}
		results[ii] = ctx.Dim(p)
	}
	return Map{NumDims: len(permutation), Results: results}
}

// Validate checks that the results only use dimensions and symbols declared by the map.
func (m Map) Validate() error {
	for ii, r := range m.Results {
		var err error
		Walk(r, func(e Expr) bool {
			switch x := e.(type) {
			case Dim:
				if x.Position >= m.NumDims {
					err = errors.Errorf("result #%d (%s) uses d%d but map has only %d dimensions", ii, r, x.Position, m.NumDims)
				}
			case Symbol:
				if x.Position >= m.NumSymbols {
					err = errors.Errorf("result #%d (%s) uses s%d but map has only %d symbols", ii, r, x.Position, m.NumSymbols)
				}
			}
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// NumResults returns the number of result expressions.
func (m Map) NumResults() int { return len(m.Results) }

// Equal returns whether both maps have the same arity and structurally equal results.
func (m Map) Equal(other Map) bool {
	return m.NumDims == other.NumDims && m.NumSymbols == other.NumSymbols && slices.Equal(m.Results, other.Results)
}

// String implements fmt.Stringer, rendering the map as in `(d0, d1)[s0] -> (d0 + s0, d1)`.
func (m Map) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for ii := range m.NumDims {
		if ii > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "d%d", ii)
	}
	sb.WriteString(")")
	if m.NumSymbols > 0 {
		sb.WriteString("[")
		for ii := range m.NumSymbols {
			if ii > 0 {
				sb.WriteString(", ")
			}
			_, _ = fmt.Fprintf(&sb, "s%d", ii)
		}
		sb.WriteString("]")
	}
	sb.WriteString(" -> (")
	for ii, r := range m.Results {
		if ii > 0 {
			sb.WriteString(", ")
		}
		writeExpr(&sb, r)
	}
	sb.WriteString(")")
	return sb.String()
}

// Compose returns outer ∘ inner: the map that first applies inner, then feeds its results as the dimensions of outer.
//
// The result has inner.NumDims dimensions and outer.NumSymbols + inner.NumSymbols symbols, with the symbols of outer
// coming first. It panics if outer.NumDims != inner.NumResults().
func (ctx *Context) Compose(outer, inner Map) Map {
	if outer.NumDims != inner.NumResults() {
		exceptions.Panicf("affine.Compose: outer map %s has %d dimensions, but inner map %s has %d results",
			outer, outer.NumDims, inner, inner.NumResults())
	}
	shiftedSymbols := make([]Expr, inner.NumSymbols)
	for ii := range shiftedSymbols {
		shiftedSymbols[ii] = ctx.Symbol(outer.NumSymbols + ii)
	}
	innerResults := make([]Expr, inner.NumResults())
	for ii, r := range inner.Results {
		innerResults[ii] = ctx.Replace(r, nil, shiftedSymbols)
	}
	composed := Map{
		NumDims:    inner.NumDims,
		NumSymbols: outer.NumSymbols + inner.NumSymbols,
		Results:    make([]Expr, outer.NumResults()),
	}
	for ii, r := range outer.Results {
		composed.Results[ii] = ctx.Replace(r, innerResults, nil)
	}
	return composed
}

// ReplaceDimsAndSymbols substitutes the dimensions and symbols of m and returns a map with the given arity.
func (ctx *Context) ReplaceDimsAndSymbols(m Map, dims, symbols []Expr, numDims, numSymbols int) Map {
	replaced := Map{NumDims: numDims, NumSymbols: numSymbols, Results: make([]Expr, m.NumResults())}
	for ii, r := range m.Results {
		replaced.Results[ii] = ctx.Replace(r, dims, symbols)
	}
	return replaced
}

// UsedDims returns for each dimension whether it appears in any result.
func (m Map) UsedDims() []bool {
	used := make([]bool, m.NumDims)
	for _, r := range m.Results {
		Walk(r, func(e Expr) bool {
			if d, ok := e.(Dim); ok && d.Position < m.NumDims {
				used[d.Position] = true
			}
			return true
		})
	}
	return used
}

// UsedSymbols returns for each symbol whether it appears in any result.
func (m Map) UsedSymbols() []bool {
	used := make([]bool, m.NumSymbols)
	for _, r := range m.Results {
		Walk(r, func(e Expr) bool {
			if s, ok := e.(Symbol); ok && s.Position < m.NumSymbols {
				used[s.Position] = true
			}
			return true
		})
	}
	return used
}

// CompressSymbols removes the symbols for which keep is false, renumbering the remaining ones in order.
// It panics if a removed symbol is used by any result.
func (ctx *Context) CompressSymbols(m Map, keep []bool) Map {
	replacements := make([]Expr, m.NumSymbols)
	numKept := 0
	for ii := range m.NumSymbols {
		if keep[ii] {
			replacements[ii] = ctx.Symbol(numKept)
			numKept++
		} else {
			replacements[ii] = Constant{0}
		}
	}
	used := m.UsedSymbols()
	for ii := range m.NumSymbols {
		if !keep[ii] && used[ii] {
			exceptions.Panicf("affine.CompressSymbols: symbol s%d is used in %s", ii, m)
		}
	}
	return ctx.ReplaceDimsAndSymbols(m, nil, replacements, m.NumDims, numKept)
}

// CompressDims removes the dimensions for which keep is false, renumbering the remaining ones in order.
// It panics if a removed dimension is used by any result.
func (ctx *Context) CompressDims(m Map, keep []bool) Map {
	replacements := make([]Expr, m.NumDims)
	numKept := 0
	for ii := range m.NumDims {
		if keep[ii] {
			replacements[ii] = ctx.Dim(numKept)
			numKept++
		} else {
			replacements[ii] = Constant{0}
		}
	}
	used := m.UsedDims()
	for ii := range m.NumDims {
		if !keep[ii] && used[ii] {
			exceptions.Panicf("affine.CompressDims: dimension d%d is used in %s", ii, m)
		}
	}
	return ctx.ReplaceDimsAndSymbols(m, replacements, nil, numKept, m.NumSymbols)
}

// Evaluate returns the value of e at the given point.
func Evaluate(e Expr, dims, symbols []int64) int64 {
	switch x := e.(type) {
	case Constant:
		return x.Value
	case Dim:
		return dims[x.Position]
	case Symbol:
		return symbols[x.Position]
	case Binary:
		lhs, rhs := Evaluate(x.LHS, dims, symbols), Evaluate(x.RHS, dims, symbols)
		switch x.Op {
		case KindAdd:
			return lhs + rhs
		case KindMul:
			return lhs * rhs
		case KindMod:
			return Mod(lhs, rhs)
		case KindFloorDiv:
			return FloorDiv(lhs, rhs)
		case KindCeilDiv:
			return CeilDiv(lhs, rhs)
		}
	}
	exceptions.Panicf("affine.Evaluate: unknown expression %v", e)
	return 0
}

// Evaluate returns the results of m at the given point.
func (m Map) Evaluate(dims, symbols []int64) []int64 {
	if len(dims) != m.NumDims || len(symbols) != m.NumSymbols {
		exceptions.Panicf("affine.Map.Evaluate: map %s requires %d dimensions and %d symbols, got %d and %d",
			m, m.NumDims, m.NumSymbols, len(dims), len(symbols))
	}
	values := make([]int64, len(m.Results))
	for ii, r := range m.Results {
		values[ii] = Evaluate(r, dims, symbols)
	}
	return values
}
