// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package affine

import (
	"github.com/gomlx/exceptions"
)

// Context builds canonical affine expressions and maps.
//
// It memoizes the canonical form of every expression it has built, so repeated analyses over the same graph reuse
// the work. It is not safe for concurrent use: concurrent analyses must each use their own Context, or serialize
// access to a shared one.
type Context struct {
	canonical map[Expr]Expr
}

// NewContext returns a new empty Context.
func NewContext() *Context {
	return &Context{canonical: make(map[Expr]Expr)}
}

// Len returns the number of memoized canonical expressions.
func (ctx *Context) Len() int { return len(ctx.canonical) }

// Canonicalize returns the canonical form of e.
func (ctx *Context) Canonicalize(e Expr) Expr {
	switch e.(type) {
	case Constant, Dim, Symbol:
		return e
	}
	if c, found := ctx.canonical[e]; found {
		return c
	}
	c := p2e(e2p(e))
	ctx.canonical[e] = c
	ctx.canonical[c] = c
	return c
}

// Constant returns the constant expression v.
func (ctx *Context) Constant(v int64) Expr { return Constant{Value: v} }

// Dim returns the dimension variable d_{position}.
func (ctx *Context) Dim(position int) Expr {
	if position < 0 {
		exceptions.Panicf("affine: invalid dimension position %d", position)
	}
	return Dim{Position: position}
}

// Symbol returns the symbol variable s_{position}.
func (ctx *Context) Symbol(position int) Expr {
	if position < 0 {
		exceptions.Panicf("affine: invalid symbol position %d", position)
	}
	return Symbol{Position: position}
}

// Add returns the canonical form of the sum of the given expressions. Add() with no arguments returns 0.
func (ctx *Context) Add(terms ...Expr) Expr {
	var sum Expr = Constant{0}
	for ii, t := range terms {
		if ii == 0 {
			sum = t
			continue
		}
		sum = Binary{Op: KindAdd, LHS: sum, RHS: t}
	}
	return ctx.Canonicalize(sum)
}

// AddConst returns the canonical form of lhs + c.
func (ctx *Context) AddConst(lhs Expr, c int64) Expr {
	return ctx.Add(lhs, Constant{c})
}

// Sub returns the canonical form of lhs - rhs.
func (ctx *Context) Sub(lhs, rhs Expr) Expr {
	return ctx.Canonicalize(Binary{Op: KindAdd, LHS: lhs, RHS: Binary{Op: KindMul, LHS: rhs, RHS: Constant{-1}}})
}

// Neg returns the canonical form of -e.
func (ctx *Context) Neg(e Expr) Expr {
	return ctx.MulConst(e, -1)
}

// Mul returns the canonical form of lhs * rhs.
//
// Products of two non-constant expressions are semi-affine: they are allowed (e.g. `stride * size` in symbolic
// tiles) but are not pure affine, see IsPureAffine.
func (ctx *Context) Mul(lhs, rhs Expr) Expr {
	return ctx.Canonicalize(Binary{Op: KindMul, LHS: lhs, RHS: rhs})
}

// MulConst returns the canonical form of lhs * c.
func (ctx *Context) MulConst(lhs Expr, c int64) Expr {
	return ctx.Mul(lhs, Constant{c})
}

// FloorDiv returns the canonical form of `lhs floordiv c`. It panics if c <= 0.
func (ctx *Context) FloorDiv(lhs Expr, c int64) Expr {
	return ctx.Canonicalize(Binary{Op: KindFloorDiv, LHS: lhs, RHS: Constant{c}})
}

// CeilDiv returns the canonical form of `lhs ceildiv c`. It panics if c <= 0.
func (ctx *Context) CeilDiv(lhs Expr, c int64) Expr {
	return ctx.Canonicalize(Binary{Op: KindCeilDiv, LHS: lhs, RHS: Constant{c}})
}

// Mod returns the canonical form of `lhs mod c`. It panics if c <= 0.
func (ctx *Context) Mod(lhs Expr, c int64) Expr {
	return ctx.Canonicalize(Binary{Op: KindMod, LHS: lhs, RHS: Constant{c}})
}

// Replace substitutes every d_i in e by dims[i] and every s_j by symbols[j], and returns the canonical result.
// Variables whose position is beyond the given slices are left untouched.
func (ctx *Context) Replace(e Expr, dims, symbols []Expr) Expr {
	return ctx.Canonicalize(replace(e, dims, symbols))
}

func replace(e Expr, dims, symbols []Expr) Expr {
	switch x := e.(type) {
	case Dim:
		if x.Position < len(dims) {
			return dims[x.Position]
		}
	case Symbol:
		if x.Position < len(symbols) {
			return symbols[x.Position]
		}
	case Binary:
		return Binary{Op: x.Op, LHS: replace(x.LHS, dims, symbols), RHS: replace(x.RHS, dims, symbols)}
	}
	return e
}
