// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package affine

import (
	"cmp"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// monomial is coef * factors[0] * factors[1] * ..., where the factors are canonical atoms sorted by compareAtoms.
type monomial struct {
	factors []Expr
	coef    int64
}

// polynomial is the canonical (normal) form of an expression: a sum of monomials with distinct factor lists,
// sorted by compareMonomials, plus a constant.
type polynomial struct {
	terms    []monomial
	constant int64
}

// atomRank orders atoms: dimensions first (by position), then symbols (by position), then all other atoms.
func atomRank(e Expr) (rank, position int) {
	switch a := e.(type) {
	case Dim:
		return 0, a.Position
	case Symbol:
		return 1, a.Position
	}
	return 2, 0
}

func compareAtoms(a, b Expr) int {
	rankA, posA := atomRank(a)
	rankB, posB := atomRank(b)
	if c := cmp.Compare(rankA, rankB); c != 0 {
		return c
	}
	if c := cmp.Compare(posA, posB); c != 0 {
		return c
	}
	if rankA < 2 {
		return 0
	}
	return strings.Compare(a.String(), b.String())
}

func compareMonomials(a, b monomial) int {
	for ii := range min(len(a.factors), len(b.factors)) {
		if c := compareAtoms(a.factors[ii], b.factors[ii]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a.factors), len(b.factors))
}

func constantPoly(c int64) polynomial { return polynomial{constant: c} }

func atomPoly(atom Expr) polynomial {
	return polynomial{terms: []monomial{{factors: []Expr{atom}, coef: 1}}}
}

func (p polynomial) isConstant() bool { return len(p.terms) == 0 }

// normalize sorts the terms, merges equal factor lists and drops zero coefficients.
func (p polynomial) normalize() polynomial {
	slices.SortStableFunc(p.terms, compareMonomials)
	merged := make([]monomial, 0, len(p.terms))
	for _, t := range p.terms {
		if n := len(merged); n > 0 && compareMonomials(merged[n-1], t) == 0 {
			merged[n-1].coef += t.coef
			continue
		}
		merged = append(merged, t)
	}
	p.terms = slices.DeleteFunc(merged, func(t monomial) bool { return t.coef == 0 })
	return p
}

func addPoly(a, b polynomial) polynomial {
	terms := make([]monomial, 0, len(a.terms)+len(b.terms))
	terms = append(terms, a.terms...)
	terms = append(terms, b.terms...)
	return polynomial{terms: terms, constant: a.constant + b.constant}.normalize()
}

func scalePoly(p polynomial, c int64) polynomial {
	if c == 0 {
		return polynomial{}
	}
	terms := make([]monomial, len(p.terms))
	for ii, t := range p.terms {
		terms[ii] = monomial{factors: t.factors, coef: t.coef * c}
	}
	return polynomial{terms: terms, constant: p.constant * c}
}

func mergeFactors(a, b []Expr) []Expr {
	factors := make([]Expr, 0, len(a)+len(b))
	factors = append(factors, a...)
	factors = append(factors, b...)
	slices.SortStableFunc(factors, compareAtoms)
	return factors
}

func mulPoly(a, b polynomial) polynomial {
	var terms []monomial
	for _, ta := range a.terms {
		for _, tb := range b.terms {
			terms = append(terms, monomial{factors: mergeFactors(ta.factors, tb.factors), coef: ta.coef * tb.coef})
		}
		if b.constant != 0 {
			terms = append(terms, monomial{factors: ta.factors, coef: ta.coef * b.constant})
		}
	}
	if a.constant != 0 {
		for _, tb := range b.terms {
			terms = append(terms, monomial{factors: tb.factors, coef: tb.coef * a.constant})
		}
	}
	return polynomial{terms: terms, constant: a.constant * b.constant}.normalize()
}

// coefficientsGCD returns the gcd of all coefficients, the constant and c.
func (p polynomial) coefficientsGCD(c int64) int64 {
	g := GCD(c, p.constant)
	for _, t := range p.terms {
		g = GCD(g, t.coef)
	}
	return g
}

func (p polynomial) divideExactly(g int64) polynomial {
	terms := make([]monomial, len(p.terms))
	for ii, t := range p.terms {
		terms[ii] = monomial{factors: t.factors, coef: t.coef / g}
	}
	return polynomial{terms: terms, constant: p.constant / g}
}

// divPoly returns the canonical polynomial of `p op c`, for op one of KindMod, KindFloorDiv or KindCeilDiv.
func divPoly(op Kind, p polynomial, c int64) polynomial {
	if c <= 0 {
		exceptions.Panicf("affine: right-hand side of %s must be a positive constant, got %d", op, c)
	}
	if p.isConstant() {
		switch op {
		case KindMod:
			return constantPoly(Mod(p.constant, c))
		case KindFloorDiv:
			return constantPoly(FloorDiv(p.constant, c))
		default:
			return constantPoly(CeilDiv(p.constant, c))
		}
	}
	if c == 1 {
		if op == KindMod {
			return polynomial{}
		}
		return p
	}

	if op == KindMod {
		// (c*q + r) mod c == r mod c: reduce every coefficient modulo c.
		rest := polynomial{constant: Mod(p.constant, c)}
		for _, t := range p.terms {
			rest.terms = append(rest.terms, monomial{factors: t.factors, coef: Mod(t.coef, c)})
		}
		rest = rest.normalize()
		if rest.isConstant() {
			return rest
		}
		// (g*a) mod (g*m) == g * (a mod m).
		if g := rest.coefficientsGCD(c); g > 1 {
			return scalePoly(divPoly(KindMod, rest.divideExactly(g), c/g), g)
		}
		return atomPoly(Binary{Op: KindMod, LHS: p2e(rest), RHS: Constant{c}})
	}

	// Floor and ceil division: floor((c*q + r)/c) == q + floor(r/c), and the same for ceil.
	quotient := polynomial{constant: FloorDiv(p.constant, c)}
	rest := polynomial{constant: Mod(p.constant, c)}
	for _, t := range p.terms {
		if t.coef%c == 0 {
			quotient.terms = append(quotient.terms, monomial{factors: t.factors, coef: t.coef / c})
		} else {
			rest.terms = append(rest.terms, t)
		}
	}
	quotient = quotient.normalize()
	if rest.isConstant() {
		return addPoly(quotient, divPoly(op, rest, c))
	}
	if g := rest.coefficientsGCD(c); g > 1 {
		rest = rest.divideExactly(g)
		c /= g
		if c == 1 {
			return addPoly(quotient, rest)
		}
	}
	if op == KindFloorDiv && rest.constant == 0 && len(rest.terms) == 1 && rest.terms[0].coef == 1 &&
		len(rest.terms[0].factors) == 1 {
		// (x floordiv a) floordiv c == x floordiv (a*c).
		if inner, ok := rest.terms[0].factors[0].(Binary); ok && inner.Op == KindFloorDiv {
			a := inner.RHS.(Constant).Value
			return addPoly(quotient, divPoly(KindFloorDiv, e2p(inner.LHS), a*c))
		}
	}
	return addPoly(quotient, atomPoly(Binary{Op: op, LHS: p2e(rest), RHS: Constant{c}}))
}

// e2p converts any expression to its canonical polynomial.
func e2p(e Expr) polynomial {
	switch x := e.(type) {
	case Constant:
		return constantPoly(x.Value)
	case Dim, Symbol:
		return atomPoly(x)
	case Binary:
		switch x.Op {
		case KindAdd:
			return addPoly(e2p(x.LHS), e2p(x.RHS))
		case KindMul:
			return mulPoly(e2p(x.LHS), e2p(x.RHS))
		default:
			rhs := e2p(x.RHS)
			if !rhs.isConstant() {
				exceptions.Panicf("affine: right-hand side of %s must be a constant, got %s", x.Op, x.RHS)
			}
			return divPoly(x.Op, e2p(x.LHS), rhs.constant)
		}
	}
	exceptions.Panicf("affine: unknown expression type %T", e)
	return polynomial{}
}

// p2e builds the canonical expression tree of p: a left-associated sum of monomials, each a left-associated product
// of its factors followed by its coefficient (if not 1), with the constant (if not 0) as the last term.
func p2e(p polynomial) Expr {
	var sum Expr
	for _, t := range p.terms {
		var term Expr
		for _, f := range t.factors {
			if term == nil {
				term = f
			} else {
				term = Binary{Op: KindMul, LHS: term, RHS: f}
			}
		}
		if t.coef != 1 {
			term = Binary{Op: KindMul, LHS: term, RHS: Constant{t.coef}}
		}
		if sum == nil {
			sum = term
		} else {
			sum = Binary{Op: KindAdd, LHS: sum, RHS: term}
		}
	}
	if sum == nil {
		return Constant{p.constant}
	}
	if p.constant != 0 {
		sum = Binary{Op: KindAdd, LHS: sum, RHS: Constant{p.constant}}
	}
	return sum
}
