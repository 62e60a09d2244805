// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package affine implements affine (and semi-affine) integer expressions and maps over dimension and symbol
// variables, in the style of MLIR's affine dialect:
//
//	(d0, d1)[s0] -> (d0 * 4 + s0, d1 floordiv 2)
//
// Expressions are immutable values built through a Context, which returns them in a canonical form: two expressions
// that are equal as polynomials over the same atoms (dimensions, symbols and floordiv/mod/ceildiv sub-expressions)
// are represented by the exact same tree, and hence can be compared with `==` and used as map keys.
//
// ## Glossary
//
//   - Dimension (`d_i`): a variable that iterates over the index space of the tensor being indexed.
//   - Symbol (`s_j`): a free variable not tied to the iteration space, e.g. the position inside a reduced axis.
//   - Atom: a Dim, a Symbol, or a floordiv/mod/ceildiv node, the units the canonical polynomial is built from.
package affine

import (
	"fmt"
	"strings"
)

// Kind of affine expression.
type Kind int

const (
	KindConstant Kind = iota
	KindDim
	KindSymbol
	KindAdd
	KindMul
	KindMod
	KindFloorDiv
	KindCeilDiv
)

var kindNames = []string{"Constant", "Dim", "Symbol", "Add", "Mul", "Mod", "FloorDiv", "CeilDiv"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsBinary returns whether the kind is one of the binary operations.
func (k Kind) IsBinary() bool { return k >= KindAdd }

// Expr is an affine expression. The concrete types are Constant, Dim, Symbol and Binary.
//
// All concrete types are comparable values, so two expressions can be compared with `==`, which is a structural
// comparison. For canonical expressions (anything returned by Context) structural equality is the same as algebraic
// equality.
type Expr interface {
	fmt.Stringer

	// Kind of the expression.
	Kind() Kind

	isExpr()
}

// Constant integer expression.
type Constant struct {
	Value int64
}

// Dim is the dimension variable d_{Position}.
type Dim struct {
	Position int
}

// Symbol is the symbol variable s_{Position}.
type Symbol struct {
	Position int
}

// Binary is an operation over two expressions. For KindMod, KindFloorDiv and KindCeilDiv the RHS is a positive
// Constant.
type Binary struct {
	Op       Kind
	LHS, RHS Expr
}

func (Constant) isExpr() {}
func (Dim) isExpr()      {}
func (Symbol) isExpr()   {}
func (Binary) isExpr()   {}

// Kind implements Expr.
func (Constant) Kind() Kind { return KindConstant }

// Kind implements Expr.
func (Dim) Kind() Kind { return KindDim }

// Kind implements Expr.
func (Symbol) Kind() Kind { return KindSymbol }

// Kind implements Expr.
func (b Binary) Kind() Kind { return b.Op }

// String implements fmt.Stringer.
func (c Constant) String() string { return fmt.Sprintf("%d", c.Value) }

// String implements fmt.Stringer.
func (d Dim) String() string { return fmt.Sprintf("d%d", d.Position) }

// String implements fmt.Stringer.
func (s Symbol) String() string { return fmt.Sprintf("s%d", s.Position) }

// String implements fmt.Stringer.
func (b Binary) String() string {
	var sb strings.Builder
	writeExpr(&sb, b)
	return sb.String()
}

// negatedTerm returns -term if term is a negative constant or a product with a negative constant as its last factor.
func negatedTerm(term Expr) (Expr, bool) {
	switch t := term.(type) {
	case Constant:
		if t.Value < 0 {
			return Constant{-t.Value}, true
		}
	case Binary:
		if t.Op != KindMul {
			return nil, false
		}
		c, ok := t.RHS.(Constant)
		if !ok || c.Value >= 0 {
			return nil, false
		}
		if c.Value == -1 {
			return t.LHS, true
		}
		return Binary{Op: KindMul, LHS: t.LHS, RHS: Constant{-c.Value}}, true
	}
	return nil, false
}

func writeExpr(sb *strings.Builder, e Expr) {
	b, ok := e.(Binary)
	if !ok {
		sb.WriteString(e.String())
		return
	}
	switch b.Op {
	case KindAdd:
		writeExpr(sb, b.LHS)
		if neg, isNeg := negatedTerm(b.RHS); isNeg {
			sb.WriteString(" - ")
			writeOperand(sb, neg, KindAdd)
		} else {
			sb.WriteString(" + ")
			writeOperand(sb, b.RHS, KindAdd)
		}
	case KindMul:
		if c, isConst := b.RHS.(Constant); isConst && c.Value == -1 {
			sb.WriteString("-")
			writeOperand(sb, b.LHS, KindMul)
			return
		}
		writeOperand(sb, b.LHS, KindMul)
		sb.WriteString(" * ")
		writeOperand(sb, b.RHS, KindMul)
	default:
		writeOperand(sb, b.LHS, b.Op)
		switch b.Op {
		case KindMod:
			sb.WriteString(" mod ")
		case KindFloorDiv:
			sb.WriteString(" floordiv ")
		case KindCeilDiv:
			sb.WriteString(" ceildiv ")
		}
		writeOperand(sb, b.RHS, b.Op)
	}
}

// writeOperand writes e, parenthesized when needed to be read back unambiguously as an operand of parentOp.
func writeOperand(sb *strings.Builder, e Expr, parentOp Kind) {
	paren := false
	if b, ok := e.(Binary); ok {
		switch parentOp {
		case KindAdd:
			paren = b.Op == KindAdd
		case KindMul:
			paren = b.Op != KindMul
		default:
			paren = true
		}
	}
	if paren {
		sb.WriteString("(")
		writeExpr(sb, e)
		sb.WriteString(")")
		return
	}
	writeExpr(sb, e)
}

// ConstantValue returns the value of e if it is a Constant.
func ConstantValue(e Expr) (int64, bool) {
	c, ok := e.(Constant)
	if !ok {
		return 0, false
	}
	return c.Value, true
}

// Walk calls fn for e and all its sub-expressions, in pre-order. If fn returns false, the children of the current
// expression are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if !fn(e) {
		return
	}
	if b, ok := e.(Binary); ok {
		Walk(b.LHS, fn)
		Walk(b.RHS, fn)
	}
}

// UsesDim returns whether d_{position} appears in e.
func UsesDim(e Expr, position int) bool {
	found := false
	Walk(e, func(sub Expr) bool {
		if d, ok := sub.(Dim); ok && d.Position == position {
			found = true
		}
		return !found
	})
	return found
}

// UsesSymbol returns whether s_{position} appears in e.
func UsesSymbol(e Expr, position int) bool {
	found := false
	Walk(e, func(sub Expr) bool {
		if s, ok := sub.(Symbol); ok && s.Position == position {
			found = true
		}
		return !found
	})
	return found
}

// HasSymbols returns whether any symbol appears in e.
func HasSymbols(e Expr) bool {
	found := false
	Walk(e, func(sub Expr) bool {
		if _, ok := sub.(Symbol); ok {
			found = true
		}
		return !found
	})
	return found
}

// SumTerms splits a (left-associated) sum into its terms. A non-sum expression is its own single term.
func SumTerms(e Expr) []Expr {
	b, ok := e.(Binary)
	if !ok || b.Op != KindAdd {
		return []Expr{e}
	}
	return append(SumTerms(b.LHS), SumTerms(b.RHS)...)
}

// ProductFactors splits a (left-associated) product into its factors. A non-product expression is its own single
// factor.
func ProductFactors(e Expr) []Expr {
	b, ok := e.(Binary)
	if !ok || b.Op != KindMul {
		return []Expr{e}
	}
	return append(ProductFactors(b.LHS), ProductFactors(b.RHS)...)
}

// IsPureAffine returns whether e is affine in the strict sense: multiplications only by constants, and divisions
// and modulos only of affine expressions.
func IsPureAffine(e Expr) bool {
	pure := true
	Walk(e, func(sub Expr) bool {
		b, ok := sub.(Binary)
		if !ok || !pure {
			return pure
		}
		if b.Op == KindMul {
			_, lConst := b.LHS.(Constant)
			_, rConst := b.RHS.(Constant)
			if !lConst && !rConst {
				pure = false
			}
		}
		return pure
	})
	return pure
}
