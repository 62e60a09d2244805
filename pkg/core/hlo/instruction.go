// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hlo holds a minimal representation of an XLA HLO computation: a DAG of Instruction, each with an
// operation code, an output shape, its operands and the static attributes of the operation.
//
// Computations are created with a Builder, which validates every instruction (with shapeinference) as it is added,
// or parsed from HLO text with the hlotext sub-package.
//
// Instructions are immutable once built, and can be safely shared among goroutines.
package hlo

import (
	"fmt"
	"strings"

	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/gomlx/tileanalysis/pkg/core/shapes"
)

// SliceConfig holds the attributes of a slice: for each axis the range [Starts[i], Limits[i]) is read, taking one
// every Strides[i] elements.
type SliceConfig struct {
	Starts, Limits, Strides []int
}

// PadDim is the padding configuration of one axis.
type PadDim struct {
	Low, High, Interior int
}

// DotConfig holds the axes of a general dot product. Axes not listed are the free (cross) axes of each side.
type DotConfig struct {
	LhsBatchAxes, LhsContractingAxes []int
	RhsBatchAxes, RhsContractingAxes []int
}

// GatherConfig holds the attributes of a gather, with the XLA semantics.
type GatherConfig struct {
	OffsetAxes         []int
	CollapsedSliceAxes []int
	StartIndexMap      []int
	IndexVectorAxis    int
	SliceSizes         []int
}

// WindowDim is the window configuration of one axis of a reduce-window.
type WindowDim struct {
	Size, Stride    int
	PadLow, PadHigh int
	BaseDilation    int
	WindowDilation  int
}

// Attributes of an instruction. Each operation only uses the fields relevant to it, the others are left zero.
type Attributes struct {
	// Shape is the declared output shape. It is required for operations whose shape cannot be inferred from the
	// operands (parameter, constant, iota, broadcast, reshape, bitcast, convert and unsupported operations), and
	// otherwise, if set, it is checked against the inferred shape.
	Shape shapes.Shape

	// Dimensions holds the "dimensions" attribute: broadcast axes, transpose permutation, reversed axes, reduced
	// axes, or the concatenation axis (single element).
	Dimensions []int

	Slice             *SliceConfig
	Padding           []PadDim
	DynamicSliceSizes []int
	Dot               *DotConfig
	Gather            *GatherConfig
	Window            []WindowDim

	ParameterNumber int
	IotaDimension   int

	// ComparisonDirection of a compare: "EQ", "NE", "LT", ...
	ComparisonDirection string

	// Literal is the textual value of a constant, it is kept only for printing.
	Literal string

	// ToApply is the name of the computation applied by reduce and reduce-window, kept only for printing.
	ToApply string
}

// Instruction is a node of a Computation.
type Instruction struct {
	builder  *Builder
	id       int
	name     string
	op       opcode.Code
	shape    shapes.Shape
	operands []*Instruction
	users    []*Instruction
	attrs    Attributes
}

// ID is the position of the instruction in its computation. Operands always have a lower ID than their users.
func (instr *Instruction) ID() int { return instr.id }

// Name of the instruction, unique within its computation.
func (instr *Instruction) Name() string { return instr.name }

// OpCode of the operation executed by the instruction.
func (instr *Instruction) OpCode() opcode.Code { return instr.op }

// Shape of the output. For variadic operations (e.g. a reduce of multiple inputs) it is a tuple.
func (instr *Instruction) Shape() shapes.Shape { return instr.shape }

// NumOutputs is the number of elements of the output tuple, or 1 if the output is not a tuple.
func (instr *Instruction) NumOutputs() int {
	if instr.shape.IsTuple() {
		return instr.shape.TupleSize()
	}
	return 1
}

// OutputShape returns the shape of the output #outputID. See NumOutputs.
func (instr *Instruction) OutputShape(outputID int) shapes.Shape { return instr.shape.TupleElement(outputID) }

// Operands of the instruction, in order. The returned slice shouldn't be modified.
func (instr *Instruction) Operands() []*Instruction { return instr.operands }

// Operand returns the operand #i.
func (instr *Instruction) Operand(i int) *Instruction { return instr.operands[i] }

// NumOperands returns the number of operands.
func (instr *Instruction) NumOperands() int { return len(instr.operands) }

// Users are the instructions that use this one as an operand, in order of ID, without repetitions.
func (instr *Instruction) Users() []*Instruction { return instr.users }

// Attributes returns a copy of the attributes of the instruction.
func (instr *Instruction) Attributes() Attributes { return instr.attrs }

// Dimensions returns the "dimensions" attribute. See Attributes.Dimensions.
func (instr *Instruction) Dimensions() []int { return instr.attrs.Dimensions }

// Slice configuration of a slice instruction.
func (instr *Instruction) Slice() *SliceConfig { return instr.attrs.Slice }

// Padding configuration of a pad instruction.
func (instr *Instruction) Padding() []PadDim { return instr.attrs.Padding }

// DynamicSliceSizes of a dynamic-slice instruction.
func (instr *Instruction) DynamicSliceSizes() []int { return instr.attrs.DynamicSliceSizes }

// Dot configuration of a dot instruction. It is never nil for a dot.
func (instr *Instruction) Dot() *DotConfig { return instr.attrs.Dot }

// Gather configuration of a gather instruction.
func (instr *Instruction) Gather() *GatherConfig { return instr.attrs.Gather }

// Window configuration of a reduce-window instruction.
func (instr *Instruction) Window() []WindowDim { return instr.attrs.Window }

// ParameterNumber of a parameter instruction.
func (instr *Instruction) ParameterNumber() int { return instr.attrs.ParameterNumber }

// IotaDimension of an iota instruction.
func (instr *Instruction) IotaDimension() int { return instr.attrs.IotaDimension }

// String implements fmt.Stringer, rendering the instruction in HLO text format, e.g.:
//
//	add.3 = f32[2,3] add(p0, p1)
func (instr *Instruction) String() string {
	if instr == nil {
		return "Instruction(nil)"
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s = %s %s(", instr.name, ShapeText(instr.shape), instr.op)
	switch instr.op {
	case opcode.Parameter:
		_, _ = fmt.Fprintf(&sb, "%d", instr.attrs.ParameterNumber)
	case opcode.Constant:
		sb.WriteString(instr.attrs.Literal)
	default:
		for ii, operand := range instr.operands {
			if ii > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(operand.name)
		}
	}
	sb.WriteString(")")
	for _, attr := range instr.attributeTexts() {
		sb.WriteString(", ")
		sb.WriteString(attr)
	}
	return sb.String()
}

func listText(values []int) string { return "{" + joinInts(values, ",") + "}" }

// attributeTexts returns the attributes in HLO text format, "key=value".
func (instr *Instruction) attributeTexts() []string {
	var attrs []string
	add := func(format string, args ...any) { attrs = append(attrs, fmt.Sprintf(format, args...)) }
	a := &instr.attrs
	switch instr.op {
	case opcode.Broadcast, opcode.Transpose, opcode.Reverse, opcode.Reduce, opcode.Concatenate:
		add("dimensions=%s", listText(a.Dimensions))
	case opcode.Iota:
		add("iota_dimension=%d", a.IotaDimension)
	case opcode.Compare:
		if a.ComparisonDirection != "" {
			add("direction=%s", a.ComparisonDirection)
		}
	case opcode.Slice:
		parts := make([]string, len(a.Slice.Starts))
		for ii := range parts {
			parts[ii] = fmt.Sprintf("[%d:%d:%d]", a.Slice.Starts[ii], a.Slice.Limits[ii], a.Slice.Strides[ii])
		}
		add("slice={%s}", strings.Join(parts, ", "))
	case opcode.Pad:
		parts := make([]string, len(a.Padding))
		for ii, p := range a.Padding {
			parts[ii] = fmt.Sprintf("%d_%d_%d", p.Low, p.High, p.Interior)
		}
		add("padding=%s", strings.Join(parts, "x"))
	case opcode.DynamicSlice:
		add("dynamic_slice_sizes=%s", listText(a.DynamicSliceSizes))
	case opcode.Dot:
		add("lhs_batch_dims=%s", listText(a.Dot.LhsBatchAxes))
		add("lhs_contracting_dims=%s", listText(a.Dot.LhsContractingAxes))
		add("rhs_batch_dims=%s", listText(a.Dot.RhsBatchAxes))
		add("rhs_contracting_dims=%s", listText(a.Dot.RhsContractingAxes))
	case opcode.Gather:
		g := a.Gather
		add("offset_dims=%s", listText(g.OffsetAxes))
		add("collapsed_slice_dims=%s", listText(g.CollapsedSliceAxes))
		add("start_index_map=%s", listText(g.StartIndexMap))
		add("index_vector_dim=%d", g.IndexVectorAxis)
		add("slice_sizes=%s", listText(g.SliceSizes))
	case opcode.ReduceWindow:
		window := func(field func(w WindowDim) string) string {
			parts := make([]string, len(a.Window))
			for ii, w := range a.Window {
				parts[ii] = field(w)
			}
			return strings.Join(parts, "x")
		}
		add("window={size=%s stride=%s pad=%s lhs_dilate=%s rhs_dilate=%s}",
			window(func(w WindowDim) string { return fmt.Sprint(w.Size) }),
			window(func(w WindowDim) string { return fmt.Sprint(w.Stride) }),
			window(func(w WindowDim) string { return fmt.Sprintf("%d_%d", w.PadLow, w.PadHigh) }),
			window(func(w WindowDim) string { return fmt.Sprint(w.BaseDilation) }),
			window(func(w WindowDim) string { return fmt.Sprint(w.WindowDilation) }))
	}
	if a.ToApply != "" {
		add("to_apply=%s", a.ToApply)
	}
	return attrs
}
