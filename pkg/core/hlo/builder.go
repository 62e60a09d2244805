// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"fmt"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/shapeinference"
	"github.com/gomlx/tileanalysis/pkg/core/shapes"
	"github.com/gomlx/tileanalysis/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Builder creates a Computation, one instruction at a time.
//
// Instructions must be added after their operands, so the computation is always in topological order.
// A Builder is not safe for concurrent use.
type Builder struct {
	name         string
	instructions []*Instruction
	byName       map[string]*Instruction
	built        bool
}

// NewBuilder returns a Builder for a computation with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, byName: make(map[string]*Instruction)}
}

// Name of the computation being built.
func (b *Builder) Name() string { return b.name }

// Instruction returns the instruction with the given name, or nil if there is none.
func (b *Builder) Instruction(name string) *Instruction { return b.byName[name] }

// AddInstruction validates and adds a new instruction to the computation.
//
// If name is empty, a unique name "<opcode>.<id>" is generated. The output shape is inferred from the operands and
// attributes where possible, and otherwise attrs.Shape must be given. See Attributes.
func (b *Builder) AddInstruction(name string, op opcode.Code, attrs Attributes, operands ...*Instruction) (
	*Instruction, error) {
	if b.built {
		return nil, errors.Errorf("computation %q was already built, cannot add more instructions", b.name)
	}
	if op <= opcode.Invalid || op >= opcode.Last {
		return nil, errors.Errorf("invalid opcode %s", op)
	}
	id := len(b.instructions)
	if name == "" {
		name = fmt.Sprintf("%s.%d", op, id)
	}
	if _, found := b.byName[name]; found {
		return nil, errors.Errorf("duplicate instruction name %q in computation %q", name, b.name)
	}
	for ii, operand := range operands {
		if operand == nil || operand.builder != b {
			return nil, errors.Errorf("operand #%d of %s %q is not an instruction of computation %q",
				ii, op, name, b.name)
		}
	}
	shape, err := inferShape(op, &attrs, operands)
	if err != nil {
		return nil, errors.WithMessagef(err, "instruction %q (%s)", name, op)
	}
	instr := &Instruction{
		builder:  b,
		id:       id,
		name:     name,
		op:       op,
		shape:    shape,
		operands: slices.Clone(operands),
		attrs:    attrs,
	}
	instr.attrs.Shape = shape
	for ii, operand := range operands {
		if slices.Index(operands, operand) == ii {
			operand.users = append(operand.users, instr)
		}
	}
	b.instructions = append(b.instructions, instr)
	b.byName[name] = instr
	if klog.V(3).Enabled() {
		klog.Infof("hlo: %s: added %s", b.name, instr)
	}
	return instr, nil
}

// declaredShape returns attrs.Shape or an error if it was not given.
func declaredShape(op opcode.Code, attrs *Attributes) (shapes.Shape, error) {
	if !attrs.Shape.Ok() {
		return shapes.Invalid(), errors.Errorf("%s requires the output shape to be declared", op)
	}
	return attrs.Shape, nil
}

func checkNumOperands(op opcode.Code, operands []*Instruction, want int) error {
	if len(operands) != want {
		return errors.Errorf("%s requires %d operands, got %d", op, want, len(operands))
	}
	return nil
}

func operandShapes(operands []*Instruction) []shapes.Shape {
	return xslices.Map(operands, func(operand *Instruction) shapes.Shape { return operand.shape })
}

// inferShape returns the output shape of the operation, and validates its operands and attributes.
// Some attributes get their default values filled in.
func inferShape(op opcode.Code, attrs *Attributes, operands []*Instruction) (output shapes.Shape, err error) {
	inputs := operandShapes(operands)
	for ii, input := range inputs {
		if input.IsTuple() {
			return output, errors.Errorf("operand #%d has tuple shape %s, tuple operands are not supported", ii, input)
		}
	}
	switch {
	case op == opcode.Convert:
		if err = checkNumOperands(op, operands, 1); err != nil {
			return
		}
		var declared shapes.Shape
		if declared, err = declaredShape(op, attrs); err != nil {
			return
		}
		output, err = shapeinference.ConvertOp(inputs[0], declared.DType)
	case opcode.UnaryElementwise.Has(op):
		if err = checkNumOperands(op, operands, 1); err != nil {
			return
		}
		output, err = shapeinference.UnaryOp(op, inputs[0])
	case opcode.BinaryElementwise.Has(op):
		if err = checkNumOperands(op, operands, 2); err != nil {
			return
		}
		output, err = shapeinference.BinaryOp(op, inputs[0], inputs[1])
	case op == opcode.Select:
		if err = checkNumOperands(op, operands, 3); err != nil {
			return
		}
		output, err = shapeinference.SelectOp(inputs[0], inputs[1], inputs[2])
	case op == opcode.Clamp:
		if err = checkNumOperands(op, operands, 3); err != nil {
			return
		}
		output, err = shapeinference.ClampOp(inputs[0], inputs[1], inputs[2])
	default:
		output, err = inferStructuralShape(op, attrs, inputs)
	}
	if err != nil {
		return shapes.Invalid(), err
	}
	if attrs.Shape.Ok() && !attrs.Shape.Equal(output) {
		return shapes.Invalid(), errors.Errorf("declared shape %s doesn't match the inferred shape %s", attrs.Shape, output)
	}
	return output, nil
}

func inferStructuralShape(op opcode.Code, attrs *Attributes, inputs []shapes.Shape) (output shapes.Shape, err error) {
	switch op {
	case opcode.Parameter, opcode.Constant:
		if len(inputs) != 0 {
			return output, errors.Errorf("%s takes no operands, got %d", op, len(inputs))
		}
		return declaredShape(op, attrs)

	case opcode.Iota:
		if output, err = declaredShape(op, attrs); err != nil {
			return
		}
		err = shapeinference.IotaOp(output, attrs.IotaDimension)
		return

	case opcode.Broadcast:
		if err = checkNumInputs(op, inputs, 1); err != nil {
			return
		}
		if output, err = declaredShape(op, attrs); err != nil {
			return
		}
		err = shapeinference.BroadcastOp(inputs[0], output, attrs.Dimensions)
		return

	case opcode.Reshape, opcode.Bitcast:
		if err = checkNumInputs(op, inputs, 1); err != nil {
			return
		}
		var declared shapes.Shape
		if declared, err = declaredShape(op, attrs); err != nil {
			return
		}
		if output, err = shapeinference.ReshapeOp(inputs[0], declared.Dimensions); err != nil {
			return
		}
		if op == opcode.Bitcast {
			output.DType = declared.DType
		}
		return

	case opcode.Transpose:
		if err = checkNumInputs(op, inputs, 1); err != nil {
			return
		}
		return shapeinference.TransposeOp(inputs[0], attrs.Dimensions)

	case opcode.Reverse:
		if err = checkNumInputs(op, inputs, 1); err != nil {
			return
		}
		return shapeinference.ReverseOp(inputs[0], attrs.Dimensions)

	case opcode.Slice:
		if err = checkNumInputs(op, inputs, 1); err != nil {
			return
		}
		if attrs.Slice == nil {
			return output, errors.Errorf("slice requires a slice configuration")
		}
		if attrs.Slice.Strides == nil {
			attrs.Slice.Strides = slices.Repeat([]int{1}, len(attrs.Slice.Starts))
		}
		return shapeinference.SliceOp(inputs[0], attrs.Slice.Starts, attrs.Slice.Limits, attrs.Slice.Strides)

	case opcode.Pad:
		if err = checkNumInputs(op, inputs, 2); err != nil {
			return
		}
		lows := xslices.Map(attrs.Padding, func(p PadDim) int { return p.Low })
		highs := xslices.Map(attrs.Padding, func(p PadDim) int { return p.High })
		interiors := xslices.Map(attrs.Padding, func(p PadDim) int { return p.Interior })
		return shapeinference.PadOp(inputs[0], inputs[1], lows, highs, interiors)

	case opcode.Concatenate:
		if len(attrs.Dimensions) != 1 {
			return output, errors.Errorf("concatenate requires exactly one axis in dimensions, got %v", attrs.Dimensions)
		}
		return shapeinference.ConcatenateOp(inputs, attrs.Dimensions[0])

	case opcode.Reduce:
		if len(inputs) == 0 || len(inputs)%2 != 0 {
			return output, errors.Errorf("reduce requires N inputs followed by N init values, got %d operands",
				len(inputs))
		}
		n := len(inputs) / 2
		return shapeinference.ReduceOp(inputs[:n], inputs[n:], attrs.Dimensions)

	case opcode.ReduceWindow:
		if err = checkNumInputs(op, inputs, 2); err != nil {
			return
		}
		if !inputs[1].IsScalar() {
			return output, errors.Errorf("reduce-window init value must be a scalar, got %s", inputs[1])
		}
		fillWindowDefaults(attrs.Window)
		return shapeinference.ReduceWindowOp(inputs[0],
			xslices.Map(attrs.Window, func(w WindowDim) int { return w.Size }),
			xslices.Map(attrs.Window, func(w WindowDim) int { return w.Stride }),
			xslices.Map(attrs.Window, func(w WindowDim) int { return w.BaseDilation }),
			xslices.Map(attrs.Window, func(w WindowDim) int { return w.WindowDilation }),
			xslices.Map(attrs.Window, func(w WindowDim) [2]int { return [2]int{w.PadLow, w.PadHigh} }))

	case opcode.Dot:
		if err = checkNumInputs(op, inputs, 2); err != nil {
			return
		}
		if attrs.Dot == nil {
			attrs.Dot = &DotConfig{}
		}
		d := attrs.Dot
		return shapeinference.DotGeneralOp(inputs[0], inputs[1],
			d.LhsBatchAxes, d.LhsContractingAxes, d.RhsBatchAxes, d.RhsContractingAxes)

	case opcode.DynamicSlice:
		if len(inputs) < 1 {
			return output, errors.Errorf("dynamic-slice requires at least one operand")
		}
		return shapeinference.DynamicSliceOp(inputs[0], inputs[1:], attrs.DynamicSliceSizes)

	case opcode.DynamicUpdateSlice:
		if len(inputs) < 2 {
			return output, errors.Errorf("dynamic-update-slice requires at least two operands, got %d", len(inputs))
		}
		return shapeinference.DynamicUpdateSliceOp(inputs[0], inputs[1], inputs[2:])

	case opcode.Gather:
		if err = checkNumInputs(op, inputs, 2); err != nil {
			return
		}
		g := attrs.Gather
		if g == nil {
			return output, errors.Errorf("gather requires a gather configuration")
		}
		return shapeinference.GatherOp(inputs[0], inputs[1], g.IndexVectorAxis, g.OffsetAxes, g.CollapsedSliceAxes,
			g.StartIndexMap, g.SliceSizes)
	}

	// Operations without shape inference: trust the declared shape.
	return declaredShape(op, attrs)
}

func checkNumInputs(op opcode.Code, inputs []shapes.Shape, want int) error {
	if len(inputs) != want {
		return errors.Errorf("%s requires %d operands, got %d", op, want, len(inputs))
	}
	return nil
}

// fillWindowDefaults sets unset strides and dilations to 1.
func fillWindowDefaults(window []WindowDim) {
	for ii := range window {
		w := &window[ii]
		if w.Stride == 0 {
			w.Stride = 1
		}
		if w.BaseDilation == 0 {
			w.BaseDilation = 1
		}
		if w.WindowDilation == 0 {
			w.WindowDilation = 1
		}
	}
}

// Build returns the Computation with all instructions added so far and the given root.
// The Builder can't be used after that.
func (b *Builder) Build(root *Instruction) (*Computation, error) {
	if b.built {
		return nil, errors.Errorf("computation %q was already built", b.name)
	}
	if root == nil || root.builder != b {
		return nil, errors.Errorf("root %s is not an instruction of computation %q", root, b.name)
	}
	b.built = true
	c := &Computation{
		name:         b.name,
		instructions: b.instructions,
		byName:       b.byName,
		root:         root,
	}
	for _, instr := range b.instructions {
		if instr.op == opcode.Parameter {
			c.parameters = append(c.parameters, instr)
		}
	}
	slices.SortStableFunc(c.parameters, func(a, b *Instruction) int {
		return a.attrs.ParameterNumber - b.attrs.ParameterNumber
	})
	for ii, p := range c.parameters {
		if p.attrs.ParameterNumber != ii {
			return nil, errors.Errorf("computation %q parameters must be numbered 0 to %d, got parameter %q with number %d",
				b.name, len(c.parameters)-1, p.name, p.attrs.ParameterNumber)
		}
	}
	return c, nil
}

// Parameter adds a parameter of the given shape. Parameters are numbered in the order they are added.
func (b *Builder) Parameter(name string, shape shapes.Shape) (*Instruction, error) {
	number := 0
	for _, instr := range b.instructions {
		if instr.op == opcode.Parameter {
			number++
		}
	}
	return b.AddInstruction(name, opcode.Parameter, Attributes{Shape: shape, ParameterNumber: number})
}

// Constant adds a constant of the given shape. Its value is only kept as text, for printing.
func (b *Builder) Constant(shape shapes.Shape, literal string) (*Instruction, error) {
	return b.AddInstruction("", opcode.Constant, Attributes{Shape: shape, Literal: literal})
}

// Iota adds an iota of the given shape, counting along axis.
func (b *Builder) Iota(shape shapes.Shape, axis int) (*Instruction, error) {
	return b.AddInstruction("", opcode.Iota, Attributes{Shape: shape, IotaDimension: axis})
}

// Elementwise adds an elementwise operation (unary, binary, select or clamp).
func (b *Builder) Elementwise(op opcode.Code, operands ...*Instruction) (*Instruction, error) {
	if !op.IsElementwise() || op == opcode.Convert {
		return nil, errors.Errorf("%s is not an elementwise operation supported by Builder.Elementwise", op)
	}
	return b.AddInstruction("", op, Attributes{}, operands...)
}

// Convert adds a conversion of x to the given dtype.
func (b *Builder) Convert(x *Instruction, dtype dtypes.DType) (*Instruction, error) {
	if x == nil {
		return nil, errors.New("convert of a nil instruction")
	}
	return b.AddInstruction("", opcode.Convert, Attributes{Shape: shapes.Make(dtype, x.shape.Dimensions...)}, x)
}

// Broadcast adds a broadcast of x to the given dimensions. Axis i of x is mapped to axis axes[i] of the output.
func (b *Builder) Broadcast(x *Instruction, dimensions []int, axes ...int) (*Instruction, error) {
	if x == nil {
		return nil, errors.New("broadcast of a nil instruction")
	}
	return b.AddInstruction("", opcode.Broadcast,
		Attributes{Shape: shapes.Make(x.shape.DType, dimensions...), Dimensions: axes}, x)
}

// Reshape adds a reshape of x to the given dimensions.
func (b *Builder) Reshape(x *Instruction, dimensions ...int) (*Instruction, error) {
	if x == nil {
		return nil, errors.New("reshape of a nil instruction")
	}
	for _, dim := range dimensions {
		if dim < 0 {
			return nil, errors.Errorf("reshape to negative dimensions %v", dimensions)
		}
	}
	return b.AddInstruction("", opcode.Reshape, Attributes{Shape: shapes.Make(x.shape.DType, dimensions...)}, x)
}

// Transpose adds a transpose: output axis i is axis permutation[i] of x.
func (b *Builder) Transpose(x *Instruction, permutation ...int) (*Instruction, error) {
	return b.AddInstruction("", opcode.Transpose, Attributes{Dimensions: permutation}, x)
}

// Reverse adds a reverse of x along the given axes.
func (b *Builder) Reverse(x *Instruction, axes ...int) (*Instruction, error) {
	return b.AddInstruction("", opcode.Reverse, Attributes{Dimensions: axes}, x)
}

// Slice adds a slice of x. If strides is nil, it defaults to 1 for every axis.
func (b *Builder) Slice(x *Instruction, starts, limits, strides []int) (*Instruction, error) {
	return b.AddInstruction("", opcode.Slice,
		Attributes{Slice: &SliceConfig{Starts: starts, Limits: limits, Strides: strides}}, x)
}

// Pad adds a padding of x with the scalar value.
func (b *Builder) Pad(x, value *Instruction, padding ...PadDim) (*Instruction, error) {
	return b.AddInstruction("", opcode.Pad, Attributes{Padding: padding}, x, value)
}

// Concatenate adds the concatenation of the operands along the axis.
func (b *Builder) Concatenate(axis int, operands ...*Instruction) (*Instruction, error) {
	return b.AddInstruction("", opcode.Concatenate, Attributes{Dimensions: []int{axis}}, operands...)
}

// Reduce adds a (variadic) reduction of the inputs over the axes. There must be one scalar init per input.
// The reduction computation itself is not represented.
func (b *Builder) Reduce(inputs, inits []*Instruction, axes ...int) (*Instruction, error) {
	return b.AddInstruction("", opcode.Reduce, Attributes{Dimensions: axes}, slices.Concat(inputs, inits)...)
}

// ReduceWindow adds a reduce-window of x, with one WindowDim per axis of x.
// Strides and dilations left as 0 default to 1.
func (b *Builder) ReduceWindow(x, init *Instruction, window ...WindowDim) (*Instruction, error) {
	return b.AddInstruction("", opcode.ReduceWindow, Attributes{Window: slices.Clone(window)}, x, init)
}

// Dot adds a general dot product.
func (b *Builder) Dot(lhs, rhs *Instruction, config DotConfig) (*Instruction, error) {
	return b.AddInstruction("", opcode.Dot, Attributes{Dot: &config}, lhs, rhs)
}

// DynamicSlice adds a dynamic slice of x with the given sizes, starting at the scalar startIndices (one per axis).
func (b *Builder) DynamicSlice(x *Instruction, startIndices []*Instruction, sizes ...int) (*Instruction, error) {
	return b.AddInstruction("", opcode.DynamicSlice, Attributes{DynamicSliceSizes: sizes},
		slices.Concat([]*Instruction{x}, startIndices)...)
}

// DynamicUpdateSlice adds an update of x with update, placed at the scalar startIndices (one per axis).
func (b *Builder) DynamicUpdateSlice(x, update *Instruction, startIndices ...*Instruction) (*Instruction, error) {
	return b.AddInstruction("", opcode.DynamicUpdateSlice, Attributes{},
		slices.Concat([]*Instruction{x, update}, startIndices)...)
}

// Gather adds a gather of x at the given indices.
func (b *Builder) Gather(x, indices *Instruction, config GatherConfig) (*Instruction, error) {
	return b.AddInstruction("", opcode.Gather, Attributes{Gather: &config}, x, indices)
}
