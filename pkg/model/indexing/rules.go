// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package indexing

import (
	"slices"

	"github.com/gomlx/tileanalysis/pkg/core/affine"
	"github.com/gomlx/tileanalysis/pkg/core/hlo"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/gomlx/tileanalysis/pkg/support/sets"
	"github.com/gomlx/tileanalysis/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// outputToInputRule returns the indexing of every operand for the given output of the instruction.
type outputToInputRule func(ctx *affine.Context, instr *hlo.Instruction, outputID int) (InstructionIndexing, error)

// inputToOutputRule returns the indexing of every output for the given operand of the instruction.
type inputToOutputRule func(ctx *affine.Context, instr *hlo.Instruction, inputID int) (InstructionIndexing, error)

var (
	outputToInputRules = map[opcode.Code]outputToInputRule{
		opcode.Broadcast:          broadcastOutputToInput,
		opcode.Reshape:            reshapeOutputToInput,
		opcode.Bitcast:            reshapeOutputToInput,
		opcode.Transpose:          transposeOutputToInput,
		opcode.Reverse:            reverseOutputToInput,
		opcode.Slice:              sliceOutputToInput,
		opcode.Pad:                padOutputToInput,
		opcode.Concatenate:        concatenateOutputToInput,
		opcode.Reduce:             reduceOutputToInput,
		opcode.ReduceWindow:       reduceWindowOutputToInput,
		opcode.Dot:                dotOutputToInput,
		opcode.DynamicSlice:       dynamicSliceOutputToInput,
		opcode.DynamicUpdateSlice: dynamicUpdateSliceOutputToInput,
		opcode.Gather:             gatherOutputToInput,
	}

	inputToOutputRules = map[opcode.Code]inputToOutputRule{
		opcode.Broadcast:          broadcastInputToOutput,
		opcode.Reshape:            reshapeInputToOutput,
		opcode.Bitcast:            reshapeInputToOutput,
		opcode.Transpose:          transposeInputToOutput,
		opcode.Reverse:            reverseInputToOutput,
		opcode.Slice:              sliceInputToOutput,
		opcode.Pad:                padInputToOutput,
		opcode.Concatenate:        concatenateInputToOutput,
		opcode.Reduce:             reduceInputToOutput,
		opcode.Dot:                dotInputToOutput,
		opcode.DynamicUpdateSlice: dynamicUpdateSliceInputToOutput,
	}
)

// ComputeOutputToInputIndexing returns, for each operand of instr, the set of maps from the indices of the output
// #outputID to the indices of the operand read to compute it. Every map is simplified.
//
// Operations that take no operands (parameter, constant, iota) return an empty InstructionIndexing.
// It returns an error wrapping ErrUnimplemented for operations without an indexing rule, and ErrInvalidArgument if
// outputID is out of range or the instruction is inconsistent.
func ComputeOutputToInputIndexing(ctx *affine.Context, instr *hlo.Instruction, outputID int) (
	InstructionIndexing, error) {
	if instr == nil {
		return InstructionIndexing{}, invalidArgumentf("nil instruction")
	}
	if outputID < 0 || outputID >= instr.NumOutputs() {
		return InstructionIndexing{}, invalidArgumentf("output id %d is out of range for %q, which has %d outputs",
			outputID, instr.Name(), instr.NumOutputs())
	}
	var (
		indexing InstructionIndexing
		err      error
	)
	op := instr.OpCode()
	switch {
	case op.IsElementwise():
		indexing, err = elementwiseOutputToInput(ctx, instr)
	case opcode.NoOperands.Has(op):
		indexing = InstructionIndexing{IndexingMaps: []IndexingMapSet{}}
	default:
		rule, found := outputToInputRules[op]
		if !found {
			err = unimplementedf("no output to input indexing rule for %s", op)
			break
		}
		indexing, err = rule(ctx, instr, outputID)
	}
	if err != nil {
		return InstructionIndexing{}, errors.WithMessagef(err, "output to input indexing of %q", instr.Name())
	}
	indexing.Simplify(ctx)
	if klog.V(2).Enabled() {
		klog.Infof("indexing: output #%d to input of %s:\n%s", outputID, instr, indexing)
	}
	return indexing, nil
}

// ComputeInputToOutputIndexing returns, for each output of instr, the set of maps from the indices of the operand
// #inputID to the indices of the output elements that read it. Every map is simplified.
//
// It returns an error wrapping ErrUnimplemented for operations without an indexing rule, and ErrInvalidArgument if
// inputID is out of range (in particular for operations with no operands) or the instruction is inconsistent.
func ComputeInputToOutputIndexing(ctx *affine.Context, instr *hlo.Instruction, inputID int) (
	InstructionIndexing, error) {
	if instr == nil {
		return InstructionIndexing{}, invalidArgumentf("nil instruction")
	}
	if inputID < 0 || inputID >= instr.NumOperands() {
		return InstructionIndexing{}, invalidArgumentf("input id %d is out of range for %q, which has %d operands",
			inputID, instr.Name(), instr.NumOperands())
	}
	var (
		indexing InstructionIndexing
		err      error
	)
	op := instr.OpCode()
	if op.IsElementwise() {
		indexing, err = elementwiseInputToOutput(ctx, instr, inputID)
	} else if rule, found := inputToOutputRules[op]; found {
		indexing, err = rule(ctx, instr, inputID)
	} else {
		err = unimplementedf("no input to output indexing rule for %s", op)
	}
	if err != nil {
		return InstructionIndexing{}, errors.WithMessagef(err, "input to output indexing of %q", instr.Name())
	}
	indexing.Simplify(ctx)
	if klog.V(2).Enabled() {
		klog.Infof("indexing: input #%d to output of %s:\n%s", inputID, instr, indexing)
	}
	return indexing, nil
}

// ComputeTransposeIndexingMap returns the map (d0, ..., d_{n-1}) -> (d_{permutation[0]}, ..., d_{permutation[n-1]}).
//
// The output to input indexing of a transpose uses the inverse of its permutation, and the input to output indexing
// uses the permutation itself.
func ComputeTransposeIndexingMap(ctx *affine.Context, permutation []int) affine.Map {
	return ctx.PermutationMap(permutation)
}

// dims returns the expressions d_0, ..., d_{n-1}.
func dims(ctx *affine.Context, n int) []affine.Expr {
	return xslices.Map(xslices.Iota(0, n), ctx.Dim)
}

// scalarOperandMap is the map from any position of the output to the single element of a scalar operand.
func scalarOperandMap(ctx *affine.Context, outputDims []int) IndexingMap {
	return NewIndexingMap(ctx.EmptyMap(len(outputDims), 0), outputDims, nil)
}

// scalarToOutputMap is the map from the single element of a scalar operand to every position of the output:
//
//	()[s0, ..., s_{n-1}] -> (s0, ..., s_{n-1})
func scalarToOutputMap(ctx *affine.Context, outputDims []int) IndexingMap {
	results := xslices.Map(xslices.Iota(0, len(outputDims)), ctx.Symbol)
	return NewIndexingMap(ctx.NewMap(0, len(outputDims), results...), nil, outputDims)
}

func elementwiseOutputToInput(ctx *affine.Context, instr *hlo.Instruction) (InstructionIndexing, error) {
	output := instr.Shape()
	rank := output.Rank()
	maps := make([]IndexingMap, instr.NumOperands())
	for k, operand := range instr.Operands() {
		input := operand.Shape()
		if input.Rank() == 0 {
			maps[k] = scalarOperandMap(ctx, output.Dimensions)
			continue
		}
		if input.Rank() != rank {
			return InstructionIndexing{}, invalidArgumentf("operand #%d %s has a different rank than the output %s",
				k, input, output)
		}
		results := make([]affine.Expr, rank)
		for axis := range rank {
			switch input.Dimensions[axis] {
			case output.Dimensions[axis]:
				results[axis] = ctx.Dim(axis)
			case 1:
				results[axis] = ctx.Constant(0)
			default:
				return InstructionIndexing{}, invalidArgumentf("operand #%d %s can't be broadcast to the output %s",
					k, input, output)
			}
		}
		maps[k] = NewIndexingMap(ctx.NewMap(rank, 0, results...), output.Dimensions, nil)
	}
	return FromIndexingMaps(maps...), nil
}

func elementwiseInputToOutput(ctx *affine.Context, instr *hlo.Instruction, inputID int) (InstructionIndexing, error) {
	output := instr.Shape()
	input := instr.Operand(inputID).Shape()
	if input.Rank() == 0 {
		return FromIndexingMaps(scalarToOutputMap(ctx, output.Dimensions)), nil
	}
	if input.Rank() != output.Rank() {
		return InstructionIndexing{}, invalidArgumentf("operand %s has a different rank than the output %s", input, output)
	}
	var (
		results      []affine.Expr
		symbolBounds []int
	)
	for axis, dim := range input.Dimensions {
		switch output.Dimensions[axis] {
		case dim:
			results = append(results, ctx.Dim(axis))
		default:
			if dim != 1 {
				return InstructionIndexing{}, invalidArgumentf("operand %s can't be broadcast to the output %s",
					input, output)
			}
			results = append(results, ctx.Symbol(len(symbolBounds)))
			symbolBounds = append(symbolBounds, output.Dimensions[axis])
		}
	}
	m := ctx.NewMap(input.Rank(), len(symbolBounds), results...)
	return FromIndexingMaps(NewIndexingMap(m, input.Dimensions, symbolBounds)), nil
}

func broadcastOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	axes := instr.Dimensions()
	if len(axes) != instr.Operand(0).Shape().Rank() {
		return InstructionIndexing{}, invalidArgumentf("broadcast dimensions %v don't match operand %s",
			axes, instr.Operand(0).Shape())
	}
	results := xslices.Map(axes, ctx.Dim)
	m := ctx.NewMap(output.Rank(), 0, results...)
	return FromIndexingMaps(NewIndexingMap(m, output.Dimensions, nil)), nil
}

func broadcastInputToOutput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	input := instr.Operand(0).Shape()
	axes := instr.Dimensions()
	var symbolBounds []int
	results := make([]affine.Expr, output.Rank())
	for axis := range results {
		if k := slices.Index(axes, axis); k >= 0 {
			results[axis] = ctx.Dim(k)
		} else {
			results[axis] = ctx.Symbol(len(symbolBounds))
			symbolBounds = append(symbolBounds, output.Dimensions[axis])
		}
	}
	m := ctx.NewMap(input.Rank(), len(symbolBounds), results...)
	return FromIndexingMaps(NewIndexingMap(m, input.Dimensions, symbolBounds)), nil
}

// delinearize returns the map from the indices of an array with dimensions src to the indices of the same element
// in a row-major reshape of it to dimensions dst.
func delinearize(ctx *affine.Context, src, dst []int) affine.Map {
	if xslices.Product(src) == 0 {
		return ctx.ConstantMap(len(src), 0, make([]int64, len(dst))...)
	}
	srcStrides := rowMajorStrides(src)
	terms := make([]affine.Expr, len(src))
	for axis := range src {
		terms[axis] = ctx.MulConst(ctx.Dim(axis), srcStrides[axis])
	}
	linear := ctx.Add(terms...)
	dstStrides := rowMajorStrides(dst)
	results := make([]affine.Expr, len(dst))
	for axis := range dst {
		results[axis] = ctx.FloorDiv(linear, dstStrides[axis])
		if axis > 0 {
			results[axis] = ctx.Mod(results[axis], int64(dst[axis]))
		}
	}
	return ctx.NewMap(len(src), 0, results...)
}

func rowMajorStrides(dimensions []int) []int64 {
	strides := make([]int64, len(dimensions))
	stride := int64(1)
	for axis := len(dimensions) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= int64(dimensions[axis])
	}
	return strides
}

func reshapeOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	input := instr.Operand(0).Shape()
	if input.Size() != output.Size() {
		return InstructionIndexing{}, invalidArgumentf("can't reshape %s to %s", input, output)
	}
	m := delinearize(ctx, output.Dimensions, input.Dimensions)
	return FromIndexingMaps(NewIndexingMap(m, output.Dimensions, nil)), nil
}

func reshapeInputToOutput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	input := instr.Operand(0).Shape()
	if input.Size() != output.Size() {
		return InstructionIndexing{}, invalidArgumentf("can't reshape %s to %s", input, output)
	}
	m := delinearize(ctx, input.Dimensions, output.Dimensions)
	return FromIndexingMaps(NewIndexingMap(m, input.Dimensions, nil)), nil
}

func transposeOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	permutation := instr.Dimensions()
	if !xslices.IsPermutation(permutation) {
		return InstructionIndexing{}, invalidArgumentf("transpose dimensions %v are not a permutation", permutation)
	}
	m := ComputeTransposeIndexingMap(ctx, xslices.InversePermutation(permutation))
	return FromIndexingMaps(NewIndexingMap(m, instr.Shape().Dimensions, nil)), nil
}

func transposeInputToOutput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	permutation := instr.Dimensions()
	if !xslices.IsPermutation(permutation) {
		return InstructionIndexing{}, invalidArgumentf("transpose dimensions %v are not a permutation", permutation)
	}
	m := ComputeTransposeIndexingMap(ctx, permutation)
	return FromIndexingMaps(NewIndexingMap(m, instr.Operand(0).Shape().Dimensions, nil)), nil
}

// reverseMap maps index i of each reversed axis of size n to n - 1 - i, and the other axes to themselves.
func reverseMap(ctx *affine.Context, instr *hlo.Instruction) IndexingMap {
	shape := instr.Shape()
	reversed := sets.MakeWith(instr.Dimensions()...)
	results := dims(ctx, shape.Rank())
	for axis := range results {
		if reversed.Has(axis) {
			results[axis] = ctx.AddConst(ctx.Neg(results[axis]), int64(shape.Dimensions[axis]-1))
		}
	}
	return NewIndexingMap(ctx.NewMap(shape.Rank(), 0, results...), shape.Dimensions, nil)
}

func reverseOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	return FromIndexingMaps(reverseMap(ctx, instr)), nil
}

func reverseInputToOutput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	return FromIndexingMaps(reverseMap(ctx, instr)), nil
}

func sliceOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	config := instr.Slice()
	results := make([]affine.Expr, output.Rank())
	for axis := range results {
		results[axis] = ctx.AddConst(
			ctx.MulConst(ctx.Dim(axis), int64(config.Strides[axis])),
			int64(config.Starts[axis]))
	}
	m := ctx.NewMap(output.Rank(), 0, results...)
	return FromIndexingMaps(NewIndexingMap(m, output.Dimensions, nil)), nil
}

func sliceInputToOutput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	input := instr.Operand(0).Shape()
	config := instr.Slice()
	if slices.ContainsFunc(config.Strides, func(stride int) bool { return stride != 1 }) {
		return InstructionIndexing{}, unimplementedf("input to output indexing of slice with strides %v", config.Strides)
	}
	results := make([]affine.Expr, input.Rank())
	domain := Domain{DimensionRanges: make([]Range, input.Rank())}
	for axis := range results {
		results[axis] = ctx.AddConst(ctx.Dim(axis), -int64(config.Starts[axis]))
		domain.DimensionRanges[axis] = Range{int64(config.Starts[axis]), int64(config.Limits[axis])}
	}
	m := ctx.NewMap(input.Rank(), 0, results...)
	return FromIndexingMaps(IndexingMap{Map: m, Domain: domain}), nil
}

// padOutputToInput maps each output position to (d - low) floordiv (interior + 1) of the operand. The domain is
// restricted to the output positions between the first and last operand elements, and positions of the interior
// padding map to the operand element that precedes them.
func padOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	input := instr.Operand(0).Shape()
	padding := instr.Padding()
	if len(padding) != input.Rank() {
		return InstructionIndexing{}, invalidArgumentf("pad configuration has %d axes, operand is %s",
			len(padding), input)
	}
	results := make([]affine.Expr, output.Rank())
	domain := FromUpperBounds(output.Dimensions, []int(nil))
	for axis, p := range padding {
		step := int64(p.Interior + 1)
		results[axis] = ctx.FloorDiv(ctx.AddConst(ctx.Dim(axis), -int64(p.Low)), step)
		n := int64(input.Dimensions[axis])
		if n == 0 {
			domain.DimensionRanges[axis] = Range{}
			continue
		}
		covered := Range{LowerBound: int64(p.Low), UpperBound: int64(p.Low) + (n-1)*step + 1}
		domain.DimensionRanges[axis] = domain.DimensionRanges[axis].Intersect(covered)
	}
	operandMap := IndexingMap{Map: ctx.NewMap(output.Rank(), 0, results...), Domain: domain}
	return FromIndexingMaps(operandMap, scalarOperandMap(ctx, output.Dimensions)), nil
}

func padInputToOutput(ctx *affine.Context, instr *hlo.Instruction, inputID int) (InstructionIndexing, error) {
	output := instr.Shape()
	if inputID == 1 {
		return FromIndexingMaps(scalarToOutputMap(ctx, output.Dimensions)), nil
	}
	input := instr.Operand(0).Shape()
	padding := instr.Padding()
	results := make([]affine.Expr, input.Rank())
	for axis, p := range padding {
		results[axis] = ctx.AddConst(ctx.MulConst(ctx.Dim(axis), int64(p.Interior+1)), int64(p.Low))
	}
	m := ctx.NewMap(input.Rank(), 0, results...)
	return FromIndexingMaps(NewIndexingMap(m, input.Dimensions, nil)), nil
}

func concatenateOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	axis := instr.Dimensions()[0]
	maps := make([]IndexingMap, instr.NumOperands())
	offset := 0
	for k, operand := range instr.Operands() {
		size := operand.Shape().Dimensions[axis]
		results := dims(ctx, output.Rank())
		results[axis] = ctx.AddConst(results[axis], -int64(offset))
		domain := FromUpperBounds(output.Dimensions, []int(nil))
		domain.DimensionRanges[axis] = Range{int64(offset), int64(offset + size)}
		maps[k] = IndexingMap{Map: ctx.NewMap(output.Rank(), 0, results...), Domain: domain}
		offset += size
	}
	return FromIndexingMaps(maps...), nil
}

func concatenateInputToOutput(ctx *affine.Context, instr *hlo.Instruction, inputID int) (InstructionIndexing, error) {
	axis := instr.Dimensions()[0]
	offset := 0
	for _, operand := range instr.Operands()[:inputID] {
		offset += operand.Shape().Dimensions[axis]
	}
	input := instr.Operand(inputID).Shape()
	results := dims(ctx, input.Rank())
	results[axis] = ctx.AddConst(results[axis], int64(offset))
	m := ctx.NewMap(input.Rank(), 0, results...)
	return FromIndexingMaps(NewIndexingMap(m, input.Dimensions, nil)), nil
}

func reduceOutputToInput(ctx *affine.Context, instr *hlo.Instruction, outputID int) (InstructionIndexing, error) {
	output := instr.OutputShape(outputID)
	numInputs := instr.NumOperands() / 2
	input := instr.Operand(0).Shape()
	reduced := sets.MakeWith(instr.Dimensions()...)
	var (
		results      []affine.Expr
		symbolBounds []int
		outputAxis   int
	)
	for axis, dim := range input.Dimensions {
		if reduced.Has(axis) {
			results = append(results, ctx.Symbol(len(symbolBounds)))
			symbolBounds = append(symbolBounds, dim)
		} else {
			results = append(results, ctx.Dim(outputAxis))
			outputAxis++
		}
	}
	if outputAxis != output.Rank() {
		return InstructionIndexing{}, invalidArgumentf("reduce of %s over axes %v can't produce %s",
			input, instr.Dimensions(), output)
	}
	inputMap := NewIndexingMap(ctx.NewMap(output.Rank(), len(symbolBounds), results...), output.Dimensions,
		symbolBounds)
	maps := make([]IndexingMap, instr.NumOperands())
	for k := range maps {
		if k < numInputs {
			maps[k] = inputMap
		} else {
			maps[k] = scalarOperandMap(ctx, output.Dimensions)
		}
	}
	return FromIndexingMaps(maps...), nil
}

func reduceInputToOutput(ctx *affine.Context, instr *hlo.Instruction, inputID int) (InstructionIndexing, error) {
	numInputs := instr.NumOperands() / 2
	output := instr.OutputShape(0)
	var m IndexingMap
	if inputID >= numInputs {
		m = scalarToOutputMap(ctx, output.Dimensions)
	} else {
		input := instr.Operand(inputID).Shape()
		reduced := sets.MakeWith(instr.Dimensions()...)
		var results []affine.Expr
		for axis := range input.Rank() {
			if !reduced.Has(axis) {
				results = append(results, ctx.Dim(axis))
			}
		}
		m = NewIndexingMap(ctx.NewMap(input.Rank(), 0, results...), input.Dimensions, nil)
	}
	maps := make([]IndexingMap, instr.NumOutputs())
	for ii := range maps {
		maps[ii] = m
	}
	return FromIndexingMaps(maps...), nil
}

func reduceWindowOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	window := instr.Window()
	if len(window) != output.Rank() {
		return InstructionIndexing{}, invalidArgumentf("reduce-window has %d window dimensions for output %s",
			len(window), output)
	}
	results := make([]affine.Expr, output.Rank())
	symbolBounds := make([]int, output.Rank())
	for axis, w := range window {
		if w.BaseDilation != 1 {
			return InstructionIndexing{}, unimplementedf("reduce-window with base dilation %d", w.BaseDilation)
		}
		results[axis] = ctx.Add(
			ctx.MulConst(ctx.Dim(axis), int64(w.Stride)),
			ctx.MulConst(ctx.Symbol(axis), int64(w.WindowDilation)),
			ctx.Constant(-int64(w.PadLow)))
		symbolBounds[axis] = w.Size
	}
	operandMap := NewIndexingMap(ctx.NewMap(output.Rank(), output.Rank(), results...), output.Dimensions, symbolBounds)
	return FromIndexingMaps(operandMap, scalarOperandMap(ctx, output.Dimensions)), nil
}

// freeAxes returns the axes of a dot operand that are neither batch nor contracting axes, in order.
func freeAxes(rank int, batchAxes, contractingAxes []int) []int {
	var free []int
	for axis := range rank {
		if !slices.Contains(batchAxes, axis) && !slices.Contains(contractingAxes, axis) {
			free = append(free, axis)
		}
	}
	return free
}

// dotOutputToInput maps the output, with axes ordered as batch, lhs free and rhs free axes, to both operands.
// Each contracting axis pair shares a symbol.
func dotOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	config := instr.Dot()
	lhs, rhs := instr.Operand(0).Shape(), instr.Operand(1).Shape()
	lhsFree := freeAxes(lhs.Rank(), config.LhsBatchAxes, config.LhsContractingAxes)
	rhsFree := freeAxes(rhs.Rank(), config.RhsBatchAxes, config.RhsContractingAxes)
	numBatch := len(config.LhsBatchAxes)
	if numBatch+len(lhsFree)+len(rhsFree) != output.Rank() {
		return InstructionIndexing{}, invalidArgumentf("dot of %s and %s can't produce %s", lhs, rhs, output)
	}
	operandResults := func(rank int, batchAxes, contractingAxes, free []int, freeOffset int) []affine.Expr {
		results := make([]affine.Expr, rank)
		for b, axis := range batchAxes {
			results[axis] = ctx.Dim(b)
		}
		for j, axis := range contractingAxes {
			results[axis] = ctx.Symbol(j)
		}
		for f, axis := range free {
			results[axis] = ctx.Dim(freeOffset + f)
		}
		return results
	}
	symbolBounds := xslices.Map(config.LhsContractingAxes, lhs.Dim)
	numSymbols := len(symbolBounds)
	lhsMap := ctx.NewMap(output.Rank(), numSymbols,
		operandResults(lhs.Rank(), config.LhsBatchAxes, config.LhsContractingAxes, lhsFree, numBatch)...)
	rhsMap := ctx.NewMap(output.Rank(), numSymbols,
		operandResults(rhs.Rank(), config.RhsBatchAxes, config.RhsContractingAxes, rhsFree, numBatch+len(lhsFree))...)
	return FromIndexingMaps(
		NewIndexingMap(lhsMap, output.Dimensions, symbolBounds),
		NewIndexingMap(rhsMap, output.Dimensions, symbolBounds)), nil
}

// dotInputToOutput maps one operand to the output: the free axes of the other operand become symbols.
func dotInputToOutput(ctx *affine.Context, instr *hlo.Instruction, inputID int) (InstructionIndexing, error) {
	config := instr.Dot()
	lhs, rhs := instr.Operand(0).Shape(), instr.Operand(1).Shape()
	lhsFree := freeAxes(lhs.Rank(), config.LhsBatchAxes, config.LhsContractingAxes)
	rhsFree := freeAxes(rhs.Rank(), config.RhsBatchAxes, config.RhsContractingAxes)
	var (
		results      []affine.Expr
		symbolBounds []int
	)
	input, batchAxes, inputFree := lhs, config.LhsBatchAxes, lhsFree
	if inputID == 1 {
		input, batchAxes, inputFree = rhs, config.RhsBatchAxes, rhsFree
	}
	for _, axis := range batchAxes {
		results = append(results, ctx.Dim(axis))
	}
	appendSymbols := func(other []int, otherShape func(int) int) {
		for _, axis := range other {
			results = append(results, ctx.Symbol(len(symbolBounds)))
			symbolBounds = append(symbolBounds, otherShape(axis))
		}
	}
	appendDims := func() {
		for _, axis := range inputFree {
			results = append(results, ctx.Dim(axis))
		}
	}
	if inputID == 0 {
		appendDims()
		appendSymbols(rhsFree, rhs.Dim)
	} else {
		appendSymbols(lhsFree, lhs.Dim)
		appendDims()
	}
	m := ctx.NewMap(input.Rank(), len(symbolBounds), results...)
	return FromIndexingMaps(NewIndexingMap(m, input.Dimensions, symbolBounds)), nil
}

// offsetBounds returns the number of valid start positions of a window of the given sizes in each axis.
func offsetBounds(dimensions, sizes []int) []int {
	bounds := make([]int, len(dimensions))
	for axis, dim := range dimensions {
		bounds[axis] = max(dim-sizes[axis]+1, 1)
	}
	return bounds
}

func dynamicSliceOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	input := instr.Operand(0).Shape()
	rank := output.Rank()
	results := make([]affine.Expr, rank)
	for axis := range results {
		results[axis] = ctx.Add(ctx.Dim(axis), ctx.Symbol(axis))
	}
	maps := make([]IndexingMap, instr.NumOperands())
	maps[0] = NewIndexingMap(ctx.NewMap(rank, rank, results...), output.Dimensions,
		offsetBounds(input.Dimensions, output.Dimensions))
	for k := 1; k < len(maps); k++ {
		maps[k] = scalarOperandMap(ctx, output.Dimensions)
	}
	return FromIndexingMaps(maps...), nil
}

func dynamicUpdateSliceOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	update := instr.Operand(1).Shape()
	rank := output.Rank()
	results := make([]affine.Expr, rank)
	for axis := range results {
		results[axis] = ctx.Sub(ctx.Dim(axis), ctx.Symbol(axis))
	}
	maps := make([]IndexingMap, instr.NumOperands())
	maps[0] = NewIndexingMap(ctx.IdentityMap(rank), output.Dimensions, nil)
	maps[1] = NewIndexingMap(ctx.NewMap(rank, rank, results...), output.Dimensions,
		offsetBounds(output.Dimensions, update.Dimensions))
	for k := 2; k < len(maps); k++ {
		maps[k] = scalarOperandMap(ctx, output.Dimensions)
	}
	return FromIndexingMaps(maps...), nil
}

func dynamicUpdateSliceInputToOutput(ctx *affine.Context, instr *hlo.Instruction, inputID int) (
	InstructionIndexing, error) {
	output := instr.Shape()
	rank := output.Rank()
	switch inputID {
	case 0:
		return FromIndexingMaps(NewIndexingMap(ctx.IdentityMap(rank), output.Dimensions, nil)), nil
	case 1:
		update := instr.Operand(1).Shape()
		results := make([]affine.Expr, rank)
		for axis := range results {
			results[axis] = ctx.Add(ctx.Dim(axis), ctx.Symbol(axis))
		}
		m := ctx.NewMap(rank, rank, results...)
		return FromIndexingMaps(NewIndexingMap(m, update.Dimensions, offsetBounds(output.Dimensions, update.Dimensions))), nil
	default:
		return FromIndexingMaps(scalarToOutputMap(ctx, output.Dimensions)), nil
	}
}

// gatherOutputToInput maps the output to the operand and to the start indices.
//
// For the operand, each axis listed in the start index map reads at a symbol (the start index, clamped to the
// valid range) plus the offset dimension of the output, if the axis is not collapsed. For the start indices, the
// batch dimensions of the output select the index vector, whose elements are all read (a symbol).
func gatherOutputToInput(ctx *affine.Context, instr *hlo.Instruction, _ int) (InstructionIndexing, error) {
	output := instr.Shape()
	config := instr.Gather()
	operand, indices := instr.Operand(0).Shape(), instr.Operand(1).Shape()
	rank := output.Rank()

	collapsed := sets.MakeWith(config.CollapsedSliceAxes...)
	offsetAxisFor := make(map[int]int, len(config.OffsetAxes))
	nonCollapsed := 0
	for axis := range operand.Rank() {
		if !collapsed.Has(axis) {
			if nonCollapsed >= len(config.OffsetAxes) {
				return InstructionIndexing{}, invalidArgumentf("gather offset dimensions %v don't match operand %s",
					config.OffsetAxes, operand)
			}
			offsetAxisFor[axis] = config.OffsetAxes[nonCollapsed]
			nonCollapsed++
		}
	}
	operandResults := make([]affine.Expr, operand.Rank())
	for axis := range operandResults {
		var terms []affine.Expr
		if k := slices.Index(config.StartIndexMap, axis); k >= 0 {
			terms = append(terms, ctx.Symbol(k))
		}
		if offsetAxis, found := offsetAxisFor[axis]; found {
			terms = append(terms, ctx.Dim(offsetAxis))
		}
		operandResults[axis] = ctx.Add(terms...)
	}
	operandSymbolBounds := make([]int, len(config.StartIndexMap))
	for k, axis := range config.StartIndexMap {
		operandSymbolBounds[k] = max(operand.Dimensions[axis]-config.SliceSizes[axis]+1, 1)
	}
	operandMap := NewIndexingMap(ctx.NewMap(rank, len(operandSymbolBounds), operandResults...), output.Dimensions,
		operandSymbolBounds)

	offsetAxes := sets.MakeWith(config.OffsetAxes...)
	var batchAxes []int
	for axis := range rank {
		if !offsetAxes.Has(axis) {
			batchAxes = append(batchAxes, axis)
		}
	}
	var (
		indicesResults      []affine.Expr
		indicesSymbolBounds []int
	)
	batch := 0
	for axis, dim := range indices.Dimensions {
		if axis == config.IndexVectorAxis {
			indicesResults = append(indicesResults, ctx.Symbol(0))
			indicesSymbolBounds = append(indicesSymbolBounds, dim)
			continue
		}
		if batch >= len(batchAxes) {
			return InstructionIndexing{}, invalidArgumentf("gather start indices %s don't match output %s",
				indices, output)
		}
		indicesResults = append(indicesResults, ctx.Dim(batchAxes[batch]))
		batch++
	}
	indicesMap := NewIndexingMap(ctx.NewMap(rank, len(indicesSymbolBounds), indicesResults...), output.Dimensions,
		indicesSymbolBounds)
	return FromIndexingMaps(operandMap, indicesMap), nil
}
