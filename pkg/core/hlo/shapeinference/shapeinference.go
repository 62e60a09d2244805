// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from HLO operations and validates their inputs.
//
// Elementwise operations are handled by UnaryOp, BinaryOp, SelectOp and ClampOp. For the remainder ops, it defines
// one function per operation, taking the operation attributes as plain values.
package shapeinference

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/gomlx/tileanalysis/pkg/core/shapes"
	"github.com/gomlx/tileanalysis/pkg/support/sets"
	"github.com/pkg/errors"
)

func isNumber(dtype dtypes.DType) bool {
	return dtype.IsInt() || dtype.IsFloat() || dtype.IsComplex()
}

func checkDType(op opcode.Code, operand shapes.Shape) error {
	if operand.DType == dtypes.InvalidDType {
		return errors.Errorf("invalid shape %s for %s", operand, op)
	}
	if opcode.Logical.Has(op) && operand.DType != dtypes.Bool && !operand.DType.IsInt() {
		return errors.Errorf("logical op %s must have boolean or integer data types as input, got %s", op, operand)
	}
	if opcode.FloatOrComplex.Has(op) && !(operand.DType.IsFloat() || operand.DType.IsComplex()) {
		return errors.Errorf("op %s must have a float or complex (Float32, Complex64, ...) data type as input, got %s",
			op, operand)
	}
	if op == opcode.Negate && (operand.DType.IsUnsigned() || !isNumber(operand.DType)) {
		return errors.Errorf("op %s must have a signed data type as input, got %s", op, operand)
	}
	return nil
}

// UnaryOp checks the validity of the data type for UnaryElementwise operations and returns either an error or
// the output shape, which is the same as the operand. Convert is handled by ConvertOp.
func UnaryOp(op opcode.Code, operand shapes.Shape) (output shapes.Shape, err error) {
	if !opcode.UnaryElementwise.Has(op) || op == opcode.Convert {
		err = errors.Errorf("operation %s is not a unary elementwise operation, cannot process it with UnaryOp", op)
		return
	}
	if err = checkDType(op, operand); err != nil {
		return
	}
	output = operand
	return
}

// ConvertOp returns the operand shape with the given dtype.
func ConvertOp(operand shapes.Shape, dtype dtypes.DType) (output shapes.Shape, err error) {
	if operand.DType == dtypes.InvalidDType || dtype == dtypes.InvalidDType {
		err = errors.Errorf("invalid dtypes for convert from %s to %s", operand, dtype)
		return
	}
	output = operand.Clone()
	output.DType = dtype
	return
}

// BinaryOp returns the expected output shape for operations in the BinaryElementwise set.
//
// Operands must have the same dtype, and either the same dimensions, or one of them must be a scalar, or the
// differing axes must have dimension 1. Compare returns booleans.
func BinaryOp(op opcode.Code, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	if !opcode.BinaryElementwise.Has(op) {
		err = errors.Errorf("operation %s is not a binary elementwise operation, cannot process it with BinaryOp", op)
		return
	}
	if err = checkDType(op, lhsShape); err != nil {
		return
	}
	if lhsShape.DType != rhsShape.DType {
		err = errors.Errorf("data types (DType) for BinaryOp %s must match, got %s and %s", op, lhsShape, rhsShape)
		return
	}
	output, err = broadcastDimensions(op, lhsShape, rhsShape)
	if err != nil {
		return
	}
	if op == opcode.Compare {
		output.DType = dtypes.Bool
	}
	return
}

func broadcastDimensions(op opcode.Code, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	// Trivial cases: if one of the sides is a scalar, return the other side shape.
	if lhsShape.IsScalar() {
		return rhsShape.Clone(), nil
	}
	if rhsShape.IsScalar() {
		return lhsShape.Clone(), nil
	}

	// Other cases, either the dimensions match or one of them is 1.
	if lhsShape.Rank() != rhsShape.Rank() {
		err = errors.Errorf("if operands are not scalars, their rank must match for %s, got shapes %s and %s",
			op, lhsShape, rhsShape)
		return
	}
	output = lhsShape.Clone()
	for axis := range output.Rank() {
		lhsDim := lhsShape.Dimensions[axis]
		rhsDim := rhsShape.Dimensions[axis]
		if lhsDim != 1 && rhsDim != 1 && lhsDim != rhsDim {
			err = errors.Errorf("dimension of axis #%d doesn't match and cannot be broadcast for %s, got shapes %s and %s",
				axis, op, lhsShape, rhsShape)
			return
		}
		output.Dimensions[axis] = max(lhsDim, rhsDim)
	}
	return
}

// SelectOp returns the shape resulting from the Select operation.
//
// The condition must be a boolean. The onTrue and onFalse values must have the same dtype, and all three
// operands must have the same dimensions or be scalars.
func SelectOp(condition, onTrue, onFalse shapes.Shape) (output shapes.Shape, err error) {
	if condition.DType != dtypes.Bool {
		err = errors.Errorf("condition for select must be a boolean, got %s instead", condition)
		return
	}
	if onTrue.DType != onFalse.DType {
		err = errors.Errorf("onTrue (%s) and onFalse (%s) values for select must have the same dtype", onTrue, onFalse)
		return
	}
	output, err = broadcastDimensions(opcode.Select, onTrue, onFalse)
	if err != nil {
		return
	}
	if !condition.IsScalar() && !output.IsScalar() && !slices.Equal(condition.Dimensions, output.Dimensions) {
		err = errors.Errorf("condition for select must either be a scalar or match the output shape, got "+
			"condition=%s, onTrue=%s and onFalse=%s", condition, onTrue, onFalse)
		return
	}
	if output.IsScalar() && !condition.IsScalar() {
		output = shapes.Make(onTrue.DType, condition.Dimensions...)
	}
	return
}

// ClampOp returns the shape of clamp(min, operand, max): the bounds must be scalars or match the operand.
func ClampOp(minShape, operand, maxShape shapes.Shape) (output shapes.Shape, err error) {
	for _, bound := range []shapes.Shape{minShape, maxShape} {
		if bound.DType != operand.DType {
			err = errors.Errorf("clamp bounds must have the operand dtype, got bound %s for operand %s", bound, operand)
			return
		}
		if !bound.IsScalar() && !bound.EqualDimensions(operand) {
			err = errors.Errorf("clamp bounds must be scalars or match the operand, got bound %s for operand %s",
				bound, operand)
			return
		}
	}
	output = operand
	return
}

// IotaOp checks that iotaAxis is a valid axis of the (non-scalar) output shape.
func IotaOp(output shapes.Shape, iotaAxis int) error {
	if output.IsTuple() || output.Rank() == 0 {
		return errors.Errorf("iota requires a non-scalar array output, got %s", output)
	}
	return output.CheckAxis(iotaAxis, nil)
}

// ReshapeOp to the given dimensions: trivial output shape, but this function also checks
// that the sizes are the same.
func ReshapeOp(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	for _, dim := range dims {
		if dim < 0 {
			return shapes.Invalid(), errors.Errorf("reshape cannot reshape %s to negative dimensions %v", operand, dims)
		}
	}
	output = shapes.Make(operand.DType, dims...)
	if operand.Size() != output.Size() {
		err = errors.Errorf("reshape cannot reshape %s to dimensions %v, their size don't match", operand, dims)
		return shapes.Invalid(), err
	}
	return
}

// TransposeOp all axes of the operand.
// There must be one value in permutations for each axis in the operand.
// The output will have: output.Dimensions[i] = operand.Dimensions[permutations[i]].
func TransposeOp(operand shapes.Shape, permutations []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if len(permutations) != rank {
		err = errors.Errorf("transpose requires all axes permutations to be defined, operand has shape %s, "+
			"but %d permutations were given", operand, len(permutations))
		return
	}
	seen := make([]bool, rank)
	for _, srcAxis := range permutations {
		if err = operand.CheckAxis(srcAxis, seen); err != nil {
			err = errors.WithMessagef(err, "invalid permutations %v for transpose", permutations)
			return
		}
	}
	output = operand.Clone()
	for axis := range output.Dimensions {
		output.Dimensions[axis] = operand.Dimensions[permutations[axis]]
	}
	return
}

// ReverseOp checks that the reversed axes are valid and unique. The output has the operand shape.
func ReverseOp(operand shapes.Shape, axes []int) (output shapes.Shape, err error) {
	seen := make([]bool, operand.Rank())
	for _, axis := range axes {
		if err = operand.CheckAxis(axis, seen); err != nil {
			err = errors.WithMessagef(err, "invalid axes %v for reverse", axes)
			return
		}
	}
	output = operand
	return
}

// BroadcastOp verifies that the arguments are valid: broadcastAxes maps each operand axis to an output axis, and
// the dimensions must match. The output shape is already known, so nothing is returned.
func BroadcastOp(operand, outputShape shapes.Shape, broadcastAxes []int) error {
	if operand.DType != outputShape.DType {
		return errors.Errorf("broadcast cannot change the dtype, operand is %s and output is %s", operand, outputShape)
	}
	if len(broadcastAxes) != operand.Rank() {
		return errors.Errorf("there must be exactly one broadcast axis (%v) per axis in the operand (%s)",
			broadcastAxes, operand)
	}
	seen := make([]bool, outputShape.Rank())
	for axisInOperand, axisInOutput := range broadcastAxes {
		if err := outputShape.CheckAxis(axisInOutput, seen); err != nil {
			return errors.WithMessagef(err, "invalid broadcast axes %v", broadcastAxes)
		}
		if operand.Dimensions[axisInOperand] != outputShape.Dimensions[axisInOutput] {
			return errors.Errorf("broadcast operand %s axis %d has dimension %d, but it is mapped to output %s axis %d "+
				"with dimension %d", operand, axisInOperand, operand.Dimensions[axisInOperand], outputShape,
				axisInOutput, outputShape.Dimensions[axisInOutput])
		}
	}
	return nil
}

// ReduceOp returns the output of a (variadic) reduce of the inputs over the given axes: a single shape if there is
// one input, or a tuple with one element per input otherwise. There must be one scalar init value per input.
func ReduceOp(inputs, inits []shapes.Shape, axes []int) (output shapes.Shape, err error) {
	if len(inputs) == 0 || len(inputs) != len(inits) {
		err = errors.Errorf("reduce requires at least one input and one init value per input, got %d inputs and %d inits",
			len(inputs), len(inits))
		return
	}
	seen := make([]bool, inputs[0].Rank())
	for _, axis := range axes {
		if err = inputs[0].CheckAxis(axis, seen); err != nil {
			err = errors.WithMessagef(err, "invalid reduce axes %v", axes)
			return
		}
	}
	axesSet := sets.MakeWith(axes...)
	elements := make([]shapes.Shape, len(inputs))
	for ii, input := range inputs {
		if !input.EqualDimensions(inputs[0]) {
			err = errors.Errorf("reduce inputs must have the same dimensions, got %s and %s", inputs[0], input)
			return
		}
		if err = inits[ii].Check(input.DType); err != nil {
			err = errors.WithMessagef(err, "reduce init value #%d must be a scalar of the input dtype", ii)
			return
		}
		elements[ii] = shapes.Make(input.DType)
		for axis, dim := range input.Dimensions {
			if !axesSet.Has(axis) {
				elements[ii].Dimensions = append(elements[ii].Dimensions, dim)
			}
		}
	}
	if len(elements) == 1 {
		return elements[0], nil
	}
	return shapes.MakeTuple(elements), nil
}

// GatherOp returns the output shape of a Gather operation.
func GatherOp(operand, startIndices shapes.Shape, indexVectorAxis int, offsetOutputAxes, collapsedSliceAxes,
	startIndexMap, sliceSizes []int) (output shapes.Shape, err error) {
	if operand.IsScalar() {
		return output, errors.Errorf("gather requires a non-scalar operand, got %s", operand)
	}
	if !startIndices.DType.IsInt() {
		return output, errors.Errorf("gather start indices must be integers, got %s", startIndices)
	}

	setCollapsedAxes := sets.Make[int]()
	for _, collapsedSliceAxis := range collapsedSliceAxes {
		if collapsedSliceAxis < 0 || collapsedSliceAxis >= operand.Rank() {
			return output, errors.Errorf("collapsed slice axis %d is out of range for operand %s", collapsedSliceAxis, operand)
		}
		if setCollapsedAxes.Has(collapsedSliceAxis) {
			return output, errors.Errorf("collapsed slice axis %d is defined more than once for operand %s", collapsedSliceAxis, operand)
		}
		setCollapsedAxes.Insert(collapsedSliceAxis)
	}

	// Check slice sizes.
	if len(sliceSizes) != operand.Rank() {
		return output, errors.Errorf("sliceSizes must have one value per operand axes, so it length (%d) must match operand rank (%d)",
			len(sliceSizes), operand.Rank())
	}
	for axis, sliceSize := range sliceSizes {
		if sliceSize < 0 {
			return output, errors.Errorf("sliceSize %d for axis %d is negative, it must be non-negative", sliceSize, axis)
		}
		if operand.Dimensions[axis] < sliceSize {
			return output, errors.Errorf("sliceSize %d for axis %d is larger than the corresponding operand dimension %d",
				sliceSize, axis, operand.Dimensions[axis])
		}
	}
	for collapseAxis := range setCollapsedAxes {
		if sliceSizes[collapseAxis] != 1 {
			return output, errors.Errorf("collapsed slice axis %d must have sliceSize 1, but got %d", collapseAxis, sliceSizes[collapseAxis])
		}
	}
	if operand.Rank() != len(collapsedSliceAxes)+len(offsetOutputAxes) {
		return output, errors.Errorf("the number of collapsedSliceAxes (%d) + the number of offsetOutputAxes (%d) must be equal "+
			"to the number of axes in the operand (operand.Rank()=%d)", len(collapsedSliceAxes), len(offsetOutputAxes), operand.Rank())
	}

	// indexVectorAxis can be equal to startIndices.Rank(), in which case we assume an implicit trailing axis of
	// dimension 1.
	if indexVectorAxis < 0 || indexVectorAxis > startIndices.Rank() {
		return output, errors.Errorf("indexVectorAxis=%d is out of range for start indices %s", indexVectorAxis, startIndices)
	}
	indexVectorSize := 1
	batchRank := startIndices.Rank()
	if indexVectorAxis < startIndices.Rank() {
		indexVectorSize = startIndices.Dimensions[indexVectorAxis]
		batchRank--
	}
	if len(startIndexMap) != indexVectorSize {
		return output, errors.Errorf("startIndexMap must have one value per element of the index vector, so its length (%d) "+
			"must be %d", len(startIndexMap), indexVectorSize)
	}
	seen := make([]bool, operand.Rank())
	for idx, operandAxis := range startIndexMap {
		if err = operand.CheckAxis(operandAxis, seen); err != nil {
			return shapes.Invalid(), errors.WithMessagef(err, "invalid startIndexMap[%d]", idx)
		}
	}

	// Axes in offsetOutputAxes take their dimensions sequentially from the non-collapsed operand axes, the
	// remaining axes are the batch axes, taken from startIndices.
	output = shapes.Make(operand.DType)
	output.Dimensions = make([]int, batchRank+len(offsetOutputAxes))
	setOffsetOutputAxes := sets.Make[int]()
	for _, offsetOutputAxis := range offsetOutputAxes {
		if offsetOutputAxis < 0 || offsetOutputAxis >= output.Rank() {
			return shapes.Invalid(), errors.Errorf("offset output axis %d is out of range for output of rank %d", offsetOutputAxis, output.Rank())
		}
		if setOffsetOutputAxes.Has(offsetOutputAxis) {
			return shapes.Invalid(), errors.Errorf("offset output axis %d is defined more than once: offsetOutputAxes=%v", offsetOutputAxis, offsetOutputAxes)
		}
		setOffsetOutputAxes.Insert(offsetOutputAxis)
	}
	offsetDims := make([]int, 0, len(offsetOutputAxes))
	for axis, sliceSize := range sliceSizes {
		if !setCollapsedAxes.Has(axis) {
			offsetDims = append(offsetDims, sliceSize)
		}
	}
	offsetDimsIdx := 0
	batchDimsIdx := 0
	for axis := range output.Dimensions {
		if setOffsetOutputAxes.Has(axis) {
			output.Dimensions[axis] = offsetDims[offsetDimsIdx]
			offsetDimsIdx++
		} else {
			if batchDimsIdx == indexVectorAxis {
				batchDimsIdx++
			}
			output.Dimensions[axis] = startIndices.Dimensions[batchDimsIdx]
			batchDimsIdx++
		}
	}
	return output, nil
}

// ConcatenateOp calculates the output shape of a Concatenate operation.
// It takes a slice of input shapes and the axis along which to concatenate.
func ConcatenateOp(inputs []shapes.Shape, axis int) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), errors.Errorf("concatenate requires at least one input shape")
	}
	firstShape := inputs[0]
	dtype := firstShape.DType
	rank := firstShape.Rank()
	if dtype == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("invalid shape %s for first input of concatenate", firstShape)
	}
	if axis < 0 || axis >= rank {
		return shapes.Invalid(), errors.Errorf("invalid concatenation axis %d for shapes with rank %d", axis, rank)
	}
	output = firstShape.Clone()
	for i := 1; i < len(inputs); i++ {
		currentShape := inputs[i]
		if currentShape.DType != dtype {
			return shapes.Invalid(), errors.Errorf("mismatched DTypes for concatenate: input #0 has %s, input #%d has %s",
				dtype, i, currentShape.DType)
		}
		if currentShape.Rank() != rank {
			return shapes.Invalid(), errors.Errorf("mismatched ranks for concatenate: input #0 has rank %d, input #%d has rank %d",
				rank, i, currentShape.Rank())
		}
		for d := range rank {
			if d == axis {
				output.Dimensions[d] += currentShape.Dimensions[d]
			} else if currentShape.Dimensions[d] != output.Dimensions[d] {
				return shapes.Invalid(), errors.Errorf("mismatched dimensions for concatenate at axis %d (non-concatenation axis): "+
					"input #0 has %d, input #%d has %d", d, output.Dimensions[d], i, currentShape.Dimensions[d])
			}
		}
	}
	return output, nil
}

// SliceOp calculates the output shape for a Slice operation.
// It checks that starts, limits, and strides have the correct length (matching operand rank),
// and that the slice parameters are valid for the operand's dimensions.
// Strides must be positive.
func SliceOp(operand shapes.Shape, starts, limits, strides []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if operand.DType == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("slice: invalid operand shape %s", operand)
	}
	if len(starts) != rank || len(limits) != rank || len(strides) != rank {
		return shapes.Invalid(), errors.Errorf("slice: starts (%v), limits (%v) and strides (%v) must have one value per "+
			"axis of the operand %s", starts, limits, strides, operand)
	}
	output = shapes.Make(operand.DType)
	output.Dimensions = make([]int, rank)
	for axis := range rank {
		start, limit, stride := starts[axis], limits[axis], strides[axis]
		dimSize := operand.Dimensions[axis]
		if stride <= 0 {
			return shapes.Invalid(), errors.Errorf("slice: stride must be positive, but got stride[%d]=%d for operand shape %s",
				axis, stride, operand)
		}
		if start < 0 || start > dimSize {
			return shapes.Invalid(), errors.Errorf("slice: start index %d is out of bounds for axis %d with size %d (operand shape %s)",
				start, axis, dimSize, operand)
		}
		if limit < start || limit > dimSize {
			return shapes.Invalid(), errors.Errorf("slice: limit index %d is out of bounds for axis %d (start=%d, size=%d, operand shape %s)",
				limit, axis, start, dimSize, operand)
		}
		// The first one is always taken, so we use the ceiling of the division.
		output.Dimensions[axis] = (limit - start + (stride - 1)) / stride
	}
	return output, nil
}

// PadOp returns the shape of the operand padded with lows[i] elements before, highs[i] elements after and
// interiors[i] elements between each element of axis i. Edge paddings can be negative (cropping).
func PadOp(operand, value shapes.Shape, lows, highs, interiors []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if err = value.Check(operand.DType); err != nil {
		return shapes.Invalid(), errors.WithMessage(err, "pad value must be a scalar of the operand dtype")
	}
	if len(lows) != rank || len(highs) != rank || len(interiors) != rank {
		return shapes.Invalid(), errors.Errorf("pad: padding config must have one entry per axis of the operand %s", operand)
	}
	output = shapes.Make(operand.DType)
	output.Dimensions = make([]int, rank)
	for axis, dim := range operand.Dimensions {
		if interiors[axis] < 0 {
			return shapes.Invalid(), errors.Errorf("pad: interior padding of axis %d must be non-negative, got %d",
				axis, interiors[axis])
		}
		size := lows[axis] + highs[axis] + dim
		if dim > 0 {
			size += (dim - 1) * interiors[axis]
		}
		if size < 0 {
			return shapes.Invalid(), errors.Errorf("pad: axis %d of operand %s would have negative dimension %d", axis, operand, size)
		}
		output.Dimensions[axis] = size
	}
	return output, nil
}

// DotGeneralOp returns the shape of a dot general operation: the batch axes, followed by the lhs free axes, followed
// by the rhs free axes, each in their operand order.
func DotGeneralOp(lhs, rhs shapes.Shape, lhsBatchAxes, lhsContractingAxes, rhsBatchAxes, rhsContractingAxes []int) (
	output shapes.Shape, err error) {
	if lhs.DType != rhs.DType {
		return shapes.Invalid(), errors.Errorf("dot operands must have the same dtype, got %s and %s", lhs, rhs)
	}
	if len(lhsBatchAxes) != len(rhsBatchAxes) || len(lhsContractingAxes) != len(rhsContractingAxes) {
		return shapes.Invalid(), errors.Errorf("dot must have the same number of batch and contracting axes in both operands, "+
			"got lhs batch=%v, contracting=%v, rhs batch=%v, contracting=%v",
			lhsBatchAxes, lhsContractingAxes, rhsBatchAxes, rhsContractingAxes)
	}
	lhsSeen, rhsSeen := make([]bool, lhs.Rank()), make([]bool, rhs.Rank())
	for _, pair := range [][2][]int{{lhsBatchAxes, rhsBatchAxes}, {lhsContractingAxes, rhsContractingAxes}} {
		for ii := range pair[0] {
			if err = lhs.CheckAxis(pair[0][ii], lhsSeen); err != nil {
				return shapes.Invalid(), errors.WithMessage(err, "invalid dot lhs axes")
			}
			if err = rhs.CheckAxis(pair[1][ii], rhsSeen); err != nil {
				return shapes.Invalid(), errors.WithMessage(err, "invalid dot rhs axes")
			}
			if lhs.Dimensions[pair[0][ii]] != rhs.Dimensions[pair[1][ii]] {
				return shapes.Invalid(), errors.Errorf("dot lhs axis %d and rhs axis %d must have the same dimension, got %s and %s",
					pair[0][ii], pair[1][ii], lhs, rhs)
			}
		}
	}
	output = shapes.Make(lhs.DType)
	for _, axis := range lhsBatchAxes {
		output.Dimensions = append(output.Dimensions, lhs.Dimensions[axis])
	}
	for axis, dim := range lhs.Dimensions {
		if !lhsSeen[axis] {
			output.Dimensions = append(output.Dimensions, dim)
		}
	}
	for axis, dim := range rhs.Dimensions {
		if !rhsSeen[axis] {
			output.Dimensions = append(output.Dimensions, dim)
		}
	}
	return output, nil
}

func checkScalarIndices(op opcode.Code, rank int, startIndices []shapes.Shape) error {
	if len(startIndices) != rank {
		return errors.Errorf("%s requires one start index per operand axis (%d), got %d", op, rank, len(startIndices))
	}
	for ii, index := range startIndices {
		if !index.IsScalar() || !index.DType.IsInt() {
			return errors.Errorf("%s start index #%d must be an integer scalar, got %s", op, ii, index)
		}
	}
	return nil
}

// DynamicSliceOp returns the shape of a dynamic slice of the given sizes. There must be one integer scalar start
// index per axis.
func DynamicSliceOp(operand shapes.Shape, startIndices []shapes.Shape, sizes []int) (output shapes.Shape, err error) {
	if err = checkScalarIndices(opcode.DynamicSlice, operand.Rank(), startIndices); err != nil {
		return shapes.Invalid(), err
	}
	if len(sizes) != operand.Rank() {
		return shapes.Invalid(), errors.Errorf("dynamic-slice requires one size per operand axis, got sizes %v for %s", sizes, operand)
	}
	for axis, size := range sizes {
		if size < 0 || size > operand.Dimensions[axis] {
			return shapes.Invalid(), errors.Errorf("dynamic-slice size %d for axis %d is out of range for operand %s",
				size, axis, operand)
		}
	}
	return shapes.Make(operand.DType, sizes...), nil
}

// DynamicUpdateSliceOp checks that update fits in the operand. The output has the operand shape.
func DynamicUpdateSliceOp(operand, update shapes.Shape, startIndices []shapes.Shape) (output shapes.Shape, err error) {
	if err = checkScalarIndices(opcode.DynamicUpdateSlice, operand.Rank(), startIndices); err != nil {
		return shapes.Invalid(), err
	}
	if update.DType != operand.DType || update.Rank() != operand.Rank() {
		return shapes.Invalid(), errors.Errorf("dynamic-update-slice update %s must have the same dtype and rank of the operand %s",
			update, operand)
	}
	for axis, dim := range update.Dimensions {
		if dim > operand.Dimensions[axis] {
			return shapes.Invalid(), errors.Errorf("dynamic-update-slice update %s doesn't fit in the operand %s", update, operand)
		}
	}
	return operand, nil
}

// ReduceWindowOp returns the expected output shape for the operation.
//
// Notice it doesn't take as input the reduction computation, since it doesn't affect the output shape.
func ReduceWindowOp(operand shapes.Shape, windowDimensions, strides, baseDilations, windowDilations []int, paddings [][2]int) (shapes.Shape, error) {
	if !operand.Ok() || operand.IsTuple() {
		return shapes.Invalid(), errors.Errorf("reduce-window: invalid operand shape %s", operand)
	}
	rank := operand.Rank()
	for name, values := range map[string][]int{"windowDimensions": windowDimensions, "strides": strides,
		"baseDilations": baseDilations, "windowDilations": windowDilations} {
		if len(values) != 0 && len(values) != rank {
			return shapes.Invalid(), errors.Errorf("reduce-window: len(%s)=%d, but operand rank is %d", name, len(values), rank)
		}
	}
	if len(paddings) != 0 && len(paddings) != rank {
		return shapes.Invalid(), errors.Errorf("reduce-window: len(paddings)=%d, but operand rank is %d", len(paddings), rank)
	}
	valueOr := func(values []int, axis, defaultValue int) int {
		if len(values) == 0 {
			return defaultValue
		}
		return values[axis]
	}

	// Each output dimension is calculated orthogonally to the others.
	outputDims := make([]int, rank)
	for i := range rank {
		inputDim := operand.Dimensions[i]
		windowDim := valueOr(windowDimensions, i, 1)
		stride := valueOr(strides, i, windowDim)
		baseDilation := valueOr(baseDilations, i, 1)
		windowDilation := valueOr(windowDilations, i, 1)
		if windowDim < 1 || stride < 1 || baseDilation < 1 || windowDilation < 1 {
			return shapes.Invalid(), errors.Errorf("reduce-window: window size, stride and dilations of axis %d must be >= 1, "+
				"got %d, %d, %d and %d for operand shape %s", i, windowDim, stride, baseDilation, windowDilation, operand)
		}
		paddingLow, paddingHigh := 0, 0
		if len(paddings) > 0 {
			paddingLow, paddingHigh = paddings[i][0], paddings[i][1]
			if paddingLow < 0 || paddingHigh < 0 {
				return shapes.Invalid(), errors.Errorf("reduce-window: paddings[%d]=[%d, %d] must be non-negative for operand shape %s",
					i, paddingLow, paddingHigh, operand)
			}
		}
		effectiveInputDim := 0
		if inputDim > 0 {
			effectiveInputDim = (inputDim-1)*baseDilation + 1
		}
		effectiveWindowDim := (windowDim-1)*windowDilation + 1
		paddedEffectiveInputDim := effectiveInputDim + paddingLow + paddingHigh
		if effectiveWindowDim > paddedEffectiveInputDim {
			outputDims[i] = 0
			continue
		}
		outputDims[i] = (paddedEffectiveInputDim-effectiveWindowDim)/stride + 1
	}
	return shapes.Make(operand.DType, outputDims...), nil
}
