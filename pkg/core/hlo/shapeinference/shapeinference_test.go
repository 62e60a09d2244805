// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/gomlx/tileanalysis/pkg/core/shapes"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	Bool = dtypes.Bool
	I32  = dtypes.Int32
	U32  = dtypes.Uint32
	F32  = dtypes.Float32

	MS = shapes.Make
)

// must1 panics if there is an error.
func must1[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

func TestElementwiseOps(t *testing.T) {
	var err error
	_, err = BinaryOp(opcode.And, MS(F32), MS(F32))
	require.Error(t, err)
	_, err = BinaryOp(opcode.Add, MS(F32, 2), MS(I32, 2))
	require.Error(t, err)
	_, err = BinaryOp(opcode.Exponential, MS(F32), MS(F32))
	require.Error(t, err)
	_, err = BinaryOp(opcode.Add, MS(F32, 2, 3), MS(F32, 3, 2))
	require.Error(t, err)

	require.True(t, MS(F32, 2, 3).Equal(must1(BinaryOp(opcode.Add, MS(F32), MS(F32, 2, 3)))))
	require.True(t, MS(F32, 2, 3).Equal(must1(BinaryOp(opcode.Multiply, MS(F32, 2, 1), MS(F32, 1, 3)))))
	require.True(t, MS(Bool, 4).Equal(must1(BinaryOp(opcode.Compare, MS(I32, 4), MS(I32, 4)))))

	require.True(t, MS(F32, 5).Equal(must1(UnaryOp(opcode.Exponential, MS(F32, 5)))))
	_, err = UnaryOp(opcode.Exponential, MS(I32, 5))
	require.Error(t, err)
	_, err = UnaryOp(opcode.Negate, MS(U32, 5))
	require.Error(t, err)
	require.True(t, MS(I32, 5).Equal(must1(ConvertOp(MS(F32, 5), I32))))

	require.True(t, MS(F32, 3).Equal(must1(SelectOp(MS(Bool, 3), MS(F32, 3), MS(F32)))))
	require.True(t, MS(F32, 3).Equal(must1(SelectOp(MS(Bool, 3), MS(F32), MS(F32)))))
	_, err = SelectOp(MS(F32, 3), MS(F32, 3), MS(F32, 3))
	require.Error(t, err)
	require.True(t, MS(F32, 3).Equal(must1(ClampOp(MS(F32), MS(F32, 3), MS(F32, 3)))))
	_, err = ClampOp(MS(F32, 2), MS(F32, 3), MS(F32))
	require.Error(t, err)
}

func TestLayoutOps(t *testing.T) {
	require.True(t, MS(F32, 3, 4).Equal(must1(ReshapeOp(MS(F32, 12), []int{3, 4}))))
	_, err := ReshapeOp(MS(F32, 12), []int{5, 2})
	require.Error(t, err)

	require.True(t, MS(F32, 4, 2, 3).Equal(must1(TransposeOp(MS(F32, 2, 3, 4), []int{2, 0, 1}))))
	_, err = TransposeOp(MS(F32, 2, 3), []int{0, 0})
	require.Error(t, err)

	require.True(t, MS(F32, 2, 3).Equal(must1(ReverseOp(MS(F32, 2, 3), []int{1}))))
	_, err = ReverseOp(MS(F32, 2, 3), []int{2})
	require.Error(t, err)

	require.NoError(t, BroadcastOp(MS(F32, 3), MS(F32, 2, 3), []int{1}))
	require.Error(t, BroadcastOp(MS(F32, 3), MS(F32, 2, 3), []int{0}))
	require.Error(t, BroadcastOp(MS(F32, 3), MS(F32, 2, 3), []int{}))

	require.True(t, MS(F32, 5, 3).Equal(must1(ConcatenateOp([]shapes.Shape{MS(F32, 2, 3), MS(F32, 3, 3)}, 0))))
	_, err = ConcatenateOp([]shapes.Shape{MS(F32, 2, 3), MS(F32, 3, 2)}, 0)
	require.Error(t, err)
}

func TestSliceAndPadOps(t *testing.T) {
	// Dim 0: (10-1)/2 -> 5 elements (indices 1, 3, 5, 7, 9)
	// Dim 1: (8-0)/3 -> 3 elements (indices 0, 3, 6)
	require.True(t, MS(Bool, 5, 3).Equal(must1(SliceOp(MS(Bool, 10, 8), []int{1, 0}, []int{10, 8}, []int{2, 3}))))
	require.True(t, MS(F32, 0).Equal(must1(SliceOp(MS(F32, 4), []int{4}, []int{4}, []int{1}))))
	_, err := SliceOp(MS(F32, 10), []int{2}, []int{11}, []int{1})
	require.Error(t, err)
	_, err = SliceOp(MS(F32, 10), []int{2}, []int{8}, []int{0})
	require.Error(t, err)

	// 1 + 2 + 4 + 3*1 = 10
	require.True(t, MS(F32, 10, 2).Equal(must1(PadOp(MS(F32, 4, 4), MS(F32), []int{1, -1}, []int{2, -1}, []int{1, 0}))))
	_, err = PadOp(MS(F32, 4), MS(F32, 1), []int{0}, []int{0}, []int{0})
	require.Error(t, err)
	_, err = PadOp(MS(F32, 4), MS(F32), []int{-3}, []int{-3}, []int{0})
	require.Error(t, err)
}

func TestReduceOps(t *testing.T) {
	require.True(t, MS(F32, 2).Equal(must1(ReduceOp([]shapes.Shape{MS(F32, 2, 3)}, []shapes.Shape{MS(F32)}, []int{1}))))
	tuple := must1(ReduceOp([]shapes.Shape{MS(F32, 2, 3), MS(I32, 2, 3)}, []shapes.Shape{MS(F32), MS(I32)}, []int{0}))
	require.True(t, tuple.IsTuple())
	require.True(t, MS(I32, 3).Equal(tuple.TupleElement(1)))
	_, err := ReduceOp([]shapes.Shape{MS(F32, 2, 3)}, []shapes.Shape{MS(F32, 1)}, []int{1})
	require.Error(t, err)
	_, err = ReduceOp([]shapes.Shape{MS(F32, 2, 3)}, []shapes.Shape{MS(F32)}, []int{1, 1})
	require.Error(t, err)

	require.True(t, MS(F32, 4, 5).Equal(must1(ReduceWindowOp(MS(F32, 8, 6), []int{2, 3}, []int{2, 1}, nil, nil,
		[][2]int{{0, 0}, {1, 0}}))))
	_, err = ReduceWindowOp(MS(F32, 8, 6), []int{2}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestDotOp(t *testing.T) {
	output := must1(DotGeneralOp(MS(F32, 4, 10, 3), MS(F32, 4, 3, 7), []int{0}, []int{2}, []int{0}, []int{1}))
	require.True(t, MS(F32, 4, 10, 7).Equal(output), "got %s", output)
	_, err := DotGeneralOp(MS(F32, 4, 10, 3), MS(F32, 4, 5, 7), []int{0}, []int{2}, []int{0}, []int{1})
	require.Error(t, err)
	_, err = DotGeneralOp(MS(F32, 4, 3), MS(I32, 3, 5), nil, []int{1}, nil, []int{0})
	require.Error(t, err)
}

func TestDynamicSliceOps(t *testing.T) {
	starts := []shapes.Shape{MS(I32), MS(I32)}
	require.True(t, MS(F32, 2, 3).Equal(must1(DynamicSliceOp(MS(F32, 5, 6), starts, []int{2, 3}))))
	_, err := DynamicSliceOp(MS(F32, 5, 6), starts, []int{6, 3})
	require.Error(t, err)
	_, err = DynamicSliceOp(MS(F32, 5, 6), []shapes.Shape{MS(F32), MS(I32)}, []int{2, 3})
	require.Error(t, err)

	require.True(t, MS(F32, 5, 6).Equal(must1(DynamicUpdateSliceOp(MS(F32, 5, 6), MS(F32, 2, 6), starts))))
	_, err = DynamicUpdateSliceOp(MS(F32, 5, 6), MS(F32, 2, 7), starts)
	require.Error(t, err)
}

func TestGatherOp(t *testing.T) {
	// Gather rows of a [100, 8] table with indices [16, 1]: output [16, 8].
	output := must1(GatherOp(MS(F32, 100, 8), MS(I32, 16, 1), 1, []int{1}, []int{0}, []int{0}, []int{1, 8}))
	require.True(t, MS(F32, 16, 8).Equal(output), "got %s", output)

	// Implicit index vector axis.
	output = must1(GatherOp(MS(F32, 100, 8), MS(I32, 16), 1, []int{1}, []int{0}, []int{0}, []int{1, 8}))
	require.True(t, MS(F32, 16, 8).Equal(output), "got %s", output)

	_, err := GatherOp(MS(F32, 100, 8), MS(I32, 16, 1), 1, []int{1}, []int{0}, []int{0}, []int{2, 8})
	require.Error(t, err)
	_, err = GatherOp(MS(F32, 100, 8), MS(F32, 16, 1), 1, []int{1}, []int{0}, []int{0}, []int{1, 8})
	require.Error(t, err)
}

func TestIotaOp(t *testing.T) {
	require.NoError(t, IotaOp(MS(I32, 3, 4), 1))
	require.Error(t, IotaOp(MS(I32, 3, 4), 2))
	require.Error(t, IotaOp(MS(I32), 0))
}
