// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlo

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/gomlx/tileanalysis/pkg/core/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var (
	F32 = dtypes.Float32
	S32 = dtypes.Int32
	MS  = shapes.Make
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("test")
	p0 := must.M1(b.Parameter("p0", MS(F32, 10, 20)))
	p1 := must.M1(b.Parameter("p1", MS(F32, 20)))
	bcast := must.M1(b.Broadcast(p1, []int{10, 20}, 1))
	add := must.M1(b.Elementwise(opcode.Add, p0, bcast))
	neg := must.M1(b.Elementwise(opcode.Negate, add))
	mul := must.M1(b.Elementwise(opcode.Multiply, neg, neg))
	tr := must.M1(b.Transpose(mul, 1, 0))
	comp := must.M1(b.Build(tr))

	require.Equal(t, "test", comp.Name())
	require.Equal(t, 7, comp.NumInstructions())
	require.Equal(t, []*Instruction{p0, p1}, comp.Parameters())
	require.Equal(t, tr, comp.Root())
	require.Equal(t, add, comp.Instruction("add.3"))
	require.True(t, MS(F32, 20, 10).Equal(tr.Shape()))
	require.Equal(t, 3, add.ID())
	require.Equal(t, opcode.Add, add.OpCode())
	require.Equal(t, []*Instruction{p0, bcast}, add.Operands())
	require.Equal(t, []*Instruction{mul}, neg.Users(), "users must not be repeated")
	require.Equal(t, "broadcast.2 = f32[10,20] broadcast(p1), dimensions={1}", bcast.String())
	require.Equal(t, "transpose.6 = f32[20,10] transpose(multiply.5), dimensions={1,0}", tr.String())

	// Builder can't be reused.
	_, err := b.Elementwise(opcode.Abs, p0)
	require.Error(t, err)
	_, err = b.Build(tr)
	require.Error(t, err)
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder("errors")
	p0 := must.M1(b.Parameter("p0", MS(F32, 4, 6)))
	p1 := must.M1(b.Parameter("p1", MS(S32, 4, 6)))

	_, err := b.Elementwise(opcode.Add, p0, p1)
	require.Error(t, err, "mismatched dtypes")
	_, err = b.Reshape(p0, 5, 5)
	require.Error(t, err)
	_, err = b.Transpose(p0, 0)
	require.Error(t, err)
	_, err = b.Parameter("p0", MS(F32))
	require.Error(t, err, "duplicate name")
	_, err = b.AddInstruction("", opcode.Constant, Attributes{})
	require.Error(t, err, "constant without a declared shape")
	_, err = b.AddInstruction("", opcode.Negate, Attributes{Shape: MS(F32, 6, 4)}, p0)
	require.Error(t, err, "declared shape doesn't match the inferred one")

	other := NewBuilder("other")
	q0 := must.M1(other.Parameter("q0", MS(F32, 4, 6)))
	_, err = b.Elementwise(opcode.Add, p0, q0)
	require.Error(t, err, "operand from another computation")
	_, err = b.Build(q0)
	require.Error(t, err)

	// Failed instructions are not added.
	require.Nil(t, b.Instruction("add.2"))
	require.NotNil(t, must.M1(b.Elementwise(opcode.Abs, p0)))
}

func TestStructuralOps(t *testing.T) {
	b := NewBuilder("structural")
	p0 := must.M1(b.Parameter("p0", MS(F32, 8, 16)))
	zero := must.M1(b.Constant(MS(F32), "0"))
	idx := must.M1(b.Parameter("idx", MS(S32)))

	slice := must.M1(b.Slice(p0, []int{2, 0}, []int{6, 16}, []int{1, 4}))
	require.Equal(t, []int{4, 4}, slice.Shape().Dimensions)
	require.Equal(t, "slice.3 = f32[4,4] slice(p0), slice={[2:6:1], [0:16:4]}", slice.String())

	pad := must.M1(b.Pad(slice, zero, PadDim{Low: 1, High: 2}, PadDim{Interior: 1}))
	require.Equal(t, []int{7, 7}, pad.Shape().Dimensions)
	require.Equal(t, "pad.4 = f32[7,7] pad(slice.3, constant.1), padding=1_2_0x0_0_1", pad.String())

	reduce := must.M1(b.Reduce([]*Instruction{p0}, []*Instruction{zero}, 1))
	require.Equal(t, []int{8}, reduce.Shape().Dimensions)
	require.Equal(t, 1, reduce.NumOutputs())

	variadic := must.M1(b.Reduce([]*Instruction{p0, p0}, []*Instruction{zero, zero}, 0))
	require.Equal(t, 2, variadic.NumOutputs())
	require.True(t, MS(F32, 16).Equal(variadic.OutputShape(1)))
	require.Equal(t, "reduce.6 = (f32[16], f32[16]) reduce(p0, p0, constant.1, constant.1), dimensions={0}",
		variadic.String())

	window := must.M1(b.ReduceWindow(p0, zero, WindowDim{Size: 2, Stride: 2}, WindowDim{Size: 3}))
	require.Equal(t, []int{4, 14}, window.Shape().Dimensions)
	require.Equal(t, 1, window.Window()[1].WindowDilation)

	dot := must.M1(b.Dot(p0, p0, DotConfig{LhsContractingAxes: []int{1}, RhsContractingAxes: []int{1}}))
	require.Equal(t, []int{8, 8}, dot.Shape().Dimensions)

	ds := must.M1(b.DynamicSlice(p0, []*Instruction{idx, idx}, 2, 4))
	require.Equal(t, []int{2, 4}, ds.Shape().Dimensions)
	dus := must.M1(b.DynamicUpdateSlice(p0, ds, idx, idx))
	require.Equal(t, []int{8, 16}, dus.Shape().Dimensions)

	concat := must.M1(b.Concatenate(0, p0, dus))
	require.Equal(t, []int{16, 16}, concat.Shape().Dimensions)

	iota := must.M1(b.Iota(MS(S32, 5, 1), 0))
	gather := must.M1(b.Gather(p0, iota, GatherConfig{
		OffsetAxes:         []int{1},
		CollapsedSliceAxes: []int{0},
		StartIndexMap:      []int{0},
		IndexVectorAxis:    1,
		SliceSizes:         []int{1, 16},
	}))
	require.Equal(t, []int{5, 16}, gather.Shape().Dimensions)
	require.Equal(t, "gather.13 = f32[5,16] gather(p0, iota.12), offset_dims={1}, collapsed_slice_dims={0}, "+
		"start_index_map={0}, index_vector_dim=1, slice_sizes={1,16}", gather.String())

	conv := must.M1(b.Convert(gather, S32))
	require.True(t, MS(S32, 5, 16).Equal(conv.Shape()))

	// Unsupported operations are accepted with a declared shape.
	sorted := must.M1(b.AddInstruction("sorted", opcode.Sort, Attributes{Shape: MS(F32, 8, 16), Dimensions: []int{1}},
		p0))
	require.Equal(t, opcode.Sort, sorted.OpCode())
}

func TestTypeNames(t *testing.T) {
	require.Equal(t, "pred", TypeName(dtypes.Bool))
	require.Equal(t, "bf16", TypeName(dtypes.BFloat16))
	dtype, err := ParseTypeName("u16")
	require.NoError(t, err)
	require.Equal(t, dtypes.Uint16, dtype)
	_, err = ParseTypeName("f8e4m3")
	require.Error(t, err)

	require.Equal(t, "f32[]", ShapeText(MS(F32)))
	require.Equal(t, "(f32[2,3], s32[])", ShapeText(shapes.MakeTuple([]shapes.Shape{MS(F32, 2, 3), MS(S32)})))
}
