// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hlotext

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/opcode"
	"github.com/google/go-cmp/cmp"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

const fusionText = `
HloModule fusion_module, entry_computation_layout={(f32[150,20]{1,0})->f32[20,150]{1,0}}

%add_f32 (x: f32[], y: f32[]) -> f32[] {
  %x = f32[] parameter(0)
  %y = f32[] parameter(1)
  ROOT %add = f32[] add(f32[] %x, f32[] %y)
}

ENTRY %main (p0: f32[150,20]) -> f32[20,150] {
  %p0 = f32[150,20]{1,0} parameter(0)
  %zero = f32[] constant(0)
  %neg = f32[150,20]{1,0} negate(f32[150,20]{1,0} %p0)
  %sum = f32[150]{0} reduce(%neg, %zero), dimensions={1}, to_apply=%add_f32
  %bcast = f32[150,20]{1,0} broadcast(%sum), dimensions={0}
  %sub = f32[150,20]{1,0} subtract(%neg, %bcast), metadata={op_name="a, b"}
  ROOT %t = f32[20,150]{1,0} transpose(%sub), dimensions={1,0}
}
`

func TestParse(t *testing.T) {
	comp := must.M1(Parse(fusionText))
	require.Equal(t, "main", comp.Name())
	require.Equal(t, 7, comp.NumInstructions())
	root := comp.Root()
	require.Equal(t, "t", root.Name())
	require.Equal(t, opcode.Transpose, root.OpCode())
	require.Equal(t, []int{1, 0}, root.Dimensions())
	require.Equal(t, []int{20, 150}, root.Shape().Dimensions)

	sum := comp.Instruction("sum")
	require.Equal(t, opcode.Reduce, sum.OpCode())
	require.Equal(t, []int{1}, sum.Dimensions())
	require.Equal(t, "add_f32", sum.Attributes().ToApply)
	require.Equal(t, []string{"neg", "zero"}, []string{sum.Operand(0).Name(), sum.Operand(1).Name()})

	neg := comp.Instruction("neg")
	require.Len(t, neg.Users(), 2)
	require.Equal(t, dtypes.Float32, neg.Shape().DType)
	require.Len(t, comp.Parameters(), 1)
}

func TestRoundTrip(t *testing.T) {
	comp := must.M1(Parse(fusionText))
	text := comp.String()
	want := `HloModule main

ENTRY main {
  p0 = f32[150,20] parameter(0)
  zero = f32[] constant(0)
  neg = f32[150,20] negate(p0)
  sum = f32[150] reduce(neg, zero), dimensions={1}, to_apply=add_f32
  bcast = f32[150,20] broadcast(sum), dimensions={0}
  sub = f32[150,20] subtract(neg, bcast)
  ROOT t = f32[20,150] transpose(sub), dimensions={1,0}
}
`
	if diff := cmp.Diff(want, text); diff != "" {
		t.Fatalf("unexpected HLO text (-want +got):\n%s", diff)
	}
	again := must.M1(Parse(text))
	require.Equal(t, text, again.String())
}

func TestParseAttributes(t *testing.T) {
	comp := must.M1(Parse(`
  p0 = f32[8,16] parameter(0)
  p1 = s32[5,1] parameter(1)
  zero = f32[] constant(0)
  s = f32[4,4] slice(p0), slice={[2:6], [0:16:4]}
  pad = f32[7,7] pad(s, zero), padding=1_2x0_0_1
  w = f32[4,14] reduce-window(p0, zero), window={size=2x3 stride=2x1 pad=0_0x0_0}, to_apply=add
  d = f32[8,8] dot(p0, p0), lhs_contracting_dims={1}, rhs_contracting_dims={1}
  g = f32[5,16] gather(p0, p1), offset_dims={1}, collapsed_slice_dims={0}, start_index_map={0}, index_vector_dim=1, slice_sizes={1,16}
  c = pred[8,16] compare(p0, p0), direction=LT
  i = s32[3,4] iota(), iota_dimension=1
  ROOT r = f32[128] reshape(p0)
`))
	require.Equal(t, "entry", comp.Name())
	require.Equal(t, "r", comp.Root().Name())

	s := comp.Instruction("s").Slice()
	require.Equal(t, []int{2, 0}, s.Starts)
	require.Equal(t, []int{6, 16}, s.Limits)
	require.Equal(t, []int{1, 4}, s.Strides)

	pad := comp.Instruction("pad").Padding()
	require.Len(t, pad, 2)
	require.Equal(t, 1, pad[0].Low)
	require.Equal(t, 1, pad[1].Interior)

	w := comp.Instruction("w").Window()
	require.Equal(t, 2, w[0].Stride)
	require.Equal(t, 3, w[1].Size)
	require.Equal(t, 1, w[1].BaseDilation)

	require.Equal(t, []int{1}, comp.Instruction("d").Dot().LhsContractingAxes)
	require.Equal(t, 1, comp.Instruction("g").Gather().IndexVectorAxis)
	require.Equal(t, "LT", comp.Instruction("c").Attributes().ComparisonDirection)
	require.Equal(t, 1, comp.Instruction("i").IotaDimension())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(`
  p0 = f32[8,16] parameter(0)
  a = f32[8,16] foo(p0)
  b = f32[8,16] negate(p1)
  c = f32[8,15] negate(p0)
  d = q32[8] parameter(1)
`)
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "line 3")
	require.Contains(t, msg, "line 4")
	require.Contains(t, msg, "line 5")
	require.Contains(t, msg, "line 6")

	_, err = Parse("ENTRY e {\n p0 = f32[2] parameter(0)\n")
	require.Error(t, err, "unclosed computation")
	_, err = Parse("")
	require.Error(t, err, "no instructions")
	_, err = Parse("ROOT a = f32[2] parameter(0)\nROOT b = f32[2] negate(a)")
	require.Error(t, err, "two roots")
}
