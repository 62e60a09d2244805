// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"
	"testing"

	"github.com/gomlx/tileanalysis/pkg/core/hlo/hlotext"
	"github.com/gomlx/tileanalysis/pkg/model/indexing"
	"github.com/google/go-cmp/cmp"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const program = `
HloModule m

%add_f32 (x: f32[], y: f32[]) -> f32[] {
  %x = f32[] parameter(0)
  %y = f32[] parameter(1)
  ROOT %add = f32[] add(f32[] %x, f32[] %y)
}

ENTRY %main (p0: f32[150,20]) -> f32[20,150] {
  %p0 = f32[150,20]{1,0} parameter(0)
  %zero = f32[] constant(0)
  %sum = f32[150]{0} reduce(%p0, %zero), dimensions={1}, to_apply=%add_f32
  %bcast = f32[150,20]{1,0} broadcast(%sum), dimensions={0}
  %sorted = f32[150,20]{1,0} sort(%bcast), dimensions={1}
  ROOT %t = f32[20,150]{1,0} transpose(%bcast), dimensions={1,0}
}
`

func TestAnalyze(t *testing.T) {
	comp := must.M1(hlotext.Parse(program))
	report := must.M1(analyze(comp.Root(), options{inputToOutput: true, tile: true}))
	want := RootReport{
		Root:        "t",
		Instruction: comp.Root().String(),
		OutputToInput: []OperandReport{{Name: "bcast", Maps: []MapReport{
			{Map: "(d0, d1) -> (d1, d0)", Domain: []string{"d0 in [0, 20)", "d1 in [0, 150)"}, Points: 3000},
		}}},
		InputToOutput: []OperandReport{{Name: "bcast", Maps: []MapReport{
			{Map: "(d0, d1) -> (d1, d0)", Domain: []string{"d0 in [0, 150)", "d1 in [0, 20)"}, Points: 3000},
		}}},
		Tiles: []TileReport{{
			Operand: "bcast",
			Map:     "(d0, d1, d2, d3)[s0, s1] -> (d2 * s1 + d3, d0 * s0 + d1)",
			Sizes:   []string{"?", "?"},
			Bounds:  []string{"[0, 22351)", "[0, 381)"},
			Strided: true,
		}},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("unexpected report (-want +got):\n%s", diff)
	}

	// Tile sizes out of range are an error, unsupported instructions are not.
	_, err := analyze(comp.Root(), options{tile: true, tileSizes: []int64{21, 1}})
	require.ErrorIs(t, err, indexing.ErrInvalidArgument)
	report = must.M1(analyze(comp.Instruction("sorted"), options{}))
	require.NotEmpty(t, report.Unimplemented)
	require.Empty(t, report.OutputToInput)
}

func TestAnalyzeFused(t *testing.T) {
	comp := must.M1(hlotext.Parse(program))
	report := must.M1(analyze(comp.Root(), options{fuse: true, tile: true, tileSizes: []int64{4, 8}}))
	var names []string
	for _, fused := range report.Fused {
		names = append(names, fused.Name)
	}
	require.Equal(t, []string{"p0", "zero"}, names)
	require.Equal(t, "(d0, d1)[s0] -> (d1, s0)", report.Fused[0].Maps[0].Map)
	require.Equal(t, int64(20*150*20), report.Fused[0].Maps[0].Points)

	// The tile goes through the reduce, its new symbol is sized after the reduced axis.
	require.Len(t, report.Tiles, 2)
	require.Equal(t, TileReport{
		Operand: "p0",
		Map:     "(d0, d1, d2, d3)[s0, s1, s2] -> (d2 * s2 + d3, s0)",
		Sizes:   []string{"20", "4", "8"},
		Bounds:  []string{"[0, 1193)", "[0, 20)"},
		Strided: true,
	}, report.Tiles[0])
	require.Equal(t, "zero", report.Tiles[1].Operand)
	require.Empty(t, report.Tiles[1].Bounds)
}

func TestAnalyzeAll(t *testing.T) {
	comp := must.M1(hlotext.Parse(program))
	roots := must.M1(selectRoots(comp, []string{"sum", "bcast", "t"}))
	reports := must.M1(analyzeAll(roots, options{}))
	require.Len(t, reports, 3)
	for ii, name := range []string{"sum", "bcast", "t"} {
		require.Equal(t, name, reports[ii].Root)
	}
	_, err := selectRoots(comp, []string{"missing"})
	require.Error(t, err)

	// The YAML rendering can be read back.
	var decoded []RootReport
	require.NoError(t, yaml.Unmarshal(must.M1(yaml.Marshal(reports)), &decoded))
	require.Equal(t, reports, decoded)
}

func TestMapsTable(t *testing.T) {
	rows := mapsTableRows([]OperandReport{{Name: "p0", Maps: []MapReport{
		{Map: "(d0) -> (d0)", Domain: []string{"d0 in [0, 4)"}, Points: 4},
		{Map: "(d0) -> (d0 + 1)", Domain: []string{"d0 in [0, 4)"}, Points: 4},
	}}})
	require.Equal(t, [][]string{
		{"p0", "(d0) -> (d0)", "d0 in [0, 4)", "4"},
		{"", "(d0) -> (d0 + 1)", "d0 in [0, 4)", "4"},
	}, rows)

	require.Equal(t, int64(math.MaxInt64),
		domainPoints(indexing.FromUpperBounds([]int64{math.MaxInt64, 2}, []int64{})))
	require.Equal(t, int64(0), domainPoints(indexing.FromUpperBounds([]int{4, 0}, []int{})))
	require.Equal(t, "1,000,000", formatPoints(1_000_000))
}
