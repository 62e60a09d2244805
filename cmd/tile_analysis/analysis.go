// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tileanalysis/pkg/core/affine"
	"github.com/gomlx/tileanalysis/pkg/core/hlo"
	"github.com/gomlx/tileanalysis/pkg/model/indexing"
	"github.com/gomlx/tileanalysis/pkg/model/tiling"
	"github.com/gomlx/tileanalysis/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RootReport holds the analysis of one instruction.
type RootReport struct {
	Root          string          `yaml:"root"`
	Instruction   string          `yaml:"instruction"`
	OutputToInput []OperandReport `yaml:"output_to_input,omitempty"`
	InputToOutput []OperandReport `yaml:"input_to_output,omitempty"`
	Fused         []OperandReport `yaml:"fused,omitempty"`
	Tiles         []TileReport    `yaml:"tiles,omitempty"`
	Unimplemented string          `yaml:"unimplemented,omitempty"`
}

// OperandReport holds the indexing maps of one operand (or output, or fused producer).
type OperandReport struct {
	Name string      `yaml:"name"`
	Maps []MapReport `yaml:"maps"`
}

// MapReport is the rendering of one indexing map.
type MapReport struct {
	Map    string   `yaml:"map"`
	Domain []string `yaml:"domain,omitempty"`
	Points int64    `yaml:"points"`
}

// TileReport is the result of propagating the tile of the root output through one indexing map.
type TileReport struct {
	Operand string   `yaml:"operand"`
	Map     string   `yaml:"map,omitempty"`
	Sizes   []string `yaml:"sizes,omitempty"`
	Bounds  []string `yaml:"bounds,omitempty"`
	Strided bool     `yaml:"strided"`
}

// options of the analysis, set from the command line flags.
type options struct {
	inputToOutput bool
	fuse          bool
	tile          bool
	tileSizes     []int64
}

// domainPoints returns the number of points in the domain, saturated to math.MaxInt64.
func domainPoints(domain indexing.Domain) int64 {
	points := int64(1)
	for _, r := range slices.Concat(domain.DimensionRanges, domain.SymbolRanges) {
		size := r.Size()
		if size == 0 {
			return 0
		}
		if points > math.MaxInt64/size {
			return math.MaxInt64
		}
		points *= size
	}
	return points
}

func newMapReport(m indexing.IndexingMap) MapReport {
	report := MapReport{Map: m.Map.String(), Points: domainPoints(m.Domain)}
	if domain := m.Domain.String(); domain != "" {
		report.Domain = strings.Split(domain, "\n")
	}
	return report
}

func newOperandReport(name string, set indexing.IndexingMapSet) OperandReport {
	report := OperandReport{Name: name}
	for _, m := range set.Sorted() {
		report.Maps = append(report.Maps, newMapReport(m))
	}
	return report
}

// analyze computes the report of root. Each call uses its own affine.Context, so analyses can run concurrently.
//
// Instructions without indexing rules are reported, not returned as errors.
func analyze(root *hlo.Instruction, opts options) (report RootReport, err error) {
	report = RootReport{Root: root.Name(), Instruction: root.String()}
	if panicErr := exceptions.TryCatch[error](func() {
		err = analyzeInto(affine.NewContext(), root, opts, &report)
	}); panicErr != nil {
		err = panicErr
	}
	if errors.Is(err, indexing.ErrUnimplemented) {
		report.Unimplemented = err.Error()
		err = nil
	}
	return report, err
}

func analyzeInto(ctx *affine.Context, root *hlo.Instruction, opts options, report *RootReport) error {
	outputToInput, err := indexing.ComputeOutputToInputIndexing(ctx, root, 0)
	if err != nil {
		return err
	}
	for operandID, set := range outputToInput.IndexingMaps {
		report.OutputToInput = append(report.OutputToInput, newOperandReport(root.Operand(operandID).Name(), set))
	}

	if opts.inputToOutput {
		for operandID, operand := range root.Operands() {
			inputToOutput, err := indexing.ComputeInputToOutputIndexing(ctx, root, operandID)
			if err != nil {
				if !errors.Is(err, indexing.ErrUnimplemented) {
					return err
				}
				klog.V(1).Infof("%s: %v", root.Name(), err)
				continue
			}
			for outputID, set := range inputToOutput.IndexingMaps {
				name := operand.Name()
				if root.NumOutputs() > 1 {
					name = fmt.Sprintf("%s->#%d", name, outputID)
				}
				report.InputToOutput = append(report.InputToOutput, newOperandReport(name, set))
			}
		}
	}

	// The maps the tile is propagated through: either the fused ones, or the ones of the operands.
	targets := make(map[string]indexing.IndexingMapSet, len(outputToInput.IndexingMaps))
	for operandID, set := range outputToInput.IndexingMaps {
		name := root.Operand(operandID).Name()
		if targets[name] == nil {
			targets[name] = indexing.NewIndexingMapSet()
		}
		for _, m := range set {
			targets[name].Insert(m)
		}
	}
	if opts.fuse {
		grouped, err := indexing.ComputeGroupedOutputToInputIndexing(ctx, root, 0, indexing.DefaultFusible)
		if err != nil {
			return err
		}
		targets = make(map[string]indexing.IndexingMapSet, len(grouped))
		for producer, set := range grouped {
			targets[producer.Name()] = set
		}
		for _, name := range xslices.SortedKeys(targets) {
			report.Fused = append(report.Fused, newOperandReport(name, targets[name]))
		}
	}

	if opts.tile {
		tile := tiling.NewSymbolicTile(ctx, root.OutputShape(0).Dimensions)
		if len(opts.tileSizes) > 0 {
			tile, err = tile.WithSizes(opts.tileSizes...)
			if err != nil {
				return errors.WithMessagef(err, "tile sizes for %q", root.Name())
			}
		}
		for _, name := range xslices.SortedKeys(targets) {
			for _, m := range targets[name].Sorted() {
				report.Tiles = append(report.Tiles, newTileReport(ctx, name, tile, m))
			}
		}
	}
	return nil
}

func newTileReport(ctx *affine.Context, operand string, tile tiling.SymbolicTile, m indexing.IndexingMap) TileReport {
	report := TileReport{Operand: operand}
	propagated, ok := tile.TryPropagateTileThroughIndexingMap(ctx, m)
	if !ok {
		return report
	}
	report.Strided = true
	report.Map = propagated.AffineMap().String()
	for _, size := range propagated.Sizes() {
		report.Sizes = append(report.Sizes, size.String())
	}
	for _, r := range propagated.Bounds() {
		report.Bounds = append(report.Bounds, r.String())
	}
	return report
}
