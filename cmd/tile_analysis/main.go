// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// tile_analysis prints the indexing maps of instructions of an HLO program, optionally fused through their producers,
// and the symbolic tiles of their operands.
//
// Usage:
//
//	tile_analysis [flags] <program.hlo | ->
//
// The program is read from stdin if the argument is "-".
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/tileanalysis/pkg/core/hlo"
	"github.com/gomlx/tileanalysis/pkg/core/hlo/hlotext"
	"github.com/gomlx/tileanalysis/pkg/support/fsutil"
	"github.com/gomlx/tileanalysis/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

var (
	flagRoots = xslices.Flag("roots", nil,
		"Comma-separated list of the names of the instructions to analyze. Defaults to the root of the entry computation.",
		func(value string) (string, error) { return value, nil })
	flagOutput = flag.String("output", "table", "Output format: \"table\" or \"yaml\".")
	flagPlain  = flag.Bool("plain", false, "Don't use colors in tables.")

	flagInputToOutput = flag.Bool("input_to_output", false, "Also report the input to output indexing maps.")
	flagFuse          = flag.Bool("fuse", false,
		"Fuse the indexing maps through the producers of each root, up to parameters and constants.")
	flagTile = flag.Bool("tile", false,
		"Propagate the symbolic tile of the output of each root to its operands (or fused producers, with -fuse).")
	flagTileSizes = xslices.Flag("tile_sizes", nil,
		"Comma-separated sizes of the tile of the output, one per axis. Used with -tile.",
		func(value string) (int64, error) { return strconv.ParseInt(value, 10, 64) })
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing HLO program to read from. See 'tile_analysis -help'")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'tile_analysis -help'.")
		os.Exit(1)
	}
	if *flagOutput != "table" && *flagOutput != "yaml" {
		klog.Errorf("Invalid -output=%q, it must be \"table\" or \"yaml\".", *flagOutput)
		os.Exit(1)
	}
	if *flagPlain {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	comp := must.M1(hlotext.Parse(string(must.M1(fsutil.ReadInput(args[0], os.Stdin)))))
	roots, err := selectRoots(comp, *flagRoots)
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	opts := options{
		inputToOutput: *flagInputToOutput,
		fuse:          *flagFuse,
		tile:          *flagTile,
		tileSizes:     *flagTileSizes,
	}
	reports, err := analyzeAll(roots, opts)
	if err != nil {
		klog.Errorf("Analysis failed: %+v", err)
		os.Exit(1)
	}

	if *flagOutput == "yaml" {
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		must.M(encoder.Encode(reports))
		must.M(encoder.Close())
		return
	}
	for _, report := range reports {
		printReport(report)
	}
}

// selectRoots returns the instructions named, or the root of comp if no names are given.
func selectRoots(comp *hlo.Computation, names []string) ([]*hlo.Instruction, error) {
	if len(names) == 0 {
		return []*hlo.Instruction{comp.Root()}, nil
	}
	roots := make([]*hlo.Instruction, 0, len(names))
	for _, name := range names {
		instr := comp.Instruction(name)
		if instr == nil {
			return nil, errors.Errorf("instruction %q not found in computation %q", name, comp.Name())
		}
		roots = append(roots, instr)
	}
	return roots, nil
}

// analyzeAll analyzes each root concurrently, and returns the reports in the order of roots.
func analyzeAll(roots []*hlo.Instruction, opts options) ([]RootReport, error) {
	reports := make([]RootReport, len(roots))
	var g errgroup.Group
	for ii, root := range roots {
		g.Go(func() error {
			report, err := analyze(root, opts)
			if err != nil {
				return errors.WithMessagef(err, "analyzing %q", root.Name())
			}
			reports[ii] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// printReport prints the tables of one root.
func printReport(report RootReport) {
	fmt.Println(titleStyle.Render(report.Root))
	fmt.Println(report.Instruction)
	if report.Unimplemented != "" {
		fmt.Printf("Not supported: %s\n", report.Unimplemented)
		return
	}
	printMapsTable("Output to input indexing", report.OutputToInput)
	printMapsTable("Input to output indexing", report.InputToOutput)
	printMapsTable("Fused output to input indexing", report.Fused)
	printTilesTable(report.Tiles)
}
