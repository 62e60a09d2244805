// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package indexing

import (
	"slices"

	"github.com/gomlx/tileanalysis/pkg/core/affine"
	"github.com/gomlx/tileanalysis/pkg/core/hlo"
	"github.com/gomlx/tileanalysis/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ComposeIndexingMaps returns the map that first applies consumer, then producer: its dimensions are the
// dimensions of consumer, and its symbols are the symbols of producer followed by the symbols of consumer.
//
// The domain of the producer is carried over to the result where a consumer result is a single dimension or
// symbol plus a constant: the range of that variable is intersected with the (shifted) range of the corresponding
// producer dimension. Other constraints of the producer domain are dropped, so the result may cover more points.
//
// It panics if the number of results of consumer differs from the number of dimensions of producer.
func ComposeIndexingMaps(ctx *affine.Context, producer, consumer IndexingMap) IndexingMap {
	composed := IndexingMap{
		Map: ctx.Compose(producer.Map, consumer.Map),
		Domain: Domain{
			DimensionRanges: slices.Clone(consumer.Domain.DimensionRanges),
			SymbolRanges: slices.Concat(
				producer.Domain.SymbolRanges, consumer.Domain.SymbolRanges),
		},
	}
	numProducerSymbols := len(producer.Domain.SymbolRanges)
	for ii, r := range consumer.Map.Results {
		variable, offset, ok := singleVariable(r)
		if !ok {
			continue
		}
		required := producer.Domain.DimensionRanges[ii]
		shifted := Range{LowerBound: required.LowerBound - offset, UpperBound: required.UpperBound - offset}
		switch v := variable.(type) {
		case affine.Dim:
			composed.Domain.DimensionRanges[v.Position] = composed.Domain.DimensionRanges[v.Position].Intersect(shifted)
		case affine.Symbol:
			position := numProducerSymbols + v.Position
			composed.Domain.SymbolRanges[position] = composed.Domain.SymbolRanges[position].Intersect(shifted)
		}
	}
	return composed
}

// singleVariable returns v and c if e is v + c, for a dimension or symbol v.
func singleVariable(e affine.Expr) (variable affine.Expr, offset int64, ok bool) {
	for _, term := range affine.SumTerms(e) {
		switch t := term.(type) {
		case affine.Constant:
			offset += t.Value
		case affine.Dim, affine.Symbol:
			if variable != nil {
				return nil, 0, false
			}
			variable = t
		default:
			return nil, 0, false
		}
	}
	return variable, offset, variable != nil
}

// GroupIndexingMapsByProducers returns the maps of the output to input indexing of instr grouped by the instruction
// producing each operand. An instruction used as more than one operand gets the union of the maps.
func GroupIndexingMapsByProducers(indexing InstructionIndexing, instr *hlo.Instruction) map[*hlo.Instruction]IndexingMapSet {
	grouped := make(map[*hlo.Instruction]IndexingMapSet, instr.NumOperands())
	for operandID, set := range indexing.IndexingMaps {
		producer := instr.Operand(operandID)
		if grouped[producer] == nil {
			grouped[producer] = make(IndexingMapSet, set.Len())
		}
		for _, m := range set {
			grouped[producer].Insert(m)
		}
	}
	return grouped
}

// FuseProducerConsumerOutputToInputIndexing replaces, in grouped, the maps of producer by their composition with
// the output to input indexing of producer, accumulated under each of the operands of producer.
//
// After the call grouped no longer has producer as a key, and the maps describe how the consumers read the
// operands of producer. If the indexing of producer can't be computed, the error is returned and grouped is left
// unchanged.
func FuseProducerConsumerOutputToInputIndexing(ctx *affine.Context, producer *hlo.Instruction,
	grouped map[*hlo.Instruction]IndexingMapSet) error {
	consumerMaps, found := grouped[producer]
	if !found {
		return invalidArgumentf("%q has no indexing maps to fuse into", producer.Name())
	}
	producerIndexing, err := ComputeOutputToInputIndexing(ctx, producer, 0)
	if err != nil {
		return err
	}
	sortedConsumerMaps := consumerMaps.Sorted()
	delete(grouped, producer)
	for operandID, producerMaps := range producerIndexing.IndexingMaps {
		operand := producer.Operand(operandID)
		if grouped[operand] == nil {
			grouped[operand] = make(IndexingMapSet)
		}
		for _, producerMap := range producerMaps.Sorted() {
			for _, consumerMap := range sortedConsumerMaps {
				fused := ComposeIndexingMaps(ctx, producerMap, consumerMap)
				fused.Simplify(ctx)
				grouped[operand].Insert(fused)
			}
		}
	}
	if klog.V(2).Enabled() {
		klog.Infof("indexing: fused %q into %d consumer maps", producer.Name(), len(sortedConsumerMaps))
	}
	return nil
}

// DefaultFusible accepts every instruction that reads an operand: parameters, constants and iotas are left as the
// leaves of a fused computation.
func DefaultFusible(instr *hlo.Instruction) bool { return instr.NumOperands() > 0 }

// ComputeGroupedOutputToInputIndexing returns how the output #outputID of root reads each of the instructions
// at the boundary of the sub-graph fused into it.
//
// Starting from the indexing of root, producers accepted by fusible are fused one at a time, always picking the one
// created last, so that all its consumers within the sub-graph have been fused before it. Producers without an
// indexing rule are left in the result, as are the ones rejected by fusible. If fusible is nil, DefaultFusible is used.
func ComputeGroupedOutputToInputIndexing(ctx *affine.Context, root *hlo.Instruction, outputID int,
	fusible func(*hlo.Instruction) bool) (map[*hlo.Instruction]IndexingMapSet, error) {
	if fusible == nil {
		fusible = DefaultFusible
	}
	rootIndexing, err := ComputeOutputToInputIndexing(ctx, root, outputID)
	if err != nil {
		return nil, err
	}
	grouped := GroupIndexingMapsByProducers(rootIndexing, root)
	skipped := sets.Make[string]()
	for {
		var next *hlo.Instruction
		for instr := range grouped {
			if skipped.Has(instr.Name()) || !fusible(instr) {
				continue
			}
			if next == nil || instr.ID() > next.ID() {
				next = instr
			}
		}
		if next == nil {
			if len(skipped) > 0 && klog.V(2).Enabled() {
				klog.Infof("indexing: %q left unfused producers without indexing rules: %v", root.Name(),
					sets.Sorted(skipped))
			}
			return grouped, nil
		}
		err = FuseProducerConsumerOutputToInputIndexing(ctx, next, grouped)
		if err != nil {
			if !errors.Is(err, ErrUnimplemented) {
				return nil, errors.WithMessagef(err, "fusing %q into %q", next.Name(), root.Name())
			}
			klog.V(2).Infof("indexing: not fusing %q: %v", next.Name(), err)
			skipped.Insert(next.Name())
		}
	}
}
