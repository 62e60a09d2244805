// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package indexing derives how the elements of the outputs of an HLO instruction map to the elements of its
// operands, and vice versa, as affine maps restricted to a bounded domain (IndexingMap).
//
// The main entry points are:
//
//   - ComputeOutputToInputIndexing and ComputeInputToOutputIndexing: the indexing of one instruction, with one
//     IndexingMapSet per operand (or per output).
//   - GroupIndexingMapsByProducers and FuseProducerConsumerOutputToInputIndexing: the composition of the
//     indexing of consumers with the indexing of their producers, walking the graph one edge at a time.
//   - ComputeGroupedOutputToInputIndexing: the fused indexing of a whole sub-graph, from a root down to its
//     non-fusible producers.
//
// All functions that build maps take an *affine.Context, which is not safe for concurrent use.
package indexing

import (
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/tileanalysis/pkg/core/affine"
	"go.uber.org/multierr"
)

// IndexingMap is an affine map with the domain of its dimensions and symbols.
//
// E.g. the output to input indexing of a reduction of f32[150,20,10] over axis 1:
//
//	(d0, d1)[s0] -> (d0, s0, d1)
//	domain:
//	d0 in [0, 150)
//	d1 in [0, 10)
//	s0 in [0, 20)
type IndexingMap struct {
	Map    affine.Map
	Domain Domain
}

// NewIndexingMap returns an IndexingMap with the given map and a domain with ranges [0, bound) for each of the
// dimension and symbol bounds.
func NewIndexingMap(m affine.Map, dimensionUpperBounds, symbolUpperBounds []int) IndexingMap {
	return IndexingMap{Map: m, Domain: FromUpperBounds(dimensionUpperBounds, symbolUpperBounds)}
}

// Validate checks that the map only uses its declared variables and that there is one valid range per variable.
// All problems found are combined in the returned error, each wrapping ErrInvalidArgument.
func (m IndexingMap) Validate() error {
	var err error
	if mapErr := m.Map.Validate(); mapErr != nil {
		err = multierr.Append(err, invalidArgumentf("%v", mapErr))
	}
	if n := len(m.Domain.DimensionRanges); n != m.Map.NumDims {
		err = multierr.Append(err, invalidArgumentf("map has %d dimensions, but the domain has %d dimension ranges",
			m.Map.NumDims, n))
	}
	if n := len(m.Domain.SymbolRanges); n != m.Map.NumSymbols {
		err = multierr.Append(err, invalidArgumentf("map has %d symbols, but the domain has %d symbol ranges",
			m.Map.NumSymbols, n))
	}
	return multierr.Append(err, m.Domain.Validate())
}

// String implements fmt.Stringer: the affine map followed by the domain, one variable per line.
func (m IndexingMap) String() string {
	domain := m.Domain.String()
	if domain == "" {
		return m.Map.String() + "\ndomain:"
	}
	return m.Map.String() + "\ndomain:\n" + domain
}

// Key is a canonical rendering of the map, used to compare and hash maps. Two maps have the same key if and only if
// they are Equal.
func (m IndexingMap) Key() string { return m.String() }

// Hash of the map, consistent with Equal.
func (m IndexingMap) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.Key()))
	return h.Sum64()
}

// Equal returns whether both the affine maps and the domains are structurally equal.
// Maps are not equal if their variables are ordered differently, even if they describe the same relation.
func (m IndexingMap) Equal(other IndexingMap) bool {
	return m.Map.Equal(other.Map) && m.Domain.Equal(other.Domain)
}

// IsKnownEmpty returns whether the domain of the map has no points.
func (m IndexingMap) IsKnownEmpty() bool { return m.Domain.IsEmpty() }

// Clone returns a copy of the map that can be modified independently.
func (m IndexingMap) Clone() IndexingMap {
	m.Map.Results = slices.Clone(m.Map.Results)
	m.Domain = m.Domain.Clone()
	return m
}

// RemoveUnusedDimensions returns a map without the dimensions not used by any result, and the positions (in m) of
// the dimensions that were kept.
//
// This changes the iteration space of the map, so it is never done by Simplify.
func (m IndexingMap) RemoveUnusedDimensions(ctx *affine.Context) (IndexingMap, []int) {
	used := m.Map.UsedDims()
	kept := make([]int, 0, len(used))
	ranges := make([]Range, 0, len(used))
	for ii, isUsed := range used {
		if isUsed {
			kept = append(kept, ii)
			ranges = append(ranges, m.Domain.DimensionRanges[ii])
		}
	}
	return IndexingMap{
		Map:    ctx.CompressDims(m.Map, used),
		Domain: Domain{DimensionRanges: ranges, SymbolRanges: slices.Clone(m.Domain.SymbolRanges)},
	}, kept
}

// Evaluate returns the results of the map at the given point, which must be within the domain.
func (m IndexingMap) Evaluate(dims, symbols []int64) ([]int64, error) {
	if len(dims) != len(m.Domain.DimensionRanges) || len(symbols) != len(m.Domain.SymbolRanges) {
		return nil, invalidArgumentf("map requires %d dimensions and %d symbols, got %d and %d",
			len(m.Domain.DimensionRanges), len(m.Domain.SymbolRanges), len(dims), len(symbols))
	}
	for ii, v := range dims {
		if r := m.Domain.DimensionRanges[ii]; !r.Contains(v) {
			return nil, invalidArgumentf("d%d=%d is out of its range %s", ii, v, r)
		}
	}
	for ii, v := range symbols {
		if r := m.Domain.SymbolRanges[ii]; !r.Contains(v) {
			return nil, invalidArgumentf("s%d=%d is out of its range %s", ii, v, r)
		}
	}
	return m.Map.Evaluate(dims, symbols), nil
}

// IndexingMapSet is a set of indexing maps, keyed by IndexingMap.Key.
type IndexingMapSet map[string]IndexingMap

// NewIndexingMapSet returns a set with the given maps.
func NewIndexingMapSet(indexingMaps ...IndexingMap) IndexingMapSet {
	s := make(IndexingMapSet, len(indexingMaps))
	s.Insert(indexingMaps...)
	return s
}

// Insert the maps in the set.
func (s IndexingMapSet) Insert(indexingMaps ...IndexingMap) {
	for _, m := range indexingMaps {
		s[m.Key()] = m
	}
}

// Has returns whether the set holds a map equal to m.
func (s IndexingMapSet) Has(m IndexingMap) bool {
	_, found := s[m.Key()]
	return found
}

// Len returns the number of maps in the set.
func (s IndexingMapSet) Len() int { return len(s) }

// Sorted returns the maps of the set ordered by their key, for deterministic iteration.
func (s IndexingMapSet) Sorted() []IndexingMap {
	keys := slices.Sorted(maps.Keys(s))
	sorted := make([]IndexingMap, len(keys))
	for ii, key := range keys {
		sorted[ii] = s[key]
	}
	return sorted
}

// String implements fmt.Stringer, with the maps ordered by key.
func (s IndexingMapSet) String() string {
	parts := make([]string, 0, len(s))
	for _, m := range s.Sorted() {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, "\n")
}

// InstructionIndexing holds the indexing maps of an instruction: one set per operand for the output to input
// indexing, or one set per output for the input to output indexing.
type InstructionIndexing struct {
	IndexingMaps []IndexingMapSet
}

// FromIndexingMaps returns an InstructionIndexing with one single-map set per given map, in order.
func FromIndexingMaps(indexingMaps ...IndexingMap) InstructionIndexing {
	indexing := InstructionIndexing{IndexingMaps: make([]IndexingMapSet, len(indexingMaps))}
	for ii, m := range indexingMaps {
		indexing.IndexingMaps[ii] = NewIndexingMapSet(m)
	}
	return indexing
}

// Simplify all maps, and returns whether any of them changed.
func (indexing *InstructionIndexing) Simplify(ctx *affine.Context) bool {
	changed := false
	for ii, set := range indexing.IndexingMaps {
		simplified := make(IndexingMapSet, len(set))
		for _, m := range set.Sorted() {
			m = m.Clone()
			if m.Simplify(ctx) {
				changed = true
			}
			simplified.Insert(m)
		}
		indexing.IndexingMaps[ii] = simplified
	}
	return changed
}

// String implements fmt.Stringer, e.g.:
//
//	operand id = 0 (d0, d1) -> (d1, d0)
//	domain:
//	d0 in [0, 20)
//	d1 in [0, 150)
func (indexing InstructionIndexing) String() string {
	var sb strings.Builder
	for operandID, set := range indexing.IndexingMaps {
		for _, m := range set.Sorted() {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			_, _ = fmt.Fprintf(&sb, "operand id = %d %s", operandID, m)
		}
	}
	return sb.String()
}
