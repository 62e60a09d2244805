// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices holds generic slice helpers missing from the slices package, and Flag for list-valued
// command-line flags.
package xslices

import (
	"cmp"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Iota returns a slice of incremental int values, starting with start and of length len.
// Eg: Iota(3, 2) -> []int{3, 4}
func Iota[T constraints.Integer](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Product returns the product of all values of the slice, 1 for an empty slice.
func Product[T constraints.Integer](slice []T) T {
	p := T(1)
	for _, v := range slice {
		p *= v
	}
	return p
}

// SortedKeys returns the keys of m in increasing order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// IsPermutation returns whether perm holds each of the values 0 to len(perm)-1 exactly once.
func IsPermutation[T constraints.Integer](perm []T) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || int(p) >= len(perm) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// InversePermutation returns inv such that inv[perm[i]] = i.
// It panics if perm is not a permutation.
func InversePermutation[T constraints.Integer](perm []T) []T {
	if !IsPermutation(perm) {
		panic(fmt.Sprintf("xslices.InversePermutation: %v is not a permutation", perm))
	}
	inv := make([]T, len(perm))
	for ii, p := range perm {
		inv[p] = T(ii)
	}
	return inv
}

// Flag registers a flag holding a comma-separated list of values of type T, each parsed by parserFn after
// trimming spaces. It returns a pointer to the parsed list.
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &genericSliceFlagImpl[T]{
		parsedSlice: defaultValue,
		parserFn:    parserFn,
	}
	flag.Var(f, name, usage)
	return &f.parsedSlice
}

// genericSliceFlagImpl implements flag.Value for a generic type.
type genericSliceFlagImpl[T any] struct {
	parsedSlice []T
	parserFn    func(valueStr string) (T, error)
}

func (f *genericSliceFlagImpl[T]) String() string {
	if len(f.parsedSlice) == 0 {
		return ""
	}
	parts := make([]string, len(f.parsedSlice))
	for ii, elem := range f.parsedSlice {
		parts[ii] = fmt.Sprintf("%v", elem)
	}
	return strings.Join(parts, ",")
}

func (f *genericSliceFlagImpl[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsedSlice = make([]T, 0)
		return nil
	}
	parts := strings.Split(listStr, ",")
	f.parsedSlice = make([]T, len(parts))
	var err error
	for ii, part := range parts {
		f.parsedSlice[ii], err = f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return errors.WithMessagef(err, "element #%d of %q", ii, listStr)
		}
	}
	return nil
}
