// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets holds Set[T], a thin layer over map[T]struct{}, used for tables of op kinds and sets of axes.
package sets

import (
	"cmp"
	"maps"
	"slices"
)

// Set of comparable values.
type Set[T comparable] map[T]struct{}

// Make returns an empty set, optionally with room for size[0] elements.
func Make[T comparable](size ...int) Set[T] {
	if len(size) > 0 {
		return make(Set[T], size[0])
	}
	return make(Set[T])
}

// MakeWith returns a set holding elements.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

// Has reports whether key is in the set.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert adds keys to the set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Union returns a new set with the elements of s and of all others.
func (s Set[T]) Union(others ...Set[T]) Set[T] {
	union := maps.Clone(s)
	if union == nil {
		union = Make[T]()
	}
	for _, other := range others {
		maps.Copy(union, other)
	}
	return union
}

// Sorted returns the elements of s in increasing order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}
