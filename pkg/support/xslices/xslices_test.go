// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermutations(t *testing.T) {
	require.True(t, IsPermutation([]int{2, 0, 1}))
	require.False(t, IsPermutation([]int{0, 0, 1}))
	require.False(t, IsPermutation([]int{0, 3}))
	require.Equal(t, []int{1, 2, 0}, InversePermutation([]int{2, 0, 1}))
	require.Equal(t, []int64{}, InversePermutation([]int64{}))
	require.Panics(t, func() { InversePermutation([]int{1, 1}) })
}

func TestHelpers(t *testing.T) {
	require.Equal(t, []int{3, 4, 5}, Iota(3, 3))
	require.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
	require.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 0, "a": 1, "b": 2}))
	require.Equal(t, int64(24), Product([]int64{2, 3, 4}))
	require.Equal(t, int64(1), Product[int64](nil))
	require.Equal(t, []int{1, 5, 9}, SortedKeys(map[int]string{9: "a", 1: "b", 5: "c"}))
}

func TestFlag(t *testing.T) {
	f := &genericSliceFlagImpl[int]{parserFn: strconv.Atoi}
	require.NoError(t, f.Set("1, 4,8"))
	require.Equal(t, []int{1, 4, 8}, f.parsedSlice)
	require.Equal(t, "1,4,8", f.String())
	require.Error(t, f.Set("1,x"))
}
