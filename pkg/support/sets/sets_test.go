// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := Make[int](10)
	require.Len(t, s, 0)

	s.Insert(3, 7, 3)
	require.Len(t, s, 2)
	require.True(t, s.Has(3))
	require.True(t, s.Has(7))
	require.False(t, s.Has(5))

	axes := MakeWith(2, 0)
	union := s.Union(axes, MakeWith(7, 9))
	require.Equal(t, []int{0, 2, 3, 7, 9}, Sorted(union))
	require.Len(t, s, 2, "Union must not modify its receiver")

	var empty Set[string]
	require.False(t, empty.Has("x"))
	require.Equal(t, []string{"x"}, Sorted(empty.Union(MakeWith("x"))))
}
