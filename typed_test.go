// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int64
}

func TestAllocTRoundTrip(t *testing.T) {
	h := newTestHeap(t)

	p := AllocT[point](h)
	require.NotNil(t, p)
	p.X, p.Y = 3, 4
	require.Equal(t, int64(3), p.X)

	FreeT(h, p)
	require.NoError(t, h.Validate())
}

func TestFreeTNilIsNoop(t *testing.T) {
	h := newTestHeap(t)
	var p *point
	FreeT(h, p) // must not panic
	require.NoError(t, h.Validate())
}

func TestAllocSlice(t *testing.T) {
	h := newTestHeap(t)

	s := AllocSlice[int32](h, 10)
	require.Len(t, s, 10)
	for i := range s {
		s[i] = int32(i * i)
	}
	for i := range s {
		require.Equal(t, int32(i*i), s[i])
	}

	FreeSlice(h, s)
	require.NoError(t, h.Validate())
}

func TestAllocSliceZeroLength(t *testing.T) {
	h := newTestHeap(t)
	s := AllocSlice[byte](h, 0)
	require.Len(t, s, 0)
	FreeSlice(h, s) // must not touch the heap
	require.NoError(t, h.Validate())
}

func TestAllocSliceNegativeLengthPanics(t *testing.T) {
	h := newTestHeap(t)
	require.Panics(t, func() {
		AllocSlice[byte](h, -1)
	})
}
