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

func TestBucketOfRange(t *testing.T) {
	for s := uint32(1); s < 1<<20; s *= 3 {
		b := bucketOf(s)
		require.GreaterOrEqual(t, b, 0)
		require.LessOrEqual(t, b, NBuckets-1)
	}
}

func TestBucketOfMonotonic(t *testing.T) {
	// For s1 < s2 < 2*s1, bucket(s1) <= bucket(s2) <= bucket(s1)+1
	// (spec.md §8 property 10).
	for s1 := uint32(1); s1 < 1<<16; s1++ {
		for _, s2 := range []uint32{s1 + 1, 2*s1 - 1} {
			if s2 <= s1 {
				continue
			}
			b1, b2 := bucketOf(s1), bucketOf(s2)
			require.LessOrEqual(t, b1, b2)
			require.LessOrEqual(t, b2, b1+1)
		}
		if s1 > 1<<12 {
			break // keep the test fast; the formula is monotone by construction
		}
	}
}

func TestBucketOfPowersOfTwoShareClass(t *testing.T) {
	for k := uint(4); k < 20; k++ {
		lo := uint32(1) << k
		hi := lo*2 - 1
		require.Equal(t, bucketOf(lo), bucketOf(hi), "k=%d", k)
	}
}

func TestFreeListInsertRemove(t *testing.T) {
	h := newTestHeap(t)

	// Allocate three same-size (hence same-bucket) blocks, then free them
	// one by one: the coalescing paths insert each freed block into its
	// bucket and remove merged neighbors, and Validate checks the
	// resulting list and bucket bookkeeping.
	a := h.AllocUnsafe(64)
	b := h.AllocUnsafe(64)
	c := h.AllocUnsafe(64)
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, c)

	h.FreeUnsafe(a)
	h.FreeUnsafe(b)
	h.FreeUnsafe(c)

	require.NoError(t, h.Validate())
}
