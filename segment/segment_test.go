// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewReservesPageAlignedRange(t *testing.T) {
	p, err := New(1 << 20)
	require.NoError(t, err)
	defer p.Close()

	require.Greater(t, p.PageSize(), 0)
	require.Zero(t, len(p.reservation)%p.PageSize())
	require.Equal(t, 0, p.Size())
}

func TestNewDefaultsOnNonPositive(t *testing.T) {
	p, err := New(0)
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, defaultReservationBytes, len(p.reservation))
}

func TestInitCommitsFirstPages(t *testing.T) {
	p, err := New(16 << 20)
	require.NoError(t, err)
	defer p.Close()

	mem, ok := p.Init(2)
	require.True(t, ok)
	require.Len(t, mem, 2*p.PageSize())
	require.Equal(t, 2*p.PageSize(), p.Size())

	// committed memory must be read/write: this panics (via SIGSEGV,
	// caught by the runtime as a fault) rather than returning an error if
	// mprotect wasn't actually applied.
	mem[0] = 1
	mem[len(mem)-1] = 2
	require.EqualValues(t, 1, mem[0])
}

func TestInitIsOneShot(t *testing.T) {
	p, err := New(16 << 20)
	require.NoError(t, err)
	defer p.Close()

	_, ok := p.Init(1)
	require.True(t, ok)

	_, ok = p.Init(1)
	require.False(t, ok, "a second Init on the same provider must fail")
}

func TestInitRejectsOversizeRequest(t *testing.T) {
	p, err := New(1 << 20) // rounds down to a handful of pages
	require.NoError(t, err)
	defer p.Close()

	hugePages := (len(p.reservation) / p.PageSize()) + 1
	_, ok := p.Init(hugePages)
	require.False(t, ok)
}

func TestExtendGrowsContiguously(t *testing.T) {
	p, err := New(16 << 20)
	require.NoError(t, err)
	defer p.Close()

	mem1, ok := p.Init(2)
	require.True(t, ok)
	base := &mem1[0]

	mem2, ok := p.Extend(3)
	require.True(t, ok)
	require.Len(t, mem2, 5*p.PageSize())
	require.Equal(t, base, &mem2[0], "extending must never move the base address")

	// The newly committed tail must be writable.
	mem2[len(mem2)-1] = 7
	require.EqualValues(t, 7, mem2[len(mem2)-1])
}

func TestExtendRejectsBeyondReservation(t *testing.T) {
	p, err := New(1 << 20)
	require.NoError(t, err)
	defer p.Close()

	total := len(p.reservation) / p.PageSize()
	_, ok := p.Init(total)
	require.True(t, ok)

	_, ok = p.Extend(1)
	require.False(t, ok, "extending past the reserved range must fail, not grow the reservation")
}

func TestCloseIsIdempotentAndSafe(t *testing.T) {
	p, err := New(1 << 20)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "closing twice must not error")
}
