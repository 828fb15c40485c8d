// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package segment implements the OS-facing heap segment provider
// contract described in spec.md §6: reserve an initial run of pages, and
// append further pages contiguously to the end of the current segment.
//
// There is no teacher implementation to ground this on directly (the
// teacher's QMalloc.Init takes a pre-made []byte and never grows it), so
// this follows the standard technique used by allocators that need a
// growable-but-contiguous region on top of an OS without a native
// "extend in place" primitive: reserve a large virtual address range up
// front with PROT_NONE (which costs address space, not physical memory)
// and commit pages into the front of it with mprotect as they are
// needed. Because the whole range comes from one mmap call, every
// committed prefix shares one base address and every extension is
// guaranteed adjacent to the current end.
package segment

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// defaultReservationBytes bounds how much address space a Provider
// reserves up front. 64 GiB of PROT_NONE address space costs nothing
// but page-table bookkeeping on 64-bit platforms.
const defaultReservationBytes = 64 << 30

// Provider is a segment provider backed by a single mmap reservation,
// grown in place with mprotect.
type Provider struct {
	reservation []byte
	committed   int
	pageSize    int
}

// New creates a Provider that has reserved (but not committed) up to
// reservationBytes of address space, rounded down to a whole number of
// pages. A zero or negative reservationBytes uses defaultReservationBytes.
func New(reservationBytes int) (*Provider, error) {
	if reservationBytes <= 0 {
		reservationBytes = defaultReservationBytes
	}
	pageSize := unix.Getpagesize()
	reservationBytes -= reservationBytes % pageSize

	region, err := unix.Mmap(-1, 0, reservationBytes,
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("segment: reserving %d bytes: %w", reservationBytes, err)
	}

	return &Provider{reservation: region, pageSize: pageSize}, nil
}

// Init reserves exactly nPages*PageSize() contiguous, committed bytes
// starting at the base of the provider's reservation. It is a one-shot
// operation per Provider instance per spec.md §6.
func (p *Provider) Init(nPages int) ([]byte, bool) {
	if p.committed != 0 || nPages <= 0 {
		return nil, false
	}
	want := nPages * p.pageSize
	if want > len(p.reservation) {
		return nil, false
	}
	if err := unix.Mprotect(p.reservation[:want], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, false
	}
	p.committed = want
	return p.reservation[:p.committed], true
}

// Extend commits nPages additional pages immediately after the current
// end of the segment and returns the full committed prefix (the new
// region starts at the returned slice's old length, i.e. the prior end).
func (p *Provider) Extend(nPages int) ([]byte, bool) {
	if nPages <= 0 {
		return nil, false
	}
	addBytes := nPages * p.pageSize
	newCommitted := p.committed + addBytes
	if newCommitted > len(p.reservation) {
		return nil, false
	}
	grow := p.reservation[p.committed:newCommitted]
	if err := unix.Mprotect(grow, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, false
	}
	p.committed = newCommitted
	return p.reservation[:p.committed], true
}

// Size returns the number of bytes currently committed.
func (p *Provider) Size() int { return p.committed }

// PageSize returns the platform page size used by this provider.
func (p *Provider) PageSize() int { return p.pageSize }

// Close releases the entire reservation, committed or not. The Provider
// must not be used afterward.
func (p *Provider) Close() error {
	if p.reservation == nil {
		return nil
	}
	err := unix.Munmap(p.reservation)
	p.reservation = nil
	p.committed = 0
	return err
}
