// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import "unsafe"

// Block metadata primitives.
//
// These operate directly on a block's base pointer (bp), the address
// returned to (or recorded for) a client, exactly like
// original_source/allocator.c's "Block Manipulation Functions": no
// bounds checking is performed here, callers must only invoke these on
// valid blocks (spec.md §4.1).

const (
	// Alignment is the maximum alignment guaranteed for any bp (spec.md §3).
	Alignment = 8
	// HdrSize is the size in bytes of a block header.
	HdrSize = 4
	// FtrSize is the size in bytes of a block footer (free blocks only).
	FtrSize = 4
	// HdrFtrSize is HdrSize+FtrSize, the distance from bp-8 to bp.
	HdrFtrSize = HdrSize + FtrSize
	// MinBlockSize is the minimum usable block size (spec.md §3): two
	// 4-byte link fields plus a 4-byte footer.
	MinBlockSize = 12
	// linkSize is the width of a free-block link field. Link fields store
	// a 4-byte offset relative to the heap's base address rather than a
	// full 8-byte pointer, so MinBlockSize (12: next+prev+footer) holds
	// on 64-bit platforms exactly as it does in the 32-bit original this
	// was ported from.
	linkSize = 4

	allocBit     = uint32(1)
	prevAllocBit = uint32(2)
	statusMask   = allocBit | prevAllocBit
)

const (
	free  = 0
	alloc = 1
)

// word reads the 4-byte word at p.
func word(p unsafe.Pointer) uint32 {
	return *(*uint32)(p)
}

// setWord writes the 4-byte word at p.
func setWord(p unsafe.Pointer, v uint32) {
	*(*uint32)(p) = v
}

// hdrAddr returns the address of bp's header.
func hdrAddr(bp unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(bp) - HdrSize)
}

// getSize reads the size field (bits 2..31) of a header/footer word.
func getSize(p unsafe.Pointer) uint32 {
	return word(p) >> 2
}

// setSize writes the size field of a header/footer word, preserving the
// status bits.
func setSize(p unsafe.Pointer, size uint32) {
	setWord(p, (word(p)&statusMask)|(size<<2))
}

// getHdrSize returns the size recorded in bp's header.
func getHdrSize(bp unsafe.Pointer) uint32 {
	return getSize(hdrAddr(bp))
}

// setHdrSize updates the size recorded in bp's header.
func setHdrSize(bp unsafe.Pointer, size uint32) {
	setSize(hdrAddr(bp), size)
}

// getCurrAlloc returns 1 if bp's block is allocated, 0 if free.
func getCurrAlloc(bp unsafe.Pointer) int {
	return int(word(hdrAddr(bp)) & allocBit)
}

// setCurrAlloc sets bp's current-allocation status bit.
func setCurrAlloc(bp unsafe.Pointer, curr int) {
	h := hdrAddr(bp)
	setWord(h, (word(h)&^allocBit)|uint32(curr))
}

// getPrevAlloc returns 1 if the block preceding bp is allocated, 0 if free.
func getPrevAlloc(bp unsafe.Pointer) int {
	return int(word(hdrAddr(bp)) & prevAllocBit >> 1)
}

// setPrevAlloc sets bp's previous-block-allocation status bit.
func setPrevAlloc(bp unsafe.Pointer, prevAlloc int) {
	h := hdrAddr(bp)
	setWord(h, (word(h)&^prevAllocBit)|(uint32(prevAlloc)<<1))
}

// writeHeader atomically sets size, curr-alloc and prev-alloc on bp's header.
func writeHeader(bp unsafe.Pointer, size uint32, currAlloc, prevAlloc int) {
	setWord(hdrAddr(bp), (size<<2)|(uint32(prevAlloc)<<1)|uint32(currAlloc))
}

// getFtrAddr returns the address of bp's footer (valid only on free blocks).
func getFtrAddr(bp unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(bp) + uintptr(getHdrSize(bp)) - FtrSize)
}

// writeFooter copies bp's header word into its footer.
func writeFooter(bp unsafe.Pointer) {
	setWord(getFtrAddr(bp), word(hdrAddr(bp)))
}

// getNextBlock returns the base pointer of the block immediately
// following bp.
func getNextBlock(bp unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(bp) + uintptr(getHdrSize(bp)) + HdrSize)
}

// getPrevBlock returns the base pointer of the block immediately
// preceding bp. Valid only if getPrevAlloc(bp) == free: only free blocks
// carry a footer, and the predecessor's footer is the only way to find
// its start from bp alone.
func getPrevBlock(bp unsafe.Pointer) unsafe.Pointer {
	prevFtr := unsafe.Pointer(uintptr(bp) - HdrFtrSize)
	prevSize := getSize(prevFtr)
	return unsafe.Pointer(uintptr(bp) - HdrSize - uintptr(prevSize))
}

// base returns the address of the heap's first mapped byte, the origin
// for the 4-byte relative offsets stored in free-block link fields.
func (h *Heap) base() unsafe.Pointer {
	return unsafe.Pointer(&h.mem[0])
}

// offsetOf converts an absolute block pointer to a base-relative offset.
func (h *Heap) offsetOf(p unsafe.Pointer) uint32 {
	return uint32(uintptr(p) - uintptr(h.base()))
}

// ptrAt converts a base-relative offset back to an absolute pointer. An
// offset of 0 is reserved to mean "no block" (the prologue pad occupies
// the heap's first 8 bytes, so no real block ever sits at offset 0).
func (h *Heap) ptrAt(off uint32) unsafe.Pointer {
	if off == 0 {
		return nil
	}
	return unsafe.Pointer(uintptr(h.base()) + uintptr(off))
}

// getNext returns the "next free block in this bucket" link stored in a
// free block's interior, or nil if bp is the bucket's last block.
func (h *Heap) getNext(bp unsafe.Pointer) unsafe.Pointer {
	return h.ptrAt(word(bp))
}

// setNext stores the "next free block" link.
func (h *Heap) setNext(bp, next unsafe.Pointer) {
	off := uint32(0)
	if next != nil {
		off = h.offsetOf(next)
	}
	setWord(bp, off)
}

// getPrev returns the "previous free block in this bucket" link, or nil
// if bp is the bucket's head.
func (h *Heap) getPrev(bp unsafe.Pointer) unsafe.Pointer {
	return h.ptrAt(word(unsafe.Pointer(uintptr(bp) + linkSize)))
}

// setPrev stores the "previous free block" link.
func (h *Heap) setPrev(bp, prev unsafe.Pointer) {
	off := uint32(0)
	if prev != nil {
		off = h.offsetOf(prev)
	}
	setWord(unsafe.Pointer(uintptr(bp)+linkSize), off)
}

// roundup rounds sz up to the nearest multiple of mult, which must be a
// power of two.
func roundup(sz, mult uint32) uint32 {
	return (sz + mult - 1) &^ (mult - 1)
}

// adjustBlockSize translates a client payload request into the block
// size that will hold it (spec.md §3's size-adjustment rule): requests of
// 12 bytes or less use the 12-byte minimum; larger requests round
// (r-4) up to a multiple of 8 and add back the 4 so that
// size ≡ 4 (mod 8) always holds.
func adjustBlockSize(requested uint32) uint32 {
	if requested <= MinBlockSize {
		return MinBlockSize
	}
	return roundup(requested-HdrSize, Alignment) + HdrSize
}
