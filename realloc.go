// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import "unsafe"

// Reallocation engine (myrealloc). Grounded on
// original_source/allocator.c's myrealloc (including the Open Question
// fix noted in DESIGN.md: the free-on-zero-size path calls this
// allocator's own FreeUnsafe, never an external free) and the teacher's
// qmalloc.go ReallocUnsafe (unsafe-copy-then-free-old shape on fallback).

// ReallocUnsafe is the non-locking version of Realloc.
//
//   - oldptr == nil is equivalent to AllocUnsafe(newsz).
//   - newsz == 0 with a non-nil oldptr frees oldptr and returns nil.
//   - Otherwise: if the adjusted size fits within the existing block, the
//     same pointer is returned unchanged (no tail-splitting; the
//     oversize is accepted as fragmentation, an intentional throughput
//     choice per spec.md §4.5 step 1). If the immediate successor is free
//     and large enough, it is absorbed in place. Otherwise a fresh block
//     is allocated, the old contents copied, and oldptr freed.
func (h *Heap) ReallocUnsafe(oldptr unsafe.Pointer, newsz uint32) unsafe.Pointer {
	h.debugCheck()
	if oldptr == nil {
		return h.AllocUnsafe(newsz)
	}
	if newsz == 0 {
		h.FreeUnsafe(oldptr)
		return nil
	}
	if h.Checks() && !h.Owns(oldptr) {
		PANIC("BUG: Realloc called with pointer %p out of heap range\n", oldptr)
		return nil
	}
	if h.Checks() && getCurrAlloc(oldptr) == free {
		PANIC("BUG: attempt to realloc an already freed pointer %p\n", oldptr)
		return nil
	}

	oldSize := getHdrSize(oldptr)
	adjusted := adjustBlockSize(newsz)

	if adjusted <= oldSize {
		// In-place shrink/reuse: accept the oversize.
		return oldptr
	}

	next := getNextBlock(oldptr)
	if getCurrAlloc(next) == free {
		nextSize := getHdrSize(next)
		combined := oldSize + nextSize + HdrSize
		if adjusted < combined {
			afterNext := getNextBlock(next)
			setPrevAlloc(afterNext, alloc)
			h.removeFree(next)
			diff := uint64(combined - oldSize)
			setHdrSize(oldptr, combined)
			writeFooter(oldptr) // harmless on an allocated block: stays inside it
			h.used.Used += diff
			h.used.RealUsed += diff
			if h.used.MaxRealUsed < h.used.RealUsed {
				h.used.MaxRealUsed = h.used.RealUsed
			}
			return oldptr
		}
	}

	// Fallback: allocate fresh, copy, free the old block.
	newptr := h.AllocUnsafe(newsz * uint32(h.cfg.ReallocMult))
	if newptr == nil {
		return nil
	}
	copySize := oldSize
	if newsz < copySize {
		copySize = newsz
	}
	dst := unsafe.Slice((*byte)(newptr), copySize)
	src := unsafe.Slice((*byte)(oldptr), copySize)
	copy(dst, src)
	h.FreeUnsafe(oldptr)
	return newptr
}
