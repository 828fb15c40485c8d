// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import "unsafe"

// Coalescing engine (myfree). The four-case table is taken directly from
// original_source/allocator.c's coalesce, with the misuse-detection
// wrapping (Owns/double-free panics) carried over from the teacher's
// qmalloc.go FreeUnsafe.

// FreeUnsafe is the non-locking version of Free. See Free.
func (h *Heap) FreeUnsafe(p unsafe.Pointer) {
	h.debugCheck()
	if p == nil {
		return
	}
	if h.Checks() && !h.Owns(p) {
		PANIC("BUG: Free called with pointer %p out of heap range\n", p)
		return
	}
	if h.Checks() && getCurrAlloc(p) == free {
		PANIC("BUG: attempt to free already freed pointer %p\n", p)
		return
	}

	h.subUsed(getHdrSize(p))
	h.coalesce(p)
}

// coalesce merges a newly-freed block p with any free neighbors, per the
// four cases below, and returns the resulting free block's base pointer.
//
//	prev free? | next free? | action
//	-----------|------------|-------
//	no         | no         | mark p free, insert
//	no         | yes        | merge with next, insert p, remove next
//	yes        | no         | merge into prev, re-bucket prev, do not insert (prev already indexed)
//	yes        | yes        | merge prev+p+next, re-bucket prev, remove next
func (h *Heap) coalesce(p unsafe.Pointer) unsafe.Pointer {
	next := getNextBlock(p)
	prevFree := getPrevAlloc(p) == free
	nextFree := getCurrAlloc(next) == free

	size := getHdrSize(p)
	nextSize := getHdrSize(next)

	switch {
	case !prevFree && !nextFree:
		setCurrAlloc(p, free)
		writeFooter(p)
		setPrevAlloc(next, free)
		h.insertFree(p)
		return p

	case !prevFree && nextFree:
		newSize := size + nextSize + HdrSize
		setHdrSize(p, newSize)
		setCurrAlloc(p, free)
		writeFooter(p)
		h.insertFree(p)
		h.removeFree(next)
		return p

	case prevFree && !nextFree:
		prev := getPrevBlock(p)
		prevSize := getHdrSize(prev)
		newSize := prevSize + size + HdrSize
		setHdrSize(prev, newSize)
		writeFooter(prev)
		h.updateBucket(prev, prevSize, newSize)
		setPrevAlloc(next, free)
		return prev

	default: // prevFree && nextFree
		prev := getPrevBlock(p)
		prevSize := getHdrSize(prev)
		newSize := prevSize + size + nextSize + 2*HdrSize
		h.removeFree(next)
		setHdrSize(prev, newSize)
		writeFooter(prev)
		h.updateBucket(prev, prevSize, newSize)
		return prev
	}
}
