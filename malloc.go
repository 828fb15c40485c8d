// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import "unsafe"

// Placement engine (mymalloc). Grounded on
// original_source/allocator.c's mymalloc/split_block, with the
// addUsed/debug-canary bookkeeping shape of the teacher's qmalloc.go
// MallocUnsafe.

// AllocUnsafe is the non-locking version of Alloc. See Alloc.
func (h *Heap) AllocUnsafe(size uint32) unsafe.Pointer {
	h.debugCheck()
	if size == 0 {
		// Spurious request: no allocation, no error (spec.md §4.3 step 0).
		return nil
	}

	adjusted := adjustBlockSize(size)

	block := h.findFit(adjusted)
	if block == nil {
		block = h.extend(adjusted)
		if block == nil {
			// Resource exhaustion: the segment provider could not grow.
			return nil
		}
	}

	total := getHdrSize(block)
	// Signed, like original_source/allocator.c's "int free_bytes =
	// totalsz - adjustedsz - HDR_SIZE": total and adjusted are both
	// block sizes that round to a multiple of 8 plus 4, so their
	// difference is a multiple of 8 and is 0 whenever the block is an
	// exact fit (a same-size free block, or a fresh extend() block whose
	// page round-up left no slack), which makes rem -4. Doing
	// this subtraction in uint32 would underflow to a huge value and
	// mistake it for "plenty to split", writing the split footer far
	// past the block.
	rem := int64(total) - int64(adjusted) - int64(HdrSize)

	if rem < MinBlockSize {
		// Whole-block allocation: consume the entire free block.
		h.removeFree(block)
		setCurrAlloc(block, alloc)
		setPrevAlloc(getNextBlock(block), alloc)
	} else {
		// Split: the free remainder keeps the lower address, the
		// allocated block takes the higher address (spec.md §4.3 step 3
		// rationale: improves utilization under realloc-heavy workloads).
		freeBytes := uint32(rem)
		h.removeFree(block)

		setHdrSize(block, freeBytes)
		setCurrAlloc(block, free)
		writeFooter(block)
		h.insertFree(block)

		allocated := getNextBlock(block)
		writeHeader(allocated, adjusted, alloc, free)
		setPrevAlloc(getNextBlock(allocated), alloc)

		block = allocated
	}

	// Record the block's actual final size: unchanged (== total) for a
	// whole-block consume, or == adjusted for a split-off allocation.
	h.addUsed(getHdrSize(block))
	return block
}
