// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import "unsafe"

// Heap lifecycle: initial layout (prologue pad + single free block +
// epilogue sentinel) and heap extension. Grounded on
// original_source/allocator.c's myinit and the extension branch of
// mymalloc, with the free-list reset/bookkeeping shape of the teacher's
// qmalloc.go Init.

// Init (re)initializes h over a freshly reserved segment of
// cfg.InitPages pages. It returns false if the segment provider cannot
// satisfy the initial reservation. Init may be called on a zero-value
// Heap (via New) or to reset an existing one.
func (h *Heap) Init(cfg Config) bool {
	if cfg.InitPages <= 0 {
		cfg.InitPages = DefaultConfig().InitPages
	}
	if cfg.FirstFitCutoff <= 0 {
		cfg.FirstFitCutoff = DefaultConfig().FirstFitCutoff
	}
	if cfg.BestFitCutoff <= 0 {
		cfg.BestFitCutoff = DefaultConfig().BestFitCutoff
	}
	if cfg.ReallocMult <= 0 {
		cfg.ReallocMult = DefaultConfig().ReallocMult
	}
	return h.initWithProvider(cfg, newDefaultProvider())
}

// initWithProvider is Init with an explicit segment provider, letting
// tests substitute an in-memory fake for the mmap-backed default.
func (h *Heap) initWithProvider(cfg Config, provider segmentProvider) bool {
	mem, ok := provider.Init(cfg.InitPages)
	if !ok {
		return false
	}
	*h = Heap{cfg: cfg, provider: provider, mem: mem}

	// Prologue: an 8-byte alignment pad so the first block's bp is
	// 8-byte aligned (spec.md §3).
	firstBP := unsafe.Pointer(&h.mem[Alignment])
	size := uint32(len(h.mem)) - Alignment - HdrSize

	writeHeader(firstBP, size, free, alloc) // prologue pad treated as allocated sentinel
	writeFooter(firstBP)

	h.firstBlock = firstBP
	h.insertFree(firstBP)

	epilogue := getNextBlock(firstBP)
	writeHeader(epilogue, 0, alloc, free)
	h.epilogue = hdrAddr(epilogue)

	return true
}

// extend grows the heap by enough whole pages to cover at least
// addNeeded bytes, merging with a free predecessor block when possible
// (spec.md §4.3 step 2). It returns the free block the caller should now
// place into (which may be the grown predecessor), or nil on provider
// failure.
func (h *Heap) extend(addNeeded uint32) unsafe.Pointer {
	pageSize := uint32(h.provider.PageSize())
	nBytes := roundup(addNeeded, pageSize)
	nPages := int(nBytes / pageSize)

	newMem, ok := h.provider.Extend(nPages)
	if !ok {
		return nil
	}

	// The new region begins exactly where the old epilogue's header was;
	// growing h.mem to include it keeps bp arithmetic valid since the
	// provider guarantees contiguity.
	oldEpilogueHdr := h.epilogue
	h.mem = newMem

	newRegionBP := unsafe.Pointer(uintptr(oldEpilogueHdr) + HdrSize)

	var block unsafe.Pointer
	if getPrevAlloc(newRegionBP) == free {
		prev := getPrevBlock(newRegionBP)
		prevSize := getHdrSize(prev)
		total := prevSize + nBytes
		setHdrSize(prev, total)
		writeFooter(prev)
		h.updateBucket(prev, prevSize, total)
		block = prev
	} else {
		setHdrSize(newRegionBP, nBytes-HdrSize)
		setCurrAlloc(newRegionBP, free)
		writeFooter(newRegionBP)
		h.insertFree(newRegionBP)
		block = newRegionBP
	}

	epilogue := getNextBlock(block)
	writeHeader(epilogue, 0, alloc, free)
	h.epilogue = hdrAddr(epilogue)

	return block
}
