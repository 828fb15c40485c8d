// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Typed convenience veneer over the four core entry points, in the shape
// of other_examples/pboyd-malloc__malloc.go's Malloc[T]/Free[T]/
// MallocSlice[T] atop its arena. These do not replace Alloc/Free/Realloc;
// they exist for callers that know their payload type up front.

// AllocT allocates space for one T and returns a typed pointer, or nil on
// failure.
func AllocT[T any](h *Heap) *T {
	p := h.Alloc(uint32(unsafe.Sizeof(*new(T))))
	if p == nil {
		return nil
	}
	return (*T)(p)
}

// FreeT releases the memory backing a pointer obtained from AllocT.
func FreeT[T any](h *Heap, p *T) {
	if p == nil {
		return
	}
	h.Free(unsafe.Pointer(p))
}

// AllocSlice returns a new slice of length n backed by heap memory. The
// builtin append can grow it, but growth beyond n moves the data out of
// the heap and it will no longer be freed by FreeSlice.
func AllocSlice[T any, N constraints.Integer](h *Heap, n N) []T {
	if n < 0 {
		panic("sheap.AllocSlice: negative length")
	}
	if n == 0 {
		return []T{}
	}
	var zero T
	elemSize := uint32(unsafe.Sizeof(zero))
	p := h.Alloc(elemSize * uint32(n))
	if p == nil {
		return nil
	}
	return unsafe.Slice((*T)(p), int(n))
}

// FreeSlice releases the memory backing a slice obtained from AllocSlice.
func FreeSlice[T any](h *Heap, s []T) {
	if len(s) == 0 {
		return
	}
	h.Free(unsafe.Pointer(unsafe.SliceData(s)))
}
