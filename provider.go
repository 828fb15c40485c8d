// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package sheap

import "github.com/intuitivelabs/sheap/segment"

// newDefaultProvider wires the out-of-scope segment-provider collaborator
// (spec.md §6) to its mmap-backed implementation in package segment. If
// the address space reservation itself fails, it logs a warning and
// returns a failedProvider, so that Init reports the failure by
// returning false; it never panics.
func newDefaultProvider() segmentProvider {
	p, err := segment.New(0)
	if err != nil {
		WARN("segment: failed to reserve address space: %v\n", err)
		return &failedProvider{}
	}
	return p
}

// failedProvider is returned when the default provider's initial address
// space reservation itself fails (vs. a later page-commit failure, which
// surfaces as Init/Extend returning false). Its Init always fails,
// letting Heap.Init's normal false-return path handle it uniformly.
type failedProvider struct{}

func (*failedProvider) Init(int) ([]byte, bool)   { return nil, false }
func (*failedProvider) Extend(int) ([]byte, bool) { return nil, false }
func (*failedProvider) Size() int                 { return 0 }
func (*failedProvider) PageSize() int             { return 0 }
