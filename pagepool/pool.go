// Copyright 2026 The Paprika Authors
// This file is part of Paprika.
//
// Paprika is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Paprika is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Paprika. If not, see <http://www.gnu.org/licenses/>.

// Package pagepool implements the process-wide fixed-size page allocator
// (spec §4, component C4). One big anonymous mmap arena is carved into
// fixed-size, page-aligned slices; a roaring bitmap tracks which slices are
// free, and a counter tracks how many are outstanding (spec §5 "Lease
// conservation").
package pagepool

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/edsrzf/mmap-go"
)

// DefaultPageSize matches the page size the paged database (the external
// collaborator behind §6) itself uses, so a BitFilter or SpanDict page can be
// hydrated or flushed without reshaping.
const DefaultPageSize = 4096

// Pool hands out fixed-size aligned buffers and tracks how many are
// outstanding. It grows by mapping one more fixed-size arena (1024 pages)
// whenever no page is free; pages are never actually returned to the OS
// until Close, only recycled.
type Pool struct {
	pageSize int

	mu      sync.Mutex
	arenas  []mmap.MMap
	free    *roaring.Bitmap // indices, across all arenas concatenated, that are free
	pagesPerArena int
	outstanding   int
}

// NewPool creates a Pool whose pages are pageSize bytes each. pageSize must
// be a positive multiple of 8 (pages are reinterpreted as []uint64 words by
// some callers, e.g. filter.BitFilter).
func NewPool(pageSize int) (*Pool, error) {
	if pageSize <= 0 || pageSize%8 != 0 {
		return nil, fmt.Errorf("pagepool: page size %d must be a positive multiple of 8", pageSize)
	}
	p := &Pool{
		pageSize:      pageSize,
		free:          roaring.New(),
		pagesPerArena: 1024,
	}
	return p, nil
}

// Page is a single fixed-size buffer leased from a Pool. Buf is valid only
// between Acquire and Release.
type Page struct {
	Buf []byte
	idx uint32
}

func (p *Pool) growLocked() error {
	arenaBytes := p.pagesPerArena * p.pageSize
	region, err := mmap.MapRegion(nil, arenaBytes, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return fmt.Errorf("pagepool: mmap arena: %w", err)
	}
	base := uint32(len(p.arenas) * p.pagesPerArena)
	p.arenas = append(p.arenas, region)
	for i := 0; i < p.pagesPerArena; i++ {
		p.free.Add(base + uint32(i))
	}
	return nil
}

// Acquire returns a fresh zeroed page. It never fails except on OS mmap
// exhaustion.
func (p *Pool) Acquire() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free.IsEmpty() {
		if err := p.growLocked(); err != nil {
			return nil, err
		}
	}
	it := p.free.Iterator()
	idx := it.Next()
	p.free.Remove(idx)
	p.outstanding++

	arenaIdx := int(idx) / p.pagesPerArena
	offset := (int(idx) % p.pagesPerArena) * p.pageSize
	buf := p.arenas[arenaIdx][offset : offset+p.pageSize]
	for i := range buf {
		buf[i] = 0
	}
	return &Page{Buf: buf, idx: idx}, nil
}

// Release returns a page to the pool for reuse.
func (p *Pool) Release(pg *Page) {
	if pg == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free.Add(pg.idx)
	p.outstanding--
	pg.Buf = nil
}

// Outstanding is the number of pages currently leased out. Testable property
// 8 (Lease conservation) requires this to be zero after DisposeAsync.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// PageSize is the fixed size, in bytes, of every page this Pool hands out.
func (p *Pool) PageSize() int { return p.pageSize }

// Close unmaps every arena. Callers must have released every outstanding
// page first.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, a := range p.arenas {
		if err := a.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.arenas = nil
	return firstErr
}
