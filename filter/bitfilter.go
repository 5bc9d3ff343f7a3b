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

// Package filter implements BitFilter (spec §4.1, component C1): a
// fixed-size probabilistic set used to skip whole blocks on reads.
package filter

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/holiman/bloomfilter/v2"

	"github.com/ledgerwatch/paprika/pagepool"
)

var errMismatchedWidth = errors.New("filter: OrWith requires peers of the same bit width")

// DefaultPages is the default filter width in pool pages: 16 pages of
// page_size bytes give 128 x page_size bits per filter instance.
const DefaultPages = 16

// recommendedK asks holiman/bloomfilter/v2 for the hash-function count an
// optimally-tuned filter of this capacity and target false-positive rate
// would use. We don't use the library's own bit storage — BitFilter needs
// lock-free concurrent AddAtomic, which that library's plain []uint64
// backing doesn't guarantee — but its parameter-estimation math is exactly
// the one genuinely reusable piece, so we still take a real dependency on it
// instead of reinventing the Kirsch-Mitzenmacher sizing formulas by hand.
func recommendedK(expectedEntries uint64, falsePositiveRate float64) int {
	if expectedEntries == 0 {
		expectedEntries = 1
	}
	probe, err := bloomfilter.NewOptimal(expectedEntries, falsePositiveRate)
	if err != nil {
		return 4
	}
	k := int(probe.K())
	if k < 1 {
		k = 1
	}
	if k > 8 {
		k = 8
	}
	return k
}

// BitFilter is a fixed-size bit array supporting atomic insert, lookup and
// destructive OR with peers. Its backing words live inside pages leased from
// a pagepool.Pool, so Return gives the pages back for reuse rather than
// freeing memory outright.
type BitFilter struct {
	pool  *pagepool.Pool
	pages []*pagepool.Page
	words []uint64
	nBits uint64
	k     int
}

// New acquires pageCount pages from pool and returns a filter over them,
// sized for roughly expectedEntries insertions at the given target false
// positive rate.
func New(pool *pagepool.Pool, pageCount int, expectedEntries uint64, falsePositiveRate float64) (*BitFilter, error) {
	if pageCount <= 0 {
		pageCount = DefaultPages
	}
	pages := make([]*pagepool.Page, pageCount)
	words := make([]uint64, 0, pageCount*pool.PageSize()/8)
	for i := range pages {
		pg, err := pool.Acquire()
		if err != nil {
			for _, acquired := range pages[:i] {
				pool.Release(acquired)
			}
			return nil, err
		}
		pages[i] = pg
		words = append(words, bytesAsWords(pg.Buf)...)
	}
	return &BitFilter{
		pool:  pool,
		pages: pages,
		words: words,
		nBits: uint64(len(words)) * 64,
		k:     recommendedK(expectedEntries, falsePositiveRate),
	}, nil
}

// bytesAsWords reinterprets a page's byte buffer as a slice of uint64 words
// without copying; Pool guarantees page sizes are multiples of 8.
func bytesAsWords(buf []byte) []uint64 {
	n := len(buf) / 8
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&buf[0])), n)
}

func (f *BitFilter) probe(i int, h uint64) uint64 {
	h1 := h >> 32
	h2 := h & 0xffffffff
	return (h1 + uint64(i)*h2) % f.nBits
}

// Add sets the bits addressed by h. Not safe for concurrent use with itself
// or AddAtomic on the same filter; use AddAtomic when the prefetcher and the
// owning LiveBlock may touch the same filter concurrently.
func (f *BitFilter) Add(h uint64) {
	for i := 0; i < f.k; i++ {
		bit := f.probe(i, h)
		f.words[bit/64] |= 1 << (bit % 64)
	}
}

// AddAtomic is the concurrency-safe counterpart of Add. It returns true iff
// at least one of the k probed bits was previously zero, which the
// prefetcher uses as a (conservative) "have I not already queued this hint"
// signal.
func (f *BitFilter) AddAtomic(h uint64) bool {
	newlySet := false
	for i := 0; i < f.k; i++ {
		bit := f.probe(i, h)
		wordIdx := bit / 64
		mask := uint64(1) << (bit % 64)
		word := &f.words[wordIdx]
		for {
			old := atomicLoad(word)
			if old&mask != 0 {
				break
			}
			if atomicCAS(word, old, old|mask) {
				newlySet = true
				break
			}
		}
	}
	return newlySet
}

// MayContain reports whether h was possibly added before. False positives
// are possible; false negatives are not.
func (f *BitFilter) MayContain(h uint64) bool {
	for i := 0; i < f.k; i++ {
		bit := f.probe(i, h)
		if f.words[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// MayContainAny short-circuit-ORs two probes against the same filter
// instance (spec: used to test a key's hash and its DestroyedHash64 in one
// pass).
func (f *BitFilter) MayContainAny(h1, h2 uint64) bool {
	return f.MayContain(h1) || (h2 != 0 && f.MayContain(h2))
}

// OrWith destructively ORs peer filters' bits into f. All filters must share
// the same bit width.
func (f *BitFilter) OrWith(peers ...*BitFilter) error {
	for _, p := range peers {
		if p.nBits != f.nBits {
			return errMismatchedWidth
		}
		for i := range f.words {
			f.words[i] |= p.words[i]
		}
	}
	return nil
}

// Clear zeroes every bit without returning the backing pages.
func (f *BitFilter) Clear() {
	for i := range f.words {
		f.words[i] = 0
	}
}

// Return releases every backing page to the pool. The filter must not be
// used afterward.
func (f *BitFilter) Return() {
	for _, pg := range f.pages {
		f.pool.Release(pg)
	}
	f.pages = nil
	f.words = nil
}

// Clone allocates a fresh filter of the same width and copies f's bits into
// it (used to start the OR of an ancestor chain's filters from a copy of the
// first ancestor's filter, leaving that ancestor's own filter untouched).
func (f *BitFilter) Clone() (*BitFilter, error) {
	clone, err := New(f.pool, len(f.pages), 1, 0.01)
	if err != nil {
		return nil, err
	}
	copy(clone.words, f.words)
	clone.k = f.k
	return clone, nil
}
