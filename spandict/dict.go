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

// Package spandict implements SpanDict (spec §4.2, component C2): a pooled
// open-addressed map from an arbitrary byte-key (carrying a caller-supplied
// 64-bit hash) to an arbitrary byte-value plus a 1-byte metadata tag. The
// bucket index is backed by pages leased from a pagepool.Pool, the same
// allocator filter.BitFilter leans on, so both of a LiveBlock's heaviest
// structures share one arena.
package spandict

import (
	"bytes"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ledgerwatch/paprika/pagepool"
)

// Meta is an opaque 1-byte tag a caller attaches to every value. SpanDict
// never interprets it; package blockchain (meta.go) defines the concrete tag values
// (Persistent, Cached, UseOnce) that give it meaning.
type Meta uint8

const emptySlot = ^uint32(0)

type entry struct {
	hash64    uint64
	key       []byte
	meta      Meta
	destroyed bool
	value     atomic.Pointer[[]byte]
}

// Dict is a single SpanDict instance. The zero value is not usable; build
// one with New.
type Dict struct {
	pool *pagepool.Pool

	mu      sync.RWMutex
	buckets []uint32 // index into entries, or emptySlot; len is always a power of two
	pages   []*pagepool.Page
	entries []*entry
	count   int // live (non-tombstoned-at-the-table-level) entries; entries are never removed from the slice

	// Probes counts TryGet calls, used by tests to verify the ancestor
	// walk short-circuits on the filter (testable property 4).
	Probes atomic.Uint64
}

// New creates an empty Dict backed by pages from pool. initialBuckets is
// rounded up to a power of two and to whatever a whole number of pool pages
// can hold; pass 0 for 1024.
func New(pool *pagepool.Pool, initialBuckets int) (*Dict, error) {
	if initialBuckets <= 0 {
		initialBuckets = 1024
	}
	d := &Dict{pool: pool}
	if err := d.growTo(nextPow2(initialBuckets)); err != nil {
		return nil, err
	}
	return d, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// growTo replaces the bucket table with one of size n (a power of two),
// acquiring however many pool pages are needed to hold n uint32 slots, and
// rehashes every existing entry into it.
func (d *Dict) growTo(n int) error {
	wordsPerPage := d.pool.PageSize() / 4
	if wordsPerPage == 0 {
		wordsPerPage = 1
	}
	pagesNeeded := (n + wordsPerPage - 1) / wordsPerPage
	if pagesNeeded < 1 {
		pagesNeeded = 1
	}

	pages := make([]*pagepool.Page, pagesNeeded)
	buckets := make([]uint32, 0, pagesNeeded*wordsPerPage)
	for i := range pages {
		pg, err := d.pool.Acquire()
		if err != nil {
			for _, acquired := range pages[:i] {
				d.pool.Release(acquired)
			}
			return err
		}
		pages[i] = pg
		buckets = append(buckets, bytesAsUint32s(pg.Buf)...)
	}
	for i := range buckets {
		buckets[i] = emptySlot
	}

	for _, old := range d.pages {
		d.pool.Release(old)
	}
	d.pages = pages
	d.buckets = buckets

	for idx, e := range d.entries {
		d.insertIntoTable(e.hash64, uint32(idx))
	}
	return nil
}

func bytesAsUint32s(buf []byte) []uint32 {
	n := len(buf) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), n)
}

func (d *Dict) insertIntoTable(hash64 uint64, entryIdx uint32) {
	mask := uint64(len(d.buckets) - 1)
	i := hash64 & mask
	for d.buckets[i] != emptySlot {
		i = (i + 1) & mask
	}
	d.buckets[i] = entryIdx
}

func (d *Dict) findLocked(key []byte, hash64 uint64) (int, bool) {
	if len(d.buckets) == 0 {
		return 0, false
	}
	mask := uint64(len(d.buckets) - 1)
	i := hash64 & mask
	for {
		slot := d.buckets[i]
		if slot == emptySlot {
			return 0, false
		}
		e := d.entries[slot]
		if e.hash64 == hash64 && bytes.Equal(e.key, key) {
			return int(slot), true
		}
		i = (i + 1) & mask
	}
}

// Set writes key -> value with the given precomputed hash and metadata tag,
// overwriting any existing entry for the same logical key (full byte
// compare resolves hash collisions, per spec §4.2's invariant). A Set on a
// previously destroyed entry resurrects it.
func (d *Dict) Set(key []byte, hash64 uint64, value []byte, meta Meta) {
	d.mu.Lock()
	idx, ok := d.findLocked(key, hash64)
	if !ok {
		d.growIfNeededLocked()
		e := &entry{hash64: hash64, key: append([]byte(nil), key...), meta: meta}
		v := append([]byte(nil), value...)
		e.value.Store(&v)
		d.entries = append(d.entries, e)
		d.insertIntoTable(hash64, uint32(len(d.entries)-1))
		d.count++
		d.mu.Unlock()
		return
	}
	e := d.entries[idx]
	e.meta = meta
	e.destroyed = false
	d.mu.Unlock()
	v := append([]byte(nil), value...)
	e.value.Store(&v)
}

// SetConcat is Set for a value formed by concatenating v0 and v1, avoiding
// the caller having to allocate the concatenation itself.
func (d *Dict) SetConcat(key []byte, hash64 uint64, v0, v1 []byte, meta Meta) {
	value := make([]byte, 0, len(v0)+len(v1))
	value = append(value, v0...)
	value = append(value, v1...)
	d.setOwned(key, hash64, value, meta)
}

func (d *Dict) setOwned(key []byte, hash64 uint64, value []byte, meta Meta) {
	d.mu.Lock()
	idx, ok := d.findLocked(key, hash64)
	if !ok {
		d.growIfNeededLocked()
		e := &entry{hash64: hash64, key: append([]byte(nil), key...), meta: meta}
		e.value.Store(&value)
		d.entries = append(d.entries, e)
		d.insertIntoTable(hash64, uint32(len(d.entries)-1))
		d.count++
		d.mu.Unlock()
		return
	}
	e := d.entries[idx]
	e.meta = meta
	e.destroyed = false
	d.mu.Unlock()
	e.value.Store(&value)
}

func (d *Dict) growIfNeededLocked() {
	if (d.count+1)*2 < len(d.buckets) {
		return
	}
	// growTo re-enters the struct fields directly (it's called with mu
	// already held); it never touches d.mu itself.
	_ = d.growTo(len(d.buckets) * 2)
}

// TryGet looks up key. The returned bool is false on a true miss. A hit on
// an entry marked destroyed still returns ok=true with destroyed=true and an
// empty value, so callers can distinguish "no such entry" (authoritative,
// because of a DestroyAccount) from "not found here, maybe an ancestor has
// it".
func (d *Dict) TryGet(key []byte, hash64 uint64) (value []byte, meta Meta, destroyed bool, ok bool) {
	d.Probes.Add(1)
	d.mu.RLock()
	idx, found := d.findLocked(key, hash64)
	if !found {
		d.mu.RUnlock()
		return nil, 0, false, false
	}
	e := d.entries[idx]
	meta = e.meta
	destroyed = e.destroyed
	d.mu.RUnlock()
	if destroyed {
		return nil, meta, true, true
	}
	vp := e.value.Load()
	if vp == nil {
		return nil, meta, false, true
	}
	return *vp, meta, false, true
}

// Cursor iterates every entry in a Dict in insertion order, destroyed ones
// included (Next reports them with destroyed=true). It is meant for
// bulk structural operations (DestroyAccount's subtree marking, CommittedBlock
// assembly); callers must not mutate the Dict they are iterating from another
// goroutine.
type Cursor struct {
	d   *Dict
	pos int
}

// Iterate returns a Cursor positioned before the first entry.
func (d *Dict) Iterate() *Cursor {
	return &Cursor{d: d, pos: -1}
}

// Next advances the cursor and reports the entry it now points to. ok is
// false once every entry has been visited.
func (c *Cursor) Next() (key []byte, hash64 uint64, value []byte, meta Meta, destroyed bool, ok bool) {
	c.d.mu.RLock()
	defer c.d.mu.RUnlock()
	c.pos++
	if c.pos >= len(c.d.entries) {
		return nil, 0, nil, 0, false, false
	}
	e := c.d.entries[c.pos]
	vp := e.value.Load()
	var v []byte
	if vp != nil {
		v = *vp
	}
	return e.key, e.hash64, v, e.meta, e.destroyed, true
}

// MarkDestroyed flags the entry the cursor currently points to as destroyed
// in place (spec §4.2 "per-entry destroy() (in-place delete during
// iteration)"); it keeps the table slot (no rehash needed) but clears its
// value.
func (c *Cursor) MarkDestroyed() {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.pos < 0 || c.pos >= len(c.d.entries) {
		return
	}
	e := c.d.entries[c.pos]
	e.destroyed = true
	var empty []byte
	e.value.Store(&empty)
}

// CopyTo copies every entry of d for which predicate(meta) is true into
// dest, inserting dest's KeyHash64 into filterToPopulate for each one.
// appendOnly tells CopyTo it may skip the overwrite check because the
// caller already knows dest and d's key spaces are disjoint (spec §4.4.3
// step 5: state and storage are copied in append mode by disjointness of
// key types; pre_commit uses overwriting copy).
func (d *Dict) CopyTo(dest *Dict, predicate func(Meta) bool, filterToPopulate interface{ AddAtomic(uint64) bool }, appendOnly bool) {
	c := d.Iterate()
	for {
		key, hash64, value, meta, destroyed, ok := c.Next()
		if !ok {
			return
		}
		if !predicate(meta) {
			continue
		}
		if appendOnly {
			dest.setOwned(key, hash64, append([]byte(nil), value...), meta)
		} else {
			dest.Set(key, hash64, value, meta)
		}
		if destroyed {
			dest.mu.Lock()
			if idx, found := dest.findLocked(key, hash64); found {
				dest.entries[idx].destroyed = true
			}
			dest.mu.Unlock()
		}
		if filterToPopulate != nil {
			filterToPopulate.AddAtomic(hash64)
		}
	}
}

// Len reports the number of entries ever inserted (including destroyed
// ones, which keep their slot).
func (d *Dict) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Return releases the Dict's bucket-table pages back to the pool. The Dict
// must not be used afterward.
func (d *Dict) Return() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, pg := range d.pages {
		d.pool.Release(pg)
	}
	d.pages = nil
	d.buckets = nil
}
