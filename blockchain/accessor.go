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

package blockchain

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/ledgerwatch/paprika/common"
)

// defaultAccessorRing bounds how many ReadOnlyViews Accessor keeps warm at
// once (spec §4.9: "a small FIFO ring of recently built views, evicting the
// oldest on overflow").
const defaultAccessorRing = 8

// Accessor is the read-mostly front door onto historical state (spec §4.9,
// component C11): it memoizes ReadOnlyViews by hash behind a small FIFO
// ring so repeated queries against the same recent block don't re-walk the
// ancestor chain each time.
type Accessor struct {
	bc *Blockchain

	mu    sync.Mutex
	views *lru.LRU[common.Hash, *ReadOnlyView]
}

func newAccessor(bc *Blockchain, size int) *Accessor {
	if size <= 0 {
		size = defaultAccessorRing
	}
	a := &Accessor{bc: bc}
	// onEvict disposes the evicted view's leases; simplelru has no lock of
	// its own and calls it synchronously from Add/Remove/Purge, which
	// Accessor only calls with a.mu held. Dispose only touches CommittedBlock
	// leases and the batch, never a.mu, so there's no re-entrancy hazard.
	views, _ := lru.NewLRU[common.Hash, *ReadOnlyView](size, func(_ common.Hash, v *ReadOnlyView) {
		v.Dispose()
	})
	a.views = views
	return a
}

// View returns a ReadOnlyView rooted at hash, reusing a warm one from the
// ring if present, else building and caching a fresh one.
func (a *Accessor) View(hash common.Hash) (*ReadOnlyView, error) {
	a.mu.Lock()
	if v, ok := a.views.Peek(hash); ok {
		a.mu.Unlock()
		return v, nil
	}
	a.mu.Unlock()

	v, err := a.bc.buildReadOnlyView(hash)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if existing, ok := a.views.Peek(hash); ok {
		a.mu.Unlock()
		v.Dispose()
		return existing, nil
	}
	a.views.Add(hash, v)
	a.mu.Unlock()
	return v, nil
}

// seed registers a view built directly from a database snapshot without
// going through buildReadOnlyView, used once at startup per existing
// snapshot (spec §4.8). If hash is already cached, v is disposed instead.
func (a *Accessor) seed(hash common.Hash, v *ReadOnlyView) {
	a.mu.Lock()
	if _, ok := a.views.Peek(hash); ok {
		a.mu.Unlock()
		v.Dispose()
		return
	}
	a.views.Add(hash, v)
	a.mu.Unlock()
}

// Invalidate drops hash from the ring, disposing its cached view if
// present; used when a caller knows a block's data has been superseded
// (e.g. a chain reorg at the database layer).
func (a *Accessor) Invalidate(hash common.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.views.Remove(hash)
}

// OnCommitToBlockchain is the BlockIndex.add hook (spec §4.8): a freshly
// registered CommittedBlock doesn't itself invalidate any cached view (a
// view only ever reads blocks that existed when it was built), so today
// this is a no-op placed for symmetry with OnCommitToDatabase and as the
// hook point for any future commit-time warming policy.
func (a *Accessor) OnCommitToBlockchain(cb *CommittedBlock) {}

// OnCommitToDatabase is the Flusher.flushBatch hook (spec §4.8): once cb is
// durably flushed, its own cached view (if any) and every other cached view
// that pinned cb somewhere along its in-memory ancestor chain — including
// fork siblings that happened to share cb as an ancestor — are dropped.
// Holding them would pin cb's now-redundant in-memory chain and the read
// transaction it was built against indefinitely; the next View() call for
// that hash rebuilds a lighter view anchored directly on the database.
func (a *Accessor) OnCommitToDatabase(cb *CommittedBlock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var stale []common.Hash
	for _, hash := range a.views.Keys() {
		v, ok := a.views.Peek(hash)
		if ok && v.dependsOn(cb.Hash()) {
			stale = append(stale, hash)
		}
	}
	for _, hash := range stale {
		a.views.Remove(hash)
	}
}

// Close disposes every view still held in the ring.
func (a *Accessor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.views.Purge()
}
