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
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/filter"
)

// maxConcurrentPrefetches bounds how many PrefetchAccount/PrefetchStorage
// calls the behavior runs at once; the hints are advisory reads, not a
// substitute for the eventual synchronous read, so there's no correctness
// reason to run more than this many at a time.
const maxConcurrentPrefetches = 32

// prefetchSeenCapacityHint sizes the Prefetcher's own dedup filter; it only
// needs to be big enough to keep the false-positive rate low across one
// block's worth of hints, not across the whole working set.
const prefetchSeenCapacityHint = 4096

// Prefetcher is the handle OpenPrefetcher hands to a caller driving
// transaction execution ahead of the block's real reads (spec §4.3,
// component C6). Hint* calls are fire-and-forget; drain waits for every
// outstanding one to finish before Commit proceeds.
//
// Dedup runs against the Prefetcher's own seen filter, never against the
// LiveBlock's own_filter: own_filter must only ever reflect keys a dict
// write (or a real read-cache fill) actually happened for, so that
// DestroyAccount's authoritative-empty shortcut (spec §4.4.1) can't be
// bypassed by a hint that was merely dispatched but never landed.
type Prefetcher struct {
	lb *LiveBlock

	seen *filter.BitFilter
	sem  *semaphore.Weighted
	g    *errgroup.Group
	ctx  context.Context

	running atomic.Bool
}

func newPrefetcher(lb *LiveBlock) *Prefetcher {
	seen, err := filter.New(lb.bc.pool, filter.DefaultPages, prefetchSeenCapacityHint, 0.01)
	if err != nil {
		panicProgrammingError("failed to allocate prefetcher dedup filter: %v", err)
	}
	g, ctx := errgroup.WithContext(context.Background())
	p := &Prefetcher{
		lb:   lb,
		seen: seen,
		sem:  semaphore.NewWeighted(maxConcurrentPrefetches),
		g:    g,
		ctx:  ctx,
	}
	p.running.Store(true)
	return p
}

// HintAccount queues a speculative read of addr's account, deduplicated
// against the prefetcher's own seen filter so the same hint is never
// dispatched twice.
func (p *Prefetcher) HintAccount(addr common.Address) {
	if !p.running.Load() {
		return
	}
	h := common.KeyHash64(common.AccountKey(addr))
	if !p.seen.AddAtomic(h) {
		return
	}
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return
	}
	p.g.Go(func() error {
		defer p.sem.Release(1)
		p.lb.bc.behavior.PrefetchAccount(addr, lbContext{p.lb})
		return nil
	})
}

// HintStorage queues a speculative read of one storage cell.
func (p *Prefetcher) HintStorage(addr common.Address, slot common.Slot) {
	if !p.running.Load() {
		return
	}
	h := common.KeyHash64(common.StorageKey(addr, slot))
	if !p.seen.AddAtomic(h) {
		return
	}
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return
	}
	p.g.Go(func() error {
		defer p.sem.Release(1)
		p.lb.bc.behavior.PrefetchStorage(addr, slot, lbContext{p.lb})
		return nil
	})
}

// blockFurtherPrefetching stops new Hint* calls from dispatching once
// Commit has begun (spec §4.4.3 step 1: "stop accepting further prefetch
// hints").
func (p *Prefetcher) blockFurtherPrefetching() { p.running.Store(false) }

// drain waits for every dispatched hint to finish.
func (p *Prefetcher) drain() { _ = p.g.Wait() }

// close returns the prefetcher's own dedup filter to the pool; called once
// the owning LiveBlock releases its resources.
func (p *Prefetcher) close() { p.seen.Return() }
