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

// Package blockchain is the versioned state core (spec §1-§7): LiveBlock,
// CommittedBlock, BlockIndex, ReadOnlyView, the Flusher and the Accessor,
// wired together behind the single Blockchain entry point.
package blockchain

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/filter"
	"github.com/ledgerwatch/paprika/kv"
	"github.com/ledgerwatch/paprika/pagepool"
	"github.com/ledgerwatch/paprika/precommit"
)

// Blockchain is the top-level handle tying a paged database, a pre-commit
// behavior and the in-memory block machinery together (spec §6).
type Blockchain struct {
	db       kv.DB
	behavior precommit.Behavior
	opts     Options
	logger   *zap.Logger

	pool     *pagepool.Pool
	index    *BlockIndex
	flusher  *Flusher
	accessor *Accessor

	mu       sync.Mutex
	disposed bool

	onFlushed       func(common.Hash, uint64)
	onFlusherFailed func(error)
}

// New builds a Blockchain over db, deriving new state roots with behavior.
// logger is named the way the teacher names its own component loggers; pass
// zap.NewNop() in tests that don't care about log output.
func New(db kv.DB, behavior precommit.Behavior, logger *zap.Logger, opts ...Option) (*Blockchain, error) {
	o := NewOptions(opts...)
	pool, err := pagepool.NewPool(int(o.PageSize))
	if err != nil {
		return nil, err
	}
	bc := &Blockchain{
		db:       db,
		behavior: behavior,
		opts:     o,
		logger:   logger.Named("blockchain"),
		pool:     pool,
	}
	bc.index = newBlockIndex(bc)
	bc.flusher = newFlusher(bc, o.FinalizationQueueLimit)
	bc.flusher.onFailure = func(err error) {
		if bc.onFlusherFailed != nil {
			bc.onFlusherFailed(err)
		}
	}
	// Accessor's ring is sized off the paged store's own retained history
	// (spec §4.8/§4.9): a view can only ever be rebuilt DB-backed as far
	// back as the store keeps, so caching more than that just wastes leases.
	bc.accessor = newAccessor(bc, int(db.HistoryDepth()))
	bc.seedAccessorFromSnapshots()
	return bc, nil
}

// seedAccessorFromSnapshots registers one DB-backed ReadOnlyView per
// existing snapshot the store already retains (spec §4.8 "at startup,
// register a view for every snapshot the store reports"), so queries
// against recently-durable blocks work immediately without first paying for
// an ancestor-chain rebuild.
func (bc *Blockchain) seedAccessorFromSnapshots() {
	snapshots, err := bc.db.SnapshotAll()
	if err != nil {
		return
	}
	for _, batch := range snapshots {
		meta := batch.Metadata()
		if meta.StateHash == common.ZeroHash {
			_ = batch.Close()
			continue
		}
		view := newReadOnlyView(bc, meta.StateHash, nil, nil, newLeasedBatch(batch))
		bc.accessor.seed(meta.StateHash, view)
	}
}

// OnFlushed registers a callback fired after each block (or batch of
// blocks) is durably written — the "Flushed" event named in spec §7.
func (bc *Blockchain) OnFlushed(f func(hash common.Hash, blockNumber uint64)) { bc.onFlushed = f }

// OnFlusherFailure registers a callback fired if the background Flusher
// goroutine aborts — the "FlusherFailure" event named in spec §7.
func (bc *Blockchain) OnFlusherFailure(f func(error)) { bc.onFlusherFailed = f }

// HasState reports whether hash names a block this Blockchain can currently
// build a LiveBlock, ReadOnlyView or Accessor view against — either still
// resident in the in-memory index, or already persisted.
func (bc *Blockchain) HasState(hash common.Hash) (bool, error) {
	if hash == common.ZeroHash {
		return true, nil
	}
	if cb := bc.index.lookup(hash); cb != nil {
		cb.Release()
		return true, nil
	}
	return bc.db.HasState(hash)
}

// StartNew opens a LiveBlock whose parent is parentHash (spec §4.4). It
// builds the ancestor chain back to a persisted block (or the empty root),
// opens a read-only database batch rooted there, and leases everything the
// returned LiveBlock needs.
func (bc *Blockchain) StartNew(parentHash common.Hash) (*LiveBlock, error) {
	chain, err := bc.index.ancestorChain(parentHash)
	if err != nil {
		return nil, err
	}
	anchor := parentHash
	if len(chain) > 0 {
		anchor = chain[len(chain)-1].ParentHash()
	}
	rawBatch, err := bc.db.BeginReadOnlyBatchOrLatest(anchor, "live-block")
	if err != nil {
		releaseAll(chain)
		return nil, err
	}
	batch := newLeasedBatch(rawBatch)

	ancestorsFilter, err := unionFilter(bc.pool, chain)
	if err != nil {
		releaseAll(chain)
		batch.Release()
		return nil, err
	}

	lb, err := newLiveBlock(bc, parentHash, batch, chain, ancestorsFilter)
	if err != nil {
		releaseAll(chain)
		batch.Release()
		if ancestorsFilter != nil {
			ancestorsFilter.Return()
		}
		return nil, err
	}
	return lb, nil
}

func releaseAll(chain []*CommittedBlock) {
	for _, cb := range chain {
		cb.Release()
	}
}

// unionFilter builds one BitFilter that is the OR of every ancestor's own
// filter, so LiveBlock.read can test ancestor membership once instead of
// probing each ancestor's filter individually (spec §4.4.2 step 3's "short
// circuit via the ancestor filter union").
func unionFilter(pool *pagepool.Pool, chain []*CommittedBlock) (*filter.BitFilter, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	merged, err := chain[0].filt.Clone()
	if err != nil {
		return nil, err
	}
	if len(chain) > 1 {
		peers := make([]*filter.BitFilter, 0, len(chain)-1)
		for _, cb := range chain[1:] {
			peers = append(peers, cb.filt)
		}
		if err := merged.OrWith(peers...); err != nil {
			merged.Return()
			return nil, err
		}
	}
	return merged, nil
}

// Finalize registers cb (as returned by LiveBlock.Commit) with the Flusher,
// applying FinalizationQueueLimit backpressure if configured (spec §4.4.3
// step 7 / §4.6). It takes ownership of the caller's lease on cb — callers
// that want to keep using cb afterward (e.g. as an ancestor for the next
// LiveBlock) must Acquire their own lease before calling Finalize.
//
// Since each CommittedBlock's merged_dict only holds that block's own
// incremental diff, Finalize first walks parent links back to the
// last-finalized block (spec §4.5/§2) and pushes every still-unflushed
// ancestor along with cb, acquiring the extra leases it needs along the
// way; skipping an ancestor that was committed but never individually
// finalized would permanently drop its writes from the paged store.
func (bc *Blockchain) Finalize(ctx context.Context, cb *CommittedBlock) error {
	chain, err := bc.index.finalizeChain(cb)
	if err != nil {
		return err
	}
	for i, c := range chain {
		if err := bc.index.awaitCapacity(ctx, bc.opts.FinalizationQueueLimit); err != nil {
			for _, rest := range chain[i:] {
				rest.Release()
			}
			return err
		}
		bc.index.incPending()
		bc.flusher.enqueue(c)
	}
	return nil
}

// buildReadOnlyView is the Accessor's cache-miss path: build the ancestor
// chain for hash and open a database batch rooted at its anchor, exactly as
// StartNew does for a LiveBlock, but with no write-side dicts.
func (bc *Blockchain) buildReadOnlyView(hash common.Hash) (*ReadOnlyView, error) {
	chain, err := bc.index.ancestorChain(hash)
	if err != nil {
		return nil, err
	}
	anchor := hash
	if len(chain) > 0 {
		anchor = chain[len(chain)-1].ParentHash()
	}
	rawBatch, err := bc.db.BeginReadOnlyBatchOrLatest(anchor, "read-only-view")
	if err != nil {
		releaseAll(chain)
		return nil, err
	}
	batch := newLeasedBatch(rawBatch)

	filt, err := unionFilter(bc.pool, chain)
	if err != nil {
		releaseAll(chain)
		batch.Release()
		return nil, err
	}
	return newReadOnlyView(bc, hash, chain, filt, batch), nil
}

// StartReadOnly returns the ReadOnlyView rooted at hash from the Accessor's
// warm ring, building and caching one on a miss. No lease is taken for the
// caller: the view stays owned by the ring, which disposes it on eviction.
func (bc *Blockchain) StartReadOnly(hash common.Hash) (*ReadOnlyView, error) {
	return bc.accessor.View(hash)
}

// StartReadOnlyLatestFromDB opens a ReadOnlyView rooted at whatever block
// the database currently reports as its head, bypassing the in-memory
// index entirely — for callers that only care about already-durable state.
func (bc *Blockchain) StartReadOnlyLatestFromDB() (*ReadOnlyView, error) {
	batch, err := bc.db.BeginReadOnlyBatch("latest-from-db")
	if err != nil {
		return nil, err
	}
	meta := batch.Metadata()
	return newReadOnlyView(bc, meta.StateHash, nil, nil, newLeasedBatch(batch)), nil
}

// BuildReadOnlyAccessor builds a new Accessor with its own ring of ringSize
// views (the default ring size when ringSize <= 0), independent of the
// Blockchain's shared one. Only the shared Accessor is notified by the
// BlockIndex and the Flusher; a view cached in this one is dropped only on
// eviction, Invalidate or Close.
func (bc *Blockchain) BuildReadOnlyAccessor(ringSize int) *Accessor {
	return newAccessor(bc, ringSize)
}

// VerifyDBIntegrityOnCommit arms the store's page-consistency check on the
// Flusher's next write transaction (spec §6).
func (bc *Blockchain) VerifyDBIntegrityOnCommit() {
	bc.flusher.verifyRequested.Store(true)
}

// DisposeAsync stops accepting new work, waits for the Flusher to drain its
// queue, disposes the shared Accessor, and closes the page pool. It must
// only be called once every LiveBlock/ReadOnlyView/RawState the caller holds
// has already been released (spec §5 "Lease conservation": Pool.Outstanding
// must read zero once this returns).
func (bc *Blockchain) DisposeAsync() error {
	bc.mu.Lock()
	if bc.disposed {
		bc.mu.Unlock()
		return nil
	}
	bc.disposed = true
	bc.mu.Unlock()

	bc.flusher.Close()
	bc.accessor.Close()
	return bc.pool.Close()
}
