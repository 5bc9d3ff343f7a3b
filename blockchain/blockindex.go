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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ledgerwatch/paprika/common"
)

// BlockIndex is the registry of every live CommittedBlock, keyed by hash
// (spec §4.5, component C8). It also arbitrates Finalize's backpressure: a
// caller asking to finalize past FinalizationQueueLimit busy-waits rather
// than blocking forever on an unbounded goroutine pile-up, and it tracks
// last-finalized so Finalize can walk back over any still-unflushed
// ancestors (spec §4.5/§2) instead of dropping their writes.
type BlockIndex struct {
	bc *Blockchain

	mu     sync.Mutex
	byHash map[common.Hash]*CommittedBlock

	pending int // blocks handed to the Flusher but not yet flushed

	hasFinalized        bool
	lastFinalizedHash   common.Hash
	lastFinalizedNumber uint64
}

func newBlockIndex(bc *Blockchain) *BlockIndex {
	return &BlockIndex{bc: bc, byHash: make(map[common.Hash]*CommittedBlock)}
}

// add registers a freshly committed block (spec §4.4.3 step 6). If a block
// with the same hash is already registered — two LiveBlocks independently
// reaching the same root from the same parent — the new one is marked
// discardable and its resources are returned immediately rather than kept
// around as a duplicate (spec §4.5 "coalesced").
func (idx *BlockIndex) add(cb *CommittedBlock) *CommittedBlock {
	idx.mu.Lock()
	if existing, ok := idx.byHash[cb.hash]; ok {
		idx.mu.Unlock()
		cb.discardable = true
		cb.dict.Return()
		cb.filt.Return()
		return existing.Acquire()
	}
	idx.byHash[cb.hash] = cb
	idx.mu.Unlock()
	idx.bc.accessor.OnCommitToBlockchain(cb)
	return cb
}

// remove drops cb from the index; called from CommittedBlock.cleanUp once
// its lease count reaches zero and it has been flushed.
func (idx *BlockIndex) remove(cb *CommittedBlock) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.byHash[cb.hash] == cb {
		delete(idx.byHash, cb.hash)
	}
}

// lookup returns a newly acquired lease on the block registered under hash,
// or nil if none is.
func (idx *BlockIndex) lookup(hash common.Hash) *CommittedBlock {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cb, ok := idx.byHash[hash]
	if !ok {
		return nil
	}
	return cb.Acquire()
}

// ancestorChain walks parent pointers from hash back to a persisted
// ancestor (one the database already has), acquiring a lease on each
// in-memory block along the way. It returns the chain newest-first, or a
// *MissingParent error if the walk runs off the end of both the index and
// the database.
func (idx *BlockIndex) ancestorChain(hash common.Hash) ([]*CommittedBlock, error) {
	var chain []*CommittedBlock
	cur := hash
	for {
		if cur == common.ZeroHash {
			return chain, nil
		}
		has, err := idx.bc.db.HasState(cur)
		if err != nil {
			for _, cb := range chain {
				cb.Release()
			}
			return nil, err
		}
		if has {
			return chain, nil
		}
		cb := idx.lookup(cur)
		if cb == nil {
			for _, c := range chain {
				c.Release()
			}
			return nil, &MissingParent{Hash: cur.Bytes(), Reason: "neither in-memory index nor database has this hash"}
		}
		chain = append(chain, cb)
		cur = cb.ParentHash()
	}
}

// finalizeChain walks parent pointers from cb back to the last-finalized
// block (or the persisted/empty anchor), returning every still-unflushed
// block oldest-first so Finalize can push each one to the Flusher (spec
// §4.5 step "push every unflushed ancestor", §2 "last_finalized"). cb itself
// is always the last element. It panics with a ProgrammingError if cb is not
// strictly newer than the last block already finalized, or if the walk
// reaches a parent that is neither indexed nor persisted (spec §7).
func (idx *BlockIndex) finalizeChain(cb *CommittedBlock) ([]*CommittedBlock, error) {
	idx.mu.Lock()
	if idx.hasFinalized && cb.BlockNumber() <= idx.lastFinalizedNumber {
		idx.mu.Unlock()
		panicProgrammingError("finalize block %d (%x) is not newer than last-finalized block %d (%x)",
			cb.BlockNumber(), cb.hash[:], idx.lastFinalizedNumber, idx.lastFinalizedHash[:])
	}
	idx.mu.Unlock()

	chain := []*CommittedBlock{cb}
	cur := cb.ParentHash()
	for {
		if cur == common.ZeroHash {
			break
		}
		idx.mu.Lock()
		alreadyFinalized := idx.hasFinalized && cur == idx.lastFinalizedHash
		idx.mu.Unlock()
		if alreadyFinalized {
			break
		}

		parent := idx.lookup(cur)
		if parent == nil {
			has, err := idx.bc.db.HasState(cur)
			if err != nil {
				for _, c := range chain {
					c.Release()
				}
				return nil, err
			}
			if has {
				break
			}
			for _, c := range chain {
				c.Release()
			}
			panicProgrammingError("ancestor %x needed to finalize block %d is neither indexed nor persisted",
				cur[:], cb.BlockNumber())
		}

		idx.mu.Lock()
		pastLastFinalized := idx.hasFinalized && parent.BlockNumber() <= idx.lastFinalizedNumber
		idx.mu.Unlock()
		if pastLastFinalized {
			parent.Release()
			break
		}

		chain = append(chain, parent)
		cur = parent.ParentHash()
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	idx.mu.Lock()
	idx.hasFinalized = true
	idx.lastFinalizedHash = cb.hash
	idx.lastFinalizedNumber = cb.BlockNumber()
	idx.mu.Unlock()

	return chain, nil
}

// finalizeBackoff is the busy-wait policy Finalize applies while the
// Flusher's queue is at FinalizationQueueLimit and FullMode is Wait (spec
// §4.6); it never gives up, only paces the retries.
func finalizeBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// awaitCapacity blocks (via finalizeBackoff) until the Flusher's pending
// count is below limit, or ctx is done. limit <= 0 means unbounded.
func (idx *BlockIndex) awaitCapacity(ctx context.Context, limit uint32) error {
	if limit == 0 {
		return nil
	}
	op := func() error {
		idx.mu.Lock()
		full := idx.pending >= int(limit)
		idx.mu.Unlock()
		if full {
			return errQueueFull
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(finalizeBackoff(), ctx))
}

func (idx *BlockIndex) incPending() {
	idx.mu.Lock()
	idx.pending++
	idx.mu.Unlock()
}

func (idx *BlockIndex) decPending() {
	idx.mu.Lock()
	idx.pending--
	idx.mu.Unlock()
}

var errQueueFull = &queueFullError{}

type queueFullError struct{}

func (*queueFullError) Error() string { return "blockchain: finalization queue full" }
