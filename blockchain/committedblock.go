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
	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/filter"
	"github.com/ledgerwatch/paprika/refcount"
	"github.com/ledgerwatch/paprika/spandict"
)

// CommittedBlock is the immutable snapshot Commit produces from a LiveBlock
// (spec §3, component C7). Once registered with the BlockIndex it is
// read-only; mutation only happens during construction.
type CommittedBlock struct {
	lease *refcount.Lease

	dict      *spandict.Dict // merged_dict: union of state, storage, pre_commit
	filt      *filter.BitFilter
	destroyed map[common.Address]struct{}

	hash        common.Hash
	parentHash  common.Hash
	blockNumber uint64
	raw         bool

	// discardable is set by BlockIndex.Add when a same-hash CommittedBlock
	// is already registered (spec §4.5 "coalesced").
	discardable bool

	bc *Blockchain
}

func newCommittedBlock(bc *Blockchain, dict *spandict.Dict, filt *filter.BitFilter, destroyed map[common.Address]struct{}, hash, parentHash common.Hash, blockNumber uint64, raw bool) *CommittedBlock {
	cb := &CommittedBlock{
		bc:          bc,
		dict:        dict,
		filt:        filt,
		destroyed:   destroyed,
		hash:        hash,
		parentHash:  parentHash,
		blockNumber: blockNumber,
		raw:         raw,
	}
	cb.lease = refcount.New(func() { cb.cleanUp() })
	return cb
}

// cleanUp is invoked once, when the last lease drops. For a finalized block
// the Flusher holds the lease Finalize transferred to it until the block is
// written, so the count cannot reach zero before the flush. A block whose
// owner Releases it without ever calling Finalize is cleaned up without
// being flushed.
func (cb *CommittedBlock) cleanUp() {
	cb.bc.index.remove(cb)
	cb.dict.Return()
	cb.filt.Return()
}

func (cb *CommittedBlock) Acquire() *CommittedBlock {
	cb.lease.Acquire()
	return cb
}

func (cb *CommittedBlock) Release() { cb.lease.Release() }

func (cb *CommittedBlock) Hash() common.Hash        { return cb.hash }
func (cb *CommittedBlock) ParentHash() common.Hash  { return cb.parentHash }
func (cb *CommittedBlock) BlockNumber() uint64      { return cb.blockNumber }
func (cb *CommittedBlock) Destroyed() map[common.Address]struct{} { return cb.destroyed }

// localLookup implements one step of the ancestor walk (spec §4.4.2 step
// 3): a hit returns ok=true; destroyed=true short-circuits the walk as
// authoritative-empty.
func (cb *CommittedBlock) localLookup(k common.Key, hash64 uint64) (value []byte, destroyed, ok bool) {
	enc := k.Encode()
	v, _, dest, found := cb.dict.TryGet(enc, hash64)
	if !found {
		return nil, false, false
	}
	return v, dest, true
}
