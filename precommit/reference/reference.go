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

// Package reference implements a minimal precommit.Behavior adequate for
// paprika's own tests and its CLI. It is deliberately not a production
// Merkle-Patricia trie — spec §1 places the authenticated tree itself out of
// this core's scope — but it satisfies the Behavior contract: it derives a
// deterministic root hash from a block's touched accounts/storage and
// materializes one "node" per touched account into pre_commit, so the commit
// pipeline, the filter-population invariant and the Flusher's Persistent-tag
// sweep all have something real to exercise end to end.
package reference

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/precommit"
)

// Behavior is a stateless, concurrency-safe precommit.Behavior: every method
// only touches the Context it's given.
type Behavior struct {
	// AllowPrefetch lets tests exercise both the prefetching and
	// non-prefetching paths against the same Behavior type.
	AllowPrefetch bool
}

func (b *Behavior) CanPrefetch() bool { return b.AllowPrefetch }

// BeforeCommit combines a leaf digest per touched account (folding in its
// current data and every touched storage slot's current value) into one
// combined root hash, and records each leaf as a Persistent merkle node
// under a KeyMerkle keyed by the account's own path so it survives into the
// CommittedBlock and gets written by the Flusher.
func (b *Behavior) BeforeCommit(ctx precommit.Context, budget precommit.CacheBudget) (common.Hash, error) {
	accounts := ctx.TouchedAccounts()
	storage := ctx.TouchedStorage()

	byAddr := make(map[common.Address][]common.AddressSlot, len(accounts))
	for _, a := range accounts {
		byAddr[a] = nil
	}
	for _, as := range storage {
		byAddr[as.Address] = append(byAddr[as.Address], as)
	}
	if len(byAddr) == 0 {
		return common.ZeroHash, nil
	}

	addrs := make([]common.Address, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return less(addrs[i], addrs[j]) })

	h := xxhash.New()
	for _, addr := range addrs {
		acct, err := ctx.GetAccount(addr)
		if err != nil {
			return common.ZeroHash, err
		}
		leaf := acct.EncodeForStorage()

		slots := byAddr[addr]
		sort.Slice(slots, func(i, j int) bool { return less(slots[i].Slot, slots[j].Slot) })
		for _, as := range slots {
			v, err := ctx.GetStorage(as.Address, as.Slot)
			if err != nil {
				return common.ZeroHash, err
			}
			leaf = append(leaf, as.Slot[:]...)
			leaf = append(leaf, v...)
		}

		_, _ = h.Write(addr[:])
		_, _ = h.Write(leaf)

		ctx.PutMerkleNode(common.FullPath(addr), nil, leaf, false)
	}

	var root common.Hash
	sum := h.Sum64()
	for i := 0; i < 8; i++ {
		root[common.HashLength-1-i] = byte(sum >> (8 * i))
	}
	return root, nil
}

func less(a, b common.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// InspectBeforeApply is a no-op: this reference Behavior never needs to
// rewrite a value between the in-memory and on-disk encodings.
func (b *Behavior) InspectBeforeApply(_ common.Key, value []byte, _ []byte) []byte {
	return value
}

func (b *Behavior) OnAccountDestroyed(common.Address, precommit.Context)   {}
func (b *Behavior) OnNewAccountCreated(common.Address, precommit.Context)  {}

// PrefetchAccount and PrefetchStorage simply warm the cache by reading
// through ctx; the reference Behavior has no side table of its own to
// populate.
func (b *Behavior) PrefetchAccount(addr common.Address, ctx precommit.Context) {
	_, _ = ctx.GetAccount(addr)
}

func (b *Behavior) PrefetchStorage(addr common.Address, slot common.Slot, ctx precommit.Context) {
	_, _ = ctx.GetStorage(addr, slot)
}

var _ precommit.Behavior = (*Behavior)(nil)
