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

// Package precommit declares Behavior, the external "pre-commit behavior"
// collaborator (spec §6): the component that derives a block's state root
// from raw account/storage mutations by materializing merkle nodes into the
// block's pre_commit scratch dict. This core treats the merkle/pre-commit
// machinery itself as out of scope (spec §1) and depends only on this
// interface; package precommit/reference supplies an implementation
// adequate for tests and the CLI.
package precommit

import (
	"github.com/ledgerwatch/paprika/common"
)

// CacheBudget mirrors the cache_budget_* Options fields (spec §6): the
// number of entries per block worth writing back into a cache. LiveBlock's
// read cache is bounded by CacheBudgetStateAndStorage, and BeforeCommit
// receives CacheBudgetPreCommit.
type CacheBudget struct {
	EntriesPerBlock int
}

// Context is the view into a LiveBlock a Behavior gets during BeforeCommit
// and the two Prefetch entry points: reads go through the block's own
// recursive read protocol (spec §4.4.2), writes land in its pre_commit
// scratch dict.
type Context interface {
	GetAccount(addr common.Address) (common.Account, error)
	GetStorage(addr common.Address, slot common.Slot) ([]byte, error)
	// PutMerkleNode writes a derived trie node into pre_commit with the
	// given metadata tag (Persistent to survive into the CommittedBlock,
	// UseOnce to be scratch-only).
	PutMerkleNode(path common.Path, owner *common.Address, value []byte, useOnce bool)

	// TouchedAccounts and TouchedStorage report the addresses/slots written
	// on this block since it was started (the supplemented
	// touched_accounts()/touched_storage_slots() accessors named in spec
	// §6), which is how a Behavior without its own change log learns what
	// changed since the parent.
	TouchedAccounts() []common.Address
	TouchedStorage() []common.AddressSlot
}

// Behavior is the external pre-commit collaborator.
type Behavior interface {
	// CanPrefetch reports whether this Behavior supports PrefetchAccount /
	// PrefetchStorage; LiveBlock.OpenPrefetcher returns nil when false.
	CanPrefetch() bool

	// BeforeCommit computes the new state root, writing every derived
	// merkle node it needs back into ctx's pre_commit dict, and is called
	// exactly once per commit (spec §4.4.3 step 2).
	BeforeCommit(ctx Context, budget CacheBudget) (common.Hash, error)

	// InspectBeforeApply optionally rewrites a Persistent value immediately
	// before the Flusher writes it to the paged store; scratch is a
	// reusable buffer the Behavior may write into instead of allocating.
	InspectBeforeApply(key common.Key, value []byte, scratch []byte) []byte

	OnAccountDestroyed(addr common.Address, ctx Context)
	OnNewAccountCreated(addr common.Address, ctx Context)

	PrefetchAccount(addr common.Address, ctx Context)
	PrefetchStorage(addr common.Address, slot common.Slot, ctx Context)
}
