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
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/filter"
	"github.com/ledgerwatch/paprika/spandict"
)

const depthDatabase = math.MaxInt32

// budgetCounter is a one-shot per-block cap on how many entries the
// read-caching heuristic (or the prefetcher) is willing to write back.
type budgetCounter struct {
	limit int
	used  int
}

func (c *budgetCounter) allow() bool {
	if c.limit <= 0 || c.used >= c.limit {
		return false
	}
	c.used++
	return true
}

// LiveBlock is the mutable working state for one in-progress block (spec
// §4.4, component C5).
type LiveBlock struct {
	bc *Blockchain

	parentHash common.Hash

	state     *spandict.Dict
	storage   *spandict.Dict
	preCommit *spandict.Dict
	ownFilter *filter.BitFilter

	destroyed map[common.Address]struct{}

	batch           *leasedBatch
	ancestors       []*CommittedBlock // leased, newest first
	ancestorsFilter *filter.BitFilter // nil if no ancestors

	rootHash *common.Hash

	prefetcher       *Prefetcher
	prefetcherOpened bool

	touchedAccounts map[common.Address]struct{}
	touchedStorage  map[common.AddressSlot]struct{}

	cacheBudget budgetCounter
	dbReads     atomic.Uint64

	committed bool
	logger    *zap.Logger
}

func newLiveBlock(bc *Blockchain, parentHash common.Hash, batch *leasedBatch, ancestors []*CommittedBlock, ancestorsFilter *filter.BitFilter) (*LiveBlock, error) {
	state, err := spandict.New(bc.pool, 1024)
	if err != nil {
		return nil, err
	}
	storageDict, err := spandict.New(bc.pool, 1024)
	if err != nil {
		return nil, err
	}
	preCommit, err := spandict.New(bc.pool, 256)
	if err != nil {
		return nil, err
	}
	ownFilter, err := filter.New(bc.pool, filter.DefaultPages, 4096, 0.01)
	if err != nil {
		return nil, err
	}
	return &LiveBlock{
		bc:              bc,
		parentHash:      parentHash,
		state:           state,
		storage:         storageDict,
		preCommit:       preCommit,
		ownFilter:       ownFilter,
		destroyed:       make(map[common.Address]struct{}),
		batch:           batch,
		ancestors:       ancestors,
		ancestorsFilter: ancestorsFilter,
		touchedAccounts: make(map[common.Address]struct{}),
		touchedStorage:  make(map[common.AddressSlot]struct{}),
		cacheBudget:     budgetCounter{limit: bc.opts.CacheBudgetStateAndStorage.EntriesPerBlock},
		logger:          bc.logger.Named("liveblock"),
	}, nil
}

func (lb *LiveBlock) insertFilter(h uint64) {
	if lb.prefetcher != nil && lb.prefetcher.running.Load() {
		lb.ownFilter.AddAtomic(h)
	} else {
		lb.ownFilter.Add(h)
	}
}

func (lb *LiveBlock) invalidateRoot() { lb.rootHash = nil }

// read implements the recursive read protocol (spec §4.4.2), returning the
// value (nil if none), whether the result is authoritative-empty (a true
// "no such entry", as opposed to "not found locally, maybe an ancestor has
// it"), the depth the value was found at, and any database error.
func (lb *LiveBlock) read(k common.Key) (value []byte, authoritativeEmpty bool, depth int, err error) {
	h := common.KeyHash64(k)
	d := common.DestroyedHash64(k)
	enc := k.Encode()

	if !lb.ownFilter.MayContain(h) {
		if k.Path.IsFull() {
			addr := k.Path.AsHash()
			if _, destroyed := lb.destroyed[addr]; destroyed {
				return nil, true, 0, nil
			}
		}
		return lb.readAncestorsAndDB(k, enc, h, d)
	}

	if k.Type != common.KeyStorageCell {
		if v, _, destroyed, ok := lb.preCommit.TryGet(enc, h); ok {
			if destroyed {
				return nil, true, 0, nil
			}
			return v, false, 0, nil
		}
	}
	switch k.Type {
	case common.KeyAccount:
		if v, _, destroyed, ok := lb.state.TryGet(enc, h); ok {
			if destroyed {
				return nil, true, 0, nil
			}
			return v, false, 0, nil
		}
	case common.KeyStorageCell:
		if v, _, destroyed, ok := lb.storage.TryGet(enc, h); ok {
			if destroyed {
				return nil, true, 0, nil
			}
			return v, false, 0, nil
		}
	}

	return lb.readAncestorsAndDB(k, enc, h, d)
}

func (lb *LiveBlock) readAncestorsAndDB(k common.Key, enc []byte, h, d uint64) (value []byte, authoritativeEmpty bool, depth int, err error) {
	if lb.ancestorsFilter == nil || lb.ancestorsFilter.MayContainAny(h, d) {
		for i, anc := range lb.ancestors {
			v, destroyed, ok := anc.localLookup(k, h)
			if ok {
				if destroyed {
					return nil, true, i + 1, nil
				}
				return v, false, i + 1, nil
			}
		}
	}

	v, err := lb.batch.TryGet(enc)
	lb.dbReads.Add(1)
	if err != nil {
		return nil, false, depthDatabase, err
	}
	if v == nil {
		return nil, false, depthDatabase, nil
	}
	return v, false, depthDatabase, nil
}

// maybeCache writes value back into the appropriate primary dict with tag
// MetaCached when depth indicates it came from an ancestor or the database
// and the per-block cache budget still allows it (spec §4.4 "if the
// returned owner's depth/provenance suggests it is worth caching").
// Caching is a pure read-through copy of already-authoritative data, so
// unlike the write protocol it does not invalidate the cached root hash.
func (lb *LiveBlock) maybeCache(k common.Key, value []byte) {
	if len(value) == 0 {
		return
	}
	switch {
	case k.Type == common.KeyAccount, k.Type == common.KeyStorageCell:
		if !lb.cacheBudget.allow() {
			return
		}
	default:
		return
	}
	h := common.KeyHash64(k)
	lb.insertFilter(h)
	enc := k.Encode()
	switch k.Type {
	case common.KeyAccount:
		lb.state.Set(enc, h, value, MetaCached)
	case common.KeyStorageCell:
		lb.storage.Set(enc, h, value, MetaCached)
	}
}

// GetAccount reads addr's account record through the recursive protocol,
// returning the zero Account for an authoritative-empty result.
func (lb *LiveBlock) GetAccount(addr common.Address) (common.Account, error) {
	k := common.AccountKey(addr)
	value, empty, depth, err := lb.read(k)
	if err != nil {
		return common.Account{}, err
	}
	if empty || len(value) == 0 {
		return common.Account{}, nil
	}
	acct, err := common.DecodeAccountForStorage(value)
	if err != nil {
		return common.Account{}, err
	}
	if depth != 0 {
		lb.maybeCache(k, value)
	}
	return acct, nil
}

// GetStorage reads one storage cell, appending the result to out (which may
// be nil) and returning the slice. An authoritative-empty result yields a
// zero-length slice.
func (lb *LiveBlock) GetStorage(addr common.Address, slot common.Slot, out []byte) ([]byte, error) {
	k := common.StorageKey(addr, slot)
	value, empty, depth, err := lb.read(k)
	if err != nil {
		return nil, err
	}
	if empty || len(value) == 0 {
		return out[:0], nil
	}
	if depth != 0 {
		lb.maybeCache(k, value)
	}
	return append(out[:0], value...), nil
}

// SetAccount writes addr's account record (spec §4.4.1). newlyCreated tells
// the pre-commit behavior whether to fire OnNewAccountCreated.
func (lb *LiveBlock) SetAccount(addr common.Address, acct common.Account, newlyCreated bool) {
	k := common.AccountKey(addr)
	lb.invalidateRoot()
	h := common.KeyHash64(k)
	lb.insertFilter(h)
	lb.state.Set(k.Encode(), h, acct.EncodeForStorage(), MetaPersistent)
	lb.touchedAccounts[addr] = struct{}{}
	if newlyCreated && lb.bc.behavior != nil {
		lb.bc.behavior.OnNewAccountCreated(addr, lbContext{lb})
	}
}

// SetStorage writes one storage cell; an empty value means delete (spec
// §4.4).
func (lb *LiveBlock) SetStorage(addr common.Address, slot common.Slot, value []byte) {
	k := common.StorageKey(addr, slot)
	lb.invalidateRoot()
	h := common.KeyHash64(k)
	lb.insertFilter(h)
	lb.storage.Set(k.Encode(), h, value, MetaPersistent)
	lb.touchedStorage[common.AddressSlot{Address: addr, Slot: slot}] = struct{}{}
}

// DestroyAccount implements spec §4.4.1's destroy_account: it writes an
// empty account record (present, not absent) and marks every existing
// storage/pre_commit entry belonging to addr as destroyed in place. Per §9's
// resolved open question, it does not synthesize a new pre_commit record —
// only marks what's already there.
func (lb *LiveBlock) DestroyAccount(addr common.Address) {
	lb.invalidateRoot()

	k := common.AccountKey(addr)
	h := common.KeyHash64(k)
	lb.insertFilter(h)
	lb.state.Set(k.Encode(), h, common.EmptyAccount().EncodeForStorage(), MetaPersistent)

	target := common.FullPath(addr)
	markDestroyedByPath(lb.storage, target)
	markDestroyedByPath(lb.preCommit, target)

	for as := range lb.touchedStorage {
		if as.Address == addr {
			delete(lb.touchedStorage, as)
		}
	}

	lb.destroyed[addr] = struct{}{}
	if lb.bc.behavior != nil {
		lb.bc.behavior.OnAccountDestroyed(addr, lbContext{lb})
	}
}

// markDestroyedByPath marks every live entry of d whose decoded Key.Path
// equals target as destroyed, in place, via a single iteration pass.
func markDestroyedByPath(d *spandict.Dict, target common.Path) {
	c := d.Iterate()
	for {
		key, _, _, _, destroyed, ok := c.Next()
		if !ok {
			return
		}
		if destroyed {
			continue
		}
		decoded, _, err := common.ReadKeyFrom(key)
		if err != nil {
			continue
		}
		if decoded.Path.Equal(target) {
			c.MarkDestroyed()
		}
	}
}

// OpenPrefetcher returns a handle the caller can pump with account/storage
// hints during transaction execution. At most one per LiveBlock (a second
// call is a programming error); it returns nil if the pre-commit behavior
// declines prefetching.
func (lb *LiveBlock) OpenPrefetcher() *Prefetcher {
	if lb.prefetcherOpened {
		panicProgrammingError("OpenPrefetcher called twice on one LiveBlock")
	}
	lb.prefetcherOpened = true
	if lb.bc.behavior == nil || !lb.bc.behavior.CanPrefetch() {
		return nil
	}
	lb.prefetcher = newPrefetcher(lb)
	return lb.prefetcher
}

// Commit finalizes the block (spec §4.4.3). The returned CommittedBlock
// carries one lease owned by the caller (nil if the block turned out to be
// a no-op, i.e. it produced the same root as its parent, which the
// Acquire/Release protocol requires be ZeroHash); pass it to
// Blockchain.Finalize to hand that lease to the Flusher, or Release it
// directly to discard the block without ever persisting it.
func (lb *LiveBlock) Commit(blockNumber uint64) (*CommittedBlock, error) {
	if lb.committed {
		panicProgrammingError("Commit called twice on one LiveBlock")
	}

	if lb.prefetcher != nil {
		lb.prefetcher.blockFurtherPrefetching()
		lb.prefetcher.drain()
	}

	newHash, err := lb.bc.behavior.BeforeCommit(lbContext{lb}, lb.bc.opts.CacheBudgetPreCommit)
	if err != nil {
		return nil, err
	}
	newHash = common.NormalizeRoot(newHash)
	lb.rootHash = &newHash

	parent := common.NormalizeRoot(lb.parentHash)
	if newHash == parent {
		if newHash == common.ZeroHash {
			lb.committed = true
			lb.releaseResources()
			return nil, nil
		}
		panicProgrammingError("commit produced the same non-empty root as the parent (%x)", newHash[:])
	}

	expected := uint64(lb.state.Len() + lb.storage.Len() + lb.preCommit.Len())
	newFilter, err := filter.New(lb.bc.pool, filter.DefaultPages, expected, 0.01)
	if err != nil {
		return nil, err
	}
	merged, err := spandict.New(lb.bc.pool, int(expected))
	if err != nil {
		newFilter.Return()
		return nil, err
	}

	lb.state.CopyTo(merged, notUseOnce, newFilter, true)
	lb.storage.CopyTo(merged, notUseOnce, newFilter, true)
	lb.preCommit.CopyTo(merged, notUseOnce, newFilter, false)

	destroyed := make(map[common.Address]struct{}, len(lb.destroyed))
	for addr := range lb.destroyed {
		destroyed[addr] = struct{}{}
		newFilter.AddAtomic(common.DestroyedHash64ForAddress(addr))
	}

	cb := newCommittedBlock(lb.bc, merged, newFilter, destroyed, newHash, lb.parentHash, blockNumber, false)
	cb = lb.bc.index.add(cb)

	lb.committed = true
	lb.releaseResources()
	return cb, nil
}

// releaseResources drops this LiveBlock's leases on its ancestors and
// database batch, and returns its own dicts' and filter's pages to the pool.
func (lb *LiveBlock) releaseResources() {
	for _, anc := range lb.ancestors {
		anc.Release()
	}
	lb.ancestors = nil
	if lb.batch != nil {
		lb.batch.Release()
		lb.batch = nil
	}
	lb.state.Return()
	lb.storage.Return()
	lb.preCommit.Return()
	lb.ownFilter.Return()
	if lb.ancestorsFilter != nil {
		lb.ancestorsFilter.Return()
	}
	if lb.prefetcher != nil {
		lb.prefetcher.close()
	}
}

// Reset clears a LiveBlock's dicts, filter, destroyed set and cached root
// hash back to the state immediately after StartNew, without re-leasing
// ancestors or the database batch (spec §6, supplemented per SPEC_FULL.md:
// lets execution retry a block after a revert without re-walking the
// ancestor chain).
func (lb *LiveBlock) Reset() error {
	lb.state.Return()
	lb.storage.Return()
	lb.preCommit.Return()
	lb.ownFilter.Return()

	state, err := spandict.New(lb.bc.pool, 1024)
	if err != nil {
		return err
	}
	storageDict, err := spandict.New(lb.bc.pool, 1024)
	if err != nil {
		return err
	}
	preCommit, err := spandict.New(lb.bc.pool, 256)
	if err != nil {
		return err
	}
	ownFilter, err := filter.New(lb.bc.pool, filter.DefaultPages, 4096, 0.01)
	if err != nil {
		return err
	}

	lb.state = state
	lb.storage = storageDict
	lb.preCommit = preCommit
	lb.ownFilter = ownFilter
	lb.destroyed = make(map[common.Address]struct{})
	lb.touchedAccounts = make(map[common.Address]struct{})
	lb.touchedStorage = make(map[common.AddressSlot]struct{})
	lb.rootHash = nil
	lb.cacheBudget = budgetCounter{limit: lb.bc.opts.CacheBudgetStateAndStorage.EntriesPerBlock}
	return nil
}

// Ancestors returns the hashes of this block's in-memory ancestor chain,
// newest first.
func (lb *LiveBlock) Ancestors() []common.Hash {
	out := make([]common.Hash, len(lb.ancestors))
	for i, a := range lb.ancestors {
		out[i] = a.Hash()
	}
	return out
}

// Hash returns the cached root hash if Commit has computed one, otherwise
// the parent hash this block was started from.
func (lb *LiveBlock) Hash() common.Hash {
	if lb.rootHash != nil {
		return *lb.rootHash
	}
	return lb.parentHash
}

// TouchedAccounts is the supplemented accessor named in spec §6: addresses
// mutated on this block since StartNew.
func (lb *LiveBlock) TouchedAccounts() []common.Address {
	out := make([]common.Address, 0, len(lb.touchedAccounts))
	for a := range lb.touchedAccounts {
		out = append(out, a)
	}
	return out
}

// TouchedStorageSlots is the supplemented accessor named in spec §6.
func (lb *LiveBlock) TouchedStorageSlots() []common.AddressSlot {
	out := make([]common.AddressSlot, 0, len(lb.touchedStorage))
	for as := range lb.touchedStorage {
		out = append(out, as)
	}
	return out
}

// DbReads is the supplemented counter named in spec §6: the number of times
// this block's read protocol fell all the way through to the database.
func (lb *LiveBlock) DbReads() uint64 { return lb.dbReads.Load() }

// lbContext adapts a *LiveBlock to precommit.Context.
type lbContext struct{ lb *LiveBlock }

func (c lbContext) GetAccount(addr common.Address) (common.Account, error) {
	return c.lb.GetAccount(addr)
}

func (c lbContext) GetStorage(addr common.Address, slot common.Slot) ([]byte, error) {
	return c.lb.GetStorage(addr, slot, nil)
}

func (c lbContext) PutMerkleNode(path common.Path, owner *common.Address, value []byte, useOnce bool) {
	k := common.MerkleKey(path, owner)
	h := common.KeyHash64(k)
	c.lb.insertFilter(h)
	meta := MetaPersistent
	if useOnce {
		meta = MetaUseOnce
	}
	c.lb.preCommit.Set(k.Encode(), h, value, meta)
}

func (c lbContext) TouchedAccounts() []common.Address        { return c.lb.TouchedAccounts() }
func (c lbContext) TouchedStorage() []common.AddressSlot     { return c.lb.TouchedStorageSlots() }
