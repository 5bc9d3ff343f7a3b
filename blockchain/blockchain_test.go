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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/precommit/reference"
)

func newTestBlockchain(t *testing.T) (*Blockchain, *memDB) {
	t.Helper()
	db := newMemDB()
	bc, err := New(db, &reference.Behavior{AllowPrefetch: true}, zap.NewNop(), WithMinFlushDelay(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bc.DisposeAsync() })
	return bc, db
}

func addr(b byte) common.Address {
	var a common.Address
	a[0] = b
	return a
}

func slot(b byte) common.Slot {
	var s common.Slot
	s[0] = b
	return s
}

// S1-style scenario: commit a single block with one new account, finalize
// it, and confirm the paged store ends up holding the root.
func TestBlockchain_CommitAndFinalizePersists(t *testing.T) {
	bc, db := newTestBlockchain(t)

	lb, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)

	a := addr(1)
	lb.SetAccount(a, common.Account{Nonce: 7}, true)

	cb, err := lb.Commit(1)
	require.NoError(t, err)
	require.NotNil(t, cb)
	require.NotEqual(t, common.ZeroHash, cb.Hash())

	require.NoError(t, bc.Finalize(context.Background(), cb))
	require.NoError(t, bc.DisposeAsync())

	has, err := db.HasState(cb.Hash())
	require.NoError(t, err)
	require.True(t, has)
}

// A block with no mutations at all must be a commit no-op (spec §4.4.3).
func TestBlockchain_EmptyCommitIsNoOp(t *testing.T) {
	bc, _ := newTestBlockchain(t)

	lb, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)

	cb, err := lb.Commit(1)
	require.NoError(t, err)
	require.Nil(t, cb)
}

// Read-through equivalence (testable property 2): a value written on a
// parent block must be visible, unmodified, from a child LiveBlock built on
// top of it, without the child ever writing it itself.
func TestBlockchain_ChildSeesParentState(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	ctx := context.Background()

	parent, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)
	a := addr(2)
	parent.SetAccount(a, common.Account{Nonce: 9}, true)
	parentCB, err := parent.Commit(1)
	require.NoError(t, err)
	require.NoError(t, bc.Finalize(ctx, parentCB.Acquire()))

	child, err := bc.StartNew(parentCB.Hash())
	require.NoError(t, err)
	acct, err := child.GetAccount(a)
	require.NoError(t, err)
	require.EqualValues(t, 9, acct.Nonce)

	childCB, err := child.Commit(2)
	require.NoError(t, err)
	require.NoError(t, bc.Finalize(ctx, childCB))
	parentCB.Release()
}

// Destruction wins (testable property 3): once an account is destroyed on a
// block, reads of it (and its storage) on that same block are
// authoritative-empty even though an ancestor still has the data.
func TestBlockchain_DestroyAccountWinsOverAncestor(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	ctx := context.Background()

	a := addr(3)
	parent, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)
	parent.SetAccount(a, common.Account{Nonce: 1}, true)
	parent.SetStorage(a, slot(1), []byte{0xaa})
	parentCB, err := parent.Commit(1)
	require.NoError(t, err)
	require.NoError(t, bc.Finalize(ctx, parentCB))

	child, err := bc.StartNew(parentCB.Hash())
	require.NoError(t, err)
	child.DestroyAccount(a)

	acct, err := child.GetAccount(a)
	require.NoError(t, err)
	require.True(t, acct.IsEmpty())

	val, err := child.GetStorage(a, slot(1), nil)
	require.NoError(t, err)
	require.Empty(t, val)
}

// Ancestor-filter short circuit (testable property 4): probing a key that
// the ancestor chain's filter definitely doesn't contain must not touch the
// ancestor's SpanDict at all.
func TestBlockchain_AncestorFilterShortCircuitsProbe(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	ctx := context.Background()

	parent, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)
	parent.SetAccount(addr(4), common.Account{Nonce: 1}, true)
	parentCB, err := parent.Commit(1)
	require.NoError(t, err)
	require.NoError(t, bc.Finalize(ctx, parentCB.Acquire()))

	child, err := bc.StartNew(parentCB.Hash())
	require.NoError(t, err)

	before := parentCB.dict.Probes.Load()
	_, err = child.GetAccount(addr(99)) // never written anywhere
	require.NoError(t, err)
	after := parentCB.dict.Probes.Load()
	require.Equal(t, before, after, "a filter-absent key must never reach the ancestor dict")

	parentCB.Release()
}

// Lease conservation (testable property 8): once every handle is released
// and the Blockchain is disposed, the page pool must have nothing
// outstanding.
func TestBlockchain_LeaseConservationAcrossDispose(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	ctx := context.Background()

	lb, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)
	lb.SetAccount(addr(5), common.Account{Nonce: 1}, true)
	cb, err := lb.Commit(1)
	require.NoError(t, err)
	require.NoError(t, bc.Finalize(ctx, cb))

	require.NoError(t, bc.DisposeAsync())
	require.Equal(t, 0, bc.pool.Outstanding())
}

// Accessor freshness (testable property 9): the same hash returns the same
// cached ReadOnlyView instance until invalidated.
func TestBlockchain_AccessorCachesViewsByHash(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	ctx := context.Background()

	lb, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)
	lb.SetAccount(addr(6), common.Account{Nonce: 2}, true)
	cb, err := lb.Commit(1)
	require.NoError(t, err)
	require.NoError(t, bc.Finalize(ctx, cb.Acquire()))

	v1, err := bc.StartReadOnly(cb.Hash())
	require.NoError(t, err)
	v2, err := bc.StartReadOnly(cb.Hash())
	require.NoError(t, err)
	require.Same(t, v1, v2)

	acct, err := v1.GetAccount(addr(6))
	require.NoError(t, err)
	require.EqualValues(t, 2, acct.Nonce)
	cb.Release()
}

// Finalizing a block whose parent was committed but never individually
// finalized must push that parent's writes too (spec §4.5/§2 walk-back),
// not silently drop them.
func TestBlockchain_FinalizeWalksBackUnflushedAncestor(t *testing.T) {
	bc, db := newTestBlockchain(t)
	ctx := context.Background()

	a1, a2 := addr(10), addr(11)

	h1, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)
	h1.SetAccount(a1, common.Account{Nonce: 1}, true)
	cb1, err := h1.Commit(1)
	require.NoError(t, err)
	require.NotNil(t, cb1)

	// cb1 is deliberately never finalized on its own.
	h2, err := bc.StartNew(cb1.Hash())
	require.NoError(t, err)
	h2.SetAccount(a2, common.Account{Nonce: 2}, true)
	cb2, err := h2.Commit(2)
	require.NoError(t, err)
	require.NotNil(t, cb2)

	require.NoError(t, bc.Finalize(ctx, cb2))
	require.NoError(t, bc.DisposeAsync())

	has1, err := db.HasState(cb1.Hash())
	require.NoError(t, err)
	require.True(t, has1, "unfinalized ancestor's writes must still reach the paged store")

	batch, err := db.BeginReadOnlyBatch("check")
	require.NoError(t, err)
	defer batch.Close()
	val, err := batch.TryGet(common.AccountKey(a1).Encode())
	require.NoError(t, err)
	require.NotEmpty(t, val, "ancestor's account write must not be silently dropped")
}

// Finalizing the same block twice, or a block older than (or equal to) the
// last one finalized, is a ProgrammingError (spec §7).
func TestBlockchain_FinalizeNonMonotonicPanics(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	ctx := context.Background()

	lb, err := bc.StartNew(common.ZeroHash)
	require.NoError(t, err)
	lb.SetAccount(addr(12), common.Account{Nonce: 1}, true)
	cb, err := lb.Commit(1)
	require.NoError(t, err)
	require.NoError(t, bc.Finalize(ctx, cb.Acquire()))

	require.Panics(t, func() { _ = bc.Finalize(ctx, cb) })
}

// RawState's SetBoundary/RegisterDeleteByPrefix delegate straight to the
// underlying WriteBatch primitives.
func TestRawState_BoundaryAndDeleteByPrefix(t *testing.T) {
	bc, _ := newTestBlockchain(t)

	raw, err := bc.StartRaw()
	require.NoError(t, err)
	require.NoError(t, raw.RegisterDeleteByPrefix(common.AddressPrefix(addr(20))))
	require.NoError(t, raw.SetAccount(addr(20), common.Account{Nonce: 3}))
	require.NoError(t, raw.SetBoundary(common.FullPath(addr(20))))
	require.NoError(t, raw.Finalize(0, common.ZeroHash))
	require.NoError(t, raw.Dispose())
}

// RawState import bypasses the block machinery; Finalize commits it as
// block 0's state directly.
func TestBlockchain_RawStateImport(t *testing.T) {
	bc, db := newTestBlockchain(t)

	raw, err := bc.StartRaw()
	require.NoError(t, err)
	require.NoError(t, raw.SetAccount(addr(7), common.Account{Nonce: 42}))
	require.NoError(t, raw.Finalize(0, common.ZeroHash))
	require.NoError(t, raw.Dispose())

	batch, err := db.BeginReadOnlyBatch("check")
	require.NoError(t, err)
	defer batch.Close()
	val, err := batch.TryGet(common.AccountKey(addr(7)).Encode())
	require.NoError(t, err)
	require.NotEmpty(t, val)
}

// Disposing a RawState that was never finalized is a programming error.
func TestBlockchain_RawStateDisposeWithoutFinalizePanics(t *testing.T) {
	bc, _ := newTestBlockchain(t)
	raw, err := bc.StartRaw()
	require.NoError(t, err)
	require.Panics(t, func() { _ = raw.Dispose() })
	_ = raw.Abandon()
}
