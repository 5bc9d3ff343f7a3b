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
	"github.com/ledgerwatch/paprika/kv"
)

// RawState is the direct-to-batch write path used by bulk importers (spec
// §4.10, supplemented per SPEC_FULL.md's CLI import tool): it bypasses
// SpanDict/BitFilter entirely and writes straight through to a WriteBatch,
// for loading a genesis or a snapshot where per-key ancestry bookkeeping
// would be pure overhead.
type RawState struct {
	bc       *Blockchain
	wb       kv.WriteBatch
	finalized bool
}

// StartRaw opens a fresh WriteBatch for bulk import. There must be no
// concurrent LiveBlock commit in flight; both compete for the database's
// single writer.
func (bc *Blockchain) StartRaw() (*RawState, error) {
	wb, err := bc.db.BeginNextBatch()
	if err != nil {
		return nil, err
	}
	return &RawState{bc: bc, wb: wb}, nil
}

// SetAccount writes addr's account record directly, bypassing the block
// abstraction entirely. A raw import never derives a trie root itself; the
// caller is responsible for writing pre-commit/merkle records of its own if
// it needs BuildReadOnlyAccessor to succeed afterward.
func (r *RawState) SetAccount(addr common.Address, acct common.Account) error {
	return r.wb.SetRaw(common.AccountKey(addr).Encode(), acct.EncodeForStorage())
}

// SetStorage writes one storage cell directly.
func (r *RawState) SetStorage(addr common.Address, slot common.Slot, value []byte) error {
	return r.wb.SetRaw(common.StorageKey(addr, slot).Encode(), value)
}

// SetBoundary records the last path a bulk import has successfully written
// (spec §6), so a restarted import can resume past it instead of rescanning
// or rewriting everything from the start. It writes a raw marker under
// path's own MerkleKey rather than inventing a separate DBI for progress
// tracking.
func (r *RawState) SetBoundary(path common.Path) error {
	return r.wb.SetRaw(common.MerkleKey(path, nil).Encode(), []byte{1})
}

// RegisterDeleteByPrefix clears every key under prefix before a bulk load
// writes its replacement (spec §6) — e.g. a genesis importer reusing a
// database that still carries stale state from a previous run. It
// delegates straight to the WriteBatch's own prefix-range delete, the same
// primitive Destroy uses to sweep a destroyed account's footprint.
func (r *RawState) RegisterDeleteByPrefix(prefix []byte) error {
	return r.wb.DeleteByPrefix(prefix)
}

// Finalize commits the batch as the state for blockNumber/hash (spec §4.10).
func (r *RawState) Finalize(blockNumber uint64, hash common.Hash) error {
	if err := r.wb.SetMetadata(blockNumber, hash); err != nil {
		return err
	}
	if err := r.wb.Commit(kv.FlushDataOnly); err != nil {
		return err
	}
	r.finalized = true
	return nil
}

// Dispose releases the underlying batch. Disposing a RawState that was
// never Finalized is a programming error (spec §7): the caller started a
// bulk import and abandoned it without either committing or explicitly
// discarding the work, which would otherwise leave the database's single
// writer transaction open indefinitely.
func (r *RawState) Dispose() error {
	if !r.finalized {
		panicProgrammingError("%s", ErrRawStateNotFinalized.Error())
	}
	return r.wb.Close()
}

// Abandon releases the batch without requiring Finalize first, for callers
// that deliberately want to discard an in-progress import (e.g. on error).
func (r *RawState) Abandon() error {
	r.finalized = true
	return r.wb.Close()
}
