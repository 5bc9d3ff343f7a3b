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

// Package kv declares the interfaces the blockchain package expects of the
// paged on-disk store (spec §6, "Paged database"). The store itself is
// explicitly an external collaborator (spec §1): this core only ever talks
// to it through Batch/WriteBatch/DB. See kv/mdbxstore for the concrete
// implementation used outside of tests.
package kv

import (
	"github.com/ledgerwatch/paprika/common"
)

// CommitOption selects how durable a WriteBatch.Commit should be.
type CommitOption int

const (
	// FlushDataOnly forces an fsync of the data pages as part of commit.
	FlushDataOnly CommitOption = iota
	// DangerNoFlush commits without forcing durability; a later DB.Flush
	// is expected to cover it.
	DangerNoFlush
	// DangerNoWrite discards the batch without persisting it.
	DangerNoWrite
)

// Metadata is the one piece of state this core adds to every committed
// batch: the block it corresponds to.
type Metadata struct {
	BlockNumber uint64
	StateHash   common.Hash
}

// Batch is a read-only view into the paged store, rooted at a particular
// Metadata.StateHash.
type Batch interface {
	// TryGet returns the value stored at key, or (nil, nil) on a miss.
	TryGet(key []byte) ([]byte, error)
	Metadata() Metadata
	// Close releases resources backing this batch (e.g. an mdbx
	// transaction). It is not a RefCounted lease itself; callers that need
	// sharing wrap a Batch in a lease (see blockchain.leasedBatch).
	Close() error
}

// WriteBatch is the single writable batch the Flusher owns at a time.
type WriteBatch interface {
	Batch
	SetRaw(key, value []byte) error
	Destroy(path common.Path) error
	DeleteByPrefix(prefix []byte) error
	SetMetadata(blockNumber uint64, hash common.Hash) error
	Commit(opt CommitOption) error
	// VerifyDBPagesOnCommit enables the store's internal page-consistency
	// check for the next Commit; used by Blockchain.VerifyDBIntegrityOnCommit.
	VerifyDBPagesOnCommit()
}

// DB is the paged store itself (spec §6).
type DB interface {
	BeginReadOnlyBatch(label string) (Batch, error)
	// BeginReadOnlyBatchOrLatest returns a batch rooted exactly at hash if
	// still persisted, else the most recent batch, with the fallback
	// anchor reported through the returned Batch's own Metadata.
	BeginReadOnlyBatchOrLatest(hash common.Hash, label string) (Batch, error)
	BeginNextBatch() (WriteBatch, error)
	HasState(hash common.Hash) (bool, error)
	SnapshotAll() ([]Batch, error)
	HistoryDepth() uint32
	// Flush forces a full fsync of everything committed so far.
	Flush() error
	Close() error
}
