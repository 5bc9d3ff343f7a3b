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
	"github.com/ledgerwatch/paprika/kv"
	"github.com/ledgerwatch/paprika/refcount"
)

// leasedBatch wraps a kv.Batch in a refcount.Lease so LiveBlock, ReadOnlyView
// and the Accessor can all share one database handle and release it
// deterministically (spec §3 "a LiveBlock holds exactly one outstanding
// lease ... on the database batch").
type leasedBatch struct {
	batch kv.Batch
	lease *refcount.Lease
}

func newLeasedBatch(batch kv.Batch) *leasedBatch {
	lb := &leasedBatch{batch: batch}
	lb.lease = refcount.New(func() { _ = batch.Close() })
	return lb
}

func (b *leasedBatch) Acquire() *leasedBatch {
	b.lease.Acquire()
	return b
}

func (b *leasedBatch) Release() { b.lease.Release() }

func (b *leasedBatch) TryGet(key []byte) ([]byte, error) { return b.batch.TryGet(key) }

func (b *leasedBatch) Metadata() kv.Metadata { return b.batch.Metadata() }
