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
	"bytes"
	"sort"
	"sync"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/kv"
)

// memDB is a trivial in-memory kv.DB standing in for the real mdbx-backed
// store in tests that only care about the Blockchain/LiveBlock machinery,
// not the paged store's own on-disk behavior.
type memDB struct {
	mu      sync.Mutex
	state   map[string][]byte
	current kv.Metadata
	history []kv.Metadata
	roots   map[common.Hash]kv.Metadata
	writing bool
}

func newMemDB() *memDB {
	return &memDB{state: make(map[string][]byte), roots: make(map[common.Hash]kv.Metadata)}
}

type memBatch struct {
	db   *memDB
	meta kv.Metadata
}

func (b *memBatch) TryGet(key []byte) ([]byte, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	v, ok := b.db.state[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (b *memBatch) Metadata() kv.Metadata { return b.meta }
func (b *memBatch) Close() error          { return nil }

type memWriteBatch struct {
	memBatch
	writes  map[string][]byte
	deletes [][]byte
	metas   []kv.Metadata // every SetMetadata call this batch made, in order
}

func (b *memWriteBatch) SetRaw(key, value []byte) error {
	b.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (b *memWriteBatch) Destroy(path common.Path) error {
	return b.DeleteByPrefix(path.AppendCompact(nil))
}

func (b *memWriteBatch) DeleteByPrefix(prefix []byte) error {
	b.deletes = append(b.deletes, append([]byte(nil), prefix...))
	return nil
}

func (b *memWriteBatch) SetMetadata(blockNumber uint64, hash common.Hash) error {
	b.meta = kv.Metadata{BlockNumber: blockNumber, StateHash: hash}
	b.metas = append(b.metas, b.meta)
	return nil
}

func (b *memWriteBatch) VerifyDBPagesOnCommit() {}

func (b *memWriteBatch) Commit(kv.CommitOption) error {
	db := b.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, prefix := range b.deletes {
		for k := range db.state {
			if bytes.HasPrefix([]byte(k), prefix) {
				delete(db.state, k)
			}
		}
	}
	for k, v := range b.writes {
		db.state[k] = v
	}
	for _, m := range b.metas {
		db.roots[m.StateHash] = m
		db.history = append(db.history, m)
		db.current = m
	}
	db.writing = false
	return nil
}

func (b *memWriteBatch) Close() error {
	b.db.mu.Lock()
	b.db.writing = false
	b.db.mu.Unlock()
	return nil
}

func (db *memDB) BeginReadOnlyBatch(string) (kv.Batch, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memBatch{db: db, meta: db.current}, nil
}

func (db *memDB) BeginReadOnlyBatchOrLatest(hash common.Hash, label string) (kv.Batch, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if m, ok := db.roots[hash]; ok {
		return &memBatch{db: db, meta: m}, nil
	}
	return &memBatch{db: db, meta: db.current}, nil
}

func (db *memDB) BeginNextBatch() (kv.WriteBatch, error) {
	db.mu.Lock()
	db.writing = true
	meta := db.current
	db.mu.Unlock()
	return &memWriteBatch{
		memBatch: memBatch{db: db, meta: meta},
		writes:   make(map[string][]byte),
	}, nil
}

func (db *memDB) HasState(hash common.Hash) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.roots[hash]
	return ok, nil
}

func (db *memDB) SnapshotAll() ([]kv.Batch, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	sorted := append([]kv.Metadata(nil), db.history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockNumber < sorted[j].BlockNumber })
	out := make([]kv.Batch, 0, len(sorted))
	for _, m := range sorted {
		out = append(out, &memBatch{db: db, meta: m})
	}
	return out, nil
}

func (db *memDB) HistoryDepth() uint32 { return 0 }
func (db *memDB) Flush() error         { return nil }
func (db *memDB) Close() error         { return nil }

var _ kv.DB = (*memDB)(nil)
