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

// Package mdbxstore is the concrete kv.DB backing the paged store (spec §6)
// outside of tests, built directly on github.com/erigontech/mdbx-go the way
// the teacher's own erigon-lib/kv/mdbx package wraps the same library: one
// mdbx.Env, a handful of named DBIs, read-only transactions served freely in
// parallel and a single writable transaction at a time.
package mdbxstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/kv"
)

const (
	dbiState    = "state"    // canonical Key bytes -> value bytes
	dbiRoots    = "roots"    // state-root hash -> block number (big-endian u64)
	dbiByNumber = "byNumber" // block number (big-endian u64) -> state-root hash
	dbiMeta     = "meta"     // single key "current" -> blockNumber(8) ++ hash(32)
)

var metaCurrentKey = []byte("current")

// Store is a mdbx-backed kv.DB.
type Store struct {
	env          *mdbx.Env
	historyDepth uint32

	mu        sync.Mutex // serializes writable transactions (spec §5: at most one writable batch at a time)
	dbiState  mdbx.DBI
	dbiRoots  mdbx.DBI
	dbiByNum  mdbx.DBI
	dbiMeta   mdbx.DBI
}

// Options configures Open.
type Options struct {
	Path         string
	HistoryDepth uint32
	MaxDBSizeMB  int64
}

// Open creates or opens an mdbx environment at opts.Path with the four DBIs
// this store needs.
func Open(opts Options) (*Store, error) {
	if opts.HistoryDepth == 0 {
		opts.HistoryDepth = 32
	}
	if opts.MaxDBSizeMB == 0 {
		opts.MaxDBSizeMB = 1 << 16 // 64 GiB
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mdbxstore: mkdir: %w", err)
	}

	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("mdbxstore: new env: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, 8); err != nil {
		return nil, fmt.Errorf("mdbxstore: set max dbs: %w", err)
	}
	if err := env.SetGeometry(-1, -1, int(opts.MaxDBSizeMB)<<20, -1, -1, 4096); err != nil {
		return nil, fmt.Errorf("mdbxstore: set geometry: %w", err)
	}
	if err := env.Open(opts.Path, mdbx.NoSubdir, 0o644); err != nil {
		return nil, fmt.Errorf("mdbxstore: open %s: %w", opts.Path, err)
	}

	s := &Store{env: env, historyDepth: opts.HistoryDepth}
	err = env.Update(func(txn *mdbx.Txn) error {
		var dbiErr error
		if s.dbiState, dbiErr = txn.OpenDBI(dbiState, mdbx.Create, nil, nil); dbiErr != nil {
			return dbiErr
		}
		if s.dbiRoots, dbiErr = txn.OpenDBI(dbiRoots, mdbx.Create, nil, nil); dbiErr != nil {
			return dbiErr
		}
		if s.dbiByNum, dbiErr = txn.OpenDBI(dbiByNumber, mdbx.Create, nil, nil); dbiErr != nil {
			return dbiErr
		}
		if s.dbiMeta, dbiErr = txn.OpenDBI(dbiMeta, mdbx.Create, nil, nil); dbiErr != nil {
			return dbiErr
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxstore: open dbis: %w", err)
	}
	return s, nil
}

func numKey(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// roBatch implements kv.Batch over one read-only mdbx transaction.
type roBatch struct {
	s    *Store
	txn  *mdbx.Txn
	meta kv.Metadata
}

func (s *Store) currentMetadata(txn *mdbx.Txn) (kv.Metadata, error) {
	raw, err := txn.Get(s.dbiMeta, metaCurrentKey)
	if mdbx.IsNotFound(err) {
		return kv.Metadata{}, nil
	}
	if err != nil {
		return kv.Metadata{}, err
	}
	if len(raw) < 8+common.HashLength {
		return kv.Metadata{}, fmt.Errorf("mdbxstore: short meta record")
	}
	return kv.Metadata{
		BlockNumber: binary.BigEndian.Uint64(raw[:8]),
		StateHash:   common.BytesToHash(raw[8 : 8+common.HashLength]),
	}, nil
}

func (s *Store) BeginReadOnlyBatch(label string) (kv.Batch, error) {
	txn, err := s.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, fmt.Errorf("mdbxstore: begin ro txn (%s): %w", label, err)
	}
	meta, err := s.currentMetadata(txn)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	return &roBatch{s: s, txn: txn, meta: meta}, nil
}

// BeginReadOnlyBatchOrLatest returns a batch rooted exactly at hash if the
// root table still maps it to a block number whose by-number hash still
// matches (i.e. it hasn't been pruned or superseded by a later sibling);
// otherwise it falls back to the store's current head, per spec §6.
func (s *Store) BeginReadOnlyBatchOrLatest(hash common.Hash, label string) (kv.Batch, error) {
	txn, err := s.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, fmt.Errorf("mdbxstore: begin ro txn (%s): %w", label, err)
	}
	meta, err := s.currentMetadata(txn)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	if numRaw, gerr := txn.Get(s.dbiRoots, hash[:]); gerr == nil {
		n := binary.BigEndian.Uint64(numRaw)
		if byNumRaw, gerr2 := txn.Get(s.dbiByNum, numKey(n)); gerr2 == nil && bytes.Equal(byNumRaw, hash[:]) {
			meta = kv.Metadata{BlockNumber: n, StateHash: hash}
		}
	}
	return &roBatch{s: s, txn: txn, meta: meta}, nil
}

func (b *roBatch) TryGet(key []byte) ([]byte, error) {
	v, err := b.txn.Get(b.s.dbiState, key)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

func (b *roBatch) Metadata() kv.Metadata { return b.meta }

func (b *roBatch) Close() error {
	b.txn.Abort()
	return nil
}

// rwBatch implements kv.WriteBatch over the single writable mdbx
// transaction this Store hands out at a time.
type rwBatch struct {
	s       *Store
	txn     *mdbx.Txn
	verify  bool
	meta    kv.Metadata
}

func (s *Store) BeginNextBatch() (kv.WriteBatch, error) {
	s.mu.Lock()
	txn, err := s.env.BeginTxn(nil, 0)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("mdbxstore: begin rw txn: %w", err)
	}
	meta, err := s.currentMetadata(txn)
	if err != nil {
		txn.Abort()
		s.mu.Unlock()
		return nil, err
	}
	return &rwBatch{s: s, txn: txn, meta: meta}, nil
}

func (b *rwBatch) TryGet(key []byte) ([]byte, error) {
	v, err := b.txn.Get(b.s.dbiState, key)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

func (b *rwBatch) Metadata() kv.Metadata { return b.meta }

func (b *rwBatch) SetRaw(key, value []byte) error {
	return b.txn.Put(b.s.dbiState, key, value, 0)
}

// Destroy removes every state entry whose key begins with path's compact
// encoding — the account record and every storage cell of the same address,
// which all share that prefix because common.Key.WriteTo puts the path
// ahead of the type discriminator (spec: destroyed-address subtree removal
// at flush time).
func (b *rwBatch) Destroy(path common.Path) error {
	return b.DeleteByPrefix(path.AppendCompact(nil))
}

func (b *rwBatch) DeleteByPrefix(prefix []byte) error {
	cur, err := b.txn.OpenCursor(b.s.dbiState)
	if err != nil {
		return err
	}
	defer cur.Close()

	k, _, err := cur.Get(prefix, nil, mdbx.SetRange)
	for ; err == nil && bytes.HasPrefix(k, prefix); k, _, err = cur.Get(nil, nil, mdbx.Next) {
		if delErr := cur.Del(0); delErr != nil {
			return delErr
		}
	}
	if err != nil && !mdbx.IsNotFound(err) {
		return err
	}
	return nil
}

func (b *rwBatch) SetMetadata(blockNumber uint64, hash common.Hash) error {
	b.meta = kv.Metadata{BlockNumber: blockNumber, StateHash: hash}
	record := make([]byte, 0, 8+common.HashLength)
	record = append(record, numKey(blockNumber)...)
	record = append(record, hash[:]...)
	if err := b.txn.Put(b.s.dbiMeta, metaCurrentKey, record, 0); err != nil {
		return err
	}
	if err := b.txn.Put(b.s.dbiRoots, hash[:], numKey(blockNumber), 0); err != nil {
		return err
	}
	return b.txn.Put(b.s.dbiByNum, numKey(blockNumber), hash[:], 0)
}

func (b *rwBatch) VerifyDBPagesOnCommit() { b.verify = true }

func (b *rwBatch) Commit(opt kv.CommitOption) error {
	defer b.s.mu.Unlock()
	if opt == kv.DangerNoWrite {
		b.txn.Abort()
		return nil
	}
	if b.verify {
		if err := b.s.env.CheckReaders(); err != nil {
			b.txn.Abort()
			return fmt.Errorf("mdbxstore: page verification failed: %w", err)
		}
	}
	if _, err := b.txn.Commit(); err != nil {
		return fmt.Errorf("mdbxstore: commit: %w", err)
	}
	if opt == kv.FlushDataOnly {
		return b.s.env.Sync(true, false)
	}
	return nil
}

func (b *rwBatch) Close() error {
	b.txn.Abort()
	return nil
}

func (s *Store) HasState(hash common.Hash) (bool, error) {
	batch, err := s.BeginReadOnlyBatch("has-state")
	if err != nil {
		return false, err
	}
	defer batch.Close()
	ro := batch.(*roBatch)
	_, err = ro.txn.Get(s.dbiRoots, hash[:])
	if mdbx.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// SnapshotAll returns one Batch per persisted state root the byNumber table
// currently holds, oldest first, for Accessor's startup registration.
func (s *Store) SnapshotAll() ([]kv.Batch, error) {
	txn, err := s.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, err
	}
	defer txn.Abort()

	cur, err := txn.OpenCursor(s.dbiByNum)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []kv.Batch
	for k, v, err := cur.Get(nil, nil, mdbx.First); err == nil; k, v, err = cur.Get(nil, nil, mdbx.Next) {
		n := binary.BigEndian.Uint64(k)
		hash := common.BytesToHash(v)
		b, err := s.BeginReadOnlyBatchOrLatest(hash, "snapshot-all")
		if err != nil {
			return nil, err
		}
		_ = n
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) HistoryDepth() uint32 { return s.historyDepth }

func (s *Store) Flush() error {
	return s.env.Sync(true, false)
}

func (s *Store) Close() error {
	s.env.Close()
	return nil
}
