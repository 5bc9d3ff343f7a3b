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
)

// ReadOnlyView is a frozen, read-only handle on a historical block (spec
// §4.8, component C9): the same ancestor-walk-then-database read protocol
// as LiveBlock, but with no write side and no pre_commit dict (there is
// nothing left to derive).
type ReadOnlyView struct {
	bc *Blockchain

	hash      common.Hash
	ancestors []*CommittedBlock // leased, newest first; may be empty if hash is itself persisted
	filt      *filter.BitFilter // union filter over ancestors, nil if ancestors is empty

	batch *leasedBatch

	dbReads uint64
}

func newReadOnlyView(bc *Blockchain, hash common.Hash, ancestors []*CommittedBlock, filt *filter.BitFilter, batch *leasedBatch) *ReadOnlyView {
	return &ReadOnlyView{bc: bc, hash: hash, ancestors: ancestors, filt: filt, batch: batch}
}

func (v *ReadOnlyView) Hash() common.Hash { return v.hash }

// dependsOn reports whether hash is this view's own block or anywhere in its
// pinned in-memory ancestor chain; used by Accessor to find every cached
// view (including fork siblings) that needs to be dropped once hash becomes
// durable, so none of them keep an old database read transaction pinned
// indefinitely.
func (v *ReadOnlyView) dependsOn(hash common.Hash) bool {
	if v.hash == hash {
		return true
	}
	for _, anc := range v.ancestors {
		if anc.Hash() == hash {
			return true
		}
	}
	return false
}

func (v *ReadOnlyView) read(k common.Key) ([]byte, bool, error) {
	h := common.KeyHash64(k)
	d := common.DestroyedHash64(k)

	if v.filt == nil || v.filt.MayContainAny(h, d) {
		for _, anc := range v.ancestors {
			val, destroyed, ok := anc.localLookup(k, h)
			if ok {
				if destroyed {
					return nil, true, nil
				}
				return val, false, nil
			}
		}
	}

	val, err := v.batch.TryGet(k.Encode())
	v.dbReads++
	if err != nil {
		return nil, false, err
	}
	return val, false, nil
}

// GetAccount reads addr's account as of this view's block.
func (v *ReadOnlyView) GetAccount(addr common.Address) (common.Account, error) {
	val, empty, err := v.read(common.AccountKey(addr))
	if err != nil {
		return common.Account{}, err
	}
	if empty || len(val) == 0 {
		return common.Account{}, nil
	}
	return common.DecodeAccountForStorage(val)
}

// GetStorage reads one storage cell as of this view's block.
func (v *ReadOnlyView) GetStorage(addr common.Address, slot common.Slot, out []byte) ([]byte, error) {
	val, empty, err := v.read(common.StorageKey(addr, slot))
	if err != nil {
		return nil, err
	}
	if empty || len(val) == 0 {
		return out[:0], nil
	}
	return append(out[:0], val...), nil
}

// DbReads is the supplemented counter named in spec §6, mirrored on
// ReadOnlyView for symmetry with LiveBlock.
func (v *ReadOnlyView) DbReads() uint64 { return v.dbReads }

// Dispose releases every lease this view holds: its ancestor chain and its
// database batch. A view must not be used after Dispose.
func (v *ReadOnlyView) Dispose() {
	for _, anc := range v.ancestors {
		anc.Release()
	}
	v.ancestors = nil
	if v.filt != nil {
		v.filt.Return()
		v.filt = nil
	}
	if v.batch != nil {
		v.batch.Release()
		v.batch = nil
	}
}
