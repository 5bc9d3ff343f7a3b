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

package common

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// Account is the tuple spec §3 describes. StorageRoot is recomputed by the
// pre-commit behavior on every commit; external importers of raw state must
// write it as EmptyTreeHash (never a stale root).
type Account struct {
	Balance     uint256.Int
	Nonce       uint64
	CodeHash    Hash
	StorageRoot Hash
}

// EmptyAccount is the payload destroy_account writes at Key::Account(A):
// present (not absent) but carrying no balance, nonce or code.
func EmptyAccount() Account {
	return Account{CodeHash: ZeroHash, StorageRoot: EmptyTreeHash}
}

func (a Account) IsEmpty() bool {
	return a.Balance.IsZero() && a.Nonce == 0 && a.CodeHash == ZeroHash
}

// EncodeForStorage renders the account into this store's own compact binary
// form. It is not the authenticated (RLP) encoding used by the pre-commit
// behavior when it derives the state root — that encoding belongs to the
// external collaborator (spec §6) and is out of this core's scope.
func (a Account) EncodeForStorage() []byte {
	balance := a.Balance.Bytes()
	buf := make([]byte, 0, 1+len(balance)+8+HashLength+HashLength)
	buf = append(buf, byte(len(balance)))
	buf = append(buf, balance...)
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], a.Nonce)
	buf = append(buf, nonceBuf[:]...)
	buf = append(buf, a.CodeHash[:]...)
	buf = append(buf, a.StorageRoot[:]...)
	return buf
}

// DecodeAccountForStorage is the inverse of EncodeForStorage.
func DecodeAccountForStorage(b []byte) (Account, error) {
	var a Account
	if len(b) < 1 {
		return a, fmt.Errorf("common: account encoding too short")
	}
	n := int(b[0])
	b = b[1:]
	if len(b) < n+8+HashLength+HashLength {
		return a, fmt.Errorf("common: account encoding truncated")
	}
	a.Balance.SetBytes(b[:n])
	b = b[n:]
	a.Nonce = binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	copy(a.CodeHash[:], b[:HashLength])
	b = b[HashLength:]
	copy(a.StorageRoot[:], b[:HashLength])
	return a, nil
}
