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

// Package common holds the primitive and derived types shared by every layer
// of the versioned state store: hashes, addresses, accounts, trie paths and
// the canonical key encoding.
package common

import (
	"encoding/hex"
)

// HashLength is the byte length of a content hash (the state-root kind).
const HashLength = 32

// Hash is a 32-byte content hash. The zero value is the distinguished ZERO
// hash meaning "empty tree / no parent".
type Hash [HashLength]byte

// ZeroHash is the distinguished value meaning "empty tree / no parent".
var ZeroHash = Hash{}

// EmptyTreeHash is the hash of an authenticated tree with no entries.
// Consumers normalize it to ZeroHash; see NormalizeRoot.
var EmptyTreeHash = Hash{
	0x56, 0xe8, 0x1f, 0x17, 0x1b, 0xcc, 0x55, 0xa6,
	0xff, 0x83, 0x45, 0xe6, 0x92, 0xc0, 0xf8, 0x6e,
	0x5b, 0x48, 0xe0, 0x1b, 0x99, 0x6c, 0xad, 0xc0,
	0x01, 0x62, 0x2f, 0xb5, 0xe3, 0x63, 0xb4, 0x21,
}

// NormalizeRoot folds EmptyTreeHash into ZeroHash so every consumer compares
// against a single "nothing here" sentinel.
func NormalizeRoot(h Hash) Hash {
	if h == EmptyTreeHash {
		return ZeroHash
	}
	return h
}

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// BytesToHash right-aligns b into a Hash, truncating from the left if b is
// longer than HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// Address identifies an account; it is a Hash in this core (the domain of
// addresses and the domain of hashes coincide — see spec §3).
type Address = Hash

// Slot identifies a storage cell within an account.
type Slot = Hash

// AddressSlot names one storage cell of one account; used by the
// touched_storage_slots() accessor (spec §6) and by the pre-commit
// Behavior's view of what changed on a block.
type AddressSlot struct {
	Address Address
	Slot    Slot
}
