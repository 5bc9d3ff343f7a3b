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
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
)

// KeyType discriminates what a Key addresses. The read protocol picks among
// a LiveBlock's three dicts by switching on this tag rather than through any
// dynamic dispatch (see spec §9 "dynamic dispatch on dict choice").
type KeyType uint8

const (
	KeyAccount KeyType = iota
	KeyStorageCell
	KeyMerkle
)

func (t KeyType) String() string {
	switch t {
	case KeyAccount:
		return "account"
	case KeyStorageCell:
		return "storage"
	case KeyMerkle:
		return "merkle"
	default:
		return "unknown"
	}
}

// Key is a tagged (Type, Path, Extra) triple, serializable to a canonical
// byte form (spec §3). Path is always the account-level path: for
// KeyAccount and KeyStorageCell it is the full 64-nibble path of the owning
// address; for KeyMerkle it is the trie-node path being addressed, which may
// be partial. Extra carries type-specific payload: the storage slot hash for
// KeyStorageCell, and (optionally) the owning account's path for a
// storage-subtrie KeyMerkle node.
type Key struct {
	Type  KeyType
	Path  Path
	Extra []byte
}

// AccountKey builds the key for an account's own record.
func AccountKey(addr Address) Key {
	return Key{Type: KeyAccount, Path: FullPath(addr)}
}

// StorageKey builds the key for one storage cell of an account.
func StorageKey(addr Address, slot Slot) Key {
	extra := make([]byte, HashLength)
	copy(extra, slot[:])
	return Key{Type: KeyStorageCell, Path: FullPath(addr), Extra: extra}
}

// MerkleKey builds the key for a merkle node at the given path within the
// account trie (owner == nil) or within addr's storage subtrie.
func MerkleKey(path Path, owner *Address) Key {
	k := Key{Type: KeyMerkle, Path: path}
	if owner != nil {
		k.Extra = append([]byte(nil), owner[:]...)
	}
	return k
}

// AddressPrefix returns the canonical on-disk prefix shared by addr's
// AccountKey and every StorageKey(addr, *): the compact encoding of
// FullPath(addr), with no type byte. A WriteBatch.Destroy(FullPath(addr))
// range-scans exactly this prefix to remove an entire destroyed account's
// footprint in one pass.
func AddressPrefix(addr Address) []byte {
	return FullPath(addr).AppendCompact(nil)
}

// MaxByteLength bounds the canonical encoding of any Key this package
// produces: 1 (type) + CompactLen(64) (path) + 1 (extra-len) + 32 (extra).
const MaxByteLength = 1 + CompactLen(MaxPathNibbles) + 1 + HashLength

// WriteTo appends the canonical encoding of k to buf and returns the
// result. The path comes first, then the type discriminator, then extra:
// this way every key belonging to the same address (an AccountKey and all
// of its StorageKeys, which all share Path == FullPath(addr)) shares one
// byte prefix — the compact path encoding — so a single DeleteByPrefix on
// that prefix sweeps an entire destroyed account's on-disk footprint in one
// range scan (see kv/mdbxstore's WriteBatch.Destroy).
func (k Key) WriteTo(buf []byte) []byte {
	buf = k.Path.AppendCompact(buf)
	buf = append(buf, byte(k.Type))
	buf = append(buf, byte(len(k.Extra)))
	buf = append(buf, k.Extra...)
	return buf
}

// Encode is a convenience wrapper around WriteTo for callers that just want
// the bytes.
func (k Key) Encode() []byte {
	return k.WriteTo(make([]byte, 0, MaxByteLength))
}

// ReadKeyFrom parses the form written by WriteTo, returning the key and the
// remaining, unconsumed bytes.
func ReadKeyFrom(b []byte) (Key, []byte, error) {
	path, rest, err := ReadCompactPath(b)
	if err != nil {
		return Key{}, nil, err
	}
	if len(rest) < 1 {
		return Key{}, nil, errShortKeyBuf
	}
	typ := KeyType(rest[0])
	rest = rest[1:]
	if len(rest) < 1 {
		return Key{}, nil, errShortKeyBuf
	}
	n := int(rest[0])
	rest = rest[1:]
	if len(rest) < n {
		return Key{}, nil, errShortKeyBuf
	}
	var extra []byte
	if n > 0 {
		extra = append([]byte(nil), rest[:n]...)
	}
	return Key{Type: typ, Path: path, Extra: extra}, rest[n:], nil
}

// KeyHash64 is the precomputed 64-bit hash of a Key used as the BitFilter
// seed and the SpanDict probe hash (spec §3 "Derived").
func KeyHash64(k Key) uint64 {
	buf := k.WriteTo(make([]byte, 0, MaxByteLength))
	return xxhash.Sum64(buf)
}

var destroyedHashTable = crc32.MakeTable(crc32.Castagnoli)

// DestroyedHash64 is a 32-bit CRC32C of the address, zero-extended to 64
// bits; it is only meaningful (non-zero by convention of "applicable") when
// the key's path is full length — a partial merkle path can't name a whole
// destroyed account subtree.
func DestroyedHash64(k Key) uint64 {
	if !k.Path.IsFull() {
		return 0
	}
	addr := k.Path.AsHash()
	return uint64(crc32.Checksum(addr[:], destroyedHashTable))
}

// DestroyedHash64ForAddress computes the same hash directly from an address,
// for call sites that haven't built a Key (e.g. destroy_account).
func DestroyedHash64ForAddress(addr Address) uint64 {
	return uint64(crc32.Checksum(addr[:], destroyedHashTable))
}
