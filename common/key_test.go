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
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHash(b byte) Hash {
	var h Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestKeyRoundTrip(t *testing.T) {
	addr := mustHash(0x11)
	slot := mustHash(0x22)

	cases := []Key{
		AccountKey(addr),
		StorageKey(addr, slot),
		MerkleKey(PathN(addr, 5), nil),
		MerkleKey(PathN(addr, 5), &slot),
	}
	for _, k := range cases {
		encoded := k.Encode()
		require.LessOrEqual(t, len(encoded), MaxByteLength)
		decoded, rest, err := ReadKeyFrom(encoded)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.Equal(t, k.Type, decoded.Type)
		require.True(t, k.Path.Equal(decoded.Path))
		require.Equal(t, k.Extra, decoded.Extra)
	}
}

func TestKeyHash64Stable(t *testing.T) {
	addr := mustHash(0x33)
	k1 := AccountKey(addr)
	k2 := AccountKey(addr)
	require.Equal(t, KeyHash64(k1), KeyHash64(k2))

	other := AccountKey(mustHash(0x34))
	require.NotEqual(t, KeyHash64(k1), KeyHash64(other))
}

func TestDestroyedHash64OnlyForFullPath(t *testing.T) {
	addr := mustHash(0x55)
	full := AccountKey(addr)
	require.NotZero(t, DestroyedHash64(full))

	partial := MerkleKey(PathN(addr, 10), nil)
	require.Zero(t, DestroyedHash64(partial))
}

func TestPathPrefix(t *testing.T) {
	addr := mustHash(0x77)
	full := FullPath(addr)
	prefix := PathN(addr, 10)
	require.True(t, full.HasPrefix(prefix))
	require.False(t, prefix.HasPrefix(full))
}

func TestAccountEncodeDecode(t *testing.T) {
	a := EmptyAccount()
	a.Nonce = 7
	a.Balance.SetUint64(12345)
	encoded := a.EncodeForStorage()
	decoded, err := DecodeAccountForStorage(encoded)
	require.NoError(t, err)
	require.Equal(t, a.Nonce, decoded.Nonce)
	require.Equal(t, a.Balance, decoded.Balance)
	require.Equal(t, a.CodeHash, decoded.CodeHash)
	require.Equal(t, a.StorageRoot, decoded.StorageRoot)
}
