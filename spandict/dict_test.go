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

package spandict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/paprika/pagepool"
)

func newTestPool(t *testing.T) *pagepool.Pool {
	t.Helper()
	p, err := pagepool.NewPool(pagepool.DefaultPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestDict_SetAndGet(t *testing.T) {
	d, err := New(newTestPool(t), 0)
	require.NoError(t, err)
	defer d.Return()

	d.Set([]byte("k1"), 1, []byte("v1"), 0)
	v, meta, destroyed, ok := d.TryGet([]byte("k1"), 1)
	require.True(t, ok)
	require.False(t, destroyed)
	require.Equal(t, Meta(0), meta)
	require.Equal(t, []byte("v1"), v)

	_, _, _, ok = d.TryGet([]byte("missing"), 99)
	require.False(t, ok)
}

func TestDict_SetOverwritesExisting(t *testing.T) {
	d, err := New(newTestPool(t), 0)
	require.NoError(t, err)
	defer d.Return()

	d.Set([]byte("k"), 5, []byte("v1"), 1)
	d.Set([]byte("k"), 5, []byte("v2"), 2)

	v, meta, _, ok := d.TryGet([]byte("k"), 5)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
	require.Equal(t, Meta(2), meta)
	require.Equal(t, 1, d.Len())
}

func TestDict_HashCollisionResolvedByFullKeyCompare(t *testing.T) {
	d, err := New(newTestPool(t), 0)
	require.NoError(t, err)
	defer d.Return()

	d.Set([]byte("alpha"), 7, []byte("a"), 0)
	d.Set([]byte("beta"), 7, []byte("b"), 0)

	va, _, _, ok := d.TryGet([]byte("alpha"), 7)
	require.True(t, ok)
	require.Equal(t, []byte("a"), va)

	vb, _, _, ok := d.TryGet([]byte("beta"), 7)
	require.True(t, ok)
	require.Equal(t, []byte("b"), vb)
}

func TestDict_IterateAndMarkDestroyed(t *testing.T) {
	d, err := New(newTestPool(t), 0)
	require.NoError(t, err)
	defer d.Return()

	d.Set([]byte("k1"), 1, []byte("v1"), 0)
	d.Set([]byte("k2"), 2, []byte("v2"), 0)

	c := d.Iterate()
	for {
		key, _, _, _, _, ok := c.Next()
		if !ok {
			break
		}
		if string(key) == "k1" {
			c.MarkDestroyed()
		}
	}

	_, _, destroyed, ok := d.TryGet([]byte("k1"), 1)
	require.True(t, ok)
	require.True(t, destroyed)

	v, _, destroyed, ok := d.TryGet([]byte("k2"), 2)
	require.True(t, ok)
	require.False(t, destroyed)
	require.Equal(t, []byte("v2"), v)
}

func TestDict_SetResurrectsDestroyedEntry(t *testing.T) {
	d, err := New(newTestPool(t), 0)
	require.NoError(t, err)
	defer d.Return()

	d.Set([]byte("k"), 1, []byte("v1"), 0)
	c := d.Iterate()
	c.Next()
	c.MarkDestroyed()

	d.Set([]byte("k"), 1, []byte("v2"), 0)
	v, _, destroyed, ok := d.TryGet([]byte("k"), 1)
	require.True(t, ok)
	require.False(t, destroyed)
	require.Equal(t, []byte("v2"), v)
}

func TestDict_CopyToFiltersByPredicateAndPopulatesFilter(t *testing.T) {
	pool := newTestPool(t)
	src, err := New(pool, 0)
	require.NoError(t, err)
	defer src.Return()
	dest, err := New(pool, 0)
	require.NoError(t, err)
	defer dest.Return()

	src.Set([]byte("keep"), 1, []byte("a"), 0)
	src.Set([]byte("drop"), 2, []byte("b"), 1)

	var seen []uint64
	fake := fakeFilter{add: func(h uint64) bool { seen = append(seen, h); return true }}
	src.CopyTo(dest, func(m Meta) bool { return m == 0 }, fake, true)

	v, _, _, ok := dest.TryGet([]byte("keep"), 1)
	require.True(t, ok)
	require.Equal(t, []byte("a"), v)
	_, _, _, ok = dest.TryGet([]byte("drop"), 2)
	require.False(t, ok)
	require.Equal(t, []uint64{1}, seen)
}

type fakeFilter struct {
	add func(uint64) bool
}

func (f fakeFilter) AddAtomic(h uint64) bool { return f.add(h) }

func TestDict_GrowsAndPreservesEntries(t *testing.T) {
	d, err := New(newTestPool(t), 2)
	require.NoError(t, err)
	defer d.Return()

	const n = 5000
	for i := 0; i < n; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		d.Set(key, uint64(i), key, 0)
	}
	for i := 0; i < n; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		v, _, _, ok := d.TryGet(key, uint64(i))
		require.True(t, ok)
		require.Equal(t, key, v)
	}
}
