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

package filter

import (
	"sync"
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

// TestBitFilter_Soundness is testable property 1: MayContain never
// false-negatives on something actually inserted.
func TestBitFilter_Soundness(t *testing.T) {
	pool := newTestPool(t)
	f, err := New(pool, 4, 500, 0.01)
	require.NoError(t, err)
	defer f.Return()

	inserted := make([]uint64, 0, 500)
	for i := uint64(0); i < 500; i++ {
		h := i*2654435761 + 1
		f.Add(h)
		inserted = append(inserted, h)
	}
	for _, h := range inserted {
		require.True(t, f.MayContain(h))
	}
}

func TestBitFilter_NeverInsertedUsuallyAbsent(t *testing.T) {
	pool := newTestPool(t)
	f, err := New(pool, 4, 64, 0.01)
	require.NoError(t, err)
	defer f.Return()

	for i := uint64(0); i < 32; i++ {
		f.Add(i * 2654435761)
	}
	falsePositives := 0
	for i := uint64(1_000_000); i < 1_001_000; i++ {
		if f.MayContain(i * 2654435761) {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, 100, "false positive rate should stay well under 10%% at this load factor")
}

func TestBitFilter_AddAtomicConcurrent(t *testing.T) {
	pool := newTestPool(t)
	f, err := New(pool, 8, 2000, 0.01)
	require.NoError(t, err)
	defer f.Return()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				f.AddAtomic(uint64(g*100+i) * 2654435761)
			}
		}()
	}
	wg.Wait()

	for g := 0; g < 16; g++ {
		for i := 0; i < 100; i++ {
			require.True(t, f.MayContain(uint64(g*100+i)*2654435761))
		}
	}
}

func TestBitFilter_OrWithRequiresSameWidth(t *testing.T) {
	pool := newTestPool(t)
	a, err := New(pool, 4, 1, 0.01)
	require.NoError(t, err)
	defer a.Return()
	b, err := New(pool, 8, 1, 0.01)
	require.NoError(t, err)
	defer b.Return()

	require.Error(t, a.OrWith(b))
}

func TestBitFilter_CloneIndependentOfSource(t *testing.T) {
	pool := newTestPool(t)
	f, err := New(pool, 4, 10, 0.01)
	require.NoError(t, err)
	defer f.Return()
	f.Add(42)

	clone, err := f.Clone()
	require.NoError(t, err)
	defer clone.Return()
	require.True(t, clone.MayContain(42))

	f.Add(43)
	require.False(t, clone.MayContain(43))
}
