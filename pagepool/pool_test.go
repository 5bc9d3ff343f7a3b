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

package pagepool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool_AcquireReleaseZeroesAndTracksOutstanding(t *testing.T) {
	p, err := NewPool(4096)
	require.NoError(t, err)
	defer p.Close()

	pg, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, p.Outstanding())

	pg.Buf[0] = 0xff
	p.Release(pg)
	require.Equal(t, 0, p.Outstanding())

	pg2, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, byte(0), pg2.Buf[0], "reacquired pages must come back zeroed")
	p.Release(pg2)
}

func TestPool_GrowsAcrossArenas(t *testing.T) {
	p, err := NewPool(4096)
	require.NoError(t, err)
	defer p.Close()

	pages := make([]*Page, 0, 2000)
	for i := 0; i < 2000; i++ {
		pg, err := p.Acquire()
		require.NoError(t, err)
		pages = append(pages, pg)
	}
	require.Equal(t, 2000, p.Outstanding())

	for _, pg := range pages {
		p.Release(pg)
	}
	require.Equal(t, 0, p.Outstanding())
}

func TestPool_RejectsBadPageSize(t *testing.T) {
	_, err := NewPool(0)
	require.Error(t, err)
	_, err = NewPool(7)
	require.Error(t, err)
}
