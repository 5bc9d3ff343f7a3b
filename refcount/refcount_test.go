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

package refcount

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLease_CleanupOnLastRelease(t *testing.T) {
	cleaned := 0
	l := New(func() { cleaned++ })

	l.Acquire()
	l.Acquire()
	require.EqualValues(t, 3, l.Count())

	l.Release()
	require.Equal(t, 0, cleaned)
	l.Release()
	require.Equal(t, 0, cleaned)
	l.Release()
	require.Equal(t, 1, cleaned)
}

func TestLease_CleanupRunsExactlyOnce(t *testing.T) {
	cleaned := 0
	l := New(func() { cleaned++ })
	l.Release()
	require.Equal(t, 1, cleaned)
}

func TestLease_AcquireAfterZeroPanics(t *testing.T) {
	l := New(func() {})
	l.Release()
	require.Panics(t, func() { l.Acquire() })
}

func TestLease_OverReleasePanics(t *testing.T) {
	l := New(func() {})
	l.Release()
	require.Panics(t, func() { l.Release() })
}

func TestLease_ConcurrentAcquireRelease(t *testing.T) {
	cleaned := 0
	l := New(func() { cleaned++ })

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		l.Acquire()
	}
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			l.Release()
		}()
	}
	wg.Wait()

	require.Equal(t, 0, cleaned)
	l.Release()
	require.Equal(t, 1, cleaned)
}
