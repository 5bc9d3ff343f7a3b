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

// Package refcount implements RefCounted (spec §4.3, component C3): a
// lease-based lifetime primitive used by the blockchain package's
// CommittedBlock and database batch wrapper. Each of them holds a *Lease and
// starts with one outstanding lease already held by its creator.
// ReadOnlyView does not use a Lease; it is released once, through Dispose.
package refcount

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Lease is an embeddable lease counter. The zero value is not usable; build
// one with New.
type Lease struct {
	n       atomic.Int64
	cleanup func()
}

// New returns a Lease with one outstanding lease (held by the caller) that
// runs cleanup exactly once, when the last lease is released.
func New(cleanup func()) *Lease {
	l := &Lease{cleanup: cleanup}
	l.n.Store(1)
	return l
}

// Acquire adds one outstanding lease. Acquiring a lease on an object whose
// count has already reached zero is a programming error (spec §4.3) and
// panics rather than silently resurrecting a disposed object.
func (l *Lease) Acquire() {
	for {
		old := l.n.Load()
		if old <= 0 {
			panic(errors.New("refcount: Acquire on a released object"))
		}
		if l.n.CompareAndSwap(old, old+1) {
			return
		}
	}
}

// Release drops one outstanding lease, running cleanup exactly once when
// the count reaches zero. Releasing more times than acquired is a
// programming error.
func (l *Lease) Release() {
	n := l.n.Add(-1)
	switch {
	case n == 0:
		l.cleanup()
	case n < 0:
		panic(errors.New("refcount: Release called more times than Acquire"))
	}
}

// Count reports the current number of outstanding leases. Intended for
// tests (testable property 8, "lease conservation") and assertions, not for
// control flow racing against concurrent Acquire/Release.
func (l *Lease) Count() int64 { return l.n.Load() }
