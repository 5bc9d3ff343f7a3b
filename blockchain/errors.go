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
	"fmt"

	"github.com/pkg/errors"
)

// MissingParent is returned synchronously from StartNew/StartReadOnly when
// the ancestor chain can't be built back to a known parent (spec §7).
type MissingParent struct {
	Hash   []byte
	Reason string
}

func (e *MissingParent) Error() string {
	return fmt.Sprintf("blockchain: missing parent %x: %s", e.Hash, e.Reason)
}

// ErrRawStateNotFinalized carries the message RawState.Dispose panics with
// when it is called before Finalize (spec §7).
var ErrRawStateNotFinalized = errors.New("blockchain: RawState disposed before Finalize")

// ErrFlusherFailed is wrapped around whatever error aborted the Flusher's
// goroutine; surfaced via the FlusherFailure event (spec §7).
var ErrFlusherFailed = errors.New("blockchain: flusher failed")

// programming-error panics. Every one of these corresponds to a spec §7
// "ProgrammingError": a contract violation that must abort rather than be
// recovered from, wrapped with pkg/errors so the panic carries a stack.

func panicProgrammingError(format string, args ...interface{}) {
	panic(errors.WithStack(fmt.Errorf("blockchain: programming error: "+format, args...)))
}
