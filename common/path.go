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

// MaxPathNibbles is the longest nibble path derivable from a single Hash.
const MaxPathNibbles = HashLength * 2

// Path is a variable-length nibble sequence derived from a Hash. Every
// nibble is stored in its own byte (0..15) so prefix comparisons don't need
// bit-shifting; the packed on-wire form is produced by AppendCompact.
type Path struct {
	nibbles []byte
}

// FullPath returns the 64-nibble path for the given hash (an account or
// storage-slot path taken to its leaf).
func FullPath(h Hash) Path {
	return PathN(h, MaxPathNibbles)
}

// PathN returns the first n nibbles of h's path. n must be <= MaxPathNibbles.
func PathN(h Hash, n int) Path {
	if n > MaxPathNibbles {
		n = MaxPathNibbles
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b := h[i/2]
		if i%2 == 0 {
			out[i] = b >> 4
		} else {
			out[i] = b & 0x0f
		}
	}
	return Path{nibbles: out}
}

func (p Path) Len() int { return len(p.nibbles) }

func (p Path) IsFull() bool { return len(p.nibbles) == MaxPathNibbles }

func (p Path) Nibble(i int) byte { return p.nibbles[i] }

// HasPrefix reports whether prefix's nibbles are a prefix of p's.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.nibbles) > len(p.nibbles) {
		return false
	}
	for i, n := range prefix.nibbles {
		if p.nibbles[i] != n {
			return false
		}
	}
	return true
}

func (p Path) Equal(o Path) bool {
	if len(p.nibbles) != len(o.nibbles) {
		return false
	}
	for i := range p.nibbles {
		if p.nibbles[i] != o.nibbles[i] {
			return false
		}
	}
	return true
}

// AsHash reassembles a full (64-nibble) path back into its source Hash. It
// panics if the path is not full; callers must check IsFull first.
func (p Path) AsHash() Hash {
	if !p.IsFull() {
		panic("common: Path.AsHash on a non-full path")
	}
	var h Hash
	for i := 0; i < MaxPathNibbles; i += 2 {
		h[i/2] = p.nibbles[i]<<4 | p.nibbles[i+1]
	}
	return h
}

// AppendCompact appends the packed (2 nibbles/byte, odd length marked in a
// leading length byte) on-wire form of p to buf and returns the result.
func (p Path) AppendCompact(buf []byte) []byte {
	buf = append(buf, byte(len(p.nibbles)))
	for i := 0; i < len(p.nibbles); i += 2 {
		hi := p.nibbles[i]
		var lo byte
		if i+1 < len(p.nibbles) {
			lo = p.nibbles[i+1]
		}
		buf = append(buf, hi<<4|lo)
	}
	return buf
}

// ReadCompactPath parses the form written by AppendCompact, returning the
// path and the remaining, unconsumed bytes.
func ReadCompactPath(b []byte) (Path, []byte, error) {
	if len(b) < 1 {
		return Path{}, nil, errShortPathBuf
	}
	n := int(b[0])
	b = b[1:]
	packedLen := (n + 1) / 2
	if len(b) < packedLen {
		return Path{}, nil, errShortPathBuf
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		byt := b[i/2]
		if i%2 == 0 {
			out[i] = byt >> 4
		} else {
			out[i] = byt & 0x0f
		}
	}
	return Path{nibbles: out}, b[packedLen:], nil
}

// CompactLen is the number of bytes AppendCompact will write for a path of
// length n nibbles.
func CompactLen(n int) int { return 1 + (n+1)/2 }
