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

import "github.com/ledgerwatch/paprika/spandict"

// The three meta tags spec §4 attaches to SpanDict entries. SpanDict itself
// never interprets spandict.Meta; these constants give it meaning within
// this package.
const (
	// MetaPersistent entries survive into the CommittedBlock's merged dict
	// and get written to the paged store by the Flusher.
	MetaPersistent spandict.Meta = iota
	// MetaCached marks a value written back into state/storage purely as a
	// read-through cache (spec §4.4 "write the value back ... with tag
	// Cached"); it still survives a commit (it isn't UseOnce) because it's
	// a faithful copy of an ancestor's or the database's authoritative
	// value, not scratch.
	MetaCached
	// MetaUseOnce entries are pre_commit scratch discarded when the block
	// is sealed (spec glossary "use-once entry"); Commit's CopyTo calls
	// filter these out of the merged dict.
	MetaUseOnce
)

// notUseOnce is the predicate Commit passes to SpanDict.CopyTo for all
// three source dicts (spec §9 resolves the open question: state, storage
// and pre_commit are all filtered consistently).
func notUseOnce(m spandict.Meta) bool { return m != MetaUseOnce }
