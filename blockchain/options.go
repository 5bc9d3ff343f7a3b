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
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/ledgerwatch/paprika/precommit"
)

// CacheBudget mirrors spec §6's cache_budget_state_and_storage /
// cache_budget_pre_commit Options fields.
type CacheBudget = precommit.CacheBudget

// Options configures a Blockchain (spec §6).
type Options struct {
	// MinFlushDelay is the Flusher's wall-clock batching budget (spec
	// §4.6). Default 1s.
	MinFlushDelay time.Duration

	// CacheBudgetStateAndStorage bounds how many entries per block the
	// read-caching heuristic (spec §4.4 "write the value back ... with tag
	// Cached") is willing to populate. CacheBudgetPreCommit is passed to the
	// pre-commit Behavior's BeforeCommit.
	CacheBudgetStateAndStorage CacheBudget
	CacheBudgetPreCommit       CacheBudget

	// FinalizationQueueLimit bounds the Flusher's input channel and the
	// number of finalized-but-unflushed blocks Finalize allows before it
	// waits. 0 means Finalize applies no such limit of its own; the channel
	// then holds 256 blocks, and Finalize blocks while it is full.
	FinalizationQueueLimit uint32

	// PageSize is the pagepool.Pool page size backing every BitFilter and
	// SpanDict bucket table; expressed as a datasize.ByteSize so callers
	// can write e.g. 4*datasize.KB, matching the teacher's own mix of
	// datasize.ByteSize and time.Duration config fields.
	PageSize datasize.ByteSize
}

// Option mutates an Options being built by NewOptions.
type Option func(*Options)

// NewOptions returns the default Options with every opts applied on top.
func NewOptions(opts ...Option) Options {
	o := Options{
		MinFlushDelay:              time.Second,
		CacheBudgetStateAndStorage: CacheBudget{EntriesPerBlock: 4096},
		CacheBudgetPreCommit:       CacheBudget{EntriesPerBlock: 4096},
		FinalizationQueueLimit:     0,
		PageSize:                   4 * datasize.KB,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithMinFlushDelay(d time.Duration) Option {
	return func(o *Options) { o.MinFlushDelay = d }
}

func WithCacheBudgets(stateAndStorage, preCommit CacheBudget) Option {
	return func(o *Options) {
		o.CacheBudgetStateAndStorage = stateAndStorage
		o.CacheBudgetPreCommit = preCommit
	}
}

func WithFinalizationQueueLimit(n uint32) Option {
	return func(o *Options) { o.FinalizationQueueLimit = n }
}

func WithPageSize(size datasize.ByteSize) Option {
	return func(o *Options) { o.PageSize = size }
}
