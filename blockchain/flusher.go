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
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/kv"
)

// flushJob is one CommittedBlock handed to the Flusher, holding the lease
// transferred to it by Finalize.
type flushJob struct {
	cb *CommittedBlock
}

// Flusher drains finalized blocks into the paged database on a background
// goroutine, batching several blocks per write transaction up to
// MinFlushDelay (spec §4.6, component C10).
type Flusher struct {
	bc     *Blockchain
	queue  chan flushJob
	done   chan struct{}
	logger *zap.Logger

	onFailure       func(error)
	verifyRequested atomic.Bool // set via Blockchain.VerifyDBIntegrityOnCommit, consumed by the next flushBatch
}

func newFlusher(bc *Blockchain, queueLimit uint32) *Flusher {
	capacity := 256
	if queueLimit > 0 {
		capacity = int(queueLimit)
	}
	f := &Flusher{
		bc:     bc,
		queue:  make(chan flushJob, capacity),
		done:   make(chan struct{}),
		logger: bc.logger.Named("flusher"),
	}
	go f.run()
	return f
}

// enqueue hands cb (already leased for the Flusher) to the background
// goroutine; the caller must have called BlockIndex.incPending first.
func (f *Flusher) enqueue(cb *CommittedBlock) {
	f.queue <- flushJob{cb: cb}
}

func (f *Flusher) run() {
	defer close(f.done)
	ticker := time.NewTicker(f.bc.opts.MinFlushDelay)
	defer ticker.Stop()

	var pending []flushJob
	for {
		select {
		case job, ok := <-f.queue:
			if !ok {
				f.flushBatch(pending)
				return
			}
			pending = append(pending, job)
			continue
		case <-ticker.C:
		}
		if len(pending) == 0 {
			continue
		}
		if !f.flushBatch(pending) {
			return
		}
		pending = nil
	}
}

// flushBatch writes every queued block to one write transaction in order
// (oldest first, since jobs arrive in commit order) and releases each
// block's transferred lease once persisted. It reports false if the batch
// failed, after which the Flusher goroutine stops.
func (f *Flusher) flushBatch(jobs []flushJob) bool {
	if len(jobs) == 0 {
		return true
	}
	wb, err := f.bc.db.BeginNextBatch()
	if err != nil {
		f.fail(err)
		return false
	}
	if f.verifyRequested.CompareAndSwap(true, false) {
		wb.VerifyDBPagesOnCommit()
	}

	for _, job := range jobs {
		if err := f.applyBlock(wb, job.cb); err != nil {
			_ = wb.Close()
			f.fail(err)
			return false
		}
	}

	if err := wb.Commit(kv.FlushDataOnly); err != nil {
		f.fail(err)
		return false
	}

	for _, job := range jobs {
		f.bc.index.decPending()
		f.bc.accessor.OnCommitToDatabase(job.cb)
		if f.bc.onFlushed != nil {
			f.bc.onFlushed(job.cb.Hash(), job.cb.BlockNumber())
		}
		job.cb.Release()
	}
	return true
}

// applyBlock writes cb's merged dict to wb: persistent entries via SetRaw
// (after the behavior's optional InspectBeforeApply rewrite), and destroyed
// accounts via a single prefix delete each, per spec §4.6 steps 1-2.
func (f *Flusher) applyBlock(wb kv.WriteBatch, cb *CommittedBlock) error {
	for addr := range cb.destroyed {
		if err := wb.Destroy(common.FullPath(addr)); err != nil {
			return err
		}
	}

	c := cb.dict.Iterate()
	var scratch [256]byte
	for {
		key, _, value, meta, destroyed, ok := c.Next()
		if !ok {
			break
		}
		if destroyed || meta != MetaPersistent {
			continue
		}
		decoded, _, err := common.ReadKeyFrom(key)
		if err != nil {
			return err
		}
		out := value
		if f.bc.behavior != nil {
			out = f.bc.behavior.InspectBeforeApply(decoded, value, scratch[:0])
		}
		if err := wb.SetRaw(key, out); err != nil {
			return err
		}
	}

	if err := wb.SetMetadata(cb.blockNumber, cb.hash); err != nil {
		return err
	}
	return nil
}

func (f *Flusher) fail(err error) {
	err = fmt.Errorf("%w: %w", ErrFlusherFailed, err)
	f.logger.Error("flusher aborted", zap.Error(err))
	if f.onFailure != nil {
		f.onFailure(err)
	}
}

// Close stops accepting new jobs and waits for the in-flight batch (if any)
// to drain.
func (f *Flusher) Close() {
	close(f.queue)
	<-f.done
}
