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

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerwatch/paprika/blockchain"
	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/kv/mdbxstore"
	"github.com/ledgerwatch/paprika/precommit/reference"
)

func newServeCommand() *cobra.Command {
	var (
		dbPath       string
		verbose      bool
		minFlushSecs float64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "open the database and keep the Blockchain flushing in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			defer logger.Sync() //nolint:errcheck

			store, err := mdbxstore.Open(mdbxstore.Options{Path: dbPath})
			if err != nil {
				return err
			}
			defer store.Close()

			bc, err := blockchain.New(store, &reference.Behavior{AllowPrefetch: true}, logger,
				blockchain.WithMinFlushDelay(time.Duration(minFlushSecs*float64(time.Second))))
			if err != nil {
				return err
			}
			bc.OnFlushed(func(hash common.Hash, blockNumber uint64) {
				logger.Info("flushed", zap.Uint64("block", blockNumber), zap.Binary("hash", hash[:]))
			})
			bc.OnFlusherFailure(func(err error) {
				logger.Error("flusher failed", zap.Error(err))
			})

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			logger.Info("shutting down")
			return bc.DisposeAsync()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "paprika.mdbx", "path to the mdbx data file")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "use a development (console) logger")
	cmd.Flags().Float64Var(&minFlushSecs, "min-flush-delay", 1, "seconds the flusher waits to batch commits")
	return cmd
}
