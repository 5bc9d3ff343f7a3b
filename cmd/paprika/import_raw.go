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
	"bufio"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/paprika/blockchain"
	"github.com/ledgerwatch/paprika/common"
	"github.com/ledgerwatch/paprika/kv/mdbxstore"
	"github.com/ledgerwatch/paprika/precommit/reference"
)

// newImportRawCommand wraps RawState for bulk-loading a starting state: it
// reads a flat text file of "address balance nonce" lines (the shape a
// genesis export would have) and writes each one directly, bypassing the
// block machinery entirely, then finalizes at block 0.
func newImportRawCommand() *cobra.Command {
	var (
		dbPath   string
		filePath string
	)
	cmd := &cobra.Command{
		Use:   "import-raw",
		Short: "bulk-load accounts from a flat file directly into the paged store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := mdbxstore.Open(mdbxstore.Options{Path: dbPath})
			if err != nil {
				return err
			}
			defer store.Close()

			bc, err := blockchain.New(store, &reference.Behavior{}, newLogger(false))
			if err != nil {
				return err
			}
			defer bc.DisposeAsync() //nolint:errcheck

			raw, err := bc.StartRaw()
			if err != nil {
				return err
			}

			n, err := importAccounts(raw, filePath)
			if err != nil {
				_ = raw.Abandon()
				return err
			}
			if err := raw.Finalize(0, common.ZeroHash); err != nil {
				return err
			}
			if err := raw.Dispose(); err != nil {
				return err
			}
			fmt.Printf("imported %d accounts\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "paprika.mdbx", "path to the mdbx data file")
	cmd.Flags().StringVar(&filePath, "file", "", "flat file of \"address balance nonce\" lines")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func importAccounts(raw *blockchain.RawState, filePath string) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return count, fmt.Errorf("import-raw: malformed line %q", line)
		}

		addrBytes, err := hex.DecodeString(strings.TrimPrefix(fields[0], "0x"))
		if err != nil {
			return count, fmt.Errorf("import-raw: bad address %q: %w", fields[0], err)
		}
		addr := common.BytesToHash(addrBytes)

		balanceBig, ok := new(big.Int).SetString(fields[1], 10)
		if !ok {
			return count, fmt.Errorf("import-raw: bad balance %q", fields[1])
		}
		balance, overflow := uint256.FromBig(balanceBig)
		if overflow {
			return count, fmt.Errorf("import-raw: balance %q overflows 256 bits", fields[1])
		}
		nonce, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return count, fmt.Errorf("import-raw: bad nonce %q: %w", fields[2], err)
		}

		acct := common.Account{
			Balance:     *balance,
			Nonce:       nonce,
			CodeHash:    common.ZeroHash,
			StorageRoot: common.EmptyTreeHash,
		}
		if err := raw.SetAccount(addr, acct); err != nil {
			return count, err
		}
		count++
	}
	return count, scanner.Err()
}
