// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txquery resolves transaction identifiers to their encoded
// form, either through an optional transaction index or by membership
// in a caller-specified block.
package txquery

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/txforge/txforge/chain"
	"github.com/txforge/txforge/txwire"
)

// Index is the optional full transaction index capability.  It is
// injected at construction, so the indexed and non-indexed error paths
// are a construction-time choice.
type Index interface {
	// FetchTx returns the serialized transaction for txid, or
	// (nil, nil) when the index does not contain it.
	FetchTx(txid chainhash.Hash) ([]byte, error)
}

// Lookup errors.
var (
	// ErrNoSuchTx is returned when the transaction cannot be found with
	// the available capabilities.  The message steers the caller toward
	// running an index or supplying a block hash.
	ErrNoSuchTx = errors.New("No such transaction. Use a transaction " +
		"index or provide a block hash to enable blockchain " +
		"transaction queries")

	// ErrNotFoundInBlock is returned when the hinted block exists but
	// does not contain the transaction.
	ErrNotFoundInBlock = errors.New(
		"No such transaction found in the provided block")

	// ErrBlockNotFound is returned when the hinted block hash is
	// unknown on any chain.
	ErrBlockNotFound = errors.New("Block hash not found")

	// ErrGenesisCoinbase is returned for the genesis block's coinbase,
	// which is exempt from ordinary spendability and indexing rules and
	// therefore deliberately not reported as merely missing.
	ErrGenesisCoinbase = errors.New("The genesis block coinbase is not " +
		"considered an ordinary transaction")
)

// BlockHashError reports a block hash hint of the wrong length or with
// non-hexadecimal content.
type BlockHashError struct {
	Value string
}

// Error satisfies the error interface.
func (e *BlockHashError) Error() string {
	if len(e.Value) != chainhash.MaxHashStringSize {
		return fmt.Sprintf("blockhash must be of length %d (not %d, "+
			"for '%s')", chainhash.MaxHashStringSize, len(e.Value),
			e.Value)
	}
	return fmt.Sprintf("blockhash must be hexadecimal string (not '%s')",
		e.Value)
}

// ParseBlockHash validates and parses a caller-supplied block hash
// hint, reporting length and format failures separately.
func ParseBlockHash(s string) (*chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return nil, &BlockHashError{Value: s}
	}
	if _, err := hex.DecodeString(s); err != nil {
		return nil, &BlockHashError{Value: s}
	}
	return chainhash.NewHashFromStr(s)
}

// Result is a successful lookup.  InActiveChain is only set when the
// lookup went through a block hint; it is recomputed on every call, so
// invalidating or reconsidering the containing block changes the answer
// for identical arguments.
type Result struct {
	Tx            *txwire.Tx
	TxBytes       []byte
	BlockHash     *chainhash.Hash
	InActiveChain *bool
}

// Service performs transaction lookups against a chain view and an
// optional transaction index.
type Service struct {
	view            chain.View
	index           Index
	genesisCoinbase chainhash.Hash
}

// New returns a lookup service.  index may be nil, in which case only
// block-hinted lookups can succeed.
func New(view chain.View, index Index, params *chaincfg.Params) *Service {
	return &Service{
		view:            view,
		index:           index,
		genesisCoinbase: params.GenesisBlock.Transactions[0].TxHash(),
	}
}

// Lookup resolves txid to its encoded transaction.  With no block hint
// the optional index is consulted; with a hint the block must exist and
// contain the transaction, and the result reports whether that block is
// currently part of the active chain.
func (s *Service) Lookup(txid chainhash.Hash, blockHash *chainhash.Hash) (*Result, error) {
	if txid == s.genesisCoinbase {
		return nil, ErrGenesisCoinbase
	}

	if blockHash == nil {
		return s.lookupIndexed(txid)
	}
	return s.lookupInBlock(txid, *blockHash)
}

func (s *Service) lookupIndexed(txid chainhash.Hash) (*Result, error) {
	if s.index == nil {
		return nil, ErrNoSuchTx
	}
	serialized, err := s.index.FetchTx(txid)
	if err != nil {
		return nil, err
	}
	if serialized == nil {
		return nil, ErrNoSuchTx
	}
	tx, err := txwire.NewTxFromBytes(serialized, true)
	if err != nil {
		return nil, err
	}
	return &Result{Tx: tx, TxBytes: serialized}, nil
}

func (s *Service) lookupInBlock(txid chainhash.Hash, blockHash chainhash.Hash) (*Result, error) {
	exists, err := s.view.BlockExists(blockHash)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBlockNotFound
	}

	txns, err := s.view.BlockTransactions(blockHash)
	if err != nil {
		return nil, err
	}
	for _, tx := range txns {
		if tx.TxHash() != txid {
			continue
		}

		// Queried live on every call rather than cached: a reorg or an
		// invalidated block must flip this without new arguments.
		active, err := s.view.IsActiveChain(blockHash)
		if err != nil {
			return nil, err
		}
		serialized, err := tx.Bytes()
		if err != nil {
			return nil, err
		}
		log.Tracef("Found %v in block %v (active=%v)", txid,
			blockHash, active)
		return &Result{
			Tx:            tx,
			TxBytes:       serialized,
			BlockHash:     &blockHash,
			InActiveChain: &active,
		}, nil
	}
	return nil, ErrNotFoundInBlock
}
