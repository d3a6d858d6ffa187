// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/txforge/txforge/txwire"
)

// PrevOut describes a previous output as known to the chain state: the
// locking script and value it was created with, and whether it has
// since been spent on the active chain.
type PrevOut struct {
	PkScript []byte
	Value    btcutil.Amount
	Spent    bool
}

// View provides read access to chain and UTXO state.  Implementations
// back onto a chain backend such as an RPC client or an SPV store, as
// long as a driver is written for it.  Answers may be stale with
// respect to concurrent chain mutation; callers treat them as a
// best-effort snapshot.
type View interface {
	// ResolveOutput returns the referenced output, or (nil, nil) when
	// the outpoint is unknown.
	ResolveOutput(op txwire.OutPoint) (*PrevOut, error)

	// HasActiveTx reports whether a transaction with the given id is
	// recorded in a block on the active chain.
	HasActiveTx(txid chainhash.Hash) (bool, error)

	// BlockExists reports whether a block with the given hash is known,
	// on any chain.
	BlockExists(hash chainhash.Hash) (bool, error)

	// BlockTransactions returns the ordered transactions of the given
	// block.
	BlockTransactions(hash chainhash.Hash) ([]*txwire.Tx, error)

	// IsActiveChain reports whether the given block is currently part
	// of the active chain.  The answer changes when blocks are
	// invalidated or reconsidered, so it must be queried live rather
	// than cached.
	IsActiveChain(hash chainhash.Hash) (bool, error)
}

// RejectError is returned by Mempool.Accept when a transaction fails
// the backing mempool's own checks.
type RejectError struct {
	Reason string
}

// Error satisfies the error interface.
func (e *RejectError) Error() string {
	return fmt.Sprintf("transaction rejected: %s", e.Reason)
}

// Mempool is the write side of transaction admission.  Policy checks in
// this module run before Accept is called.
type Mempool interface {
	Contains(txid chainhash.Hash) bool
	Accept(tx *txwire.Tx) error
}

// KeyStore is the signing oracle: it maps addresses derived from a
// locking script to private keys and pay-to-script-hash addresses to
// their redeem scripts.  A lookup miss is reported with a nil result
// and nil error so a signer can leave the input unsigned rather than
// abort.
type KeyStore interface {
	// KeyForAddress returns the private key for the address along with
	// whether the corresponding public key is serialized compressed.
	KeyForAddress(addr btcutil.Address) (*btcec.PrivateKey, bool, error)

	// ScriptForAddress returns the redeem script hashing to the given
	// P2SH address.
	ScriptForAddress(addr btcutil.Address) ([]byte, error)
}
