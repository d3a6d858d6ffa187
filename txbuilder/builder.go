// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/txforge/txforge/txwire"
)

// Sequence numbers assigned to inputs that do not carry an explicit
// one.  A transaction with a lock time needs a non-final sequence for
// the lock time to be enforced, and an opt-in replaceable transaction
// needs a sequence low enough to signal replaceability.
const (
	sequenceFinal       = txwire.MaxTxInSequenceNum
	sequenceNonFinal    = txwire.MaxTxInSequenceNum - 1
	sequenceReplaceable = txwire.MaxTxInSequenceNum - 2
)

// InputSpec describes one input of a transaction under construction.
// Vout and Sequence are widened so out-of-range caller values are
// detected here rather than silently truncated.
type InputSpec struct {
	Txid     string
	Vout     int64
	Sequence *int64
}

// OutputSpec describes one output: either a destination address with an
// amount, or a hex-encoded data payload for a provably unspendable
// data-carrier output.  Exactly one of the two forms must be set.
type OutputSpec struct {
	Address string
	Amount  btcutil.Amount
	DataHex string
	IsData  bool
}

// Build validation errors.
var (
	ErrSequenceOutOfRange = errors.New(
		"Invalid parameter, sequence number is out of range")
	ErrLockTimeOutOfRange = errors.New(
		"Invalid parameter, locktime out of range")
	ErrVoutNegative = errors.New(
		"Invalid parameter, vout cannot be negative")
	ErrVoutOutOfRange = errors.New(
		"Invalid parameter, vout out of range")
	ErrAmountOutOfRange = errors.New("Amount out of range")
	ErrDataNotHex       = errors.New("Data must be hexadecimal string")
	ErrDuplicateData    = errors.New(
		"Invalid parameter, duplicate key: data")
)

// TxidError reports a transaction id of the wrong length or with
// non-hexadecimal content.
type TxidError struct {
	Value string
}

// Error satisfies the error interface.
func (e *TxidError) Error() string {
	if len(e.Value) != chainhash.MaxHashStringSize {
		return fmt.Sprintf("txid must be of length %d (not %d, for '%s')",
			chainhash.MaxHashStringSize, len(e.Value), e.Value)
	}
	return fmt.Sprintf("txid must be hexadecimal string (not '%s')",
		e.Value)
}

// AddressError reports a destination that does not resolve to a locking
// script on the target network.
type AddressError struct {
	Address string
	Err     error
}

// Error satisfies the error interface.
func (e *AddressError) Error() string {
	return fmt.Sprintf("Invalid address: %s", e.Address)
}

// Unwrap returns the underlying decode error.
func (e *AddressError) Unwrap() error {
	return e.Err
}

// DuplicateAddressError reports two outputs resolving to the same
// locking script.
type DuplicateAddressError struct {
	Address string
}

// Error satisfies the error interface.
func (e *DuplicateAddressError) Error() string {
	return fmt.Sprintf("Invalid parameter, duplicated address: %s",
		e.Address)
}

// Build constructs an unsigned transaction from the provided input and
// output specifications.  It is pure: no chain state is consulted, only
// the static network parameters needed to resolve addresses.  Input and
// output order is preserved exactly as given.
//
// Inputs without an explicit sequence default to final, lowered to
// non-final when a lock time is set and further when replaceable is
// requested.  An explicit sequence is preserved verbatim, even when it
// already signals replaceability.
func Build(params *chaincfg.Params, inputs []InputSpec, outputs []OutputSpec,
	lockTime int64, replaceable bool) (*txwire.Tx, error) {

	if lockTime < 0 || uint64(lockTime) >= txwire.MaxLockTime {
		return nil, ErrLockTimeOutOfRange
	}

	tx := txwire.NewTx()
	tx.LockTime = uint32(lockTime)

	defaultSequence := sequenceFinal
	if replaceable {
		defaultSequence = sequenceReplaceable
	} else if lockTime > 0 {
		defaultSequence = sequenceNonFinal
	}

	for _, in := range inputs {
		hash, err := parseTxid(in.Txid)
		if err != nil {
			return nil, err
		}
		if in.Vout < 0 {
			return nil, ErrVoutNegative
		}
		if in.Vout > math.MaxUint32 {
			return nil, ErrVoutOutOfRange
		}

		sequence := uint32(defaultSequence)
		if in.Sequence != nil {
			seq := *in.Sequence
			if seq < 0 || seq > int64(txwire.MaxTxInSequenceNum) {
				return nil, ErrSequenceOutOfRange
			}
			sequence = uint32(seq)
		}

		txIn := txwire.NewTxIn(
			txwire.NewOutPoint(hash, uint32(in.Vout)), nil,
		)
		txIn.Sequence = sequence
		tx.AddTxIn(txIn)
	}

	seenScripts := make(map[string]string, len(outputs))
	seenData := false
	for _, out := range outputs {
		if out.IsData {
			if seenData {
				return nil, ErrDuplicateData
			}
			seenData = true

			payload, err := hex.DecodeString(out.DataHex)
			if err != nil {
				return nil, ErrDataNotHex
			}
			pkScript, err := txscript.NullDataScript(payload)
			if err != nil {
				return nil, err
			}
			tx.AddTxOut(txwire.NewTxOut(0, pkScript))
			continue
		}

		if out.Amount < 0 || out.Amount > btcutil.MaxSatoshi {
			return nil, ErrAmountOutOfRange
		}
		addr, err := btcutil.DecodeAddress(out.Address, params)
		if err != nil {
			return nil, &AddressError{Address: out.Address, Err: err}
		}
		if !addr.IsForNet(params) {
			return nil, &AddressError{Address: out.Address}
		}
		pkScript, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, &AddressError{Address: out.Address, Err: err}
		}

		// Duplicates are keyed by the resolved script, so the same
		// destination written two different ways is still caught.
		key := string(pkScript)
		if _, ok := seenScripts[key]; ok {
			return nil, &DuplicateAddressError{Address: out.Address}
		}
		seenScripts[key] = out.Address

		tx.AddTxOut(txwire.NewTxOut(int64(out.Amount), pkScript))
	}

	return tx, nil
}

// parseTxid parses a 64 character hex transaction id, reporting length
// and hex failures separately.
func parseTxid(s string) (*chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return nil, &TxidError{Value: s}
	}
	if _, err := hex.DecodeString(s); err != nil {
		return nil, &TxidError{Value: s}
	}
	return chainhash.NewHashFromStr(s)
}
