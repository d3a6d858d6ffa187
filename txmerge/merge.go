// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txmerge combines multiple independently signed copies of the
// same unsigned transaction into the most complete result.  Partial
// threshold-multisig signatures are unioned by key slot; for anything
// else the most complete copy wins.  Combination is commutative and
// idempotent.
package txmerge

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/txforge/txforge/txsigner"
	"github.com/txforge/txforge/txwire"
)

// ErrNoTransactions is returned when Combine is called with nothing to
// combine.
var ErrNoTransactions = errors.New("no transactions to combine")

// MismatchError reports that the provided copies do not describe the
// same underlying transaction.  It is fatal: nothing is combined.
type MismatchError struct {
	Field string
	Index int
}

// Error satisfies the error interface.
func (e *MismatchError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("transaction copies disagree on %s at "+
			"position %d", e.Field, e.Index)
	}
	return fmt.Sprintf("transaction copies disagree on %s", e.Field)
}

// Combine merges the per-input unlocking data of the provided copies.
// All copies must be identical except for signature scripts and
// witnesses.  For each input, a copy carrying fully satisfying data
// wins outright; otherwise partial multisig signatures from all copies
// are unioned in canonical slot order (the order the keys appear in the
// redeem script).  A single copy is returned as a deep copy of itself.
func Combine(params *chaincfg.Params, copies []*txwire.Tx) (*txwire.Tx, error) {
	if len(copies) == 0 {
		return nil, ErrNoTransactions
	}

	base := copies[0].Copy()
	for _, other := range copies[1:] {
		if err := checkSameTx(base, other); err != nil {
			return nil, err
		}
	}
	if len(copies) == 1 {
		return base, nil
	}

	for idx := range base.TxIn {
		if err := combineInput(params, base, copies, idx); err != nil {
			return nil, err
		}
	}
	return base, nil
}

// checkSameTx verifies that two copies agree on every field other than
// per-input unlocking data.
func checkSameTx(a, b *txwire.Tx) error {
	if a.Version != b.Version {
		return &MismatchError{Field: "version", Index: -1}
	}
	if a.LockTime != b.LockTime {
		return &MismatchError{Field: "locktime", Index: -1}
	}
	if len(a.TxIn) != len(b.TxIn) {
		return &MismatchError{Field: "input count", Index: -1}
	}
	if len(a.TxOut) != len(b.TxOut) {
		return &MismatchError{Field: "output count", Index: -1}
	}
	for i := range a.TxIn {
		if a.TxIn[i].PreviousOutPoint != b.TxIn[i].PreviousOutPoint {
			return &MismatchError{Field: "previous outpoint", Index: i}
		}
		if a.TxIn[i].Sequence != b.TxIn[i].Sequence {
			return &MismatchError{Field: "sequence", Index: i}
		}
	}
	for i := range a.TxOut {
		if a.TxOut[i].Value != b.TxOut[i].Value {
			return &MismatchError{Field: "output value", Index: i}
		}
		if !bytes.Equal(a.TxOut[i].PkScript, b.TxOut[i].PkScript) {
			return &MismatchError{Field: "output script", Index: i}
		}
	}
	return nil
}

func combineInput(params *chaincfg.Params, base *txwire.Tx,
	copies []*txwire.Tx, idx int) error {

	digest := func(subScript []byte, ht txscript.SigHashType) ([]byte, error) {
		return txsigner.LegacySigHash(base, idx, subScript, ht)
	}

	var merged *txsigner.SigSlots
	var bestPlain *txwire.TxIn

	for _, copyTx := range copies {
		txIn := copyTx.TxIn[idx]
		if len(txIn.SignatureScript) == 0 && len(txIn.Witness) == 0 {
			continue
		}

		// A p2sh multisig signature script is self-describing: the
		// redeem script rides in its final push, so partial copies can
		// be parsed into slots and unioned without outside context.
		if len(txIn.Witness) == 0 {
			slots, err := txsigner.ParseSigScript(
				txIn.SignatureScript, params, digest,
			)
			if err == nil {
				if merged == nil {
					merged = slots
					continue
				}
				if mergeErr := merged.Merge(slots); mergeErr != nil {
					return &MismatchError{
						Field: "redeem script", Index: idx,
					}
				}
				continue
			}
		}

		if bestPlain == nil || moreComplete(txIn, bestPlain) {
			bestPlain = txIn
		}
	}

	switch {
	case merged != nil:
		sigScript, err := merged.SigScript(true)
		if err != nil {
			return err
		}
		base.TxIn[idx].SignatureScript = sigScript
		base.TxIn[idx].Witness = nil

	case bestPlain != nil:
		base.TxIn[idx].SignatureScript = bestPlain.SignatureScript
		base.TxIn[idx].Witness = bestPlain.Witness
	}
	return nil
}

// moreComplete reports whether a carries strictly more complete
// unlocking data than b.  More data pushes win; ties break to the
// lexicographically smaller serialization so the choice does not depend
// on argument order.
func moreComplete(a, b *txwire.TxIn) bool {
	ap, bp := pushCount(a), pushCount(b)
	if ap != bp {
		return ap > bp
	}
	return bytes.Compare(serializeUnlocking(a), serializeUnlocking(b)) < 0
}

func pushCount(t *txwire.TxIn) int {
	n := len(t.Witness)
	if pushes, err := txscript.PushedData(t.SignatureScript); err == nil {
		n += len(pushes)
	}
	return n
}

func serializeUnlocking(t *txwire.TxIn) []byte {
	var b bytes.Buffer
	b.Write(t.SignatureScript)
	for _, item := range t.Witness {
		b.WriteByte(0xff)
		b.Write(item)
	}
	return b.Bytes()
}
