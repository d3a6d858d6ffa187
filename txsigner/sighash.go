// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsigner

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/txforge/txforge/txwire"
)

// sigHashMask masks off the base hash type from any modifier flags.
const sigHashMask = 0x1f

// LegacySigHash computes the original signature digest for the input at
// idx, committing to subScript in place of the input's signature
// script.  subScript is the previous output script for plain inputs and
// the redeem script for pay-to-script-hash ones.
func LegacySigHash(tx *txwire.Tx, idx int, subScript []byte,
	hashType txscript.SigHashType) ([]byte, error) {

	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", idx)
	}

	// The SigHashSingle quirk: signing an input with no matching output
	// yields a fixed digest of one rather than an error.
	if hashType&sigHashMask == txscript.SigHashSingle &&
		idx >= len(tx.TxOut) {

		var hash chainhash.Hash
		hash[0] = 0x01
		return hash[:], nil
	}

	txCopy := tx.Copy()
	for i, ti := range txCopy.TxIn {
		ti.Witness = nil
		if i == idx {
			ti.SignatureScript = subScript
		} else {
			ti.SignatureScript = nil
		}
	}

	switch hashType & sigHashMask {
	case txscript.SigHashNone:
		txCopy.TxOut = nil
		for i, ti := range txCopy.TxIn {
			if i != idx {
				ti.Sequence = 0
			}
		}

	case txscript.SigHashSingle:
		txCopy.TxOut = txCopy.TxOut[:idx+1]
		for i := 0; i < idx; i++ {
			txCopy.TxOut[i] = &txwire.TxOut{Value: -1}
		}
		for i, ti := range txCopy.TxIn {
			if i != idx {
				ti.Sequence = 0
			}
		}
	}

	if hashType&txscript.SigHashAnyOneCanPay != 0 {
		txCopy.TxIn = txCopy.TxIn[idx : idx+1]
	}

	buf := bytes.NewBuffer(make([]byte, 0, txCopy.BaseSize()+4))
	if err := txCopy.SerializeNoWitness(buf); err != nil {
		return nil, err
	}
	var ht [4]byte
	binary.LittleEndian.PutUint32(ht[:], uint32(hashType))
	buf.Write(ht[:])

	hash := chainhash.DoubleHashH(buf.Bytes())
	return hash[:], nil
}

// WitnessSigHash computes the version 0 witness signature digest for
// the input at idx per the segregated witness digest rules, committing
// to the given script code and the value of the spent output.
func WitnessSigHash(tx *txwire.Tx, idx int, scriptCode []byte,
	amount btcutil.Amount, hashType txscript.SigHashType) ([]byte, error) {

	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", idx)
	}

	var zeroHash chainhash.Hash

	hashPrevouts := zeroHash
	if hashType&txscript.SigHashAnyOneCanPay == 0 {
		var b bytes.Buffer
		for _, ti := range tx.TxIn {
			b.Write(ti.PreviousOutPoint.Hash[:])
			var idxBuf [4]byte
			binary.LittleEndian.PutUint32(
				idxBuf[:], ti.PreviousOutPoint.Index,
			)
			b.Write(idxBuf[:])
		}
		hashPrevouts = chainhash.DoubleHashH(b.Bytes())
	}

	hashSequence := zeroHash
	if hashType&txscript.SigHashAnyOneCanPay == 0 &&
		hashType&sigHashMask != txscript.SigHashSingle &&
		hashType&sigHashMask != txscript.SigHashNone {

		var b bytes.Buffer
		for _, ti := range tx.TxIn {
			var seqBuf [4]byte
			binary.LittleEndian.PutUint32(seqBuf[:], ti.Sequence)
			b.Write(seqBuf[:])
		}
		hashSequence = chainhash.DoubleHashH(b.Bytes())
	}

	hashOutputs := zeroHash
	switch {
	case hashType&sigHashMask != txscript.SigHashSingle &&
		hashType&sigHashMask != txscript.SigHashNone:

		var b bytes.Buffer
		for _, to := range tx.TxOut {
			var valBuf [8]byte
			binary.LittleEndian.PutUint64(valBuf[:], uint64(to.Value))
			b.Write(valBuf[:])
			_ = wire.WriteVarInt(&b, 0, uint64(len(to.PkScript)))
			b.Write(to.PkScript)
		}
		hashOutputs = chainhash.DoubleHashH(b.Bytes())

	case hashType&sigHashMask == txscript.SigHashSingle &&
		idx < len(tx.TxOut):

		var b bytes.Buffer
		to := tx.TxOut[idx]
		var valBuf [8]byte
		binary.LittleEndian.PutUint64(valBuf[:], uint64(to.Value))
		b.Write(valBuf[:])
		_ = wire.WriteVarInt(&b, 0, uint64(len(to.PkScript)))
		b.Write(to.PkScript)
		hashOutputs = chainhash.DoubleHashH(b.Bytes())
	}

	var b bytes.Buffer
	var u32 [4]byte
	var u64 [8]byte

	binary.LittleEndian.PutUint32(u32[:], tx.Version)
	b.Write(u32[:])
	b.Write(hashPrevouts[:])
	b.Write(hashSequence[:])

	ti := tx.TxIn[idx]
	b.Write(ti.PreviousOutPoint.Hash[:])
	binary.LittleEndian.PutUint32(u32[:], ti.PreviousOutPoint.Index)
	b.Write(u32[:])

	_ = wire.WriteVarInt(&b, 0, uint64(len(scriptCode)))
	b.Write(scriptCode)

	binary.LittleEndian.PutUint64(u64[:], uint64(amount))
	b.Write(u64[:])
	binary.LittleEndian.PutUint32(u32[:], ti.Sequence)
	b.Write(u32[:])

	b.Write(hashOutputs[:])

	binary.LittleEndian.PutUint32(u32[:], tx.LockTime)
	b.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(hashType))
	b.Write(u32[:])

	hash := chainhash.DoubleHashH(b.Bytes())
	return hash[:], nil
}
