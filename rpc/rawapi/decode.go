// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rawapi

import (
	"encoding/hex"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/txforge/txforge/txwire"
)

// Vin is the decoded form of one input.
type Vin struct {
	Txid      string
	Vout      uint32
	ScriptSig string
	Witness   []string
	Sequence  uint32
}

// Vout is the decoded form of one output.  Value is a decimal BTC
// string; the satoshi integer never leaves the core with any precision
// lost.
type Vout struct {
	Value        string
	ValueSat     int64
	N            uint32
	ScriptPubKey string
	Type         string
}

// DecodedTx is the structured form of a decoded transaction.
type DecodedTx struct {
	Txid     string
	Hash     string
	Version  uint32
	Size     int
	VSize    int
	Weight   int
	LockTime uint32
	Vin      []Vin
	Vout     []Vout
}

// DecodeRawTransaction decodes a hex-encoded transaction into its
// structured form.  tryWitness selects whether the extended encoding is
// attempted before falling back to the legacy one.
func (a *API) DecodeRawTransaction(hexStr string, tryWitness bool) (*DecodedTx, error) {
	serialized, err := decodeHexStr(hexStr)
	if err != nil {
		return nil, err
	}
	tx, err := txwire.NewTxFromBytes(serialized, tryWitness)
	if err != nil {
		return nil, ErrTxDecodeFailed
	}
	return decodeTx(tx), nil
}

func decodeTx(tx *txwire.Tx) *DecodedTx {
	decoded := &DecodedTx{
		Txid:     tx.TxHash().String(),
		Hash:     tx.WitnessHash().String(),
		Version:  tx.Version,
		Size:     tx.SerializeSize(),
		VSize:    tx.VSize(),
		Weight:   tx.Weight(),
		LockTime: tx.LockTime,
		Vin:      make([]Vin, 0, len(tx.TxIn)),
		Vout:     make([]Vout, 0, len(tx.TxOut)),
	}

	for _, txIn := range tx.TxIn {
		vin := Vin{
			Txid:      txIn.PreviousOutPoint.Hash.String(),
			Vout:      txIn.PreviousOutPoint.Index,
			ScriptSig: hex.EncodeToString(txIn.SignatureScript),
			Sequence:  txIn.Sequence,
		}
		for _, item := range txIn.Witness {
			vin.Witness = append(vin.Witness, hex.EncodeToString(item))
		}
		decoded.Vin = append(decoded.Vin, vin)
	}

	for n, txOut := range tx.TxOut {
		class := txscript.GetScriptClass(txOut.PkScript)
		decoded.Vout = append(decoded.Vout, Vout{
			Value:    formatBTC(btcutil.Amount(txOut.Value)),
			ValueSat: txOut.Value,
			N:        uint32(n),
			ScriptPubKey: hex.EncodeToString(
				txOut.PkScript,
			),
			Type: class.String(),
		})
	}
	return decoded
}

// formatBTC renders a satoshi amount as a fixed eight-decimal BTC
// string.
func formatBTC(amount btcutil.Amount) string {
	return strconv.FormatFloat(amount.ToBTC(), 'f', 8, 64)
}
