// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txwire

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// TxVersion is the version number used when constructing new
	// transactions.
	TxVersion uint32 = 2

	// MaxTxInSequenceNum is the maximum sequence number a transaction
	// input may carry.
	MaxTxInSequenceNum uint32 = 0xffffffff

	// MaxLockTime is the exclusive upper bound for a transaction lock
	// time as accepted from callers.
	MaxLockTime = uint64(0xffffffff)

	// maxTxPayload is the sanity cap on the total serialized size of a
	// single transaction.  Claimed counts and lengths implying a larger
	// transaction are rejected before any allocation.
	maxTxPayload = 1000 * 4000

	// minTxInSize is the serialized size of a transaction input with an
	// empty signature script: 32 byte hash, 4 byte index, 1 byte script
	// length and 4 byte sequence.
	minTxInSize = 32 + 4 + 1 + 4

	// minTxOutSize is the serialized size of a transaction output with
	// an empty pkscript: 8 byte value and 1 byte script length.
	minTxOutSize = 8 + 1

	// maxTxInPerTx and maxTxOutPerTx are the maximum input and output
	// counts a claimed varint may describe.
	maxTxInPerTx  = maxTxPayload / minTxInSize
	maxTxOutPerTx = maxTxPayload / minTxOutSize

	// maxWitnessItemsPerInput is the sanity cap on the number of witness
	// stack items a single input may claim.
	maxWitnessItemsPerInput = 500000

	// segwitMarker and segwitFlag are the bytes that distinguish the
	// extended (witness-carrying) encoding from the legacy one.
	segwitMarker = 0x00
	segwitFlag   = 0x01

	// defaultTxInOutAlloc is the initial slice capacity for inputs and
	// outputs when constructing a transaction.
	defaultTxInOutAlloc = 8
)

// OutPoint references an output of a previous transaction by the
// transaction hash and the output index within it.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new outpoint for the provided hash and index.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{Hash: *hash, Index: index}
}

// String returns the outpoint in the canonical "hash:index" form.
func (o OutPoint) String() string {
	return fmt.Sprintf("%v:%d", o.Hash, o.Index)
}

// TxWitness is the ordered witness stack of a transaction input.
type TxWitness [][]byte

// SerializeSize returns the number of bytes it would take to serialize
// the witness stack.
func (w TxWitness) SerializeSize() int {
	n := wire.VarIntSerializeSize(uint64(len(w)))
	for _, item := range w {
		n += wire.VarIntSerializeSize(uint64(len(item))) + len(item)
	}
	return n
}

// TxIn defines a transaction input.  SignatureScript and Witness start
// out empty and are only populated by signing.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Witness          TxWitness
	Sequence         uint32
}

// NewTxIn returns a new transaction input spending the provided
// previous outpoint with the maximum (final) sequence number.
func NewTxIn(prevOut *OutPoint, signatureScript []byte) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		SignatureScript:  signatureScript,
		Sequence:         MaxTxInSequenceNum,
	}
}

// serializeSize returns the serialized size of the input, excluding any
// witness data.
func (t *TxIn) serializeSize() int {
	return 32 + 4 + 4 +
		wire.VarIntSerializeSize(uint64(len(t.SignatureScript))) +
		len(t.SignatureScript)
}

// TxOut defines a transaction output.  Value is in satoshi.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// NewTxOut returns a new transaction output paying the given value to
// the given pkscript.
func NewTxOut(value int64, pkScript []byte) *TxOut {
	return &TxOut{Value: value, PkScript: pkScript}
}

func (t *TxOut) serializeSize() int {
	return 8 + wire.VarIntSerializeSize(uint64(len(t.PkScript))) +
		len(t.PkScript)
}

// Tx is the in-memory form of a transaction.  Version and LockTime
// carry the raw 32-bit wire values; a caller holding a negative signed
// version must pass its unsigned bit pattern.
type Tx struct {
	Version  uint32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// NewTx returns an empty transaction with the current version.
func NewTx() *Tx {
	return &Tx{
		Version: TxVersion,
		TxIn:    make([]*TxIn, 0, defaultTxInOutAlloc),
		TxOut:   make([]*TxOut, 0, defaultTxInOutAlloc),
	}
}

// AddTxIn appends the input to the transaction, preserving order.
func (tx *Tx) AddTxIn(ti *TxIn) {
	tx.TxIn = append(tx.TxIn, ti)
}

// AddTxOut appends the output to the transaction, preserving order.
func (tx *Tx) AddTxOut(to *TxOut) {
	tx.TxOut = append(tx.TxOut, to)
}

// HasWitness returns whether any input carries witness data.
func (tx *Tx) HasWitness() bool {
	for _, ti := range tx.TxIn {
		if len(ti.Witness) > 0 {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the transaction.  Signing and combining
// operate on copies so the caller's instance is never mutated.
func (tx *Tx) Copy() *Tx {
	newTx := Tx{
		Version:  tx.Version,
		LockTime: tx.LockTime,
		TxIn:     make([]*TxIn, 0, len(tx.TxIn)),
		TxOut:    make([]*TxOut, 0, len(tx.TxOut)),
	}
	for _, old := range tx.TxIn {
		newTxIn := TxIn{
			PreviousOutPoint: old.PreviousOutPoint,
			Sequence:         old.Sequence,
		}
		if len(old.SignatureScript) > 0 {
			newTxIn.SignatureScript = make([]byte, len(old.SignatureScript))
			copy(newTxIn.SignatureScript, old.SignatureScript)
		}
		if len(old.Witness) > 0 {
			newTxIn.Witness = make(TxWitness, len(old.Witness))
			for i, item := range old.Witness {
				newTxIn.Witness[i] = make([]byte, len(item))
				copy(newTxIn.Witness[i], item)
			}
		}
		newTx.TxIn = append(newTx.TxIn, &newTxIn)
	}
	for _, old := range tx.TxOut {
		newTxOut := TxOut{Value: old.Value}
		if len(old.PkScript) > 0 {
			newTxOut.PkScript = make([]byte, len(old.PkScript))
			copy(newTxOut.PkScript, old.PkScript)
		}
		newTx.TxOut = append(newTx.TxOut, &newTxOut)
	}
	return &newTx
}

// TxHash computes the transaction identifier: the double SHA-256 of the
// serialization without witness data, so the id is not malleable
// through the witness.
func (tx *Tx) TxHash() chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, tx.BaseSize()))
	_ = tx.serialize(buf, false)
	return chainhash.DoubleHashH(buf.Bytes())
}

// WitnessHash computes the hash of the full serialization including any
// witness data.  For transactions without witnesses it equals TxHash.
func (tx *Tx) WitnessHash() chainhash.Hash {
	if !tx.HasWitness() {
		return tx.TxHash()
	}
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
	_ = tx.serialize(buf, true)
	return chainhash.DoubleHashH(buf.Bytes())
}

// BaseSize returns the serialized size excluding witness data.
func (tx *Tx) BaseSize() int {
	n := 4 + 4 + wire.VarIntSerializeSize(uint64(len(tx.TxIn))) +
		wire.VarIntSerializeSize(uint64(len(tx.TxOut)))
	for _, ti := range tx.TxIn {
		n += ti.serializeSize()
	}
	for _, to := range tx.TxOut {
		n += to.serializeSize()
	}
	return n
}

// SerializeSize returns the full serialized size, including the segwit
// marker, flag and witness data when any input carries a witness.
func (tx *Tx) SerializeSize() int {
	n := tx.BaseSize()
	if tx.HasWitness() {
		n += 2
		for _, ti := range tx.TxIn {
			n += ti.Witness.SerializeSize()
		}
	}
	return n
}

// Weight returns the transaction weight: base size counted four times
// plus the witness portion counted once.
func (tx *Tx) Weight() int {
	base := tx.BaseSize()
	total := tx.SerializeSize()
	return base*3 + total
}

// VSize returns the virtual size in vbytes, the unit fee-rate policy is
// expressed in.  It is the weight divided by four, rounded up.
func (tx *Tx) VSize() int {
	return (tx.Weight() + 3) / 4
}

// Serialize encodes the transaction to w, using the extended encoding
// when any input carries witness data.
func (tx *Tx) Serialize(w io.Writer) error {
	return tx.serialize(w, tx.HasWitness())
}

// SerializeNoWitness encodes the transaction to w in the legacy format,
// dropping any witness data.
func (tx *Tx) SerializeNoWitness(w io.Writer) error {
	return tx.serialize(w, false)
}

// Bytes returns the full serialization of the transaction.
func (tx *Tx) Bytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, tx.SerializeSize()))
	if err := tx.Serialize(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (tx *Tx) serialize(w io.Writer, witness bool) error {
	if err := putUint32(w, tx.Version); err != nil {
		return err
	}
	witness = witness && tx.HasWitness()
	if witness {
		if _, err := w.Write([]byte{segwitMarker, segwitFlag}); err != nil {
			return err
		}
	}
	if err := wire.WriteVarInt(w, 0, uint64(len(tx.TxIn))); err != nil {
		return err
	}
	for _, ti := range tx.TxIn {
		if err := writeTxIn(w, ti); err != nil {
			return err
		}
	}
	if err := wire.WriteVarInt(w, 0, uint64(len(tx.TxOut))); err != nil {
		return err
	}
	for _, to := range tx.TxOut {
		if err := writeTxOut(w, to); err != nil {
			return err
		}
	}
	if witness {
		for _, ti := range tx.TxIn {
			if err := writeWitness(w, ti.Witness); err != nil {
				return err
			}
		}
	}
	return putUint32(w, tx.LockTime)
}

// Deserialize decodes a transaction from r using the extended encoding
// when the segwit marker is present.
func (tx *Tx) Deserialize(r io.Reader) error {
	return tx.deserialize(r, true)
}

// DeserializeNoWitness decodes a transaction from r using the legacy
// encoding only.  A leading zero input count is taken literally.
func (tx *Tx) DeserializeNoWitness(r io.Reader) error {
	return tx.deserialize(r, false)
}

// NewTxFromBytes decodes a transaction from its full serialization.
// When tryWitness is set the extended encoding is attempted first, with
// a fallback to the legacy encoding, mirroring how raw decode calls
// behave on nodes.  Trailing bytes are rejected.
func NewTxFromBytes(serialized []byte, tryWitness bool) (*Tx, error) {
	if tryWitness {
		var wtx Tx
		br := bytes.NewReader(serialized)
		werr := wtx.Deserialize(br)
		if werr == nil {
			if br.Len() == 0 {
				return &wtx, nil
			}
			werr = decodeErrorf(FieldTrailing,
				"%d unparsed bytes after transaction", br.Len())
		}

		// Fall back to a strict legacy parse.  When that fails too,
		// the witness-path error is the more precise one to report.
		var ltx Tx
		lbr := bytes.NewReader(serialized)
		if lerr := ltx.DeserializeNoWitness(lbr); lerr == nil &&
			lbr.Len() == 0 {

			return &ltx, nil
		}
		return nil, werr
	}

	var tx Tx
	br := bytes.NewReader(serialized)
	if err := tx.DeserializeNoWitness(br); err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		return nil, decodeErrorf(FieldTrailing,
			"%d unparsed bytes after transaction", br.Len())
	}
	return &tx, nil
}

// NewTxFromHex decodes a transaction from its canonical hex text form.
func NewTxFromHex(hexStr string, tryWitness bool) (*Tx, error) {
	serialized, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, decodeError(FieldTrailing,
			fmt.Errorf("transaction is not valid hex: %w", err))
	}
	return NewTxFromBytes(serialized, tryWitness)
}

func (tx *Tx) deserialize(r io.Reader, allowWitness bool) error {
	version, err := getUint32(r)
	if err != nil {
		return decodeError(FieldVersion, err)
	}
	tx.Version = version

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return decodeError(FieldInputCount, err)
	}

	haveWitness := false
	if allowWitness && count == segwitMarker {
		var flag [1]byte
		if _, err := io.ReadFull(r, flag[:]); err != nil {
			return decodeError(FieldSegwitFlag, err)
		}
		if flag[0] != segwitFlag {
			return decodeErrorf(FieldSegwitFlag,
				"unsupported flag 0x%02x", flag[0])
		}
		haveWitness = true
		count, err = wire.ReadVarInt(r, 0)
		if err != nil {
			return decodeError(FieldInputCount, err)
		}
	}
	if count > maxTxInPerTx {
		return decodeErrorf(FieldInputCount,
			"too many inputs: %d (max %d)", count, maxTxInPerTx)
	}

	tx.TxIn = make([]*TxIn, 0, count)
	for i := uint64(0); i < count; i++ {
		ti, err := readTxIn(r)
		if err != nil {
			return err
		}
		tx.TxIn = append(tx.TxIn, ti)
	}

	outCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return decodeError(FieldOutputCount, err)
	}
	if outCount > maxTxOutPerTx {
		return decodeErrorf(FieldOutputCount,
			"too many outputs: %d (max %d)", outCount, maxTxOutPerTx)
	}
	tx.TxOut = make([]*TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		to, err := readTxOut(r)
		if err != nil {
			return err
		}
		tx.TxOut = append(tx.TxOut, to)
	}

	if haveWitness {
		for _, ti := range tx.TxIn {
			witness, err := readWitness(r)
			if err != nil {
				return err
			}
			ti.Witness = witness
		}
	}

	lockTime, err := getUint32(r)
	if err != nil {
		return decodeError(FieldLockTime, err)
	}
	tx.LockTime = lockTime
	return nil
}

func writeTxIn(w io.Writer, ti *TxIn) error {
	if _, err := w.Write(ti.PreviousOutPoint.Hash[:]); err != nil {
		return err
	}
	if err := putUint32(w, ti.PreviousOutPoint.Index); err != nil {
		return err
	}
	if err := writeVarBytes(w, ti.SignatureScript); err != nil {
		return err
	}
	return putUint32(w, ti.Sequence)
}

func readTxIn(r io.Reader) (*TxIn, error) {
	var ti TxIn
	if _, err := io.ReadFull(r, ti.PreviousOutPoint.Hash[:]); err != nil {
		return nil, decodeError(FieldOutPoint, err)
	}
	index, err := getUint32(r)
	if err != nil {
		return nil, decodeError(FieldOutPoint, err)
	}
	ti.PreviousOutPoint.Index = index
	ti.SignatureScript, err = readVarBytes(r, FieldSignatureScript)
	if err != nil {
		return nil, err
	}
	ti.Sequence, err = getUint32(r)
	if err != nil {
		return nil, decodeError(FieldSequence, err)
	}
	return &ti, nil
}

func writeTxOut(w io.Writer, to *TxOut) error {
	if err := putUint64(w, uint64(to.Value)); err != nil {
		return err
	}
	return writeVarBytes(w, to.PkScript)
}

func readTxOut(r io.Reader) (*TxOut, error) {
	var to TxOut
	value, err := getUint64(r)
	if err != nil {
		return nil, decodeError(FieldValue, err)
	}
	to.Value = int64(value)
	to.PkScript, err = readVarBytes(r, FieldPkScript)
	if err != nil {
		return nil, err
	}
	return &to, nil
}

func writeWitness(w io.Writer, witness TxWitness) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(witness))); err != nil {
		return err
	}
	for _, item := range witness {
		if err := writeVarBytes(w, item); err != nil {
			return err
		}
	}
	return nil
}

func readWitness(r io.Reader) (TxWitness, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, decodeError(FieldWitnessCount, err)
	}
	if count > maxWitnessItemsPerInput {
		return nil, decodeErrorf(FieldWitnessCount,
			"too many witness items: %d (max %d)", count,
			maxWitnessItemsPerInput)
	}
	if count == 0 {
		return nil, nil
	}
	witness := make(TxWitness, 0, count)
	for i := uint64(0); i < count; i++ {
		item, err := readVarBytes(r, FieldWitnessItem)
		if err != nil {
			return nil, err
		}
		witness = append(witness, item)
	}
	return witness, nil
}

func writeVarBytes(w io.Writer, b []byte) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader, field string) ([]byte, error) {
	length, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, decodeError(field, err)
	}
	if length > maxTxPayload {
		return nil, decodeErrorf(field,
			"claimed length %d exceeds maximum %d", length, maxTxPayload)
	}
	if length == 0 {
		return nil, nil
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, decodeError(field, err)
	}
	return b, nil
}

func putUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func getUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func putUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func getUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
