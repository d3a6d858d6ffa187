// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rawapi implements the raw-transaction operations exposed to
// an RPC or CLI transport: create, decode, sign, combine, test-accept,
// send and get.  Hexadecimal is the canonical text encoding for every
// byte payload at this boundary, and decimal BTC strings are converted
// to fixed-point satoshi amounts here and nowhere deeper.
package rawapi

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/txforge/txforge/chain"
	"github.com/txforge/txforge/txbuilder"
	"github.com/txforge/txforge/txmerge"
	"github.com/txforge/txforge/txpolicy"
	"github.com/txforge/txforge/txquery"
	"github.com/txforge/txforge/txsigner"
	"github.com/txforge/txforge/txwire"
)

// Config bundles the external collaborators the raw-transaction
// operations run against.  Index may be nil when no transaction index
// is maintained.
type Config struct {
	Params   *chaincfg.Params
	View     chain.View
	Mempool  chain.Mempool
	KeyStore chain.KeyStore
	Index    txquery.Index
}

// API exposes the raw-transaction operations.
type API struct {
	params *chaincfg.Params
	view   chain.View
	signer *txsigner.Signer
	gate   *txpolicy.Gate
	lookup *txquery.Service
}

// New wires the operations to their collaborators.
func New(cfg *Config) *API {
	return &API{
		params: cfg.Params,
		view:   cfg.View,
		signer: txsigner.New(cfg.Params, cfg.KeyStore, cfg.View),
		gate:   txpolicy.New(cfg.View, cfg.Mempool),
		lookup: txquery.New(cfg.View, cfg.Index, cfg.Params),
	}
}

// InputParam is the caller-facing shape of one transaction input.
type InputParam struct {
	Txid     string
	Vout     int64
	Sequence *int64
}

// OutputParam is the caller-facing shape of one transaction output:
// either Address and Amount (a decimal BTC string), or Data (hex) with
// IsData set.
type OutputParam struct {
	Address string
	Amount  string
	Data    string
	IsData  bool
}

// CreateRawTransaction builds an unsigned transaction and returns its
// hex encoding.  Both inputs and outputs may be empty, producing a
// degenerate but valid transaction.
func (a *API) CreateRawTransaction(inputs []InputParam,
	outputs []OutputParam, lockTime *int64, replaceable *bool) (string, error) {

	specInputs := make([]txbuilder.InputSpec, 0, len(inputs))
	for _, in := range inputs {
		specInputs = append(specInputs, txbuilder.InputSpec{
			Txid:     in.Txid,
			Vout:     in.Vout,
			Sequence: in.Sequence,
		})
	}

	specOutputs := make([]txbuilder.OutputSpec, 0, len(outputs))
	for _, out := range outputs {
		if out.IsData {
			specOutputs = append(specOutputs, txbuilder.OutputSpec{
				DataHex: out.Data,
				IsData:  true,
			})
			continue
		}
		amount, err := parseAmount(out.Amount)
		if err != nil {
			return "", err
		}
		specOutputs = append(specOutputs, txbuilder.OutputSpec{
			Address: out.Address,
			Amount:  amount,
		})
	}

	lt := int64(0)
	if lockTime != nil {
		lt = *lockTime
	}
	rbf := replaceable != nil && *replaceable

	tx, err := txbuilder.Build(a.params, specInputs, specOutputs, lt, rbf)
	if err != nil {
		return "", err
	}
	return txToHex(tx)
}

// PrevTxParam is the caller-facing shape of a previous-output hint.
// Pointer fields distinguish absent from zero so missing-field errors
// name the right field.
type PrevTxParam struct {
	Txid         *string
	Vout         *int64
	ScriptPubKey *string
	RedeemScript *string
	Amount       *string
}

// SignError mirrors one per-input signing failure across the boundary.
type SignError struct {
	Txid      string
	Vout      uint32
	ScriptSig string
	Sequence  uint32
	Error     string
}

// SignResult is the outcome of SignRawTransactionWithWallet.
type SignResult struct {
	Hex      string
	Complete bool
	Errors   []SignError
}

// SignRawTransactionWithWallet signs the transaction with the wallet's
// key store, using the supplied previous-output hints for outputs the
// chain view cannot resolve.  Inputs that cannot be signed are reported
// individually; they never abort the others.
func (a *API) SignRawTransactionWithWallet(hexStr string,
	prevTxs []PrevTxParam) (*SignResult, error) {

	serialized, err := decodeHexStr(hexStr)
	if err != nil {
		return nil, err
	}
	tx, err := txwire.NewTxFromBytes(serialized, true)
	if err != nil {
		return nil, ErrTxDecodeFailed
	}

	hints := make([]txsigner.PrevOutHint, 0, len(prevTxs))
	for _, prev := range prevTxs {
		hint, err := parsePrevTx(&prev)
		if err != nil {
			return nil, err
		}
		hints = append(hints, *hint)
	}

	result, err := a.signer.Sign(tx, txscript.SigHashAll, hints)
	if err != nil {
		return nil, err
	}

	signedHex, err := txToHex(result.Tx)
	if err != nil {
		return nil, err
	}

	signErrors := make([]SignError, 0, len(result.Errors))
	for _, inErr := range result.Errors {
		var scriptSig string
		for _, txIn := range result.Tx.TxIn {
			if txIn.PreviousOutPoint == inErr.OutPoint {
				scriptSig = hex.EncodeToString(txIn.SignatureScript)
				signErrors = append(signErrors, SignError{
					Txid:      inErr.OutPoint.Hash.String(),
					Vout:      inErr.OutPoint.Index,
					ScriptSig: scriptSig,
					Sequence:  txIn.Sequence,
					Error:     inErr.Err.Error(),
				})
				break
			}
		}
	}

	return &SignResult{
		Hex:      signedHex,
		Complete: result.Complete,
		Errors:   signErrors,
	}, nil
}

// CombineRawTransaction merges independently signed copies of the same
// transaction into the most complete one and returns its hex encoding.
func (a *API) CombineRawTransaction(hexes []string) (string, error) {
	if len(hexes) == 0 {
		return "", ErrNoTransactions
	}
	copies := make([]*txwire.Tx, 0, len(hexes))
	for _, h := range hexes {
		serialized, err := decodeHexStr(h)
		if err != nil {
			return "", err
		}
		tx, err := txwire.NewTxFromBytes(serialized, true)
		if err != nil {
			return "", ErrTxDecodeFailed
		}
		copies = append(copies, tx)
	}

	combined, err := txmerge.Combine(a.params, copies)
	if err != nil {
		return "", err
	}
	return txToHex(combined)
}

// AcceptResult is one transaction's verdict from TestMempoolAccept.
type AcceptResult struct {
	Txid         string
	Allowed      bool
	RejectReason string
}

// TestMempoolAccept evaluates admission policy for each transaction
// without submitting anything.  Policy rejections are verdicts, not
// errors.  maxFeeRate is a decimal BTC/kvB string; empty applies the
// process default and "0" disables the cap.
func (a *API) TestMempoolAccept(hexes []string, maxFeeRate string) ([]AcceptResult, error) {
	maxRate, err := parseFeeRate(maxFeeRate)
	if err != nil {
		return nil, err
	}

	results := make([]AcceptResult, 0, len(hexes))
	for _, h := range hexes {
		serialized, err := decodeHexStr(h)
		if err != nil {
			return nil, err
		}
		tx, err := txwire.NewTxFromBytes(serialized, true)
		if err != nil {
			return nil, ErrTxDecodeFailed
		}

		verdict, err := a.gate.Evaluate(tx, maxRate)
		if err != nil {
			return nil, err
		}
		results = append(results, AcceptResult{
			Txid:         tx.TxHash().String(),
			Allowed:      verdict.Allowed,
			RejectReason: verdict.Reason.String(),
		})
	}
	return results, nil
}

// SendRawTransaction submits the transaction through the admission
// gate to the mempool and returns its txid.  Unlike TestMempoolAccept,
// policy rejections surface as errors.
func (a *API) SendRawTransaction(hexStr string, maxFeeRate string) (string, error) {
	maxRate, err := parseFeeRate(maxFeeRate)
	if err != nil {
		return "", err
	}
	serialized, err := decodeHexStr(hexStr)
	if err != nil {
		return "", err
	}
	tx, err := txwire.NewTxFromBytes(serialized, true)
	if err != nil {
		return "", ErrTxDecodeFailed
	}

	if err := a.gate.Submit(tx, maxRate); err != nil {
		return "", err
	}
	txid := tx.TxHash()
	log.Infof("Submitted transaction %v", txid)
	return txid.String(), nil
}

// RawTxResult is the result of GetRawTransaction.  Decoded and the
// block fields are only populated for verbose calls and block-hinted
// calls respectively.
type RawTxResult struct {
	Hex           string
	Decoded       *DecodedTx
	BlockHash     string
	InActiveChain *bool
}

// GetRawTransaction resolves a txid to its encoded transaction.  With a
// blockHash hint the named block must exist and contain the
// transaction, and the result reports whether that block is currently
// on the active chain.
func (a *API) GetRawTransaction(txid string, verbose bool,
	blockHash string) (*RawTxResult, error) {

	hash, err := parseTxidParam(txid)
	if err != nil {
		return nil, err
	}

	var blockHint *chainhash.Hash
	if blockHash != "" {
		blockHint, err = txquery.ParseBlockHash(blockHash)
		if err != nil {
			return nil, InvalidParameterError{err}
		}
	}

	result, err := a.lookup.Lookup(*hash, blockHint)
	if err != nil {
		switch err.(type) {
		case *txquery.BlockHashError:
			return nil, InvalidParameterError{err}
		}
		switch err {
		case txquery.ErrNoSuchTx, txquery.ErrNotFoundInBlock,
			txquery.ErrBlockNotFound, txquery.ErrGenesisCoinbase:
			return nil, NotFoundError{err}
		}
		return nil, err
	}

	out := &RawTxResult{
		Hex:           hex.EncodeToString(result.TxBytes),
		InActiveChain: result.InActiveChain,
	}
	if result.BlockHash != nil {
		out.BlockHash = result.BlockHash.String()
	}
	if verbose {
		out.Decoded = decodeTx(result.Tx)
	}
	return out, nil
}

func txToHex(tx *txwire.Tx) (string, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// parseAmount converts a decimal BTC string to a fixed-point satoshi
// amount, distinguishing unparseable values from out-of-range ones.
// Range enforcement itself belongs to the builder.
func parseAmount(s string) (btcutil.Amount, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	amount, err := btcutil.NewAmount(f)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

// parseFeeRate converts a decimal BTC/kvB string to a policy fee rate.
// Empty means "use the process default"; an explicit 0 disables the
// cap.
func parseFeeRate(s string) (*txpolicy.FeeRate, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return nil, InvalidParameterError{ErrInvalidAmount}
	}
	amount, err := btcutil.NewAmount(f)
	if err != nil {
		return nil, InvalidParameterError{ErrInvalidAmount}
	}
	rate := txpolicy.FeeRate(amount)
	return &rate, nil
}

func parseTxidParam(s string) (*chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return nil, InvalidParameterError{&txbuilder.TxidError{Value: s}}
	}
	if _, err := hex.DecodeString(s); err != nil {
		return nil, InvalidParameterError{&txbuilder.TxidError{Value: s}}
	}
	hash, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return nil, InvalidParameterError{err}
	}
	return hash, nil
}

// parsePrevTx validates one previous-output hint.  Field parsing
// happens here; presence validation is the signer's contract so its
// missing-field errors stay uniform.
func parsePrevTx(prev *PrevTxParam) (*txsigner.PrevOutHint, error) {
	hint := &txsigner.PrevOutHint{}

	if prev.Txid != nil {
		hash, err := parseTxidParam(*prev.Txid)
		if err != nil {
			return nil, err
		}
		hint.Txid = hash
	}
	if prev.Vout != nil {
		if *prev.Vout < 0 {
			return nil, InvalidParameterError{
				txbuilder.ErrVoutNegative,
			}
		}
		if *prev.Vout > math.MaxUint32 {
			return nil, InvalidParameterError{
				txbuilder.ErrVoutOutOfRange,
			}
		}
		vout := uint32(*prev.Vout)
		hint.Vout = &vout
	}
	if prev.ScriptPubKey != nil {
		script, err := decodeHexStr(*prev.ScriptPubKey)
		if err != nil {
			return nil, err
		}
		hint.PkScript = script
	}
	if prev.RedeemScript != nil {
		script, err := decodeHexStr(*prev.RedeemScript)
		if err != nil {
			return nil, err
		}
		hint.RedeemScript = script
	}
	if prev.Amount != nil {
		amount, err := parseAmount(*prev.Amount)
		if err != nil {
			return nil, err
		}
		hint.Amount = &amount
	}
	return hint, nil
}
