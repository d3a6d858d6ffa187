// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsigner

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/txforge/txforge/chain"
	"github.com/txforge/txforge/txwire"
)

// Hint validation errors.  These abort the whole signing call: a
// malformed hint is caller error, detected before any input is touched.
var (
	ErrMissingTxid         = errors.New("Missing txid")
	ErrMissingVout         = errors.New("Missing vout")
	ErrMissingScriptPubKey = errors.New("Missing scriptPubKey")

	// ErrMissingAmount is reported when the spent output's script type
	// commits to its value but no amount is available.  Legacy script
	// types do not commit to value, so for them a missing amount is not
	// an error.
	ErrMissingAmount = errors.New("Missing amount")
)

// Per-input signing failures reported in Result.Errors.
var (
	ErrPrevOutNotFound = errors.New(
		"previous output not found or already spent")
	ErrUnsupportedScript = errors.New("unsupported script type")
	ErrNoKeys            = errors.New("no keys available for input")
	ErrNoRedeemScript    = errors.New("redeem script unavailable")
)

// PrevOutHint is an externally supplied description of a referenced
// output, used when the output cannot be resolved from local state.
// Pointer fields distinguish absent from zero.
type PrevOutHint struct {
	Txid         *chainhash.Hash
	Vout         *uint32
	PkScript     []byte
	RedeemScript []byte
	Amount       *btcutil.Amount
}

// InputError describes why one input could not be (fully) signed.
// Other inputs are unaffected.
type InputError struct {
	OutPoint txwire.OutPoint
	Err      error
}

// Error satisfies the error interface.
func (e *InputError) Error() string {
	return fmt.Sprintf("input %v: %v", e.OutPoint, e.Err)
}

// Unwrap returns the underlying per-input failure.
func (e *InputError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a signing call.  Complete is set when every
// input carries fully satisfying unlocking data; a partially signed
// multisig input leaves it false without being a failure.
type Result struct {
	Tx       *txwire.Tx
	Complete bool
	Errors   []InputError
}

// Signer attaches unlocking data to transaction inputs.  It resolves
// each referenced output from the explicit hints first and the chain
// view second, and signs with whatever keys the key store yields.
// Signing is deterministic for fixed key material and transaction
// bytes.
type Signer struct {
	params *chaincfg.Params
	keys   chain.KeyStore
	view   chain.View
}

// New returns a signer.  view may be nil, in which case every input
// must be covered by a hint.
func New(params *chaincfg.Params, keys chain.KeyStore, view chain.View) *Signer {
	return &Signer{params: params, keys: keys, view: view}
}

// resolvedPrevOut is a hint or chain answer normalized for signing.
type resolvedPrevOut struct {
	pkScript []byte
	redeem   []byte
	amount   *btcutil.Amount
}

// Sign signs every input of tx it can, in place on a copy.  The passed
// transaction is never mutated.  Hints are validated up front; a
// malformed hint fails the call before any signing.
func (s *Signer) Sign(tx *txwire.Tx, hashType txscript.SigHashType,
	hints []PrevOutHint) (*Result, error) {

	resolved := make(map[txwire.OutPoint]*resolvedPrevOut, len(hints))
	for i := range hints {
		hint := &hints[i]
		op, rpo, err := validateHint(hint)
		if err != nil {
			return nil, err
		}
		resolved[*op] = rpo
	}

	signedTx := tx.Copy()
	result := &Result{Tx: signedTx, Complete: true}

	for idx, txIn := range signedTx.TxIn {
		op := txIn.PreviousOutPoint

		rpo, ok := resolved[op]
		if !ok {
			var err error
			rpo, err = s.resolveFromView(op)
			if err != nil {
				result.Complete = false
				result.Errors = append(result.Errors, InputError{
					OutPoint: op, Err: err,
				})
				continue
			}
		}

		complete, err := s.signInput(signedTx, idx, rpo, hashType)
		if err != nil {
			if errors.Is(err, ErrMissingAmount) {
				// A value-committing script type with no known
				// amount is a hint problem, terminal for the call.
				return nil, err
			}
			result.Complete = false
			result.Errors = append(result.Errors, InputError{
				OutPoint: op, Err: err,
			})
			continue
		}
		if !complete {
			result.Complete = false
		}
	}

	if len(result.Errors) > 0 {
		log.Debugf("Signed %d of %d inputs", len(signedTx.TxIn)-
			len(result.Errors), len(signedTx.TxIn))
	}
	return result, nil
}

func validateHint(hint *PrevOutHint) (*txwire.OutPoint, *resolvedPrevOut, error) {
	if hint.Txid == nil {
		return nil, nil, ErrMissingTxid
	}
	if hint.Vout == nil {
		return nil, nil, ErrMissingVout
	}
	if hint.PkScript == nil {
		return nil, nil, ErrMissingScriptPubKey
	}
	if txscript.IsWitnessProgram(hint.PkScript) && hint.Amount == nil {
		return nil, nil, ErrMissingAmount
	}
	op := txwire.NewOutPoint(hint.Txid, *hint.Vout)
	return op, &resolvedPrevOut{
		pkScript: hint.PkScript,
		redeem:   hint.RedeemScript,
		amount:   hint.Amount,
	}, nil
}

func (s *Signer) resolveFromView(op txwire.OutPoint) (*resolvedPrevOut, error) {
	if s.view == nil {
		return nil, ErrPrevOutNotFound
	}
	prevOut, err := s.view.ResolveOutput(op)
	if err != nil {
		return nil, err
	}
	if prevOut == nil {
		return nil, ErrPrevOutNotFound
	}
	amount := prevOut.Value
	return &resolvedPrevOut{
		pkScript: prevOut.PkScript,
		amount:   &amount,
	}, nil
}

// signInput attaches unlocking data for one input and reports whether
// the produced data fully satisfies the locking script.
func (s *Signer) signInput(tx *txwire.Tx, idx int, rpo *resolvedPrevOut,
	hashType txscript.SigHashType) (bool, error) {

	class, addrs, _, err := txscript.ExtractPkScriptAddrs(
		rpo.pkScript, s.params,
	)
	if err != nil {
		return false, err
	}

	switch class {
	case txscript.PubKeyHashTy:
		return s.signPubKeyHash(tx, idx, rpo.pkScript, addrs[0], hashType)

	case txscript.WitnessV0PubKeyHashTy:
		if rpo.amount == nil {
			return false, ErrMissingAmount
		}
		return s.signWitnessPubKeyHash(
			tx, idx, addrs[0], *rpo.amount, hashType, nil,
		)

	case txscript.ScriptHashTy:
		return s.signScriptHash(tx, idx, rpo, addrs[0], hashType)

	case txscript.MultiSigTy:
		return s.signMultisig(tx, idx, rpo.pkScript, false, hashType)

	default:
		return false, ErrUnsupportedScript
	}
}

func (s *Signer) signPubKeyHash(tx *txwire.Tx, idx int, pkScript []byte,
	addr btcutil.Address, hashType txscript.SigHashType) (bool, error) {

	key, compressed, err := s.keys.KeyForAddress(addr)
	if err != nil {
		return false, err
	}
	if key == nil {
		return false, ErrNoKeys
	}

	hash, err := LegacySigHash(tx, idx, pkScript, hashType)
	if err != nil {
		return false, err
	}
	sig := append(ecdsa.Sign(key, hash).Serialize(), byte(hashType))

	pubKeyBytes := key.PubKey().SerializeCompressed()
	if !compressed {
		pubKeyBytes = key.PubKey().SerializeUncompressed()
	}

	sigScript, err := txscript.NewScriptBuilder().
		AddData(sig).AddData(pubKeyBytes).Script()
	if err != nil {
		return false, err
	}
	tx.TxIn[idx].SignatureScript = sigScript
	tx.TxIn[idx].Witness = nil
	return true, nil
}

// signWitnessPubKeyHash signs a version 0 pay-to-witness-pubkey-hash
// input.  For the p2sh-nested form, redeemScript carries the witness
// program to push as the signature script.
func (s *Signer) signWitnessPubKeyHash(tx *txwire.Tx, idx int,
	addr btcutil.Address, amount btcutil.Amount,
	hashType txscript.SigHashType, redeemScript []byte) (bool, error) {

	key, _, err := s.keys.KeyForAddress(addr)
	if err != nil {
		return false, err
	}
	if key == nil {
		return false, ErrNoKeys
	}

	// The digest commits to the canonical pubkey-hash script for the
	// witness program's hash, not to the program itself.
	pkHash := addr.ScriptAddress()
	scriptCode, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
		AddData(pkHash).AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return false, err
	}

	hash, err := WitnessSigHash(tx, idx, scriptCode, amount, hashType)
	if err != nil {
		return false, err
	}
	sig := append(ecdsa.Sign(key, hash).Serialize(), byte(hashType))

	tx.TxIn[idx].Witness = txwire.TxWitness{
		sig, key.PubKey().SerializeCompressed(),
	}
	if redeemScript != nil {
		sigScript, err := txscript.NewScriptBuilder().
			AddData(redeemScript).Script()
		if err != nil {
			return false, err
		}
		tx.TxIn[idx].SignatureScript = sigScript
	} else {
		tx.TxIn[idx].SignatureScript = nil
	}
	return true, nil
}

func (s *Signer) signScriptHash(tx *txwire.Tx, idx int, rpo *resolvedPrevOut,
	addr btcutil.Address, hashType txscript.SigHashType) (bool, error) {

	redeem := rpo.redeem
	if redeem == nil {
		var err error
		redeem, err = s.keys.ScriptForAddress(addr)
		if err != nil {
			return false, err
		}
	}
	if redeem == nil {
		return false, ErrNoRedeemScript
	}

	// A nested witness program spends through the witness path and
	// commits to the output's value.
	if txscript.IsWitnessProgram(redeem) {
		if rpo.amount == nil {
			return false, ErrMissingAmount
		}
		witClass, witAddrs, _, err := txscript.ExtractPkScriptAddrs(
			redeem, s.params,
		)
		if err != nil {
			return false, err
		}
		if witClass != txscript.WitnessV0PubKeyHashTy {
			return false, ErrUnsupportedScript
		}
		return s.signWitnessPubKeyHash(
			tx, idx, witAddrs[0], *rpo.amount, hashType, redeem,
		)
	}

	slots, err := ParseMultisigScript(redeem, s.params)
	if err != nil {
		if errors.Is(err, ErrNotMultisig) {
			return false, ErrUnsupportedScript
		}
		return false, err
	}
	return s.signMultisigSlots(tx, idx, slots, true, hashType)
}

func (s *Signer) signMultisig(tx *txwire.Tx, idx int, script []byte,
	p2sh bool, hashType txscript.SigHashType) (bool, error) {

	slots, err := ParseMultisigScript(script, s.params)
	if err != nil {
		return false, err
	}
	return s.signMultisigSlots(tx, idx, slots, p2sh, hashType)
}

// signMultisigSlots signs whichever multisig slots local keys cover,
// preserving any valid signatures already present in the input's
// signature script so independently produced partial signatures
// accumulate rather than overwrite each other.
func (s *Signer) signMultisigSlots(tx *txwire.Tx, idx int, slots *SigSlots,
	p2sh bool, hashType txscript.SigHashType) (bool, error) {

	digest := func(subScript []byte, ht txscript.SigHashType) ([]byte, error) {
		return LegacySigHash(tx, idx, subScript, ht)
	}

	if existing := tx.TxIn[idx].SignatureScript; len(existing) > 0 {
		prior, err := ParseSigScript(existing, s.params, digest)
		if err == nil {
			_ = slots.Merge(prior)
		}
	}

	signedAny := slots.Count() > 0
	for i, pubKey := range slots.Keys {
		if slots.Sigs[i] != nil {
			continue
		}
		if slots.Count() >= slots.Required {
			break
		}

		pkAddr, err := btcutil.NewAddressPubKey(
			pubKey.SerializeCompressed(), s.params,
		)
		if err != nil {
			return false, err
		}
		key, _, err := s.keys.KeyForAddress(pkAddr)
		if err != nil {
			return false, err
		}
		if key == nil {
			continue
		}

		hash, err := digest(slots.Script, hashType)
		if err != nil {
			return false, err
		}
		sig := append(ecdsa.Sign(key, hash).Serialize(), byte(hashType))
		slots.SetSig(pubKey, sig)
		signedAny = true
	}

	if !signedAny {
		return false, ErrNoKeys
	}

	sigScript, err := slots.SigScript(p2sh)
	if err != nil {
		return false, err
	}
	tx.TxIn[idx].SignatureScript = sigScript
	return slots.Complete(), nil
}
