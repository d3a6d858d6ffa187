// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txmerge

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/txforge/txforge/chain"
	"github.com/txforge/txforge/txsigner"
	"github.com/txforge/txforge/txwire"
)

var testParams = &chaincfg.MainNetParams

func testKey(b byte) *btcec.PrivateKey {
	var seed [32]byte
	for i := range seed {
		seed[i] = b
	}
	seed[0] = 1
	priv, _ := btcec.PrivKeyFromBytes(seed[:])
	return priv
}

func testOutPoint(b byte, index uint32) txwire.OutPoint {
	var hash chainhash.Hash
	for i := range hash {
		hash[i] = b
	}
	return txwire.OutPoint{Hash: hash, Index: index}
}

// multisigSpend builds an unsigned spend of a 2-of-2 p2sh multisig
// output and returns it with the redeem script and previous output
// script.
func multisigSpend(t *testing.T, keyA, keyB *btcec.PrivateKey,
	op txwire.OutPoint) (*txwire.Tx, []byte, []byte) {

	t.Helper()
	pkAddrs := make([]*btcutil.AddressPubKey, 0, 2)
	for _, key := range []*btcec.PrivateKey{keyA, keyB} {
		pkAddr, err := btcutil.NewAddressPubKey(
			key.PubKey().SerializeCompressed(), testParams,
		)
		require.NoError(t, err)
		pkAddrs = append(pkAddrs, pkAddr)
	}
	redeem, err := txscript.MultiSigScript(pkAddrs, 2)
	require.NoError(t, err)

	scriptAddr, err := btcutil.NewAddressScriptHash(redeem, testParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(scriptAddr)
	require.NoError(t, err)

	destHash := btcutil.Hash160(testKey(0x7f).PubKey().SerializeCompressed())
	destAddr, err := btcutil.NewAddressPubKeyHash(destHash, testParams)
	require.NoError(t, err)
	destScript, err := txscript.PayToAddrScript(destAddr)
	require.NoError(t, err)

	tx := txwire.NewTx()
	tx.AddTxIn(txwire.NewTxIn(&op, nil))
	tx.AddTxOut(txwire.NewTxOut(90_000, destScript))
	return tx, redeem, pkScript
}

// signWith signs tx with a single key, the redeem script supplied as a
// hint.
func signWith(t *testing.T, tx *txwire.Tx, key *btcec.PrivateKey,
	op txwire.OutPoint, pkScript, redeem []byte) *txwire.Tx {

	t.Helper()
	keys := chain.NewMemKeyStore(testParams)
	require.NoError(t, keys.AddKey(key))

	hash := op.Hash
	vout := op.Index
	result, err := txsigner.New(testParams, keys, nil).Sign(
		tx, txscript.SigHashAll, []txsigner.PrevOutHint{{
			Txid:         &hash,
			Vout:         &vout,
			PkScript:     pkScript,
			RedeemScript: redeem,
		}},
	)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	return result.Tx
}

func txBytes(t *testing.T, tx *txwire.Tx) []byte {
	t.Helper()
	serialized, err := tx.Bytes()
	require.NoError(t, err)
	return serialized
}

func assertSpends(t *testing.T, tx *txwire.Tx, op txwire.OutPoint,
	pkScript []byte, value int64) {

	t.Helper()
	var msgTx wire.MsgTx
	require.NoError(t, msgTx.Deserialize(bytes.NewReader(txBytes(t, tx))))

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, value)
	sigHashes := txscript.NewTxSigHashes(&msgTx, fetcher)
	vm, err := txscript.NewEngine(pkScript, &msgTx, 0,
		txscript.StandardVerifyFlags, nil, sigHashes, value, fetcher)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())
}

func TestCombineNone(t *testing.T) {
	_, err := Combine(testParams, nil)
	require.ErrorIs(t, err, ErrNoTransactions)
}

func TestCombineSingle(t *testing.T) {
	op := testOutPoint(1, 0)
	tx, _, _ := multisigSpend(t, testKey(2), testKey(3), op)

	combined, err := Combine(testParams, []*txwire.Tx{tx})
	require.NoError(t, err)
	require.NotSame(t, tx, combined)
	require.Equal(t, txBytes(t, tx), txBytes(t, combined))
}

func TestCombineHalfSignedMultisig(t *testing.T) {
	keyA, keyB := testKey(2), testKey(3)
	op := testOutPoint(1, 0)
	tx, redeem, pkScript := multisigSpend(t, keyA, keyB, op)

	// Each signer works from the unsigned transaction independently.
	signedA := signWith(t, tx, keyA, op, pkScript, redeem)
	signedB := signWith(t, tx, keyB, op, pkScript, redeem)

	combined, err := Combine(testParams, []*txwire.Tx{signedA, signedB})
	require.NoError(t, err)
	assertSpends(t, combined, op, pkScript, 100_000)

	// Commutative: the reversed order produces identical bytes.
	reversed, err := Combine(testParams, []*txwire.Tx{signedB, signedA})
	require.NoError(t, err)
	require.Equal(t, txBytes(t, combined), txBytes(t, reversed))

	// Idempotent: recombining the result changes nothing.
	again, err := Combine(testParams, []*txwire.Tx{combined, combined})
	require.NoError(t, err)
	require.Equal(t, txBytes(t, combined), txBytes(t, again))

	// Folding a partial copy back in changes nothing either.
	folded, err := Combine(testParams, []*txwire.Tx{combined, signedA})
	require.NoError(t, err)
	require.Equal(t, txBytes(t, combined), txBytes(t, folded))
}

func TestCombinePartialStaysPartial(t *testing.T) {
	keyA := testKey(2)
	op := testOutPoint(1, 0)
	tx, redeem, pkScript := multisigSpend(t, keyA, testKey(3), op)

	signedA := signWith(t, tx, keyA, op, pkScript, redeem)

	// One partial copy plus the unsigned base: still partial, and the
	// partial signature survives.
	combined, err := Combine(testParams, []*txwire.Tx{tx, signedA})
	require.NoError(t, err)
	require.Equal(t,
		txBytes(t, signedA), txBytes(t, combined))
}

func TestCombineMostCompleteWins(t *testing.T) {
	key := testKey(5)
	op := testOutPoint(4, 0)

	pkHash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, testParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	destScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	tx := txwire.NewTx()
	tx.AddTxIn(txwire.NewTxIn(&op, nil))
	tx.AddTxOut(txwire.NewTxOut(90_000, destScript))

	keys := chain.NewMemKeyStore(testParams)
	require.NoError(t, keys.AddKey(key))
	hash := op.Hash
	vout := op.Index
	result, err := txsigner.New(testParams, keys, nil).Sign(
		tx, txscript.SigHashAll, []txsigner.PrevOutHint{{
			Txid: &hash, Vout: &vout, PkScript: pkScript,
		}},
	)
	require.NoError(t, err)
	require.True(t, result.Complete)

	for _, copies := range [][]*txwire.Tx{
		{tx, result.Tx},
		{result.Tx, tx},
	} {
		combined, err := Combine(testParams, copies)
		require.NoError(t, err)
		require.Equal(t, txBytes(t, result.Tx), txBytes(t, combined))
		assertSpends(t, combined, op, pkScript, 100_000)
	}
}

func TestCombineMismatch(t *testing.T) {
	op := testOutPoint(1, 0)
	tx, _, _ := multisigSpend(t, testKey(2), testKey(3), op)

	other := tx.Copy()
	other.LockTime = 99
	_, err := Combine(testParams, []*txwire.Tx{tx, other})
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "locktime", mismatch.Field)

	other = tx.Copy()
	other.TxIn[0].PreviousOutPoint.Index = 7
	_, err = Combine(testParams, []*txwire.Tx{tx, other})
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "previous outpoint", mismatch.Field)
	require.Equal(t, 0, mismatch.Index)

	other = tx.Copy()
	other.TxOut[0].Value++
	_, err = Combine(testParams, []*txwire.Tx{tx, other})
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "output value", mismatch.Field)
}
