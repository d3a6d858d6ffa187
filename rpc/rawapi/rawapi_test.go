// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rawapi

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"github.com/txforge/txforge/chain"
	"github.com/txforge/txforge/txpolicy"
	"github.com/txforge/txforge/txsigner"
	"github.com/txforge/txforge/txwire"
)

var testParams = &chaincfg.MainNetParams

// mapIndex is a txquery.Index backed by a plain map.
type mapIndex map[chainhash.Hash][]byte

func (m mapIndex) FetchTx(txid chainhash.Hash) ([]byte, error) {
	return m[txid], nil
}

type harness struct {
	api     *API
	view    *chain.MemView
	mempool *chain.MemMempool
	keys    *chain.MemKeyStore
	index   mapIndex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		view:    chain.NewMemView(),
		mempool: chain.NewMemMempool(),
		keys:    chain.NewMemKeyStore(testParams),
		index:   make(mapIndex),
	}
	h.api = New(&Config{
		Params:   testParams,
		View:     h.view,
		Mempool:  h.mempool,
		KeyStore: h.keys,
		Index:    h.index,
	})
	return h
}

func testKey(b byte) *btcec.PrivateKey {
	var seed [32]byte
	for i := range seed {
		seed[i] = b
	}
	seed[0] = 1
	priv, _ := btcec.PrivKeyFromBytes(seed[:])
	return priv
}

func p2pkhAddr(t *testing.T, key *btcec.PrivateKey) (btcutil.Address, []byte) {
	t.Helper()
	pkHash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, testParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return addr, pkScript
}

// fundWallet registers key in the wallet and records an output paying
// value satoshi to its p2pkh address.
func (h *harness) fundWallet(t *testing.T, key *btcec.PrivateKey,
	marker byte, value btcutil.Amount) txwire.OutPoint {

	t.Helper()
	require.NoError(t, h.keys.AddKey(key))
	_, pkScript := p2pkhAddr(t, key)

	var hash chainhash.Hash
	for i := range hash {
		hash[i] = marker
	}
	op := txwire.OutPoint{Hash: hash, Index: 0}
	h.view.AddOutput(op, pkScript, value)
	return op
}

func TestCreateSignSendWorkflow(t *testing.T) {
	h := newHarness(t)

	key := testKey(2)
	op := h.fundWallet(t, key, 5, 100_000)
	destAddr, _ := p2pkhAddr(t, testKey(3))

	hexStr, err := h.api.CreateRawTransaction(
		[]InputParam{{Txid: op.Hash.String(), Vout: 0}},
		[]OutputParam{{Address: destAddr.EncodeAddress(), Amount: "0.0009"}},
		nil, nil,
	)
	require.NoError(t, err)

	decoded, err := h.api.DecodeRawTransaction(hexStr, true)
	require.NoError(t, err)
	require.Equal(t, uint32(2), decoded.Version)
	require.Len(t, decoded.Vin, 1)
	require.Equal(t, op.Hash.String(), decoded.Vin[0].Txid)
	require.Equal(t, uint32(0xffffffff), decoded.Vin[0].Sequence)
	require.Len(t, decoded.Vout, 1)
	require.Equal(t, int64(90_000), decoded.Vout[0].ValueSat)
	require.Equal(t, "0.00090000", decoded.Vout[0].Value)
	require.Equal(t, "pubkeyhash", decoded.Vout[0].Type)

	// The chain view resolves the spent output, so no hints are needed.
	signed, err := h.api.SignRawTransactionWithWallet(hexStr, nil)
	require.NoError(t, err)
	require.True(t, signed.Complete)
	require.Empty(t, signed.Errors)
	require.NotEqual(t, hexStr, signed.Hex)

	verdicts, err := h.api.TestMempoolAccept([]string{signed.Hex}, "")
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	require.True(t, verdicts[0].Allowed)
	require.Empty(t, verdicts[0].RejectReason)

	// Nothing was submitted by the test call.
	require.False(t, h.mempool.Contains(mustTxid(t, verdicts[0].Txid)))

	txid, err := h.api.SendRawTransaction(signed.Hex, "")
	require.NoError(t, err)
	require.Equal(t, verdicts[0].Txid, txid)
	require.True(t, h.mempool.Contains(mustTxid(t, txid)))

	// Once indexed, the transaction is retrievable by id alone.
	signedTx, err := txwire.NewTxFromHex(signed.Hex, true)
	require.NoError(t, err)
	serialized, err := signedTx.Bytes()
	require.NoError(t, err)
	h.index[signedTx.TxHash()] = serialized

	fetched, err := h.api.GetRawTransaction(txid, true, "")
	require.NoError(t, err)
	require.Equal(t, signed.Hex, fetched.Hex)
	require.NotNil(t, fetched.Decoded)
	require.Equal(t, txid, fetched.Decoded.Txid)
	require.Empty(t, fetched.BlockHash)
	require.Nil(t, fetched.InActiveChain)
}

func mustTxid(t *testing.T, s string) chainhash.Hash {
	t.Helper()
	hash, err := chainhash.NewHashFromStr(s)
	require.NoError(t, err)
	return *hash
}

func TestCreateRawTransactionReplaceable(t *testing.T) {
	h := newHarness(t)
	destAddr, _ := p2pkhAddr(t, testKey(3))

	var prevHash chainhash.Hash
	prevHash[0] = 1

	replaceable := true
	lockTime := int64(500_000)
	hexStr, err := h.api.CreateRawTransaction(
		[]InputParam{{
			Txid: prevHash.String(), Vout: 0,
		}},
		[]OutputParam{{Address: destAddr.EncodeAddress(), Amount: "1"}},
		&lockTime, &replaceable,
	)
	require.NoError(t, err)

	decoded, err := h.api.DecodeRawTransaction(hexStr, true)
	require.NoError(t, err)
	require.Equal(t, uint32(500_000), decoded.LockTime)
	require.Equal(t, uint32(0xfffffffd), decoded.Vin[0].Sequence)
}

func TestCreateRawTransactionBadAmount(t *testing.T) {
	h := newHarness(t)
	destAddr, _ := p2pkhAddr(t, testKey(3))

	_, err := h.api.CreateRawTransaction(nil, []OutputParam{
		{Address: destAddr.EncodeAddress(), Amount: "not-a-number"},
	}, nil, nil)
	require.Error(t, err)
	require.Equal(t, "Invalid amount", err.Error())

	var invalid InvalidParameterError
	require.ErrorAs(t, err, &invalid)
}

func TestDecodeRawTransactionBadPayload(t *testing.T) {
	h := newHarness(t)

	_, err := h.api.DecodeRawTransaction("zznothex", true)
	var deser DeserializationError
	require.ErrorAs(t, err, &deser)

	_, err = h.api.DecodeRawTransaction("0200", true)
	require.ErrorIs(t, err, ErrTxDecodeFailed)
	require.Equal(t, "TX decode failed", err.Error())
}

func TestSignReportsPerInputErrors(t *testing.T) {
	h := newHarness(t)

	key := testKey(2)
	known := h.fundWallet(t, key, 6, 100_000)
	destAddr, _ := p2pkhAddr(t, testKey(3))

	var unknownHash chainhash.Hash
	unknownHash[0] = 77

	hexStr, err := h.api.CreateRawTransaction(
		[]InputParam{
			{Txid: known.Hash.String(), Vout: 0},
			{Txid: unknownHash.String(), Vout: 1},
		},
		[]OutputParam{{Address: destAddr.EncodeAddress(), Amount: "0.0009"}},
		nil, nil,
	)
	require.NoError(t, err)

	signed, err := h.api.SignRawTransactionWithWallet(hexStr, nil)
	require.NoError(t, err)
	require.False(t, signed.Complete)
	require.Len(t, signed.Errors, 1)
	require.Equal(t, unknownHash.String(), signed.Errors[0].Txid)
	require.Equal(t, uint32(1), signed.Errors[0].Vout)
	require.Equal(t, txsigner.ErrPrevOutNotFound.Error(),
		signed.Errors[0].Error)
}

func TestSignMissingHintFields(t *testing.T) {
	h := newHarness(t)

	key := testKey(2)
	op := h.fundWallet(t, key, 7, 100_000)
	destAddr, _ := p2pkhAddr(t, testKey(3))

	hexStr, err := h.api.CreateRawTransaction(
		[]InputParam{{Txid: op.Hash.String(), Vout: 0}},
		[]OutputParam{{Address: destAddr.EncodeAddress(), Amount: "0.0009"}},
		nil, nil,
	)
	require.NoError(t, err)

	txid := op.Hash.String()
	vout := int64(0)
	script := "76a914000000000000000000000000000000000000000088ac"

	// Missing-field reporting names the absent field.
	_, err = h.api.SignRawTransactionWithWallet(hexStr, []PrevTxParam{
		{Vout: &vout, ScriptPubKey: &script},
	})
	require.ErrorIs(t, err, txsigner.ErrMissingTxid)

	_, err = h.api.SignRawTransactionWithWallet(hexStr, []PrevTxParam{
		{Txid: &txid, ScriptPubKey: &script},
	})
	require.ErrorIs(t, err, txsigner.ErrMissingVout)

	_, err = h.api.SignRawTransactionWithWallet(hexStr, []PrevTxParam{
		{Txid: &txid, Vout: &vout},
	})
	require.ErrorIs(t, err, txsigner.ErrMissingScriptPubKey)

	// Out-of-range vout values are rejected rather than truncated.
	hugeVout := int64(1) << 32
	_, err = h.api.SignRawTransactionWithWallet(hexStr, []PrevTxParam{
		{Txid: &txid, Vout: &hugeVout, ScriptPubKey: &script},
	})
	var invalid InvalidParameterError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "Invalid parameter, vout out of range", err.Error())
}

func TestCombineRawTransaction(t *testing.T) {
	h := newHarness(t)

	_, err := h.api.CombineRawTransaction(nil)
	require.ErrorIs(t, err, ErrNoTransactions)

	// A single unsigned copy combines to itself.
	key := testKey(2)
	op := h.fundWallet(t, key, 8, 100_000)
	destAddr, _ := p2pkhAddr(t, testKey(3))

	hexStr, err := h.api.CreateRawTransaction(
		[]InputParam{{Txid: op.Hash.String(), Vout: 0}},
		[]OutputParam{{Address: destAddr.EncodeAddress(), Amount: "0.0009"}},
		nil, nil,
	)
	require.NoError(t, err)

	combined, err := h.api.CombineRawTransaction([]string{hexStr})
	require.NoError(t, err)
	require.Equal(t, hexStr, combined)

	// A signed and an unsigned copy combine to the signed one.
	signed, err := h.api.SignRawTransactionWithWallet(hexStr, nil)
	require.NoError(t, err)
	require.True(t, signed.Complete)

	combined, err = h.api.CombineRawTransaction(
		[]string{hexStr, signed.Hex},
	)
	require.NoError(t, err)
	require.Equal(t, signed.Hex, combined)

	_, err = h.api.CombineRawTransaction([]string{"02xx"})
	var deser DeserializationError
	require.ErrorAs(t, err, &deser)
}

func TestSendRawTransactionRejections(t *testing.T) {
	h := newHarness(t)
	key := testKey(2)
	op := h.fundWallet(t, key, 9, 100_000)
	destAddr, _ := p2pkhAddr(t, testKey(3))

	hexStr, err := h.api.CreateRawTransaction(
		[]InputParam{{Txid: op.Hash.String(), Vout: 0}},
		[]OutputParam{{Address: destAddr.EncodeAddress(), Amount: "0.0009"}},
		nil, nil,
	)
	require.NoError(t, err)
	signed, err := h.api.SignRawTransactionWithWallet(hexStr, nil)
	require.NoError(t, err)

	// An explicit tight cap rejects; "0" disables the cap.
	_, err = h.api.SendRawTransaction(signed.Hex, "0.00000001")
	require.ErrorIs(t, err, txpolicy.ErrMaxFeeExceeded)

	_, err = h.api.SendRawTransaction(signed.Hex, "0")
	require.NoError(t, err)

	// A malformed cap is an invalid parameter.
	_, err = h.api.SendRawTransaction(signed.Hex, "fast")
	var invalid InvalidParameterError
	require.ErrorAs(t, err, &invalid)

	// Confirming the transaction makes resubmission already-known.
	signedTx, err := txwire.NewTxFromHex(signed.Hex, true)
	require.NoError(t, err)
	var blockHash chainhash.Hash
	blockHash[0] = 30
	h.view.AddBlock(blockHash, signedTx)

	_, err = h.api.SendRawTransaction(signed.Hex, "")
	require.ErrorIs(t, err, txpolicy.ErrAlreadyKnown)
	require.Equal(t, "Transaction already in block chain", err.Error())

	// Spending an unknown output is reported with the policy string.
	var unknownHash chainhash.Hash
	unknownHash[0] = 31
	orphanHex, err := h.api.CreateRawTransaction(
		[]InputParam{{Txid: unknownHash.String(), Vout: 0}},
		[]OutputParam{{Address: destAddr.EncodeAddress(), Amount: "0.0009"}},
		nil, nil,
	)
	require.NoError(t, err)
	_, err = h.api.SendRawTransaction(orphanHex, "")
	require.ErrorIs(t, err, txpolicy.ErrMissingInputs)
}

func TestGetRawTransactionPaths(t *testing.T) {
	h := newHarness(t)

	_, err := h.api.GetRawTransaction("tooshort", false, "")
	var invalid InvalidParameterError
	require.ErrorAs(t, err, &invalid)

	// Unknown txid with an empty index.
	var unknown chainhash.Hash
	unknown[0] = 40
	_, err = h.api.GetRawTransaction(unknown.String(), false, "")
	var notFound NotFoundError
	require.ErrorAs(t, err, &notFound)

	// Block-hinted lookup reports live active-chain membership.
	tx := txwire.NewTx()
	tx.AddTxIn(txwire.NewTxIn(txwire.NewOutPoint(&unknown, 0), nil))
	tx.AddTxOut(txwire.NewTxOut(1000, []byte{0x51}))
	var blockHash chainhash.Hash
	blockHash[0] = 41
	h.view.AddBlock(blockHash, tx)

	result, err := h.api.GetRawTransaction(
		tx.TxHash().String(), false, blockHash.String(),
	)
	require.NoError(t, err)
	require.Equal(t, blockHash.String(), result.BlockHash)
	require.NotNil(t, result.InActiveChain)
	require.True(t, *result.InActiveChain)

	h.view.SetActive(blockHash, false)
	result, err = h.api.GetRawTransaction(
		tx.TxHash().String(), false, blockHash.String(),
	)
	require.NoError(t, err)
	require.False(t, *result.InActiveChain)

	// A malformed block hash hint is an invalid parameter, not a miss.
	_, err = h.api.GetRawTransaction(tx.TxHash().String(), false, "abc")
	require.ErrorAs(t, err, &invalid)

	// The genesis coinbase is refused with its own message.
	genesisTxid := testParams.GenesisBlock.Transactions[0].TxHash()
	_, err = h.api.GetRawTransaction(genesisTxid.String(), false, "")
	require.ErrorAs(t, err, &notFound)
	require.Equal(t,
		"The genesis block coinbase is not considered an ordinary transaction",
		err.Error())
}
