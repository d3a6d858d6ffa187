// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txindex

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/txforge/txforge/txwire"
)

func testTx(marker byte) *txwire.Tx {
	var hash chainhash.Hash
	hash[0] = marker
	tx := txwire.NewTx()
	tx.AddTxIn(txwire.NewTxIn(txwire.NewOutPoint(&hash, 0), nil))
	tx.AddTxOut(txwire.NewTxOut(int64(marker)*1000, []byte{0x51}))
	return tx
}

func TestStorePutFetch(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "txindex.db"))
	require.NoError(t, err)
	defer store.Close()

	tx := testTx(1)
	require.NoError(t, store.Put(tx))

	serialized, err := tx.Bytes()
	require.NoError(t, err)

	fetched, err := store.FetchTx(tx.TxHash())
	require.NoError(t, err)
	require.Equal(t, serialized, fetched)

	// A miss is nil bytes and nil error.
	var missing chainhash.Hash
	missing[0] = 99
	fetched, err = store.FetchTx(missing)
	require.NoError(t, err)
	require.Nil(t, fetched)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txindex.db")

	store, err := Open(path)
	require.NoError(t, err)
	tx := testTx(2)
	require.NoError(t, store.Put(tx))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	fetched, err := store.FetchTx(tx.TxHash())
	require.NoError(t, err)
	require.NotNil(t, fetched)
}

func TestStoreClosed(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "txindex.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.ErrorIs(t, store.Put(testTx(3)), ErrStoreClosed)
	_, err = store.FetchTx(chainhash.Hash{})
	require.ErrorIs(t, err, ErrStoreClosed)
	require.ErrorIs(t, store.Close(), ErrStoreClosed)
}
