// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txindex implements the optional full transaction index as a
// bolt-backed key/value store mapping transaction ids to serialized
// transactions.  It satisfies txquery.Index.
package txindex

import (
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	bolt "go.etcd.io/bbolt"

	"github.com/txforge/txforge/txwire"
)

var (
	// txBucket is the single bucket holding txid -> serialized tx.
	txBucket = []byte("txindex")

	// ErrStoreClosed is returned on use after Close.
	ErrStoreClosed = errors.New("transaction index is closed")
)

// Store is a file-backed transaction index.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(dbTx *bolt.Tx) error {
		_, err := dbTx.CreateBucketIfNotExists(txBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrStoreClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put records the transaction under its id, replacing any previous
// entry byte for byte.
func (s *Store) Put(tx *txwire.Tx) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	serialized, err := tx.Bytes()
	if err != nil {
		return err
	}
	txid := tx.TxHash()
	err = s.db.Update(func(dbTx *bolt.Tx) error {
		return dbTx.Bucket(txBucket).Put(txid[:], serialized)
	})
	if err == nil {
		log.Tracef("Indexed %v (%d bytes)", txid, len(serialized))
	}
	return err
}

// FetchTx returns the serialized transaction for txid, or (nil, nil)
// when the index does not contain it.
func (s *Store) FetchTx(txid chainhash.Hash) ([]byte, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var serialized []byte
	err := s.db.View(func(dbTx *bolt.Tx) error {
		v := dbTx.Bucket(txBucket).Get(txid[:])
		if v != nil {
			serialized = make([]byte, len(v))
			copy(serialized, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return serialized, nil
}
