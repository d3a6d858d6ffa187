// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// MemKeyStore is an in-memory KeyStore.  It is intended for callers
// that manage raw keys directly (and for tests); wallet-backed
// implementations satisfy the same interface.
type MemKeyStore struct {
	mtx     sync.RWMutex
	params  *chaincfg.Params
	keys    map[string]*btcec.PrivateKey
	scripts map[string][]byte
}

// NewMemKeyStore returns an empty key store for the given network.
func NewMemKeyStore(params *chaincfg.Params) *MemKeyStore {
	return &MemKeyStore{
		params:  params,
		keys:    make(map[string]*btcec.PrivateKey),
		scripts: make(map[string][]byte),
	}
}

// AddKey registers a private key under its compressed pay-to-pubkey-hash
// and pay-to-witness-pubkey-hash addresses.
func (s *MemKeyStore) AddKey(key *btcec.PrivateKey) error {
	pkHash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	p2pkh, err := btcutil.NewAddressPubKeyHash(pkHash, s.params)
	if err != nil {
		return err
	}
	p2wpkh, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, s.params)
	if err != nil {
		return err
	}
	pubKey, err := btcutil.NewAddressPubKey(
		key.PubKey().SerializeCompressed(), s.params,
	)
	if err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.keys[p2pkh.EncodeAddress()] = key
	s.keys[p2wpkh.EncodeAddress()] = key
	s.keys[pubKey.EncodeAddress()] = key
	return nil
}

// AddScript registers a redeem script under its pay-to-script-hash
// address.
func (s *MemKeyStore) AddScript(script []byte) (btcutil.Address, error) {
	addr, err := btcutil.NewAddressScriptHash(script, s.params)
	if err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	scriptCopy := make([]byte, len(script))
	copy(scriptCopy, script)
	s.scripts[addr.EncodeAddress()] = scriptCopy
	return addr, nil
}

// KeyForAddress returns the registered key for addr, or (nil, false,
// nil) when the store does not hold it.
func (s *MemKeyStore) KeyForAddress(addr btcutil.Address) (*btcec.PrivateKey, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	key, ok := s.keys[addr.EncodeAddress()]
	if !ok {
		return nil, false, nil
	}
	return key, true, nil
}

// ScriptForAddress returns the registered redeem script for addr, or
// (nil, nil) when the store does not hold it.
func (s *MemKeyStore) ScriptForAddress(addr btcutil.Address) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	script, ok := s.scripts[addr.EncodeAddress()]
	if !ok {
		return nil, nil
	}
	return script, nil
}
