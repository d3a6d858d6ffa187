// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/txforge/txforge/txwire"
)

// memBlock is a block as MemView tracks it: its transactions and
// whether the block currently sits on the active chain.
type memBlock struct {
	txs    []*txwire.Tx
	active bool
}

// MemView is an in-memory View.  Like MemKeyStore it serves callers
// that hold their state directly, and tests; node-backed
// implementations satisfy the same interface.
type MemView struct {
	mtx     sync.RWMutex
	outputs map[txwire.OutPoint]*PrevOut
	blocks  map[chainhash.Hash]*memBlock
}

// NewMemView returns an empty view.
func NewMemView() *MemView {
	return &MemView{
		outputs: make(map[txwire.OutPoint]*PrevOut),
		blocks:  make(map[chainhash.Hash]*memBlock),
	}
}

// AddOutput records an unspent output.
func (v *MemView) AddOutput(op txwire.OutPoint, pkScript []byte,
	value btcutil.Amount) {

	v.mtx.Lock()
	defer v.mtx.Unlock()
	v.outputs[op] = &PrevOut{PkScript: pkScript, Value: value}
}

// SpendOutput marks a previously added output as spent.
func (v *MemView) SpendOutput(op txwire.OutPoint) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	if prevOut, ok := v.outputs[op]; ok {
		prevOut.Spent = true
	}
}

// AddBlock records a block with the given transactions on the active
// chain.
func (v *MemView) AddBlock(hash chainhash.Hash, txs ...*txwire.Tx) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	v.blocks[hash] = &memBlock{txs: txs, active: true}
}

// SetActive flips whether a known block is part of the active chain,
// mirroring block invalidation and reconsideration.
func (v *MemView) SetActive(hash chainhash.Hash, active bool) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	if block, ok := v.blocks[hash]; ok {
		block.active = active
	}
}

// ResolveOutput returns the recorded output, or (nil, nil) when the
// outpoint is unknown.
func (v *MemView) ResolveOutput(op txwire.OutPoint) (*PrevOut, error) {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	prevOut, ok := v.outputs[op]
	if !ok {
		return nil, nil
	}
	prevOutCopy := *prevOut
	return &prevOutCopy, nil
}

// HasActiveTx reports whether any active block holds a transaction with
// the given id.
func (v *MemView) HasActiveTx(txid chainhash.Hash) (bool, error) {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	for _, block := range v.blocks {
		if !block.active {
			continue
		}
		for _, tx := range block.txs {
			if tx.TxHash() == txid {
				return true, nil
			}
		}
	}
	return false, nil
}

// BlockExists reports whether the block is known, active or not.
func (v *MemView) BlockExists(hash chainhash.Hash) (bool, error) {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	_, ok := v.blocks[hash]
	return ok, nil
}

// BlockTransactions returns the ordered transactions of the block, or
// nil when the block is unknown.
func (v *MemView) BlockTransactions(hash chainhash.Hash) ([]*txwire.Tx, error) {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	block, ok := v.blocks[hash]
	if !ok {
		return nil, nil
	}
	return block.txs, nil
}

// IsActiveChain reports whether the block currently sits on the active
// chain.
func (v *MemView) IsActiveChain(hash chainhash.Hash) (bool, error) {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	block, ok := v.blocks[hash]
	return ok && block.active, nil
}

// MemMempool is an in-memory Mempool.
type MemMempool struct {
	mtx    sync.Mutex
	txs    map[chainhash.Hash]*txwire.Tx
	reject string
}

// NewMemMempool returns an empty mempool.
func NewMemMempool() *MemMempool {
	return &MemMempool{txs: make(map[chainhash.Hash]*txwire.Tx)}
}

// RejectWith makes every following Accept fail with the given reason.
// An empty reason restores normal acceptance.
func (m *MemMempool) RejectWith(reason string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.reject = reason
}

// Contains reports whether the mempool holds a transaction with the
// given id.
func (m *MemMempool) Contains(txid chainhash.Hash) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	_, ok := m.txs[txid]
	return ok
}

// Accept adds the transaction to the pool.
func (m *MemMempool) Accept(tx *txwire.Tx) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.reject != "" {
		return &RejectError{Reason: m.reject}
	}
	m.txs[tx.TxHash()] = tx
	return nil
}
