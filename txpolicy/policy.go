// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txpolicy implements the fee-rate admission policy applied to
// raw transactions before they are handed to the mempool.
package txpolicy

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/txforge/txforge/chain"
	"github.com/txforge/txforge/txwire"
)

// FeeRate is a fee rate in satoshi per 1000 virtual bytes.
type FeeRate int64

// DefaultMaxFeeRate is the process-wide admission cap applied when a
// call does not supply its own: 0.1 BTC per kvB, matching the
// historical maximum transaction fee setting.
const DefaultMaxFeeRate = FeeRate(btcutil.SatoshiPerBitcoin / 10)

// String renders the rate in BTC/kvB for reporting.
func (r FeeRate) String() string {
	return fmt.Sprintf("%s/kvB", btcutil.Amount(r))
}

// RejectReason classifies why admission was refused.
type RejectReason int

// Admission reject reasons, in the order they are checked.
const (
	ReasonNone RejectReason = iota
	ReasonMissingInputs
	ReasonAlreadyKnown
	ReasonMaxFeeExceeded
)

// String returns the wire form of the reason, as reported to callers.
func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonMissingInputs:
		return "bad-txns-inputs-missingorspent"
	case ReasonAlreadyKnown:
		return "txn-already-known"
	case ReasonMaxFeeExceeded:
		return "max-fee-exceeded"
	}
	return fmt.Sprintf("unknown reject reason %d", int(r))
}

// Verdict is the outcome of an admission evaluation.
type Verdict struct {
	Allowed bool
	Reason  RejectReason

	// FeeRate is the transaction's effective fee rate.  It is only
	// meaningful when the fee could be computed, which requires every
	// input to resolve.
	FeeRate FeeRate
}

// Errors surfaced by Submit for each reject reason.
var (
	ErrMissingInputs  = errors.New("bad-txns-inputs-missingorspent")
	ErrAlreadyKnown   = errors.New("Transaction already in block chain")
	ErrMaxFeeExceeded = errors.New(
		"Fee exceeds maximum configured by user (e.g. -maxtxfee, maxfeerate)")
)

// Gate evaluates transactions against admission policy using a chain
// view for input resolution and a mempool for final submission.  It
// holds no state of its own; chain answers are treated as a best-effort
// snapshot.
type Gate struct {
	view    chain.View
	mempool chain.Mempool
}

// New returns an admission gate.
func New(view chain.View, mempool chain.Mempool) *Gate {
	return &Gate{view: view, mempool: mempool}
}

// RateForFee computes the effective fee rate of a transaction paying
// the given absolute fee, using virtual size as the size unit.
func RateForFee(fee btcutil.Amount, tx *txwire.Tx) FeeRate {
	vsize := tx.VSize()
	if vsize == 0 {
		return 0
	}
	return FeeRate(int64(fee) * 1000 / int64(vsize))
}

// Evaluate classifies the transaction for admission.  maxFeeRate nil
// applies DefaultMaxFeeRate; a pointer to zero disables the cap.
// Checks run in a fixed priority order: unknown or spent inputs first,
// then already-known, then the fee cap, so a transaction failing
// several checks always reports the same reason.
func (g *Gate) Evaluate(tx *txwire.Tx, maxFeeRate *FeeRate) (*Verdict, error) {
	var totalIn btcutil.Amount
	for _, txIn := range tx.TxIn {
		prevOut, err := g.view.ResolveOutput(txIn.PreviousOutPoint)
		if err != nil {
			return nil, err
		}
		if prevOut == nil || prevOut.Spent {
			return &Verdict{Reason: ReasonMissingInputs}, nil
		}
		totalIn += prevOut.Value
	}

	known, err := g.view.HasActiveTx(tx.TxHash())
	if err != nil {
		return nil, err
	}
	if known {
		return &Verdict{Reason: ReasonAlreadyKnown}, nil
	}

	var totalOut btcutil.Amount
	for _, txOut := range tx.TxOut {
		totalOut += btcutil.Amount(txOut.Value)
	}
	fee := totalIn - totalOut
	if fee < 0 {
		fee = 0
	}

	verdict := CheckFeeRate(tx, fee, maxFeeRate)
	if !verdict.Allowed {
		log.Debugf("Rejecting %v: fee rate %v exceeds cap",
			tx.TxHash(), verdict.FeeRate)
	}
	return verdict, nil
}

// CheckFeeRate applies only the fee cap to a transaction paying the
// given absolute fee.  It is pure and usable without a chain view.
// maxFeeRate nil applies DefaultMaxFeeRate; a pointer to zero disables
// the cap.
func CheckFeeRate(tx *txwire.Tx, fee btcutil.Amount,
	maxFeeRate *FeeRate) *Verdict {

	rate := RateForFee(fee, tx)

	maxRate := DefaultMaxFeeRate
	if maxFeeRate != nil {
		maxRate = *maxFeeRate
	}
	if maxRate > 0 && rate > maxRate {
		return &Verdict{Reason: ReasonMaxFeeExceeded, FeeRate: rate}
	}
	return &Verdict{Allowed: true, FeeRate: rate}
}

// Submit runs Evaluate and, when the transaction is allowed, hands it
// to the mempool.  Policy rejections surface as errors here, unlike
// Evaluate, which reports them as verdicts.
func (g *Gate) Submit(tx *txwire.Tx, maxFeeRate *FeeRate) error {
	verdict, err := g.Evaluate(tx, maxFeeRate)
	if err != nil {
		return err
	}
	if !verdict.Allowed {
		switch verdict.Reason {
		case ReasonMissingInputs:
			return ErrMissingInputs
		case ReasonAlreadyKnown:
			return ErrAlreadyKnown
		case ReasonMaxFeeExceeded:
			return ErrMaxFeeExceeded
		}
	}
	return g.mempool.Accept(tx)
}
