// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txsigner

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// ErrNotMultisig is returned when a script expected to be a threshold
// multisig script is something else.
var ErrNotMultisig = errors.New("script is not a threshold multisig script")

// DigestFunc computes the signature digest a signature over the given
// subscript must commit to.  It closes over the transaction and input
// index so slot handling stays free of transaction plumbing.
type DigestFunc func(subScript []byte, hashType txscript.SigHashType) ([]byte, error)

// SigSlots is the tagged in-memory form of (possibly partial) threshold
// multisig unlocking data: one slot per public key, in the order the
// keys appear in the multisig script, each holding a signature or
// nothing.  Conversion to and from the wire signature script happens
// only at the edges, so merge logic never parses script grammar.
type SigSlots struct {
	// Required is the threshold M of the M-of-N script.
	Required int

	// Keys holds the N public keys in script order.
	Keys []*btcec.PublicKey

	// Sigs is index-aligned with Keys.  A nil entry is an empty slot.
	// Present signatures include the trailing hash-type byte.
	Sigs [][]byte

	// Script is the multisig script itself: the redeem script for a
	// pay-to-script-hash spend, or the previous output script for a
	// bare multisig one.
	Script []byte
}

// ParseMultisigScript builds empty signature slots from a threshold
// multisig script.
func ParseMultisigScript(script []byte, params *chaincfg.Params) (*SigSlots, error) {
	class, addrs, required, err := txscript.ExtractPkScriptAddrs(
		script, params,
	)
	if err != nil {
		return nil, err
	}
	if class != txscript.MultiSigTy {
		return nil, ErrNotMultisig
	}

	keys := make([]*btcec.PublicKey, 0, len(addrs))
	for _, addr := range addrs {
		pkAddr, ok := addr.(*btcutil.AddressPubKey)
		if !ok {
			return nil, fmt.Errorf("unexpected address type %T in "+
				"multisig script", addr)
		}
		keys = append(keys, pkAddr.PubKey())
	}

	return &SigSlots{
		Required: required,
		Keys:     keys,
		Sigs:     make([][]byte, len(keys)),
		Script:   script,
	}, nil
}

// ParseSigScript rebuilds signature slots from an existing signature
// script of a pay-to-script-hash multisig spend.  The redeem script is
// taken from the final push; every other non-empty push is treated as a
// candidate signature and assigned to the slot whose key verifies it
// over the digest computed by digest.  Unverifiable pushes are dropped.
func ParseSigScript(sigScript []byte, params *chaincfg.Params,
	digest DigestFunc) (*SigSlots, error) {

	pushes, err := txscript.PushedData(sigScript)
	if err != nil {
		return nil, err
	}
	if len(pushes) == 0 {
		return nil, ErrNotMultisig
	}

	redeem := pushes[len(pushes)-1]
	slots, err := ParseMultisigScript(redeem, params)
	if err != nil {
		return nil, err
	}

	for _, push := range pushes[:len(pushes)-1] {
		// The leading OP_0 consumed by CHECKMULTISIG's off-by-one pops
		// shows up as an empty push.
		if len(push) == 0 {
			continue
		}
		slots.AssignSig(push, digest)
	}
	return slots, nil
}

// AssignSig places sig into the slot of the first unclaimed key that
// verifies it.  It reports whether a slot was found.  Assignment by
// verification is what keeps the slot order canonical regardless of the
// order signatures arrive in.
func (s *SigSlots) AssignSig(sig []byte, digest DigestFunc) bool {
	if len(sig) < 2 {
		return false
	}
	hashType := txscript.SigHashType(sig[len(sig)-1])
	parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return false
	}
	hash, err := digest(s.Script, hashType)
	if err != nil {
		return false
	}
	for i, key := range s.Keys {
		if s.Sigs[i] != nil {
			continue
		}
		if parsed.Verify(hash, key) {
			s.Sigs[i] = sig
			return true
		}
	}
	return false
}

// SetSig places sig into the slot belonging to pub.  It reports whether
// the key is part of the script.
func (s *SigSlots) SetSig(pub *btcec.PublicKey, sig []byte) bool {
	for i, key := range s.Keys {
		if key.IsEqual(pub) {
			s.Sigs[i] = sig
			return true
		}
	}
	return false
}

// Merge copies every present signature of other into the matching empty
// slot of s.  Both must describe the same script.
func (s *SigSlots) Merge(other *SigSlots) error {
	if !bytes.Equal(s.Script, other.Script) {
		return errors.New("multisig scripts differ")
	}
	for i, sig := range other.Sigs {
		if sig != nil && s.Sigs[i] == nil {
			s.Sigs[i] = sig
		}
	}
	return nil
}

// Count returns the number of filled slots.
func (s *SigSlots) Count() int {
	n := 0
	for _, sig := range s.Sigs {
		if sig != nil {
			n++
		}
	}
	return n
}

// Complete reports whether the threshold is met.
func (s *SigSlots) Complete() bool {
	return s.Count() >= s.Required
}

// SigScript converts the slots back to a wire signature script: the
// dummy OP_0, the present signatures in slot order, and the redeem
// script push when p2sh is set.  At most Required signatures are
// emitted.
func (s *SigSlots) SigScript(p2sh bool) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	emitted := 0
	for _, sig := range s.Sigs {
		if sig == nil {
			continue
		}
		if emitted == s.Required {
			break
		}
		builder.AddData(sig)
		emitted++
	}
	if p2sh {
		builder.AddData(s.Script)
	}
	return builder.Script()
}
