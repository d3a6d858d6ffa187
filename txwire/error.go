// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txwire

import "fmt"

// Field names used by DecodeError to identify the exact portion of a
// serialized transaction that failed to parse.
const (
	FieldVersion         = "version"
	FieldInputCount      = "input count"
	FieldOutputCount     = "output count"
	FieldOutPoint        = "previous outpoint"
	FieldSignatureScript = "signature script"
	FieldSequence        = "sequence"
	FieldValue           = "output value"
	FieldPkScript        = "pkscript"
	FieldWitnessCount    = "witness item count"
	FieldWitnessItem     = "witness item"
	FieldLockTime        = "locktime"
	FieldSegwitFlag      = "segwit flag"
	FieldTrailing        = "trailing bytes"
)

// DecodeError describes a failure to deserialize a transaction.  Field
// identifies which portion of the serialization was malformed or
// truncated, so callers can report more than a generic parse failure.
type DecodeError struct {
	Field string
	Err   error
}

// Error satisfies the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed transaction %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(field string, err error) *DecodeError {
	return &DecodeError{Field: field, Err: err}
}

func decodeErrorf(field, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Field: field, Err: fmt.Errorf(format, args...)}
}
