// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rawapi

import (
	"encoding/hex"
	"errors"
)

// Error types to simplify the reporting of specific categories of
// errors to the transport layer sitting above this package.
type (
	// DeserializationError describes a failed deserialization due to
	// bad user input.
	DeserializationError struct {
		error
	}

	// InvalidParameterError describes an invalid parameter passed by
	// the user.
	InvalidParameterError struct {
		error
	}

	// InvalidAddressError describes a destination that does not parse
	// on the target network.
	InvalidAddressError struct {
		error
	}

	// NotFoundError describes a lookup that found nothing.
	NotFoundError struct {
		error
	}
)

// Errors variables that are defined once here to avoid duplication.
var (
	ErrInvalidAmount = InvalidParameterError{
		errors.New("Invalid amount"),
	}

	ErrTxDecodeFailed = DeserializationError{
		errors.New("TX decode failed"),
	}

	ErrNoTransactions = InvalidParameterError{
		errors.New("Missing transactions"),
	}
)

// decodeHexStr decodes the hex encoding of string, possibly prepending
// a leading '0' character if there is an odd number of characters.
func decodeHexStr(hexStr string) ([]byte, error) {
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	return decoded, nil
}
