// Copyright (c) 2024-2026 The txforge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package txwire implements the binary transaction encoding.

Both the legacy and the extended (witness-carrying) serializations are
supported.  Encoding is total and deterministic; decoding rejects
malformed input with a DecodeError naming the exact field that failed,
and round-trips every valid transaction bit for bit.  The transaction
version is treated as a raw unsigned 32-bit pattern throughout, so a
serialization produced from a negative signed version decodes to the
unsigned equivalent.
*/
package txwire
