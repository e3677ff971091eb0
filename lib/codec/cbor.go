// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Updraft's standard CBOR encoding configuration.
//
// Updraft uses two serialization formats with a clear boundary:
//
//   - JSON for the external manifest interface and CLI --json output.
//   - CBOR for on-disk state: bundle metadata records, the activation
//     pointer, readiness records, and the review-prompt limiter state.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical state always produces identical bytes, which keeps
// atomic rewrite-and-rename of unchanged records a true no-op and
// makes state files diffable in tests.
//
// Struct tag rule: types serialized only as CBOR carry `cbor` tags;
// types that also appear in JSON output carry `json` tags (fxamacker
// reads json tags as fallback).
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored for forward compatibility, so
// newer binaries can read state written by older ones and vice versa.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// State records never use non-string map keys. When decoding
		// into any-typed targets, produce map[string]any rather than
		// the CBOR default map[any]any, which most Go code (and
		// encoding/json) cannot consume.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns a stream encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading CBOR from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
