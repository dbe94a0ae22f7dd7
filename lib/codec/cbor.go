// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	// snapshotEncoding is Core Deterministic Encoding with times kept
	// as RFC 3339 strings at nanosecond precision, so a saved session
	// always hashes to the same digest.
	snapshotEncoding cbor.EncMode

	// snapshotDecoding ignores unknown fields so an older binary can
	// read a snapshot written by a newer one, but rejects duplicate map
	// keys, which deterministic encoding never produces.
	snapshotDecoding cbor.DecMode
)

func init() {
	encodeOptions := cbor.CoreDetEncOptions()
	encodeOptions.Time = cbor.TimeRFC3339Nano
	encoding, err := encodeOptions.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building CBOR encoder: %v", err))
	}

	decoding, err := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building CBOR decoder: %v", err))
	}
	snapshotEncoding, snapshotDecoding = encoding, decoding
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return snapshotEncoding.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return snapshotDecoding.Unmarshal(data, v)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
