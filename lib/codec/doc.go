// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the module's single CBOR configuration.
//
// Persisted session snapshots are CBOR. Everything that reaches a
// human (CLI --json output, config files, provider requests) is JSON
// or YAML. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same snapshot always encodes to the
// same bytes, which is what lets a snapshot's digest identify its
// content.
//
//	data, err := codec.Marshal(snapshot)
//	err = codec.Unmarshal(data, &snapshot)
//
// Types shared with JSON output carry only `json` tags; fxamacker/cbor
// falls back to them when no `cbor` tag is present. Types that are
// only ever CBOR carry `cbor` tags. A field never carries both.
package codec
