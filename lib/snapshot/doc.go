// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot persists conversation sessions.
//
// A [Snapshot] is the structured context window of a session (initial
// turns, rolling turns, budget) plus its capability and sampling
// parameters. It is enough to resume a conversation in a new process
// or on a different backend: restoring starts a fresh executor
// session and replays the window into it.
//
// [Codec] turns a snapshot into a self-describing envelope:
//
//	magic "LMSS" | version | compression tag | flags | reserved
//	uint32 uncompressed size (big endian)
//	32-byte BLAKE3 digest of the CBOR body
//	body
//
// The body is the CBOR encoding (lib/codec), compressed with LZ4 or
// zstd when that makes it smaller, and optionally encrypted to one or
// more age X25519 recipients. The digest covers the plaintext CBOR, so
// two envelopes of the same conversation have the same digest whatever
// their compression or sealing.
//
// [Store] implementations keep envelopes in memory, in a directory, or
// in Redis with a TTL. Stores hold only envelopes; decoding happens
// through the store's Codec, so a sealed store cannot be read without
// the identity.
package snapshot
