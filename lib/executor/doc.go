// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor defines the contract between conversation sessions
// and the model runtimes that execute them.
//
// A [Backend] answers whether a capability can run right now
// ([Backend.Eligibility]) and starts [Session] handles for it. A
// Session sizes text and payloads in tokens, accepts context ahead of
// execution, and executes a payload as a [Stream] of [Chunk] values
// ending in exactly one chunk with Complete set.
//
// Backends differ in what each streamed chunk contains. In
// [ChunkByChunk] mode every chunk is a new fragment; in
// [CurrentResponse] mode every chunk is the response so far. Consumers
// that need one form normalize at the boundary.
//
// Backends report availability changes and model download progress
// to registered [Observer] values; [ObserverSet] is the fan-out they
// embed.
//
// Implementations live in the remote and ondevice subpackages;
// executortest provides a scripted backend for tests.
package executor
