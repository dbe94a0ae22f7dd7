// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package executortest provides a scripted, in-memory
// [executor.Backend] for tests of code that drives conversation
// sessions.
//
// The fake counts one token per whitespace-separated word unless a
// different counter is installed, responds to every execution with a
// configurable text split the way real backends stream it, and records
// every payload it receives so tests can assert on the exact context
// a session built.
package executortest
