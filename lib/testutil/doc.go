// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] wraps the select-with-timeout pattern so that tests
// of streaming and pending session creation never block forever and
// never call time.After themselves. It is the only place in the test
// suite where a real wall-clock timeout appears; everything else runs
// on lib/clock.
//
// [Logger] returns a slog.Logger that writes through t.Log, so log
// output from the code under test is attributed to the test that
// produced it and shown only on failure or with -v.
package testutil
