// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the module's injectable time source.
//
// Anything that reads the time or waits on it takes a [Clock]: the
// session manager stamps sessions and pending creations, the on-device
// backend counts crashes and timeouts inside a rolling window, and the
// CLI paces its download progress display. Production code passes
// [Real]; tests pass a [Fake], which stands still until Advance is
// called.
//
//	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go worker(fake)          // worker calls fake.After(time.Minute)
//	fake.WaitForTimers(1)    // wait until it is actually waiting
//	fake.Advance(time.Minute)
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
