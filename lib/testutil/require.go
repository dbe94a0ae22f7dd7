// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"testing"
	"time"
)

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed first. what describes the
// awaited event for the failure message.
//
//	chunk := testutil.RequireReceive(t, chunks, time.Second, "first streamed chunk")
func RequireReceive[T any](t testing.TB, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed before a value arrived", describe(what))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", describe(what), timeout)
	}
	panic("unreachable")
}

// describe joins the optional description arguments. A leading string
// with further arguments is a format.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "waiting for channel"
	case len(what) > 1:
		if format, ok := what[0].(string); ok {
			return fmt.Sprintf(format, what[1:]...)
		}
	}
	return fmt.Sprint(what...)
}
