// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake is a deterministic Clock. Time moves only when Advance is
// called. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	changed *sync.Cond
	current time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	channel  chan time.Time

	// interval is non-zero for tickers, which are rescheduled after
	// firing.
	interval time.Duration
	stopped  bool
}

// NewFake returns a Fake clock reading initial.
func NewFake(initial time.Time) *Fake {
	fake := &Fake{current: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

func (fake *Fake) Now() time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.current
}

func (fake *Fake) After(d time.Duration) <-chan time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- fake.current
		return channel
	}
	fake.register(&waiter{deadline: fake.current.Add(d), channel: channel})
	return channel
}

func (fake *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	entry := &waiter{deadline: fake.current.Add(d), channel: make(chan time.Time, 1), interval: d}
	fake.register(entry)
	return &Ticker{
		C: entry.channel,
		stop: func() {
			fake.mu.Lock()
			defer fake.mu.Unlock()
			entry.stopped = true
			fake.waiters = slices.DeleteFunc(fake.waiters, func(candidate *waiter) bool { return candidate == entry })
		},
	}
}

// register must be called with fake.mu held.
func (fake *Fake) register(entry *waiter) {
	fake.waiters = append(fake.waiters, entry)
	fake.changed.Broadcast()
}

// Advance moves the clock forward by d and fires, in deadline order,
// every waiter whose deadline has been reached. A ticker whose period
// fits several times into d fires once per period, dropping ticks the
// channel cannot hold.
func (fake *Fake) Advance(d time.Duration) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.current = fake.current.Add(d)

	for {
		due := fake.nextDue()
		if due == nil {
			return
		}
		select {
		case due.channel <- fake.current:
		default:
		}
		if due.interval > 0 {
			due.deadline = due.deadline.Add(due.interval)
		} else {
			fake.waiters = slices.DeleteFunc(fake.waiters, func(candidate *waiter) bool { return candidate == due })
		}
	}
}

// nextDue returns the earliest waiter at or before the current time.
func (fake *Fake) nextDue() *waiter {
	var earliest *waiter
	for _, entry := range fake.waiters {
		if entry.stopped || entry.deadline.After(fake.current) {
			continue
		}
		if earliest == nil || entry.deadline.Before(earliest.deadline) {
			earliest = entry
		}
	}
	return earliest
}

// WaitForTimers blocks until at least n waiters (After channels and
// tickers) are pending.
func (fake *Fake) WaitForTimers(n int) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for len(fake.waiters) < n {
		fake.changed.Wait()
	}
}

// PendingCount returns the number of pending waiters.
func (fake *Fake) PendingCount() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return len(fake.waiters)
}
