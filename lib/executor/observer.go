// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import "sync"

// Observer receives backend events. Methods are called from the
// backend's goroutines and must not block.
type Observer interface {
	AvailabilityChanged(capability Capability)
	DownloadProgress(downloaded, total int64)
}

// ObserverFuncs adapts functions to [Observer]. Nil fields are skipped.
type ObserverFuncs struct {
	OnAvailabilityChanged func(capability Capability)
	OnDownloadProgress    func(downloaded, total int64)
}

func (funcs ObserverFuncs) AvailabilityChanged(capability Capability) {
	if funcs.OnAvailabilityChanged != nil {
		funcs.OnAvailabilityChanged(capability)
	}
}

func (funcs ObserverFuncs) DownloadProgress(downloaded, total int64) {
	if funcs.OnDownloadProgress != nil {
		funcs.OnDownloadProgress(downloaded, total)
	}
}

// ObserverSet is a concurrency-safe set of observers. The zero value
// is ready to use.
type ObserverSet struct {
	mu        sync.Mutex
	nextID    int
	observers map[int]Observer
}

// Add registers observer and returns its removal function.
func (set *ObserverSet) Add(observer Observer) (remove func()) {
	set.mu.Lock()
	defer set.mu.Unlock()
	if set.observers == nil {
		set.observers = make(map[int]Observer)
	}
	id := set.nextID
	set.nextID++
	set.observers[id] = observer
	return func() {
		set.mu.Lock()
		defer set.mu.Unlock()
		delete(set.observers, id)
	}
}

// Len returns the number of registered observers.
func (set *ObserverSet) Len() int {
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.observers)
}

func (set *ObserverSet) snapshot() []Observer {
	set.mu.Lock()
	defer set.mu.Unlock()
	observers := make([]Observer, 0, len(set.observers))
	for _, observer := range set.observers {
		observers = append(observers, observer)
	}
	return observers
}

// NotifyAvailabilityChanged calls AvailabilityChanged on every
// observer. The set's lock is not held during the calls.
func (set *ObserverSet) NotifyAvailabilityChanged(capability Capability) {
	for _, observer := range set.snapshot() {
		observer.AvailabilityChanged(capability)
	}
}

// NotifyDownloadProgress calls DownloadProgress on every observer.
func (set *ObserverSet) NotifyDownloadProgress(downloaded, total int64) {
	for _, observer := range set.snapshot() {
		observer.DownloadProgress(downloaded, total)
	}
}
