// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps envelopes in a map. It goes through the codec
// like the other stores so that sealing and digests behave the same.
type MemoryStore struct {
	codec Codec

	mu        sync.Mutex
	envelopes map[string][]byte
}

func NewMemoryStore(codec Codec) *MemoryStore {
	return &MemoryStore{codec: codec, envelopes: make(map[string][]byte)}
}

func (store *MemoryStore) Save(_ context.Context, snapshot Snapshot) error {
	if err := validateID(snapshot.ID); err != nil {
		return err
	}
	envelope, err := store.codec.Encode(snapshot)
	if err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.envelopes[snapshot.ID] = envelope
	return nil
}

func (store *MemoryStore) Load(_ context.Context, id string) (Snapshot, error) {
	envelope, err := store.envelope(id)
	if err != nil {
		return Snapshot{}, err
	}
	return store.codec.Decode(envelope)
}

func (store *MemoryStore) Inspect(_ context.Context, id string) (Header, error) {
	envelope, err := store.envelope(id)
	if err != nil {
		return Header{}, err
	}
	return ParseHeader(envelope)
}

func (store *MemoryStore) List(context.Context) ([]string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return slices.Sorted(maps.Keys(store.envelopes)), nil
}

func (store *MemoryStore) Delete(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, found := store.envelopes[id]; !found {
		return ErrNotFound
	}
	delete(store.envelopes, id)
	return nil
}

func (store *MemoryStore) Close() error { return nil }

func (store *MemoryStore) envelope(id string) ([]byte, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	envelope, found := store.envelopes[id]
	if !found {
		return nil, ErrNotFound
	}
	return envelope, nil
}
