// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load and Delete for an unknown ID.
var ErrNotFound = errors.New("snapshot: not found")

// Store persists snapshots by ID. Save replaces any snapshot with the
// same ID. Implementations are safe for concurrent use.
type Store interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)

	// List returns the stored IDs in lexical order.
	List(ctx context.Context) ([]string, error)

	Delete(ctx context.Context, id string) error

	// Inspect returns the envelope header without decoding the body.
	Inspect(ctx context.Context, id string) (Header, error)

	Close() error
}

// Drivers accepted by [Open].
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Options select and configure a store.
type Options struct {
	Driver string
	Codec  Codec

	// Dir is the file driver's directory.
	Dir string

	// RedisAddr, RedisPrefix, and TTL configure the redis driver.
	RedisAddr   string
	RedisPrefix string
	TTL         time.Duration
}

// Open creates the store options.Driver names.
func Open(options Options) (Store, error) {
	switch options.Driver {
	case DriverMemory:
		return NewMemoryStore(options.Codec), nil
	case DriverFile:
		return NewFileStore(options.Dir, options.Codec)
	case DriverRedis:
		if options.RedisAddr == "" {
			return nil, errors.New("snapshot: redis driver requires an address")
		}
		client := redis.NewClient(&redis.Options{Addr: options.RedisAddr})
		return NewRedisStore(client, options.RedisPrefix, options.TTL, options.Codec), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown driver %q", options.Driver)
	}
}

// validateID rejects IDs that are not UUIDs. IDs become file names and
// Redis keys, so nothing else is accepted.
func validateID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("snapshot: invalid id %q: %w", id, err)
	}
	return nil
}
