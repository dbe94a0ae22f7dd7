// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "lmsession:snapshot:"
	defaultRedisTTL    = 7 * 24 * time.Hour
)

// RedisStore keeps envelopes as Redis strings with a TTL. A set at
// <prefix>index tracks the IDs for List; entries whose key has
// expired are pruned from the index when listed.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	codec  Codec
}

// NewRedisStore wraps client. An empty prefix or non-positive ttl
// selects the defaults. The store owns client and closes it.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, codec Codec) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, codec: codec}
}

func (store *RedisStore) key(id string) string { return store.prefix + id }

func (store *RedisStore) indexKey() string { return store.prefix + "index" }

func (store *RedisStore) Save(ctx context.Context, snapshot Snapshot) error {
	if err := validateID(snapshot.ID); err != nil {
		return err
	}
	envelope, err := store.codec.Encode(snapshot)
	if err != nil {
		return err
	}
	_, err = store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, store.key(snapshot.ID), envelope, store.ttl)
		pipe.SAdd(ctx, store.indexKey(), snapshot.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot: saving %s: %w", snapshot.ID, err)
	}
	return nil
}

// read fetches an envelope and refreshes its TTL.
func (store *RedisStore) read(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	envelope, err := store.client.GetEx(ctx, store.key(id), store.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: loading %s: %w", id, err)
	}
	return envelope, nil
}

func (store *RedisStore) Load(ctx context.Context, id string) (Snapshot, error) {
	envelope, err := store.read(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return store.codec.Decode(envelope)
}

func (store *RedisStore) Inspect(ctx context.Context, id string) (Header, error) {
	envelope, err := store.read(ctx, id)
	if err != nil {
		return Header{}, err
	}
	return ParseHeader(envelope)
}

func (store *RedisStore) List(ctx context.Context) ([]string, error) {
	members, err := store.client.SMembers(ctx, store.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := store.client.Pipeline()
	exists := make([]*redis.IntCmd, len(members))
	for index, id := range members {
		exists[index] = pipe.Exists(ctx, store.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("snapshot: listing: %w", err)
	}

	var live, expired []string
	for index, id := range members {
		if exists[index].Val() > 0 {
			live = append(live, id)
		} else {
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		// Failing to prune only leaves stale index entries behind.
		_ = store.client.SRem(ctx, store.indexKey(), toAny(expired)...).Err()
	}
	slices.Sort(live)
	return live, nil
}

func (store *RedisStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	var deleted *redis.IntCmd
	_, err := store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, store.key(id))
		pipe.SRem(ctx, store.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshot: deleting %s: %w", id, err)
	}
	if deleted.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (store *RedisStore) Close() error { return store.client.Close() }

func toAny(values []string) []any {
	result := make([]any, len(values))
	for index, value := range values {
		result[index] = value
	}
	return result
}
