// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"github.com/atelier-dev/atelier/lib/codec"
)

// snapshotKeyPrefix namespaces session snapshots in a shared redis.
const snapshotKeyPrefix = "atelier:session:"

// DefaultSnapshotTTL bounds how long an orphaned snapshot survives.
// Live sessions refresh the TTL on every write-through; a day covers
// any plausible hub outage without accumulating garbage forever.
const DefaultSnapshotTTL = 24 * time.Hour

// RedisStore is a SessionStore backed by redis, for deployments where
// session snapshots should survive a hub restart. Snapshots are
// CBOR-encoded and zstd-compressed: workspace text compresses well,
// and the snapshot is rewritten on every mutation.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an established redis client. A non-positive ttl
// falls back to DefaultSnapshotTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Save stores the compressed snapshot under the session's key.
func (s *RedisStore) Save(ctx context.Context, id string, snapshot Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, snapshotKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session %s: %w", id, err)
	}
	return nil
}

// Load fetches and decodes the snapshot for id.
func (s *RedisStore) Load(ctx context.Context, id string) (Snapshot, bool, error) {
	data, err := s.client.Get(ctx, snapshotKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("redis load session %s: %w", id, err)
	}
	snapshot, err := decodeSnapshot(data)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("session %s: %w", id, err)
	}
	return snapshot, true, nil
}

// Delete removes the snapshot for id.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, snapshotKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return nil
}

// snapshotEncoder and snapshotDecoder are shared across stores. Both
// are safe for concurrent use via EncodeAll/DecodeAll.
var snapshotEncoder *zstd.Encoder
var snapshotDecoder *zstd.Decoder

func init() {
	var err error
	snapshotEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("registry: zstd encoder initialization failed: " + err.Error())
	}
	snapshotDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("registry: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeSnapshot serializes a snapshot as zstd-compressed CBOR.
func encodeSnapshot(snapshot Snapshot) ([]byte, error) {
	raw, err := codec.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return snapshotEncoder.EncodeAll(raw, nil), nil
}

// decodeSnapshot reverses encodeSnapshot.
func decodeSnapshot(data []byte) (Snapshot, error) {
	raw, err := snapshotDecoder.DecodeAll(data, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := codec.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}
