// Package kv is a thin wrapper over the shared Redis key-value store used
// to mirror cross-process state: connected-device liveness and the
// metrics snapshot. Writers are single-process; readers must treat the
// values as eventually consistent.
package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyConnectedDevices = "tm20:connected_devices"
	KeyConnectedCount   = "tm20:connected_count"
	KeyMetrics          = "tm20:metrics"

	// DefaultTTL is 2x the default 60s heartbeat interval.
	DefaultTTL = 120 * time.Second
)

// Store wraps a redis.Client with the hub's mirror operations.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Store from a redis.Client, with ttl overriding DefaultTTL
// when the caller's heartbeat_interval differs from the 60s default.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// ConnectedDevicesSnapshot is the payload mirrored at KeyConnectedDevices.
type ConnectedDevicesSnapshot struct {
	SNs   []string `json:"sns"`
	Count int      `json:"count"`
}

// SetConnectedDevices mirrors the registry's live SN set.
func (s *Store) SetConnectedDevices(ctx context.Context, sns []string) error {
	snapshot := ConnectedDevicesSnapshot{SNs: sns, Count: len(sns)}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, KeyConnectedDevices, payload, s.ttl)
	pipe.Set(ctx, KeyConnectedCount, len(sns), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// GetConnectedDevices reads the mirrored snapshot. A cache miss (TTL
// expired, or nothing written yet) returns an empty snapshot, not an error.
func (s *Store) GetConnectedDevices(ctx context.Context) (ConnectedDevicesSnapshot, error) {
	raw, err := s.client.Get(ctx, KeyConnectedDevices).Bytes()
	if err == redis.Nil {
		return ConnectedDevicesSnapshot{}, nil
	}
	if err != nil {
		return ConnectedDevicesSnapshot{}, err
	}

	var snapshot ConnectedDevicesSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return ConnectedDevicesSnapshot{}, err
	}
	return snapshot, nil
}

// SetMetricsSnapshot mirrors a metrics snapshot object, throttled by the
// caller to at most once per second.
func (s *Store) SetMetricsSnapshot(ctx context.Context, snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, KeyMetrics, payload, s.ttl).Err()
}

// GetMetricsSnapshot reads the mirrored metrics object into dst.
func (s *Store) GetMetricsSnapshot(ctx context.Context, dst any) error {
	raw, err := s.client.Get(ctx, KeyMetrics).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Ping checks connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
