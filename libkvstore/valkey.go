// Package libkvstore is a thin key-value layer over Valkey. Values are
// stored as raw JSON so callers keep control of their encoding.
package libkvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"encoding/json"

	"github.com/valkey-io/valkey-go"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("libkv: key not found")
	// ErrConnectionFailed wraps dial and ping failures.
	ErrConnectionFailed = errors.New("libkv: connection failed")
)

// Config holds the connection settings for a Valkey instance.
type Config struct {
	KVAddr     string `json:"kv_addr"`
	KVPassword string `json:"kv_password"`
}

// KVManager owns the client connection. Executors are cheap handles onto it.
type KVManager interface {
	Executor(ctx context.Context) (KVExec, error)
	Close() error
}

// KVExec runs key-value operations. All values are JSON payloads.
type KVExec interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	ListPush(ctx context.Context, key string, value json.RawMessage) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]json.RawMessage, error)
	ListRPop(ctx context.Context, key string) (json.RawMessage, error)
	ListLength(ctx context.Context, key string) (int64, error)

	SetAdd(ctx context.Context, key string, member json.RawMessage) error
	SetMembers(ctx context.Context, key string) ([]json.RawMessage, error)
}

type valkeyManager struct {
	client valkey.Client
}

// NewManager connects to the configured Valkey instance and verifies the
// connection with a ping bounded by timeout.
func NewManager(cfg Config, timeout time.Duration) (KVManager, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.KVAddr},
		Password:    cfg.KVPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}

	return &valkeyManager{client: client}, nil
}

func (m *valkeyManager) Executor(ctx context.Context) (KVExec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &valkeyExec{client: m.client}, nil
}

func (m *valkeyManager) Close() error {
	m.client.Close()
	return nil
}

type valkeyExec struct {
	client valkey.Client
}

func (e *valkeyExec) Get(ctx context.Context, key string) (json.RawMessage, error) {
	resp := e.client.Do(ctx, e.client.B().Get().Key(key).Build())
	data, err := resp.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("libkv: get %q: %w", key, err)
	}
	return json.RawMessage(data), nil
}

func (e *valkeyExec) Set(ctx context.Context, key string, value json.RawMessage) error {
	err := e.client.Do(ctx, e.client.B().Set().Key(key).Value(string(value)).Build()).Error()
	if err != nil {
		return fmt.Errorf("libkv: set %q: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) SetWithTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	err := e.client.Do(ctx, e.client.B().Set().Key(key).Value(string(value)).Ex(ttl).Build()).Error()
	if err != nil {
		return fmt.Errorf("libkv: set %q with ttl: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) Delete(ctx context.Context, key string) error {
	err := e.client.Do(ctx, e.client.B().Del().Key(key).Build()).Error()
	if err != nil {
		return fmt.Errorf("libkv: delete %q: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) Exists(ctx context.Context, key string) (bool, error) {
	n, err := e.client.Do(ctx, e.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("libkv: exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (e *valkeyExec) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := e.client.Do(ctx, e.client.B().Keys().Pattern(pattern).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("libkv: keys %q: %w", pattern, err)
	}
	return keys, nil
}

func (e *valkeyExec) ListPush(ctx context.Context, key string, value json.RawMessage) error {
	err := e.client.Do(ctx, e.client.B().Lpush().Key(key).Element(string(value)).Build()).Error()
	if err != nil {
		return fmt.Errorf("libkv: list push %q: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) ListRange(ctx context.Context, key string, start, stop int64) ([]json.RawMessage, error) {
	items, err := e.client.Do(ctx, e.client.B().Lrange().Key(key).Start(start).Stop(stop).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("libkv: list range %q: %w", key, err)
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}

func (e *valkeyExec) ListRPop(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := e.client.Do(ctx, e.client.B().Rpop().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("libkv: list rpop %q: %w", key, err)
	}
	return json.RawMessage(data), nil
}

func (e *valkeyExec) ListLength(ctx context.Context, key string) (int64, error) {
	n, err := e.client.Do(ctx, e.client.B().Llen().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("libkv: list length %q: %w", key, err)
	}
	return n, nil
}

func (e *valkeyExec) SetAdd(ctx context.Context, key string, member json.RawMessage) error {
	err := e.client.Do(ctx, e.client.B().Sadd().Key(key).Member(string(member)).Build()).Error()
	if err != nil {
		return fmt.Errorf("libkv: set add %q: %w", key, err)
	}
	return nil
}

func (e *valkeyExec) SetMembers(ctx context.Context, key string) ([]json.RawMessage, error) {
	members, err := e.client.Do(ctx, e.client.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("libkv: set members %q: %w", key, err)
	}
	out := make([]json.RawMessage, 0, len(members))
	for _, m := range members {
		out = append(out, json.RawMessage(m))
	}
	return out, nil
}

var (
	_ KVManager = (*valkeyManager)(nil)
	_ KVExec    = (*valkeyExec)(nil)
)
