package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "warelay:session:"

// RedisBackend implements Store on Redis. It carries the same ephemeral
// contract as MemoryBackend but delegates expiry to server-side key
// TTLs, which makes it suitable when the relay restarts more often than
// its conversations go idle.
type RedisBackend struct {
	client   *redis.Client
	prefix   string
	maxTurns int
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "warelay:session:").
	Prefix string
	// MaxTurns bounds the stored window per identity.
	MaxTurns int
	// Timeout is the session inactivity expiry.
	Timeout time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisBackend creates a Redis-backed session store.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("session: redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping failed: %w", err)
	}

	b := newRedisBackend(client, cfg.Prefix, cfg.MaxTurns, cfg.Timeout)
	return b, nil
}

// NewRedisBackendFromClient creates a Redis backend from an existing
// client. This is useful for testing with miniredis.
func NewRedisBackendFromClient(client *redis.Client, prefix string, maxTurns int, timeout time.Duration) *RedisBackend {
	return newRedisBackend(client, prefix, maxTurns, timeout)
}

func newRedisBackend(client *redis.Client, prefix string, maxTurns int, timeout time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if maxTurns < 1 {
		maxTurns = DefaultMaxHistory
	}
	return &RedisBackend{
		client:   client,
		prefix:   prefix,
		maxTurns: maxTurns,
		timeout:  timeout,
	}
}

func (b *RedisBackend) turnsKey(phone string) string {
	return b.prefix + "turns:" + phone
}

func (b *RedisBackend) profileKey(phone string) string {
	return b.prefix + "profile:" + phone
}

func (b *RedisBackend) guard() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}

// History returns the most recent turns for phone. Reading refreshes the
// session TTL, matching the activity-refresh semantics of the in-memory
// backend. Expired or unknown identities yield an empty history.
func (b *RedisBackend) History(ctx context.Context, phone string, limit int) ([]Turn, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}

	if limit < 1 || limit > b.maxTurns {
		limit = b.maxTurns
	}
	data, err := b.client.LRange(ctx, b.turnsKey(phone), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: load turns: %w", err)
	}

	if len(data) > 0 && b.timeout > 0 {
		b.touch(ctx, phone)
	}

	turns := make([]Turn, 0, len(data))
	for _, d := range data {
		var t Turn
		if err := json.Unmarshal([]byte(d), &t); err != nil {
			return nil, fmt.Errorf("session: unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append adds a turn, trims the window to maxTurns server-side, and
// refreshes the session TTL.
func (b *RedisBackend) Append(ctx context.Context, phone string, role Role, content string) error {
	if err := b.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(Turn{Role: role, Content: content, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("session: marshal turn: %w", err)
	}

	key := b.turnsKey(phone)
	pipe := b.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-b.maxTurns), -1)
	if b.timeout > 0 {
		pipe.Expire(ctx, key, b.timeout)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: append turn: %w", err)
	}
	return nil
}

// UpdateProfile stores the display name alongside the session. Empty
// names never overwrite a stored one.
func (b *RedisBackend) UpdateProfile(ctx context.Context, phone, fullName string) error {
	if err := b.guard(); err != nil {
		return err
	}
	if fullName == "" {
		return nil
	}
	if err := b.client.Set(ctx, b.profileKey(phone), fullName, b.timeout).Err(); err != nil {
		return fmt.Errorf("session: save profile: %w", err)
	}
	return nil
}

// Clear deletes the session and profile keys.
func (b *RedisBackend) Clear(ctx context.Context, phone string) error {
	if err := b.guard(); err != nil {
		return err
	}
	if err := b.client.Del(ctx, b.turnsKey(phone), b.profileKey(phone)).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// ActiveCount counts identities with a live turns key. Expired keys have
// already been reclaimed by Redis, so no eviction pass is needed.
func (b *RedisBackend) ActiveCount(ctx context.Context) (int, error) {
	if err := b.guard(); err != nil {
		return 0, err
	}

	count := 0
	iter := b.client.Scan(ctx, 0, b.prefix+"turns:*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("session: scan sessions: %w", err)
	}
	return count, nil
}

// Close releases the client's connection pool.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

// Ping checks if the Redis connection is alive.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.guard(); err != nil {
		return err
	}
	return b.client.Ping(ctx).Err()
}

// touch refreshes the TTL on both session keys.
func (b *RedisBackend) touch(ctx context.Context, phone string) {
	pipe := b.client.Pipeline()
	pipe.Expire(ctx, b.turnsKey(phone), b.timeout)
	pipe.Expire(ctx, b.profileKey(phone), b.timeout)
	_, _ = pipe.Exec(ctx)
}

var _ Store = (*RedisBackend)(nil)
