package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencySweepInterval = 10 * time.Minute

// IdempotencyStore remembers the response sent for an Idempotency-Key.
// SetNX stores value only when key is absent, which lets a request claim a
// key before it runs.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(addr string) *RedisIdempotencyStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisIdempotencyStore{client: rdb}
}

func redisKey(key string) string {
	return "idempotency:" + key
}

func (r *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisIdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisIdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisKey(key), value, ttl).Err()
}

func (r *RedisIdempotencyStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, redisKey(key), value, ttl).Result()
}

func (r *RedisIdempotencyStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKey(key)).Err()
}

func (r *RedisIdempotencyStore) Close() error {
	return r.client.Close()
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryIdempotencyStore is used when no Redis address is configured and in
// tests. Expired entries are swept periodically until Stop is called.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time

	stopSweep chan struct{}
	stopOnce  sync.Once
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	m := &MemoryIdempotencyStore{
		entries:   make(map[string]memoryEntry),
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *MemoryIdempotencyStore) sweepLoop() {
	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *MemoryIdempotencyStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
		}
	}
}

func (m *MemoryIdempotencyStore) Stop() {
	m.stopOnce.Do(func() { close(m.stopSweep) })
}

// live returns the entry for key if it has not expired. Callers hold mu.
func (m *MemoryIdempotencyStore) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryIdempotencyStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	return e.value, ok, nil
}

func (m *MemoryIdempotencyStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryIdempotencyStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemoryIdempotencyStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
