package commands

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore tracks per-invoker cooldown windows.
type CooldownStore interface {
	// Acquire opens a window of length per for key. When a window is already
	// open it returns the time left instead.
	Acquire(ctx context.Context, key string, per time.Duration) (time.Duration, error)
}

// MemoryCooldowns keeps windows in process memory.
type MemoryCooldowns struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryCooldowns returns an empty in-memory store.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (m *MemoryCooldowns) Acquire(_ context.Context, key string, per time.Duration) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, until := range m.until {
		if !until.After(now) {
			delete(m.until, k)
		}
	}

	if until, ok := m.until[key]; ok {
		return until.Sub(now), nil
	}
	m.until[key] = now.Add(per)
	return 0, nil
}

// RedisCooldowns shares windows between agent processes through Redis keys
// that expire with the window.
type RedisCooldowns struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisCooldowns stores windows under prefix+key.
func NewRedisCooldowns(rdb redis.Cmdable, prefix string) *RedisCooldowns {
	if prefix == "" {
		prefix = "chatagent:cooldown:"
	}
	return &RedisCooldowns{rdb: rdb, prefix: prefix}
}

func (r *RedisCooldowns) Acquire(ctx context.Context, key string, per time.Duration) (time.Duration, error) {
	key = r.prefix + key
	// a window that expires between SETNX and PTTL is claimed again
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.rdb.SetNX(ctx, key, 1, per).Result()
		if err != nil {
			return 0, err
		}
		if ok {
			return 0, nil
		}

		ttl, err := r.rdb.PTTL(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return 0, err
		}
		if ttl > 0 {
			return ttl, nil
		}
	}
	return 0, nil
}

func cooldownKey(command, userID string) string {
	return command + ":" + userID
}
