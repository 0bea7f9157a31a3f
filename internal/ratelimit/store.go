package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable — стор счётчиков не ответил.
var ErrUnavailable = errors.New("rate limit store unavailable")

// CounterStore — атомарный счётчик с окном.
// Incr увеличивает счётчик ключа; первый инкремент открывает окно длиной window.
// Возвращает значение после инкремента и остаток окна.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore создаёт стор счётчиков поверх общего клиента Redis.
func NewRedisStore(rdb *redis.Client, prefix string) CounterStore {
	return &redisStore{rdb: rdb, prefix: prefix}
}

// Incr выполняет INCR + EXPIRE NX + PTTL одной транзакцией:
// TTL выставляется только при открытии окна и не продлевается последующими попаданиями.
func (s *redisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := s.prefix + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	pttl := pipe.PTTL(ctx, k)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ttl := pttl.Val()
	if ttl <= 0 {
		// Ключ без срока (например, создан вручную) — считаем окно только что открытым.
		ttl = window
	}

	return incr.Val(), ttl, nil
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore — стор счётчиков в памяти процесса. Для одного инстанса и тестов.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
	now      func() time.Time
}

// NewMemoryStore создаёт пустой стор; now == nil — time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}

	return &MemoryStore{counters: make(map[string]memoryCounter), now: now}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = memoryCounter{expiresAt: now.Add(window)}
	}

	c.count++
	s.counters[key] = c

	return c.count, c.expiresAt.Sub(now), nil
}

// Sweep удаляет истёкшие окна.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}

var _ CounterStore = (*MemoryStore)(nil)
