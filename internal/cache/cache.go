// Package cache — кэш выдач и счётчики версий поверх Redis (или памяти процесса).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable — бэкенд кэша не ответил; вызывающий деградирует к хранилищу.
var ErrUnavailable = errors.New("cache unavailable")

// Cache — минимальный контракт кэша.
type Cache interface {
	// Get возвращает значение и признак его наличия в кэше.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set сохраняет значение с TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete удаляет ключи; отсутствующие игнорируются.
	// Выдачи инвалидируются через Incr версии; Delete убирает конкретные записи.
	Delete(ctx context.Context, keys ...string) error
	// Incr атомарно увеличивает счётчик версии и возвращает новое значение. Ключ живёт без TTL.
	Incr(ctx context.Context, key string) (int64, error)
	// Version возвращает текущее значение счётчика; отсутствующий ключ — 0.
	Version(ctx context.Context, key string) (int64, error)
	// Ping проверяет доступность бэкенда (readiness).
	Ping(ctx context.Context) error
	// Close освобождает ресурсы.
	Close() error
}

// Connect создаёт клиент Redis из URL (например, redis://:pass@host:6379/0) и проверяет соединение.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return rdb, nil
}

// GetJSON читает значение и декодирует его в T.
// Повреждённая запись трактуется как промах и удаляется, чтобы следующий Set её заменил.
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		_ = c.Delete(ctx, key)
		return nil, false, nil
	}

	return &v, true, nil
}

// SetJSON кодирует значение в JSON и сохраняет с TTL.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}

	return c.Set(ctx, key, raw, ttl)
}
