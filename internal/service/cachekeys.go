package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pribylovaa/page-comments/internal/cache"
	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/pkg/log"
	"github.com/pribylovaa/page-comments/internal/storage"
)

// Ключи выдач содержат версию страницы (или ветки). Запись увеличивает версию,
// и старые ключи становятся недостижимы; их убирает TTL.
// Ключ страницы стоит последним: он может содержать ':'.

func pageVersionKey(page string) string { return "ver:page:" + page }

func threadVersionKey(parentID int64) string {
	return "ver:thread:" + strconv.FormatInt(parentID, 10)
}

func listKey(page string, ver int64, size int32, token string) string {
	return fmt.Sprintf("list:v%d:s%d:t%s:p%s", ver, size, token, page)
}

func repliesKey(parentID, ver int64, size int32, token string) string {
	return fmt.Sprintf("replies:%d:v%d:s%d:t%s", parentID, ver, size, token)
}

func statsKey(page string, ver int64) string {
	return fmt.Sprintf("stats:v%d:p%s", ver, page)
}

// version читает версию; ok == false — кэш недоступен и его нужно обойти.
func (s *Service) version(ctx context.Context, key string) (int64, bool) {
	v, err := s.cache.Version(ctx, key)
	if err != nil {
		log.From(ctx).Warn("cache_version_failed", "key", key, "err", err)
		s.metrics.CacheError("version")
		return 0, false
	}

	return v, true
}

// lookup читает закэшированную выдачу; ошибка кэша — промах.
func lookup[T any](ctx context.Context, s *Service, entity, key string) (*T, bool) {
	v, ok, err := cache.GetJSON[T](ctx, s.cache, key)
	if err != nil {
		log.From(ctx).Warn("cache_get_failed", "key", key, "err", err)
		s.metrics.CacheError("get")
		return nil, false
	}

	s.metrics.CacheLookup(entity, ok)
	return v, ok
}

// remember кладёт выдачу в кэш; ошибка только логируется.
func (s *Service) remember(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.SetJSON(ctx, s.cache, key, v, ttl); err != nil {
		log.From(ctx).Warn("cache_set_failed", "key", key, "err", err)
		s.metrics.CacheError("set")
	}
}

// invalidate поднимает версии страницы и, для ответа, ветки родителя.
// Если родитель сам является ответом, поднимается и ветка деда: в его выдаче
// ответов лежит reply_count родителя.
func (s *Service) invalidate(ctx context.Context, c *models.Comment) {
	keys := []string{pageVersionKey(c.Page)}
	if c.ParentID != nil {
		keys = append(keys, threadVersionKey(*c.ParentID))
		if gp, ok := s.grandparent(ctx, *c.ParentID); ok {
			keys = append(keys, threadVersionKey(gp))
		}
	}

	for _, k := range keys {
		if _, err := s.cache.Incr(ctx, k); err != nil {
			log.From(ctx).Warn("cache_invalidate_failed", "key", k, "err", err)
			s.metrics.CacheError("incr")
		}
	}
}

// grandparent возвращает id родителя комментария parentID, если тот сам ответ.
// Ошибка хранилища только логируется: версия деда останется прежней до TTL.
func (s *Service) grandparent(ctx context.Context, parentID int64) (int64, bool) {
	p, err := s.storage.CommentByID(ctx, parentID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Warn("cache_invalidate_parent_lookup_failed", "parent_id", parentID, "err", err)
		}
		return 0, false
	}
	if p.ParentID == nil {
		return 0, false
	}

	return *p.ParentID, true
}
