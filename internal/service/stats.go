package service

import (
	"context"
	"fmt"

	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/pkg/log"
)

// PageStats — счётчики живых комментариев страницы. Кэшируется под версией страницы.
func (s *Service) PageStats(ctx context.Context, page string) (*models.PageStats, error) {
	const op = "service/stats/PageStats"

	lg := log.From(ctx).With("op", op)

	page, reason := s.validatePage(page)
	if reason != "" {
		lg.Warn("invalid argument", "reason", reason)
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidArgument, reason)
	}

	ver, cacheOK := s.version(ctx, pageVersionKey(page))
	key := statsKey(page, ver)
	if cacheOK {
		if cached, ok := lookup[models.PageStats](ctx, s, "stats", key); ok {
			return cached, nil
		}
	}

	stats, err := s.storage.CountByPage(ctx, page)
	if err != nil {
		lg.Error("storage error on CountByPage", "page", page, "err", err)
		return nil, fmt.Errorf("%s: %w", op, infraErr(err))
	}

	if cacheOK {
		s.remember(ctx, key, stats, s.cfg.Cache.StatsTTL)
	}

	return stats, nil
}
