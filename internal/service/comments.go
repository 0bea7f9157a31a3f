package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/pkg/log"
	"github.com/pribylovaa/page-comments/internal/pkg/redact"
	"github.com/pribylovaa/page-comments/internal/ratelimit"
	"github.com/pribylovaa/page-comments/internal/storage"
	"github.com/pribylovaa/page-comments/internal/useragent"
)

// Входные структуры сервисного слоя.

// CreateCommentInput — создание корневого комментария или ответа.
// ClientIP и UserAgent приходят из транспорта и используются для лимитов и обогащения.
type CreateCommentInput struct {
	Page      string
	Email     string
	Username  string
	Content   string
	ParentID  *int64
	ClientIP  string
	UserAgent string
}

// CreateResult — созданный комментарий и решение лимитера (для заголовков X-RateLimit-*).
type CreateResult struct {
	Comment   *models.Comment
	RateLimit ratelimit.Decision
}

// ListCommentsInput — страница корней с превью ответов.
type ListCommentsInput struct {
	Page      string
	PageSize  int32
	PageToken string
}

// ListRepliesInput — страница прямых ответов одного комментария.
type ListRepliesInput struct {
	ParentID  int64
	PageSize  int32
	PageToken string
}

// UpdateCommentInput — частичное изменение (админский путь). nil — поле не трогаем.
type UpdateCommentInput struct {
	ID        int64
	Content   *string
	IsDeleted *bool
}

// CreateComment — бизнес-операция создания комментария.
//
// Порядок: валидация -> лимиты -> обогащение (ОС, гео) -> запись -> инвалидация кэша.
// Лимиты решают до любой записи; обогащение не может уронить запрос.
//
// Поведение/ошибки:
//   - ErrInvalidArgument — границы полей, спам, формат email;
//   - *RateLimitError (ErrRateLimited) — отказ одной из областей;
//   - ErrParentNotFound — родителя нет, он удалён или с другой страницы;
//   - ErrStoreUnavailable — хранилище или закрытая область лимитов недоступны.
func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (*CreateResult, error) {
	const op = "service/comments/CreateComment"

	lg := log.From(ctx).With(
		"op", op,
		"ip", redact.IP(in.ClientIP),
		"email", redact.Email(in.Email),
	)

	if reason := s.validateCreate(&in); reason != "" {
		lg.Warn("invalid argument", "reason", reason)
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidArgument, reason)
	}
	lg = lg.With("page", in.Page)
	if in.ParentID != nil {
		lg = lg.With("parent_id", *in.ParentID)
	}

	decision, err := s.limiter.AllowWrite(ctx, in.ClientIP, in.Email)
	if err != nil {
		lg.Error("rate limiter error on CreateComment", "err", err)
		return nil, fmt.Errorf("%s: %w", op, infraErr(err))
	}
	if !decision.Allowed {
		s.metrics.RateLimited(string(decision.Scope))
		lg.Warn("rate limited", "scope", string(decision.Scope), "retry_after", decision.RetryAfterSeconds())
		return nil, fmt.Errorf("%s: %w", op, denied(decision))
	}

	comment := models.Comment{
		Page:       in.Page,
		ParentID:   in.ParentID,
		Email:      in.Email,
		EmailHash:  EmailHash(in.Email),
		Username:   in.Username,
		Content:    sanitizeContent(in.Content),
		IPAddress:  in.ClientIP,
		UserAgent:  in.UserAgent,
		SystemType: useragent.DetectOS(in.UserAgent),
		Location:   s.geo.Lookup(ctx, in.ClientIP),
	}

	result, err := s.storage.CreateComment(ctx, comment)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrParentNotFound):
			lg.Warn("parent not found")
			return nil, fmt.Errorf("%s: %w", op, ErrParentNotFound)
		default:
			lg.Error("storage error on CreateComment", "err", err)
			return nil, fmt.Errorf("%s: %w", op, infraErr(err))
		}
	}

	s.invalidate(ctx, result)
	s.metrics.CommentCreated(result.IsReply())
	lg.Info("comment created", "id", result.ID, "reply", result.IsReply())

	out := public(*result)
	return &CreateResult{Comment: &out, RateLimit: decision}, nil
}

// ListComments — страница корневых комментариев страницы, у каждого до
// cfg.Limits.RepliesPreview первых ответов.
//
// Поведение/ошибки:
//   - ErrInvalidArgument — пустой или слишком длинный page;
//   - ErrInvalidCursor — некорректный page_token;
//   - ErrStoreUnavailable — ошибки хранилища.
func (s *Service) ListComments(ctx context.Context, in ListCommentsInput) (*models.ThreadPage, error) {
	const op = "service/comments/ListComments"

	lg := log.From(ctx).With("op", op)

	page, reason := s.validatePage(in.Page)
	if reason != "" {
		lg.Warn("invalid argument", "reason", reason)
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidArgument, reason)
	}
	lg = lg.With("page", page)

	limit := storage.LimitOrDefault(s.cfg.Limits.Default, s.cfg.Limits.Max, in.PageSize)

	ver, cacheOK := s.version(ctx, pageVersionKey(page))
	key := listKey(page, ver, limit, in.PageToken)
	if cacheOK {
		if cached, ok := lookup[models.ThreadPage](ctx, s, "page", key); ok {
			return cached, nil
		}
	}

	roots, err := s.storage.ListTopLevel(ctx, page, models.ListParams{PageSize: limit, PageToken: in.PageToken})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidCursor):
			lg.Warn("invalid cursor")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCursor)
		default:
			lg.Error("storage error on ListTopLevel", "err", err)
			return nil, fmt.Errorf("%s: %w", op, infraErr(err))
		}
	}

	var replies []models.Comment
	if preview := s.cfg.Limits.RepliesPreview; preview > 0 && len(roots.Items) > 0 {
		replies, err = s.storage.ListRepliesForParents(ctx, parentIDs(roots.Items), preview)
		if err != nil {
			lg.Error("storage error on ListRepliesForParents", "err", err)
			return nil, fmt.Errorf("%s: %w", op, infraErr(err))
		}
	}

	result := &models.ThreadPage{
		Items:         assembleThreads(roots.Items, replies),
		NextPageToken: roots.NextPageToken,
	}

	if cacheOK {
		s.remember(ctx, key, result, s.cfg.Cache.TTL)
	}

	return result, nil
}

// ListReplies — страница прямых ответов parentID (старые сверху).
//
// Поведение/ошибки:
//   - ErrInvalidArgument — parentID <= 0;
//   - ErrInvalidCursor — некорректный page_token;
//   - ErrStoreUnavailable — ошибки хранилища.
func (s *Service) ListReplies(ctx context.Context, in ListRepliesInput) (*models.Page, error) {
	const op = "service/comments/ListReplies"

	lg := log.From(ctx).With("op", op, "parent_id", in.ParentID)

	if in.ParentID <= 0 {
		lg.Warn("invalid argument: parent_id")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	limit := storage.LimitOrDefault(s.cfg.Limits.Default, s.cfg.Limits.Max, in.PageSize)

	ver, cacheOK := s.version(ctx, threadVersionKey(in.ParentID))
	key := repliesKey(in.ParentID, ver, limit, in.PageToken)
	if cacheOK {
		if cached, ok := lookup[models.Page](ctx, s, "replies", key); ok {
			return cached, nil
		}
	}

	page, err := s.storage.ListReplies(ctx, in.ParentID, models.ListParams{PageSize: limit, PageToken: in.PageToken})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidCursor):
			lg.Warn("invalid cursor")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCursor)
		default:
			lg.Error("storage error on ListReplies", "err", err)
			return nil, fmt.Errorf("%s: %w", op, infraErr(err))
		}
	}

	for i := range page.Items {
		page.Items[i] = public(page.Items[i])
	}

	if cacheOK {
		s.remember(ctx, key, page, s.cfg.Cache.TTL)
	}

	return page, nil
}

// CommentByID — живой комментарий по ID. Удалённый считается отсутствующим.
func (s *Service) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "service/comments/CommentByID"

	lg := log.From(ctx).With("op", op, "id", id)

	if id <= 0 {
		lg.Warn("invalid argument: id")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	result, err := s.storage.CommentByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			lg.Warn("comment not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		default:
			lg.Error("storage error on CommentByID", "err", err)
			return nil, fmt.Errorf("%s: %w", op, infraErr(err))
		}
	}

	if result.IsDeleted {
		lg.Warn("comment deleted")
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	out := public(*result)
	return &out, nil
}

// DeleteComment — мягкое удаление по ID. Повторный вызов успешен.
//
// Поведение/ошибки:
//   - ErrNotFound — если комментария нет;
//   - ErrStoreUnavailable — иные ошибки хранилища.
func (s *Service) DeleteComment(ctx context.Context, id int64) error {
	const op = "service/comments/DeleteComment"

	lg := log.From(ctx).With("op", op, "id", id)

	if id <= 0 {
		lg.Warn("invalid argument: id")
		return fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	result, err := s.storage.SoftDelete(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			lg.Warn("comment not found")
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		default:
			lg.Error("storage error on DeleteComment", "err", err)
			return fmt.Errorf("%s: %w", op, infraErr(err))
		}
	}

	s.invalidate(ctx, result)
	lg.Info("comment deleted")

	return nil
}

// UpdateComment — правка текста и/или флага удаления (админский путь).
// Текст проходит ту же нормализацию и экранирование, что и при создании.
func (s *Service) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	const op = "service/comments/UpdateComment"

	lg := log.From(ctx).With("op", op, "id", in.ID)

	if in.ID <= 0 {
		lg.Warn("invalid argument: id")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	if in.Content == nil && in.IsDeleted == nil {
		lg.Warn("invalid argument: empty update")
		return nil, fmt.Errorf("%s: %w: nothing to update", op, ErrInvalidArgument)
	}

	upd := models.Update{IsDeleted: in.IsDeleted}
	if in.Content != nil {
		content, reason := s.validateContent(*in.Content, false)
		if reason != "" {
			lg.Warn("invalid argument", "reason", reason)
			return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidArgument, reason)
		}

		sanitized := sanitizeContent(content)
		upd.Content = &sanitized
	}

	result, err := s.storage.UpdateComment(ctx, in.ID, upd)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			lg.Warn("comment not found")
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		default:
			lg.Error("storage error on UpdateComment", "err", err)
			return nil, fmt.Errorf("%s: %w", op, infraErr(err))
		}
	}

	s.invalidate(ctx, result)
	lg.Info("comment updated")

	out := public(*result)
	return &out, nil
}

// CheckRead — лимит чтения по IP (область read_ip).
func (s *Service) CheckRead(ctx context.Context, ip string) (ratelimit.Decision, error) {
	const op = "service/comments/CheckRead"

	decision, err := s.limiter.AllowRead(ctx, ip)
	if err != nil {
		log.From(ctx).Error("rate limiter error on CheckRead", "op", op, "err", err)
		return ratelimit.Decision{}, fmt.Errorf("%s: %w", op, infraErr(err))
	}

	if !decision.Allowed {
		s.metrics.RateLimited(string(decision.Scope))
		return decision, fmt.Errorf("%s: %w", op, denied(decision))
	}

	return decision, nil
}
