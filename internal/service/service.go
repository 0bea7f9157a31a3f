// service содержит бизнес-логику page-comments.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pribylovaa/page-comments/internal/cache"
	"github.com/pribylovaa/page-comments/internal/config"
	"github.com/pribylovaa/page-comments/internal/metrics"
	"github.com/pribylovaa/page-comments/internal/ratelimit"
	"github.com/pribylovaa/page-comments/internal/storage"
)

var (
	// ErrInvalidArgument — неверные входные параметры (границы полей, спам, формат).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrParentNotFound — родитель отсутствует, удалён или с другой страницы.
	ErrParentNotFound = errors.New("parent not found")
	// ErrRateLimited — попытка отклонена лимитером; подробности в *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound — сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCursor — битый/чужой page_token.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrStoreUnavailable — хранилище (или стор счётчиков в закрытой области) недоступно; можно повторить.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInternal — нарушен внутренний инвариант.
	ErrInternal = errors.New("internal")
)

// RateLimitError — отказ лимитера с областью и временем до сброса окна.
type RateLimitError struct {
	Scope      ratelimit.Scope
	RetryAfter time.Duration
	Limit      int64
	Reset      time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: scope=%s retry_after=%ds", e.Scope, e.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds — значение для заголовка Retry-After.
func (e *RateLimitError) RetryAfterSeconds() int64 {
	return int64(e.RetryAfter / time.Second)
}

// Limiter — гейт попыток записи и чтения.
type Limiter interface {
	AllowWrite(ctx context.Context, ip, email string) (ratelimit.Decision, error)
	AllowRead(ctx context.Context, ip string) (ratelimit.Decision, error)
}

// Locator — поиск местоположения по IP. Никогда не возвращает ошибку.
type Locator interface {
	Lookup(ctx context.Context, ip string) string
}

// Service — описывает бизнес-логику page-comments.
type Service struct {
	storage  storage.Storage
	cache    cache.Cache
	limiter  Limiter
	geo      Locator
	metrics  *metrics.Metrics
	validate *validator.Validate
	cfg      config.Config
}

// Deps — зависимости сервиса. Metrics может быть nil.
type Deps struct {
	Storage storage.Storage
	Cache   cache.Cache
	Limiter Limiter
	Geo     Locator
	Metrics *metrics.Metrics
}

// New создает новый экземпляр Service.
func New(deps Deps, cfg config.Config) *Service {
	return &Service{
		storage:  deps.Storage,
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		geo:      deps.Geo,
		metrics:  deps.Metrics,
		validate: validator.New(),
		cfg:      cfg,
	}
}

// Ping проверяет хранилище и кэш (readiness).
func (s *Service) Ping(ctx context.Context) error {
	if err := s.storage.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	return nil
}

// infraErr переводит ошибку хранилища в ошибку сервиса; ошибки контекста сохраняются.
func infraErr(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	default:
		return ErrStoreUnavailable
	}
}

func denied(d ratelimit.Decision) *RateLimitError {
	return &RateLimitError{
		Scope:      d.Scope,
		RetryAfter: time.Duration(d.RetryAfterSeconds()) * time.Second,
		Limit:      d.Limit,
		Reset:      d.Reset,
	}
}
