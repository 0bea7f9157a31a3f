// errors стандартизирует ответы об ошибках HTTP-слоя page-comments.
// На вход он принимает ошибку сервисного слоя, а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей;
//   - для отказа лимитера: область, Retry-After и X-RateLimit-*.
//
// Источник истинности по ошибкам: sentinel-ошибки internal/service.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pribylovaa/page-comments/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// Ошибки самого HTTP-слоя (админская аутентификация и разбор запроса).
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("permission denied")
	ErrBadRequest      = errors.New("bad request")
)

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
// Scope и RetryAfter заполняются только для rate_limited.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
	Scope      string `json:"scope,omitempty"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку сервиса в HTTP-статус и унифицированный ответ для фронта.
//
// Поведение:
//   - err == nil - это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг.
//   - известные sentinel-ошибки маппим через таблицу ниже;
//   - всё прочее - 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, ErrorResponse{
			Error: APIError{Code: "internal", Message: "internal error"},
		}
	}

	var rl *service.RateLimitError
	if errors.As(err, &rl) {
		return http.StatusTooManyRequests, ErrorResponse{
			Error: APIError{
				Code:       "rate_limited",
				Message:    "too many requests",
				Scope:      string(rl.Scope),
				RetryAfter: rl.RetryAfterSeconds(),
			},
		}
	}

	httpStatus, code, msg := base(err)
	return httpStatus, ErrorResponse{
		Error: APIError{Code: code, Message: msg},
	}
}

// base — маппинг sentinel-ошибок сервиса -> HTTP/FE-код/сообщение:
//   - ErrInvalidArgument, ErrBadRequest -> 400 invalid_argument
//   - ErrInvalidCursor -> 400 invalid_cursor
//   - ErrParentNotFound -> 404 parent_not_found
//   - ErrNotFound -> 404 not_found
//   - ErrRateLimited (без подробностей) -> 429 rate_limited
//   - ErrUnauthenticated -> 401, ErrForbidden -> 403
//   - ErrStoreUnavailable -> 503 unavailable
//   - context.Canceled -> 499 (клиент закрыл соединение)
//   - context.DeadlineExceeded -> 504
//   - прочее -> 500/internal
func base(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case errors.Is(err, service.ErrInvalidCursor):
		return http.StatusBadRequest, "invalid_cursor", "invalid page token"
	case errors.Is(err, service.ErrParentNotFound):
		return http.StatusNotFound, "parent_not_found", "parent comment not found"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many requests"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "permission_denied", "permission denied"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
// Для отказа лимитера выставляет Retry-After и X-RateLimit-* отказавшей области.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	var rl *service.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterSeconds(), 10))
		SetRateLimitHeaders(w.Header(), rl.Limit, 0, rl.Reset)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// SetRateLimitHeaders пишет X-RateLimit-*. Reset — unix-время сброса окна.
// limit <= 0 (лимиты выключены или область пропущена) — заголовки не пишем.
func SetRateLimitHeaders(h http.Header, limit, remaining int64, reset time.Duration) {
	if limit <= 0 {
		return
	}

	h.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))
}
