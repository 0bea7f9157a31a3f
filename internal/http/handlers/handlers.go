package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/pribylovaa/page-comments/internal/errors"
	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/ratelimit"
	"github.com/pribylovaa/page-comments/internal/service"
)

// maxBodyBytes — верхняя граница тела запроса (контент до 2000 рун плюс поля).
const maxBodyBytes = 64 << 10

// Service — операции сервиса, которые вызывает HTTP-слой.
type Service interface {
	CreateComment(ctx context.Context, in service.CreateCommentInput) (*service.CreateResult, error)
	ListComments(ctx context.Context, in service.ListCommentsInput) (*models.ThreadPage, error)
	ListReplies(ctx context.Context, in service.ListRepliesInput) (*models.Page, error)
	CommentByID(ctx context.Context, id int64) (*models.Comment, error)
	UpdateComment(ctx context.Context, in service.UpdateCommentInput) (*models.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
	PageStats(ctx context.Context, page string) (*models.PageStats, error)
	CheckRead(ctx context.Context, ip string) (ratelimit.Decision, error)
}

// Handlers агрегирует зависимости хендлеров.
type Handlers struct {
	svc      Service
	validate *validator.Validate
}

func New(svc Service) *Handlers {
	return &Handlers{svc: svc, validate: validator.New()}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля и хвост после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON object")
	}

	return nil
}

// decodeValid — decodeStrict + validator; любые ошибки -> ErrBadRequest.
func (h *Handlers) decodeValid(w http.ResponseWriter, r *http.Request, value any) error {
	if err := decodeStrict(w, r, value); err != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrBadRequest, err)
	}

	if err := h.validate.Struct(value); err != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrBadRequest, err)
	}

	return nil
}

// pathID — положительный int64 из параметра {id}.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierrors.ErrBadRequest
	}
	return id, nil
}

// pageSize — необязательный page_size из query; 0 — значение по умолчанию.
func pageSize(r *http.Request) (int32, error) {
	v := r.URL.Query().Get("page_size")
	if v == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return 0, apierrors.ErrBadRequest
	}

	return int32(n), nil
}
