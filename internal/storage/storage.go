package storage

import (
	"context"
	"errors"

	"github.com/pribylovaa/page-comments/internal/models"
)

var (
	// ErrNotFound — сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCursor — битый/чужой page_token.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrParentNotFound — указан parent_id, но живого родителя на той же странице нет.
	ErrParentNotFound = errors.New("parent not found")
)

// Storage описывает операции над комментариями.
type Storage interface {
	// CreateComment создаёт корневой комментарий или ответ.
	// Входной Comment должен содержать Page, Email, EmailHash, Username, Content и поля обогащения;
	// ParentID — опционально. ID, IsDeleted, CreatedAt, UpdatedAt проставляет хранилище.
	// Родитель проверяется в момент записи: существует, не удалён, та же Page — иначе ErrParentNotFound.
	CreateComment(ctx context.Context, comment models.Comment) (*models.Comment, error)

	// CommentByID возвращает комментарий (в том числе удалённый) по идентификатору.
	// Если записи нет — ErrNotFound.
	CommentByID(ctx context.Context, id int64) (*models.Comment, error)

	// ListTopLevel возвращает страницу живых корневых комментариев page с заполненным ReplyCount.
	// Сортировка: created_at DESC, id DESC. При некорректном page_token — ErrInvalidCursor.
	ListTopLevel(ctx context.Context, page string, p models.ListParams) (*models.Page, error)

	// ListReplies возвращает страницу живых прямых ответов parentID.
	// Сортировка: created_at ASC, id ASC. При некорректном page_token — ErrInvalidCursor.
	ListReplies(ctx context.Context, parentID int64, p models.ListParams) (*models.Page, error)

	// ListRepliesForParents возвращает до perParent первых живых ответов каждого из parentIDs
	// одним списком, упорядоченным по (parent_id, created_at, id) — ответы одного родителя идут подряд.
	ListRepliesForParents(ctx context.Context, parentIDs []int64, perParent int32) ([]models.Comment, error)

	// SoftDelete помечает комментарий удалённым. Идемпотентно; если записи нет — ErrNotFound.
	// Дети не затрагиваются.
	SoftDelete(ctx context.Context, id int64) (*models.Comment, error)

	// UpdateComment применяет частичное изменение и обновляет updated_at.
	// Если записи нет — ErrNotFound.
	UpdateComment(ctx context.Context, id int64, upd models.Update) (*models.Comment, error)

	// CountByPage возвращает счётчики живых комментариев страницы.
	CountByPage(ctx context.Context, page string) (*models.PageStats, error)

	// Ping проверяет доступность хранилища (readiness).
	Ping(ctx context.Context) error

	// Close закрывает соединения/ресурсы хранилища.
	Close()
}
