package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/storage"
)

// commentColumns — порядок колонок совпадает с scanComment.
const commentColumns = `
	c.id, c.page, c.parent_id, c.email, c.email_hash, c.username, c.content, c.is_deleted,
	c.created_at, c.updated_at, c.ip_address, c.user_agent, c.system_type, c.location`

const replyCountColumn = `
	(SELECT count(*) FROM comments r WHERE r.parent_id = c.id AND NOT r.is_deleted) AS reply_count`

// CreateComment сохраняет комментарий. Проверка родителя выполняется тем же запросом:
// строка вставляется, только если parent_id пуст или указывает на живой комментарий той же страницы.
// FOR SHARE не даёт параллельному удалению родителя проскочить между проверкой и вставкой.
func (s *Storage) CreateComment(ctx context.Context, comment models.Comment) (*models.Comment, error) {
	const op = "storage.postgres.CreateComment"

	query := `
		INSERT INTO comments (page, parent_id, email, email_hash, username, content,
			ip_address, user_agent, system_type, location)
		SELECT $1::text, $2::bigint, $3::text, $4::text, $5::text, $6::text,
			$7::text, $8::text, $9::text, $10::text
		WHERE $2::bigint IS NULL OR EXISTS (
			SELECT 1 FROM comments p
			WHERE p.id = $2 AND p.page = $1 AND NOT p.is_deleted
			FOR SHARE
		)
		RETURNING id, is_deleted, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		comment.Page,
		comment.ParentID,
		comment.Email,
		comment.EmailHash,
		comment.Username,
		comment.Content,
		comment.IPAddress,
		comment.UserAgent,
		comment.SystemType,
		comment.Location,
	).Scan(&comment.ID, &comment.IsDeleted, &comment.CreatedAt, &comment.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	comment.CreatedAt = comment.CreatedAt.UTC()
	comment.UpdatedAt = comment.UpdatedAt.UTC()

	return &comment, nil
}

// CommentByID находит комментарий по ID, включая удалённые.
func (s *Storage) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "storage.postgres.CommentByID"

	query := `SELECT` + commentColumns + `,` + replyCountColumn + `
		FROM comments c
		WHERE c.id = $1
	`

	comment, err := scanComment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return comment, nil
}

// ListTopLevel возвращает страницу живых корневых комментариев.
// Сортировка фиксирована: created_at DESC, id DESC.
// Запрашивается limit+1 строк: лишняя строка означает, что есть следующая страница.
func (s *Storage) ListTopLevel(ctx context.Context, page string, p models.ListParams) (*models.Page, error) {
	const op = "storage.postgres.ListTopLevel"

	limit := normalizeLimit(p.PageSize)

	var rows pgx.Rows
	var err error

	if p.PageToken == "" {
		rows, err = s.db.Query(ctx, `SELECT`+commentColumns+`,`+replyCountColumn+`
		FROM comments c
		WHERE c.page = $1 AND c.parent_id IS NULL AND NOT c.is_deleted
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $2
		`, page, limit+1)
	} else {
		curTime, curID, decErr := storage.DecodeCursor(p.PageToken)
		if decErr != nil {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidCursor)
		}

		rows, err = s.db.Query(ctx, `SELECT`+commentColumns+`,`+replyCountColumn+`
		FROM comments c
		WHERE c.page = $1 AND c.parent_id IS NULL AND NOT c.is_deleted
			AND (c.created_at, c.id) < ($2, $3)
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $4
		`, page, curTime, curID, limit+1)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items, err := collectComments(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buildPage(items, limit), nil
}

// ListReplies возвращает страницу живых прямых ответов parentID.
// Сортировка фиксирована: created_at ASC, id ASC.
func (s *Storage) ListReplies(ctx context.Context, parentID int64, p models.ListParams) (*models.Page, error) {
	const op = "storage.postgres.ListReplies"

	limit := normalizeLimit(p.PageSize)

	var rows pgx.Rows
	var err error

	if p.PageToken == "" {
		rows, err = s.db.Query(ctx, `SELECT`+commentColumns+`,`+replyCountColumn+`
		FROM comments c
		WHERE c.parent_id = $1 AND NOT c.is_deleted
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT $2
		`, parentID, limit+1)
	} else {
		curTime, curID, decErr := storage.DecodeCursor(p.PageToken)
		if decErr != nil {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidCursor)
		}

		rows, err = s.db.Query(ctx, `SELECT`+commentColumns+`,`+replyCountColumn+`
		FROM comments c
		WHERE c.parent_id = $1 AND NOT c.is_deleted
			AND (c.created_at, c.id) > ($2, $3)
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT $4
		`, parentID, curTime, curID, limit+1)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items, err := collectComments(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buildPage(items, limit), nil
}

// ListRepliesForParents одним запросом достаёт до perParent первых ответов каждого родителя.
func (s *Storage) ListRepliesForParents(ctx context.Context, parentIDs []int64, perParent int32) ([]models.Comment, error) {
	const op = "storage.postgres.ListRepliesForParents"

	if len(parentIDs) == 0 || perParent <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `SELECT`+commentColumns+`,`+replyCountColumn+`
		FROM (
			SELECT x.*, row_number() OVER (PARTITION BY x.parent_id ORDER BY x.created_at, x.id) AS rn
			FROM comments x
			WHERE x.parent_id = ANY($1) AND NOT x.is_deleted
		) c
		WHERE c.rn <= $2
		ORDER BY c.parent_id, c.created_at, c.id
	`, parentIDs, perParent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items, err := collectComments(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return items, nil
}

// SoftDelete помечает комментарий удалённым. Повторный вызов не меняет updated_at.
func (s *Storage) SoftDelete(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "storage.postgres.SoftDelete"

	query := `
		UPDATE comments c
		SET is_deleted = TRUE,
			updated_at = CASE WHEN c.is_deleted THEN c.updated_at ELSE now() END
		WHERE c.id = $1
		RETURNING` + commentColumns + `, 0::bigint`

	comment, err := scanComment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return comment, nil
}

// UpdateComment применяет частичное изменение: nil-поля не трогаются.
func (s *Storage) UpdateComment(ctx context.Context, id int64, upd models.Update) (*models.Comment, error) {
	const op = "storage.postgres.UpdateComment"

	query := `
		UPDATE comments c
		SET content = COALESCE($2, c.content),
			is_deleted = COALESCE($3, c.is_deleted),
			updated_at = GREATEST(now(), c.updated_at)
		WHERE c.id = $1
		RETURNING` + commentColumns + `, 0::bigint`

	comment, err := scanComment(s.db.QueryRow(ctx, query, id, upd.Content, upd.IsDeleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return comment, nil
}

// CountByPage считает живые комментарии страницы.
func (s *Storage) CountByPage(ctx context.Context, page string) (*models.PageStats, error) {
	const op = "storage.postgres.CountByPage"

	stats := models.PageStats{Page: page}
	err := s.db.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE parent_id IS NULL),
			count(*) FILTER (WHERE parent_id IS NOT NULL)
		FROM comments
		WHERE page = $1 AND NOT is_deleted
	`, page).Scan(&stats.Total, &stats.TopLevel, &stats.Replies)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &stats, nil
}

func scanComment(row pgx.Row) (*models.Comment, error) {
	var c models.Comment
	if err := row.Scan(
		&c.ID,
		&c.Page,
		&c.ParentID,
		&c.Email,
		&c.EmailHash,
		&c.Username,
		&c.Content,
		&c.IsDeleted,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.IPAddress,
		&c.UserAgent,
		&c.SystemType,
		&c.Location,
		&c.ReplyCount,
	); err != nil {
		return nil, err
	}

	// Нормализация в UTC.
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()

	return &c, nil
}

func collectComments(rows pgx.Rows) ([]models.Comment, error) {
	defer rows.Close()

	var items []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		items = append(items, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return items, nil
}

// buildPage отрезает лишнюю строку и выставляет курсор по последнему отданному элементу.
func buildPage(items []models.Comment, limit int32) *models.Page {
	page := &models.Page{Items: items}
	if len(items) > int(limit) {
		page.Items = items[:limit]
		last := page.Items[len(page.Items)-1]
		page.NextPageToken = storage.EncodeCursor(last.CreatedAt, last.ID)
	}

	return page
}

func normalizeLimit(pageSize int32) int32 {
	if pageSize <= 0 {
		// Защита от нуля/отрицательного значения.
		return 1
	}

	return pageSize
}
