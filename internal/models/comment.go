// Package models содержит доменные сущности page-comments.
package models

import "time"

// Comment — доменная модель комментария.
// Важно:
//   - ID — монотонный идентификатор, выдаётся хранилищем.
//   - Page — непрозрачный ключ страницы; у одной страницы много комментариев.
//   - ParentID — nil для корневого комментария; иначе id живого комментария той же страницы
//     на момент создания. После создания не меняется, поэтому лес без циклов.
//   - Email хранится только на сервере (ключ rate limit); наружу уходит EmailHash.
//   - IsDeleted — мягкое удаление; удалённый id остаётся валидным родителем для живых детей.
//   - IPAddress/UserAgent/SystemType/Location — обогащение, пишется один раз при создании.
//   - ReplyCount — число живых прямых ответов; заполняется только в выдачах.
type Comment struct {
	ID         int64
	Page       string
	ParentID   *int64
	Email      string
	EmailHash  string
	Username   string
	Content    string
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	IPAddress  string
	UserAgent  string
	SystemType string
	Location   string
	ReplyCount int64
}

// IsReply сообщает, является ли комментарий ответом.
func (c *Comment) IsReply() bool { return c.ParentID != nil }

// ListParams — базовые параметры постраничной выдачи.
type ListParams struct {
	PageSize  int32
	PageToken string
}

// Page — результат постраничной выдачи.
type Page struct {
	Items         []Comment
	NextPageToken string
}

// Thread — корневой комментарий с одним уровнем подгруженных ответов.
type Thread struct {
	Comment
	Children []Comment
}

// ThreadPage — страница корневых комментариев с ответами.
type ThreadPage struct {
	Items         []Thread
	NextPageToken string
}

// PageStats — счётчики живых комментариев страницы.
type PageStats struct {
	Page     string
	Total    int64
	TopLevel int64
	Replies  int64
}

// Update — частичное изменение комментария (админский путь). nil — поле не трогаем.
type Update struct {
	Content   *string
	IsDeleted *bool
}
