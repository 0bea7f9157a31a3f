package handlers

import (
	"time"

	"github.com/pribylovaa/page-comments/internal/models"
)

// Запросы. Авторитетная проверка границ в сервисе; здесь отсекаем явный мусор.

type createCommentRequest struct {
	Page     string `json:"page"      validate:"required"`
	Email    string `json:"email"     validate:"required,email"`
	Username string `json:"username"  validate:"required"`
	Content  string `json:"content"   validate:"required"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

type updateCommentRequest struct {
	Content   *string `json:"content"    validate:"required_without=IsDeleted"`
	IsDeleted *bool   `json:"is_deleted" validate:"required_without=Content"`
}

// Ответы. Email, IP и User-Agent наружу не отдаются.

type commentResponse struct {
	ID         int64     `json:"id"`
	Page       string    `json:"page"`
	ParentID   *int64    `json:"parent_id"`
	EmailHash  string    `json:"email_hash"`
	Username   string    `json:"username"`
	Content    string    `json:"content"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	SystemType string    `json:"system_type"`
	Location   string    `json:"location"`
	ReplyCount int64     `json:"reply_count"`
}

type threadResponse struct {
	commentResponse
	Children []commentResponse `json:"children"`
}

type listCommentsResponse struct {
	Items         []threadResponse `json:"items"`
	NextPageToken string           `json:"next_page_token"`
}

type listRepliesResponse struct {
	Items         []commentResponse `json:"items"`
	NextPageToken string            `json:"next_page_token"`
}

type statsResponse struct {
	Page     string `json:"page"`
	Total    int64  `json:"total"`
	TopLevel int64  `json:"top_level"`
	Replies  int64  `json:"replies"`
}

func commentFromModel(c *models.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		Page:       c.Page,
		ParentID:   c.ParentID,
		EmailHash:  c.EmailHash,
		Username:   c.Username,
		Content:    c.Content,
		IsDeleted:  c.IsDeleted,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		SystemType: c.SystemType,
		Location:   c.Location,
		ReplyCount: c.ReplyCount,
	}
}

func commentsFromModels(items []models.Comment) []commentResponse {
	out := make([]commentResponse, 0, len(items))
	for i := range items {
		out = append(out, commentFromModel(&items[i]))
	}
	return out
}

func threadsFromModels(p *models.ThreadPage) listCommentsResponse {
	out := listCommentsResponse{
		Items:         make([]threadResponse, 0, len(p.Items)),
		NextPageToken: p.NextPageToken,
	}

	for i := range p.Items {
		t := &p.Items[i]
		out.Items = append(out.Items, threadResponse{
			commentResponse: commentFromModel(&t.Comment),
			Children:        commentsFromModels(t.Children),
		})
	}

	return out
}

func statsFromModel(s *models.PageStats) statsResponse {
	return statsResponse{Page: s.Page, Total: s.Total, TopLevel: s.TopLevel, Replies: s.Replies}
}
