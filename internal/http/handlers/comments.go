package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/page-comments/internal/errors"
	"github.com/pribylovaa/page-comments/internal/http/middleware"
	"github.com/pribylovaa/page-comments/internal/service"
)

func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	var in createCommentRequest
	if err := h.decodeValid(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.svc.CreateComment(r.Context(), service.CreateCommentInput{
		Page:      in.Page,
		Email:     in.Email,
		Username:  in.Username,
		Content:   in.Content,
		ParentID:  in.ParentID,
		ClientIP:  middleware.ClientIPFrom(r.Context()),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	rl := res.RateLimit
	apierrors.SetRateLimitHeaders(w.Header(), rl.Limit, rl.Remaining, rl.Reset)
	writeJSON(w, http.StatusCreated, commentFromModel(res.Comment))
}

func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}

	size, err := pageSize(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	q := r.URL.Query()
	resp, err := h.svc.ListComments(r.Context(), service.ListCommentsInput{
		Page:      q.Get("page"),
		PageSize:  size,
		PageToken: q.Get("page_token"),
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, threadsFromModels(resp))
}

func (h *Handlers) GetComment(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}

	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	resp, err := h.svc.CommentByID(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, commentFromModel(resp))
}

func (h *Handlers) ListReplies(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}

	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	size, err := pageSize(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	resp, err := h.svc.ListReplies(r.Context(), service.ListRepliesInput{
		ParentID:  id,
		PageSize:  size,
		PageToken: r.URL.Query().Get("page_token"),
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listRepliesResponse{
		Items:         commentsFromModels(resp.Items),
		NextPageToken: resp.NextPageToken,
	})
}

func (h *Handlers) UpdateComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in updateCommentRequest
	if err := h.decodeValid(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	resp, err := h.svc.UpdateComment(r.Context(), service.UpdateCommentInput{
		ID:        id,
		Content:   in.Content,
		IsDeleted: in.IsDeleted,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, commentFromModel(resp))
}

func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.DeleteComment(r.Context(), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) PageStats(w http.ResponseWriter, r *http.Request) {
	if !h.allowRead(w, r) {
		return
	}

	resp, err := h.svc.PageStats(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statsFromModel(resp))
}

// allowRead — лимит чтения по IP; при отказе ответ уже записан.
func (h *Handlers) allowRead(w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.svc.CheckRead(r.Context(), middleware.ClientIPFrom(r.Context())); err != nil {
		apierrors.WriteError(w, r, err)
		return false
	}
	return true
}
