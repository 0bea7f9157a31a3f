package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/storage"
)

// fakeStore — хранилище в памяти для сценарных тестов сервиса.
// Повторяет контракт storage.Storage, включая проверку родителя и курсоры.
type fakeStore struct {
	mu    sync.Mutex
	rows  []models.Comment
	now   time.Time
	calls map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{now: time.Unix(1_700_000_000, 0).UTC(), calls: map[string]int{}}
}

func (f *fakeStore) find(id int64) int {
	for i := range f.rows {
		if f.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeStore) replyCount(id int64) int64 {
	var n int64
	for _, r := range f.rows {
		if r.ParentID != nil && *r.ParentID == id && !r.IsDeleted {
			n++
		}
	}
	return n
}

func (f *fakeStore) CreateComment(_ context.Context, c models.Comment) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateComment"]++

	if c.ParentID != nil {
		i := f.find(*c.ParentID)
		if i < 0 || f.rows[i].IsDeleted || f.rows[i].Page != c.Page {
			return nil, storage.ErrParentNotFound
		}
	}

	f.now = f.now.Add(time.Millisecond)
	c.ID = int64(len(f.rows) + 1)
	c.CreatedAt, c.UpdatedAt = f.now, f.now
	f.rows = append(f.rows, c)

	return &c, nil
}

func (f *fakeStore) CommentByID(_ context.Context, id int64) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.find(id)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	c := f.rows[i]
	c.ReplyCount = f.replyCount(id)
	return &c, nil
}

func (f *fakeStore) list(match func(models.Comment) bool, desc bool, p models.ListParams) (*models.Page, error) {
	var items []models.Comment
	for _, r := range f.rows {
		if match(r) && !r.IsDeleted {
			r.ReplyCount = f.replyCount(r.ID)
			items = append(items, r)
		}
	}

	less := func(a, b models.Comment) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
	sort.Slice(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})

	if p.PageToken != "" {
		t, id, err := storage.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, storage.ErrInvalidCursor
		}
		cur := models.Comment{ID: id, CreatedAt: t}
		var rest []models.Comment
		for _, it := range items {
			if (desc && less(it, cur)) || (!desc && less(cur, it)) {
				rest = append(rest, it)
			}
		}
		items = rest
	}

	limit := int(p.PageSize)
	if limit <= 0 {
		limit = 1
	}
	page := &models.Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextPageToken = storage.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

func (f *fakeStore) ListTopLevel(_ context.Context, page string, p models.ListParams) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListTopLevel"]++

	return f.list(func(c models.Comment) bool { return c.Page == page && c.ParentID == nil }, true, p)
}

func (f *fakeStore) ListReplies(_ context.Context, parentID int64, p models.ListParams) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListReplies"]++

	return f.list(func(c models.Comment) bool { return c.ParentID != nil && *c.ParentID == parentID }, false, p)
}

func (f *fakeStore) ListRepliesForParents(ctx context.Context, parentIDs []int64, perParent int32) ([]models.Comment, error) {
	var out []models.Comment
	for _, id := range parentIDs {
		page, err := f.ListReplies(ctx, id, models.ListParams{PageSize: perParent})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
	}
	return out, nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id int64) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.find(id)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	if !f.rows[i].IsDeleted {
		f.now = f.now.Add(time.Millisecond)
		f.rows[i].IsDeleted = true
		f.rows[i].UpdatedAt = f.now
	}
	c := f.rows[i]
	return &c, nil
}

func (f *fakeStore) UpdateComment(_ context.Context, id int64, upd models.Update) (*models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.find(id)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	if upd.Content != nil {
		f.rows[i].Content = *upd.Content
	}
	if upd.IsDeleted != nil {
		f.rows[i].IsDeleted = *upd.IsDeleted
	}
	f.now = f.now.Add(time.Millisecond)
	f.rows[i].UpdatedAt = f.now
	c := f.rows[i]
	return &c, nil
}

func (f *fakeStore) CountByPage(_ context.Context, page string) (*models.PageStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CountByPage"]++

	st := models.PageStats{Page: page}
	for _, r := range f.rows {
		if r.Page != page || r.IsDeleted {
			continue
		}
		st.Total++
		if r.ParentID == nil {
			st.TopLevel++
		} else {
			st.Replies++
		}
	}
	return &st, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Close() {}

var _ storage.Storage = (*fakeStore)(nil)
