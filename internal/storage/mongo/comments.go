package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pribylovaa/page-comments/internal/models"
	"github.com/pribylovaa/page-comments/internal/storage"
)

// commentDoc — представление комментария в коллекции.
type commentDoc struct {
	ID         int64     `bson:"_id"`
	Page       string    `bson:"page"`
	ParentID   *int64    `bson:"parent_id"`
	Email      string    `bson:"email"`
	EmailHash  string    `bson:"email_hash"`
	Username   string    `bson:"username"`
	Content    string    `bson:"content"`
	IsDeleted  bool      `bson:"is_deleted"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
	IPAddress  string    `bson:"ip_address"`
	UserAgent  string    `bson:"user_agent"`
	SystemType string    `bson:"system_type"`
	Location   string    `bson:"location"`
}

func (d commentDoc) toModel() models.Comment {
	return models.Comment{
		ID:         d.ID,
		Page:       d.Page,
		ParentID:   d.ParentID,
		Email:      d.Email,
		EmailHash:  d.EmailHash,
		Username:   d.Username,
		Content:    d.Content,
		IsDeleted:  d.IsDeleted,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
		IPAddress:  d.IPAddress,
		UserAgent:  d.UserAgent,
		SystemType: d.SystemType,
		Location:   d.Location,
	}
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

// CreateComment создаёт комментарий (корневой или ответ).
// Для ответа родитель ищется по (_id, page, is_deleted=false); иначе storage.ErrParentNotFound.
func (m *Mongo) CreateComment(ctx context.Context, comm models.Comment) (*models.Comment, error) {
	const op = "storage/mongo/CreateComment"

	if comm.ParentID != nil {
		err := m.comments.FindOne(ctx, bson.D{
			{Key: "_id", Value: *comm.ParentID},
			{Key: "page", Value: comm.Page},
			{Key: "is_deleted", Value: false},
		}, options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})).Err()
		if err != nil {
			if errors.Is(err, mongodriver.ErrNoDocuments) {
				return nil, fmt.Errorf("%s: %w", op, storage.ErrParentNotFound)
			}

			return nil, fmt.Errorf("%s: find parent: %w", op, err)
		}
	}

	id, err := m.nextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := toMS(time.Now())
	doc := commentDoc{
		ID:         id,
		Page:       comm.Page,
		ParentID:   comm.ParentID,
		Email:      comm.Email,
		EmailHash:  comm.EmailHash,
		Username:   comm.Username,
		Content:    comm.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
		IPAddress:  comm.IPAddress,
		UserAgent:  comm.UserAgent,
		SystemType: comm.SystemType,
		Location:   comm.Location,
	}

	if _, err := m.comments.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%s: insert: %w", op, err)
	}

	out := doc.toModel()
	return &out, nil
}

// CommentByID возвращает комментарий по идентификатору, включая удалённые.
func (m *Mongo) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "storage/mongo/CommentByID"

	var doc commentDoc
	if err := m.comments.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := doc.toModel()
	counts, err := m.replyCounts(ctx, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out.ReplyCount = counts[id]

	return &out, nil
}

// ListTopLevel возвращает страницу живых корневых комментариев страницы.
// Сортировка: created_at DESC, _id DESC.
func (m *Mongo) ListTopLevel(ctx context.Context, page string, param models.ListParams) (*models.Page, error) {
	const op = "storage/mongo/ListTopLevel"

	filter := bson.D{
		{Key: "page", Value: page},
		{Key: "parent_id", Value: nil},
		{Key: "is_deleted", Value: false},
	}

	// Курсор "меньше" для DESC сортировки.
	if param.PageToken != "" {
		t, id, err := storage.DecodeCursor(param.PageToken)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidCursor)
		}

		filter = append(filter, keysetFilter("$lt", t, id))
	}

	res, err := m.findPage(ctx, filter, -1, param.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

// ListReplies возвращает страницу живых ответов одной ветки.
// Сортировка: created_at ASC, _id ASC.
func (m *Mongo) ListReplies(ctx context.Context, parentID int64, param models.ListParams) (*models.Page, error) {
	const op = "storage/mongo/ListReplies"

	filter := bson.D{
		{Key: "parent_id", Value: parentID},
		{Key: "is_deleted", Value: false},
	}

	// Курсор "больше" для ASC сортировки.
	if param.PageToken != "" {
		t, id, err := storage.DecodeCursor(param.PageToken)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrInvalidCursor)
		}

		filter = append(filter, keysetFilter("$gt", t, id))
	}

	res, err := m.findPage(ctx, filter, 1, param.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

// ListRepliesForParents достаёт до perParent первых ответов каждого родителя одним агрегатом.
func (m *Mongo) ListRepliesForParents(ctx context.Context, parentIDs []int64, perParent int32) ([]models.Comment, error) {
	const op = "storage/mongo/ListRepliesForParents"

	if len(parentIDs) == 0 || perParent <= 0 {
		return nil, nil
	}

	pipeline := mongodriver.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "parent_id", Value: bson.D{{Key: "$in", Value: parentIDs}}},
			{Key: "is_deleted", Value: false},
		}}},
		{{Key: "$setWindowFields", Value: bson.D{
			{Key: "partitionBy", Value: "$parent_id"},
			{Key: "sortBy", Value: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
			{Key: "output", Value: bson.D{{Key: "rn", Value: bson.D{{Key: "$documentNumber", Value: bson.D{}}}}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "rn", Value: bson.D{{Key: "$lte", Value: perParent}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "parent_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}}},
	}

	cur, err := m.comments.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%s: aggregate: %w", op, err)
	}

	items, err := decodeAll(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := m.fillReplyCounts(ctx, items); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return items, nil
}

// SoftDelete помечает комментарий удалённым. Повторный вызов не меняет updated_at.
func (m *Mongo) SoftDelete(ctx context.Context, id int64) (*models.Comment, error) {
	const op = "storage/mongo/SoftDelete"

	var doc commentDoc
	err := m.comments.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "is_deleted", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "is_deleted", Value: true},
			{Key: "updated_at", Value: toMS(time.Now())},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)

	if errors.Is(err, mongodriver.ErrNoDocuments) {
		// Либо уже удалён, либо записи нет.
		err = m.comments.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := doc.toModel()
	return &out, nil
}

// UpdateComment применяет частичное изменение: nil-поля не трогаются.
func (m *Mongo) UpdateComment(ctx context.Context, id int64, upd models.Update) (*models.Comment, error) {
	const op = "storage/mongo/UpdateComment"

	set := bson.D{{Key: "updated_at", Value: toMS(time.Now())}}
	if upd.Content != nil {
		set = append(set, bson.E{Key: "content", Value: *upd.Content})
	}
	if upd.IsDeleted != nil {
		set = append(set, bson.E{Key: "is_deleted", Value: *upd.IsDeleted})
	}

	var doc commentDoc
	err := m.comments.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := doc.toModel()
	return &out, nil
}

// CountByPage считает живые комментарии страницы.
func (m *Mongo) CountByPage(ctx context.Context, page string) (*models.PageStats, error) {
	const op = "storage/mongo/CountByPage"

	base := bson.D{{Key: "page", Value: page}, {Key: "is_deleted", Value: false}}

	total, err := m.comments.CountDocuments(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("%s: total: %w", op, err)
	}

	topLevel, err := m.comments.CountDocuments(ctx, append(base, bson.E{Key: "parent_id", Value: nil}))
	if err != nil {
		return nil, fmt.Errorf("%s: top level: %w", op, err)
	}

	return &models.PageStats{
		Page:     page,
		Total:    total,
		TopLevel: topLevel,
		Replies:  total - topLevel,
	}, nil
}

// keysetFilter строит условие (created_at, _id) <op> (t, id).
func keysetFilter(cmp string, t time.Time, id int64) bson.E {
	return bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: "created_at", Value: bson.D{{Key: cmp, Value: t}}}},
		bson.D{
			{Key: "created_at", Value: t},
			{Key: "_id", Value: bson.D{{Key: cmp, Value: id}}},
		},
	}}
}

// findPage выбирает limit+1 документов: лишний означает, что есть следующая страница.
func (m *Mongo) findPage(ctx context.Context, filter bson.D, dir int, pageSize int32) (*models.Page, error) {
	limit := int64(pageSize)
	if limit <= 0 {
		limit = 1
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}).
		SetLimit(limit + 1)

	cur, err := m.comments.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}

	items, err := decodeAll(ctx, cur)
	if err != nil {
		return nil, err
	}

	page := &models.Page{Items: items}
	if int64(len(items)) > limit {
		page.Items = items[:limit]
		last := page.Items[len(page.Items)-1]
		page.NextPageToken = storage.EncodeCursor(last.CreatedAt, last.ID)
	}

	if err := m.fillReplyCounts(ctx, page.Items); err != nil {
		return nil, err
	}

	return page, nil
}

func decodeAll(ctx context.Context, cur *mongodriver.Cursor) ([]models.Comment, error) {
	defer cur.Close(ctx)

	var items []models.Comment
	for cur.Next(ctx) {
		var doc commentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}

		items = append(items, doc.toModel())
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}

	return items, nil
}

func (m *Mongo) fillReplyCounts(ctx context.Context, items []models.Comment) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	counts, err := m.replyCounts(ctx, ids)
	if err != nil {
		return err
	}

	for i := range items {
		items[i].ReplyCount = counts[items[i].ID]
	}

	return nil
}

// replyCounts считает живые прямые ответы для набора родителей одним агрегатом.
func (m *Mongo) replyCounts(ctx context.Context, parentIDs []int64) (map[int64]int64, error) {
	pipeline := mongodriver.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "parent_id", Value: bson.D{{Key: "$in", Value: parentIDs}}},
			{Key: "is_deleted", Value: false},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$parent_id"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cur, err := m.comments.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("reply counts: %w", err)
	}
	defer cur.Close(ctx)

	counts := make(map[int64]int64, len(parentIDs))
	for cur.Next(ctx) {
		var row struct {
			ID int64 `bson:"_id"`
			N  int64 `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("reply counts decode: %w", err)
		}
		counts[row.ID] = row.N
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("reply counts cursor: %w", err)
	}

	return counts, nil
}
