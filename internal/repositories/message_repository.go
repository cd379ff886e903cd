package repositories

import (
	"context"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
)

// MessageCursor addresses a message in (createdAt, id) order.
type MessageCursor struct {
	CreatedAt int64
	ID        string
}

// CursorOf returns the cursor pointing at m.
func CursorOf(m models.Message) MessageCursor {
	return MessageCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// MessageRepository defines interactions for chat messages. Pages are returned
// newest first.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) error
	Latest(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	Before(ctx context.Context, conversationID string, cursor MessageCursor, limit int) ([]models.Message, error)
	SubscribeLatest(ctx context.Context, conversationID string, limit int, onNext func([]models.Message), onError func(error)) (docstore.Unsubscribe, error)
}

// MessageRepo is a docstore implementation of MessageRepository.
type MessageRepo struct {
	store docstore.Store
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(store docstore.Store) *MessageRepo {
	return &MessageRepo{store: store}
}

func (r *MessageRepo) Create(ctx context.Context, msg models.Message) error {
	data, err := docstore.Encode(msg.Record())
	if err != nil {
		return err
	}
	return storeErr("create message", r.store.Set(ctx, CollMessages, msg.ID, data))
}

func (r *MessageRepo) Latest(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return r.run(ctx, newestFirst(conversationID, limit))
}

// Before returns up to limit messages strictly older than cursor.
func (r *MessageRepo) Before(ctx context.Context, conversationID string, cursor MessageCursor, limit int) ([]models.Message, error) {
	q := newestFirst(conversationID, limit).After(docstore.Cursor{Value: cursor.CreatedAt, ID: cursor.ID})
	return r.run(ctx, q)
}

func (r *MessageRepo) SubscribeLatest(ctx context.Context, conversationID string, limit int, onNext func([]models.Message), onError func(error)) (docstore.Unsubscribe, error) {
	unsub, err := r.store.SubscribeQuery(ctx, newestFirst(conversationID, limit), func(docs []docstore.Document) {
		msgs, err := messagesFromDocs(docs)
		if err != nil {
			onError(err)
			return
		}
		onNext(msgs)
	}, onError)
	return unsub, storeErr("subscribe messages", err)
}

func (r *MessageRepo) run(ctx context.Context, q docstore.Query) ([]models.Message, error) {
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, storeErr("query messages", err)
	}
	return messagesFromDocs(docs)
}

func newestFirst(conversationID string, limit int) docstore.Query {
	return docstore.NewQuery(CollMessages).
		Where("conversationId", docstore.OpEqual, conversationID).
		Order("createdAt", true).
		Take(limit)
}

func messagesFromDocs(docs []docstore.Document) ([]models.Message, error) {
	recs, err := decodeAll(docs, func(m *models.MessageRecord, id string) { m.ID = id })
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Message())
	}
	return out, nil
}
