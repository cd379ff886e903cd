package repositories

import (
	"context"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
)

// ConversationRepository abstracts conversation summary documents.
type ConversationRepository interface {
	Get(ctx context.Context, id string) (models.Conversation, error)
	Create(ctx context.Context, conv models.Conversation) error
	Update(ctx context.Context, id string, fields map[string]any) error
	ResetUnread(ctx context.Context, id, userID string) error
	SetTyping(ctx context.Context, id, userID string, at int64) error
	ClearTyping(ctx context.Context, id, userID string) error
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	Subscribe(ctx context.Context, id string, onNext func(models.Conversation, bool), onError func(error)) (docstore.Unsubscribe, error)
	SubscribeForUser(ctx context.Context, userID string, onNext func([]models.Conversation), onError func(error)) (docstore.Unsubscribe, error)
}

// ConversationRepo is a docstore implementation of ConversationRepository.
type ConversationRepo struct {
	store docstore.Store
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(store docstore.Store) *ConversationRepo {
	return &ConversationRepo{store: store}
}

func (r *ConversationRepo) Get(ctx context.Context, id string) (models.Conversation, error) {
	doc, err := r.store.Get(ctx, CollConversations, id)
	if err != nil {
		return models.Conversation{}, storeErr("get conversation", err)
	}
	return conversationFromDoc(doc)
}

func (r *ConversationRepo) Create(ctx context.Context, conv models.Conversation) error {
	if conv.UnreadCount == nil {
		conv.UnreadCount = map[string]int{}
	}
	if conv.Typing == nil {
		conv.Typing = map[string]int64{}
	}
	data, err := docstore.Encode(conv)
	if err != nil {
		return err
	}
	return storeErr("create conversation", r.store.Set(ctx, CollConversations, conv.ID, data))
}

func (r *ConversationRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	return storeErr("update conversation", r.store.Update(ctx, CollConversations, id, fields))
}

func (r *ConversationRepo) ResetUnread(ctx context.Context, id, userID string) error {
	return r.Update(ctx, id, map[string]any{"unreadCount." + userID: 0})
}

func (r *ConversationRepo) SetTyping(ctx context.Context, id, userID string, at int64) error {
	return r.Update(ctx, id, map[string]any{"typing." + userID: at})
}

// ClearTyping removes the user's typing key.
func (r *ConversationRepo) ClearTyping(ctx context.Context, id, userID string) error {
	return r.Update(ctx, id, map[string]any{"typing." + userID: nil})
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	docs, err := r.store.Query(ctx, forUser(userID))
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	return decodeAll(docs, func(c *models.Conversation, id string) { c.ID = id })
}

func (r *ConversationRepo) Subscribe(ctx context.Context, id string, onNext func(models.Conversation, bool), onError func(error)) (docstore.Unsubscribe, error) {
	unsub, err := r.store.SubscribeDoc(ctx, CollConversations, id, func(doc docstore.Document, exists bool) {
		if !exists {
			onNext(models.Conversation{ID: id}, false)
			return
		}
		c, err := conversationFromDoc(doc)
		if err != nil {
			onError(err)
			return
		}
		onNext(c, true)
	}, onError)
	return unsub, storeErr("subscribe conversation", err)
}

func (r *ConversationRepo) SubscribeForUser(ctx context.Context, userID string, onNext func([]models.Conversation), onError func(error)) (docstore.Unsubscribe, error) {
	unsub, err := r.store.SubscribeQuery(ctx, forUser(userID), func(docs []docstore.Document) {
		convs, err := decodeAll(docs, func(c *models.Conversation, id string) { c.ID = id })
		if err != nil {
			onError(err)
			return
		}
		onNext(convs)
	}, onError)
	return unsub, storeErr("subscribe conversations", err)
}

func forUser(userID string) docstore.Query {
	return docstore.NewQuery(CollConversations).Where("participants", docstore.OpArrayContains, userID)
}

func conversationFromDoc(doc docstore.Document) (models.Conversation, error) {
	c, err := decode[models.Conversation](doc)
	if err != nil {
		return models.Conversation{}, err
	}
	c.ID = doc.ID
	if c.UnreadCount == nil {
		c.UnreadCount = map[string]int{}
	}
	if c.Typing == nil {
		c.Typing = map[string]int64{}
	}
	return c, nil
}
