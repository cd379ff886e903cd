package repositories

import (
	"context"
	"errors"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
)

// ChatListRepository abstracts the per-user chat list documents.
type ChatListRepository interface {
	Get(ctx context.Context, userID string) (models.ChatList, error)
	Create(ctx context.Context, userID string) error
	Save(ctx context.Context, userID string, entries []models.ChatListEntry) error
	Subscribe(ctx context.Context, userID string, onNext func(models.ChatList), onError func(error)) (docstore.Unsubscribe, error)
}

// ChatListRepo is a docstore implementation of ChatListRepository.
type ChatListRepo struct {
	store docstore.Store
}

// NewChatListRepo constructs a ChatListRepo.
func NewChatListRepo(store docstore.Store) *ChatListRepo {
	return &ChatListRepo{store: store}
}

func (r *ChatListRepo) Get(ctx context.Context, userID string) (models.ChatList, error) {
	doc, err := r.store.Get(ctx, CollChatLists, userID)
	if err != nil {
		return models.ChatList{}, storeErr("get chat list", err)
	}
	return decode[models.ChatList](doc)
}

// Create writes an empty chat list.
func (r *ChatListRepo) Create(ctx context.Context, userID string) error {
	return storeErr("create chat list", r.store.Set(ctx, CollChatLists, userID, map[string]any{
		"chatsData": []any{},
	}))
}

// Save replaces the whole chatsData array, creating the document if needed.
func (r *ChatListRepo) Save(ctx context.Context, userID string, entries []models.ChatListEntry) error {
	if entries == nil {
		entries = []models.ChatListEntry{}
	}
	err := r.store.Update(ctx, CollChatLists, userID, map[string]any{"chatsData": entries})
	if errors.Is(err, docstore.ErrNotFound) {
		data, encErr := docstore.Encode(models.ChatList{ChatsData: entries})
		if encErr != nil {
			return encErr
		}
		err = r.store.Set(ctx, CollChatLists, userID, data)
	}
	return storeErr("save chat list", err)
}

func (r *ChatListRepo) Subscribe(ctx context.Context, userID string, onNext func(models.ChatList), onError func(error)) (docstore.Unsubscribe, error) {
	unsub, err := r.store.SubscribeDoc(ctx, CollChatLists, userID, func(doc docstore.Document, exists bool) {
		if !exists {
			onNext(models.ChatList{})
			return
		}
		list, err := decode[models.ChatList](doc)
		if err != nil {
			onError(err)
			return
		}
		onNext(list)
	}, onError)
	return unsub, storeErr("subscribe chat list", err)
}
