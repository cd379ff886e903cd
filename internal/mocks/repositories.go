package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, id string) (models.Conversation, error) {
	args := m.Called(ctx, id)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Create(ctx context.Context, conv models.Conversation) error {
	return m.Called(ctx, conv).Error(0)
}

func (m *ConversationRepositoryMock) Update(ctx context.Context, id string, fields map[string]any) error {
	return m.Called(ctx, id, fields).Error(0)
}

func (m *ConversationRepositoryMock) ResetUnread(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *ConversationRepositoryMock) SetTyping(ctx context.Context, id, userID string, at int64) error {
	return m.Called(ctx, id, userID, at).Error(0)
}

func (m *ConversationRepositoryMock) ClearTyping(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) Subscribe(ctx context.Context, id string, onNext func(models.Conversation, bool), onError func(error)) (docstore.Unsubscribe, error) {
	args := m.Called(ctx, id, onNext, onError)
	return unsubscribe(args.Get(0)), args.Error(1)
}

func (m *ConversationRepositoryMock) SubscribeForUser(ctx context.Context, userID string, onNext func([]models.Conversation), onError func(error)) (docstore.Unsubscribe, error) {
	args := m.Called(ctx, userID, onNext, onError)
	return unsubscribe(args.Get(0)), args.Error(1)
}

type ChatListRepositoryMock struct {
	mock.Mock
}

func (m *ChatListRepositoryMock) Get(ctx context.Context, userID string) (models.ChatList, error) {
	args := m.Called(ctx, userID)
	var list models.ChatList
	if val := args.Get(0); val != nil {
		list = val.(models.ChatList)
	}
	return list, args.Error(1)
}

func (m *ChatListRepositoryMock) Create(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *ChatListRepositoryMock) Save(ctx context.Context, userID string, entries []models.ChatListEntry) error {
	return m.Called(ctx, userID, entries).Error(0)
}

func (m *ChatListRepositoryMock) Subscribe(ctx context.Context, userID string, onNext func(models.ChatList), onError func(error)) (docstore.Unsubscribe, error) {
	args := m.Called(ctx, userID, onNext, onError)
	return unsubscribe(args.Get(0)), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MessageRepositoryMock) Latest(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) Before(ctx context.Context, conversationID string, cursor repositories.MessageCursor, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, cursor, limit)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) SubscribeLatest(ctx context.Context, conversationID string, limit int, onNext func([]models.Message), onError func(error)) (docstore.Unsubscribe, error) {
	args := m.Called(ctx, conversationID, limit, onNext, onError)
	return unsubscribe(args.Get(0)), args.Error(1)
}

func messages(val any) []models.Message {
	if val == nil {
		return nil
	}
	return val.([]models.Message)
}

func unsubscribe(val any) docstore.Unsubscribe {
	if val == nil {
		return func() {}
	}
	return val.(docstore.Unsubscribe)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.ChatListRepository = (*ChatListRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
