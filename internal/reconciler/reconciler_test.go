package reconciler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dmchat/internal/docstore/memstore"
	"dmchat/internal/mocks"
	"dmchat/internal/models"
	"dmchat/internal/reconciler"
	"dmchat/internal/repositories"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	messages      *repositories.MessageRepo
	conversations *repositories.ConversationRepo
	chatLists     *repositories.ChatListRepo
	rec           *reconciler.Reconciler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	f := fixture{
		messages:      repositories.NewMessageRepo(store),
		conversations: repositories.NewConversationRepo(store),
		chatLists:     repositories.NewChatListRepo(store),
	}
	f.rec = reconciler.New(f.messages, f.conversations, f.chatLists, zap.NewNop().Sugar()).
		WithClock(func() time.Time { return fixedNow })

	require.NoError(t, f.conversations.Create(ctx, models.Conversation{
		ID:           "a_b",
		Participants: []string{"a", "b"},
		UnreadCount:  map[string]int{"a": 0, "b": 2},
	}))
	return f
}

func hello() reconciler.Outgoing {
	return reconciler.Outgoing{ConversationID: "a_b", SenderID: "a", RecipientID: "b", Body: models.TextBody{Text: "hello"}}
}

func TestApplyUpdatesAllThreeDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.chatLists.Save(ctx, "a", []models.ChatListEntry{{RID: "b", MessageID: "a_b", MessageSeen: true}}))
	require.NoError(t, f.chatLists.Save(ctx, "b", []models.ChatListEntry{{RID: "a", MessageID: "a_b", MessageSeen: true}}))

	msg, err := f.rec.Apply(ctx, hello())
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, fixedNow.UnixMilli(), msg.CreatedAt)

	conv, err := f.conversations.Get(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, 3, conv.UnreadCount["b"])
	assert.Equal(t, 0, conv.UnreadCount["a"])
	assert.Equal(t, "hello", conv.LastMessage)
	assert.Equal(t, fixedNow.UnixMilli(), conv.LastMessageAt)

	listA, err := f.chatLists.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", listA.ChatsData[0].LastMessage)
	assert.True(t, listA.ChatsData[0].MessageSeen)

	listB, err := f.chatLists.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "hello", listB.ChatsData[0].LastMessage)
	assert.Equal(t, fixedNow.UnixMilli(), listB.ChatsData[0].UpdatedAt)
	assert.False(t, listB.ChatsData[0].MessageSeen)

	stored, err := f.messages.Latest(ctx, "a_b", 50)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msg, stored[0])
}

func TestApplyLeavesMissingEntriesUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.chatLists.Save(ctx, "a", []models.ChatListEntry{{RID: "b", MessageID: "a_b", MessageSeen: true}}))
	require.NoError(t, f.chatLists.Save(ctx, "b", []models.ChatListEntry{{RID: "c", MessageID: "b_c", LastMessage: "old"}}))

	_, err := f.rec.Apply(ctx, hello())
	require.NoError(t, err)

	listB, err := f.chatLists.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []models.ChatListEntry{{RID: "c", MessageID: "b_c", LastMessage: "old"}}, listB.ChatsData)
}

func TestApplyImageUsesImagePreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg, err := f.rec.Apply(ctx, reconciler.Outgoing{ConversationID: "a_b", SenderID: "b", RecipientID: "a", Body: models.ImageBody{URL: "https://img/x.png"}})
	require.NoError(t, err)
	assert.Equal(t, models.ImageBody{URL: "https://img/x.png"}, msg.Body)

	conv, err := f.conversations.Get(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, models.PreviewImage, conv.LastMessage)
	assert.Equal(t, 1, conv.UnreadCount["a"])
}

func TestApplyWhitespaceWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out := hello()
	out.Body = models.TextBody{Text: " \n\t "}
	_, err := f.rec.Apply(ctx, out)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	stored, err := f.messages.Latest(ctx, "a_b", 50)
	require.NoError(t, err)
	assert.Empty(t, stored)
	conv, err := f.conversations.Get(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.UnreadCount["b"])
}

func TestApplyReportsSummaryFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	messages := repositories.NewMessageRepo(store)
	convs := new(mocks.ConversationRepositoryMock)
	lists := new(mocks.ChatListRepositoryMock)
	rec := reconciler.New(messages, convs, lists, zap.NewNop().Sugar())

	convs.On("Get", mock.Anything, "a_b").Return(models.Conversation{}, models.ErrNetwork).Once()

	msg, err := rec.Apply(ctx, hello())
	var partial *reconciler.PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []reconciler.Step{reconciler.StepAppend}, partial.Applied)
	assert.Equal(t, reconciler.StepSummary, partial.Failed)
	assert.True(t, errors.Is(err, models.ErrNetwork))
	assert.Equal(t, msg.ID, partial.Message.ID)

	stored, err := messages.Latest(ctx, "a_b", 50)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	convs.AssertExpectations(t)
	lists.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestApplyAttemptsBothChatListsOnFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	convs := repositories.NewConversationRepo(store)
	require.NoError(t, convs.Create(ctx, models.Conversation{ID: "a_b", Participants: []string{"a", "b"}}))
	lists := new(mocks.ChatListRepositoryMock)
	rec := reconciler.New(repositories.NewMessageRepo(store), convs, lists, zap.NewNop().Sugar())

	lists.On("Get", mock.Anything, "b").Return(models.ChatList{}, models.ErrNetwork).Once()
	lists.On("Get", mock.Anything, "a").Return(models.ChatList{ChatsData: []models.ChatListEntry{{RID: "b", MessageID: "a_b"}}}, nil).Once()
	lists.On("Save", mock.Anything, "a", mock.Anything).Return(nil).Once()

	_, err := rec.Apply(ctx, hello())
	var partial *reconciler.PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []reconciler.Step{reconciler.StepAppend, reconciler.StepSummary}, partial.Applied)
	assert.Equal(t, reconciler.StepChatLists, partial.Failed)
	lists.AssertExpectations(t)
}

func TestApplyAppendFailureWritesNothingElse(t *testing.T) {
	ctx := context.Background()
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	lists := new(mocks.ChatListRepositoryMock)
	rec := reconciler.New(msgs, convs, lists, zap.NewNop().Sugar())

	msgs.On("Create", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ConversationID == "a_b" && m.SenderID == "a"
	})).Return(models.ErrNetwork).Once()

	_, err := rec.Apply(ctx, hello())
	require.ErrorIs(t, err, models.ErrNetwork)
	var partial *reconciler.PartialApplyError
	assert.False(t, errors.As(err, &partial))

	msgs.AssertExpectations(t)
	convs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	lists.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}
