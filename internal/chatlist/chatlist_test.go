package chatlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dmchat/internal/docstore/memstore"
	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

func peers(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Peer.ID
	}
	return out
}

func TestComposeMergesSortsAndFilters(t *testing.T) {
	in := Input{
		UserID: "me",
		Entries: []models.ChatListEntry{
			{RID: "b", MessageID: "b_me", LastMessage: "old", UpdatedAt: 100, MessageSeen: true},
			{RID: "gone", MessageID: "gone_me", UpdatedAt: 900},
		},
		Friends: []string{"b", "c", "d", "e"},
		Users: map[string]models.User{
			"b": {ID: "b", Name: "Bea"},
			"c": {ID: "c", Name: "Cal", LastSeen: 500},
			"d": {ID: "d", Name: "Dee"},
			"e": {ID: "e", Name: "Eve", LastSeen: 50},
		},
		Conversations: map[string]models.Conversation{
			"b_me": {ID: "b_me", LastMessage: "newer", LastMessageAt: 200, UnreadCount: map[string]int{"me": 0}},
			"d_me": {ID: "d_me", LastMessage: "hey", LastMessageAt: 10, UnreadCount: map[string]int{"me": 2}},
		},
	}

	items := Compose(in)
	assert.Equal(t, []string{"d", "c", "b", "e"}, peers(items))

	assert.Equal(t, 2, items[0].UnreadCount)
	assert.False(t, items[0].Persisted)
	assert.Equal(t, "hey", items[0].LastMessage)

	bea := items[2]
	assert.True(t, bea.Persisted)
	assert.Equal(t, "newer", bea.LastMessage)
	assert.Equal(t, int64(200), bea.LastMessageAt)
	assert.Equal(t, "c_me", items[1].ConversationID)

	in.Query = "E"
	assert.Equal(t, []string{"d", "b", "e"}, peers(Compose(in)))
}

func TestComposeEmpty(t *testing.T) {
	assert.Empty(t, Compose(Input{UserID: "me"}))
}

func newService(t *testing.T) (*Service, *repositories.UserRepo, *repositories.ConversationRepo, *repositories.ChatListRepo) {
	t.Helper()
	store := memstore.New()
	users := repositories.NewUserRepo(store)
	convs := repositories.NewConversationRepo(store)
	lists := repositories.NewChatListRepo(store)
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, models.User{ID: "a", Name: "Ann", Friends: []string{"b"}}))
	require.NoError(t, users.Create(ctx, models.User{ID: "b", Name: "Bob", Friends: []string{"a"}}))
	require.NoError(t, lists.Create(ctx, "a"))
	return NewService(users, convs, lists, zap.NewNop().Sugar()), users, convs, lists
}

func TestOpenCreatesConversationAndEntry(t *testing.T) {
	ctx := context.Background()
	svc, users, convs, lists := newService(t)

	id, err := svc.Open(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a_b", id)

	conv, err := convs.Get(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, conv.Participants)
	assert.Equal(t, map[string]int{"a": 0, "b": 0}, conv.UnreadCount)

	ann, err := users.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ann.Chats)

	list, err := lists.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list.ChatsData, 1)
	assert.Equal(t, models.ChatListEntry{RID: "b", MessageID: "a_b", UpdatedAt: list.ChatsData[0].UpdatedAt, MessageSeen: true}, list.ChatsData[0])

	_, err = svc.Open(ctx, "a", "b")
	require.NoError(t, err)
	list, err = lists.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, list.ChatsData, 1)
}

func TestOpenResetsUnread(t *testing.T) {
	ctx := context.Background()
	svc, _, convs, _ := newService(t)
	require.NoError(t, convs.Create(ctx, models.Conversation{ID: "a_b", Participants: []string{"a", "b"}, UnreadCount: map[string]int{"a": 3, "b": 1}}))

	_, err := svc.Open(ctx, "a", "b")
	require.NoError(t, err)
	conv, err := convs.Get(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount["a"])
	assert.Equal(t, 1, conv.UnreadCount["b"])
}

func TestOpenRejectsSelfAndUnknownPeer(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, err := svc.Open(context.Background(), "a", "a")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Open(context.Background(), "a", "nobody")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestWatchRecomposesOnChange(t *testing.T) {
	ctx := context.Background()
	svc, _, convs, _ := newService(t)

	var mu sync.Mutex
	var last []Item
	unsub, err := svc.Watch(ctx, "a", "", func(items []Item) {
		mu.Lock()
		defer mu.Unlock()
		last = items
	}, nil)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1 && last[0].LastMessage == ""
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, convs.Create(ctx, models.Conversation{
		ID: "a_b", Participants: []string{"a", "b"}, LastMessage: "yo", LastMessageAt: 7, UnreadCount: map[string]int{"a": 1},
	}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1 && last[0].LastMessage == "yo" && last[0].UnreadCount == 1
	}, time.Second, 5*time.Millisecond)
}
