package social

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dmchat/internal/docstore/memstore"
	"dmchat/internal/mocks"
	"dmchat/internal/models"
	"dmchat/internal/observability"
	"dmchat/internal/repositories"
)

func newService(t *testing.T) (*Service, *repositories.UserRepo, *repositories.FriendRequestRepo) {
	t.Helper()
	store := memstore.New()
	users := repositories.NewUserRepo(store)
	requests := repositories.NewFriendRequestRepo(store)
	ctx := context.Background()
	for _, u := range []models.User{
		{ID: "a", Name: "Ann Lee", Email: "ann@x.io", Username: "ann"},
		{ID: "b", Name: "Bob Stone", Email: "bob@x.io", Username: "bob"},
		{ID: "c", Name: "Cara Diaz", Email: "cara@x.io", Username: "cara"},
		{ID: "d", Name: "Dan Bobson", Email: "dan@x.io", Username: "dan"},
	} {
		require.NoError(t, users.Create(ctx, u))
	}
	return New(users, requests, zap.NewNop().Sugar()), users, requests
}

func TestSendAndAcceptMakesFriendshipMutual(t *testing.T) {
	ctx := context.Background()
	svc, users, requests := newService(t)
	ann, err := users.Get(ctx, "a")
	require.NoError(t, err)

	req, err := svc.SendRequest(ctx, ann, "b")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	bob, err := users.Get(ctx, "b")
	require.NoError(t, err)
	require.Len(t, bob.Notifications, 1)
	assert.Equal(t, "a", bob.Notifications[0].From)
	assert.Equal(t, "Ann Lee", bob.Notifications[0].FromName)

	require.NoError(t, svc.Accept(ctx, "b", "a"))

	pending, err := requests.PendingBetween(ctx, "a", "b")
	require.NoError(t, err)
	assert.Empty(t, pending)

	ann, err = users.Get(ctx, "a")
	require.NoError(t, err)
	bob, err = users.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ann.IsFriend("b"))
	assert.True(t, bob.IsFriend("a"))
	assert.Empty(t, bob.Notifications)
}

func TestAcceptAndRejectNeedAPendingRequest(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newService(t)

	require.ErrorIs(t, svc.Accept(ctx, "c", "d"), models.ErrNotFound)
	require.ErrorIs(t, svc.Reject(ctx, "c", "d"), models.ErrNotFound)

	cara, err := users.Get(ctx, "c")
	require.NoError(t, err)
	dan, err := users.Get(ctx, "d")
	require.NoError(t, err)
	assert.Empty(t, cara.Friends)
	assert.Empty(t, dan.Friends)

	// A request in the other direction does not let the sender accept it.
	_, err = svc.SendRequest(ctx, dan, "c")
	require.NoError(t, err)
	require.ErrorIs(t, svc.Accept(ctx, "d", "c"), models.ErrNotFound)
	dan, err = users.Get(ctx, "d")
	require.NoError(t, err)
	assert.Empty(t, dan.Friends)
}

func TestRejectLeavesFriendsUntouched(t *testing.T) {
	ctx := context.Background()
	svc, users, requests := newService(t)

	_, err := svc.SendRequest(ctx, models.User{ID: "c", Name: "Cara Diaz"}, "b")
	require.NoError(t, err)
	require.NoError(t, svc.Reject(ctx, "b", "c"))

	bob, err := users.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, bob.Notifications)
	assert.Empty(t, bob.Friends)
	pending, err := requests.PendingTo(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSendRequestRequiresBothIDs(t *testing.T) {
	svc, _, requests := newService(t)

	_, err := svc.SendRequest(context.Background(), models.User{}, "b")
	require.ErrorIs(t, err, ErrMissingSender)
	_, err = svc.SendRequest(context.Background(), models.User{ID: "a"}, "")
	require.ErrorIs(t, err, ErrMissingRecipient)

	pending, err := requests.PendingTo(context.Background(), "b")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAcceptUnknownSender(t *testing.T) {
	svc, _, _ := newService(t)
	err := svc.Accept(context.Background(), "b", "ghost")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestPendingMapAndCandidates(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newService(t)
	require.NoError(t, users.AddFriend(ctx, "a", "c"))
	_, err := svc.SendRequest(ctx, models.User{ID: "d", Name: "Dan Bobson"}, "a")
	require.NoError(t, err)

	pending, err := svc.PendingMap(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"d": true}, pending)

	candidates, err := svc.Candidates(ctx, "a", "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "b", candidates[0].ID)

	candidates, err = svc.Candidates(ctx, "c", "BOB")
	require.NoError(t, err)
	var got []string
	for _, u := range candidates {
		got = append(got, u.ID)
	}
	assert.Equal(t, []string{"b", "d"}, got)
}

func TestAcceptPublishesEvent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, observability.EventFriendRequestSent, mock.Anything).Return(nil).Once()
	publisher.On("Publish", mock.Anything, observability.EventFriendRequestAccepted, mock.Anything).Return(nil).Once()
	observability.SetPublisher(publisher)
	defer observability.SetPublisher(nil)

	_, err := svc.SendRequest(ctx, models.User{ID: "a", Name: "Ann Lee"}, "b")
	require.NoError(t, err)
	require.NoError(t, svc.Accept(ctx, "b", "a"))
	publisher.AssertExpectations(t)
}
