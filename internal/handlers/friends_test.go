package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/social"
)

func setupFriendRouter(f fixture, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewFriendHandler(social.New(f.users, f.requests, f.log), f.users)
	r := gin.New()
	r.Use(asUser(userID))
	r.GET("/friends/candidates", h.Candidates)
	r.POST("/friends/requests", h.SendRequest)
	r.GET("/notifications", h.Notifications)
	r.POST("/notifications/accept", h.Accept)
	r.POST("/notifications/reject", h.Reject)
	return r
}

func TestFriendRequestAcceptFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asA := setupFriendRouter(f, "a")
	asB := setupFriendRouter(f, "b")

	rec := doJSON(asA, http.MethodGet, "/friends/candidates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["users"], 2)

	rec = doJSON(asA, http.MethodPost, "/friends/requests", gin.H{"recipient_id": "b"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(asA, http.MethodPost, "/friends/requests", gin.H{"recipient_id": "b"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(asA, http.MethodGet, "/friends/candidates?q=cal", nil)
	users := decode(t, rec)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "c", users[0].(map[string]any)["id"])

	rec = doJSON(asB, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode(t, rec)["notifications"].([]any)
	require.Len(t, notes, 1)
	assert.Equal(t, "a", notes[0].(map[string]any)["from"])

	rec = doJSON(asB, http.MethodPost, "/notifications/accept", gin.H{"from_id": "a"})
	require.Equal(t, http.StatusOK, rec.Code)

	a, err := f.users.Get(ctx, "a")
	require.NoError(t, err)
	b, err := f.users.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, a.IsFriend("b"))
	assert.True(t, b.IsFriend("a"))
	assert.Empty(t, b.Notifications)

	rec = doJSON(asA, http.MethodPost, "/friends/requests", gin.H{"recipient_id": "b"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFriendRequestReject(t *testing.T) {
	f := newFixture(t)
	asA := setupFriendRouter(f, "a")
	asC := setupFriendRouter(f, "c")

	require.Equal(t, http.StatusCreated, doJSON(asA, http.MethodPost, "/friends/requests", gin.H{"recipient_id": "c"}).Code)
	require.Equal(t, http.StatusOK, doJSON(asC, http.MethodPost, "/notifications/reject", gin.H{"from_id": "a"}).Code)

	c, err := f.users.Get(context.Background(), "c")
	require.NoError(t, err)
	assert.False(t, c.IsFriend("a"))
	assert.Empty(t, c.Notifications)

	pending, err := f.requests.PendingTo(context.Background(), "c")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFriendRequestBadInput(t *testing.T) {
	f := newFixture(t)
	asA := setupFriendRouter(f, "a")

	assert.Equal(t, http.StatusBadRequest, doJSON(asA, http.MethodPost, "/friends/requests", gin.H{}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(asA, http.MethodPost, "/friends/requests", gin.H{"recipient_id": "a"}).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(asA, http.MethodPost, "/friends/requests", gin.H{"recipient_id": "zz"}).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(asA, http.MethodPost, "/notifications/accept", gin.H{}).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(asA, http.MethodPost, "/notifications/accept", gin.H{"from_id": "zz"}).Code)
}

func TestAcceptWithoutRequestIsNotFound(t *testing.T) {
	f := newFixture(t)
	asA := setupFriendRouter(f, "a")

	assert.Equal(t, http.StatusNotFound, doJSON(asA, http.MethodPost, "/notifications/accept", gin.H{"from_id": "c"}).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(asA, http.MethodPost, "/notifications/reject", gin.H{"from_id": "c"}).Code)

	a, err := f.users.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, a.IsFriend("c"))
}
