package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dmchat/internal/docstore/memstore"
	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

type fixture struct {
	users         *repositories.UserRepo
	creds         *repositories.CredentialsRepo
	conversations *repositories.ConversationRepo
	messages      *repositories.MessageRepo
	chatLists     *repositories.ChatListRepo
	requests      *repositories.FriendRequestRepo
	log           *zap.SugaredLogger
}

// newFixture seeds users a, b and c and the conversation a_b.
func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	f := fixture{
		users:         repositories.NewUserRepo(store),
		creds:         repositories.NewCredentialsRepo(store),
		conversations: repositories.NewConversationRepo(store),
		messages:      repositories.NewMessageRepo(store),
		chatLists:     repositories.NewChatListRepo(store),
		requests:      repositories.NewFriendRequestRepo(store),
		log:           zap.NewNop().Sugar(),
	}
	ctx := context.Background()
	for _, u := range []models.User{
		{ID: "a", Username: "ann", Email: "ann@x.io", Name: "Ann Lee"},
		{ID: "b", Username: "bea", Email: "bea@x.io", Name: "Bea Cole"},
		{ID: "c", Username: "cal", Email: "cal@x.io", Name: "Cal Dunn"},
	} {
		require.NoError(t, f.users.Create(ctx, u))
	}
	require.NoError(t, f.conversations.Create(ctx, models.Conversation{
		ID:           "a_b",
		Participants: []string{"a", "b"},
		UnreadCount:  map[string]int{"a": 3, "b": 0},
	}))
	return f
}

// asUser stands in for the auth middleware.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func doJSONAuth(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
