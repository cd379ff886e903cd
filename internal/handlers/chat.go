package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dmchat/internal/chatlist"
	"dmchat/internal/models"
	"dmchat/internal/reconciler"
	"dmchat/internal/repositories"
	"dmchat/internal/upload"
)

// OnlineChecker answers whether a user is currently online.
type OnlineChecker interface {
	IsOnline(ctx context.Context, u models.User) bool
}

// ChatDeps are the collaborators of a ChatHandler.
type ChatDeps struct {
	Lists         *chatlist.Service
	Users         repositories.UserRepository
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Applier       reconciler.Applier
	Uploader      upload.Uploader
	Presence      OnlineChecker
	PageSize      int
	Logger        *zap.SugaredLogger
}

// ChatHandler manages direct chat endpoints.
type ChatHandler struct {
	ChatDeps
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(deps ChatDeps) *ChatHandler {
	if deps.PageSize <= 0 {
		deps.PageSize = 50
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &ChatHandler{ChatDeps: deps}
}

// ListChats returns the composed chat list of the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	items, err := h.Lists.List(c.Request.Context(), c.GetString("userID"), c.Query("q"))
	if err != nil {
		respondError(c, err, "failed to load chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": items})
}

// OpenChat creates or returns the conversation with a peer.
func (h *ChatHandler) OpenChat(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.Lists.Open(c.Request.Context(), c.GetString("userID"), req.PeerID)
	if err != nil {
		respondError(c, err, "could not open chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

// GetChat returns the conversation header: the peer and whether they are online.
func (h *ChatHandler) GetChat(c *gin.Context) {
	userID := c.GetString("userID")
	conv, ok := h.conversation(c, userID)
	if !ok {
		return
	}

	peer, err := h.Users.Get(c.Request.Context(), conv.Peer(userID))
	if err != nil {
		respondError(c, err, "failed to load chat partner")
		return
	}
	online := false
	if h.Presence != nil {
		online = h.Presence.IsOnline(c.Request.Context(), peer)
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conv.ID,
		"peer":            chatlist.PeerOf(peer),
		"online":          online,
		"unread_count":    conv.UnreadCount[userID],
		"last_message":    conv.LastMessage,
		"last_message_at": conv.LastMessageAt,
	})
}

// GetMessages returns one page of messages in ascending order. Without a
// cursor it is the latest page; with before_at and before_id it is the page
// strictly older than that message.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID := c.GetString("userID")
	conv, ok := h.conversation(c, userID)
	if !ok {
		return
	}

	var (
		page []models.Message
		err  error
	)
	beforeAt, beforeID := c.Query("before_at"), c.Query("before_id")
	if beforeAt == "" && beforeID == "" {
		page, err = h.Messages.Latest(c.Request.Context(), conv.ID, h.PageSize)
	} else {
		at, perr := strconv.ParseInt(beforeAt, 10, 64)
		if perr != nil || beforeID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		page, err = h.Messages.Before(c.Request.Context(), conv.ID, repositories.MessageCursor{CreatedAt: at, ID: beforeID}, h.PageSize)
	}
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}

	resp := gin.H{
		"messages": ascending(page),
		"has_more": len(page) == h.PageSize,
	}
	if len(page) > 0 {
		oldest := page[len(page)-1]
		resp["next"] = gin.H{"before_at": oldest.CreatedAt, "before_id": oldest.ID}
	}
	c.JSON(http.StatusOK, resp)
}

// PostMessage sends a text message. Whitespace-only text is ignored.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	conv, ok := h.conversation(c, userID)
	if !ok {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.Status(http.StatusNoContent)
		return
	}
	h.send(c, conv, userID, models.TextBody{Text: text})
}

// PostImage uploads a multipart "image" file and sends it as a message.
func (h *ChatHandler) PostImage(c *gin.Context) {
	userID := c.GetString("userID")
	conv, ok := h.conversation(c, userID)
	if !ok {
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		respondError(c, models.Invalid("image", "no file provided"), "")
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, upload.MaxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	attachment := upload.Attachment{Filename: fh.Filename, ContentType: contentType, Data: data}
	if err := upload.ValidateImage(attachment); err != nil {
		respondError(c, err, "")
		return
	}
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image upload not configured"})
		return
	}

	url, err := h.Uploader.Upload(c.Request.Context(), attachment)
	if err != nil {
		h.Logger.Warnw("image upload failed", "conversation_id", conv.ID, "user_id", userID, "error", err)
		respondError(c, err, "failed to upload image")
		return
	}
	h.send(c, conv, userID, models.ImageBody{URL: url})
}

func (h *ChatHandler) send(c *gin.Context, conv models.Conversation, userID string, body models.Body) {
	msg, err := h.Applier.Apply(c.Request.Context(), reconciler.Outgoing{
		ConversationID: conv.ID,
		SenderID:       userID,
		RecipientID:    conv.Peer(userID),
		Body:           body,
	})
	var partial *reconciler.PartialApplyError
	switch {
	case errors.As(err, &partial):
		// the message is stored; only the denormalized copies lag
		c.JSON(http.StatusCreated, gin.H{"message": msg, "warning": string(partial.Failed)})
	case err != nil:
		respondError(c, err, "failed to send message")
	default:
		c.JSON(http.StatusCreated, gin.H{"message": msg})
	}
}

// conversation loads the path's conversation and checks the caller takes
// part in it. On failure the response is written and ok is false.
func (h *ChatHandler) conversation(c *gin.Context, userID string) (models.Conversation, bool) {
	conv, err := h.Conversations.Get(c.Request.Context(), c.Param("conversationId"))
	if err == nil && !conv.HasParticipant(userID) {
		err = models.ErrAccessDenied
	}
	if err != nil {
		respondError(c, err, "failed to load chat")
		return models.Conversation{}, false
	}
	return conv, true
}

// ascending reverses a newest-first page.
func ascending(page []models.Message) []models.Message {
	out := make([]models.Message, len(page))
	for i, m := range page {
		out[len(page)-1-i] = m
	}
	return out
}
