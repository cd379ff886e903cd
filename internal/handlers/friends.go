package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dmchat/internal/chatlist"
	"dmchat/internal/repositories"
	"dmchat/internal/social"
)

// FriendHandler serves the friend-request workflow.
type FriendHandler struct {
	social *social.Service
	users  repositories.UserRepository
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(svc *social.Service, users repositories.UserRepository) *FriendHandler {
	return &FriendHandler{social: svc, users: users}
}

// Candidates lists users the caller can send a request to.
func (h *FriendHandler) Candidates(c *gin.Context) {
	users, err := h.social.Candidates(c.Request.Context(), c.GetString("userID"), c.Query("q"))
	if err != nil {
		respondError(c, err, "failed to load users")
		return
	}
	out := make([]chatlist.Peer, 0, len(users))
	for _, u := range users {
		out = append(out, chatlist.PeerOf(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// SendRequest sends a friend request. Requests to friends or to users with a
// pending request either way are refused; the check is advisory and two
// concurrent sends can still both succeed.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if req.RecipientID != "" && req.RecipientID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot send a request to yourself"})
		return
	}
	sender, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load sender")
		return
	}
	if req.RecipientID != "" {
		if _, err := h.users.Get(c.Request.Context(), req.RecipientID); err != nil {
			respondError(c, err, "recipient not found")
			return
		}
		if sender.IsFriend(req.RecipientID) {
			c.JSON(http.StatusConflict, gin.H{"error": "already friends"})
			return
		}
		pending, err := h.social.PendingMap(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err, "failed to check requests")
			return
		}
		if pending[req.RecipientID] {
			c.JSON(http.StatusConflict, gin.H{"error": "request already pending"})
			return
		}
	}

	fr, err := h.social.SendRequest(c.Request.Context(), sender, req.RecipientID)
	if err != nil {
		respondError(c, err, "failed to send request")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": fr})
}

// Notifications returns the caller's notifications, newest first.
func (h *FriendHandler) Notifications(c *gin.Context) {
	notes, err := h.social.Notifications(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err, "failed to load notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes})
}

type requestAction struct {
	FromID string `json:"from_id"`
}

// Accept accepts the request from from_id.
func (h *FriendHandler) Accept(c *gin.Context) {
	var req requestAction
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.social.Accept(c.Request.Context(), c.GetString("userID"), req.FromID); err != nil {
		respondError(c, err, "failed to accept request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// Reject rejects the request from from_id.
func (h *FriendHandler) Reject(c *gin.Context) {
	var req requestAction
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.social.Reject(c.Request.Context(), c.GetString("userID"), req.FromID); err != nil {
		respondError(c, err, "failed to reject request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}
