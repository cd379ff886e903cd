package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dmchat/internal/auth"
	"dmchat/internal/middleware"
	"dmchat/internal/repositories"
	"dmchat/internal/telemetry"
)

// Disconnector closes a user's live connections.
type Disconnector interface {
	DisconnectUser(userID string) int
}

// AuthHandler serves account and profile endpoints.
type AuthHandler struct {
	auth   *auth.Service
	users  repositories.UserRepository
	conns  Disconnector
	audit  *telemetry.AuditEmitter
	logger *zap.SugaredLogger
}

// NewAuthHandler builds an AuthHandler. conns and audit may be nil.
func NewAuthHandler(svc *auth.Service, users repositories.UserRepository, conns Disconnector, audit *telemetry.AuditEmitter, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{auth: svc, users: users, conns: conns, audit: audit, logger: logger}
}

// SignUp registers a new account.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req auth.SignUpInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.SignUp(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "could not create account")
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "user signed up", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login exchanges email and password for a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.audit.Emit(c.Request.Context(), telemetry.LevelWarn, "sign in failed", requestIDFromContext(c), nil)
		respondError(c, err, "could not sign in")
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "user signed in", requestIDFromContext(c), &sess.UserID)
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Logout revokes the caller's token and closes their sockets.
func (h *AuthHandler) Logout(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	if err := h.auth.SignOut(c.Request.Context(), sess); err != nil {
		respondError(c, err, "could not sign out")
		return
	}
	if h.conns != nil {
		closed := h.conns.DisconnectUser(sess.UserID)
		h.logger.Debugw("closed sockets on sign out", "user_id", sess.UserID, "count", closed)
	}

	h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "user signed out", requestIDFromContext(c), &sess.UserID)
	c.Status(http.StatusNoContent)
}

// RequestPasswordReset sends a reset token to an existing email.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, err, "could not send reset email")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "Password reset email sent"})
}

// ConfirmPasswordReset sets a new password using a reset token.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req struct {
		Email           string `json:"email" binding:"required"`
		Token           string `json:"token" binding:"required"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.Token, req.Password, req.ConfirmPassword); err != nil {
		respondError(c, err, "could not reset password")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetProfile returns the caller's user document.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile applies a profile edit.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req auth.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	user, err := h.auth.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "failed to update profile")
		return
	}
	if req.Password != "" {
		h.audit.Emit(c.Request.Context(), telemetry.LevelInfo, "password changed", requestIDFromContext(c), &userID)
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
