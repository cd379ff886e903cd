package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dmchat/internal/auth"
	"dmchat/internal/models"
	"dmchat/internal/social"
)

// statusFor maps an operation error onto an HTTP status.
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr),
		errors.Is(err, social.ErrMissingSender),
		errors.Is(err, social.ErrMissingRecipient):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUpload), errors.Is(err, models.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the status for err with a short error text and the
// notice a client should show.
func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	notice := models.NoticeFor(err)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		message = verr.Error()
	case status == http.StatusBadRequest, status == http.StatusUnauthorized:
		message = err.Error()
		notice = models.Notice{Level: models.NoticeWarning, Message: message}
	}
	c.JSON(status, gin.H{"error": message, "notice": notice})
}
