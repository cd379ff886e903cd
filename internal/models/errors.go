package models

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
	ErrUpload       = errors.New("upload failed")
	ErrNetwork      = errors.New("network error")
)

// ValidationError rejects input before any write is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

const (
	NoticeError   = "error"
	NoticeWarning = "warning"
	NoticeInfo    = "info"
)

// Notice is a user-visible message derived from an error.
type Notice struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Redirect  string `json:"redirect,omitempty"`
	Transient bool   `json:"transient,omitempty"`
}

// NoticeFor converts any operation error into a notice.
func NoticeFor(err error) Notice {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrAccessDenied):
		return Notice{Level: NoticeError, Message: "You don't have access to this chat", Redirect: "/chat"}
	case errors.Is(err, ErrNotFound):
		return Notice{Level: NoticeError, Message: "Chat not found", Redirect: "/chat"}
	case errors.As(err, &verr):
		return Notice{Level: NoticeWarning, Message: verr.Error()}
	case errors.Is(err, ErrUpload):
		return Notice{Level: NoticeError, Message: "Failed to upload image. Please try again", Transient: true}
	default:
		return Notice{Level: NoticeError, Message: "Something went wrong. Please try again", Transient: true}
	}
}
