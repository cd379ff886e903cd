// Package upload stores image attachments with an external media host.
package upload

import (
	"context"
	"strings"

	"dmchat/internal/models"
)

// MaxImageBytes caps image attachments.
const MaxImageBytes = 5 * 1024 * 1024

// Attachment is a file selected for sending.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Size is the attachment length in bytes.
func (a Attachment) Size() int { return len(a.Data) }

// Uploader stores an attachment and returns its public URL. Failures wrap
// models.ErrUpload.
type Uploader interface {
	Upload(ctx context.Context, a Attachment) (string, error)
}

// ValidateImage checks an attachment before any upload is attempted.
func ValidateImage(a Attachment) error {
	if a.Size() == 0 {
		return models.Invalid("image", "no file provided")
	}
	if !strings.HasPrefix(a.ContentType, "image/") {
		return models.Invalid("image", "please select an image file")
	}
	if a.Size() > MaxImageBytes {
		return models.Invalid("image", "image size should be less than 5MB")
	}
	return nil
}
