package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dmchat/internal/models"
	"dmchat/internal/reconciler"
	"dmchat/internal/upload"
)

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, a upload.Attachment) (string, error) {
	args := m.Called(ctx, a)
	return args.String(0), args.Error(1)
}

type ApplierMock struct {
	mock.Mock
}

func (m *ApplierMock) Apply(ctx context.Context, out reconciler.Outgoing) (models.Message, error) {
	args := m.Called(ctx, out)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type MailerMock struct {
	mock.Mock
}

func (m *MailerMock) SendPasswordReset(ctx context.Context, email, token string) error {
	return m.Called(ctx, email, token).Error(0)
}

var _ upload.Uploader = (*UploaderMock)(nil)
var _ reconciler.Applier = (*ApplierMock)(nil)
