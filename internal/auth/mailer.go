package auth

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes reset tokens to the log. Used when no mail relay is set up.
type LogMailer struct {
	Log *zap.SugaredLogger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.Log.Infow("password reset requested", "email", email, "token", token)
	return nil
}
