// Package auth manages accounts and sessions. Passwords are bcrypt hashes and
// sessions are signed JWTs; the hash of the one live token is kept with the
// credentials so signing out revokes it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

const (
	MinPasswordLength = 6
	MaxBioLength      = 250
	DefaultBio        = "Hey, There I am using chat app"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Session identifies the signed-in user. It is created by SignIn or
// Authenticate and becomes invalid after SignOut.
type Session struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// Options configure a Service.
type Options struct {
	Secret []byte
	TTL    time.Duration
	// ResetTTL is how long a password reset token stays valid. Defaults to
	// DefaultResetTTL.
	ResetTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

const DefaultResetTTL = time.Hour

type Service struct {
	users     repositories.UserRepository
	creds     repositories.CredentialsRepository
	chatLists repositories.ChatListRepository
	mailer    Mailer
	log       *zap.SugaredLogger

	secret   []byte
	ttl      time.Duration
	resetTTL time.Duration
	cost     int
	now      func() time.Time
}

func NewService(users repositories.UserRepository, creds repositories.CredentialsRepository, chatLists repositories.ChatListRepository, mailer Mailer, opts Options, log *zap.SugaredLogger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 72 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = DefaultResetTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:     users,
		creds:     creds,
		chatLists: chatLists,
		mailer:    mailer,
		log:       log,
		secret:    opts.Secret,
		ttl:       opts.TTL,
		resetTTL:  opts.ResetTTL,
		cost:      opts.BcryptCost,
		now:       time.Now,
	}
}

// SignUpInput is the registration form.
type SignUpInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Avatar          string `json:"avatar"`
}

// SignUp creates the user, their credentials and an empty chat list.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (models.User, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case username == "":
		return models.User{}, models.Invalid("username", "username is required")
	case !strings.Contains(email, "@"):
		return models.User{}, models.Invalid("email", "a valid email is required")
	}
	if err := checkPassword(in.Password, in.ConfirmPassword); err != nil {
		return models.User{}, err
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return models.User{}, models.Invalid("username", "username already taken")
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, err
	}
	if _, err := s.creds.FindByEmail(ctx, email); err == nil {
		return models.User{}, models.Invalid("email", "email already in use")
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UnixMilli()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  username,
		Name:      strings.TrimSpace(in.FirstName + " " + in.LastName),
		Avatar:    in.Avatar,
		Bio:       DefaultBio,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}
	if err := s.creds.Create(ctx, models.Credentials{UserID: user.ID, Email: email, PasswordHash: string(hash)}); err != nil {
		return models.User{}, err
	}
	if err := s.chatLists.Create(ctx, user.ID); err != nil {
		return models.User{}, err
	}
	s.log.Infow("user signed up", "user_id", user.ID, "username", username)
	return user, nil
}

// SignIn checks the password and starts a new session, replacing any previous
// one.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	creds, err := s.creds.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, exp, err := s.issue(creds.UserID)
	if err != nil {
		return Session{}, err
	}
	if err := s.creds.Update(ctx, creds.UserID, map[string]any{"tokenHash": HashToken(token)}); err != nil {
		return Session{}, err
	}
	if err := s.users.Update(ctx, creds.UserID, map[string]any{"lastSeen": s.now().UnixMilli()}); err != nil {
		s.log.Warnw("update last seen failed", "user_id", creds.UserID, "error", err)
	}
	return Session{UserID: creds.UserID, Token: token, ExpiresAt: exp}, nil
}

// Authenticate resolves a bearer token to its session.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	creds, err := s.creds.Get(ctx, claims.Subject)
	if errors.Is(err, models.ErrNotFound) {
		return Session{}, ErrUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	if creds.TokenHash == "" || creds.TokenHash != HashToken(token) {
		return Session{}, ErrUnauthorized
	}
	return Session{UserID: claims.Subject, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// SignOut revokes the session's token.
func (s *Service) SignOut(ctx context.Context, sess Session) error {
	return s.creds.Update(ctx, sess.UserID, map[string]any{"tokenHash": ""})
}

// SendPasswordReset hands a one-time reset token to the mailer. The email must
// belong to a user. The token expires after the configured reset TTL.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.Invalid("email", "enter your email")
	}
	creds, err := s.creds.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("email doesn't exist: %w", models.ErrNotFound)
	}
	if err != nil {
		return err
	}
	token := uuid.NewString()
	if err := s.creds.Update(ctx, creds.UserID, map[string]any{
		"resetTokenHash": HashToken(token),
		"resetExpiresAt": s.now().Add(s.resetTTL).UnixMilli(),
	}); err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, email, token)
}

// ResetPassword sets a new password using a token from SendPasswordReset. Any
// live session is revoked.
func (s *Service) ResetPassword(ctx context.Context, email, token, password, confirm string) error {
	if err := checkPassword(password, confirm); err != nil {
		return err
	}
	creds, err := s.creds.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if creds.ResetTokenHash == "" || creds.ResetTokenHash != HashToken(token) {
		return ErrUnauthorized
	}
	if s.now().UnixMilli() >= creds.ResetExpiresAt {
		return fmt.Errorf("%w: reset token expired", ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.creds.Update(ctx, creds.UserID, map[string]any{
		"passwordHash":   string(hash),
		"resetTokenHash": "",
		"resetExpiresAt": 0,
		"tokenHash":      "",
	})
}

// ProfileInput is the profile form. Password is optional.
type ProfileInput struct {
	Name            string `json:"name"`
	Bio             string `json:"bio"`
	Avatar          string `json:"avatar"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdateProfile validates and applies a profile edit.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (models.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.User{}, models.Invalid("name", "name is required")
	}
	if len([]rune(in.Bio)) > MaxBioLength {
		return models.User{}, models.Invalid("bio", "bio must be 250 characters or less")
	}
	if in.Password != "" {
		if err := checkPassword(in.Password, in.ConfirmPassword); err != nil {
			return models.User{}, err
		}
	}

	if err := s.users.Update(ctx, userID, map[string]any{
		"name":      name,
		"bio":       in.Bio,
		"avatar":    in.Avatar,
		"updatedAt": s.now().UnixMilli(),
	}); err != nil {
		return models.User{}, err
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		if err := s.creds.Update(ctx, userID, map[string]any{"passwordHash": string(hash)}); err != nil {
			return models.User{}, err
		}
	}
	return s.users.Get(ctx, userID)
}

func checkPassword(password, confirm string) error {
	if len(password) < MinPasswordLength {
		return models.Invalid("password", "password must be at least 6 characters")
	}
	if password != confirm {
		return models.Invalid("confirm_password", "passwords do not match")
	}
	return nil
}
