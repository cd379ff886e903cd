package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dmchat/internal/docstore/memstore"
	"dmchat/internal/mocks"
	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

type fixture struct {
	svc       *Service
	users     *repositories.UserRepo
	creds     *repositories.CredentialsRepo
	chatLists *repositories.ChatListRepo
	mailer    *mocks.MailerMock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	f := fixture{
		users:     repositories.NewUserRepo(store),
		creds:     repositories.NewCredentialsRepo(store),
		chatLists: repositories.NewChatListRepo(store),
		mailer:    new(mocks.MailerMock),
	}
	f.svc = NewService(f.users, f.creds, f.chatLists, f.mailer, Options{
		Secret:     []byte("test-secret"),
		TTL:        time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, zap.NewNop().Sugar())
	return f
}

func signUpAnn(t *testing.T, f fixture) models.User {
	t.Helper()
	u, err := f.svc.SignUp(context.Background(), SignUpInput{
		Username: "Ann", Email: "Ann@X.io", Password: "secret1", ConfirmPassword: "secret1",
		FirstName: "Ann", LastName: "",
	})
	require.NoError(t, err)
	return u
}

func TestSignUpCreatesUserCredentialsAndChatList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := signUpAnn(t, f)

	assert.Equal(t, "ann", u.Username)
	assert.Equal(t, "ann@x.io", u.Email)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, DefaultBio, u.Bio)

	stored, err := f.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)

	creds, err := f.creds.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", creds.PasswordHash)

	list, err := f.chatLists.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list.ChatsData)
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	signUpAnn(t, f)
	ctx := context.Background()

	cases := map[string]SignUpInput{
		"taken username": {Username: "ANN", Email: "other@x.io", Password: "secret1", ConfirmPassword: "secret1"},
		"taken email":    {Username: "other", Email: "ann@x.io", Password: "secret1", ConfirmPassword: "secret1"},
		"short password": {Username: "other", Email: "o@x.io", Password: "123", ConfirmPassword: "123"},
		"mismatch":       {Username: "other", Email: "o@x.io", Password: "secret1", ConfirmPassword: "secret2"},
		"bad email":      {Username: "other", Email: "nope", Password: "secret1", ConfirmPassword: "secret1"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.SignUp(ctx, in)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestSignInAuthenticateSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := signUpAnn(t, f)

	_, err := f.svc.SignIn(ctx, "ann@x.io", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.SignIn(ctx, "nobody@x.io", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := f.svc.SignIn(ctx, "ANN@x.io", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)

	got, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	require.NoError(t, f.svc.SignOut(ctx, got))
	_, err = f.svc.Authenticate(ctx, sess.Token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewSignInRevokesPreviousToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signUpAnn(t, f)

	first, err := f.svc.SignIn(ctx, "ann@x.io", "secret1")
	require.NoError(t, err)
	second, err := f.svc.SignIn(ctx, "ann@x.io", "secret1")
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, first.Token)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Authenticate(ctx, second.Token)
	require.NoError(t, err)
}

func TestAuthenticateRejectsForeignAndExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signUpAnn(t, f)
	sess, err := f.svc.SignIn(ctx, "ann@x.io", "secret1")
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrUnauthorized)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.svc.Authenticate(ctx, sess.Token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signUpAnn(t, f)

	err := f.svc.SendPasswordReset(ctx, "ghost@x.io")
	require.ErrorIs(t, err, models.ErrNotFound)

	var token string
	f.mailer.On("SendPasswordReset", mock.Anything, "ann@x.io", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(nil).Once()
	require.NoError(t, f.svc.SendPasswordReset(ctx, " Ann@x.io "))
	require.NotEmpty(t, token)

	require.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.io", "bad", "newpass", "newpass"), ErrUnauthorized)
	require.NoError(t, f.svc.ResetPassword(ctx, "ann@x.io", token, "newpass", "newpass"))

	_, err = f.svc.SignIn(ctx, "ann@x.io", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.SignIn(ctx, "ann@x.io", "newpass")
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.io", token, "again1", "again1"), ErrUnauthorized)
	f.mailer.AssertExpectations(t)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	signUpAnn(t, f)

	var token string
	f.mailer.On("SendPasswordReset", mock.Anything, "ann@x.io", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(nil).Once()
	require.NoError(t, f.svc.SendPasswordReset(ctx, "ann@x.io"))

	f.svc.now = func() time.Time { return time.Now().Add(DefaultResetTTL + time.Minute) }
	require.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.io", token, "newpass", "newpass"), ErrUnauthorized)

	f.svc.now = time.Now
	_, err := f.svc.SignIn(ctx, "ann@x.io", "secret1")
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := signUpAnn(t, f)

	_, err := f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Name: "  "})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Name: "Ann", Bio: strings.Repeat("x", 251)})
	require.ErrorAs(t, err, &verr)

	updated, err := f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Name: "Ann Lee", Bio: "hi", Password: "fresh1", ConfirmPassword: "fresh1"})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", updated.Name)
	assert.Equal(t, "hi", updated.Bio)

	_, err = f.svc.SignIn(ctx, "ann@x.io", "fresh1")
	require.NoError(t, err)
}
