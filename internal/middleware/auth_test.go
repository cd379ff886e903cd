package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dmchat/internal/auth"
)

type authenticatorMock struct {
	mock.Mock
}

func (m *authenticatorMock) Authenticate(ctx context.Context, token string) (auth.Session, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(auth.Session), args.Error(1)
}

func setupRouter(a Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(a))
	r.GET("/me", func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey), "token": sess.Token})
	})
	return r
}

func TestAuthMiddlewareHeader(t *testing.T) {
	a := new(authenticatorMock)
	a.On("Authenticate", mock.Anything, "tok").Return(auth.Session{UserID: "u1", Token: "tok"}, nil).Once()
	router := setupRouter(a)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u1","token":"tok"}`, rec.Body.String())
	a.AssertExpectations(t)
}

func TestAuthMiddlewareQueryToken(t *testing.T) {
	a := new(authenticatorMock)
	a.On("Authenticate", mock.Anything, "qtok").Return(auth.Session{UserID: "u2", Token: "qtok"}, nil).Once()
	router := setupRouter(a)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?token=qtok", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	a.AssertExpectations(t)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	a := new(authenticatorMock)
	a.On("Authenticate", mock.Anything, "bad").Return(auth.Session{}, auth.ErrUnauthorized).Once()
	router := setupRouter(a)

	for _, header := range []string{"", "Basic abc", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
	a.AssertExpectations(t)
}
